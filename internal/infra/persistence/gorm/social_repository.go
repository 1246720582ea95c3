package gormpersistence

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mdscolour/clawfactory/internal/domain"
)

// GormSocialRepository is the GORM implementation of SocialRepository.
type GormSocialRepository struct {
	db *gorm.DB
}

func NewGormSocialRepository(db *gorm.DB) *GormSocialRepository {
	if db == nil {
		panic("database connection cannot be nil for GormSocialRepository")
	}
	return &GormSocialRepository{db: db}
}

func (r *GormSocialRepository) UpsertRating(ctx context.Context, rating *domain.Rating) error {
	// Last writer wins for a given (copy, user) pair.
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "copy_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(rating).Error
	if err != nil {
		return fmt.Errorf("gorm: upsert rating (copy %d, user %d): %w", rating.CopyID, rating.UserID, err)
	}
	return nil
}

func (r *GormSocialRepository) RatingsForCopy(ctx context.Context, copyID uint) ([]domain.Rating, error) {
	var ratings []domain.Rating
	if err := r.db.WithContext(ctx).Where("copy_id = ?", copyID).Find(&ratings).Error; err != nil {
		return nil, fmt.Errorf("gorm: ratings for copy %d: %w", copyID, err)
	}
	return ratings, nil
}

func (r *GormSocialRepository) SetRatingAggregate(ctx context.Context, copyID uint, average float64, count int) error {
	err := r.db.WithContext(ctx).Model(&domain.Copy{}).
		Where("id = ?", copyID).
		Updates(map[string]interface{}{
			"rating_average": average,
			"rating_count":   count,
		}).Error
	if err != nil {
		return fmt.Errorf("gorm: set rating aggregate for copy %d: %w", copyID, err)
	}
	return nil
}

func (r *GormSocialRepository) AddStar(ctx context.Context, copyID, userID uint) error {
	star := domain.Star{CopyID: copyID, UserID: userID}
	// A second star from the same user hits the unique index and is a no-op.
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&star).Error
	if err != nil {
		return fmt.Errorf("gorm: add star (copy %d, user %d): %w", copyID, userID, err)
	}
	return nil
}

func (r *GormSocialRepository) RemoveStar(ctx context.Context, copyID, userID uint) error {
	err := r.db.WithContext(ctx).
		Where("copy_id = ? AND user_id = ?", copyID, userID).
		Delete(&domain.Star{}).Error
	if err != nil {
		return fmt.Errorf("gorm: remove star (copy %d, user %d): %w", copyID, userID, err)
	}
	return nil
}

func (r *GormSocialRepository) StarCount(ctx context.Context, copyID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Star{}).Where("copy_id = ?", copyID).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("gorm: star count for copy %d: %w", copyID, err)
	}
	return count, nil
}

func (r *GormSocialRepository) HasStarred(ctx context.Context, copyID, userID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Star{}).
		Where("copy_id = ? AND user_id = ?", copyID, userID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("gorm: has starred (copy %d, user %d): %w", copyID, userID, err)
	}
	return count > 0, nil
}

func (r *GormSocialRepository) StarredCopies(ctx context.Context, userID uint) ([]domain.Copy, error) {
	var copies []domain.Copy
	err := r.db.WithContext(ctx).
		Joins("JOIN stars ON stars.copy_id = copies.id").
		Where("stars.user_id = ?", userID).
		Order("stars.created_at DESC").
		Find(&copies).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: starred copies for user %d: %w", userID, err)
	}
	return copies, nil
}

func (r *GormSocialRepository) AddComment(ctx context.Context, comment *domain.Comment) error {
	if err := r.db.WithContext(ctx).Create(comment).Error; err != nil {
		return fmt.Errorf("gorm: add comment to copy %d: %w", comment.CopyID, err)
	}
	return nil
}

func (r *GormSocialRepository) CommentsForCopy(ctx context.Context, copyID uint) ([]domain.Comment, error) {
	var comments []domain.Comment
	err := r.db.WithContext(ctx).
		Where("copy_id = ?", copyID).
		Order("created_at DESC, id DESC").
		Find(&comments).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: comments for copy %d: %w", copyID, err)
	}
	return comments, nil
}

func (r *GormSocialRepository) AllRatings(ctx context.Context) ([]domain.Rating, error) {
	var ratings []domain.Rating
	if err := r.db.WithContext(ctx).Find(&ratings).Error; err != nil {
		return nil, fmt.Errorf("gorm: list all ratings: %w", err)
	}
	return ratings, nil
}

func (r *GormSocialRepository) AllComments(ctx context.Context) ([]domain.Comment, error) {
	var comments []domain.Comment
	if err := r.db.WithContext(ctx).Find(&comments).Error; err != nil {
		return nil, fmt.Errorf("gorm: list all comments: %w", err)
	}
	return comments, nil
}
