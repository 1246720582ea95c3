package gormpersistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mdscolour/clawfactory/internal/domain"
	"github.com/mdscolour/clawfactory/internal/repository"
)

// GormCopyRepository is the GORM implementation of CopyRepository.
type GormCopyRepository struct {
	db *gorm.DB
}

func NewGormCopyRepository(db *gorm.DB) *GormCopyRepository {
	if db == nil {
		panic("database connection cannot be nil for GormCopyRepository")
	}
	return &GormCopyRepository{db: db}
}

func (r *GormCopyRepository) FindBySlug(ctx context.Context, slug string) (*domain.Copy, error) {
	var c domain.Copy
	err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrCopyNotFound
		}
		return nil, fmt.Errorf("gorm: find copy by slug %q: %w", slug, err)
	}
	return &c, nil
}

func (r *GormCopyRepository) ListPublic(ctx context.Context, q repository.ListQuery) ([]domain.Copy, error) {
	tx := r.db.WithContext(ctx).Where("visibility = ?", domain.VisibilityPublic)
	if q.PublishedOnly {
		tx = tx.Where("published_at IS NOT NULL")
	}
	if q.Category != "" && q.Category != "all" {
		tx = tx.Where("category = ?", q.Category)
	}
	if q.Search != "" {
		term := "%" + q.Search + "%"
		tx = tx.Where("name LIKE ? OR description LIKE ? OR skills LIKE ?", term, term, term)
	}
	tx = tx.Order(orderClause(q))
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	var copies []domain.Copy
	if err := tx.Find(&copies).Error; err != nil {
		return nil, fmt.Errorf("gorm: list public copies: %w", err)
	}
	return copies, nil
}

func orderClause(q repository.ListQuery) string {
	switch q.Sort {
	case repository.SortPopular:
		return "install_count DESC"
	case repository.SortRating:
		return "rating_average DESC"
	case repository.SortRecent:
		if q.PublishedOnly {
			return "published_at DESC"
		}
		return "created_at DESC"
	default:
		return "rating_average DESC, install_count DESC"
	}
}

func (r *GormCopyRepository) ListByOwner(ctx context.Context, ownerID uint, includeHidden bool) ([]domain.Copy, error) {
	tx := r.db.WithContext(ctx).Where("owner_id = ?", ownerID)
	if !includeHidden {
		tx = tx.Where("visibility = ?", domain.VisibilityPublic)
	}
	var copies []domain.Copy
	if err := tx.Order("created_at DESC").Find(&copies).Error; err != nil {
		return nil, fmt.Errorf("gorm: list copies for owner %d: %w", ownerID, err)
	}
	return copies, nil
}

func (r *GormCopyRepository) ListAll(ctx context.Context) ([]domain.Copy, error) {
	var copies []domain.Copy
	if err := r.db.WithContext(ctx).Find(&copies).Error; err != nil {
		return nil, fmt.Errorf("gorm: list all copies: %w", err)
	}
	return copies, nil
}

func (r *GormCopyRepository) CategoryCounts(ctx context.Context) ([]repository.CategoryCount, error) {
	var counts []repository.CategoryCount
	err := r.db.WithContext(ctx).Model(&domain.Copy{}).
		Select("category, COUNT(*) as count").
		Where("visibility = ?", domain.VisibilityPublic).
		Group("category").
		Scan(&counts).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: category counts: %w", err)
	}
	return counts, nil
}

func (r *GormCopyRepository) Featured(ctx context.Context, limit int) ([]domain.Copy, error) {
	var copies []domain.Copy
	err := r.db.WithContext(ctx).
		Where("visibility = ? AND rating_count > 0", domain.VisibilityPublic).
		Order("rating_average DESC").
		Limit(limit).
		Find(&copies).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: featured copies: %w", err)
	}
	return copies, nil
}

func (r *GormCopyRepository) CreateWithHistory(ctx context.Context, c *domain.Copy, entry *domain.VersionEntry, change *domain.ChangeEntry) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(c).Error; err != nil {
			return err
		}
		entry.CopyID = c.ID
		if err := tx.Create(entry).Error; err != nil {
			return err
		}
		if err := upsertContributor(tx, c.ID, c.Author); err != nil {
			return err
		}
		change.CopyID = c.ID
		return tx.Create(change).Error
	})
	if err != nil {
		if isDuplicateEntryError(err) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: create copy %q with history: %w", c.Slug, err)
	}
	return nil
}

func (r *GormCopyRepository) UpdateWithHistory(ctx context.Context, c *domain.Copy, entry *domain.VersionEntry, change *domain.ChangeEntry) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Archive the pre-update row before the overwrite so a failure in
		// either statement rolls both back.
		if err := tx.Create(entry).Error; err != nil {
			return err
		}
		if err := tx.Save(c).Error; err != nil {
			return err
		}
		if err := upsertContributor(tx, c.ID, c.Author); err != nil {
			return err
		}
		change.CopyID = c.ID
		return tx.Create(change).Error
	})
	if err != nil {
		return fmt.Errorf("gorm: update copy %q with history: %w", c.Slug, err)
	}
	return nil
}

func upsertContributor(tx *gorm.DB, copyID uint, author string) error {
	if author == "" {
		return nil
	}
	contrib := domain.Contributor{CopyID: copyID, Author: author}
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&contrib).Error
}

func (r *GormCopyRepository) CreateFork(ctx context.Context, c *domain.Copy, record *domain.ForkRecord, change *domain.ChangeEntry) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(c).Error; err != nil {
			return err
		}
		if err := tx.Create(record).Error; err != nil {
			return err
		}
		change.CopyID = c.ID
		return tx.Create(change).Error
	})
	if err != nil {
		if isDuplicateEntryError(err) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: create fork %q of %q: %w", c.Slug, record.OriginalSlug, err)
	}
	return nil
}

func (r *GormCopyRepository) SetVisibility(ctx context.Context, slug, visibility string, change *domain.ChangeEntry) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c domain.Copy
		if err := tx.Where("slug = ?", slug).First(&c).Error; err != nil {
			return err
		}
		c.Visibility = visibility
		if visibility == domain.VisibilityPublic {
			now := time.Now()
			c.PublishedAt = &now
		}
		if err := tx.Save(&c).Error; err != nil {
			return err
		}
		change.CopyID = c.ID
		return tx.Create(change).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return repository.ErrCopyNotFound
		}
		return fmt.Errorf("gorm: set visibility of %q to %s: %w", slug, visibility, err)
	}
	return nil
}

func (r *GormCopyRepository) IncrementInstall(ctx context.Context, slug string) (int, error) {
	var count int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Copy{}).Where("slug = ?", slug).
			UpdateColumn("install_count", gorm.Expr("install_count + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		var c domain.Copy
		if err := tx.Select("install_count").Where("slug = ?", slug).First(&c).Error; err != nil {
			return err
		}
		count = c.InstallCount
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, repository.ErrCopyNotFound
		}
		return 0, fmt.Errorf("gorm: increment install count for %q: %w", slug, err)
	}
	return count, nil
}

func (r *GormCopyRepository) Save(ctx context.Context, c *domain.Copy) error {
	if err := r.db.WithContext(ctx).Save(c).Error; err != nil {
		return fmt.Errorf("gorm: save copy %q: %w", c.Slug, err)
	}
	return nil
}

func (r *GormCopyRepository) Upsert(ctx context.Context, c *domain.Copy) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slug"}},
		UpdateAll: true,
	}).Create(c).Error
	if err != nil {
		return fmt.Errorf("gorm: upsert copy %q: %w", c.Slug, err)
	}
	return nil
}

func (r *GormCopyRepository) AppendVersion(ctx context.Context, entry *domain.VersionEntry) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("gorm: append version %s for copy %d: %w", entry.Version, entry.CopyID, err)
	}
	return nil
}

func (r *GormCopyRepository) VersionsForCopy(ctx context.Context, copyID uint) ([]domain.VersionEntry, error) {
	var entries []domain.VersionEntry
	err := r.db.WithContext(ctx).
		Where("copy_id = ?", copyID).
		Order("created_at DESC, id DESC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: versions for copy %d: %w", copyID, err)
	}
	return entries, nil
}

func (r *GormCopyRepository) ChangesForCopy(ctx context.Context, copyID uint) ([]domain.ChangeEntry, error) {
	var entries []domain.ChangeEntry
	err := r.db.WithContext(ctx).
		Where("copy_id = ?", copyID).
		Order("created_at DESC, id DESC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: changes for copy %d: %w", copyID, err)
	}
	return entries, nil
}

func (r *GormCopyRepository) ContributorsForCopy(ctx context.Context, copyID uint) ([]domain.Contributor, error) {
	var contribs []domain.Contributor
	err := r.db.WithContext(ctx).
		Where("copy_id = ?", copyID).
		Order("created_at ASC").
		Find(&contribs).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: contributors for copy %d: %w", copyID, err)
	}
	return contribs, nil
}

func (r *GormCopyRepository) ForksOf(ctx context.Context, originalSlug string) ([]domain.Copy, error) {
	var copies []domain.Copy
	err := r.db.WithContext(ctx).
		Joins("JOIN fork_records ON fork_records.forked_slug = copies.slug").
		Where("fork_records.original_slug = ?", originalSlug).
		Order("fork_records.created_at DESC").
		Find(&copies).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: forks of %q: %w", originalSlug, err)
	}
	return copies, nil
}

func (r *GormCopyRepository) ForksByUser(ctx context.Context, userID uint) ([]domain.Copy, error) {
	var copies []domain.Copy
	err := r.db.WithContext(ctx).
		Joins("JOIN fork_records ON fork_records.forked_slug = copies.slug").
		Where("fork_records.user_id = ?", userID).
		Order("fork_records.created_at DESC").
		Find(&copies).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: forks by user %d: %w", userID, err)
	}
	return copies, nil
}
