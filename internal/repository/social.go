package repository

import (
	"context"

	"github.com/mdscolour/clawfactory/internal/domain"
)

// SocialRepository defines storage operations for ratings, stars and
// comments.
type SocialRepository interface {
	// UpsertRating replaces any prior rating by the same (copy, user) pair.
	UpsertRating(ctx context.Context, rating *domain.Rating) error

	// RatingsForCopy returns every rating row for a copy; the aggregate is
	// recomputed from this full scan on each write.
	RatingsForCopy(ctx context.Context, copyID uint) ([]domain.Rating, error)

	// SetRatingAggregate persists the recomputed average and count on the
	// copy row.
	SetRatingAggregate(ctx context.Context, copyID uint, average float64, count int) error

	// AddStar inserts a star unless one already exists for the pair.
	AddStar(ctx context.Context, copyID, userID uint) error
	// RemoveStar deletes the pair's star; deleting an absent star is not an
	// error.
	RemoveStar(ctx context.Context, copyID, userID uint) error
	StarCount(ctx context.Context, copyID uint) (int64, error)
	HasStarred(ctx context.Context, copyID, userID uint) (bool, error)
	// StarredCopies returns the copies a user has starred, newest star first.
	StarredCopies(ctx context.Context, userID uint) ([]domain.Copy, error)

	AddComment(ctx context.Context, comment *domain.Comment) error
	CommentsForCopy(ctx context.Context, copyID uint) ([]domain.Comment, error)

	// AllRatings and AllComments feed the export endpoint.
	AllRatings(ctx context.Context) ([]domain.Rating, error)
	AllComments(ctx context.Context) ([]domain.Comment, error)
}
