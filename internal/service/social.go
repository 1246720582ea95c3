package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mdscolour/clawfactory/internal/domain"
	"github.com/mdscolour/clawfactory/internal/repository"
)

// SocialService handles ratings, stars, comments and install tracking, and
// pushes the matching events onto the WebSocket feed.
type SocialService struct {
	copies    repository.CopyRepository
	social    repository.SocialRepository
	publisher EventPublisher
}

func NewSocialService(copies repository.CopyRepository, social repository.SocialRepository, publisher EventPublisher) *SocialService {
	if copies == nil {
		panic("CopyRepository cannot be nil for SocialService")
	}
	if social == nil {
		panic("SocialRepository cannot be nil for SocialService")
	}
	if publisher == nil {
		publisher = NopPublisher{}
	}
	return &SocialService{copies: copies, social: social, publisher: publisher}
}

// SubmitRating replaces the user's prior rating for the copy, then recomputes
// the aggregate from all rows. The average carries one fractional digit.
func (s *SocialService) SubmitRating(ctx context.Context, slug string, userID uint, value int) (float64, int, error) {
	if value < 1 || value > 5 {
		return 0, 0, fmt.Errorf("%w: rating must be between 1 and 5", ErrInvalidInput)
	}
	c, err := s.findCopy(ctx, slug)
	if err != nil {
		return 0, 0, err
	}
	logCtx := logrus.WithFields(logrus.Fields{"slug": slug, "user_id": userID})

	rating := &domain.Rating{CopyID: c.ID, UserID: userID, Value: value}
	if err := s.social.UpsertRating(ctx, rating); err != nil {
		logCtx.WithError(err).Error("Database error storing rating")
		return 0, 0, ErrInternalServer
	}

	ratings, err := s.social.RatingsForCopy(ctx, c.ID)
	if err != nil {
		logCtx.WithError(err).Error("Database error reading ratings for recompute")
		return 0, 0, ErrInternalServer
	}
	sum := 0
	for _, r := range ratings {
		sum += r.Value
	}
	count := len(ratings)
	average := math.Round(float64(sum)/float64(count)*10) / 10

	if err := s.social.SetRatingAggregate(ctx, c.ID, average, count); err != nil {
		logCtx.WithError(err).Error("Database error persisting rating aggregate")
		return 0, 0, ErrInternalServer
	}

	s.publisher.Broadcast(EventRatingUpdate, slug, map[string]interface{}{
		"copy_id": slug,
		"average": average,
		"count":   count,
	})
	return average, count, nil
}

// ToggleStar applies the caller's explicit action. Starring twice or
// unstarring an absent star is a no-op; the returned count is always the full
// post-action total.
func (s *SocialService) ToggleStar(ctx context.Context, slug string, userID uint, action string) (int64, error) {
	c, err := s.findCopy(ctx, slug)
	if err != nil {
		return 0, err
	}
	logCtx := logrus.WithFields(logrus.Fields{"slug": slug, "user_id": userID, "action": action})

	switch action {
	case domain.StarActionUnstar:
		err = s.social.RemoveStar(ctx, c.ID, userID)
	case domain.StarActionStar, "":
		err = s.social.AddStar(ctx, c.ID, userID)
	default:
		return 0, fmt.Errorf("%w: unknown star action %q", ErrInvalidInput, action)
	}
	if err != nil {
		logCtx.WithError(err).Error("Database error toggling star")
		return 0, ErrInternalServer
	}

	count, err := s.social.StarCount(ctx, c.ID)
	if err != nil {
		logCtx.WithError(err).Error("Database error counting stars")
		return 0, ErrInternalServer
	}
	return count, nil
}

// StarStatus returns the copy's star count and whether the given user (0 for
// anonymous) has starred it.
func (s *SocialService) StarStatus(ctx context.Context, slug string, userID uint) (int64, bool, error) {
	c, err := s.findCopy(ctx, slug)
	if err != nil {
		return 0, false, err
	}
	count, err := s.social.StarCount(ctx, c.ID)
	if err != nil {
		logrus.WithError(err).WithField("slug", slug).Error("Database error counting stars")
		return 0, false, ErrInternalServer
	}
	starred := false
	if userID != 0 {
		starred, err = s.social.HasStarred(ctx, c.ID, userID)
		if err != nil {
			logrus.WithError(err).WithField("slug", slug).Error("Database error checking star")
			return 0, false, ErrInternalServer
		}
	}
	return count, starred, nil
}

// StarredCopies lists the copies a user has starred, newest star first.
func (s *SocialService) StarredCopies(ctx context.Context, userID uint) ([]domain.Copy, error) {
	copies, err := s.social.StarredCopies(ctx, userID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("Database error listing starred copies")
		return nil, ErrInternalServer
	}
	return copies, nil
}

// AddComment appends a comment and announces it on the feed.
func (s *SocialService) AddComment(ctx context.Context, slug, author, text string, userID uint) (*domain.Comment, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: comment text is required", ErrInvalidInput)
	}
	c, err := s.findCopy(ctx, slug)
	if err != nil {
		return nil, err
	}
	comment := &domain.Comment{CopyID: c.ID, UserID: userID, Author: author, Text: text}
	if err := s.social.AddComment(ctx, comment); err != nil {
		logrus.WithError(err).WithField("slug", slug).Error("Database error storing comment")
		return nil, ErrInternalServer
	}

	s.publisher.Broadcast(EventNewComment, slug, map[string]interface{}{
		"copy_id":    slug,
		"id":         comment.ID,
		"author":     comment.Author,
		"text":       comment.Text,
		"created_at": comment.CreatedAt.Format(time.RFC3339),
	})
	return comment, nil
}

// Comments returns a copy's comments, newest first.
func (s *SocialService) Comments(ctx context.Context, slug string) ([]domain.Comment, error) {
	c, err := s.findCopy(ctx, slug)
	if err != nil {
		return nil, err
	}
	comments, err := s.social.CommentsForCopy(ctx, c.ID)
	if err != nil {
		logrus.WithError(err).WithField("slug", slug).Error("Database error listing comments")
		return nil, ErrInternalServer
	}
	return comments, nil
}

// Ratings returns a copy's individual rating rows.
func (s *SocialService) Ratings(ctx context.Context, slug string) ([]domain.Rating, error) {
	c, err := s.findCopy(ctx, slug)
	if err != nil {
		return nil, err
	}
	ratings, err := s.social.RatingsForCopy(ctx, c.ID)
	if err != nil {
		logrus.WithError(err).WithField("slug", slug).Error("Database error listing ratings")
		return nil, ErrInternalServer
	}
	return ratings, nil
}

// TrackInstall bumps the install counter and announces the change.
func (s *SocialService) TrackInstall(ctx context.Context, slug string) (int, error) {
	count, err := s.copies.IncrementInstall(ctx, slug)
	if err != nil {
		if errors.Is(err, repository.ErrCopyNotFound) {
			return 0, ErrCopyNotFound
		}
		logrus.WithError(err).WithField("slug", slug).Error("Database error tracking install")
		return 0, ErrInternalServer
	}

	s.publisher.Broadcast(EventCopyUpdate, slug, map[string]interface{}{
		"copy_id":       slug,
		"change":        "install",
		"install_count": count,
	})
	return count, nil
}

func (s *SocialService) findCopy(ctx context.Context, slug string) (*domain.Copy, error) {
	c, err := s.copies.FindBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, repository.ErrCopyNotFound) {
			return nil, ErrCopyNotFound
		}
		logrus.WithError(err).WithField("slug", slug).Error("Database error fetching copy")
		return nil, ErrInternalServer
	}
	return c, nil
}
