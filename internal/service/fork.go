package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mdscolour/clawfactory/internal/domain"
	"github.com/mdscolour/clawfactory/internal/repository"
)

// ForkService clones copies and tracks their lineage.
type ForkService struct {
	copies repository.CopyRepository
}

func NewForkService(copies repository.CopyRepository) *ForkService {
	if copies == nil {
		panic("CopyRepository cannot be nil for ForkService")
	}
	return &ForkService{copies: copies}
}

// Fork clones a copy's metadata under a fresh time-suffixed slug. Files and
// memory stay with the original; the fork starts private regardless of the
// original's visibility.
func (s *ForkService) Fork(ctx context.Context, originalSlug string, userID uint) (*domain.Copy, error) {
	logCtx := logrus.WithFields(logrus.Fields{"original": originalSlug, "user_id": userID})

	original, err := s.copies.FindBySlug(ctx, originalSlug)
	if err != nil {
		if errors.Is(err, repository.ErrCopyNotFound) {
			return nil, ErrCopyNotFound
		}
		logCtx.WithError(err).Error("Database error fetching original for fork")
		return nil, ErrInternalServer
	}

	fork := &domain.Copy{
		Slug:        domain.ForkSlug(originalSlug, time.Now()),
		OwnerID:     userID,
		Name:        original.Name + " (Fork)",
		Description: original.Description,
		Author:      original.Author,
		Version:     original.Version,
		Category:    original.Category,
		ModelTag:    original.ModelTag,
		Skills:      original.Skills,
		Tags:        original.Tags,
		Features:    original.Features,
		Visibility:  domain.VisibilityPrivate,
		ForkedFrom:  originalSlug,
	}
	record := &domain.ForkRecord{
		OriginalSlug: originalSlug,
		ForkedSlug:   fork.Slug,
		UserID:       userID,
	}
	change := &domain.ChangeEntry{UserID: userID, Kind: domain.ChangeFork, Note: "forked from " + originalSlug}

	if err := s.copies.CreateFork(ctx, fork, record, change); err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			// Two forks in the same millisecond collide on the slug suffix.
			logCtx.Warn("Fork slug collision")
			return nil, ErrInvalidInput
		}
		logCtx.WithError(err).Error("Database error creating fork")
		return nil, ErrInternalServer
	}

	logCtx.WithField("fork", fork.Slug).Info("Copy forked")
	return fork, nil
}

// ForksOf lists the forks made from a copy, newest first.
func (s *ForkService) ForksOf(ctx context.Context, originalSlug string) ([]domain.Copy, error) {
	copies, err := s.copies.ForksOf(ctx, originalSlug)
	if err != nil {
		logrus.WithError(err).WithField("original", originalSlug).Error("Database error listing forks")
		return nil, ErrInternalServer
	}
	return copies, nil
}

// ForksByUser lists the copies a user created by forking.
func (s *ForkService) ForksByUser(ctx context.Context, userID uint) ([]domain.Copy, error) {
	copies, err := s.copies.ForksByUser(ctx, userID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("Database error listing user forks")
		return nil, ErrInternalServer
	}
	return copies, nil
}
