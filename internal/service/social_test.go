package service_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdscolour/clawfactory/internal/domain"
	"github.com/mdscolour/clawfactory/internal/service"
)

// recordingPublisher captures broadcast events for assertions.
type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Broadcast(event, copySlug string, data interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) recorded() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

func TestSocialService_SubmitRating_Aggregates(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	_, err := svc.copies.Upsert(ctx, publicInput("Code Reviewer"), 1)
	require.NoError(t, err)

	average, count, err := svc.social.SubmitRating(ctx, "code-reviewer", 10, 5)
	require.NoError(t, err)
	assert.Equal(t, 5.0, average)
	assert.Equal(t, 1, count)

	average, count, err = svc.social.SubmitRating(ctx, "code-reviewer", 11, 4)
	require.NoError(t, err)
	assert.Equal(t, 4.5, average)
	assert.Equal(t, 2, count)

	// Three ratings of 5, 4, 4 average to 4.333..., rounded to one decimal.
	average, count, err = svc.social.SubmitRating(ctx, "code-reviewer", 12, 4)
	require.NoError(t, err)
	assert.Equal(t, 4.3, average)
	assert.Equal(t, 3, count)

	c, err := svc.copies.Get(ctx, "code-reviewer", nil)
	require.NoError(t, err)
	assert.Equal(t, 4.3, c.RatingAverage, "aggregate is persisted on the copy row")
	assert.Equal(t, 3, c.RatingCount)
}

func TestSocialService_SubmitRating_RepeatReplacesPrior(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	_, err := svc.copies.Upsert(ctx, publicInput("Code Reviewer"), 1)
	require.NoError(t, err)

	_, _, err = svc.social.SubmitRating(ctx, "code-reviewer", 10, 2)
	require.NoError(t, err)

	average, count, err := svc.social.SubmitRating(ctx, "code-reviewer", 10, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "the same user rating again must not add a row")
	assert.Equal(t, 5.0, average, "the new value replaces the old one")
}

func TestSocialService_SubmitRating_RejectsOutOfRange(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	_, err := svc.copies.Upsert(ctx, publicInput("Code Reviewer"), 1)
	require.NoError(t, err)

	for _, value := range []int{0, 6, -1} {
		_, _, err := svc.social.SubmitRating(ctx, "code-reviewer", 10, value)
		assert.ErrorIs(t, err, service.ErrInvalidInput, "value %d", value)
	}
}

func TestSocialService_ToggleStar_Idempotent(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	_, err := svc.copies.Upsert(ctx, publicInput("Code Reviewer"), 1)
	require.NoError(t, err)

	count, err := svc.social.ToggleStar(ctx, "code-reviewer", 10, domain.StarActionStar)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// Starring again is a no-op, not a double count.
	count, err = svc.social.ToggleStar(ctx, "code-reviewer", 10, domain.StarActionStar)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	count, err = svc.social.ToggleStar(ctx, "code-reviewer", 10, domain.StarActionUnstar)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	// Unstarring an absent star succeeds and leaves the count at zero.
	count, err = svc.social.ToggleStar(ctx, "code-reviewer", 10, domain.StarActionUnstar)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestSocialService_ToggleStar_DefaultsToStar(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	_, err := svc.copies.Upsert(ctx, publicInput("Code Reviewer"), 1)
	require.NoError(t, err)

	count, err := svc.social.ToggleStar(ctx, "code-reviewer", 10, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	_, err = svc.social.ToggleStar(ctx, "code-reviewer", 10, "sideways")
	assert.ErrorIs(t, err, service.ErrInvalidInput)
}

func TestSocialService_StarStatus(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	_, err := svc.copies.Upsert(ctx, publicInput("Code Reviewer"), 1)
	require.NoError(t, err)

	_, err = svc.social.ToggleStar(ctx, "code-reviewer", 10, domain.StarActionStar)
	require.NoError(t, err)

	count, starred, err := svc.social.StarStatus(ctx, "code-reviewer", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.True(t, starred)

	_, starred, err = svc.social.StarStatus(ctx, "code-reviewer", 11)
	require.NoError(t, err)
	assert.False(t, starred)

	// Anonymous callers get the count with starred always false.
	count, starred, err = svc.social.StarStatus(ctx, "code-reviewer", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.False(t, starred)
}

func TestSocialService_Comments(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	_, err := svc.copies.Upsert(ctx, publicInput("Code Reviewer"), 1)
	require.NoError(t, err)

	_, err = svc.social.AddComment(ctx, "code-reviewer", "bob", "works great", 10)
	require.NoError(t, err)
	_, err = svc.social.AddComment(ctx, "code-reviewer", "carol", "needs docs", 11)
	require.NoError(t, err)

	comments, err := svc.social.Comments(ctx, "code-reviewer")
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "needs docs", comments[0].Text, "newest comment first")

	_, err = svc.social.AddComment(ctx, "code-reviewer", "dave", "", 12)
	assert.ErrorIs(t, err, service.ErrInvalidInput)
}

func TestSocialService_TrackInstall(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	_, err := svc.copies.Upsert(ctx, publicInput("Code Reviewer"), 1)
	require.NoError(t, err)

	count, err := svc.social.TrackInstall(ctx, "code-reviewer")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = svc.social.TrackInstall(ctx, "code-reviewer")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	_, err = svc.social.TrackInstall(ctx, "missing")
	assert.ErrorIs(t, err, service.ErrCopyNotFound)
}

func TestSocialService_BroadcastsEvents(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	_, err := svc.copies.Upsert(ctx, publicInput("Code Reviewer"), 1)
	require.NoError(t, err)

	publisher := &recordingPublisher{}
	wired := service.NewSocialService(svc.copyRepo, svc.socialRepo, publisher)

	_, _, err = wired.SubmitRating(ctx, "code-reviewer", 10, 5)
	require.NoError(t, err)
	_, err = wired.AddComment(ctx, "code-reviewer", "bob", "nice", 10)
	require.NoError(t, err)
	_, err = wired.TrackInstall(ctx, "code-reviewer")
	require.NoError(t, err)

	assert.Equal(t, []string{
		service.EventRatingUpdate,
		service.EventNewComment,
		service.EventCopyUpdate,
	}, publisher.recorded())
}
