package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/mdscolour/clawfactory/internal/repository"
	"github.com/mdscolour/clawfactory/internal/service"
)

// featuredCacheTTL outlives two scheduler periods so a missed run degrades to
// a slightly stale shelf rather than a cache miss.
const featuredCacheTTL = 15 * time.Minute

// FeaturedRefreshHandler re-ranks the featured shelf and writes it into the
// redis cache the read path serves from.
type FeaturedRefreshHandler struct {
	copies repository.CopyRepository
	cache  *redis.Client
}

func NewFeaturedRefreshHandler(copies repository.CopyRepository, cache *redis.Client) *FeaturedRefreshHandler {
	if copies == nil {
		panic("CopyRepository cannot be nil for FeaturedRefreshHandler")
	}
	if cache == nil {
		panic("redis client cannot be nil for FeaturedRefreshHandler")
	}
	return &FeaturedRefreshHandler{copies: copies, cache: cache}
}

// ProcessTask implements asynq.Handler.
func (h *FeaturedRefreshHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logCtx := logrus.WithField("task_type", t.Type())
	logCtx.Info("Refreshing featured copies cache")

	copies, err := h.copies.Featured(ctx, service.FeaturedLimit)
	if err != nil {
		logCtx.WithError(err).Error("Failed to rank featured copies")
		return fmt.Errorf("rank featured copies: %w", err)
	}

	payload, err := json.Marshal(copies)
	if err != nil {
		logCtx.WithError(err).Error("Failed to serialize featured copies")
		return fmt.Errorf("serialize featured copies: %v: %w", err, asynq.SkipRetry)
	}

	if err := h.cache.Set(ctx, service.FeaturedCacheKey, payload, featuredCacheTTL).Err(); err != nil {
		logCtx.WithError(err).Error("Failed to write featured cache")
		return fmt.Errorf("write featured cache: %w", err)
	}

	logCtx.WithField("count", len(copies)).Info("Featured cache refreshed")
	return nil
}
