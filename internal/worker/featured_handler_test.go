package worker_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mdscolour/clawfactory/internal/archive"
	"github.com/mdscolour/clawfactory/internal/domain"
	gormpersistence "github.com/mdscolour/clawfactory/internal/infra/persistence/gorm"
	"github.com/mdscolour/clawfactory/internal/infra/setup"
	"github.com/mdscolour/clawfactory/internal/service"
	"github.com/mdscolour/clawfactory/internal/tasks"
	"github.com/mdscolour/clawfactory/internal/worker"
)

func TestFeaturedRefreshHandler_FillsCache(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, setup.MigrateDB(db))

	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	store, err := archive.NewStore(t.TempDir())
	require.NoError(t, err)

	copyRepo := gormpersistence.NewGormCopyRepository(db)
	socialRepo := gormpersistence.NewGormSocialRepository(db)
	copyService := service.NewCopyService(copyRepo, socialRepo, store, cache)
	socialService := service.NewSocialService(copyRepo, socialRepo, nil)
	ctx := context.Background()

	// Six public copies with descending ratings; the shelf holds the top four.
	for i := 0; i < 6; i++ {
		name := fmt.Sprintf("Agent %c", 'A'+i)
		_, err := copyService.Upsert(ctx, service.CopyInput{
			Name:     name,
			Author:   "alice",
			Category: "development",
			IsPublic: true,
		}, 1)
		require.NoError(t, err)

		value := 5 - i
		if value < 1 {
			value = 1
		}
		_, _, err = socialService.SubmitRating(ctx, domain.Slugify(name), uint(100+i), value)
		require.NoError(t, err)
	}

	handler := worker.NewFeaturedRefreshHandler(copyRepo, cache)
	task := asynq.NewTask(tasks.TypeFeaturedRefresh, nil)
	require.NoError(t, handler.ProcessTask(ctx, task))

	raw, err := cache.Get(ctx, service.FeaturedCacheKey).Result()
	require.NoError(t, err)
	var cached []domain.Copy
	require.NoError(t, json.Unmarshal([]byte(raw), &cached))
	require.Len(t, cached, service.FeaturedLimit)
	assert.Equal(t, "agent-a", cached[0].Slug, "best rated copy leads the shelf")

	// The read path serves from the cache the worker just wrote.
	featured, err := copyService.Featured(ctx)
	require.NoError(t, err)
	require.Len(t, featured, service.FeaturedLimit)
	assert.Equal(t, cached[0].Slug, featured[0].Slug)
}

func TestFeaturedRefreshHandler_EmptyDatabase(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, setup.MigrateDB(db))

	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	handler := worker.NewFeaturedRefreshHandler(gormpersistence.NewGormCopyRepository(db), cache)
	require.NoError(t, handler.ProcessTask(context.Background(), asynq.NewTask(tasks.TypeFeaturedRefresh, nil)))

	raw, err := cache.Get(context.Background(), service.FeaturedCacheKey).Result()
	require.NoError(t, err)
	var cached []domain.Copy
	require.NoError(t, json.Unmarshal([]byte(raw), &cached))
	assert.Empty(t, cached)
}
