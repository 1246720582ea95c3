// Package worker runs the asynq server and its task handlers.
package worker

import (
	"context"
	"errors"

	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/mdscolour/clawfactory/internal/repository"
	"github.com/mdscolour/clawfactory/internal/tasks"
)

// Server wraps the asynq worker server lifecycle.
type Server struct {
	server *asynq.Server
	log    *logrus.Entry
	copies repository.CopyRepository
	cache  *redis.Client
}

func NewServer(redisOpt asynq.RedisClientOpt, copies repository.CopyRepository, cache *redis.Client) *Server {
	logEntry := logrus.WithField("component", "worker_server")

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 5,
			Queues: map[string]int{
				"default": 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retryCount, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logEntry.WithFields(logrus.Fields{
					"task_type": task.Type(),
					"retries":   retryCount,
					"max_retry": maxRetry,
				}).Errorf("Task failed: %v", err)
			}),
		},
	)

	return &Server{
		server: server,
		log:    logEntry,
		copies: copies,
		cache:  cache,
	}
}

// Start runs the worker server. Call it from its own goroutine.
func (ws *Server) Start() {
	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeFeaturedRefresh, NewFeaturedRefreshHandler(ws.copies, ws.cache).ProcessTask)

	ws.log.Info("Worker server starting")
	if err := ws.server.Run(mux); err != nil {
		if !errors.Is(err, asynq.ErrServerClosed) {
			ws.log.Fatalf("Could not run worker server: %v", err)
		}
		ws.log.Info("Worker server stopped")
	}
}

// Shutdown gracefully stops the worker server.
func (ws *Server) Shutdown() {
	ws.log.Info("Shutting down worker server")
	ws.server.Shutdown()
}
