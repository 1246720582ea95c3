package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// LoginLimiter tracks failed login attempts per username.
type LoginLimiter interface {
	// TooMany reports whether the username has exhausted its attempt budget.
	TooMany(ctx context.Context, username string) (bool, error)
	// RecordFailure counts one failed attempt.
	RecordFailure(ctx context.Context, username string) error
	// Reset clears the counter after a successful login.
	Reset(ctx context.Context, username string) error
}

const (
	loginFailKeyPrefix = "cf:login_fail:"
	loginFailLimit     = 10
	loginFailWindow    = time.Hour
)

// RedisLoginLimiter counts failures in Redis with a rolling one-hour window:
// INCR on failure, EXPIRE set on the first failure, DEL on success.
type RedisLoginLimiter struct {
	client *redis.Client
}

func NewRedisLoginLimiter(client *redis.Client) *RedisLoginLimiter {
	if client == nil {
		panic("redis client cannot be nil for RedisLoginLimiter")
	}
	return &RedisLoginLimiter{client: client}
}

func (l *RedisLoginLimiter) TooMany(ctx context.Context, username string) (bool, error) {
	count, err := l.client.Get(ctx, loginFailKeyPrefix+username).Int()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("login limiter: read counter for %q: %w", username, err)
	}
	return count >= loginFailLimit, nil
}

func (l *RedisLoginLimiter) RecordFailure(ctx context.Context, username string) error {
	key := loginFailKeyPrefix + username
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("login limiter: increment counter for %q: %w", username, err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, loginFailWindow).Err(); err != nil {
			return fmt.Errorf("login limiter: set expiry for %q: %w", username, err)
		}
	}
	return nil
}

func (l *RedisLoginLimiter) Reset(ctx context.Context, username string) error {
	if err := l.client.Del(ctx, loginFailKeyPrefix+username).Err(); err != nil {
		return fmt.Errorf("login limiter: reset counter for %q: %w", username, err)
	}
	return nil
}
