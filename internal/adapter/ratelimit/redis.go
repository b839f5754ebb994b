package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix      = "tripflow:ratelimit:"
	recheckBackoff = 5 * time.Second
)

// Redis is a fixed-window counter shared by every API instance. While Redis
// is unreachable it falls back to a Local limiter and retries Redis after a
// short backoff.
type Redis struct {
	client   *redis.Client
	requests int
	window   time.Duration
	fallback *Local
	logger   *slog.Logger
	now      func() time.Time

	mu          sync.Mutex
	unavailable bool
	retryAt     time.Time
}

// NewRedis creates a shared limiter of requests per window.
func NewRedis(client *redis.Client, requests int, window time.Duration, logger *slog.Logger) *Redis {
	return &Redis{
		client:   client,
		requests: requests,
		window:   window,
		fallback: NewLocal(requests, window),
		logger:   logger.With("component", "redis_rate_limiter"),
		now:      time.Now,
	}
}

// Allow counts the request in the current window. Errors from Redis are not
// returned; the local limiter decides instead.
func (r *Redis) Allow(ctx context.Context, client string) (bool, time.Duration, error) {
	now := r.now()
	if r.skipRedis(now) {
		return r.fallback.Allow(ctx, client)
	}

	windowStart := now.Truncate(r.window)
	key := fmt.Sprintf("%s%s:%d", keyPrefix, client, windowStart.Unix())

	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, r.window)
	if _, err := pipe.Exec(ctx); err != nil {
		r.markUnavailable(now, err)
		return r.fallback.Allow(ctx, client)
	}
	r.markAvailable()

	if incr.Val() > int64(r.requests) {
		return false, windowStart.Add(r.window).Sub(now), nil
	}
	return true, 0, nil
}

func (r *Redis) skipRedis(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unavailable && now.Before(r.retryAt)
}

func (r *Redis) markUnavailable(now time.Time, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.unavailable {
		r.logger.Error("Redis unavailable, rate limiting locally", "error", err)
	}
	r.unavailable = true
	r.retryAt = now.Add(recheckBackoff)
}

func (r *Redis) markAvailable() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unavailable {
		r.logger.Info("Redis connection recovered, resuming shared rate limiting")
	}
	r.unavailable = false
}
