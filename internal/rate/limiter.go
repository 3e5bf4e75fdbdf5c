package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrRateLimited      = errors.New("rate limited")
	ErrRedisUnavailable = errors.New("redis unavailable")
)

// Config holds limiter tuning.
type Config struct {
	// MaxFailures is the number of failures allowed per window.
	MaxFailures int
	Window      time.Duration
	Prefix      string
}

// Limiter counts failed attempts per address in Redis.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// Check returns ErrRateLimited once addr has used up its failure budget for
// the current window.
func (l *Limiter) Check(ctx context.Context, addr string) error {
	count, err := l.redis.Get(ctx, l.key(addr)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if count >= int64(l.config.MaxFailures) {
		return ErrRateLimited
	}

	return nil
}

// RecordFailure counts one failed attempt and returns the window total.
func (l *Limiter) RecordFailure(ctx context.Context, addr string) (int64, error) {
	key := l.key(addr)
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}

// Reset clears the counter for addr.
func (l *Limiter) Reset(ctx context.Context, addr string) error {
	if err := l.redis.Del(ctx, l.key(addr)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Failures returns the current window count for addr.
func (l *Limiter) Failures(ctx context.Context, addr string) (int, error) {
	count, err := l.redis.Get(ctx, l.key(addr)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

func (l *Limiter) key(addr string) string {
	return l.config.Prefix + ":rl:" + addr
}
