// Package ratelimit implements fixed-window attempt counters in Redis: INCR, and EXPIRE on the
// first hit of each window.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable is returned when the counter store cannot be reached. Callers treat it as a
// transient failure, never as an allowed attempt.
var ErrUnavailable = errors.New("rate limiter unavailable")

// Limiter owns the Redis client and key prefix shared by all buckets.
type Limiter struct {
	redis  redis.UniversalClient
	prefix string
}

// New returns a Limiter. Keys are written as prefix:bucket:key.
func New(client redis.UniversalClient, prefix string) *Limiter {
	if prefix == "" {
		prefix = "rl"
	}
	return &Limiter{redis: client, prefix: prefix}
}

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return client, nil
}

// Ping reports whether the counter store is reachable.
func (l *Limiter) Ping(ctx context.Context) error {
	if err := l.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Bucket is one named limit, e.g. login attempts per IP.
type Bucket struct {
	limiter *Limiter
	name    string
	limit   int
	window  time.Duration
}

// Bucket returns a bucket allowing limit hits per key per window. limit <= 0 disables the bucket.
func (l *Limiter) Bucket(name string, limit int, window time.Duration) *Bucket {
	if window <= 0 {
		window = time.Minute
	}
	return &Bucket{limiter: l, name: name, limit: limit, window: window}
}

// Allow records a hit for key and reports whether it is within the limit.
func (b *Bucket) Allow(ctx context.Context, key string) (bool, error) {
	if b.limit <= 0 {
		return true, nil
	}
	k := b.limiter.prefix + ":" + b.name + ":" + strings.ToLower(strings.TrimSpace(key))
	count, err := b.limiter.redis.Incr(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count == 1 {
		if err := b.limiter.redis.Expire(ctx, k, b.window).Err(); err != nil {
			return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return count <= int64(b.limit), nil
}
