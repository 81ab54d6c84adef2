// Package ratelimit throttles requests per client key.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

const (
	// DefaultRequests and DefaultWindow allow 10 requests per 15 minutes.
	DefaultRequests = 10
	DefaultWindow   = 15 * time.Minute

	memoryCacheSize = 10_000
)

// Limiter decides whether another request for key is allowed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Key builds a limiter key scoped to a purpose such as "login".
func Key(purpose, ip string) string {
	return fmt.Sprintf("ratelimit:%s:ip:%s", purpose, ip)
}

// RedisLimiter is a fixed-window counter shared across instances.
type RedisLimiter struct {
	client   *redis.Client
	requests int64
	window   time.Duration
}

func NewRedisLimiter(client *redis.Client, requests int, window time.Duration) *RedisLimiter {
	requests, window = normalize(requests, window)
	return &RedisLimiter{client: client, requests: int64(requests), window: window}
}

// Allow increments the window counter. INCR and EXPIRE NX go out in one
// transaction, so a counter never outlives its window even if an earlier
// EXPIRE was lost.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, l.window)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}

	return incr.Val() <= l.requests, nil
}

// MemoryLimiter keeps a token bucket per key in a bounded LRU. It is used
// when no Redis is configured; limits are per process.
type MemoryLimiter struct {
	mu      sync.Mutex
	buckets *lru.Cache[string, *rate.Limiter]
	limit   rate.Limit
	burst   int
	now     func() time.Time
}

func NewMemoryLimiter(requests int, window time.Duration) *MemoryLimiter {
	requests, window = normalize(requests, window)

	buckets, err := lru.New[string, *rate.Limiter](memoryCacheSize)
	if err != nil {
		// only returned for a non-positive size
		panic(err)
	}

	return &MemoryLimiter{
		buckets: buckets,
		limit:   rate.Every(window / time.Duration(requests)),
		burst:   requests,
		now:     time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	bucket, ok := l.buckets.Get(key)
	if !ok {
		bucket = rate.NewLimiter(l.limit, l.burst)
		l.buckets.Add(key, bucket)
	}
	l.mu.Unlock()

	return bucket.AllowN(l.now(), 1), nil
}

func normalize(requests int, window time.Duration) (int, time.Duration) {
	if requests <= 0 {
		requests = DefaultRequests
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return requests, window
}
