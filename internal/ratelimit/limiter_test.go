package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "ratelimit:login:ip:10.0.0.1", Key("login", "10.0.0.1"))
}

func TestRedisLimiter_FixedWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	limiter := NewRedisLimiter(client, 3, time.Minute)
	ctx := context.Background()
	key := Key("login", "10.0.0.1")

	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(ctx, key)
		require.NoError(t, err)
		assert.True(t, allowed, "request %d", i+1)
	}

	allowed, err := limiter.Allow(ctx, key)
	require.NoError(t, err)
	assert.False(t, allowed)

	assert.Equal(t, time.Minute, mr.TTL(key))

	// other keys have their own window
	allowed, err = limiter.Allow(ctx, Key("login", "10.0.0.2"))
	require.NoError(t, err)
	assert.True(t, allowed)

	mr.FastForward(time.Minute + time.Second)

	allowed, err = limiter.Allow(ctx, key)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRedisLimiter_CounterWithoutTTLRecovers(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	key := Key("login", "10.0.0.1")
	// a counter left behind by a lost EXPIRE
	require.NoError(t, mr.Set(key, "7"))
	require.Equal(t, time.Duration(0), mr.TTL(key))

	limiter := NewRedisLimiter(client, 2, time.Minute)
	ctx := context.Background()

	allowed, err := limiter.Allow(ctx, key)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, time.Minute, mr.TTL(key))

	mr.FastForward(time.Minute + time.Second)

	for i := 0; i < 2; i++ {
		allowed, err = limiter.Allow(ctx, key)
		require.NoError(t, err)
		assert.True(t, allowed, "request %d", i+1)
	}
	allowed, err = limiter.Allow(ctx, key)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestRedisLimiter_WindowNotExtendedByLaterHits(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	limiter := NewRedisLimiter(client, 5, time.Minute)
	ctx := context.Background()
	key := Key("register", "10.0.0.3")

	_, err := limiter.Allow(ctx, key)
	require.NoError(t, err)

	mr.FastForward(40 * time.Second)
	_, err = limiter.Allow(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 20*time.Second, mr.TTL(key))
}

func TestRedisLimiter_ErrorWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	mr.Close()

	_, err := NewRedisLimiter(client, 3, time.Minute).Allow(context.Background(), "k")
	assert.Error(t, err)
}

func TestMemoryLimiter_BurstThenRefill(t *testing.T) {
	limiter := NewMemoryLimiter(2, time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		allowed, err := limiter.Allow(ctx, "a")
		require.NoError(t, err)
		assert.True(t, allowed)
	}

	allowed, _ := limiter.Allow(ctx, "a")
	assert.False(t, allowed)

	allowed, _ = limiter.Allow(ctx, "b")
	assert.True(t, allowed)

	// one token every 30s
	now = now.Add(30 * time.Second)
	allowed, _ = limiter.Allow(ctx, "a")
	assert.True(t, allowed)
}

func TestNormalizeDefaults(t *testing.T) {
	requests, window := normalize(0, 0)
	assert.Equal(t, DefaultRequests, requests)
	assert.Equal(t, DefaultWindow, window)
}
