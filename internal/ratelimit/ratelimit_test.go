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

func newTestLimiter(t *testing.T, limit int, window time.Duration) (RateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewWithClient(client, limit, window), mr
}

func TestAllowUnderLimit(t *testing.T) {
	limiter, _ := newTestLimiter(t, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(ctx, "org-1")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should be allowed", i+1)
	}
}

func TestDenyOverLimit(t *testing.T) {
	limiter, _ := newTestLimiter(t, 2, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, err := limiter.Allow(ctx, "org-1")
		require.NoError(t, err)
		require.True(t, allowed)
	}

	allowed, err := limiter.Allow(ctx, "org-1")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestKeysAreIndependent(t *testing.T) {
	limiter, _ := newTestLimiter(t, 1, time.Minute)
	ctx := context.Background()

	allowed, err := limiter.Allow(ctx, "org-1")
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, err = limiter.Allow(ctx, "org-2")
	require.NoError(t, err)
	assert.True(t, allowed, "another organization has its own window")
}

func TestWindowSlides(t *testing.T) {
	limiter, mr := newTestLimiter(t, 1, time.Minute)
	ctx := context.Background()

	allowed, err := limiter.Allow(ctx, "org-1")
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, err = limiter.Allow(ctx, "org-1")
	require.NoError(t, err)
	require.False(t, allowed)

	// The key's TTL lapses once the window has fully passed.
	mr.FastForward(2 * time.Minute)

	allowed, err = limiter.Allow(ctx, "org-1")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestDisabledLimiterAllowsEverything(t *testing.T) {
	limiter, err := NewRedisRateLimiter("redis://unused:6379", 1, time.Minute, true)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		allowed, err := limiter.Allow(context.Background(), "org-1")
		require.NoError(t, err)
		assert.True(t, allowed)
	}
}

func TestNoOpRateLimiter(t *testing.T) {
	limiter := NoOpRateLimiter{}
	allowed, err := limiter.Allow(context.Background(), "anything")
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.NoError(t, limiter.Close())
}
