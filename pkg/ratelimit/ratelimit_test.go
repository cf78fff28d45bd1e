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

func newTestLimiter(t *testing.T, limit int, window time.Duration) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(client, "auth:login", limit, window), mr
}

func TestAllow_UnderLimit(t *testing.T) {
	limiter, _ := newTestLimiter(t, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, _, err := limiter.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, ok, "request %d should pass", i+1)
	}
}

func TestAllow_OverLimit(t *testing.T) {
	limiter, _ := newTestLimiter(t, 2, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, _, err := limiter.Allow(ctx, "10.0.0.2")
		require.NoError(t, err)
		require.True(t, ok)
	}

	ok, retryAfter, err := limiter.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Greater(t, retryAfter, time.Duration(0))
}

func TestAllow_KeysAreIndependent(t *testing.T) {
	limiter, _ := newTestLimiter(t, 1, time.Minute)
	ctx := context.Background()

	ok, _, err := limiter.Allow(ctx, "10.0.0.3")
	require.NoError(t, err)
	require.True(t, ok)

	ok, _, err = limiter.Allow(ctx, "10.0.0.4")
	require.NoError(t, err)
	assert.True(t, ok, "a different key has its own window")
}

func TestAllow_WindowReset(t *testing.T) {
	limiter, mr := newTestLimiter(t, 1, time.Minute)
	ctx := context.Background()

	ok, _, err := limiter.Allow(ctx, "10.0.0.5")
	require.NoError(t, err)
	require.True(t, ok)

	ok, _, _ = limiter.Allow(ctx, "10.0.0.5")
	require.False(t, ok)

	mr.FastForward(61 * time.Second)

	ok, _, err = limiter.Allow(ctx, "10.0.0.5")
	require.NoError(t, err)
	assert.True(t, ok, "window expiry resets the counter")
}
