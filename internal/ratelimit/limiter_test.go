package ratelimit

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisLimiter(t *testing.T, max int, window time.Duration) (*RedisLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisLimiter(client, "api", max, window), mr
}

func TestRedisLimiter_AllowsUpToMax(t *testing.T) {
	rl, _ := setupRedisLimiter(t, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, remaining, _, err := rl.Allow(ctx, "1.2.3.4")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d", i+1)
		assert.Equal(t, 2-i, remaining)
	}

	allowed, remaining, reset, err := rl.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Zero(t, remaining)
	assert.True(t, reset.After(time.Now()))

	allowed, _, _, err = rl.Allow(ctx, "5.6.7.8")
	require.NoError(t, err)
	assert.True(t, allowed, "keys are independent")
}

func TestRedisLimiter_WindowExpires(t *testing.T) {
	rl, mr := setupRedisLimiter(t, 1, time.Minute)
	ctx := context.Background()

	allowed, _, _, _ := rl.Allow(ctx, "k")
	require.True(t, allowed)
	allowed, _, _, _ = rl.Allow(ctx, "k")
	require.False(t, allowed)

	mr.FastForward(61 * time.Second)

	allowed, _, _, err := rl.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRedisLimiter_Reset(t *testing.T) {
	rl, mr := setupRedisLimiter(t, 1, time.Minute)
	ctx := context.Background()

	rl.Allow(ctx, "k")
	require.True(t, mr.Exists("ratelimit:api:k"))

	require.NoError(t, rl.Reset(ctx, "k"))
	allowed, _, _, err := rl.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 1, rl.MaxRequests())
}

func TestLocalLimiter_BurstThenRefill(t *testing.T) {
	l := NewLocalLimiter(2, time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	allowed, remaining, _, _ := l.Allow(ctx, "k")
	assert.True(t, allowed)
	assert.Equal(t, 1, remaining)
	allowed, _, _, _ = l.Allow(ctx, "k")
	assert.True(t, allowed)
	allowed, _, reset, _ := l.Allow(ctx, "k")
	assert.False(t, allowed)
	assert.True(t, reset.After(now))

	now = now.Add(31 * time.Second)
	allowed, _, _, _ = l.Allow(ctx, "k")
	assert.True(t, allowed)
}

func TestLocalLimiter_Cleanup(t *testing.T) {
	l := NewLocalLimiter(5, time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.Allow(context.Background(), "old")
	now = now.Add(time.Hour)
	l.Allow(context.Background(), "new")

	assert.Equal(t, 1, l.Cleanup(10*time.Minute))
	assert.Len(t, l.buckets, 1)
}

func TestFallback_UsesSecondaryWhenPrimaryFails(t *testing.T) {
	rl, mr := setupRedisLimiter(t, 10, time.Minute)
	local := NewLocalLimiter(1, time.Minute)
	f := NewFallback(rl, local, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	allowed, remaining, _, err := f.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 9, remaining)

	mr.Close()

	allowed, _, _, err = f.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, allowed)
	allowed, _, _, err = f.Allow(ctx, "k")
	require.NoError(t, err)
	assert.False(t, allowed, "local limit of 1 applies during the outage")
	assert.Equal(t, 10, f.MaxRequests())
}

func TestLocalLimiter_Reset(t *testing.T) {
	l := NewLocalLimiter(1, time.Hour)
	ctx := context.Background()

	allowed, _, _, _ := l.Allow(ctx, "k")
	require.True(t, allowed)
	allowed, _, _, _ = l.Allow(ctx, "k")
	require.False(t, allowed)

	require.NoError(t, l.Reset(ctx, "k"))
	allowed, _, _, err := l.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestFallback_ResetClearsBoth(t *testing.T) {
	rl, mr := setupRedisLimiter(t, 1, time.Minute)
	local := NewLocalLimiter(1, time.Minute)
	f := NewFallback(rl, local, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	f.Allow(ctx, "k")
	local.Allow(ctx, "k")

	require.NoError(t, f.Reset(ctx, "k"))
	assert.False(t, mr.Exists("ratelimit:api:k"))
	allowed, _, _, _ := local.Allow(ctx, "k")
	assert.True(t, allowed)

	mr.Close()
	local.Allow(ctx, "k")
	assert.Error(t, f.Reset(ctx, "k"), "primary failure is reported")
	allowed, _, _, _ = local.Allow(ctx, "k")
	assert.True(t, allowed, "secondary is still cleared")
}
