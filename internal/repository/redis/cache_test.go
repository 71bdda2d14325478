package redis

import (
	"context"
	"testing"
	"time"

	"shortlink/internal/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupCache(t *testing.T, ttl time.Duration) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewCache(client, ttl), mr
}

func testLink(code string) *domain.Link {
	link := domain.NewLink(code, "https://example.com/"+code, nil, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 30)
	link.IsPrivate = true
	link.PasswordHash = "$2a$10$hash"
	return link
}

func TestCache_GetMiss(t *testing.T) {
	cache, _ := setupCache(t, time.Hour)

	link, err := cache.GetLink(context.Background(), "missing")

	require.NoError(t, err)
	assert.Nil(t, link)
}

func TestCache_SetThenGet(t *testing.T) {
	cache, mr := setupCache(t, time.Hour)
	ctx := context.Background()
	want := testLink("abc123")

	require.NoError(t, cache.SetLink(ctx, want))

	got, err := cache.GetLink(ctx, "abc123")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.OriginalURL, got.OriginalURL)
	assert.Equal(t, want.PasswordHash, got.PasswordHash)
	assert.True(t, got.ExpiresAt.Equal(*want.ExpiresAt))
	assert.True(t, mr.Exists("link:abc123"))
}

func TestCache_EntriesExpire(t *testing.T) {
	cache, mr := setupCache(t, time.Minute)
	ctx := context.Background()
	require.NoError(t, cache.SetLink(ctx, testLink("short")))

	mr.FastForward(2 * time.Minute)

	got, err := cache.GetLink(ctx, "short")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCache_Delete(t *testing.T) {
	cache, mr := setupCache(t, time.Hour)
	ctx := context.Background()
	for _, code := range []string{"a1", "b2", "c3"} {
		require.NoError(t, cache.SetLink(ctx, testLink(code)))
	}
	require.NoError(t, mr.Set("other", "keep"))

	require.NoError(t, cache.DeleteLink(ctx, "a1", "b2"))
	assert.False(t, mr.Exists("link:a1"))
	assert.True(t, mr.Exists("link:c3"))
	assert.True(t, mr.Exists("other"))
}

func TestCache_CorruptEntry(t *testing.T) {
	cache, mr := setupCache(t, time.Hour)
	require.NoError(t, mr.Set("link:bad", "{not json"))

	_, err := cache.GetLink(context.Background(), "bad")

	assert.Error(t, err)
}
