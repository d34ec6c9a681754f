package server

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	cache, err := NewRedisCache(context.Background(), mr.Addr(), 60)
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })

	return cache, mr
}

func TestRedisCacheRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	item := Item{"id": "1", "name": "Item 1"}
	require.NoError(t, cache.SetItem(ctx, item))

	got, err := cache.GetItem(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, item, got)
}

func TestRedisCacheMiss(t *testing.T) {
	cache, _ := newTestCache(t)

	_, err := cache.GetItem(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisCacheDelete(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.SetItem(ctx, Item{"id": "1"}))
	require.NoError(t, cache.DeleteItem(ctx, "1"))

	_, err := cache.GetItem(ctx, "1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisCacheExpiry(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.SetItem(ctx, Item{"id": "1"}))

	mr.FastForward(61 * time.Second)

	_, err := cache.GetItem(ctx, "1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisCacheConnectFailure(t *testing.T) {
	_, err := NewRedisCache(context.Background(), "127.0.0.1:1", 60)
	assert.Error(t, err)
}
