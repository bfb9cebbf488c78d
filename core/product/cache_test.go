package product

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingFetcher struct {
	products map[string]Product
	calls    int
}

func (f *countingFetcher) Fetch(ctx context.Context, id string) (Product, error) {
	f.calls++
	p, ok := f.products[id]
	if !ok {
		return Product{}, fmt.Errorf("product[%s]: %w", id, ErrNotFound)
	}
	return p, nil
}

func setupCache(t *testing.T, ttl time.Duration) (*Cache, *countingFetcher, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { client.Close() })

	log := logrus.New()
	log.SetOutput(io.Discard)

	next := &countingFetcher{products: map[string]Product{
		"p1": {ID: "p1", Name: "Shirt", Price: decimal.RequireFromString("19.99"), CountInStock: 4},
	}}

	return NewCache(next, client, ttl, log), next, mr
}

func TestCacheFetch_ReadThrough(t *testing.T) {
	cache, next, mr := setupCache(t, 30*time.Second)
	ctx := context.Background()

	p, err := cache.Fetch(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 4, p.CountInStock)
	assert.Equal(t, 1, next.calls)
	assert.True(t, mr.Exists(cacheKey("p1")))

	p, err = cache.Fetch(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Shirt", p.Name)
	assert.True(t, decimal.RequireFromString("19.99").Equal(p.Price))
	assert.Equal(t, 1, next.calls, "second read should be served by redis")
}

func TestCacheFetch_TTLWithJitter(t *testing.T) {
	cache, _, mr := setupCache(t, 30*time.Second)

	_, err := cache.Fetch(context.Background(), "p1")
	require.NoError(t, err)

	ttl := mr.TTL(cacheKey("p1"))
	assert.GreaterOrEqual(t, ttl, 30*time.Second)
	assert.Less(t, ttl, 36*time.Second)
}

func TestCacheFetch_Expired(t *testing.T) {
	cache, next, mr := setupCache(t, 30*time.Second)
	ctx := context.Background()

	_, err := cache.Fetch(ctx, "p1")
	require.NoError(t, err)

	mr.FastForward(time.Minute)

	_, err = cache.Fetch(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)
}

func TestCacheFetch_NotFound(t *testing.T) {
	cache, _, mr := setupCache(t, 30*time.Second)

	_, err := cache.Fetch(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, mr.Exists(cacheKey("nope")))
}

func TestCacheFetch_InvalidJSON(t *testing.T) {
	cache, next, mr := setupCache(t, 30*time.Second)

	require.NoError(t, mr.Set(cacheKey("p1"), "not json"))

	p, err := cache.Fetch(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", p.ID)
	assert.Equal(t, 1, next.calls)
}

func TestCacheFetch_RedisDown(t *testing.T) {
	cache, next, mr := setupCache(t, 30*time.Second)
	mr.Close()

	p, err := cache.Fetch(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", p.ID)
	assert.Equal(t, 1, next.calls)
}

func TestCacheInvalidate(t *testing.T) {
	cache, next, mr := setupCache(t, 30*time.Second)
	ctx := context.Background()

	_, err := cache.Fetch(ctx, "p1")
	require.NoError(t, err)

	require.NoError(t, cache.Invalidate(ctx, "p1"))
	assert.False(t, mr.Exists(cacheKey("p1")))

	_, err = cache.Fetch(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)
}
