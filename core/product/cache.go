package product

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var ErrCacheMiss = errors.New("cache miss")

// Fetcher returns a catalog product by id.
type Fetcher interface {
	Fetch(ctx context.Context, id string) (Product, error)
}

// Cache keeps recently read products in Redis. Stock counts served from it
// may be stale, so it only backs the add-to-cart check; checkout reads stock
// from the Store.
type Cache struct {
	next    Fetcher
	client  *redis.Client
	baseTTL time.Duration
	log     logrus.FieldLogger
}

func NewCache(next Fetcher, client *redis.Client, ttl time.Duration, log logrus.FieldLogger) *Cache {
	return &Cache{
		next:    next,
		client:  client,
		baseTTL: ttl,
		log:     log,
	}
}

func (c *Cache) Fetch(ctx context.Context, id string) (Product, error) {
	p, err := c.get(ctx, id)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		c.log.WithField("product_id", id).Warnf("product cache get: %v", err)
	}

	p, err = c.next.Fetch(ctx, id)
	if err != nil {
		return Product{}, err
	}

	if err := c.set(ctx, p); err != nil {
		c.log.WithField("product_id", id).Warnf("product cache set: %v", err)
	}
	return p, nil
}

// Invalidate drops a cached product, for callers that change its stock.
func (c *Cache) Invalidate(ctx context.Context, id string) error {
	if err := c.client.Del(ctx, cacheKey(id)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (c *Cache) get(ctx context.Context, id string) (Product, error) {
	data, err := c.client.Get(ctx, cacheKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Product{}, ErrCacheMiss
	}
	if err != nil {
		return Product{}, fmt.Errorf("redis get failed: %w", err)
	}

	var p Product
	if err := json.Unmarshal(data, &p); err != nil {
		return Product{}, fmt.Errorf("unmarshal product failed: %w", err)
	}
	return p, nil
}

func (c *Cache) set(ctx context.Context, p Product) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal product failed: %w", err)
	}

	ttl := c.baseTTL
	if ttl > time.Second {
		ttl += time.Duration(rand.Int63n(int64(ttl / 5)))
	}

	if err := c.client.Set(ctx, cacheKey(p.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func cacheKey(id string) string {
	return fmt.Sprintf("product:%s", id)
}
