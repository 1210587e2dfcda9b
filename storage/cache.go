package storage

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"roadwatch/domain"
	"roadwatch/projection"
)

type summaryBackend interface {
	GetSummary(ctx context.Context, id string) (*domain.Summary, error)
	ListActive(ctx context.Context) ([]domain.Summary, error)
}

// Cache wraps a Storage instance with Redis-backed reads for single-summary
// lookups. Entries are written by the cache projector; this side only
// consumes them, falling through to the table on miss or on any Redis
// error. Corrupt entries are evicted so the next publish rewrites them.
type Cache struct {
	*Storage
	base  summaryBackend
	redis *redis.Client
}

// NewCache creates a caching wrapper over the provided storage.
func NewCache(base summaryBackend, client *redis.Client) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	c := &Cache{base: base, redis: client}
	if s, ok := base.(*Storage); ok {
		c.Storage = s
	}
	return c
}

func (c *Cache) GetSummary(ctx context.Context, id string) (*domain.Summary, error) {
	if sum, ok := c.loadFromCache(ctx, id); ok {
		return sum, nil
	}
	return c.base.GetSummary(ctx, id)
}

// ListActive always scans the table: the cache holds per-incident entries,
// not the active set.
func (c *Cache) ListActive(ctx context.Context) ([]domain.Summary, error) {
	return c.base.ListActive(ctx)
}

func (c *Cache) loadFromCache(ctx context.Context, id string) (*domain.Summary, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, projection.CacheKey(id)).Bytes()
	if err != nil {
		return nil, false
	}
	var cached projection.CachedSummary
	if err := json.Unmarshal(data, &cached); err != nil {
		_ = c.redis.Del(ctx, projection.CacheKey(id)).Err()
		return nil, false
	}
	return &cached.Summary, true
}
