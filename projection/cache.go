package projection

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"roadwatch/domain"
)

const summaryCachePrefix = "incident:sum:"

// CacheKey returns the Redis key holding the cached summary for an
// incident. Read paths share this key with the refresher.
func CacheKey(id string) string {
	return summaryCachePrefix + id
}

// CachedSummary is the cache payload. The envelope carries a version and
// cache time so readers can reason about staleness.
type CachedSummary struct {
	Version  int            `json:"version"`
	CachedAt time.Time      `json:"cachedAt"`
	Summary  domain.Summary `json:"summary"`
}

// CacheRefresher keeps the low-latency cache entry for each incident in
// step with the read model. It is a best-effort sink.
type CacheRefresher struct {
	redis *redis.Client
	ttl   time.Duration
	now   func() time.Time
}

func NewCacheRefresher(client *redis.Client, ttl time.Duration) *CacheRefresher {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &CacheRefresher{redis: client, ttl: ttl, now: time.Now}
}

func (c *CacheRefresher) Name() string { return "cache" }

// Apply overwrites the cache entry with the updated snapshot.
func (c *CacheRefresher) Apply(ctx context.Context, sum domain.Summary) error {
	payload := CachedSummary{Version: 1, CachedAt: c.now().UTC(), Summary: sum}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.redis.Set(ctx, CacheKey(sum.ID), data, c.ttl).Err()
}
