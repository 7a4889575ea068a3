package keys

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"assent/internal/domain"
	"assent/internal/platform/metrics"
)

const cacheTTL = 10 * time.Minute

// resolveCache caches key metadata lookups. Misses and errors both fall
// through to the store.
type resolveCache interface {
	Get(ctx context.Context, id domain.KeyID) (domain.EncryptionKey, bool)
	Set(ctx context.Context, key domain.EncryptionKey)
	Invalidate(ctx context.Context, id domain.KeyID)
}

// RedisCache caches resolved key metadata in Redis. Entries are invalidated
// on rotation and expiry so cached Active flags never go stale for longer
// than the TTL.
type RedisCache struct {
	client  *redis.Client
	metrics *metrics.Metrics
}

func NewRedisCache(client *redis.Client, m *metrics.Metrics) *RedisCache {
	return &RedisCache{client: client, metrics: m}
}

func (c *RedisCache) Get(ctx context.Context, id domain.KeyID) (domain.EncryptionKey, bool) {
	payload, err := c.client.Get(ctx, cacheKey(id)).Bytes()
	if err != nil {
		if c.metrics != nil {
			c.metrics.KeyCacheMisses.Inc()
		}
		return domain.EncryptionKey{}, false
	}
	var key domain.EncryptionKey
	if err := json.Unmarshal(payload, &key); err != nil {
		if c.metrics != nil {
			c.metrics.KeyCacheMisses.Inc()
		}
		return domain.EncryptionKey{}, false
	}
	if c.metrics != nil {
		c.metrics.KeyCacheHits.Inc()
	}
	return key, true
}

func (c *RedisCache) Set(ctx context.Context, key domain.EncryptionKey) {
	payload, err := json.Marshal(key)
	if err != nil {
		return
	}
	c.client.Set(ctx, cacheKey(key.ID), payload, cacheTTL)
}

func (c *RedisCache) Invalidate(ctx context.Context, id domain.KeyID) {
	c.client.Del(ctx, cacheKey(id))
}

func cacheKey(id domain.KeyID) string {
	return "assent:key:" + id.String()
}

// noopCache is used when Redis is not configured.
type noopCache struct{}

func (noopCache) Get(ctx context.Context, id domain.KeyID) (domain.EncryptionKey, bool) {
	return domain.EncryptionKey{}, false
}
func (noopCache) Set(ctx context.Context, key domain.EncryptionKey) {}
func (noopCache) Invalidate(ctx context.Context, id domain.KeyID)   {}
