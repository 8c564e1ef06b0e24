// Package cache is a thin Redis layer over hot read paths, mainly the
// exercise listing. It is optional: with no Redis URL configured every
// lookup is a miss and writes are no-ops.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"code-judge/internal/logging"
	"code-judge/internal/metrics"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Cache wraps a Redis client. A nil client means caching is disabled.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

// New connects to Redis when a URL is configured. Connection problems
// disable the cache rather than failing startup.
func New(redisURL string) *Cache {
	c := &Cache{
		ttl: 5 * time.Minute,
		log: logging.L().Named("cache"),
	}
	if redisURL == "" {
		return c
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		c.log.Warn("invalid redis url, cache disabled", zap.Error(err))
		return c
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		c.log.Warn("redis unreachable, cache disabled", zap.Error(err))
		client.Close()
		return c
	}

	c.client = client
	c.log.Info("redis cache enabled")
	return c
}

// Enabled reports whether a Redis backend is connected.
func (c *Cache) Enabled() bool {
	return c != nil && c.client != nil
}

// GetJSON loads key into dest, reporting whether it was a hit. Decode
// failures count as misses.
func (c *Cache) GetJSON(ctx context.Context, key string, dest interface{}) bool {
	if !c.Enabled() {
		return false
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		}
		metrics.Get().CacheMissesTotal.WithLabelValues(keyClass(key)).Inc()
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		metrics.Get().CacheMissesTotal.WithLabelValues(keyClass(key)).Inc()
		return false
	}
	metrics.Get().CacheHitsTotal.WithLabelValues(keyClass(key)).Inc()
	return true
}

// SetJSON stores v under key with the default TTL. Failures are logged and
// swallowed.
func (c *Cache) SetJSON(ctx context.Context, key string, v interface{}) {
	if !c.Enabled() {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.log.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// Invalidate removes the given keys.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) {
	if !c.Enabled() || len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.log.Warn("cache invalidation failed", zap.Error(err))
	}
}

// Close releases the Redis connection.
func (c *Cache) Close() {
	if c.Enabled() {
		c.client.Close()
	}
}

// keyClass trims the variable suffix so metrics stay low-cardinality.
func keyClass(key string) string {
	for i := 0; i < len(key); i++ {
		if key[i] == ':' {
			return key[:i]
		}
	}
	return key
}
