package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisCache backs the response cache with Redis so that scheduler
// replicas crawling the same source share cached responses.
type RedisCache struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisCache connects to Redis at addr.
func NewRedisCache(addr string, logger *zap.Logger) *RedisCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		prefix: "fetchcache",
		logger: logger,
	}
}

// NewRedisCacheWithClient wraps an existing client (primarily for tests).
func NewRedisCacheWithClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client, prefix: "fetchcache", logger: zap.NewNop()}
}

// Ping verifies the connection.
func (c *RedisCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Get returns the cached body for the URL, if any.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	body, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("redis cache get failed", zap.Error(err))
		}
		return nil, false
	}
	return body, true
}

// Set stores the body under the URL key with the TTL.
func (c *RedisCache) Set(ctx context.Context, key string, body []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	if err := c.client.Set(ctx, c.key(key), body, ttl).Err(); err != nil {
		c.logger.Warn("redis cache set failed", zap.Error(err))
	}
}

// Close releases the underlying client.
func (c *RedisCache) Close() error {
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	return nil
}

func (c *RedisCache) key(url string) string {
	return fmt.Sprintf("%s:%s", c.prefix, url)
}
