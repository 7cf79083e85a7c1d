package access

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "access:status:"

// RedisCache stores effective statuses in Redis with a TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a Redis-backed access cache.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisCache{client: client, ttl: ttl}
}

// Get returns the cached status, or ok=false on a miss.
func (c *RedisCache) Get(ctx context.Context, userID uuid.UUID) (Status, bool, error) {
	v, err := c.client.Get(ctx, cacheKeyPrefix+userID.String()).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return Status(v), true, nil
}

// Set stores status for the configured TTL.
func (c *RedisCache) Set(ctx context.Context, userID uuid.UUID, status Status) error {
	return c.client.Set(ctx, cacheKeyPrefix+userID.String(), string(status), c.ttl).Err()
}

// Delete removes the cached status.
func (c *RedisCache) Delete(ctx context.Context, userID uuid.UUID) error {
	return c.client.Del(ctx, cacheKeyPrefix+userID.String()).Err()
}
