package resolve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sarcastic555/politylink-crawler/internal/entity"
)

// DefaultCachePrefix namespaces snapshot keys in Redis.
const DefaultCachePrefix = "politylink:registry:"

// kv is the subset of the redis client used by RedisCache.
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// RedisCache stores registry snapshots as JSON with a TTL.
type RedisCache struct {
	client kv
	prefix string
	ttl    time.Duration
}

// NewRedisCache wraps a redis client.
func NewRedisCache(client kv, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: DefaultCachePrefix, ttl: ttl}
}

// Key returns the redis key for kind.
func (c *RedisCache) Key(kind entity.Kind) string {
	return c.prefix + string(kind)
}

// Load returns the cached snapshot. A missing key is not an error.
func (c *RedisCache) Load(ctx context.Context, kind entity.Kind) ([]entity.Canonical, bool, error) {
	raw, err := c.client.Get(ctx, c.Key(kind)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", c.Key(kind), err)
	}
	var entries []entity.Canonical
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, false, fmt.Errorf("decode %s snapshot: %w", kind, err)
	}
	return entries, true, nil
}

// Store writes the snapshot with the configured TTL.
func (c *RedisCache) Store(ctx context.Context, kind entity.Kind, entries []entity.Canonical) error {
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode %s snapshot: %w", kind, err)
	}
	if err := c.client.Set(ctx, c.Key(kind), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", c.Key(kind), err)
	}
	return nil
}
