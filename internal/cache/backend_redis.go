package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKeyPrefix namespaces cache keys in a shared Redis database.
const DefaultRedisKeyPrefix = "invtracker:"

// RedisBackend stores records as plain string values under prefix+key.
// Keys carry no Redis TTL: expiry is decided by the record itself and
// enforced by the store.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

// NewRedisBackend wraps an existing client.
func NewRedisBackend(client *redis.Client, prefix string) (*RedisBackend, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}
	return &RedisBackend{client: client, prefix: prefix}, nil
}

func (b *RedisBackend) Name() string { return "redis" }

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := b.client.Get(ctx, b.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get cache entry from redis: %w", err)
	}
	return data, true, nil
}

func (b *RedisBackend) Set(ctx context.Context, key string, value []byte) error {
	if err := b.client.Set(ctx, b.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("failed to set cache entry in redis: %w", err)
	}
	return nil
}

func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	if err := b.client.Del(ctx, b.prefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete cache entry from redis: %w", err)
	}
	return nil
}

// Close is a no-op; the client belongs to the storage layer.
func (b *RedisBackend) Close() error { return nil }
