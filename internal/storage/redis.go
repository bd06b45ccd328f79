package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type redisStorage struct {
	nullStorage
	client *redis.Client
}

// NewRedis parses the connection URL and verifies the server with PING.
func NewRedis(ctx context.Context, cfg RedisConfig) (Storage, error) {
	if cfg.URL == "" {
		return nil, errors.New("Redis URL is required")
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &redisStorage{client: client}, nil
}

func (s *redisStorage) Type() string                { return TypeRedis }
func (s *redisStorage) RedisClient() *redis.Client { return s.client }

func (s *redisStorage) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
