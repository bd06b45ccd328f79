package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/maulanalegowo31-cloud/tvri-equipment-system/config"
	"github.com/maulanalegowo31-cloud/tvri-equipment-system/internal/storage"
)

// BackendResult holds the configured backend and the storage connection it
// runs on, if any. Backend is nil for the memory backend.
type BackendResult struct {
	Backend Backend
	Storage storage.Storage
}

// Close releases the backend and its storage connection.
func (r *BackendResult) Close() error {
	if r == nil {
		return nil
	}
	var errs []error
	if r.Backend != nil {
		if err := r.Backend.Close(); err != nil {
			errs = append(errs, fmt.Errorf("backend close: %w", err))
		}
	}
	if r.Storage != nil {
		if err := r.Storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage close: %w", err))
		}
	}
	return errors.Join(errs...)
}

// NewBackend opens the backend named by cfg.Cache.Backend.
func NewBackend(ctx context.Context, cfg *config.Config) (*BackendResult, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	switch cfg.Cache.Backend {
	case config.BackendMemory:
		return &BackendResult{}, nil
	case config.BackendFile, "":
		b, err := NewFileBackend(cfg.Cache.Dir)
		if err != nil {
			return nil, err
		}
		return &BackendResult{Backend: b}, nil
	}

	store, err := storage.New(ctx, buildStorageConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}
	backend, err := NewBackendWithSharedStorage(ctx, store, cfg.Storage.Redis.KeyPrefix)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return &BackendResult{Backend: backend, Storage: store}, nil
}

// NewBackendWithSharedStorage builds a backend on an existing connection.
// The caller keeps ownership of store.
func NewBackendWithSharedStorage(ctx context.Context, store storage.Storage, redisPrefix string) (Backend, error) {
	if store == nil {
		return nil, errors.New("shared storage is required")
	}
	switch store.Type() {
	case storage.TypeSQLite:
		return NewSQLiteBackend(store.SQLiteDB())
	case storage.TypePostgreSQL:
		return NewPostgreSQLBackend(ctx, store.PostgreSQLPool())
	case storage.TypeMongoDB:
		return NewMongoDBBackend(store.MongoDatabase())
	case storage.TypeRedis:
		return NewRedisBackend(store.RedisClient(), redisPrefix)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", store.Type())
	}
}

func buildStorageConfig(cfg *config.Config) storage.Config {
	return storage.Config{
		Type: cfg.Cache.Backend,
		SQLite: storage.SQLiteConfig{
			Path: cfg.Storage.SQLite.Path,
		},
		PostgreSQL: storage.PostgreSQLConfig{
			URL:      cfg.Storage.PostgreSQL.URL,
			MaxConns: cfg.Storage.PostgreSQL.MaxConns,
		},
		MongoDB: storage.MongoDBConfig{
			URL:      cfg.Storage.MongoDB.URL,
			Database: cfg.Storage.MongoDB.Database,
		},
		Redis: storage.RedisConfig{
			URL: cfg.Storage.Redis.URL,
		},
	}
}
