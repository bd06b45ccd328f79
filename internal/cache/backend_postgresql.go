package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgreSQLBackend stores records as JSONB in the cache_entries table.
type PostgreSQLBackend struct {
	pool *pgxpool.Pool
}

// NewPostgreSQLBackend creates the cache_entries table if needed.
func NewPostgreSQLBackend(ctx context.Context, pool *pgxpool.Pool) (*PostgreSQLBackend, error) {
	if pool == nil {
		return nil, errors.New("connection pool is required")
	}

	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS cache_entries (
			key TEXT PRIMARY KEY,
			value JSONB NOT NULL,
			updated_at BIGINT NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache_entries table: %w", err)
	}
	return &PostgreSQLBackend{pool: pool}, nil
}

func (b *PostgreSQLBackend) Name() string { return "postgresql" }

func (b *PostgreSQLBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := b.pool.QueryRow(ctx, "SELECT value FROM cache_entries WHERE key = $1", key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("query cache entry: %w", err)
	}
	return value, true, nil
}

func (b *PostgreSQLBackend) Set(ctx context.Context, key string, value []byte) error {
	_, err := b.pool.Exec(ctx, `
		INSERT INTO cache_entries (key, value, updated_at)
		VALUES ($1, $2::jsonb, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`, key, string(value), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert cache entry: %w", err)
	}
	return nil
}

func (b *PostgreSQLBackend) Delete(ctx context.Context, key string) error {
	if _, err := b.pool.Exec(ctx, "DELETE FROM cache_entries WHERE key = $1", key); err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

// Close is a no-op; the pool belongs to the storage layer.
func (b *PostgreSQLBackend) Close() error { return nil }
