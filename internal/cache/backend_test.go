package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maulanalegowo31-cloud/tvri-equipment-system/config"
	"github.com/maulanalegowo31-cloud/tvri-equipment-system/internal/core"
	"github.com/maulanalegowo31-cloud/tvri-equipment-system/internal/storage"
)

// exerciseBackend runs the behaviour every Backend must share.
func exerciseBackend(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := b.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Set(ctx, core.CacheKeyInventory, []byte(`{"data":1,"timestamp":1,"expiration":2}`)))
	got, ok, err := b.Get(ctx, core.CacheKeyInventory)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"data":1,"timestamp":1,"expiration":2}`, string(got))

	require.NoError(t, b.Set(ctx, core.CacheKeyInventory, []byte(`{"data":2,"timestamp":1,"expiration":2}`)))
	got, _, err = b.Get(ctx, core.CacheKeyInventory)
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":2,"timestamp":1,"expiration":2}`, string(got))

	require.NoError(t, b.Delete(ctx, core.CacheKeyInventory))
	_, ok, err = b.Get(ctx, core.CacheKeyInventory)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Delete(ctx, "never-set"))

	// the store works end to end on top of the backend
	s := New(ctx, b, Options{})
	require.True(t, s.Available())
	s.Set(ctx, core.CacheKeyStats, core.InventoryStats{Total: 4, Borrowed: 1}, time.Minute)
	stats, ok := Lookup[core.InventoryStats](ctx, s, core.CacheKeyStats)
	require.True(t, ok)
	assert.Equal(t, core.InventoryStats{Total: 4, Borrowed: 1}, stats)
	s.Clear(ctx)
	assert.False(t, s.Has(ctx, core.CacheKeyStats))
}

func TestFileBackend(t *testing.T) {
	b, err := NewFileBackend(filepath.Join(t.TempDir(), "nested", "cache"))
	require.NoError(t, err)
	exerciseBackend(t, b)
}

func TestFileBackend_OneFilePerKey(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFileBackend(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, b.Set(ctx, "a/b", []byte(`1`)))
	require.NoError(t, b.Set(ctx, "c", []byte(`2`)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"a%2Fb.json", "c.json"}, names, "no temp files left behind")
}

func TestFileBackend_RequiresDir(t *testing.T) {
	_, err := NewFileBackend("")
	require.Error(t, err)
}

func TestFileBackend_UnwritableDirFallsBack(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	dir := t.TempDir()
	b, err := NewFileBackend(dir)
	require.NoError(t, err)
	require.NoError(t, os.Chmod(dir, 0o500))
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })

	s := New(context.Background(), b, Options{})
	assert.False(t, s.Available(), "probe write fails on a read-only directory")
}

func TestSQLiteBackend(t *testing.T) {
	store, err := storage.NewSQLite(storage.SQLiteConfig{Path: filepath.Join(t.TempDir(), "cache.db")})
	require.NoError(t, err)
	defer store.Close()

	b, err := NewSQLiteBackend(store.SQLiteDB())
	require.NoError(t, err)
	exerciseBackend(t, b)
}

func TestSQLiteBackend_RequiresDB(t *testing.T) {
	_, err := NewSQLiteBackend(nil)
	require.Error(t, err)
}

func TestNewBackend(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		cfg := &config.Config{Cache: config.CacheConfig{Backend: config.BackendMemory}}
		res, err := NewBackend(ctx, cfg)
		require.NoError(t, err)
		assert.Nil(t, res.Backend)
		require.NoError(t, res.Close())
	})

	t.Run("file", func(t *testing.T) {
		cfg := &config.Config{Cache: config.CacheConfig{Backend: config.BackendFile, Dir: t.TempDir()}}
		res, err := NewBackend(ctx, cfg)
		require.NoError(t, err)
		assert.Equal(t, "file", res.Backend.Name())
		assert.Nil(t, res.Storage)
		require.NoError(t, res.Close())
	})

	t.Run("sqlite", func(t *testing.T) {
		cfg := &config.Config{
			Cache:   config.CacheConfig{Backend: config.BackendSQLite},
			Storage: config.StorageConfig{SQLite: config.SQLiteStorageConfig{Path: filepath.Join(t.TempDir(), "c.db")}},
		}
		res, err := NewBackend(ctx, cfg)
		require.NoError(t, err)
		assert.Equal(t, "sqlite", res.Backend.Name())
		require.NotNil(t, res.Storage)
		require.NoError(t, res.Close())
	})

	t.Run("postgresql without url", func(t *testing.T) {
		cfg := &config.Config{Cache: config.CacheConfig{Backend: config.BackendPostgreSQL}}
		_, err := NewBackend(ctx, cfg)
		require.Error(t, err)
	})

	t.Run("nil config", func(t *testing.T) {
		_, err := NewBackend(ctx, nil)
		require.Error(t, err)
	})
}
