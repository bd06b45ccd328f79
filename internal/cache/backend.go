package cache

import "context"

// Backend is a durable key/value store holding serialized cache records.
// Implementations must be safe for concurrent use. A single-key Set must be
// atomic: readers see either the old value or the new one.
type Backend interface {
	// Name identifies the backend in logs and stats.
	Name() string

	// Get returns the stored bytes. A missing key is (nil, false, nil).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases resources owned by the backend. Shared database
	// connections are not owned and stay open.
	Close() error
}
