// Package cache provides a key/value store with per-entry expiration.
//
// Records are kept in a durable Backend when one is available and working,
// with an in-memory map as fallback. The store never returns errors: every
// failure is logged and degrades to an absent value, a zero count or the
// memory fallback.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/maulanalegowo31-cloud/tvri-equipment-system/internal/core"
)

const (
	// DefaultTTL applies when Set is called with a non-positive ttl.
	DefaultTTL = 5 * time.Minute

	probeKey = "__invtracker_probe__"
)

// Record is the persisted layout of one cache entry. Times are unix
// milliseconds.
type Record struct {
	Data       json.RawMessage `json:"data"`
	Timestamp  int64           `json:"timestamp"`
	Expiration int64           `json:"expiration"`
}

// Metadata describes a record without evicting it, even when expired.
type Metadata struct {
	Data          json.RawMessage `json:"data"`
	Timestamp     time.Time       `json:"timestamp"`
	Expiration    time.Time       `json:"expiration"`
	Age           time.Duration   `json:"age"`
	TimeRemaining time.Duration   `json:"time_remaining"`
	IsExpired     bool            `json:"is_expired"`
	IsValid       bool            `json:"is_valid"`
}

// StoreStats summarizes the store for diagnostics.
type StoreStats struct {
	Backend      string `json:"backend"`
	Available    bool   `json:"available"`
	FallbackUsed bool   `json:"fallback_used"`
	Items        int    `json:"items"`
	TotalSize    int    `json:"total_size"`
}

// Options configures a Store.
type Options struct {
	// DefaultTTL replaces non-positive ttl arguments. Defaults to DefaultTTL.
	DefaultTTL time.Duration
	// Keys is the fixed key set swept by Cleanup and removed by Clear.
	// Defaults to core.CacheKeys().
	Keys []string
	// Now is the clock. Defaults to time.Now.
	Now    func() time.Time
	Logger *slog.Logger
}

// Store is the cache store. It is safe for concurrent use.
type Store struct {
	primary    Backend
	defaultTTL time.Duration
	keys       []string
	now        func() time.Time
	logger     *slog.Logger

	// writeMu serializes every mutation together with the read that
	// decided it. Lock order is writeMu, then mu.
	writeMu sync.Mutex

	mu       sync.RWMutex
	fallback map[string][]byte
	// tombstones hide backend records whose delete failed until the key is
	// written again or a later sweep manages the delete.
	tombstones map[string]struct{}
}

// New creates a Store. A non-nil backend is probed by writing and deleting
// a probe key; if either step fails the store runs memory-only. The choice
// is made once and not revisited.
func New(ctx context.Context, backend Backend, opts Options) *Store {
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = DefaultTTL
	}
	if opts.Keys == nil {
		opts.Keys = core.CacheKeys()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Store{
		defaultTTL: opts.DefaultTTL,
		keys:       slices.Clone(opts.Keys),
		now:        opts.Now,
		logger:     opts.Logger,
		fallback:   make(map[string][]byte),
		tombstones: make(map[string]struct{}),
	}

	if backend != nil {
		if err := probe(ctx, backend); err != nil {
			s.logger.Warn("cache backend unavailable, using memory only",
				"backend", backend.Name(), "error", err)
		} else {
			s.primary = backend
		}
	}
	return s
}

func probe(ctx context.Context, b Backend) error {
	if err := b.Set(ctx, probeKey, []byte(`"test"`)); err != nil {
		return err
	}
	return b.Delete(ctx, probeKey)
}

// Available reports whether a durable backend is in use.
func (s *Store) Available() bool {
	return s.primary != nil
}

// BackendName returns the durable backend name, or "memory".
func (s *Store) BackendName() string {
	if s.primary == nil {
		return "memory"
	}
	return s.primary.Name()
}

// Set stores payload under key for ttl (DefaultTTL when ttl <= 0),
// replacing any existing record.
func (s *Store) Set(ctx context.Context, key string, payload any, ttl time.Duration) {
	raw, ok := s.encode(key, payload, ttl)
	if !ok {
		return
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.storeLocked(ctx, key, raw)
}

func (s *Store) encode(key string, payload any, ttl time.Duration) ([]byte, bool) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("cache set: payload not serializable", "key", key, "error", err)
		return nil, false
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	now := s.now()
	rec := Record{
		Data:       data,
		Timestamp:  now.UnixMilli(),
		Expiration: now.Add(ttl).UnixMilli(),
	}
	if rec.Expiration <= rec.Timestamp {
		rec.Expiration = rec.Timestamp + 1
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		s.logger.Error("cache set: record not serializable", "key", key, "error", err)
		return nil, false
	}
	return raw, true
}

func (s *Store) storeLocked(ctx context.Context, key string, raw []byte) {
	if s.primary != nil {
		err := s.primary.Set(ctx, key, raw)
		if err == nil {
			s.mu.Lock()
			delete(s.fallback, key)
			delete(s.tombstones, key)
			s.mu.Unlock()
			return
		}
		s.logger.Warn("cache set: backend write failed, using memory fallback",
			"key", key, "backend", s.primary.Name(), "error", err)
		// the fallback copy wins on reads; dropping the older durable copy
		// keeps other processes from reading it
		if err := s.primary.Delete(ctx, key); err != nil {
			s.logger.Debug("cache set: stale backend record not removed", "key", key, "error", err)
		}
	}

	s.mu.Lock()
	s.fallback[key] = raw
	delete(s.tombstones, key)
	s.mu.Unlock()
	if s.primary != nil {
		fallbackWrites.Inc()
	}
}

// Get returns the payload stored under key. Expired records are removed
// and reported absent.
func (s *Store) Get(ctx context.Context, key string) (json.RawMessage, bool) {
	rec, ok := s.load(ctx, key)
	if !ok {
		return nil, false
	}
	if !s.expired(rec) {
		return rec.Data, true
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	// a Set may have replaced the record since it was read
	rec, ok = s.load(ctx, key)
	if !ok {
		return nil, false
	}
	if !s.expired(rec) {
		return rec.Data, true
	}
	s.removeLocked(ctx, key)
	evictions.WithLabelValues("read").Inc()
	return nil, false
}

func (s *Store) expired(rec Record) bool {
	return s.now().UnixMilli() >= rec.Expiration
}

// Lookup decodes the payload stored under key into T.
// A payload that does not decode into T is reported absent.
func Lookup[T any](ctx context.Context, s *Store, key string) (T, bool) {
	var out T
	data, ok := s.Get(ctx, key)
	if !ok {
		return out, false
	}
	if err := json.Unmarshal(data, &out); err != nil {
		s.logger.Warn("cache lookup: payload does not decode", "key", key, "error", err)
		var zero T
		return zero, false
	}
	return out, true
}

// Has reports whether key holds an unexpired record.
func (s *Store) Has(ctx context.Context, key string) bool {
	_, ok := s.Get(ctx, key)
	return ok
}

// Remove deletes key from the backend and the memory fallback. A backend
// record that cannot be deleted is hidden until key is written again.
func (s *Store) Remove(ctx context.Context, key string) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.removeLocked(ctx, key)
}

// removeLocked reports whether the backend delete succeeded. The key reads
// as absent either way.
func (s *Store) removeLocked(ctx context.Context, key string) bool {
	s.mu.Lock()
	delete(s.fallback, key)
	s.mu.Unlock()

	if s.primary == nil {
		return true
	}
	if err := s.primary.Delete(ctx, key); err != nil {
		s.logger.Warn("cache remove failed", "key", key, "backend", s.primary.Name(), "error", err)
		s.mu.Lock()
		s.tombstones[key] = struct{}{}
		s.mu.Unlock()
		return false
	}
	s.mu.Lock()
	delete(s.tombstones, key)
	s.mu.Unlock()
	return true
}

// GetWithMetadata returns the record under key with its timing metadata.
// Expired records are returned too and are not evicted.
func (s *Store) GetWithMetadata(ctx context.Context, key string) (*Metadata, bool) {
	rec, ok := s.load(ctx, key)
	if !ok {
		return nil, false
	}
	now := s.now()
	written := time.UnixMilli(rec.Timestamp)
	expires := time.UnixMilli(rec.Expiration)
	expired := now.UnixMilli() >= rec.Expiration

	remaining := expires.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	return &Metadata{
		Data:          rec.Data,
		Timestamp:     written,
		Expiration:    expires,
		Age:           now.Sub(written),
		TimeRemaining: remaining,
		IsExpired:     expired,
		IsValid:       !expired,
	}, true
}

// Cleanup evicts every expired record reachable through the known key set
// or the memory fallback and returns the number evicted. Deletes that
// failed earlier are retried.
func (s *Store) Cleanup(ctx context.Context) int {
	removed := 0
	for _, key := range s.sweepKeys() {
		if s.evictExpired(ctx, key) {
			removed++
		}
	}
	s.retryTombstones(ctx)
	sweeps.Inc()
	evictions.WithLabelValues("sweep").Add(float64(removed))
	if removed > 0 {
		s.logger.Debug("cache cleanup", "removed", removed)
	}
	return removed
}

func (s *Store) evictExpired(ctx context.Context, key string) bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	rec, ok := s.load(ctx, key)
	if !ok || !s.expired(rec) {
		return false
	}
	return s.removeLocked(ctx, key)
}

func (s *Store) retryTombstones(ctx context.Context) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.RLock()
	keys := slices.Collect(maps.Keys(s.tombstones))
	s.mu.RUnlock()
	for _, key := range keys {
		if err := s.primary.Delete(ctx, key); err != nil {
			continue
		}
		s.mu.Lock()
		delete(s.tombstones, key)
		s.mu.Unlock()
	}
}

func (s *Store) sweepKeys() []string {
	keys := slices.Clone(s.keys)
	s.mu.RLock()
	for k := range s.fallback {
		if !slices.Contains(keys, k) {
			keys = append(keys, k)
		}
	}
	s.mu.RUnlock()
	return keys
}

// Clear removes the known keys from the backend and empties the memory
// fallback. Backend data under other keys is left alone.
func (s *Store) Clear(ctx context.Context) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	clear(s.fallback)
	s.mu.Unlock()

	if s.primary == nil {
		return
	}
	for _, key := range s.keys {
		if err := s.primary.Delete(ctx, key); err != nil {
			s.logger.Warn("cache clear failed", "key", key, "backend", s.primary.Name(), "error", err)
			s.mu.Lock()
			s.tombstones[key] = struct{}{}
			s.mu.Unlock()
			continue
		}
		s.mu.Lock()
		delete(s.tombstones, key)
		s.mu.Unlock()
	}
}

// Touch re-stores an unexpired record with the default TTL.
// It reports whether the record existed.
func (s *Store) Touch(ctx context.Context, key string) bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	rec, ok := s.load(ctx, key)
	if !ok || s.expired(rec) {
		return false
	}
	raw, ok := s.encode(key, rec.Data, 0)
	if !ok {
		return false
	}
	s.storeLocked(ctx, key, raw)
	return true
}

// SetMultiple stores every entry with the same ttl.
func (s *Store) SetMultiple(ctx context.Context, entries map[string]any, ttl time.Duration) {
	for _, key := range slices.Sorted(maps.Keys(entries)) {
		s.Set(ctx, key, entries[key], ttl)
	}
}

// GetMultiple returns the unexpired payloads among keys.
func (s *Store) GetMultiple(ctx context.Context, keys []string) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(keys))
	for _, key := range keys {
		if data, ok := s.Get(ctx, key); ok {
			out[key] = data
		}
	}
	return out
}

// Stats counts the records reachable through the known key set and the
// memory fallback. Expired records are counted until they are evicted.
func (s *Store) Stats(ctx context.Context) StoreStats {
	s.mu.RLock()
	fallbackUsed := len(s.fallback) > 0
	s.mu.RUnlock()

	st := StoreStats{
		Backend:      s.BackendName(),
		Available:    s.Available(),
		FallbackUsed: fallbackUsed,
	}
	for _, key := range s.sweepKeys() {
		raw, ok := s.loadRaw(ctx, key)
		if !ok {
			continue
		}
		st.Items++
		st.TotalSize += len(key) + len(raw)
	}
	return st
}

// loadRaw prefers the memory fallback: a fallback record is always newer
// than the backend copy, since a successful backend write drops it.
func (s *Store) loadRaw(ctx context.Context, key string) ([]byte, bool) {
	s.mu.RLock()
	raw, ok := s.fallback[key]
	_, removed := s.tombstones[key]
	s.mu.RUnlock()
	if ok {
		return raw, true
	}
	if removed || s.primary == nil {
		return nil, false
	}

	raw, ok, err := s.primary.Get(ctx, key)
	if err != nil {
		s.logger.Warn("cache read failed", "key", key, "backend", s.primary.Name(), "error", err)
		return nil, false
	}
	return raw, ok
}

func (s *Store) load(ctx context.Context, key string) (Record, bool) {
	raw, ok := s.loadRaw(ctx, key)
	if !ok {
		return Record{}, false
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		s.logger.Warn("cache record corrupt", "key", key, "error", err)
		return Record{}, false
	}
	return rec, true
}
