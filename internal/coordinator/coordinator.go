// Package coordinator mediates every exchange with the inventory endpoint.
//
// It owns the retry loop, the connectivity state, the offline write queue,
// the three-tier inventory read (fresh cache, live fetch, stale cache) and
// the simulation mode that answers requests without any network.
package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/maulanalegowo31-cloud/tvri-equipment-system/config"
	"github.com/maulanalegowo31-cloud/tvri-equipment-system/internal/cache"
	"github.com/maulanalegowo31-cloud/tvri-equipment-system/internal/core"
)

// Defaults applied by New to zero-valued Options.
const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 2 * time.Second
)

// Options configures a Coordinator.
type Options struct {
	// Endpoint is the endpoint URL. A placeholder URL makes every
	// non-simulated request fail with a configuration error.
	Endpoint string
	// Transport performs network exchanges. Required unless Simulation is set.
	Transport Transport

	Simulation         bool
	SimulationDelayMin time.Duration
	SimulationDelayMax time.Duration

	// MaxAttempts bounds the network attempts per request. Defaults to 3.
	MaxAttempts int
	// RetryDelay is the constant wait between attempts. Negative means
	// DefaultRetryDelay; zero retries immediately.
	RetryDelay time.Duration

	Notifier Notifier
	Logger   *slog.Logger
	Now      func() time.Time
}

// OptionsFromConfig maps loaded configuration onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Endpoint:           cfg.Endpoint.URL,
		Simulation:         cfg.Endpoint.SimulationMode,
		SimulationDelayMin: cfg.Endpoint.SimulationDelayMin,
		SimulationDelayMax: cfg.Endpoint.SimulationDelayMax,
		MaxAttempts:        cfg.Retry.MaxAttempts,
		RetryDelay:         cfg.Retry.Delay,
	}
}

// Stats is a snapshot of the coordinator state.
type Stats struct {
	Endpoint      string        `json:"endpoint"`
	Online        bool          `json:"online"`
	Queued        int           `json:"queued"`
	RetryAttempts int           `json:"retry_attempts"`
	RetryDelay    time.Duration `json:"retry_delay"`
	Simulation    bool          `json:"simulation"`
}

// Coordinator is safe for concurrent use.
type Coordinator struct {
	store       *cache.Store
	transport   Transport
	simulator   *Simulator
	endpoint    string
	placeholder bool
	delayMin    time.Duration
	delayMax    time.Duration
	maxAttempts int
	retryDelay  time.Duration
	notifier    Notifier
	logger      *slog.Logger
	now         func() time.Time

	mu         sync.Mutex
	online     bool
	lastDigest uint64

	queueMu sync.Mutex
	queue   []QueuedRequest
}

// New creates a Coordinator. The connectivity state starts Online and any
// queue persisted by a previous process is restored.
func New(ctx context.Context, store *cache.Store, opts Options) (*Coordinator, error) {
	if store == nil {
		return nil, errors.New("coordinator: cache store is required")
	}
	if opts.Transport == nil && !opts.Simulation {
		return nil, errors.New("coordinator: transport is required outside simulation mode")
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.SimulationDelayMax < opts.SimulationDelayMin {
		opts.SimulationDelayMax = opts.SimulationDelayMin
	}
	if opts.Notifier == nil {
		opts.Notifier = nopNotifier{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	c := &Coordinator{
		store:       store,
		transport:   opts.Transport,
		endpoint:    opts.Endpoint,
		placeholder: config.EndpointConfig{URL: opts.Endpoint}.IsPlaceholder(),
		delayMin:    opts.SimulationDelayMin,
		delayMax:    opts.SimulationDelayMax,
		maxAttempts: opts.MaxAttempts,
		retryDelay:  opts.RetryDelay,
		notifier:    opts.Notifier,
		logger:      opts.Logger,
		now:         opts.Now,
		online:      true,
	}
	if opts.Simulation {
		c.simulator = NewSimulator(store, opts.Now, opts.Logger)
	}
	onlineGauge.Set(1)
	c.loadQueue(ctx)
	return c, nil
}

// Simulator returns the simulator, or nil outside simulation mode.
func (c *Coordinator) Simulator() *Simulator {
	return c.simulator
}

// Online reports the current connectivity state.
func (c *Coordinator) Online() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

// Request sends payload to the endpoint, or to the simulator in simulation
// mode. Network attempts are bounded by MaxAttempts with a constant delay in
// between; the last error is returned once they are exhausted.
func (c *Coordinator) Request(ctx context.Context, payload core.Payload) (*core.Envelope, error) {
	action := payload.Action()
	env, err := c.request(ctx, payload)
	requestsTotal.WithLabelValues(action, outcomeOf(err)).Inc()
	return env, err
}

func (c *Coordinator) request(ctx context.Context, payload core.Payload) (*core.Envelope, error) {
	if c.simulator != nil {
		if err := c.simulateDelay(ctx); err != nil {
			return nil, err
		}
		return c.simulator.Handle(ctx, payload)
	}

	if !c.Online() {
		return nil, core.NewConnectivityError("no internet connection", nil)
	}
	if c.placeholder {
		return nil, core.NewConfigurationError("inventory endpoint URL is not configured, contact the administrator")
	}

	action := payload.Action()
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			c.logger.Debug("retrying request", "action", action, "attempt", attempt, "delay", c.retryDelay)
			if err := sleep(ctx, c.retryDelay); err != nil {
				return nil, err
			}
		}

		attemptsTotal.Inc()
		env, err := c.transport.Post(ctx, payload)
		if err == nil {
			c.setOnline(ctx, true)
			return env, nil
		}
		lastErr = err
		c.logger.Warn("request attempt failed",
			"action", action, "attempt", attempt, "max_attempts", c.maxAttempts, "error", err)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	if core.IsNetworkFailure(lastErr) {
		c.setOnline(ctx, false)
	}
	return nil, lastErr
}

func (c *Coordinator) simulateDelay(ctx context.Context) error {
	d := c.delayMin
	if spread := c.delayMax - c.delayMin; spread > 0 {
		d += rand.N(spread + 1)
	}
	return sleep(ctx, d)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// GetInventory returns the inventory from the freshest source available:
// an unexpired cache record, then a live fetch, then an expired cache record.
func (c *Coordinator) GetInventory(ctx context.Context) (core.Inventory, error) {
	inv, _, err := c.getInventory(ctx)
	return inv, err
}

func (c *Coordinator) getInventory(ctx context.Context) (core.Inventory, string, error) {
	if meta, ok := c.store.GetWithMetadata(ctx, core.CacheKeyInventory); ok && meta.IsValid {
		if inv, err := decodeInventory(meta.Data); err == nil {
			inventoryReads.WithLabelValues(tierCache).Inc()
			return inv, tierCache, nil
		}
	}

	inv, err := c.fetchInventory(ctx)
	if err == nil {
		inventoryReads.WithLabelValues(tierLive).Inc()
		return inv, tierLive, nil
	}

	if meta, ok := c.store.GetWithMetadata(ctx, core.CacheKeyInventory); ok {
		if stale, decodeErr := decodeInventory(meta.Data); decodeErr == nil {
			c.logger.Warn("serving stale inventory", "age", meta.Age, "error", err)
			c.notify(LevelWarning, "Using cached data because the server could not be reached")
			inventoryReads.WithLabelValues(tierStale).Inc()
			return stale, tierStale, nil
		}
	}
	return nil, "", err
}

func (c *Coordinator) fetchInventory(ctx context.Context) (core.Inventory, error) {
	env, err := c.Request(ctx, core.Payload{"action": core.ActionGetInventory})
	if err != nil {
		return nil, err
	}
	inv := core.Inventory{}
	if err := env.DecodeResult(&inv); err != nil {
		return nil, err
	}

	now := c.now()
	c.store.Set(ctx, core.CacheKeyInventory, inv, 0)
	c.store.Set(ctx, core.CacheKeyLastUpdate, formatTimestamp(now), 0)

	digest := inv.Digest()
	c.mu.Lock()
	changed := digest != c.lastDigest
	c.lastDigest = digest
	c.mu.Unlock()
	c.logger.Info("inventory fetched",
		"categories", len(inv), "digest", fmt.Sprintf("%016x", digest), "changed", changed)
	return inv, nil
}

func decodeInventory(data json.RawMessage) (core.Inventory, error) {
	var inv core.Inventory
	if err := json.Unmarshal(data, &inv); err != nil {
		return nil, err
	}
	if inv == nil {
		inv = core.Inventory{}
	}
	return inv, nil
}

// RecordBorrow submits a borrow and invalidates inventory-derived caches on success.
func (c *Coordinator) RecordBorrow(ctx context.Context, req core.BorrowRequest) (*core.Envelope, error) {
	payload, err := core.NewPayload(core.ActionBorrow, req)
	if err != nil {
		return nil, err
	}
	return c.write(ctx, payload)
}

// RecordReturn submits a return and invalidates inventory-derived caches on success.
func (c *Coordinator) RecordReturn(ctx context.Context, req core.ReturnRequest) (*core.Envelope, error) {
	payload, err := core.NewPayload(core.ActionReturn, req)
	if err != nil {
		return nil, err
	}
	return c.write(ctx, payload)
}

func (c *Coordinator) write(ctx context.Context, payload core.Payload) (*core.Envelope, error) {
	env, err := c.Request(ctx, payload)
	if err != nil {
		return nil, err
	}
	c.invalidateInventory(ctx)
	return env, nil
}

func (c *Coordinator) invalidateInventory(ctx context.Context) {
	for _, key := range core.InventoryDerivedKeys() {
		c.store.Remove(ctx, key)
	}
}

// GetBorrowedEquipment returns the borrowed-items view derived from the inventory.
func (c *Coordinator) GetBorrowedEquipment(ctx context.Context) ([]core.BorrowedItem, error) {
	if items, ok := cache.Lookup[[]core.BorrowedItem](ctx, c.store, core.CacheKeyBorrowedItems); ok && items != nil {
		return items, nil
	}
	inv, tier, err := c.getInventory(ctx)
	if err != nil {
		return nil, err
	}
	items := inv.Borrowed()
	if tier != tierStale {
		c.store.Set(ctx, core.CacheKeyBorrowedItems, items, 0)
	}
	return items, nil
}

// GetStats returns inventory counts by status.
func (c *Coordinator) GetStats(ctx context.Context) (core.InventoryStats, error) {
	if st, ok := cache.Lookup[core.InventoryStats](ctx, c.store, core.CacheKeyStats); ok {
		return st, nil
	}
	inv, tier, err := c.getInventory(ctx)
	if err != nil {
		return core.InventoryStats{}, err
	}
	st := inv.Stats()
	if tier != tierStale {
		c.store.Set(ctx, core.CacheKeyStats, st, 0)
	}
	return st, nil
}

// ForceRefresh drops the cached inventory views and reads again.
func (c *Coordinator) ForceRefresh(ctx context.Context) (core.Inventory, error) {
	c.invalidateInventory(ctx)
	return c.GetInventory(ctx)
}

// LastUpdate returns the time of the last live inventory fetch, if cached.
func (c *Coordinator) LastUpdate(ctx context.Context) (time.Time, bool) {
	raw, ok := cache.Lookup[string](ctx, c.store, core.CacheKeyLastUpdate)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// TestConnection probes the endpoint. Simulation mode always succeeds.
// A successful probe marks the coordinator Online, a failed one Offline.
func (c *Coordinator) TestConnection(ctx context.Context) bool {
	if c.simulator != nil {
		return true
	}
	if c.placeholder {
		c.setOnline(ctx, false)
		return false
	}
	if err := c.transport.Probe(ctx); err != nil {
		c.logger.Warn("connection test failed", "endpoint", c.endpoint, "error", err)
		c.setOnline(ctx, false)
		return false
	}
	c.setOnline(ctx, true)
	return true
}

// SetConnectivity applies an externally observed connectivity change.
// Going from Offline to Online replays the queue.
func (c *Coordinator) SetConnectivity(ctx context.Context, online bool) {
	c.setOnline(ctx, online)
}

// Watch applies connectivity signals until ctx is done or signals is closed.
func (c *Coordinator) Watch(ctx context.Context, signals <-chan bool) {
	for {
		select {
		case <-ctx.Done():
			return
		case online, ok := <-signals:
			if !ok {
				return
			}
			c.setOnline(ctx, online)
		}
	}
}

func (c *Coordinator) setOnline(ctx context.Context, online bool) {
	c.mu.Lock()
	changed := c.online != online
	c.online = online
	c.mu.Unlock()
	if !changed {
		return
	}

	if online {
		onlineGauge.Set(1)
		c.logger.Info("connectivity restored", "endpoint", c.endpoint)
		c.notify(LevelSuccess, "Connection restored")
		c.ProcessQueue(ctx)
		return
	}
	onlineGauge.Set(0)
	c.logger.Warn("connectivity lost", "endpoint", c.endpoint)
	c.notify(LevelError, "No internet connection")
}

// Stats returns a snapshot of the coordinator state.
func (c *Coordinator) Stats() Stats {
	return Stats{
		Endpoint:      c.endpoint,
		Online:        c.Online(),
		Queued:        c.queueLen(),
		RetryAttempts: c.maxAttempts,
		RetryDelay:    c.retryDelay,
		Simulation:    c.simulator != nil,
	}
}

func (c *Coordinator) notify(level Level, message string) {
	c.notifier.Notify(Notification{Level: level, Message: message, Time: c.now()})
}
