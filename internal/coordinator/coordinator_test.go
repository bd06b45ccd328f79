package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maulanalegowo31-cloud/tvri-equipment-system/config"
	"github.com/maulanalegowo31-cloud/tvri-equipment-system/internal/cache"
	"github.com/maulanalegowo31-cloud/tvri-equipment-system/internal/core"
)

const testEndpoint = "https://script.google.com/macros/s/test-deployment/exec"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeTransport records posts and answers them through handle.
type fakeTransport struct {
	mu       sync.Mutex
	posts    []core.Payload
	probes   int
	probeErr error
	handle   func(n int, p core.Payload) (*core.Envelope, error)
}

func (f *fakeTransport) Post(_ context.Context, p core.Payload) (*core.Envelope, error) {
	f.mu.Lock()
	f.posts = append(f.posts, p)
	n := len(f.posts)
	handle := f.handle
	f.mu.Unlock()
	if handle == nil {
		return &core.Envelope{Success: true}, nil
	}
	return handle(n, p)
}

func (f *fakeTransport) Probe(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes++
	return f.probeErr
}

func (f *fakeTransport) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.posts)
}

func (f *fakeTransport) actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.posts))
	for _, p := range f.posts {
		out = append(out, p.Action())
	}
	return out
}

func newTestCoordinator(t *testing.T, tr Transport, mutate func(*Options)) (*Coordinator, *cache.Store, *testClock) {
	t.Helper()
	clock := newTestClock()
	store := cache.New(context.Background(), nil, cache.Options{Now: clock.Now})
	opts := Options{
		Endpoint:   testEndpoint,
		Transport:  tr,
		RetryDelay: 0,
		Now:        clock.Now,
	}
	if mutate != nil {
		mutate(&opts)
	}
	c, err := New(context.Background(), store, opts)
	require.NoError(t, err)
	return c, store, clock
}

func inventoryEnvelope(t *testing.T, inv core.Inventory) *core.Envelope {
	t.Helper()
	raw, err := json.Marshal(inv)
	require.NoError(t, err)
	return &core.Envelope{Success: true, Result: raw}
}

func sampleInventory() core.Inventory {
	return core.Inventory{
		"camera": {
			{Name: "Canon EOS R6", Status: core.StatusAvailable, Condition: "excellent"},
			{Name: "Nikon D850", Status: core.StatusBorrowed, Condition: "good", Borrower: "Ahmad Rizki"},
		},
		"laptop": {
			{Name: "Dell XPS 15", Status: core.StatusAvailable, Condition: "good"},
		},
	}
}

func borrowPayload(t *testing.T, name string) core.Payload {
	t.Helper()
	p, err := core.NewPayload(core.ActionBorrow, core.BorrowRequest{
		BorrowerName:    "Sari Dewi",
		EquipmentType:   "camera",
		EquipmentName:   name,
		BorrowCondition: "good",
	})
	require.NoError(t, err)
	return p
}

func TestNew_Validation(t *testing.T) {
	store := cache.New(context.Background(), nil, cache.Options{})

	_, err := New(context.Background(), nil, Options{Simulation: true})
	require.Error(t, err)

	_, err = New(context.Background(), store, Options{Endpoint: testEndpoint})
	require.Error(t, err, "transport is required outside simulation mode")

	c, err := New(context.Background(), store, Options{Simulation: true, RetryDelay: -1})
	require.NoError(t, err)
	st := c.Stats()
	assert.Equal(t, DefaultMaxAttempts, st.RetryAttempts)
	assert.Equal(t, DefaultRetryDelay, st.RetryDelay)
	assert.True(t, st.Simulation)
	assert.True(t, st.Online)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := &config.Config{
		Endpoint: config.EndpointConfig{URL: testEndpoint, SimulationMode: true, SimulationDelayMin: time.Millisecond, SimulationDelayMax: 2 * time.Millisecond},
		Retry:    config.RetryConfig{MaxAttempts: 4, Delay: 3 * time.Second},
	}
	opts := OptionsFromConfig(cfg)
	assert.Equal(t, testEndpoint, opts.Endpoint)
	assert.True(t, opts.Simulation)
	assert.Equal(t, 4, opts.MaxAttempts)
	assert.Equal(t, 3*time.Second, opts.RetryDelay)
	assert.Equal(t, 2*time.Millisecond, opts.SimulationDelayMax)
}

func TestRequest_RetriesUntilSuccess(t *testing.T) {
	tr := &fakeTransport{handle: func(n int, _ core.Payload) (*core.Envelope, error) {
		if n < 3 {
			return nil, core.NewConnectivityError("dial failed", nil)
		}
		return &core.Envelope{Success: true}, nil
	}}
	c, _, _ := newTestCoordinator(t, tr, nil)

	env, err := c.Request(context.Background(), core.Payload{"action": core.ActionGetInventory})
	require.NoError(t, err)
	assert.True(t, env.Success)
	assert.Equal(t, 3, tr.calls())
	assert.True(t, c.Online())
}

func TestRequest_ExhaustedAttempts(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantOnline bool
	}{
		{"transport failure goes offline", core.NewHTTPStatusError(502), false},
		{"connectivity failure goes offline", core.NewConnectivityError("dial failed", nil), false},
		{"application failure stays online", core.NewApplicationError("sheet locked"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &fakeTransport{handle: func(int, core.Payload) (*core.Envelope, error) {
				return nil, tt.err
			}}
			c, _, _ := newTestCoordinator(t, tr, nil)

			_, err := c.Request(context.Background(), borrowPayload(t, "Canon EOS R6"))
			require.Error(t, err)
			assert.Equal(t, core.TypeOf(tt.err), core.TypeOf(err))
			assert.Equal(t, DefaultMaxAttempts, tr.calls())
			assert.Equal(t, tt.wantOnline, c.Online())
		})
	}
}

func TestRequest_HonoursMaxAttempts(t *testing.T) {
	tr := &fakeTransport{handle: func(int, core.Payload) (*core.Envelope, error) {
		return nil, core.NewHTTPStatusError(500)
	}}
	c, _, _ := newTestCoordinator(t, tr, func(o *Options) { o.MaxAttempts = 5 })

	_, err := c.Request(context.Background(), borrowPayload(t, "x"))
	require.Error(t, err)
	assert.Equal(t, 5, tr.calls())
}

func TestRequest_OfflineFailsFast(t *testing.T) {
	tr := &fakeTransport{}
	c, _, _ := newTestCoordinator(t, tr, nil)
	c.SetConnectivity(context.Background(), false)

	_, err := c.Request(context.Background(), borrowPayload(t, "Canon EOS R6"))
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrConnectivity)
	assert.Zero(t, tr.calls())
}

func TestRequest_PlaceholderEndpoint(t *testing.T) {
	tr := &fakeTransport{}
	c, _, _ := newTestCoordinator(t, tr, func(o *Options) { o.Endpoint = config.DefaultEndpointURL })

	_, err := c.Request(context.Background(), core.Payload{"action": core.ActionGetInventory})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrConfiguration)
	assert.Zero(t, tr.calls())
	assert.True(t, c.Online())
	assert.False(t, c.TestConnection(context.Background()))
	assert.Zero(t, tr.probes)
	assert.False(t, c.Online())
}

func TestRequest_CancelledDuringRetryWait(t *testing.T) {
	tr := &fakeTransport{handle: func(int, core.Payload) (*core.Envelope, error) {
		return nil, core.NewConnectivityError("dial failed", nil)
	}}
	c, _, _ := newTestCoordinator(t, tr, func(o *Options) { o.RetryDelay = time.Hour })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Request(ctx, borrowPayload(t, "x"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, tr.calls())
	assert.True(t, c.Online(), "cancellation is not a connectivity failure")
}

func TestGetInventory_Tiers(t *testing.T) {
	inv := sampleInventory()
	fail := false
	var mu sync.Mutex
	tr := &fakeTransport{handle: func(int, core.Payload) (*core.Envelope, error) {
		mu.Lock()
		defer mu.Unlock()
		if fail {
			return nil, core.NewConnectivityError("dial failed", nil)
		}
		return inventoryEnvelope(t, inv), nil
	}}
	notes := NewChannelNotifier(16)
	c, store, clock := newTestCoordinator(t, tr, func(o *Options) { o.Notifier = notes })
	ctx := context.Background()

	// live fetch populates the cache
	got, err := c.GetInventory(ctx)
	require.NoError(t, err)
	assert.Equal(t, inv, got)
	assert.Equal(t, 1, tr.calls())
	assert.True(t, store.Has(ctx, core.CacheKeyInventory))
	last, ok := c.LastUpdate(ctx)
	require.True(t, ok)
	assert.True(t, last.Equal(clock.Now()))

	// fresh cache hit, no network
	got, err = c.GetInventory(ctx)
	require.NoError(t, err)
	assert.Equal(t, inv, got)
	assert.Equal(t, 1, tr.calls())

	// expired and unreachable: stale copy with a warning
	clock.Advance(cache.DefaultTTL + time.Second)
	mu.Lock()
	fail = true
	mu.Unlock()

	got, err = c.GetInventory(ctx)
	require.NoError(t, err)
	assert.Equal(t, inv, got)
	assert.Equal(t, 1+DefaultMaxAttempts, tr.calls())
	assert.False(t, c.Online())

	var warned bool
	for len(notes.C) > 0 {
		if n := <-notes.C; n.Level == LevelWarning {
			warned = true
		}
	}
	assert.True(t, warned, "stale read emits a warning")
}

func TestGetInventory_NoCacheSurfacesError(t *testing.T) {
	tr := &fakeTransport{handle: func(int, core.Payload) (*core.Envelope, error) {
		return nil, core.NewHTTPStatusError(503)
	}}
	c, _, _ := newTestCoordinator(t, tr, nil)

	_, err := c.GetInventory(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrTransport)
}

func TestGetInventory_UndecodableResult(t *testing.T) {
	tr := &fakeTransport{handle: func(int, core.Payload) (*core.Envelope, error) {
		return &core.Envelope{Success: true, Result: json.RawMessage(`[1,2,3]`)}, nil
	}}
	c, store, _ := newTestCoordinator(t, tr, nil)

	_, err := c.GetInventory(context.Background())
	require.Error(t, err)
	assert.False(t, store.Has(context.Background(), core.CacheKeyInventory))
}

func TestRecordBorrow_InvalidatesDerivedKeys(t *testing.T) {
	tr := &fakeTransport{handle: func(_ int, p core.Payload) (*core.Envelope, error) {
		if p.Action() == core.ActionGetInventory {
			return inventoryEnvelope(t, sampleInventory()), nil
		}
		return &core.Envelope{Success: true, Result: json.RawMessage(`{"action":"borrow"}`)}, nil
	}}
	c, store, _ := newTestCoordinator(t, tr, nil)
	ctx := context.Background()

	_, err := c.GetBorrowedEquipment(ctx)
	require.NoError(t, err)
	_, err = c.GetStats(ctx)
	require.NoError(t, err)
	for _, key := range core.InventoryDerivedKeys() {
		require.True(t, store.Has(ctx, key), key)
	}

	env, err := c.RecordBorrow(ctx, core.BorrowRequest{
		BorrowerName:    "Sari Dewi",
		EquipmentType:   "camera",
		EquipmentName:   "Canon EOS R6",
		BorrowCondition: "good",
	})
	require.NoError(t, err)
	assert.True(t, env.Success)

	for _, key := range core.InventoryDerivedKeys() {
		assert.False(t, store.Has(ctx, key), key)
	}
	assert.True(t, store.Has(ctx, core.CacheKeyLastUpdate), "last update is not inventory-derived")
}

func TestRecordReturn_FailureKeepsCache(t *testing.T) {
	tr := &fakeTransport{handle: func(_ int, p core.Payload) (*core.Envelope, error) {
		if p.Action() == core.ActionGetInventory {
			return inventoryEnvelope(t, sampleInventory()), nil
		}
		return &core.Envelope{Success: false, Error: "not borrowed"}, core.NewApplicationError("not borrowed")
	}}
	c, store, _ := newTestCoordinator(t, tr, nil)
	ctx := context.Background()

	_, err := c.GetInventory(ctx)
	require.NoError(t, err)

	_, err = c.RecordReturn(ctx, core.ReturnRequest{ReturnBorrowerName: "Sari Dewi", ReturnEquipmentName: "Dell XPS 15", ReturnCondition: "good"})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrApplication)
	assert.Contains(t, err.Error(), "not borrowed")
	assert.True(t, store.Has(ctx, core.CacheKeyInventory))
}

func TestDerivedViews(t *testing.T) {
	tr := &fakeTransport{handle: func(int, core.Payload) (*core.Envelope, error) {
		return inventoryEnvelope(t, sampleInventory()), nil
	}}
	c, _, _ := newTestCoordinator(t, tr, nil)
	ctx := context.Background()

	items, err := c.GetBorrowedEquipment(ctx)
	require.NoError(t, err)
	assert.Equal(t, []core.BorrowedItem{{Name: "Nikon D850", Type: "camera", Borrower: "Ahmad Rizki"}}, items)

	st, err := c.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.InventoryStats{Total: 3, Available: 2, Borrowed: 1}, st)

	// both views are served from cache afterwards
	_, err = c.GetBorrowedEquipment(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, tr.calls())

	_, err = c.ForceRefresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, tr.calls())
}

func TestProcessQueue_FIFOWithRequeue(t *testing.T) {
	var c *Coordinator
	tr := &fakeTransport{}
	tr.handle = func(_ int, p core.Payload) (*core.Envelope, error) {
		switch p["equipmentName"] {
		case "A":
			// queued while the replay is running
			c.QueueRequest(context.Background(), borrowPayload(t, "D"))
		case "B":
			return &core.Envelope{Success: false, Error: "rejected"}, core.NewApplicationError("rejected")
		}
		return &core.Envelope{Success: true}, nil
	}
	c, _, _ = newTestCoordinator(t, tr, nil)
	ctx := context.Background()

	for _, name := range []string{"A", "B", "C"} {
		c.QueueRequest(ctx, borrowPayload(t, name))
	}

	res := c.ProcessQueue(ctx)
	assert.Equal(t, 2, res.Replayed)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 2, res.Remaining)

	var names []any
	for _, q := range c.Pending() {
		names = append(names, q.Payload["equipmentName"])
	}
	assert.Equal(t, []any{"D", "B"}, names)
	assert.True(t, c.Online())
}

func TestProcessQueue_OfflineIsNoop(t *testing.T) {
	tr := &fakeTransport{}
	c, _, _ := newTestCoordinator(t, tr, nil)
	ctx := context.Background()

	c.SetConnectivity(ctx, false)
	c.QueueRequest(ctx, borrowPayload(t, "A"))

	res := c.ProcessQueue(ctx)
	assert.Equal(t, ReplayResult{Remaining: 1}, res)
	assert.Zero(t, tr.calls())
}

func TestQueue_PersistsAcrossInstances(t *testing.T) {
	clock := newTestClock()
	store := cache.New(context.Background(), nil, cache.Options{Now: clock.Now})
	ctx := context.Background()

	first, err := New(ctx, store, Options{Endpoint: testEndpoint, Transport: &fakeTransport{}, Now: clock.Now})
	require.NoError(t, err)
	queued := first.QueueRequest(ctx, borrowPayload(t, "A"))

	tr := &fakeTransport{}
	second, err := New(ctx, store, Options{Endpoint: testEndpoint, Transport: tr, Now: clock.Now})
	require.NoError(t, err)
	pending := second.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, queued.ID, pending[0].ID)
	assert.Equal(t, "A", pending[0].Payload["equipmentName"])

	res := second.ProcessQueue(ctx)
	assert.Equal(t, 1, res.Replayed)
	assert.False(t, store.Has(ctx, core.CacheKeyPendingRequests))
}

func TestSetConnectivity_ReplaysOnReconnect(t *testing.T) {
	tr := &fakeTransport{}
	notes := NewChannelNotifier(16)
	c, _, _ := newTestCoordinator(t, tr, func(o *Options) { o.Notifier = notes })
	ctx := context.Background()

	c.SetConnectivity(ctx, false)
	c.QueueRequest(ctx, borrowPayload(t, "A"))
	c.QueueRequest(ctx, borrowPayload(t, "B"))
	assert.Zero(t, tr.calls())

	c.SetConnectivity(ctx, true)
	assert.Equal(t, []string{core.ActionBorrow, core.ActionBorrow}, tr.actions())
	assert.Empty(t, c.Pending())

	var levels []Level
	for len(notes.C) > 0 {
		levels = append(levels, (<-notes.C).Level)
	}
	assert.Contains(t, levels, LevelError)
	assert.Contains(t, levels, LevelSuccess)
}

func TestWatch(t *testing.T) {
	tr := &fakeTransport{}
	c, _, _ := newTestCoordinator(t, tr, nil)
	ctx := context.Background()

	c.QueueRequest(ctx, borrowPayload(t, "A"))

	signals := make(chan bool, 3)
	signals <- false
	signals <- false
	signals <- true
	close(signals)
	c.Watch(ctx, signals)

	assert.True(t, c.Online())
	assert.Equal(t, 1, tr.calls())
	assert.Empty(t, c.Pending())
}

func TestWatch_StopsOnContext(t *testing.T) {
	c, _, _ := newTestCoordinator(t, &fakeTransport{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		c.Watch(ctx, make(chan bool))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after cancellation")
	}
}

func TestTestConnection(t *testing.T) {
	tr := &fakeTransport{probeErr: errors.New("boom")}
	c, _, _ := newTestCoordinator(t, tr, nil)
	ctx := context.Background()

	assert.False(t, c.TestConnection(ctx))
	assert.False(t, c.Online())

	// offline requests fail fast without touching the network
	_, err := c.Request(ctx, borrowPayload(t, "B"))
	assert.ErrorIs(t, err, core.ErrConnectivity)
	assert.Zero(t, tr.calls())

	c.QueueRequest(ctx, borrowPayload(t, "A"))
	tr.mu.Lock()
	tr.probeErr = nil
	tr.mu.Unlock()

	assert.True(t, c.TestConnection(ctx))
	assert.True(t, c.Online())
	assert.Equal(t, 1, tr.calls(), "reconnecting replays the queue")
}

func TestStats(t *testing.T) {
	c, _, _ := newTestCoordinator(t, &fakeTransport{}, func(o *Options) {
		o.MaxAttempts = 4
		o.RetryDelay = 250 * time.Millisecond
	})
	c.SetConnectivity(context.Background(), false)
	c.QueueRequest(context.Background(), borrowPayload(t, "A"))

	assert.Equal(t, Stats{
		Endpoint:      testEndpoint,
		Online:        false,
		Queued:        1,
		RetryAttempts: 4,
		RetryDelay:    250 * time.Millisecond,
		Simulation:    false,
	}, c.Stats())
}
