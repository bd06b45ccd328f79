package coordinator

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/maulanalegowo31-cloud/tvri-equipment-system/internal/cache"
	"github.com/maulanalegowo31-cloud/tvri-equipment-system/internal/core"
)

// PendingTTL is how long the persisted offline queue survives without
// being rewritten.
const PendingTTL = 7 * 24 * time.Hour

// QueuedRequest is a write waiting for connectivity.
type QueuedRequest struct {
	ID         string       `json:"id"`
	Payload    core.Payload `json:"payload"`
	EnqueuedAt time.Time    `json:"enqueued_at"`
}

// ReplayResult summarizes one ProcessQueue run.
type ReplayResult struct {
	Replayed  int `json:"replayed"`
	Failed    int `json:"failed"`
	Remaining int `json:"remaining"`
}

// QueueRequest appends payload to the offline queue and persists it.
func (c *Coordinator) QueueRequest(ctx context.Context, payload core.Payload) QueuedRequest {
	entry := QueuedRequest{
		ID:         uuid.NewString(),
		Payload:    payload,
		EnqueuedAt: c.now(),
	}

	c.queueMu.Lock()
	c.queue = append(c.queue, entry)
	n := len(c.queue)
	c.persistQueueLocked(ctx)
	c.queueMu.Unlock()

	c.logger.Info("request queued for later", "id", entry.ID, "action", payload.Action(), "queued", n)
	c.notify(LevelInfo, "Request saved and will be sent when the connection is back")
	return entry
}

// Pending returns a copy of the offline queue, oldest first.
func (c *Coordinator) Pending() []QueuedRequest {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()
	return slices.Clone(c.queue)
}

// ProcessQueue replays a snapshot of the queue in FIFO order. Entries that
// fail again are re-appended at the tail, after anything queued meanwhile.
// It does nothing while Offline.
func (c *Coordinator) ProcessQueue(ctx context.Context) ReplayResult {
	if !c.Online() {
		return ReplayResult{Remaining: c.queueLen()}
	}

	c.queueMu.Lock()
	snapshot := c.queue
	c.queue = nil
	if len(snapshot) > 0 {
		c.persistQueueLocked(ctx)
	}
	c.queueMu.Unlock()

	var res ReplayResult
	if len(snapshot) == 0 {
		return res
	}

	c.logger.Info("replaying queued requests", "count", len(snapshot))
	for _, entry := range snapshot {
		if _, err := c.Request(ctx, entry.Payload); err != nil {
			c.logger.Warn("queued request failed, re-queued", "id", entry.ID, "action", entry.Payload.Action(), "error", err)
			c.queueMu.Lock()
			c.queue = append(c.queue, entry)
			c.persistQueueLocked(ctx)
			c.queueMu.Unlock()
			res.Failed++
			continue
		}
		res.Replayed++
	}

	if res.Replayed > 0 {
		c.invalidateInventory(ctx)
		c.notify(LevelSuccess, "Queued requests sent")
	}
	if res.Failed > 0 {
		c.notify(LevelWarning, "Some queued requests could not be sent and remain queued")
	}
	res.Remaining = c.queueLen()
	c.logger.Info("queue replay finished", "replayed", res.Replayed, "failed", res.Failed, "remaining", res.Remaining)
	return res
}

func (c *Coordinator) queueLen() int {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()
	return len(c.queue)
}

// persistQueueLocked writes the queue to the cache store. Callers hold queueMu.
func (c *Coordinator) persistQueueLocked(ctx context.Context) {
	queueLength.Set(float64(len(c.queue)))
	if len(c.queue) == 0 {
		c.store.Remove(ctx, core.CacheKeyPendingRequests)
		return
	}
	c.store.Set(ctx, core.CacheKeyPendingRequests, c.queue, PendingTTL)
}

func (c *Coordinator) loadQueue(ctx context.Context) {
	pending, ok := cache.Lookup[[]QueuedRequest](ctx, c.store, core.CacheKeyPendingRequests)
	if !ok || len(pending) == 0 {
		return
	}
	c.queueMu.Lock()
	c.queue = pending
	queueLength.Set(float64(len(pending)))
	c.queueMu.Unlock()
	c.logger.Info("restored queued requests", "count", len(pending))
}
