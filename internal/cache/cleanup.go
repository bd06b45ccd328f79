package cache

import (
	"context"
	"time"
)

// CleanupInterval is how often the sweep runs when no interval is given.
const CleanupInterval = 5 * time.Minute

// RunCleanupLoop sweeps expired records every interval until ctx is done.
func (s *Store) RunCleanupLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = CleanupInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Cleanup(ctx)
		case <-ctx.Done():
			return
		}
	}
}
