package lease

import (
	"context"
	"time"
)

// Heartbeat renews key at the given interval until ctx is cancelled. The
// renewal interval must be well below the lease timeout (the configured
// default is timeout/12) to ride out scheduling jitter and slow shared-mount
// round trips.
//
// Returns ctx.Err() on cancellation, ErrLeaseLost when a renewal discovers a
// foreign owner. The caller scopes ctx to the claim so the ticker cannot
// outlive the lease on any exit path.
func (m *Manager) Heartbeat(ctx context.Context, key string, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if !m.Renew(key) {
				return ErrLeaseLost
			}
		}
	}
}
