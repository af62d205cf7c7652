package worker

import (
	"context"
	"errors"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mkaindl/cutd/internal/logging"
)

// Run executes passes until ctx is cancelled: an immediate pass, then one per
// scan interval, plus debounced passes triggered by filesystem events when
// watch mode is on. All held leases are released before returning.
func (r *Runner) Run(ctx context.Context) error {
	defer r.mgr.ReleaseAll()

	var events chan struct{}
	if r.cfg.Scan.Watch {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return err
		}
		defer watcher.Close()
		// Watches the root only: recordings land flat or the interval pass
		// picks up deeper additions.
		if err := watcher.Add(r.cfg.Paths.SourceRoot); err != nil {
			return err
		}
		events = make(chan struct{}, 1)
		go forwardEvents(ctx, watcher, events, r)
	}

	if _, err := r.Pass(ctx, nil); err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Logf(logging.Error, "pass_failed error=%v", err)
	}

	interval := time.Duration(r.cfg.Scan.IntervalSec) * time.Second
	debounce := time.Duration(r.cfg.Scan.DebounceSec) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pending *time.Timer
	var pendingC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			if _, err := r.Pass(ctx, nil); err != nil && !errors.Is(err, context.Canceled) {
				r.logger.Logf(logging.Error, "pass_failed error=%v", err)
			}

		case <-events:
			// Debounce: recorders write large files over minutes, one event
			// storm should trigger one pass.
			if pending == nil {
				pending = time.NewTimer(debounce)
				pendingC = pending.C
			} else {
				if !pending.Stop() {
					<-pending.C
				}
				pending.Reset(debounce)
			}

		case <-pendingC:
			pending = nil
			pendingC = nil
			if _, err := r.Pass(ctx, nil); err != nil && !errors.Is(err, context.Canceled) {
				r.logger.Logf(logging.Error, "pass_failed error=%v", err)
			}
		}
	}
}

// RunOnce executes a single pass with cleanup, for cron-style deployments.
func (r *Runner) RunOnce(ctx context.Context) (Stats, error) {
	defer r.mgr.ReleaseAll()
	return r.Pass(ctx, nil)
}

func forwardEvents(ctx context.Context, watcher *fsnotify.Watcher, events chan<- struct{}, r *Runner) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			select {
			case events <- struct{}{}:
			default:
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			r.logger.Logf(logging.Warn, "watch_error error=%v", err)
		}
	}
}
