// Package worker runs the sequential claim → execute → release loop that
// drives one worker process.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mkaindl/cutd/internal/blacklist"
	"github.com/mkaindl/cutd/internal/lease"
	"github.com/mkaindl/cutd/internal/logging"
	"github.com/mkaindl/cutd/internal/metrics"
	"github.com/mkaindl/cutd/internal/model"
	"github.com/mkaindl/cutd/internal/pipeline"
	"github.com/mkaindl/cutd/internal/retry"
	"github.com/mkaindl/cutd/internal/scan"
)

// Stats summarizes one enumeration pass.
type Stats struct {
	Enumerated  int
	Denied      int
	Processed   int
	Failed      int
	Blacklisted int
}

// Runner owns one worker's control flow. Processing is strictly sequential:
// one item at a time, claim before execute, release after. The only
// concurrency is the per-lease heartbeat.
type Runner struct {
	cfg       model.Config
	mgr       *lease.Manager
	exec      *pipeline.Executor
	bl        *blacklist.Store
	collector *metrics.Collector // nil when metrics are disabled
	suffix    *regexp.Regexp

	logger *logging.Logger
}

func NewRunner(cfg model.Config, mgr *lease.Manager, exec *pipeline.Executor, bl *blacklist.Store, collector *metrics.Collector, logger *log.Logger, level logging.Level) (*Runner, error) {
	suffix, err := regexp.Compile(cfg.Scan.TimestampSuffix)
	if err != nil {
		return nil, fmt.Errorf("compile timestamp_suffix %q: %w", cfg.Scan.TimestampSuffix, err)
	}
	return &Runner{
		cfg:       cfg,
		mgr:       mgr,
		exec:      exec,
		bl:        bl,
		collector: collector,
		suffix:    suffix,
		logger:    logging.New(logger, level, "worker"),
	}, nil
}

// SetWatch overrides the configured watch mode, for the CLI flag.
func (r *Runner) SetWatch(on bool) {
	r.cfg.Scan.Watch = on
}

// Pass enumerates the source tree and processes every candidate, optionally
// restricted to the display names in filter. Returns early only on context
// cancellation; per-item failures are logged and counted, never fatal to the
// pass.
func (r *Runner) Pass(ctx context.Context, filter map[string]bool) (Stats, error) {
	res, err := scan.Enumerate(scan.Options{
		SourceRoot:  r.cfg.Paths.SourceRoot,
		TargetRoot:  r.cfg.Paths.TargetRoot,
		Extensions:  r.cfg.Scan.Extensions,
		Suffix:      r.suffix,
		Blacklisted: r.bl.Contains,
	})
	if err != nil {
		return Stats{}, err
	}

	var stats Stats
	for _, item := range res.Items {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if filter != nil && !filter[item.DisplayName] {
			continue
		}
		stats.Enumerated++
		r.processItem(ctx, item, &stats)
	}

	r.logger.Logf(logging.Info, "pass_done enumerated=%d denied=%d processed=%d failed=%d blacklisted=%d skipped_present=%d",
		stats.Enumerated, stats.Denied, stats.Processed, stats.Failed, stats.Blacklisted, res.SkippedPresent)
	return stats, nil
}

// RetryPass scans the shared log for items whose last attempt failed and
// re-runs the claim/execute/release cycle over exactly that set.
func (r *Runner) RetryPass(ctx context.Context) (Stats, error) {
	set, err := retry.Scan(r.cfg.Log.Path, r.bl.Contains)
	if err != nil {
		return Stats{}, err
	}
	if len(set) == 0 {
		r.logger.Logf(logging.Info, "retry_pass_empty")
		return Stats{}, nil
	}
	if r.collector != nil {
		r.collector.RetriesScheduled(len(set))
	}
	r.logger.Logf(logging.Info, "retry_pass candidates=%d", len(set))
	return r.Pass(ctx, set)
}

// processItem claims, executes and releases one item. The heartbeat goroutine
// is scoped to the claim: it is cancelled on every exit path, and a lost
// lease cancels the in-flight external tools.
func (r *Runner) processItem(ctx context.Context, item model.WorkItem, stats *Stats) {
	grant := r.mgr.Claim(item.Key)
	if !grant.Granted {
		stats.Denied++
		if r.collector != nil {
			r.collector.ClaimDenied()
		}
		if grant.Holder != "" {
			r.logger.Logf(logging.Debug, "item_skipped item=%s holder=%s age=%s",
				item.DisplayName, grant.Holder, grant.Age.Round(time.Second))
		}
		return
	}
	if r.collector != nil {
		r.collector.ClaimGranted(grant.Takeover)
		r.collector.SetLeasesHeld(r.mgr.Held())
	}
	defer func() {
		r.mgr.Release(item.Key)
		if r.collector != nil {
			r.collector.SetLeasesHeld(r.mgr.Held())
		}
	}()

	attempt := uuid.NewString()
	r.logger.Logf(logging.Info, "item_start item=%s key=%s attempt=%s takeover=%v",
		item.DisplayName, item.Key, attempt, grant.Takeover)

	itemCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(itemCtx)
	if !grant.Uncoordinated {
		g.Go(func() error {
			err := r.mgr.Heartbeat(gctx, item.Key, r.cfg.Lease.RenewInterval())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	started := time.Now()
	res := r.exec.Process(gctx, item, attempt)
	cancel()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Logf(logging.Warn, "heartbeat_stopped item=%s error=%v", item.DisplayName, err)
	}
	if r.collector != nil {
		r.collector.ObserveItemDuration(time.Since(started))
	}

	switch res.Outcome {
	case pipeline.Success:
		stats.Processed++
		if r.collector != nil {
			r.collector.ItemProcessed()
		}
		r.logger.Logf(logging.Info, "item_done item=%s", item.DisplayName)

	case pipeline.PermanentFailure:
		stats.Blacklisted++
		if r.collector != nil {
			r.collector.ItemBlacklisted()
			r.collector.ItemFailed()
		}
		if err := r.bl.Add(item.DisplayName); err != nil {
			r.logger.Logf(logging.Error, "blacklist_add_failed item=%s error=%v", item.DisplayName, err)
		}
		r.logger.Logf(logging.Warn, "item_blacklisted item=%s exit=%d detail=%s",
			item.DisplayName, res.ExitCode, res.Detail)

	default:
		stats.Failed++
		if r.collector != nil {
			r.collector.ItemFailed()
		}
		if res.OOMHint {
			r.logger.Logf(logging.Warn, "item_failed item=%s exit=%d oom_hint=true detail=%s",
				item.DisplayName, res.ExitCode, res.Detail)
		} else {
			r.logger.Logf(logging.Warn, "item_failed item=%s exit=%d detail=%s",
				item.DisplayName, res.ExitCode, res.Detail)
		}
	}
}

