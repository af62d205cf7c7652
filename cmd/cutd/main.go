package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"syscall"
	"time"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/mkaindl/cutd/internal/atomic"
	"github.com/mkaindl/cutd/internal/blacklist"
	"github.com/mkaindl/cutd/internal/edl"
	"github.com/mkaindl/cutd/internal/joblog"
	"github.com/mkaindl/cutd/internal/lease"
	"github.com/mkaindl/cutd/internal/lock"
	"github.com/mkaindl/cutd/internal/logging"
	"github.com/mkaindl/cutd/internal/metrics"
	"github.com/mkaindl/cutd/internal/model"
	"github.com/mkaindl/cutd/internal/pipeline"
	"github.com/mkaindl/cutd/internal/retry"
	"github.com/mkaindl/cutd/internal/scan"
	"github.com/mkaindl/cutd/internal/worker"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runWorker(os.Args[2:])
	case "retry":
		runRetry(os.Args[2:])
	case "status":
		runStatus(os.Args[2:])
	case "blacklist":
		runBlacklist(os.Args[2:])
	case "cut":
		runCut(os.Args[2:])
	case "init":
		runInit(os.Args[2:])
	case "version":
		fmt.Printf("cutd %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`cutd - coordinated commercial-cut pipeline worker

Usage:
  cutd run [-config FILE] [-once] [-watch] [-retry]   Run the worker loop
  cutd retry [-config FILE] [-apply]         Show (or process) the retry set
  cutd status [-config FILE]                 Show leases and pending items
  cutd blacklist <list|add NAME> [-config FILE]
  cutd cut <input> <edl|none> <output> [srt|none] [txt|none] [log|none]
  cutd init [-config FILE]                   Create work dir and default config
  cutd version`)
}

// app bundles the wired components of one worker process.
type app struct {
	cfg       model.Config
	mgr       *lease.Manager
	runner    *worker.Runner
	jlog      *joblog.Logger
	bl        *blacklist.Store
	collector *metrics.Collector
	guard     *lock.FileLock
}

func setup(cfgPath string, withGuard bool) (*app, error) {
	cfg, err := model.LoadConfig(cfgPath)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.Paths.WorkDir, 0755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}

	rt := &app{cfg: cfg}

	if withGuard {
		rt.guard = lock.NewFileLock(filepath.Join(cfg.Paths.WorkDir, "worker.lock"))
		if err := rt.guard.TryLock(); err != nil {
			return nil, err
		}
	}

	logger := log.New(os.Stderr, "", 0)
	level := cfg.Logging.Level

	store, err := lease.NewFSStore(cfg.Lease.Dir)
	if err != nil {
		// Unwritable lease store must not kill a single-worker deployment;
		// the manager degrades to uncoordinated grants.
		logger.Printf("%s WARN cutd: lease store unavailable: %v", time.Now().Format(time.RFC3339), err)
	}
	var leaseStore lease.Store = store
	if store == nil {
		leaseStore = unusableStore{err: err}
	}
	rt.mgr = lease.NewManager(leaseStore, lease.NewOwnerID(), cfg.Lease.Timeout(), logger, logging.ParseLevel(level))

	rt.jlog, err = joblog.NewLogger(cfg.Log.Path, cfg.Log.MaxSizeBytes)
	if err != nil {
		return nil, err
	}

	rt.bl = blacklist.NewStore(filepath.Join(cfg.Paths.WorkDir, "blacklist"), lock.NewMutexMap())

	if cfg.Metrics.Addr != "" {
		collector, registry := metrics.NewCollector()
		rt.collector = collector
		go func() {
			if err := metrics.Serve(cfg.Metrics.Addr, registry); err != nil {
				logger.Printf("%s WARN cutd: %v", time.Now().Format(time.RFC3339), err)
			}
		}()
	}

	exec := pipeline.NewExecutor(cfg.Pipeline, cfg.Paths.TargetRoot, cfg.Paths.WorkDir,
		rt.jlog, logger, logging.ParseLevel(level))

	rt.runner, err = worker.NewRunner(cfg, rt.mgr, exec, rt.bl, rt.collector, logger, logging.ParseLevel(level))
	if err != nil {
		return nil, err
	}
	return rt, nil
}

func (rt *app) close() {
	if rt.jlog != nil {
		rt.jlog.Close()
	}
	if rt.guard != nil {
		rt.guard.Unlock()
	}
}

func runWorker(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "", "path to config file")
	once := fs.Bool("once", false, "run a single pass and exit")
	watch := fs.Bool("watch", false, "watch the source root for new recordings")
	withRetry := fs.Bool("retry", false, "include a retry pass before the regular pass")
	fs.Parse(args)

	rt, err := setup(*cfgPath, true)
	if err != nil {
		fatal(err)
	}
	if *watch {
		rt.runner.SetWatch(true)
	}
	defer rt.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *withRetry {
		if _, err := rt.runner.RetryPass(ctx); err != nil && ctx.Err() == nil {
			fatal(err)
		}
	}

	if *once {
		stats, err := rt.runner.RunOnce(ctx)
		if err != nil && ctx.Err() == nil {
			fatal(err)
		}
		fmt.Printf("processed=%d failed=%d blacklisted=%d denied=%d\n",
			stats.Processed, stats.Failed, stats.Blacklisted, stats.Denied)
		return
	}

	if err := rt.runner.Run(ctx); err != nil && ctx.Err() == nil {
		fatal(err)
	}
}

func runRetry(args []string) {
	fs := flag.NewFlagSet("retry", flag.ExitOnError)
	cfgPath := fs.String("config", "", "path to config file")
	apply := fs.Bool("apply", false, "process the retry set instead of printing it")
	fs.Parse(args)

	if *apply {
		rt, err := setup(*cfgPath, true)
		if err != nil {
			fatal(err)
		}
		defer rt.close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		defer rt.mgr.ReleaseAll()

		stats, err := rt.runner.RetryPass(ctx)
		if err != nil && ctx.Err() == nil {
			fatal(err)
		}
		fmt.Printf("processed=%d failed=%d blacklisted=%d denied=%d\n",
			stats.Processed, stats.Failed, stats.Blacklisted, stats.Denied)
		return
	}

	cfg, err := model.LoadConfig(*cfgPath)
	if err != nil {
		fatal(err)
	}
	bl := blacklist.NewStore(filepath.Join(cfg.Paths.WorkDir, "blacklist"), nil)
	set, err := retry.Scan(cfg.Log.Path, bl.Contains)
	if err != nil {
		fatal(err)
	}
	for _, name := range retry.Names(set) {
		fmt.Println(name)
	}
}

func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	cfgPath := fs.String("config", "", "path to config file")
	fs.Parse(args)

	cfg, err := model.LoadConfig(*cfgPath)
	if err != nil {
		fatal(err)
	}

	store, err := lease.NewFSStore(cfg.Lease.Dir)
	if err != nil {
		fatal(err)
	}
	keys, err := store.Keys()
	if err != nil {
		fatal(err)
	}

	timeout := cfg.Lease.Timeout()
	fmt.Printf("leases (%d):\n", len(keys))
	for _, key := range keys {
		rec, err := store.Read(key)
		if err != nil {
			fmt.Printf("  %s  <unreadable: %v>\n", key, err)
			continue
		}
		age := time.Since(rec.Time).Round(time.Second)
		state := "live"
		if age >= timeout {
			state = "stale"
		}
		fmt.Printf("  %s  owner=%s age=%s epoch=%d %s\n", key, rec.Owner, age, rec.Epoch, state)
	}

	bl := blacklist.NewStore(filepath.Join(cfg.Paths.WorkDir, "blacklist"), nil)
	res, err := scan.Enumerate(scan.Options{
		SourceRoot:  cfg.Paths.SourceRoot,
		TargetRoot:  cfg.Paths.TargetRoot,
		Extensions:  cfg.Scan.Extensions,
		Suffix:      mustSuffix(cfg.Scan.TimestampSuffix),
		Blacklisted: bl.Contains,
	})
	if err != nil {
		fatal(err)
	}
	fmt.Printf("pending items: %d (skipped: %d present, %d blacklisted)\n",
		len(res.Items), res.SkippedPresent, res.SkippedBlacklisted)
}

func runBlacklist(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: cutd blacklist <list|add NAME> [-config FILE]")
		os.Exit(1)
	}
	sub := args[0]
	rest := args[1:]

	var name string
	if sub == "add" {
		if len(rest) < 1 {
			fmt.Fprintln(os.Stderr, "usage: cutd blacklist add NAME [-config FILE]")
			os.Exit(1)
		}
		name = rest[0]
		rest = rest[1:]
	}

	fs := flag.NewFlagSet("blacklist", flag.ExitOnError)
	cfgPath := fs.String("config", "", "path to config file")
	fs.Parse(rest)

	cfg, err := model.LoadConfig(*cfgPath)
	if err != nil {
		fatal(err)
	}
	bl := blacklist.NewStore(filepath.Join(cfg.Paths.WorkDir, "blacklist"), lock.NewMutexMap())

	switch sub {
	case "list":
		set, err := bl.Load()
		if err != nil {
			fatal(err)
		}
		for _, n := range retry.Names(set) {
			fmt.Println(n)
		}
	case "add":
		if err := bl.Add(name); err != nil {
			fatal(err)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown blacklist subcommand: %s\n", sub)
		os.Exit(1)
	}
}

// runCut implements the cutter CLI. The argv contract is shared with shell
// wrappers: positional arguments, "none" for absent optionals, exit codes
// from the fixed table.
func runCut(args []string) {
	if len(args) < 3 {
		fmt.Fprintln(os.Stderr, "usage: cutd cut <input> <edl|none> <output> [srt|none] [txt|none] [log|none]")
		os.Exit(edl.ExitUsage)
	}

	opts := edl.CutOptions{
		Input:  args[0],
		EDL:    noneToEmpty(args[1]),
		Output: args[2],
	}
	if len(args) > 3 {
		opts.Subtitle = noneToEmpty(args[3])
	}
	if len(args) > 4 {
		opts.Metadata = noneToEmpty(args[4])
	}
	if len(args) > 5 {
		opts.LogFile = noneToEmpty(args[5])
	}

	os.Exit(edl.RunCut(opts))
}

func runInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	cfgPath := fs.String("config", "cutd.yaml", "config file to create")
	fs.Parse(args)

	cfg := model.ApplyDefaults(model.Config{})

	for _, d := range []string{cfg.Paths.WorkDir, cfg.Lease.Dir,
		filepath.Join(cfg.Paths.WorkDir, "logs"),
		filepath.Join(cfg.Paths.WorkDir, "repair")} {
		if err := os.MkdirAll(d, 0755); err != nil {
			fatal(fmt.Errorf("create directory %s: %w", d, err))
		}
	}

	if _, err := os.Stat(*cfgPath); err == nil {
		fatal(fmt.Errorf("%s already exists", *cfgPath))
	}
	data, err := yamlv3.Marshal(cfg)
	if err != nil {
		fatal(err)
	}
	if err := atomic.WriteFile(*cfgPath, data, 0644); err != nil {
		fatal(err)
	}
	fmt.Printf("initialized %s and %s\n", cfg.Paths.WorkDir, *cfgPath)
}

// unusableStore stands in when the lease store root cannot even be created;
// every operation fails so the manager degrades to uncoordinated grants.
type unusableStore struct{ err error }

func (u unusableStore) Create(string) error               { return u.err }
func (u unusableStore) Read(string) (lease.Record, error) { return lease.Record{}, u.err }
func (u unusableStore) Write(string, lease.Record) error  { return u.err }
func (u unusableStore) Remove(string) error               { return u.err }
func (u unusableStore) Keys() ([]string, error)           { return nil, u.err }
func (u unusableStore) Stat(string) (time.Time, error)    { return time.Time{}, u.err }

func mustSuffix(pattern string) *regexp.Regexp {
	re, err := regexp.Compile(pattern)
	if err != nil {
		fatal(fmt.Errorf("compile timestamp_suffix %q: %w", pattern, err))
	}
	return re
}

func noneToEmpty(s string) string {
	if s == "none" {
		return ""
	}
	return s
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "cutd: %v\n", err)
	os.Exit(1)
}
