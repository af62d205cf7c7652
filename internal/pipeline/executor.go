// Package pipeline invokes the external detection and cutting tools for one
// claimed item and interprets their exit statuses.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/mkaindl/cutd/internal/joblog"
	"github.com/mkaindl/cutd/internal/logging"
	"github.com/mkaindl/cutd/internal/model"
	"github.com/mkaindl/cutd/internal/scan"
)

// Outcome classifies one processing attempt.
type Outcome int

const (
	Success Outcome = iota
	RetryableFailure
	PermanentFailure // cutter reported the blacklist exit code
)

// Result is the interpreted outcome of one attempt.
type Result struct {
	Outcome  Outcome
	Detail   string
	ExitCode int
	OOMHint  bool // cutter exit looked like an out-of-memory kill; diagnostic only
}

// none is the sentinel argv value for an absent optional input.
const none = "none"

// Executor runs probe → repair → detect → cut for claimed items.
type Executor struct {
	cfg        model.PipelineConfig
	targetRoot string
	workDir    string
	jlog       *joblog.Logger
	logger     *logging.Logger
}

func NewExecutor(cfg model.PipelineConfig, targetRoot, workDir string, jlog *joblog.Logger, logger *log.Logger, level logging.Level) *Executor {
	return &Executor{
		cfg:        cfg,
		targetRoot: targetRoot,
		workDir:    workDir,
		jlog:       jlog,
		logger:     logging.New(logger, level, "pipeline"),
	}
}

// Process runs the full pipeline for item under the given attempt id. The
// caller must hold the item's lease. Every stage appends to the shared log;
// the returned Result drives blacklisting and metrics, retry scheduling is
// log-driven.
func (e *Executor) Process(ctx context.Context, item model.WorkItem, attempt string) Result {
	if err := e.jlog.Start(attempt, item.DisplayName); err != nil {
		e.logger.Logf(logging.Warn, "log_append_failed item=%s error=%v", item.DisplayName, err)
	}

	source, skipDetect := e.precheck(ctx, item, attempt)
	edlArg := none
	if !skipDetect {
		edlArg = e.detect(ctx, item, source)
	}
	res := e.cut(ctx, item, source, edlArg)

	switch res.Outcome {
	case Success:
		if err := e.jlog.Success(attempt, item.DisplayName); err != nil {
			e.logger.Logf(logging.Warn, "log_append_failed item=%s error=%v", item.DisplayName, err)
		}
	default:
		code := res.ExitCode
		if err := e.jlog.Failure(attempt, item.DisplayName, joblog.PhaseCut, res.Detail, &code); err != nil {
			e.logger.Logf(logging.Warn, "log_append_failed item=%s error=%v", item.DisplayName, err)
		}
	}
	return res
}

// precheck probes the source for structural readability and attempts one
// best-effort repair (error-tolerant stream copy) on a negative result.
// Returns the path the later stages should read (the repaired copy when one
// was produced, the original source otherwise) and whether detection should
// be skipped. A source that stayed unreadable is not worth running the
// detector over: the attempt proceeds straight to the cutter with no cuts
// known, and a later cut success resets the block outcome.
func (e *Executor) precheck(ctx context.Context, item model.WorkItem, attempt string) (string, bool) {
	if _, _, _, err := e.run(ctx, e.cfg.Probe, map[string]string{"{source}": item.SourcePath}); err == nil {
		return item.SourcePath, false
	}

	e.logger.Logf(logging.Warn, "probe_failed item=%s: attempting repair", item.DisplayName)
	repaired := filepath.Join(e.workDir, "repair", item.RawName)
	if err := os.MkdirAll(filepath.Dir(repaired), 0755); err != nil {
		e.logger.Logf(logging.Warn, "repair_skipped item=%s error=%v", item.DisplayName, err)
		return item.SourcePath, true
	}

	_, _, tail, err := e.run(ctx, e.cfg.Repair, map[string]string{
		"{source}":   item.SourcePath,
		"{repaired}": repaired,
	})
	if err != nil || !fileNonEmpty(repaired) {
		e.logger.Logf(logging.Warn, "repair_failed item=%s error=%v", item.DisplayName, err)
		if lerr := e.jlog.Failure(attempt, item.DisplayName, joblog.PhaseDetect,
			"source unreadable, repair failed: "+tail, nil); lerr != nil {
			e.logger.Logf(logging.Warn, "log_append_failed item=%s error=%v", item.DisplayName, lerr)
		}
		return item.SourcePath, true
	}

	e.logger.Logf(logging.Info, "repair_ok item=%s copy=%s", item.DisplayName, repaired)
	return repaired, false
}

// detect runs the commercial detector and returns the cutter's EDL argument:
// the detected cut list, or the "none" sentinel when detection produced no
// usable cuts. A detector crash is a diagnostic, never an abort; the item
// continues with no cuts known.
func (e *Executor) detect(ctx context.Context, item model.WorkItem, source string) string {
	_, signaled, tail, err := e.run(ctx, e.cfg.Detector, map[string]string{"{source}": source})
	if err != nil {
		reason := "detector_failed"
		if signaled {
			reason = "detector_crashed"
		}
		e.logger.Logf(logging.Warn, "%s item=%s error=%v stderr=%q", reason, item.DisplayName, err, tail)
		return none
	}

	// Detector output convention: the cut list replaces the input's
	// extension, the way comskip names it.
	edlPath := strings.TrimSuffix(source, filepath.Ext(source)) + ".edl"
	if !fileNonEmpty(edlPath) {
		e.logger.Logf(logging.Info, "no_edl item=%s: proceeding without cuts", item.DisplayName)
		return none
	}
	return edlPath
}

// cut invokes the cutting tool and interprets its exit status against the
// configured code table.
func (e *Executor) cut(ctx context.Context, item model.WorkItem, source, edlArg string) Result {
	dest := scan.DestPath(e.targetRoot, item)
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return Result{Outcome: RetryableFailure, Detail: fmt.Sprintf("create destination dir: %v", err)}
	}

	vars := map[string]string{
		"{source}": source,
		"{edl}":    edlArg,
		"{dest}":   dest,
		"{srt}":    orNone(item.SubtitlePath),
		"{txt}":    orNone(item.MetadataPath),
		"{log}":    filepath.Join(e.workDir, "logs", item.DisplayName+".ffmpeg.log"),
	}
	if err := os.MkdirAll(filepath.Join(e.workDir, "logs"), 0755); err != nil {
		e.logger.Logf(logging.Warn, "log_dir_failed error=%v", err)
	}

	code, _, tail, err := e.run(ctx, e.cfg.Cutter, vars)
	switch {
	case err == nil:
		if !fileNonEmpty(dest) {
			return Result{
				Outcome: RetryableFailure,
				Detail:  "cutter exited 0 but output artifact is missing or empty",
			}
		}
		e.logger.Logf(logging.Info, "cut_ok item=%s dest=%s", item.DisplayName, dest)
		return Result{Outcome: Success}

	case code == e.cfg.BlacklistExitCode:
		return Result{
			Outcome:  PermanentFailure,
			Detail:   "cutter reported permanent failure: " + tail,
			ExitCode: code,
		}

	case code == e.cfg.OOMExitCode:
		// Surfaced as a hint only; the failure stays retryable.
		return Result{
			Outcome:  RetryableFailure,
			Detail:   "cutter likely killed out-of-memory: " + tail,
			ExitCode: code,
			OOMHint:  true,
		}

	default:
		return Result{
			Outcome:  RetryableFailure,
			Detail:   fmt.Sprintf("cutter failed: %s", tail),
			ExitCode: code,
		}
	}
}

// run expands the command template and executes it, capturing stderr for
// retry classification. Returns the exit code, whether the process died to a
// signal, and the stderr tail.
func (e *Executor) run(ctx context.Context, template []string, vars map[string]string) (int, bool, string, error) {
	argv := expand(template, vars)
	if len(argv) == 0 {
		return 0, false, "", errors.New("empty command")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	e.logger.Logf(logging.Debug, "exec %s", strings.Join(argv, " "))
	err := cmd.Run()
	tail := stderrTail(stderr.String())
	if err == nil {
		return 0, false, tail, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		signaled := code == -1 // killed by signal, no exit status
		return code, signaled, tail, fmt.Errorf("%s: %w", argv[0], err)
	}
	return -1, false, tail, fmt.Errorf("%s: %w", argv[0], err)
}

func expand(template []string, vars map[string]string) []string {
	argv := make([]string, len(template))
	for i, arg := range template {
		for k, v := range vars {
			arg = strings.ReplaceAll(arg, k, v)
		}
		argv[i] = arg
	}
	return argv
}

func orNone(s string) string {
	if s == "" {
		return none
	}
	return s
}

func fileNonEmpty(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Size() > 0
}

const stderrTailLen = 300

func stderrTail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > stderrTailLen {
		s = "..." + s[len(s)-stderrTailLen:]
	}
	return s
}
