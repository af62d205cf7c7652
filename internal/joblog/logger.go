// Package joblog reads and writes the shared processing log: one
// self-contained JSON record per line, appended by every worker without
// cross-process coordination.
package joblog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Phases of one processing attempt. A start record opens a LogBlock for its
// item; every later record up to the next start belongs to that block.
const (
	PhaseStart  = "start"
	PhaseDetect = "detect"
	PhaseCut    = "cut"
	PhaseDone   = "done"
)

const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

const archiveDir = "archive"

// Record is one line of the shared log.
type Record struct {
	Time     time.Time `json:"time"`
	Attempt  string    `json:"attempt,omitempty"`
	Item     string    `json:"item"`
	Phase    string    `json:"phase"`
	Outcome  string    `json:"outcome,omitempty"`
	Detail   string    `json:"detail,omitempty"`
	ExitCode *int      `json:"exit_code,omitempty"`
}

// Logger appends records to the shared log file. Each line is written and
// synced in one call, so interleaved appends from multiple workers stay
// line-atomic on POSIX filesystems.
type Logger struct {
	mu          sync.Mutex
	file        *os.File
	path        string
	currentSize int64
	maxSize     int64 // 0 disables rotation
}

// NewLogger opens (or creates) the shared log for appending. maxSize of 0
// disables rotation; rotating the shared log drops failure history from the
// retry scan, so it is off by default.
func NewLogger(path string, maxSize int64) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	l := &Logger{path: path, maxSize: maxSize}
	if err := l.open(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Logger) open() error {
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	l.file = file
	l.currentSize = stat.Size()
	return nil
}

// Append writes one record. A zero Time is stamped with the current time.
func (l *Logger) Append(rec Record) error {
	if rec.Time.IsZero() {
		rec.Time = time.Now().UTC()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal log record: %w", err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.maxSize > 0 && l.currentSize+int64(len(data)) > l.maxSize {
		if err := l.rotate(); err != nil {
			return fmt.Errorf("rotate log: %w", err)
		}
	}

	n, err := l.file.Write(data)
	if err != nil {
		return fmt.Errorf("write log record: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("sync log file: %w", err)
	}
	l.currentSize += int64(n)
	return nil
}

// Start opens a new block for item.
func (l *Logger) Start(attempt, item string) error {
	return l.Append(Record{Attempt: attempt, Item: item, Phase: PhaseStart})
}

// Success terminates the current block for item with the success marker.
func (l *Logger) Success(attempt, item string) error {
	return l.Append(Record{Attempt: attempt, Item: item, Phase: PhaseDone, Outcome: OutcomeOK})
}

// Failure records a failure marker inside item's block.
func (l *Logger) Failure(attempt, item, phase, detail string, exitCode *int) error {
	return l.Append(Record{
		Attempt: attempt, Item: item, Phase: phase,
		Outcome: OutcomeFailed, Detail: detail, ExitCode: exitCode,
	})
}

func (l *Logger) rotate() error {
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("close current log: %w", err)
	}

	dir := filepath.Join(filepath.Dir(l.path), archiveDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create archive directory: %w", err)
	}

	stamp := time.Now().Format("20060102_150405")
	archive := filepath.Join(dir, fmt.Sprintf("%s.%s", filepath.Base(l.path), stamp))
	if err := os.Rename(l.path, archive); err != nil {
		return fmt.Errorf("archive log file: %w", err)
	}
	return l.open()
}

// Close syncs and closes the log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	if err := l.file.Sync(); err != nil {
		return err
	}
	return l.file.Close()
}
