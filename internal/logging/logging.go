// Package logging provides the leveled logging wrapper shared by the
// worker's components.
package logging

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"
)

// Level controls logging verbosity.
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

// ParseLevel maps a config string to a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return Debug
	case "info":
		return Info
	case "warn", "warning":
		return Warn
	case "error":
		return Error
	default:
		return Info
	}
}

func (l Level) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	default:
		return "INFO"
	}
}

// Logger writes timestamped, component-tagged lines above a minimum level.
type Logger struct {
	out       *log.Logger
	min       Level
	component string
}

// New creates a Logger tagging each line with component. A nil out writes to
// stderr.
func New(out *log.Logger, min Level, component string) *Logger {
	if out == nil {
		out = log.New(os.Stderr, "", 0)
	}
	return &Logger{out: out, min: min, component: component}
}

// Logf writes one line if level clears the minimum.
func (l *Logger) Logf(level Level, format string, args ...any) {
	if level < l.min {
		return
	}
	msg := fmt.Sprintf(format, args...)
	l.out.Printf("%s %s %s: %s", time.Now().Format(time.RFC3339), level, l.component, msg)
}
