package joblog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Marker phrases of the previous shell pipeline. Old logs written by it are
// still authoritative for retries, so the scanner understands both formats in
// one stream. Legacy lines may carry a timestamp prefix; matching is done by
// substring.
const (
	legacyStartMarker   = "=== Verarbeitung gestartet: "
	legacySuccessMarker = "✓ Video erfolgreich verarbeitet"
)

var legacyFailureMarkers = []string{
	"✗ Python Exit:",             // non-zero exit from the cutting stage
	"✗ Fatale Ausnahme",          // fatal processing exception
	"✗ Ausgabedatei fehlt oder leer", // empty or absent output artifact
}

// Outcomes scans the log from the beginning and returns, per item display
// name, whether its most recent block ended in failure. Within a block the
// last marker wins: a failure followed by a success in the same block reads
// as success. The still-open final block is finalized at end of stream.
func Outcomes(r io.Reader) (map[string]bool, error) {
	last := make(map[string]bool)

	var (
		item   string
		failed bool
		open   bool
	)
	finalize := func() {
		if open {
			last[item] = failed
		}
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		switch kind, name := classify(line); kind {
		case markStart:
			finalize()
			item, failed, open = name, false, true
		case markFailure:
			if open {
				failed = true
			}
		case markSuccess:
			if open {
				failed = false
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan log: %w", err)
	}
	finalize()
	return last, nil
}

// RetrySet returns the display names whose last block outcome was failure.
func RetrySet(r io.Reader) (map[string]bool, error) {
	outcomes, err := Outcomes(r)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool)
	for name, failed := range outcomes {
		if failed {
			set[name] = true
		}
	}
	return set, nil
}

type markKind int

const (
	markNone markKind = iota
	markStart
	markFailure
	markSuccess
)

// classify maps one log line to a block marker. JSON records are the current
// format; anything else is checked against the legacy marker vocabulary and
// otherwise ignored.
func classify(line string) (markKind, string) {
	if strings.HasPrefix(line, "{") {
		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return markNone, ""
		}
		switch {
		case rec.Phase == PhaseStart:
			return markStart, rec.Item
		case rec.Outcome == OutcomeFailed:
			return markFailure, rec.Item
		case rec.Phase == PhaseDone && rec.Outcome == OutcomeOK:
			return markSuccess, rec.Item
		}
		return markNone, ""
	}

	if idx := strings.Index(line, legacyStartMarker); idx >= 0 {
		name := strings.TrimSpace(line[idx+len(legacyStartMarker):])
		name = strings.TrimSuffix(name, " ===")
		return markStart, strings.TrimSpace(name)
	}
	if strings.Contains(line, legacySuccessMarker) {
		return markSuccess, ""
	}
	for _, marker := range legacyFailureMarkers {
		if strings.Contains(line, marker) {
			return markFailure, ""
		}
	}
	return markNone, ""
}
