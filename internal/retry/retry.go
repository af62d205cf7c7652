// Package retry derives the retry set from the shared processing log.
package retry

import (
	"fmt"
	"os"
	"sort"

	"github.com/mkaindl/cutd/internal/joblog"
)

// Scan reads the shared log and returns the display names whose most recent
// attempt block ended in failure, minus blacklisted names. A missing log file
// yields an empty set. The result is a set, not a queue; no ordering or
// priority among candidates is implied.
func Scan(logPath string, blacklisted func(string) (bool, error)) (map[string]bool, error) {
	f, err := os.Open(logPath)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]bool{}, nil
		}
		return nil, fmt.Errorf("open log %s: %w", logPath, err)
	}
	defer f.Close()

	set, err := joblog.RetrySet(f)
	if err != nil {
		return nil, err
	}

	if blacklisted != nil {
		for name := range set {
			listed, err := blacklisted(name)
			if err != nil {
				return nil, fmt.Errorf("blacklist check for %s: %w", name, err)
			}
			if listed {
				delete(set, name)
			}
		}
	}
	return set, nil
}

// Names returns the retry set sorted for stable display output.
func Names(set map[string]bool) []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
