// Package blacklist persists the set of permanently excluded items.
package blacklist

import (
	"fmt"
	"os"
	"strings"

	"github.com/mkaindl/cutd/internal/atomic"
	"github.com/mkaindl/cutd/internal/lock"
)

const lockKey = "blacklist"

// Store is a flat newline-delimited file of display names (name+extension,
// exact match). The file is externally editable; every operation re-reads it
// so manual edits take effect without a restart.
type Store struct {
	path  string
	locks *lock.MutexMap
}

func NewStore(path string, locks *lock.MutexMap) *Store {
	if locks == nil {
		locks = lock.NewMutexMap()
	}
	return &Store{path: path, locks: locks}
}

// Load reads the current set. A missing file is an empty set.
func (s *Store) Load() (map[string]bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]bool{}, nil
		}
		return nil, fmt.Errorf("read blacklist: %w", err)
	}

	set := make(map[string]bool)
	for _, line := range strings.Split(string(data), "\n") {
		name := strings.TrimSpace(line)
		if name == "" || strings.HasPrefix(name, "#") {
			continue
		}
		set[name] = true
	}
	return set, nil
}

// Contains reports whether name is blacklisted.
func (s *Store) Contains(name string) (bool, error) {
	set, err := s.Load()
	if err != nil {
		return false, err
	}
	return set[name], nil
}

// Add appends name to the blacklist. Idempotent; existing lines, ordering and
// comments are preserved on rewrite.
func (s *Store) Add(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("blacklist: empty name")
	}

	s.locks.Lock(lockKey)
	defer s.locks.Unlock(lockKey)

	data, err := os.ReadFile(s.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read blacklist: %w", err)
	}

	content := string(data)
	for _, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) == name {
			return nil
		}
	}

	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	content += name + "\n"

	if err := atomic.WriteFile(s.path, []byte(content), 0644); err != nil {
		return fmt.Errorf("write blacklist: %w", err)
	}
	return nil
}
