// Package lease implements the shared-filesystem lease protocol that keeps
// at most one worker active per item without a central coordinator.
package lease

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mkaindl/cutd/internal/atomic"
	"github.com/mkaindl/cutd/internal/model"
)

var (
	// ErrExists is returned by Create when the key is already claimed.
	ErrExists = errors.New("lease already exists")
	// ErrNotFound is returned when a key has no lease or no readable record.
	ErrNotFound = errors.New("lease not found")
)

// Record is the claim stored under a key: who holds it, when it was last
// renewed, and a fencing epoch that increments on every takeover.
type Record struct {
	Owner string
	Time  time.Time
	Epoch int
}

// Store is the narrow contract against the shared claim store. Callers never
// touch the underlying representation, so the medium can be swapped without
// changing the manager.
type Store interface {
	// Create atomically claims key if absent; ErrExists when already claimed.
	Create(key string) error
	Read(key string) (Record, error)
	Write(key string, rec Record) error
	Remove(key string) error
	Keys() ([]string, error)
	// Stat reports when the key's claim was last touched, independent of the
	// record file. Lets the manager age out claims whose record never got
	// written; ErrNotFound when the key is not claimed at all.
	Stat(key string) (time.Time, error)
}

// FSStore keeps one directory per key under root. Directory creation is the
// only primitive assumed atomic and eventually visible on the shared mount;
// the record lives in a file named "owner" inside the key directory, textual
// format "ownerID:unixTimestamp[:epoch]". The epoch field is tolerated but
// ignored by older readers.
type FSStore struct {
	root string
}

const recordFile = "owner"

func NewFSStore(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create lease store root: %w", err)
	}
	return &FSStore{root: root}, nil
}

func (s *FSStore) Create(key string) error {
	err := os.Mkdir(filepath.Join(s.root, key), 0755)
	if err == nil {
		return nil
	}
	if os.IsExist(err) {
		return ErrExists
	}
	return fmt.Errorf("create lease dir: %w", err)
}

func (s *FSStore) Read(key string) (Record, error) {
	data, err := os.ReadFile(filepath.Join(s.root, key, recordFile))
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("read lease record: %w", err)
	}
	rec, err := parseRecord(strings.TrimSpace(string(data)))
	if err != nil {
		return Record{}, fmt.Errorf("lease record for %s: %w", key, err)
	}
	return rec, nil
}

func (s *FSStore) Write(key string, rec Record) error {
	line := fmt.Sprintf("%s:%d:%d\n", rec.Owner, rec.Time.Unix(), rec.Epoch)
	path := filepath.Join(s.root, key, recordFile)
	if err := atomic.WriteFile(path, []byte(line), 0644); err != nil {
		return fmt.Errorf("write lease record: %w", err)
	}
	return nil
}

func (s *FSStore) Remove(key string) error {
	if err := os.RemoveAll(filepath.Join(s.root, key)); err != nil {
		return fmt.Errorf("remove lease dir: %w", err)
	}
	return nil
}

func (s *FSStore) Stat(key string) (time.Time, error) {
	info, err := os.Stat(filepath.Join(s.root, key))
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, ErrNotFound
		}
		return time.Time{}, fmt.Errorf("stat lease dir: %w", err)
	}
	return info.ModTime(), nil
}

func (s *FSStore) Keys() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read lease store: %w", err)
	}
	var keys []string
	for _, e := range entries {
		if e.IsDir() && model.ValidKey(e.Name()) {
			keys = append(keys, e.Name())
		}
	}
	return keys, nil
}

func parseRecord(line string) (Record, error) {
	if line == "" {
		return Record{}, ErrNotFound
	}
	parts := strings.Split(line, ":")
	if len(parts) < 2 {
		return Record{}, fmt.Errorf("malformed record %q", line)
	}
	ts, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("malformed timestamp in %q: %w", line, err)
	}
	rec := Record{Owner: parts[0], Time: time.Unix(ts, 0)}
	if len(parts) >= 3 {
		// Epoch is best-effort; a missing or garbled field reads as 0.
		rec.Epoch, _ = strconv.Atoi(parts[2])
	}
	return rec, nil
}
