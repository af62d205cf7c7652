package lease

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mkaindl/cutd/internal/logging"
)

// Grant is the outcome of a claim attempt.
type Grant struct {
	Granted  bool
	Takeover bool // granted by evicting a stale lease
	// Uncoordinated marks a grant issued because the store is unusable.
	// A single worker against an unwritable store keeps processing; it just
	// gets no cross-worker exclusion.
	Uncoordinated bool
	Epoch         int

	// Denial diagnostics.
	Holder string
	Age    time.Duration
}

// ErrLeaseLost signals that a held lease was taken over by another owner.
var ErrLeaseLost = errors.New("lease lost to another owner")

// Manager runs the claim/renew/release protocol against a Store on behalf of
// one owner identity.
type Manager struct {
	store   Store
	owner   string
	timeout time.Duration
	now     func() time.Time

	logger *logging.Logger

	mu       sync.Mutex
	held     map[string]int // key → epoch
	degraded bool           // warned about an unusable store already
}

// NewManager creates a Manager. A nil logger writes to stderr; now defaults
// to time.Now and exists as a hook for takeover tests.
func NewManager(store Store, owner string, timeout time.Duration, logger *log.Logger, level logging.Level) *Manager {
	return &Manager{
		store:   store,
		owner:   owner,
		timeout: timeout,
		now:     time.Now,
		logger:  logging.New(logger, level, "lease"),
		held:    make(map[string]int),
	}
}

// Owner returns this manager's owner identity.
func (m *Manager) Owner() string {
	return m.owner
}

// SetClock overrides the time source. Test hook.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// NewOwnerID builds a process-unique owner identity. Host and pid make it
// readable in diagnostics; the random suffix guards against pid reuse. Colons
// are stripped because they delimit fields in the on-disk record.
func NewOwnerID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	host = strings.ReplaceAll(host, ":", "_")
	return fmt.Sprintf("%s#%d#%s", host, os.Getpid(), uuid.NewString()[:8])
}

// Claim attempts to take the lease for key. It never fails hard: an unusable
// store degrades to an uncoordinated grant, a lost race or live holder is a
// plain denial.
func (m *Manager) Claim(key string) Grant {
	err := m.store.Create(key)
	switch {
	case err == nil:
		return m.finishClaim(key, 1, false)

	case errors.Is(err, ErrExists):
		return m.claimExisting(key)

	default:
		// Read-only mount, transient I/O error: proceed without coordination
		// rather than stalling the pipeline.
		m.warnDegraded(err)
		return Grant{Granted: true, Uncoordinated: true}
	}
}

// claimExisting runs the staleness check against a pre-existing lease.
func (m *Manager) claimExisting(key string) Grant {
	rec, err := m.store.Read(key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return m.claimRecordless(key)
		}
		m.logger.Logf(logging.Warn, "claim_denied key=%s reason=record_unreadable error=%v", key, err)
		return Grant{}
	}

	age := m.now().Sub(rec.Time)
	if age < m.timeout {
		m.logger.Logf(logging.Debug, "claim_denied key=%s holder=%s age=%s", key, rec.Owner, age.Round(time.Second))
		return Grant{Holder: rec.Owner, Age: age}
	}

	// Stale lease: evict and re-claim. Two workers can both reach this point;
	// the post-takeover re-read below decides the winner.
	m.logger.Logf(logging.Warn, "lease_stale key=%s holder=%s age=%s timeout=%s",
		key, rec.Owner, age.Round(time.Second), m.timeout)

	return m.takeOver(key, rec.Epoch+1)
}

// claimRecordless handles a key directory with no readable record: either a
// claim in flight, or the leftover of a worker that crashed between creating
// the directory and writing its record. The directory's own timestamp
// substitutes for the missing record in the staleness check, so such
// leftovers cannot block an item forever.
func (m *Manager) claimRecordless(key string) Grant {
	created, err := m.store.Stat(key)
	if err != nil {
		m.logger.Logf(logging.Debug, "claim_denied key=%s reason=claim_in_flight", key)
		return Grant{}
	}

	age := m.now().Sub(created)
	if age < m.timeout {
		m.logger.Logf(logging.Debug, "claim_denied key=%s reason=claim_in_flight age=%s", key, age.Round(time.Second))
		return Grant{}
	}

	m.logger.Logf(logging.Warn, "lease_abandoned key=%s age=%s timeout=%s no_record=true",
		key, age.Round(time.Second), m.timeout)
	return m.takeOver(key, 1)
}

// takeOver evicts the existing lease directory and re-claims it.
func (m *Manager) takeOver(key string, epoch int) Grant {
	if err := m.store.Remove(key); err != nil {
		m.logger.Logf(logging.Warn, "takeover_abort key=%s reason=remove_failed error=%v", key, err)
		return Grant{}
	}
	if err := m.store.Create(key); err != nil {
		// Another worker re-created it first.
		m.logger.Logf(logging.Info, "takeover_lost key=%s", key)
		return Grant{}
	}
	return m.finishClaim(key, epoch, true)
}

// finishClaim writes our record and, for takeovers, re-reads it to confirm
// ownership before declaring success.
func (m *Manager) finishClaim(key string, epoch int, takeover bool) Grant {
	rec := Record{Owner: m.owner, Time: m.now(), Epoch: epoch}
	if err := m.store.Write(key, rec); err != nil {
		m.warnDegraded(err)
		return Grant{Granted: true, Uncoordinated: true}
	}

	if takeover {
		confirm, err := m.store.Read(key)
		if err != nil || confirm.Owner != m.owner {
			m.logger.Logf(logging.Warn, "takeover_lost key=%s after_write owner=%s", key, confirm.Owner)
			return Grant{}
		}
		epoch = confirm.Epoch
	}

	m.mu.Lock()
	m.held[key] = epoch
	m.mu.Unlock()

	m.logger.Logf(logging.Info, "lease_acquire key=%s owner=%s epoch=%d takeover=%v", key, m.owner, epoch, takeover)
	return Grant{Granted: true, Takeover: takeover, Epoch: epoch}
}

// Renew refreshes the record timestamp if we still own the lease. Returns
// false when ownership was lost (takeover happened) or the record cannot be
// confirmed; callers treat false as an abandonment signal.
func (m *Manager) Renew(key string) bool {
	rec, err := m.store.Read(key)
	if err != nil {
		m.logger.Logf(logging.Warn, "renew_skipped key=%s error=%v", key, err)
		return false
	}
	if rec.Owner != m.owner {
		m.logger.Logf(logging.Warn, "renew_noop key=%s reason=foreign_owner owner=%s", key, rec.Owner)
		m.forget(key)
		return false
	}

	rec.Time = m.now()
	if err := m.store.Write(key, rec); err != nil {
		m.logger.Logf(logging.Warn, "renew_failed key=%s error=%v", key, err)
		return false
	}
	m.logger.Logf(logging.Debug, "lease_renew key=%s epoch=%d", key, rec.Epoch)
	return true
}

// Release removes the lease if we still own it. Releasing a foreign or absent
// lease is a no-op; releasing twice is safe.
func (m *Manager) Release(key string) {
	defer m.forget(key)

	rec, err := m.store.Read(key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			m.logger.Logf(logging.Warn, "release_skipped key=%s error=%v", key, err)
		}
		return
	}
	if rec.Owner != m.owner {
		m.logger.Logf(logging.Info, "release_noop key=%s reason=foreign_owner owner=%s", key, rec.Owner)
		return
	}
	if err := m.store.Remove(key); err != nil {
		m.logger.Logf(logging.Warn, "release_failed key=%s error=%v", key, err)
		return
	}
	m.logger.Logf(logging.Info, "lease_release key=%s epoch=%d", key, rec.Epoch)
}

// ReleaseAll scans the store and removes every lease owned by this process.
// Shutdown cleanup so successors need not wait out the timeout. Best-effort;
// the staleness check remains the backstop.
func (m *Manager) ReleaseAll() {
	keys, err := m.store.Keys()
	if err != nil {
		m.logger.Logf(logging.Warn, "release_all_skipped error=%v", err)
		return
	}
	for _, key := range keys {
		rec, err := m.store.Read(key)
		if err != nil || rec.Owner != m.owner {
			continue
		}
		m.Release(key)
	}
}

// Held returns the number of leases this manager believes it holds.
func (m *Manager) Held() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.held)
}

func (m *Manager) forget(key string) {
	m.mu.Lock()
	delete(m.held, key)
	m.mu.Unlock()
}

func (m *Manager) warnDegraded(err error) {
	m.mu.Lock()
	first := !m.degraded
	m.degraded = true
	m.mu.Unlock()
	if first {
		m.logger.Logf(logging.Warn, "lease_store_unusable error=%v: proceeding without coordination", err)
	} else {
		m.logger.Logf(logging.Debug, "lease_store_unusable error=%v", err)
	}
}
