// Package lock keeps one process at a time working on a savegame folder.
package lock

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/savekeeper/savekeeper/pkg/errclass"
	"github.com/savekeeper/savekeeper/pkg/fsutil"
	"github.com/savekeeper/savekeeper/pkg/logging"
	"github.com/savekeeper/savekeeper/pkg/model"
)

// DefaultLeaseTTL is how long a lock survives without renewal.
const DefaultLeaseTTL = 30 * time.Second

// DirName is the lock directory kept next to the config file.
const DirName = "locks"

// DirFor returns the lock directory for a config file path.
func DirFor(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), DirName)
}

// Manager hands out leases on source folders.
type Manager struct {
	dir string
	ttl time.Duration
	mu  sync.Mutex
	now func() time.Time
}

// NewManager creates a lock manager storing lock files in dir.
func NewManager(dir string, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	return &Manager{dir: dir, ttl: ttl, now: time.Now}
}

// SetClock replaces the time source used for leases.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// Acquire takes the lock on source for profile. A lock whose lease ran out is taken over;
// a live one fails with E_CONCURRENCY_VIOLATION.
func (m *Manager) Acquire(profile, source, purpose string) (*model.LockRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return nil, errclass.ErrIO.WithMessagef("create lock dir: %v", err)
	}
	lockPath := m.lockPath(source)

	now := m.now().UTC()
	rec := &model.LockRecord{
		Profile:     profile,
		Source:      source,
		HolderNonce: uuid.NewString(),
		PID:         os.Getpid(),
		AcquiredAt:  now,
		ExpiresAt:   now.Add(m.ttl),
		Purpose:     purpose,
	}

	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if !os.IsExist(err) {
			return nil, errclass.ErrIO.WithMessagef("create lock: %v", err)
		}
		existing, readErr := readLock(lockPath)
		if readErr == nil && !existing.IsExpired(m.now()) {
			return nil, errclass.ErrConcurrencyViolation.WithMessagef(
				"%s is locked by profile %q for %s (pid %d since %s)",
				source, existing.Profile, existing.Purpose, existing.PID, existing.AcquiredAt.Local().Format(time.DateTime))
		}
		if readErr != nil {
			logging.WarnErr("replacing unreadable lock", readErr, map[string]any{"path": lockPath})
		}
		if err := writeLock(lockPath, rec); err != nil {
			return nil, err
		}
		return rec, nil
	}
	defer file.Close()

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		os.Remove(lockPath)
		return nil, fmt.Errorf("marshal lock: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		os.Remove(lockPath)
		return nil, errclass.ErrIO.WithMessagef("write lock: %v", err)
	}
	if err := file.Sync(); err != nil {
		os.Remove(lockPath)
		return nil, errclass.ErrIO.WithMessagef("sync lock: %v", err)
	}
	return rec, nil
}

// Renew extends the lease of a lock this holder owns.
func (m *Manager) Renew(source, holderNonce string) (*model.LockRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lockPath := m.lockPath(source)
	rec, err := readLock(lockPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errclass.ErrConcurrencyViolation.WithMessage("lock is not held")
		}
		return nil, err
	}
	if rec.HolderNonce != holderNonce {
		return nil, errclass.ErrConcurrencyViolation.WithMessagef("lock was taken over by pid %d", rec.PID)
	}

	rec.ExpiresAt = m.now().UTC().Add(m.ttl)
	if err := writeLock(lockPath, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Release frees the lock. Releasing a lock that is gone is a no-op.
func (m *Manager) Release(source, holderNonce string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	lockPath := m.lockPath(source)
	rec, err := readLock(lockPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if rec.HolderNonce != holderNonce {
		return errclass.ErrConcurrencyViolation.WithMessage("cannot release: lock held by another holder")
	}
	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		return errclass.ErrIO.WithMessagef("remove lock: %v", err)
	}
	return nil
}

// Status returns the current lock state of source.
func (m *Manager) Status(source string) (model.LockState, *model.LockRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := readLock(m.lockPath(source))
	if err != nil {
		if os.IsNotExist(err) {
			return model.LockStateFree, nil, nil
		}
		return model.LockStateFree, nil, err
	}
	if rec.IsExpired(m.now()) {
		return model.LockStateExpired, rec, nil
	}
	return model.LockStateHeld, rec, nil
}

// Keep renews the lease every third of the TTL until ctx is done.
func (m *Manager) Keep(ctx context.Context, rec *model.LockRecord) {
	t := time.NewTicker(m.ttl / 3)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := m.Renew(rec.Source, rec.HolderNonce); err != nil {
				logging.WarnErr("lock renewal failed", err, map[string]any{"source": rec.Source})
			}
		}
	}
}

// Hold wraps a record this process acquired.
type Hold struct {
	m   *Manager
	rec *model.LockRecord
}

// Hold returns the handle for rec.
func (m *Manager) Hold(rec *model.LockRecord) *Hold {
	return &Hold{m: m, rec: rec}
}

// Paused reports whether the lease is still ours and live, so nothing else is tracking the folder.
func (h *Hold) Paused() bool {
	st, rec, err := h.m.Status(h.rec.Source)
	return err == nil && st == model.LockStateHeld && rec.HolderNonce == h.rec.HolderNonce
}

// Release frees the held lock.
func (h *Hold) Release() error {
	return h.m.Release(h.rec.Source, h.rec.HolderNonce)
}

func (m *Manager) lockPath(source string) string {
	if abs, err := filepath.Abs(source); err == nil {
		source = abs
	}
	sum := blake3.Sum256([]byte(filepath.Clean(source)))
	return filepath.Join(m.dir, hex.EncodeToString(sum[:8])+".json")
}

func readLock(path string) (*model.LockRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec model.LockRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errclass.ErrParse.WithMessagef("lock %s: %v", path, err)
	}
	return &rec, nil
}

func writeLock(path string, rec *model.LockRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal lock: %w", err)
	}
	if err := fsutil.AtomicWrite(path, data, 0644); err != nil {
		return errclass.ErrIO.WithMessagef("write lock: %v", err)
	}
	return nil
}
