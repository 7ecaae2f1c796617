// Package state holds the flags shared between the watcher, the coordinator and restore callers.
package state

import (
	"sync"
	"sync/atomic"

	"github.com/savekeeper/savekeeper/pkg/model"
)

// Shared is the handle through which background workers report progress.
// The zero value is ready to use: everything idle, nothing pending, not paused.
type Shared struct {
	backupState     atomic.Int32
	screenshotState atomic.Int32
	changesPending  atomic.Bool
	latestChange    atomic.Int64
	paused          atomic.Bool

	mu            sync.Mutex
	backupErr     string
	backupName    string
	screenshotErr string
}

// New returns a fresh shared state.
func New() *Shared {
	return &Shared{}
}

// BackupState returns the current backup state.
func (s *Shared) BackupState() model.BackupState {
	return model.BackupState(s.backupState.Load())
}

// SetBackupState stores the backup state.
func (s *Shared) SetBackupState(st model.BackupState) {
	s.backupState.Store(int32(st))
}

// BeginBackup moves Idle to Busy. It reports false if a backup is already in flight or unfinished.
func (s *Shared) BeginBackup() bool {
	return s.backupState.CompareAndSwap(int32(model.BackupIdle), int32(model.BackupBusy))
}

// FinishBackup records the outcome of a backup and moves to Finished.
func (s *Shared) FinishBackup(name string, err error) {
	s.mu.Lock()
	s.backupName = name
	if err != nil {
		s.backupErr = err.Error()
	} else {
		s.backupErr = ""
	}
	s.mu.Unlock()
	s.SetBackupState(model.BackupFinished)
}

// BackupResult returns the name and error text recorded by FinishBackup.
func (s *Shared) BackupResult() (name, errText string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backupName, s.backupErr
}

// ScreenshotState returns the current screenshot state.
func (s *Shared) ScreenshotState() model.ScreenshotState {
	return model.ScreenshotState(s.screenshotState.Load())
}

// SetScreenshotState stores the screenshot state.
func (s *Shared) SetScreenshotState(st model.ScreenshotState) {
	s.screenshotState.Store(int32(st))
}

// BeginScreenshot moves Idle to Busy.
func (s *Shared) BeginScreenshot() bool {
	return s.screenshotState.CompareAndSwap(int32(model.ScreenshotIdle), int32(model.ScreenshotBusy))
}

// FinishScreenshot moves to Finished, or to Error with the error text recorded.
func (s *Shared) FinishScreenshot(err error) {
	if err != nil {
		s.mu.Lock()
		s.screenshotErr = err.Error()
		s.mu.Unlock()
		s.SetScreenshotState(model.ScreenshotError)
		return
	}
	s.SetScreenshotState(model.ScreenshotFinished)
}

// ScreenshotError returns the last capture error text.
func (s *Shared) ScreenshotError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.screenshotErr
}

// MarkChanged records a file change at ms (milliseconds since epoch).
// The first change after the previous one settled also resets the screenshot state.
func (s *Shared) MarkChanged(ms int64) {
	if !s.changesPending.Swap(true) {
		s.SetScreenshotState(model.ScreenshotIdle)
	}
	s.latestChange.Store(ms)
}

// ChangesPending reports whether an unprocessed change exists.
func (s *Shared) ChangesPending() bool {
	return s.changesPending.Load()
}

// ClearChanges marks pending changes as handled.
func (s *Shared) ClearChanges() {
	s.changesPending.Store(false)
}

// LatestChange returns the time of the latest change in milliseconds since epoch.
func (s *Shared) LatestChange() int64 {
	return s.latestChange.Load()
}

// Paused reports whether change tracking is suspended.
func (s *Shared) Paused() bool {
	return s.paused.Load()
}

// SetPaused suspends or resumes change tracking.
func (s *Shared) SetPaused(p bool) {
	s.paused.Store(p)
}

// Pause sets the pause guard and returns a function that releases it.
func (s *Shared) Pause() (resume func()) {
	s.paused.Store(true)
	return func() { s.paused.Store(false) }
}
