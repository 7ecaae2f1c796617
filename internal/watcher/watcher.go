// Package watcher turns file system notifications on a savegame folder into pending-change flags.
package watcher

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/savekeeper/savekeeper/internal/state"
	"github.com/savekeeper/savekeeper/pkg/logging"
	"github.com/savekeeper/savekeeper/pkg/metrics"
)

// Watcher observes the top level of one folder at a time.
type Watcher struct {
	fs      *fsnotify.Watcher
	shared  *state.Shared
	metrics *metrics.Registry
	log     *logging.Logger
	now     func() time.Time

	mu   sync.Mutex
	path string

	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// New starts a watcher reporting into shared. reg may be nil.
func New(shared *state.Shared, reg *metrics.Registry) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	w := &Watcher{
		fs:      fsw,
		shared:  shared,
		metrics: reg,
		log:     logging.WithFields(map[string]any{"component": "watcher"}),
		now:     time.Now,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Watch starts observing path, dropping any previously watched path first.
func (w *Watcher) Watch(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.path == path {
		return nil
	}
	if w.path != "" {
		w.removeLocked()
	}
	if err := w.fs.Add(path); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}
	w.path = path
	w.log.Info("watching folder", map[string]any{"path": path})
	return nil
}

// Unwatch stops observing the current path.
func (w *Watcher) Unwatch() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.path != "" {
		w.removeLocked()
	}
}

func (w *Watcher) removeLocked() {
	if err := w.fs.Remove(w.path); err != nil {
		w.log.Debug("unwatch failed", map[string]any{"path": w.path, "error": err.Error()})
	}
	w.path = ""
}

// Path returns the currently watched folder, or "".
func (w *Watcher) Path() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.path
}

// Close stops the watcher and waits for its event loop to exit.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.fs.Close()
		<-w.stopped
	})
	return err
}

func (w *Watcher) loop() {
	defer close(w.stopped)
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.log.WarnErr("watch error", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if w.shared.Paused() || !counts(event) {
		w.record("ignored")
		return
	}
	w.shared.MarkChanged(w.now().UnixMilli())
	w.record("change")
	w.log.Debug("change detected", map[string]any{"path": event.Name, "op": event.Op.String()})
}

// counts reports whether an event touches an existing non-directory entry.
func counts(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	info, err := os.Stat(event.Name)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

func (w *Watcher) record(result string) {
	if w.metrics != nil {
		w.metrics.RecordWatchEvent(result)
	}
}
