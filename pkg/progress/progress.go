// Package progress reports progress of long-running operations such as verifying every backup.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
)

// Callback receives progress updates during long operations.
type Callback func(op string, current, total int, message string)

// Noop is a no-op callback for default behavior.
func Noop(op string, current, total int, message string) {}

// Progress tracks operation progress.
type Progress struct {
	Op      string
	Total   int
	current int
	cb      Callback
}

// New creates a new Progress tracker.
func New(op string, total int, cb Callback) *Progress {
	if cb == nil {
		cb = Noop
	}
	return &Progress{Op: op, Total: total, cb: cb}
}

// Increment advances the progress and calls the callback.
func (p *Progress) Increment(message string) {
	p.current++
	p.cb(p.Op, p.current, p.Total, message)
}

// Current returns the current progress value.
func (p *Progress) Current() int {
	return p.current
}

// Terminal renders a single-line progress bar, redrawn in place.
type Terminal struct {
	writer      io.Writer
	lastLineLen atomic.Int64
	enabled     atomic.Bool
}

// NewTerminal creates a progress bar on stderr.
func NewTerminal(enabled bool) *Terminal {
	return NewTerminalTo(os.Stderr, enabled)
}

// NewTerminalTo creates a progress bar writing to w.
func NewTerminalTo(w io.Writer, enabled bool) *Terminal {
	t := &Terminal{writer: w}
	t.enabled.Store(enabled)
	return t
}

// Callback returns a Callback drawing into this terminal.
func (t *Terminal) Callback() Callback {
	return func(op string, current, total int, message string) {
		if !t.enabled.Load() {
			return
		}
		t.render(op, current, total, message)
	}
}

func (t *Terminal) render(op string, current, total int, message string) {
	if total <= 0 {
		total = 1
	}
	current = min(current, total)
	percentage := float64(current) / float64(total) * 100

	barWidth := 30
	filled := barWidth * current / total
	bar := strings.Repeat("=", filled) + strings.Repeat(" ", barWidth-filled)

	clear := "\r"
	if lastLen := t.lastLineLen.Load(); lastLen > 0 {
		clear = "\r" + strings.Repeat(" ", int(lastLen)) + "\r"
	}

	line := fmt.Sprintf("%s [%s] %d/%d (%.0f%%)", op, bar, current, total, percentage)
	if message != "" {
		line += " " + message
	}

	fmt.Fprint(t.writer, clear+line)
	t.lastLineLen.Store(int64(len(line)))
}

// Done ends the bar with a newline if anything was drawn.
func (t *Terminal) Done() {
	if !t.enabled.Load() || t.lastLineLen.Load() == 0 {
		return
	}
	fmt.Fprintln(t.writer)
	t.lastLineLen.Store(0)
}
