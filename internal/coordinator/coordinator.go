// Package coordinator drives screenshots and backups from the pending-change flags set by the watcher.
package coordinator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/savekeeper/savekeeper/internal/backup"
	"github.com/savekeeper/savekeeper/internal/state"
	"github.com/savekeeper/savekeeper/pkg/config"
	"github.com/savekeeper/savekeeper/pkg/logging"
	"github.com/savekeeper/savekeeper/pkg/metrics"
	"github.com/savekeeper/savekeeper/pkg/model"
)

const (
	// TickInterval is how often the loop polls the shared state.
	TickInterval = 500 * time.Millisecond
	// SettleDelay is the quiet period required after the latest change.
	SettleDelay = time.Second
)

// Runner performs and confirms backups.
type Runner interface {
	Run(p *config.Profile, attachThumbnail bool) (*backup.Outcome, error)
	Read(p *config.Profile, name string) (*model.SavegameMeta, error)
}

// Capturer writes a screenshot to a file.
type Capturer interface {
	CapturePrimaryDisplay(path string) error
}

// Report is delivered once per settled change.
type Report struct {
	Decision  string              `json:"decision,omitempty"`
	Skipped   bool                `json:"skipped"`
	Backup    *model.SavegameMeta `json:"backup,omitempty"`
	Retention []string            `json:"retention_deleted,omitempty"`
	Err       error               `json:"-"`
}

// Options configures a Coordinator.
type Options struct {
	Profile        *config.Profile
	Shared         *state.Shared
	Runner         Runner
	Capturer       Capturer // nil disables screenshots
	ScreenshotPath string
	Metrics        *metrics.Registry
	OnReport       func(Report)
}

// Coordinator runs the poll loop for one profile.
type Coordinator struct {
	opts Options
	log  *logging.Logger
	now  func() time.Time

	wg sync.WaitGroup

	mu          sync.Mutex
	outcome     *backup.Outcome
	startedAt   int64
	errReported bool
}

// New creates a coordinator.
func New(opts Options) *Coordinator {
	return &Coordinator{
		opts: opts,
		log:  logging.WithFields(map[string]any{"component": "coordinator", "profile": opts.Profile.Name}),
		now:  time.Now,
	}
}

// SetClock replaces the time source used for the settle delay.
func (c *Coordinator) SetClock(now func() time.Time) {
	c.now = now
}

// Run ticks until ctx is done. Work already in flight is not cancelled; use Wait.
func (c *Coordinator) Run(ctx context.Context) error {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.Tick()
		}
	}
}

// Wait blocks until background screenshot and backup work has finished.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Drain waits for work in flight and delivers the report of a backup that finished meanwhile.
func (c *Coordinator) Drain() {
	c.wg.Wait()
	if c.opts.Shared.BackupState() == model.BackupFinished {
		c.finish()
	}
}

// Tick advances the screenshot and backup state machines once.
func (c *Coordinator) Tick() {
	shared := c.opts.Shared
	if !shared.ChangesPending() && shared.BackupState() != model.BackupFinished {
		return
	}
	wait := c.tickScreenshot()
	c.tickBackup(wait)
}

func (c *Coordinator) screenshotsEnabled() bool {
	return c.opts.Profile.Screenshots && c.opts.Capturer != nil && c.opts.ScreenshotPath != ""
}

// tickScreenshot reports whether the backup must wait for a capture in progress.
func (c *Coordinator) tickScreenshot() bool {
	if !c.screenshotsEnabled() {
		return false
	}
	shared := c.opts.Shared
	switch shared.ScreenshotState() {
	case model.ScreenshotIdle:
		if shared.BeginScreenshot() {
			c.wg.Add(1)
			go c.capture()
		}
		return true
	case model.ScreenshotBusy:
		return true
	case model.ScreenshotError:
		c.reportScreenshotError()
		return false
	default:
		return false
	}
}

func (c *Coordinator) capture() {
	defer c.wg.Done()
	err := c.opts.Capturer.CapturePrimaryDisplay(c.opts.ScreenshotPath)
	if c.opts.Metrics != nil {
		c.opts.Metrics.RecordScreenshot(err == nil)
	}
	c.opts.Shared.FinishScreenshot(err)
}

func (c *Coordinator) reportScreenshotError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.errReported {
		return
	}
	c.errReported = true
	c.log.Warn("screenshot failed, backing up without it", map[string]any{"error": c.opts.Shared.ScreenshotError()})
}

func (c *Coordinator) tickBackup(waitForScreenshot bool) {
	shared := c.opts.Shared
	switch shared.BackupState() {
	case model.BackupIdle:
		if !shared.ChangesPending() || waitForScreenshot {
			return
		}
		if c.now().UnixMilli()-shared.LatestChange() <= SettleDelay.Milliseconds() {
			return
		}
		if !shared.BeginBackup() {
			return
		}
		attach := c.screenshotsEnabled() && shared.ScreenshotState() == model.ScreenshotFinished
		c.mu.Lock()
		c.startedAt = shared.LatestChange()
		c.outcome = nil
		c.mu.Unlock()
		c.wg.Add(1)
		go c.backup(attach)
	case model.BackupFinished:
		c.finish()
	}
}

func (c *Coordinator) backup(attach bool) {
	defer c.wg.Done()
	out, err := c.opts.Runner.Run(c.opts.Profile, attach)
	name := ""
	if out != nil && out.Backup != nil {
		name = out.Backup.Name
	}
	c.mu.Lock()
	c.outcome = out
	c.mu.Unlock()
	c.opts.Shared.FinishBackup(name, err)
}

func (c *Coordinator) finish() {
	shared := c.opts.Shared
	name, errText := shared.BackupResult()

	c.mu.Lock()
	out := c.outcome
	startedAt := c.startedAt
	c.errReported = false
	c.mu.Unlock()

	report := Report{}
	if out != nil {
		report.Decision = out.Decision.Reason
		report.Skipped = out.Decision.Skip
		report.Retention = out.Retention.Deleted
	}

	switch {
	case errText != "":
		report.Err = errors.New(errText)
		c.log.Error("backup failed", map[string]any{"error": errText})
	case name != "":
		meta, err := c.opts.Runner.Read(c.opts.Profile, name)
		if err != nil {
			report.Err = err
			c.log.ErrorErr("backup could not be read back", err, map[string]any{"backup": name})
		} else {
			report.Backup = meta
		}
	}

	shared.SetBackupState(model.BackupIdle)
	if shared.LatestChange() > startedAt {
		// Changed again while the backup ran: go around once more with a fresh screenshot.
		shared.SetScreenshotState(model.ScreenshotIdle)
	} else {
		shared.ClearChanges()
	}

	if c.opts.OnReport != nil {
		c.opts.OnReport(report)
	}
}
