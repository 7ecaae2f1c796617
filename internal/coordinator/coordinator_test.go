package coordinator_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/savekeeper/savekeeper/internal/backup"
	"github.com/savekeeper/savekeeper/internal/classify"
	"github.com/savekeeper/savekeeper/internal/coordinator"
	"github.com/savekeeper/savekeeper/internal/state"
	"github.com/savekeeper/savekeeper/pkg/config"
	"github.com/savekeeper/savekeeper/pkg/errclass"
	"github.com/savekeeper/savekeeper/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	mu      sync.Mutex
	calls   int
	attach  []bool
	skip    bool
	err     error
	block   chan struct{}
	onStart func()
}

func (f *fakeRunner) Run(_ *config.Profile, attach bool) (*backup.Outcome, error) {
	f.mu.Lock()
	f.calls++
	f.attach = append(f.attach, attach)
	block, onStart := f.block, f.onStart
	f.mu.Unlock()

	if onStart != nil {
		onStart()
	}
	if block != nil {
		<-block
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.skip {
		return &backup.Outcome{Decision: classify.Decision{Skip: true, Reason: "matches"}}, nil
	}
	return &backup.Outcome{
		Decision: classify.Decision{Kind: model.KindTemp, Reason: "within interval"},
		Backup:   &model.SavegameMeta{Name: "temp_2024-01-01_10-00-00"},
	}, nil
}

func (f *fakeRunner) Read(_ *config.Profile, name string) (*model.SavegameMeta, error) {
	return &model.SavegameMeta{Name: name, Date: 42}, nil
}

func (f *fakeRunner) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeCapturer struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeCapturer) CapturePrimaryDisplay(string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

type harness struct {
	shared  *state.Shared
	runner  *fakeRunner
	shots   *fakeCapturer
	coord   *coordinator.Coordinator
	reports []coordinator.Report
	clock   time.Time
}

func newHarness(t *testing.T, screenshots bool) *harness {
	t.Helper()
	p := config.DefaultProfile("Test")
	p.Screenshots = screenshots
	h := &harness{
		shared: state.New(),
		runner: &fakeRunner{},
		shots:  &fakeCapturer{},
		clock:  time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
	}
	h.coord = coordinator.New(coordinator.Options{
		Profile:        &p,
		Shared:         h.shared,
		Runner:         h.runner,
		Capturer:       h.shots,
		ScreenshotPath: "/tmp/shot.jpg",
		OnReport:       func(r coordinator.Report) { h.reports = append(h.reports, r) },
	})
	h.coord.SetClock(func() time.Time { return h.clock })
	return h
}

func (h *harness) change() {
	h.shared.MarkChanged(h.clock.UnixMilli())
}

func (h *harness) tick() {
	h.coord.Tick()
	h.coord.Wait()
}

func TestTick_NothingPending(t *testing.T) {
	h := newHarness(t, false)
	h.tick()
	assert.Zero(t, h.runner.Calls())
	assert.Empty(t, h.reports)
}

func TestTick_WaitsForSettle(t *testing.T) {
	h := newHarness(t, false)
	h.change()

	h.clock = h.clock.Add(500 * time.Millisecond)
	h.tick()
	assert.Zero(t, h.runner.Calls())

	h.clock = h.clock.Add(500 * time.Millisecond)
	h.tick()
	assert.Zero(t, h.runner.Calls(), "exactly one second is not yet settled")

	h.clock = h.clock.Add(500 * time.Millisecond)
	h.tick()
	assert.Equal(t, 1, h.runner.Calls())
	assert.Equal(t, model.BackupFinished, h.shared.BackupState())

	h.tick()
	assert.Equal(t, model.BackupIdle, h.shared.BackupState())
	assert.False(t, h.shared.ChangesPending())
	require.Len(t, h.reports, 1)
	require.NoError(t, h.reports[0].Err)
	require.NotNil(t, h.reports[0].Backup)
	assert.Equal(t, int64(42), h.reports[0].Backup.Date, "backup is read back from the store")
	assert.Equal(t, []bool{false}, h.runner.attach)
}

func TestTick_LaterChangeRestartsSettle(t *testing.T) {
	h := newHarness(t, false)
	h.change()
	h.clock = h.clock.Add(900 * time.Millisecond)
	h.change()
	h.clock = h.clock.Add(900 * time.Millisecond)
	h.tick()
	assert.Zero(t, h.runner.Calls())

	h.clock = h.clock.Add(200 * time.Millisecond)
	h.tick()
	assert.Equal(t, 1, h.runner.Calls())
}

func TestTick_ScreenshotBeforeBackup(t *testing.T) {
	h := newHarness(t, true)
	h.change()
	h.clock = h.clock.Add(2 * time.Second)

	h.tick()
	assert.Equal(t, 1, h.shots.calls)
	assert.Zero(t, h.runner.Calls(), "backup waits for the capture")
	assert.Equal(t, model.ScreenshotFinished, h.shared.ScreenshotState())

	h.tick()
	assert.Equal(t, 1, h.runner.Calls())
	assert.Equal(t, []bool{true}, h.runner.attach)

	h.tick()
	require.Len(t, h.reports, 1)
	assert.Equal(t, 1, h.shots.calls)
}

func TestTick_ScreenshotErrorDoesNotBlockBackup(t *testing.T) {
	h := newHarness(t, true)
	h.shots.err = errclass.ErrNoPrimaryDisplay.WithMessage("headless")
	h.change()
	h.clock = h.clock.Add(2 * time.Second)

	h.tick()
	assert.Equal(t, model.ScreenshotError, h.shared.ScreenshotState())

	h.tick()
	assert.Equal(t, 1, h.runner.Calls())
	assert.Equal(t, []bool{false}, h.runner.attach)
}

func TestTick_BackupErrorIsReported(t *testing.T) {
	h := newHarness(t, false)
	h.runner.err = errclass.ErrIO.WithMessage("disk full")
	h.change()
	h.clock = h.clock.Add(2 * time.Second)

	h.tick()
	h.tick()

	require.Len(t, h.reports, 1)
	assert.ErrorContains(t, h.reports[0].Err, "disk full")
	assert.Nil(t, h.reports[0].Backup)
	assert.Equal(t, model.BackupIdle, h.shared.BackupState())
	assert.False(t, h.shared.ChangesPending())
}

func TestTick_SkipIsReported(t *testing.T) {
	h := newHarness(t, false)
	h.runner.skip = true
	h.change()
	h.clock = h.clock.Add(2 * time.Second)

	h.tick()
	h.tick()

	require.Len(t, h.reports, 1)
	assert.True(t, h.reports[0].Skipped)
	assert.Nil(t, h.reports[0].Backup)
	assert.NoError(t, h.reports[0].Err)
}

func TestTick_OneBackupInFlight(t *testing.T) {
	h := newHarness(t, false)
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	h.runner.block = release
	h.runner.onStart = func() { started <- struct{}{} }
	h.change()
	h.clock = h.clock.Add(2 * time.Second)

	h.coord.Tick()
	<-started
	for i := 0; i < 5; i++ {
		h.clock = h.clock.Add(2 * time.Second)
		h.coord.Tick()
	}
	assert.Equal(t, 1, h.runner.Calls())
	assert.Equal(t, model.BackupBusy, h.shared.BackupState())

	close(release)
	h.coord.Wait()
	h.tick()
	assert.Equal(t, 1, h.runner.Calls())
	assert.Len(t, h.reports, 1)
}

func TestTick_ChangeDuringBackupKeepsPending(t *testing.T) {
	h := newHarness(t, false)
	h.runner.onStart = func() { h.shared.MarkChanged(h.clock.Add(time.Second).UnixMilli()) }
	h.change()
	h.clock = h.clock.Add(2 * time.Second)

	h.tick()
	h.tick()
	assert.True(t, h.shared.ChangesPending())
	assert.Len(t, h.reports, 1)

	h.runner.mu.Lock()
	h.runner.onStart = nil
	h.runner.mu.Unlock()
	h.clock = h.clock.Add(3 * time.Second)
	h.tick()
	assert.Equal(t, 2, h.runner.Calls())
	h.tick()
	assert.False(t, h.shared.ChangesPending())
}

func TestRun_StopsOnCancel(t *testing.T) {
	h := newHarness(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.coord.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestRun_ProcessesChanges(t *testing.T) {
	p := config.DefaultProfile("Live")
	p.Screenshots = false
	shared := state.New()
	runner := &fakeRunner{}
	var mu sync.Mutex
	var reports []coordinator.Report
	c := coordinator.New(coordinator.Options{
		Profile: &p,
		Shared:  shared,
		Runner:  runner,
		OnReport: func(r coordinator.Report) {
			mu.Lock()
			reports = append(reports, r)
			mu.Unlock()
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	shared.MarkChanged(time.Now().UnixMilli())
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(reports) == 1
	}, 5*time.Second, 50*time.Millisecond)
	assert.False(t, shared.ChangesPending())
	cancel()
	c.Wait()
}

func TestDrain_DeliversFinishedBackup(t *testing.T) {
	h := newHarness(t, false)
	h.change()
	h.clock = h.clock.Add(2 * time.Second)

	h.coord.Tick()
	h.coord.Drain()

	require.Len(t, h.reports, 1)
	assert.Equal(t, model.BackupIdle, h.shared.BackupState())
	assert.Equal(t, 1, h.runner.Calls())
}

func TestDrain_Idle(t *testing.T) {
	h := newHarness(t, false)
	h.coord.Drain()
	assert.Empty(t, h.reports)
}
