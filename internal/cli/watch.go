package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/savekeeper/savekeeper/internal/capture"
	"github.com/savekeeper/savekeeper/internal/coordinator"
	"github.com/savekeeper/savekeeper/internal/state"
	"github.com/savekeeper/savekeeper/internal/watcher"
	"github.com/savekeeper/savekeeper/pkg/color"
	"github.com/savekeeper/savekeeper/pkg/logging"
	"github.com/savekeeper/savekeeper/pkg/metrics"
)

var watchMetricsAddr string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the savegame folder and back up every change",
	Long: `Watch the savegame folder and back up every change.

Changes are backed up once the folder has been quiet for a second. When the
profile has screenshots enabled, the primary display is captured first and
stored with the backup.

On Ctrl+C the latest temporary backup is kept as an exit backup.
With --metrics-addr (or metrics_addr in the config) Prometheus metrics are
served on /metrics.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		s := requireSession(true)
		p := s.profile
		log := logging.WithFields(map[string]any{"session": uuid.NewString(), "profile": p.Name})

		rec, err := s.locks.Acquire(p.Name, p.Source, "watch")
		if err != nil {
			fmtErr("%v", err)
			os.Exit(1)
		}
		release := func() {
			if err := s.locks.Release(rec.Source, rec.HolderNonce); err != nil {
				log.WarnErr("release lock failed", err)
			}
		}
		defer release()
		fail := func(format string, args ...any) {
			fmtErr(format, args...)
			release()
			os.Exit(1)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		go s.locks.Keep(ctx, rec)

		reg := metrics.Default()
		addr := s.cfg.MetricsAddr
		if watchMetricsAddr != "" {
			addr = watchMetricsAddr
		}
		if addr != "" {
			go func() {
				if err := reg.Serve(ctx, addr); err != nil {
					log.ErrorErr("metrics server stopped", err, map[string]any{"addr": addr})
				}
			}()
			log.Info("serving metrics", map[string]any{"addr": addr})
		}

		current, created, err := s.manager.EnsureCurrent(p, false)
		if err != nil {
			fail("initial backup: %v", err)
		}
		if !jsonOutput && current != nil {
			verb := "Current backup:"
			if created {
				verb = "Created initial backup:"
			}
			fmt.Printf("%s %s\n", verb, color.Backup(current.Name))
		}

		shared := state.New()
		w, err := watcher.New(shared, reg)
		if err != nil {
			fail("%v", err)
		}
		if err := w.Watch(p.Source); err != nil {
			w.Close()
			fail("watch %s: %v", p.Source, err)
		}

		var shooter coordinator.Capturer
		if p.Screenshots {
			shooter = capture.New()
		}
		coord := coordinator.New(coordinator.Options{
			Profile:        p,
			Shared:         shared,
			Runner:         s.manager,
			Capturer:       shooter,
			ScreenshotPath: s.cfg.ScreenshotPath,
			Metrics:        reg,
			OnReport:       printReport,
		})

		if !jsonOutput {
			fmt.Printf("Watching %s (Ctrl+C to stop)\n", p.Source)
		}
		log.Info("watch started", map[string]any{"source": p.Source, "destination": p.Destination})

		coord.Run(ctx)

		w.Close()
		coord.Drain()

		res := s.manager.Exit(p)
		if err := capture.Remove(s.cfg.ScreenshotPath); err != nil {
			log.WarnErr("leftover screenshot not removed", err)
		}
		if !jsonOutput {
			printRetention(res)
		}
		log.Info("watch stopped")
	},
}

func printReport(r coordinator.Report) {
	if jsonOutput {
		line := map[string]any{"skipped": r.Skipped, "decision": r.Decision}
		if r.Backup != nil {
			line["backup"] = r.Backup.Name
		}
		if len(r.Retention) > 0 {
			line["retention_deleted"] = r.Retention
		}
		if r.Err != nil {
			line["error"] = r.Err.Error()
		}
		outputJSON(line)
		return
	}

	switch {
	case r.Err != nil:
		fmtErr("backup failed: %v", r.Err)
	case r.Backup != nil:
		fmt.Printf("%s %s backup %s\n", color.Dim(r.Backup.Time().Local().Format("15:04:05")), r.Backup.Kind(), color.Backup(r.Backup.Name))
		for _, name := range r.Retention {
			fmt.Printf("  %s %s\n", color.Dim("removed"), color.Backup(name))
		}
	case r.Skipped:
		fmt.Println(color.Dim("no backup needed: " + r.Decision))
	}
}

func init() {
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	rootCmd.AddCommand(watchCmd)
}
