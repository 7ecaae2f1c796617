package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/savekeeper/savekeeper/internal/backup"
	"github.com/savekeeper/savekeeper/internal/capture"
	"github.com/savekeeper/savekeeper/internal/retention"
	"github.com/savekeeper/savekeeper/pkg/color"
	"github.com/savekeeper/savekeeper/pkg/logging"
	"github.com/savekeeper/savekeeper/pkg/model"
)

var (
	backupKind       string
	backupScreenshot bool
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Back up the savegame folder now",
	Long: `Back up the savegame folder now.

Without --kind the folder is classified the same way watch does it, which may
decide that no backup is needed. --kind keeper|temp|auto forces that kind.

Examples:
  savekeeper backup                    # classify and back up if needed
  savekeeper backup --kind keeper      # force a keeper
  savekeeper backup --screenshot       # attach a screenshot of the primary display`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		s := requireSession(true)

		attach := false
		if backupScreenshot {
			if err := capture.New().CapturePrimaryDisplay(s.cfg.ScreenshotPath); err != nil {
				fmtErr("screenshot: %v (continuing without it)", err)
			} else {
				attach = true
			}
		}

		var out *backup.Outcome
		if backupKind == "" {
			var err error
			out, err = s.manager.Run(s.profile, attach)
			if err != nil {
				fmtErr("backup: %v", err)
				os.Exit(1)
			}
		} else {
			kind, err := model.ParseKind(backupKind)
			if err != nil {
				fmtErr("%v", err)
				os.Exit(1)
			}
			if kind == model.KindExit {
				fmtErr("exit backups are made from the latest temporary backup, run %s", color.Code("savekeeper exit"))
				os.Exit(1)
			}
			meta, res, err := s.manager.Create(s.profile, kind, attach)
			if err != nil {
				fmtErr("backup: %v", err)
				os.Exit(1)
			}
			out = &backup.Outcome{Backup: meta, Retention: res}
			out.Decision.Kind = kind
			out.Decision.Comparison = model.NotCompared
			out.Decision.Reason = "requested"
		}
		if attach && out.Backup == nil {
			discardScreenshot(s.cfg.ScreenshotPath)
		}

		if jsonOutput {
			outputJSON(out)
			return
		}

		if out.Backup == nil {
			fmt.Printf("No backup needed: %s\n", out.Decision.Reason)
			return
		}
		fmt.Printf("Created %s backup %s\n", out.Backup.Kind(), color.Backup(out.Backup.Name))
		printRetention(out.Retention)
	},
}

func discardScreenshot(path string) {
	if err := capture.Remove(path); err != nil {
		logging.WarnErr("unused screenshot not removed", err, map[string]any{"path": path})
	}
}

func printRetention(res retention.Result) {
	for _, name := range res.Deleted {
		fmt.Printf("  %s %s\n", color.Dim("removed"), color.Backup(name))
	}
	for from, to := range res.Renamed {
		fmt.Printf("  %s %s -> %s\n", color.Dim("kept"), color.Backup(from), color.Backup(to))
	}
}

func init() {
	backupCmd.Flags().StringVar(&backupKind, "kind", "", "force a backup kind: keeper, temp or auto")
	backupCmd.Flags().BoolVar(&backupScreenshot, "screenshot", false, "attach a screenshot of the primary display")
	rootCmd.AddCommand(backupCmd)
}
