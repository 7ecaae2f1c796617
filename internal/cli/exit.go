package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/savekeeper/savekeeper/internal/capture"
	"github.com/savekeeper/savekeeper/pkg/logging"
)

var exitCmd = &cobra.Command{
	Use:   "exit",
	Short: "Keep the latest temporary backup as an exit backup",
	Long: `Keep the latest temporary backup as an exit backup.

This is what watch does when it stops: the newest temporary backup is renamed
to exit_<time>, other temporary backups are removed, and a leftover
screenshot file is deleted.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		s := requireSession(true)

		res := s.manager.Exit(s.profile)
		if err := capture.Remove(s.cfg.ScreenshotPath); err != nil {
			logging.WarnErr("leftover screenshot not removed", err)
		}

		if jsonOutput {
			outputJSON(res)
			return
		}
		if res.Empty() {
			fmt.Println("No temporary backups.")
			return
		}
		printRetention(res)
	},
}

func init() {
	rootCmd.AddCommand(exitCmd)
}
