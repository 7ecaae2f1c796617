package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/savekeeper/savekeeper/internal/restore"
	"github.com/savekeeper/savekeeper/pkg/color"
	"github.com/savekeeper/savekeeper/pkg/logging"
)

var restoreCmd = &cobra.Command{
	Use:   "restore <backup>",
	Short: "Restore a backup into the savegame folder",
	Long: `Restore a backup into the savegame folder.

Top-level files of the savegame folder are replaced by the backup's files.
Nothing is touched when the folder already matches the backup.

The savegame folder is locked for the duration of the restore. A running
watch on the same folder holds that lock, so stop it first.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := requireSession(true)
		meta := s.requireBackup(args[0])

		res, err := restoreBackup(s, meta.Name)
		if err != nil {
			fmtErr("restore: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(res)
			return
		}

		if !res.Changed {
			fmt.Printf("Savegame folder already matches %s, nothing to do.\n", color.Backup(meta.Name))
			return
		}
		fmt.Printf("Restored %s (%d copied, %d removed)\n", color.Backup(meta.Name), len(res.Copied), len(res.Deleted))
	},
}

// restoreBackup restores name while holding the lock on the profile's source folder.
func restoreBackup(s *session, name string) (*restore.Result, error) {
	rec, err := s.locks.Acquire(s.profile.Name, s.profile.Source, "restore")
	if err != nil {
		return nil, err
	}
	hold := s.locks.Hold(rec)
	defer func() {
		if err := hold.Release(); err != nil {
			logging.WarnErr("release lock failed", err, map[string]any{"source": s.profile.Source})
		}
	}()
	return s.manager.Restore(s.profile, hold, name)
}

func init() {
	rootCmd.AddCommand(restoreCmd)
}
