package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/savekeeper/savekeeper/internal/store"
	"github.com/savekeeper/savekeeper/pkg/color"
	"github.com/savekeeper/savekeeper/pkg/names"
)

var renameCmd = &cobra.Command{
	Use:   "rename <backup> <new-name>",
	Short: "Rename a backup",
	Long: `Rename a backup.

Characters that are not allowed in file names are dropped from the new name.
Renaming a temporary or automatic backup to a plain name turns it into a keeper,
which retention never removes.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		s := requireSession(true)
		meta := s.requireBackup(args[0])

		newName, err := names.SanitizeBackup(args[1])
		if err != nil {
			fmtErr("%v", err)
			os.Exit(1)
		}
		if newName == meta.Name {
			return
		}
		if _, err := os.Stat(store.Path(s.profile.Destination, newName)); err == nil {
			fmtErr("a backup named %q already exists", newName)
			os.Exit(1)
		}

		if err := s.manager.Rename(s.profile, meta.Name, newName); err != nil {
			fmtErr("rename: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(map[string]string{"from": meta.Name, "to": newName})
			return
		}
		fmt.Printf("Renamed %s to %s\n", color.Backup(meta.Name), color.Backup(newName))
	},
}

func init() {
	rootCmd.AddCommand(renameCmd)
}
