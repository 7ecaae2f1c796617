package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/savekeeper/savekeeper/pkg/color"
)

var deletePermanent bool

var deleteCmd = &cobra.Command{
	Use:   "delete <backup>...",
	Short: "Move backups to the trash",
	Long: `Move backups to the trash.

Use --permanent to remove them from disk instead.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := requireSession(true)

		deleted := make([]string, 0, len(args))
		for _, arg := range args {
			meta := s.requireBackup(arg)
			if err := s.manager.Delete(s.profile, meta.Name, deletePermanent); err != nil {
				fmtErr("delete %s: %v", meta.Name, err)
				os.Exit(1)
			}
			deleted = append(deleted, meta.Name)
		}

		if jsonOutput {
			outputJSON(map[string]any{"deleted": deleted, "permanent": deletePermanent})
			return
		}
		verb := "Moved to trash:"
		if deletePermanent {
			verb = "Deleted:"
		}
		for _, name := range deleted {
			fmt.Printf("%s %s\n", verb, color.Backup(name))
		}
	},
}

func init() {
	deleteCmd.Flags().BoolVar(&deletePermanent, "permanent", false, "delete from disk instead of moving to the trash")
	rootCmd.AddCommand(deleteCmd)
}
