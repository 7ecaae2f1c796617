package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/savekeeper/savekeeper/internal/checksum"
	"github.com/savekeeper/savekeeper/pkg/color"
	"github.com/savekeeper/savekeeper/pkg/model"
)

var diffAll bool

type diffResult struct {
	Backup     string              `json:"backup"`
	Comparison model.Comparison    `json:"comparison"`
	Files      []checksum.FileDiff `json:"files"`
}

var diffCmd = &cobra.Command{
	Use:   "diff <backup>",
	Short: "Compare the savegame folder with a backup",
	Long: `Compare the savegame folder with a backup.

Markers:
  M  file differs
  +  file exists only in the savegame folder
  -  file exists only in the backup`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := requireSession(true)
		meta := s.requireBackup(args[0])

		live, err := checksum.HashSavegame(s.profile.Source)
		if err != nil {
			fmtErr("hash savegame folder: %v", err)
			os.Exit(1)
		}

		res := diffResult{
			Backup:     meta.Name,
			Comparison: checksum.Compare(live, meta.Checksums),
			Files:      checksum.Diff(live, meta.Checksums),
		}

		if jsonOutput {
			outputJSON(res)
			return
		}

		fmt.Printf("%s is %s\n", color.Backup(meta.Name), checksum.Describe(res.Comparison))
		for _, d := range res.Files {
			switch d.Status {
			case checksum.StatusModified:
				fmt.Printf("%s %s\n", color.Warning("M"), d.Name)
			case checksum.StatusAdded:
				fmt.Printf("%s %s\n", color.Success("+"), d.Name)
			case checksum.StatusMissing:
				fmt.Printf("%s %s\n", color.Error("-"), d.Name)
			default:
				if diffAll {
					fmt.Printf("  %s\n", color.Dim(d.Name))
				}
			}
		}
	},
}

func init() {
	diffCmd.Flags().BoolVarP(&diffAll, "all", "a", false, "also list unchanged files")
	rootCmd.AddCommand(diffCmd)
}
