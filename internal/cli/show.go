package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/savekeeper/savekeeper/internal/checksum"
	"github.com/savekeeper/savekeeper/pkg/color"
	"github.com/savekeeper/savekeeper/pkg/model"
)

type showResult struct {
	Name       string               `json:"name"`
	Kind       string               `json:"kind"`
	Date       time.Time            `json:"date"`
	Checksums  []model.FileChecksum `json:"checksums"`
	Thumbnail  string               `json:"thumbnail,omitempty"`
	Comparison string               `json:"comparison"`
}

var showCmd = &cobra.Command{
	Use:   "show <backup>",
	Short: "Show a backup's manifest and screenshot",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := requireSession(true)
		meta := s.requireBackup(args[0])

		live, err := checksum.HashSavegame(s.profile.Source)
		if err != nil {
			fmtErr("hash savegame folder: %v", err)
			os.Exit(1)
		}

		res := showResult{
			Name:       meta.Name,
			Kind:       meta.Kind().String(),
			Date:       meta.Time(),
			Checksums:  meta.Checksums,
			Comparison: checksum.Compare(live, meta.Checksums).String(),
		}
		if thumb, ok := s.manager.Store().Thumbnail(s.profile.Destination, meta.Name); ok {
			res.Thumbnail = thumb
		}

		if jsonOutput {
			outputJSON(res)
			return
		}

		fmt.Printf("Backup:     %s\n", color.Backup(res.Name))
		fmt.Printf("Kind:       %s\n", res.Kind)
		fmt.Printf("Created:    %s\n", res.Date.Local().Format("2006-01-02 15:04:05"))
		if res.Thumbnail != "" {
			fmt.Printf("Screenshot: %s\n", res.Thumbnail)
		}
		fmt.Printf("Live:       %s\n", checksum.Describe(checksum.Compare(live, meta.Checksums)))
		fmt.Printf("Files (%d):\n", len(res.Checksums))
		for _, c := range res.Checksums {
			fmt.Printf("  %s  %s\n", color.Dim(short(c.Hash)), c.Name)
		}
	},
}

func short(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}

func init() {
	rootCmd.AddCommand(showCmd)
}
