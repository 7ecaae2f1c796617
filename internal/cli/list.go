package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/savekeeper/savekeeper/pkg/color"
)

// backupEntry is the JSON shape of one listed backup.
type backupEntry struct {
	Name      string    `json:"name"`
	Kind      string    `json:"kind"`
	Date      time.Time `json:"date"`
	Files     int       `json:"files"`
	Thumbnail string    `json:"thumbnail,omitempty"`
	Current   bool      `json:"current"`
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List backups of the profile, newest first",
	Long: `List backups of the profile, newest first.

The backup identical to the live savegame folder is marked as current.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		s := requireSession(true)

		list, err := s.manager.List(s.profile)
		if err != nil {
			fmtErr("list backups: %v", err)
			os.Exit(1)
		}
		current, err := s.manager.Current(s.profile)
		if err != nil {
			fmtErr("hash savegame folder: %v", err)
			os.Exit(1)
		}

		entries := make([]backupEntry, 0, len(list))
		for _, b := range list {
			e := backupEntry{
				Name:    b.Name,
				Kind:    b.Kind().String(),
				Date:    b.Time(),
				Files:   len(b.Checksums),
				Current: current != nil && current.Name == b.Name,
			}
			if thumb, ok := s.manager.Store().Thumbnail(s.profile.Destination, b.Name); ok {
				e.Thumbnail = thumb
			}
			entries = append(entries, e)
		}

		if jsonOutput {
			outputJSON(entries)
			return
		}

		if len(entries) == 0 {
			fmt.Println("No backups yet.")
			return
		}
		for _, e := range entries {
			fmt.Println(formatEntry(e))
		}
	},
}

func formatEntry(e backupEntry) string {
	line := fmt.Sprintf("%s  %-6s  %s  %s",
		color.Dim(e.Date.Local().Format("2006-01-02 15:04:05")),
		e.Kind,
		color.Backup(e.Name),
		color.Dim(fmt.Sprintf("(%d files)", e.Files)),
	)
	if e.Thumbnail != "" {
		line += "  " + color.Dim("[screenshot]")
	}
	if e.Current {
		line += "  " + color.Success("◄ current")
	}
	return line
}

func init() {
	rootCmd.AddCommand(listCmd)
}
