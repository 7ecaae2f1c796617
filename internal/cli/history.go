package cli

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/savekeeper/savekeeper/internal/journal"
	"github.com/savekeeper/savekeeper/pkg/color"
	"github.com/savekeeper/savekeeper/pkg/model"
)

var (
	historyLimit       int
	historyEvent       string
	historyBackup      string
	historySince       time.Duration
	historyAllProfiles bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the journal of backup operations",
	Long: `Show the journal of backup operations.

Every backup, rename, deletion, restore and retention cleanup is recorded.

Examples:
  savekeeper history                      # selected profile
  savekeeper history -n 20                # last 20 entries
  savekeeper history --event restore      # restores only
  savekeeper history --since 24h          # entries of the last day
  savekeeper history --all-profiles`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		s := requireSession(false)

		f := journal.Filter{
			Backup: historyBackup,
			Event:  model.JournalEventType(historyEvent),
			Limit:  historyLimit,
		}
		if !historyAllProfiles {
			f.Profile = s.profile.Name
		}
		if historySince > 0 {
			f.Since = time.Now().Add(-historySince)
		}

		records, err := s.journal.Records(f)
		if err != nil {
			fmtErr("read journal: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(records)
			return
		}

		if len(records) == 0 {
			fmt.Println("No journal entries.")
			return
		}
		for _, r := range records {
			line := fmt.Sprintf("%s  %-14s", color.Dim(r.Timestamp.Local().Format("2006-01-02 15:04:05")), r.EventType)
			if historyAllProfiles {
				line += "  " + r.Profile
			}
			if r.Backup != "" {
				line += "  " + color.Backup(r.Backup)
			}
			if details := formatDetails(r.Details); details != "" {
				line += "  " + color.Dim(details)
			}
			fmt.Println(line)
		}
	},
}

func formatDetails(details map[string]any) string {
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, details[k]))
	}
	return strings.Join(parts, " ")
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 0, "limit number of entries (0 = all)")
	historyCmd.Flags().StringVar(&historyEvent, "event", "", "filter by event type")
	historyCmd.Flags().StringVar(&historyBackup, "backup", "", "filter by backup name")
	historyCmd.Flags().DurationVar(&historySince, "since", 0, "only entries newer than this duration")
	historyCmd.Flags().BoolVar(&historyAllProfiles, "all-profiles", false, "show entries of every profile")
	rootCmd.AddCommand(historyCmd)
}
