package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/savekeeper/savekeeper/internal/doctor"
	"github.com/savekeeper/savekeeper/pkg/color"
)

var (
	doctorStrict bool
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check profile health",
	Long: `Check profile health.

Checks the savegame and backup folders, looks for interrupted backups and
leftover temporary files, and verifies the journal's hash chain.
Use --strict to also re-hash every backup.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		s := requireSession(false)

		doc := doctor.NewDoctor(s.profile, s.manager.Store(), s.journal)
		result, err := doc.Check(doctorStrict)
		if err != nil {
			fmtErr("doctor: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(result)
			if !result.Healthy {
				os.Exit(1)
			}
			return
		}

		if len(result.Findings) == 0 {
			fmt.Printf("Profile %s is healthy.\n", result.Profile)
			return
		}

		fmt.Printf("Findings (%d):\n", len(result.Findings))
		for _, f := range result.Findings {
			fmt.Printf("  [%s] %s: %s\n", color.Severity(f.Severity), f.Category, f.Description)
			if f.Path != "" {
				fmt.Printf("      %s\n", color.Dim(f.Path))
			}
		}

		if !result.Healthy {
			os.Exit(1)
		}
	},
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorStrict, "strict", false, "include full backup verification")
	rootCmd.AddCommand(doctorCmd)
}
