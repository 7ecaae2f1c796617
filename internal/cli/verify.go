package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/savekeeper/savekeeper/internal/verify"
	"github.com/savekeeper/savekeeper/pkg/color"
	"github.com/savekeeper/savekeeper/pkg/progress"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [<backup>]",
	Short: "Verify backup integrity",
	Long: `Verify backup integrity.

Re-hashes the files of each backup and compares them with its manifest.

Examples:
  savekeeper verify                 # verify all backups of the profile
  savekeeper verify "before boss"   # verify one backup`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := requireSession(true)
		verifier := verify.NewVerifier(s.manager.Store(), s.profile.Destination)

		if len(args) == 1 {
			meta := s.requireBackup(args[0])
			result, err := verifier.VerifyBackup(meta.Name)
			if err != nil {
				fmtErr("verify: %v", err)
				os.Exit(1)
			}
			if jsonOutput {
				outputJSON(result)
			} else {
				printVerifyResult(result)
			}
			if result.TamperDetected {
				os.Exit(1)
			}
			return
		}

		bar := progress.NewTerminal(!jsonOutput)
		verifier.SetProgress(bar.Callback())
		results, err := verifier.VerifyAll()
		bar.Done()
		if err != nil {
			fmtErr("verify: %v", err)
			os.Exit(1)
		}

		tampered := false
		for _, r := range results {
			tampered = tampered || r.TamperDetected
		}

		if jsonOutput {
			outputJSON(results)
		} else {
			if len(results) == 0 {
				fmt.Println("No backups to verify.")
			}
			for _, r := range results {
				printVerifyResult(r)
			}
		}
		if tampered {
			os.Exit(1)
		}
	},
}

func printVerifyResult(r *verify.Result) {
	if !r.TamperDetected {
		fmt.Printf("%s  %s\n", color.Backup(r.Backup), color.Success("OK"))
		return
	}
	fmt.Printf("%s  %s  %s\n", color.Backup(r.Backup), color.Error("DAMAGED"), r.Error)
	for _, p := range r.Problems {
		fmt.Printf("    %s %s\n", p.Status, p.Name)
	}
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
