package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/savekeeper/savekeeper/pkg/color"
)

var (
	jsonOutput  bool
	configPath  string
	profileName string
	logLevel    string
	noColor     bool
	rootCmd     = &cobra.Command{
		Use:   "savekeeper",
		Short: "savekeeper - automatic savegame backups",
		Long: `savekeeper watches a game's savegame folder and keeps versioned backups of it.

Every settled change is classified: a manual save becomes a keeper, quick
successive saves share a single temporary slot, and saves spaced further apart
than the configured interval rotate through a bounded set of automatic backups.
Any backup can be restored into the savegame folder.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			color.Init(noColor)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $XDG_CONFIG_HOME/savekeeper/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&profileName, "profile", "p", "", "profile to use (default: the selected profile)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

// outputJSON prints v as indented JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
