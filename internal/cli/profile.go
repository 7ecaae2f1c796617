package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/savekeeper/savekeeper/pkg/color"
	"github.com/savekeeper/savekeeper/pkg/config"
)

var (
	profileAddSource      string
	profileAddDestination string
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage profiles",
	Long: `Manage profiles.

A profile pairs a savegame folder with a backup folder and carries the backup
settings for that game.`,
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List profiles",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, _ := requireConfig()

		if jsonOutput {
			outputJSON(map[string]any{"selected": cfg.Selected, "profiles": cfg.Profiles})
			return
		}
		for _, p := range cfg.Profiles {
			marker := "  "
			name := p.Name
			if p.Name == cfg.Selected {
				marker = color.Success("* ")
				name = color.Success(name)
			}
			fmt.Printf("%s%s  %s -> %s\n", marker, name, orUnset(p.Source), orUnset(p.Destination))
		}
	},
}

var profileShowCmd = &cobra.Command{
	Use:   "show [<name>]",
	Short: "Show a profile's settings",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, _ := requireConfig()
		name := profileName
		if len(args) == 1 {
			name = args[0]
		}
		p := requireProfile(cfg, name)

		if jsonOutput {
			outputJSON(p)
			return
		}
		fmt.Printf("Profile:     %s\n", color.Header(p.Name))
		fmt.Printf("Source:      %s\n", orUnset(p.Source))
		fmt.Printf("Destination: %s\n", orUnset(p.Destination))
		fmt.Printf("Screenshots: %v\n", p.Screenshots)
		fmt.Printf("Manual save detection: %v\n", p.ManualSaveDetection)
		fmt.Printf("Automatic backups: %d, every %d %s\n", p.AutoSavesMax, p.AutoSavesInterval, p.AutoSavesIntervalUnit)
	},
}

var profileAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a profile with default settings",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, path := requireConfig()
		p, err := cfg.AddProfile(args[0])
		if err != nil {
			fmtErr("add profile: %v", err)
			os.Exit(1)
		}
		p.Source = profileAddSource
		p.Destination = profileAddDestination
		name := p.Name
		saveConfig(path, cfg)
		fmt.Printf("Added profile %s\n", color.Success(name))
	},
}

var profileRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a profile (its backups stay on disk)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, path := requireConfig()
		if err := cfg.RemoveProfile(args[0]); err != nil {
			fmtErr("remove profile: %v", err)
			os.Exit(1)
		}
		saveConfig(path, cfg)
		fmt.Printf("Removed profile %s\n", args[0])
	},
}

var profileRenameCmd = &cobra.Command{
	Use:   "rename <name> <new-name>",
	Short: "Rename a profile",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, path := requireConfig()
		if err := cfg.RenameProfile(args[0], args[1]); err != nil {
			fmtErr("rename profile: %v", err)
			os.Exit(1)
		}
		saveConfig(path, cfg)
		fmt.Printf("Renamed profile %s to %s\n", args[0], color.Success(args[1]))
	},
}

var profileSelectCmd = &cobra.Command{
	Use:   "select <name>",
	Short: "Select the profile used by default",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, path := requireConfig()
		requireProfile(cfg, args[0])
		if err := cfg.Select(args[0]); err != nil {
			fmtErr("select profile: %v", err)
			os.Exit(1)
		}
		saveConfig(path, cfg)
		fmt.Printf("Selected profile %s\n", color.Success(args[0]))
	},
}

var profileSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change a setting of the profile",
	Long: `Change a setting of the profile (--profile or the selected one).

Keys:
  source                     savegame folder to watch
  destination                folder that receives the backups
  screenshots                true|false, attach a screenshot to each backup
  manual_save_detection      true|false, classify backups automatically
  auto_saves_max             number of automatic backups to keep
  auto_saves_interval        minimum spacing of automatic backups
  auto_saves_interval_unit   seconds|minutes|hours`,
	Args: cobra.ExactArgs(2),
	ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) == 0 {
			return config.SettingKeys, cobra.ShellCompDirectiveNoFileComp
		}
		return nil, cobra.ShellCompDirectiveDefault
	},
	Run: func(cmd *cobra.Command, args []string) {
		cfg, path := requireConfig()
		p := requireProfile(cfg, profileName)
		if err := p.Set(args[0], args[1]); err != nil {
			fmtErr("%v", err)
			os.Exit(1)
		}
		name := p.Name
		saveConfig(path, cfg)
		fmt.Printf("%s: %s = %s\n", name, args[0], args[1])
	},
}

func requireProfile(cfg *config.Config, name string) *config.Profile {
	p, err := cfg.Profile(name)
	if err != nil {
		fmtErr("%v", err)
		fmt.Fprintln(os.Stderr, suggestProfiles(name, cfg))
		os.Exit(1)
	}
	return p
}

func orUnset(s string) string {
	if s == "" {
		return color.Dim("(unset)")
	}
	return s
}

func init() {
	profileAddCmd.Flags().StringVar(&profileAddSource, "source", "", "savegame folder to watch")
	profileAddCmd.Flags().StringVar(&profileAddDestination, "destination", "", "folder that receives the backups")
	profileCmd.AddCommand(profileListCmd, profileShowCmd, profileAddCmd, profileRemoveCmd, profileRenameCmd, profileSelectCmd, profileSetCmd)
	rootCmd.AddCommand(profileCmd)
}
