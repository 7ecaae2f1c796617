package cli

import (
	"fmt"
	"strings"

	"github.com/savekeeper/savekeeper/pkg/color"
	"github.com/savekeeper/savekeeper/pkg/config"
	"github.com/savekeeper/savekeeper/pkg/model"
)

// suggestBackups offers close matches when a backup name is not found.
func suggestBackups(query string, list []*model.SavegameMeta) string {
	if len(list) == 0 {
		return "No backups exist yet."
	}

	var matches []string
	for _, b := range list {
		if fuzzyMatch(b.Name, query) {
			matches = append(matches, color.Backup(b.Name))
		}
		if len(matches) == 3 {
			break
		}
	}
	if len(matches) > 0 {
		return didYouMean(matches)
	}
	return fmt.Sprintf("Run %s to see available backups.", color.Code("savekeeper list"))
}

// suggestProfiles offers close matches when a profile name is not found.
func suggestProfiles(query string, cfg *config.Config) string {
	var matches []string
	for _, p := range cfg.Profiles {
		if fuzzyMatch(p.Name, query) {
			matches = append(matches, color.Success(p.Name))
		}
	}
	if len(matches) > 0 {
		return didYouMean(matches)
	}
	return fmt.Sprintf("Run %s to see available profiles.", color.Code("savekeeper profile list"))
}

func fuzzyMatch(name, query string) bool {
	if query == "" {
		return false
	}
	n, q := strings.ToLower(name), strings.ToLower(query)
	return strings.HasPrefix(n, q) || strings.Contains(n, q)
}

func didYouMean(matches []string) string {
	hint := "Did you mean"
	if len(matches) > 1 {
		hint += " one of"
	}
	return fmt.Sprintf("%s: %s?", hint, strings.Join(matches, ", "))
}
