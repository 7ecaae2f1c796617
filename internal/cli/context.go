package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/savekeeper/savekeeper/internal/backup"
	"github.com/savekeeper/savekeeper/internal/journal"
	"github.com/savekeeper/savekeeper/internal/lock"
	"github.com/savekeeper/savekeeper/internal/store"
	"github.com/savekeeper/savekeeper/internal/trash"
	"github.com/savekeeper/savekeeper/pkg/color"
	"github.com/savekeeper/savekeeper/pkg/config"
	"github.com/savekeeper/savekeeper/pkg/errclass"
	"github.com/savekeeper/savekeeper/pkg/logging"
	"github.com/savekeeper/savekeeper/pkg/metrics"
	"github.com/savekeeper/savekeeper/pkg/model"
)

// session bundles what a profile command works with.
type session struct {
	cfgPath string
	cfg     *config.Config
	profile *config.Profile
	journal *journal.Journal
	manager *backup.Manager
	locks   *lock.Manager
}

func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	path, err := config.DefaultPath()
	if err != nil {
		fmtErr("%v", err)
		os.Exit(1)
	}
	return path
}

// requireConfig loads the config file and configures logging from it, or exits with error.
func requireConfig() (*config.Config, string) {
	path := resolveConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		fmtErr("load config: %v", err)
		os.Exit(1)
	}
	setupLogging(cfg)
	return cfg, path
}

func setupLogging(cfg *config.Config) {
	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	logging.SetGlobal(logging.NewLoggerWithFormat(logging.ParseLevel(level), logging.Format(cfg.Logging.Format)))
}

// saveConfig writes cfg back, or exits with error.
func saveConfig(path string, cfg *config.Config) {
	if err := config.Save(path, cfg); err != nil {
		fmtErr("save config: %v", err)
		os.Exit(1)
	}
}

// requireSession resolves the profile from --profile or the selection.
// With ready set, a profile lacking source or destination is an error.
func requireSession(ready bool) *session {
	cfg, path := requireConfig()
	p, err := cfg.Profile(profileName)
	if err != nil {
		fmtErr("%v", err)
		fmt.Fprintln(os.Stderr, suggestProfiles(profileName, cfg))
		os.Exit(1)
	}
	if ready {
		if err := p.Ready(); err != nil {
			fmtErr("%v", err)
			fmt.Fprintf(os.Stderr, "Run %s to configure it.\n", color.Code("savekeeper profile set source|destination <dir>"))
			os.Exit(1)
		}
	}

	j := journal.New(journal.PathFor(path))
	s := store.New(trash.New(), cfg.ScreenshotPath)
	return &session{
		cfgPath: path,
		cfg:     cfg,
		profile: p,
		journal: j,
		manager: backup.NewManager(s, j, metrics.Default()),
		locks:   lock.NewManager(lock.DirFor(path), lock.DefaultLeaseTTL),
	}
}

// requireBackup reads a backup manifest of the session profile, or exits with a suggestion.
func (s *session) requireBackup(name string) *model.SavegameMeta {
	meta, err := s.manager.Read(s.profile, name)
	if err == nil {
		return meta
	}
	fmtErr("%v", err)
	if errors.Is(err, errclass.ErrNotFound) {
		list, _ := s.manager.List(s.profile)
		fmt.Fprintln(os.Stderr, suggestBackups(name, list))
	}
	os.Exit(1)
	return nil
}

func fmtErr(format string, args ...any) {
	prefix := "savekeeper: "
	if color.Enabled() {
		prefix = color.Error("savekeeper:") + " "
	}
	fmt.Fprintf(os.Stderr, prefix+format+"\n", args...)
}
