// Package config loads and saves savekeeper profiles.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/savekeeper/savekeeper/pkg/errclass"
	"github.com/savekeeper/savekeeper/pkg/fsutil"
	"github.com/savekeeper/savekeeper/pkg/model"
	"github.com/savekeeper/savekeeper/pkg/names"
)

// DefaultProfileName is the profile created when no config file exists.
const DefaultProfileName = "Default"

// Config represents the savekeeper configuration file.
type Config struct {
	Selected       string        `yaml:"selected"`
	Logging        LoggingConfig `yaml:"logging"`
	ScreenshotPath string        `yaml:"screenshot_path"`
	MetricsAddr    string        `yaml:"metrics_addr"`
	Profiles       []Profile     `yaml:"profiles"`
}

// LoggingConfig configures logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json, text
}

// Profile pairs a watched savegame folder with a backup destination.
type Profile struct {
	Name                  string             `yaml:"name"`
	Source                string             `yaml:"source"`
	Destination           string             `yaml:"destination"`
	Screenshots           bool               `yaml:"screenshots"`
	ManualSaveDetection   bool               `yaml:"manual_save_detection"`
	AutoSavesMax          uint               `yaml:"auto_saves_max"`
	AutoSavesInterval     uint               `yaml:"auto_saves_interval"`
	AutoSavesIntervalUnit model.IntervalUnit `yaml:"auto_saves_interval_unit"`
}

// UnmarshalYAML fills fields missing from the document with profile defaults.
func (p *Profile) UnmarshalYAML(value *yaml.Node) error {
	type plain Profile
	raw := plain(DefaultProfile(""))
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*p = Profile(raw)
	return nil
}

// Interval returns the automatic backup interval as a duration.
func (p *Profile) Interval() time.Duration {
	return model.Interval(p.AutoSavesInterval, p.AutoSavesIntervalUnit)
}

// Ready reports whether the profile can be watched and backed up.
func (p *Profile) Ready() error {
	if p.Source == "" {
		return errclass.ErrConfigInvalid.WithMessagef("profile %q has no source folder", p.Name)
	}
	if p.Destination == "" {
		return errclass.ErrConfigInvalid.WithMessagef("profile %q has no destination folder", p.Name)
	}
	return nil
}

// SettingKeys lists the keys accepted by Set.
var SettingKeys = []string{
	"source",
	"destination",
	"screenshots",
	"manual_save_detection",
	"auto_saves_max",
	"auto_saves_interval",
	"auto_saves_interval_unit",
}

// Set updates one setting from its textual form.
func (p *Profile) Set(key, value string) error {
	switch key {
	case "source":
		p.Source = value
	case "destination":
		p.Destination = value
	case "screenshots":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return errclass.ErrConfigInvalid.WithMessagef("%s: %v", key, err)
		}
		p.Screenshots = b
	case "manual_save_detection":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return errclass.ErrConfigInvalid.WithMessagef("%s: %v", key, err)
		}
		p.ManualSaveDetection = b
	case "auto_saves_max", "auto_saves_interval":
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return errclass.ErrConfigInvalid.WithMessagef("%s: %v", key, err)
		}
		if key == "auto_saves_max" {
			p.AutoSavesMax = uint(n)
		} else {
			p.AutoSavesInterval = uint(n)
		}
	case "auto_saves_interval_unit":
		unit := model.IntervalUnit(strings.ToLower(value))
		if !unit.Valid() {
			return errclass.ErrConfigInvalid.WithMessagef("%s: unknown unit %q", key, value)
		}
		p.AutoSavesIntervalUnit = unit
	default:
		return errclass.ErrConfigInvalid.WithMessagef("unknown setting %q (valid: %s)", key, strings.Join(SettingKeys, ", "))
	}
	return nil
}

// DefaultProfile returns a profile with the stock settings.
func DefaultProfile(name string) Profile {
	return Profile{
		Name:                  name,
		Screenshots:           true,
		ManualSaveDetection:   true,
		AutoSavesMax:          12,
		AutoSavesInterval:     5,
		AutoSavesIntervalUnit: model.UnitMinutes,
	}
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Selected: DefaultProfileName,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		ScreenshotPath: filepath.Join(os.TempDir(), "savekeeper-screenshot.jpg"),
		Profiles:       []Profile{DefaultProfile(DefaultProfileName)},
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/savekeeper/config.yaml or the platform equivalent.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, "savekeeper", "config.yaml"), nil
}

// Load loads configuration from path.
// Returns default config if file doesn't exist.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	cfg.Profiles = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errclass.ErrParse.WithMessagef("parse config %s: %v", path, err)
	}
	if len(cfg.Profiles) == 0 {
		cfg.Profiles = []Profile{DefaultProfile(DefaultProfileName)}
	}
	if cfg.Selected == "" {
		cfg.Selected = cfg.Profiles[0].Name
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes configuration to path atomically.
func Save(path string, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := fsutil.AtomicWrite(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate checks profile names, units and the selection.
func (c *Config) Validate() error {
	if len(c.Profiles) == 0 {
		return errclass.ErrConfigInvalid.WithMessage("at least one profile is required")
	}
	seen := make(map[string]bool, len(c.Profiles))
	for i := range c.Profiles {
		p := &c.Profiles[i]
		if _, err := names.ValidateProfile(p.Name); err != nil {
			return errclass.ErrConfigInvalid.WithMessagef("profile #%d: %v", i+1, err)
		}
		if seen[p.Name] {
			return errclass.ErrConfigInvalid.WithMessagef("duplicate profile %q", p.Name)
		}
		seen[p.Name] = true
		if !p.AutoSavesIntervalUnit.Valid() {
			return errclass.ErrConfigInvalid.WithMessagef("profile %q: unknown interval unit %q", p.Name, p.AutoSavesIntervalUnit)
		}
		if p.Source != "" && p.Destination != "" && filepath.Clean(p.Source) == filepath.Clean(p.Destination) {
			return errclass.ErrConfigInvalid.WithMessagef("profile %q: source and destination must differ", p.Name)
		}
	}
	if !seen[c.Selected] {
		return errclass.ErrConfigInvalid.WithMessagef("selected profile %q does not exist", c.Selected)
	}
	return nil
}

// Profile returns the named profile, or the selected one when name is empty.
func (c *Config) Profile(name string) (*Profile, error) {
	if name == "" {
		name = c.Selected
	}
	for i := range c.Profiles {
		if c.Profiles[i].Name == name {
			return &c.Profiles[i], nil
		}
	}
	return nil, errclass.ErrNotFound.WithMessagef("profile %q", name)
}

// AddProfile appends a new profile with default settings.
func (c *Config) AddProfile(name string) (*Profile, error) {
	name, err := names.ValidateProfile(name)
	if err != nil {
		return nil, err
	}
	if _, err := c.Profile(name); err == nil {
		return nil, errclass.ErrAlreadyExists.WithMessagef("profile %q", name)
	}
	c.Profiles = append(c.Profiles, DefaultProfile(name))
	return &c.Profiles[len(c.Profiles)-1], nil
}

// RemoveProfile deletes a profile. The last profile cannot be removed.
// Removing the selected profile selects the first remaining one.
func (c *Config) RemoveProfile(name string) error {
	idx := -1
	for i := range c.Profiles {
		if c.Profiles[i].Name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return errclass.ErrNotFound.WithMessagef("profile %q", name)
	}
	if len(c.Profiles) == 1 {
		return errclass.ErrConfigInvalid.WithMessage("cannot remove the last profile")
	}
	c.Profiles = append(c.Profiles[:idx], c.Profiles[idx+1:]...)
	if c.Selected == name {
		c.Selected = c.Profiles[0].Name
	}
	return nil
}

// RenameProfile changes a profile's name, keeping the selection on it.
func (c *Config) RenameProfile(oldName, newName string) error {
	newName, err := names.ValidateProfile(newName)
	if err != nil {
		return err
	}
	p, err := c.Profile(oldName)
	if err != nil {
		return err
	}
	if oldName == newName {
		return nil
	}
	if _, err := c.Profile(newName); err == nil {
		return errclass.ErrAlreadyExists.WithMessagef("profile %q", newName)
	}
	p.Name = newName
	if c.Selected == oldName {
		c.Selected = newName
	}
	return nil
}

// Select makes name the active profile.
func (c *Config) Select(name string) error {
	if _, err := c.Profile(name); err != nil {
		return err
	}
	c.Selected = name
	return nil
}
