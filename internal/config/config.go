package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"github.com/robfig/cron/v3"
	yamlv3 "gopkg.in/yaml.v3"

	appLog "planmark/internal/log"
)

// EnvPrefix marks environment overrides, e.g. PLANMARK_STORE_DIR.
const EnvPrefix = "PLANMARK_"

// Store drivers.
const (
	DriverDir    = "dir"
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" koanf:"username" json:"username"`
	Password string `yaml:"password" koanf:"password" json:"-"`
}

// StoreConfig selects where documents live.
type StoreConfig struct {
	// Driver is one of "dir" (default), "sqlite" or "memory".
	Driver string `yaml:"driver" koanf:"driver" json:"driver"`
	// Dir is the markdown root for the dir driver.
	Dir string `yaml:"dir" koanf:"dir" json:"dir"`
	// Path is the database file for the sqlite driver.
	Path string `yaml:"path" koanf:"path" json:"path"`
	// Pattern limits which documents are aggregated (path.Match syntax).
	Pattern string `yaml:"pattern" koanf:"pattern" json:"pattern"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" koanf:"listen" json:"listen"`

	// Timezone is the IANA zone item times are interpreted in. "Local"
	// uses the host zone.
	Timezone string `yaml:"timezone" koanf:"timezone" json:"timezone"`

	// WeekStart is the first day of a week in week views:
	//   - "monday" (default)
	//   - "sunday"
	WeekStart string `yaml:"week_start" koanf:"week_start" json:"week_start"`

	// HorizonDays is how far ahead reminders and the ICS feed look.
	HorizonDays int `yaml:"horizon_days" koanf:"horizon_days" json:"horizon_days"`

	// ReminderCron is a standard 5-field cron spec for reminder scans.
	ReminderCron string `yaml:"reminder_cron" koanf:"reminder_cron" json:"reminder_cron"`

	// CacheSize is the number of parsed documents kept in memory.
	CacheSize int `yaml:"cache_size" koanf:"cache_size" json:"cache_size"`

	LogLevel  string `yaml:"log_level" koanf:"log_level" json:"log_level"`
	LogFormat string `yaml:"log_format" koanf:"log_format" json:"log_format"`

	// Widgets lists the keywords that open a widget block.
	Widgets []string `yaml:"widgets" koanf:"widgets" json:"widgets"`

	Store StoreConfig `yaml:"store" koanf:"store" json:"store"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" koanf:"basic_auth" json:"basic_auth,omitempty"`
}

var defaultWidgets = []string{"FINANCE", "CALORIE", "WORKOUTS", "SLEEP", "MOOD", "BOOKS", "HABITS"}

// DefaultPath is ~/.config/planmark/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".config", "planmark", "config.yaml")
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	c := &Config{}
	c.Normalize()
	return c
}

// Normalize fills in missing/zero values with defaults.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.Timezone == "" {
		c.Timezone = "Local"
	}
	switch strings.ToLower(c.WeekStart) {
	case "monday", "sunday":
		c.WeekStart = strings.ToLower(c.WeekStart)
	default:
		c.WeekStart = "monday"
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = 7
	}
	if c.ReminderCron == "" {
		c.ReminderCron = "*/5 * * * *"
	}
	if c.CacheSize <= 0 {
		c.CacheSize = 256
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "console"
	}
	if c.Widgets == nil {
		c.Widgets = append([]string(nil), defaultWidgets...)
	}
	if c.Store.Driver == "" {
		c.Store.Driver = DriverDir
	}
	if c.Store.Dir == "" {
		c.Store.Dir = "~/planmark"
	}
	if c.Store.Path == "" {
		c.Store.Path = "~/.local/share/planmark/planmark.db"
	}
	if c.BasicAuth != nil && c.BasicAuth.Username == "" && c.BasicAuth.Password == "" {
		c.BasicAuth = nil
	}
}

// Validate reports settings that Normalize cannot repair.
func (c *Config) Validate() error {
	var errs []error
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone %q: %w", c.Timezone, err))
	}
	if _, err := cron.ParseStandard(c.ReminderCron); err != nil {
		errs = append(errs, fmt.Errorf("reminder_cron %q: %w", c.ReminderCron, err))
	}
	switch c.Store.Driver {
	case DriverDir, DriverSQLite, DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("store.driver %q: want dir, sqlite or memory", c.Store.Driver))
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level %q: want debug, info, warn or error", c.LogLevel))
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format %q: want console or json", c.LogFormat))
	}
	return errors.Join(errs...)
}

// Location resolves Timezone, falling back to the host zone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", c.Timezone)
		return time.Local
	}
	return loc
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

// Load reads the YAML file at path, then applies PLANMARK_* environment
// overrides.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms first.
//   - Missing values are normalized to defaults, then the result is
//     validated.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		// First run: create default config file.
		if err := Save(path, DefaultConfig()); err != nil {
			return nil, fmt.Errorf("write default config: %w", err)
		}
		appLog.Info("created default config", "path", path)
		if data, err = os.ReadFile(path); err != nil {
			return nil, err
		}
	}

	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps PLANMARK_STORE_DIR to store.dir and PLANMARK_HORIZON_DAYS to
// horizon_days. Only the store and basic_auth sections nest.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	for _, section := range []string{"store", "basic_auth"} {
		if strings.HasPrefix(key, section+"_") {
			return section + "." + strings.TrimPrefix(key, section+"_")
		}
	}
	return key
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yamlv3.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".planmark-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
