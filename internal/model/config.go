package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// JiraConfig holds connection and field-mapping settings for the remote
// Jira instance.
type JiraConfig struct {
	// BaseURL is the root URL of the Jira instance.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// Email is used together with the token for basic auth on Jira Cloud.
	Email string `mapstructure:"email" yaml:"email"`

	// Auth is "basic" (Cloud API token) or "bearer" (Server/DC PAT).
	Auth string `mapstructure:"auth" yaml:"auth"`

	StoryPointsField string `mapstructure:"story_points_field" yaml:"story_points_field"`
	SprintField      string `mapstructure:"sprint_field" yaml:"sprint_field"`

	// ProjectKeys restricts the sync to these projects when non-empty.
	ProjectKeys []string `mapstructure:"project_keys" yaml:"project_keys"`

	// RecentDays is the window counted as "recent updates" in metrics.
	RecentDays int `mapstructure:"recent_days" yaml:"recent_days"`

	// BlockerJQL selects the active blockers of a project. It is ANDed
	// with the project clause.
	BlockerJQL string `mapstructure:"blocker_jql" yaml:"blocker_jql"`

	PageSize int `mapstructure:"page_size" yaml:"page_size"`
}

// StoreConfig selects the local store backend.
type StoreConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `mapstructure:"driver" yaml:"driver"`
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
}

// SyncConfig controls the scheduler and orchestrator.
type SyncConfig struct {
	IntervalMinutes   int `mapstructure:"interval_minutes" yaml:"interval_minutes"`
	FullEveryHours    int `mapstructure:"full_every_hours" yaml:"full_every_hours"`
	FetchConcurrency  int `mapstructure:"fetch_concurrency" yaml:"fetch_concurrency"`
	RunTimeoutMinutes int `mapstructure:"run_timeout_minutes" yaml:"run_timeout_minutes"`
}

// Interval returns the scheduler period.
func (c SyncConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// FullEvery returns the maximum age of the last full run before the
// scheduler forces another one.
func (c SyncConfig) FullEvery() time.Duration {
	return time.Duration(c.FullEveryHours) * time.Hour
}

// RunTimeout returns the per-run deadline.
func (c SyncConfig) RunTimeout() time.Duration {
	return time.Duration(c.RunTimeoutMinutes) * time.Minute
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	File       string `mapstructure:"file" yaml:"file"`
	Console    bool   `mapstructure:"console" yaml:"console"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Jira   JiraConfig   `mapstructure:"jira" yaml:"jira"`
	Store  StoreConfig  `mapstructure:"store" yaml:"store"`
	Sync   SyncConfig   `mapstructure:"sync" yaml:"sync"`
	Server ServerConfig `mapstructure:"server" yaml:"server"`
	Log    LogConfig    `mapstructure:"log" yaml:"log"`
}

// envPrefix is the prefix of environment overrides (PMSYNC_SYNC_INTERVAL_MINUTES, ...).
const envPrefix = "PMSYNC"

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/pmsync/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "pmsync", "config.yaml")
}

// DefaultDataDir returns the directory holding the database and logs.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share", "pmsync")
}

func setDefaults(v *viper.Viper) {
	dataDir := DefaultDataDir()

	v.SetDefault("jira.auth", "basic")
	v.SetDefault("jira.story_points_field", "customfield_10016")
	v.SetDefault("jira.sprint_field", "customfield_10020")
	v.SetDefault("jira.recent_days", 7)
	v.SetDefault("jira.blocker_jql", `(status = "Blocked" OR flagged is not EMPTY) AND statusCategory != Done`)
	v.SetDefault("jira.page_size", 100)

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", filepath.Join(dataDir, "pmsync.db"))

	v.SetDefault("sync.interval_minutes", 15)
	v.SetDefault("sync.full_every_hours", 24)
	v.SetDefault("sync.fetch_concurrency", 4)
	v.SetDefault("sync.run_timeout_minutes", 30)

	v.SetDefault("server.addr", ":8080")

	v.SetDefault("log.level", "INFO")
	v.SetDefault("log.file", filepath.Join(dataDir, "logs", "pmsync.log"))
	v.SetDefault("log.console", false)
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_age_days", 7)
	v.SetDefault("log.max_backups", 5)
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// LoadConfig reads configuration from the given YAML file path using
// Viper. A missing file yields the defaults (plus environment overrides).
func LoadConfig(path string) (*AppConfig, error) {
	v := newViper(path)
	if err := readConfig(v, path); err != nil {
		return nil, err
	}
	return decode(v, path)
}

func readConfig(v *viper.Viper, path string) error {
	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		if errors.As(err, &pathErr) {
			return nil
		}
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	return nil
}

func decode(v *viper.Viper, path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.applyFloors()
	return &cfg, cfg.Validate()
}

// applyFloors replaces nonsensical zero or negative values with the
// built-in defaults.
func (c *AppConfig) applyFloors() {
	if c.Sync.IntervalMinutes <= 0 {
		c.Sync.IntervalMinutes = 15
	}
	if c.Sync.FullEveryHours <= 0 {
		c.Sync.FullEveryHours = 24
	}
	if c.Sync.FetchConcurrency <= 0 {
		c.Sync.FetchConcurrency = 1
	}
	if c.Sync.RunTimeoutMinutes <= 0 {
		c.Sync.RunTimeoutMinutes = 30
	}
	if c.Jira.RecentDays <= 0 {
		c.Jira.RecentDays = 7
	}
	if c.Jira.PageSize <= 0 {
		c.Jira.PageSize = 100
	}
}

// Validate checks the values that cannot be defaulted.
func (c *AppConfig) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported store driver %q", c.Store.Driver)
	}
	switch c.Jira.Auth {
	case "basic", "bearer":
	default:
		return fmt.Errorf("unsupported jira auth %q", c.Jira.Auth)
	}
	return nil
}

// WatchConfig re-reads the file at path whenever it changes on disk and
// hands the new configuration to onChange. Invalid edits are reported
// through onError and otherwise ignored.
func WatchConfig(path string, onChange func(*AppConfig), onError func(error)) {
	if _, err := os.Stat(path); err != nil {
		// Nothing to watch; defaults and env stay in effect.
		return
	}
	v := newViper(path)
	if err := readConfig(v, path); err != nil {
		onError(err)
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := decode(v, e.Name)
		if err != nil {
			onError(err)
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("jira", cfg.Jira)
	v.Set("store", cfg.Store)
	v.Set("sync", cfg.Sync)
	v.Set("server", cfg.Server)
	v.Set("log", cfg.Log)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
