// Package config loads DirectGTD settings from a YAML file with
// environment overrides, and can write a commented starter config for
// first runs.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the full application configuration.
type Config struct {
	// DBPath is the SQLite database location.
	DBPath string `yaml:"db_path" mapstructure:"db_path"`
	// BackupsDir holds timestamped database backups.
	BackupsDir string `yaml:"backups_dir" mapstructure:"backups_dir"`

	Sync   SyncConfig   `yaml:"sync" mapstructure:"sync"`
	Remote RemoteConfig `yaml:"remote" mapstructure:"remote"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// SyncConfig tunes the background sync daemon.
type SyncConfig struct {
	Enabled          bool          `yaml:"enabled" mapstructure:"enabled"`
	DebounceInterval time.Duration `yaml:"debounce_interval" mapstructure:"debounce_interval"`
	PeriodicInterval time.Duration `yaml:"periodic_interval" mapstructure:"periodic_interval"`
	// TombstoneRetention is how long confirmed deletions are kept before
	// permanent purge.
	TombstoneRetention time.Duration `yaml:"tombstone_retention" mapstructure:"tombstone_retention"`
}

// RemoteConfig points at the remote record store.
type RemoteConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	// Token authenticates every request. Usually set via
	// DGTD_REMOTE_TOKEN rather than the file.
	Token string `yaml:"token" mapstructure:"token"`
	// NotifyURL is the websocket endpoint for change pings. Empty
	// disables the listener; the periodic timer still covers us.
	NotifyURL string `yaml:"notify_url" mapstructure:"notify_url"`
}

// LogConfig controls the daemon's rotating log file.
type LogConfig struct {
	File       string `yaml:"file" mapstructure:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
}

// DefaultDir returns the DirectGTD home directory (~/.directgtd).
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".directgtd"
	}
	return filepath.Join(home, ".directgtd")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), "config.yaml")
}

func setDefaults(v *viper.Viper, dir string) {
	v.SetDefault("db_path", filepath.Join(dir, "directgtd.db"))
	v.SetDefault("backups_dir", filepath.Join(dir, "backups"))
	v.SetDefault("sync.enabled", true)
	v.SetDefault("sync.debounce_interval", 2*time.Second)
	v.SetDefault("sync.periodic_interval", 5*time.Minute)
	v.SetDefault("sync.tombstone_retention", 30*24*time.Hour)
	v.SetDefault("remote.base_url", "")
	v.SetDefault("remote.token", "")
	v.SetDefault("remote.notify_url", "")
	v.SetDefault("log.file", filepath.Join(dir, "daemon.log"))
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
}

// Load reads the config file at path (DefaultPath when empty), applies
// defaults, and lets DGTD_* environment variables override everything. A
// missing file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	v := viper.New()
	setDefaults(v, filepath.Dir(path))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("DGTD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// WriteStarter writes a default config file at path unless one already
// exists.
func WriteStarter(path string) error {
	if path == "" {
		path = DefaultPath()
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	dir := filepath.Dir(path)
	cfg := Config{
		DBPath:     filepath.Join(dir, "directgtd.db"),
		BackupsDir: filepath.Join(dir, "backups"),
		Sync: SyncConfig{
			Enabled:            true,
			DebounceInterval:   2 * time.Second,
			PeriodicInterval:   5 * time.Minute,
			TombstoneRetention: 30 * 24 * time.Hour,
		},
		Log: LogConfig{
			File:       filepath.Join(dir, "daemon.log"),
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal starter config: %w", err)
	}
	header := "# DirectGTD configuration.\n# Environment variables with the DGTD_ prefix override any value here,\n# e.g. DGTD_REMOTE_TOKEN, DGTD_SYNC_ENABLED.\n"
	if err := os.WriteFile(path, append([]byte(header), data...), 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
