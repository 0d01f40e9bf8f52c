// Package config loads possync settings from a config file, environment
// variables and built-in defaults, in increasing order of precedence:
// defaults, then the file, then POSSYNC_* variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. POSSYNC_REMOTE_URL.
const EnvPrefix = "POSSYNC"

// Config is the complete possync configuration.
type Config struct {
	Local     LocalConfig     `mapstructure:"local" json:"local" yaml:"local"`
	Remote    RemoteConfig    `mapstructure:"remote" json:"remote" yaml:"remote"`
	Sync      SyncConfig      `mapstructure:"sync" json:"sync" yaml:"sync"`
	Server    ServerConfig    `mapstructure:"server" json:"server" yaml:"server"`
	Dashboard DashboardConfig `mapstructure:"dashboard" json:"dashboard" yaml:"dashboard"`
	Log       LogConfig       `mapstructure:"log" json:"log" yaml:"log"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-" json:"file,omitempty" yaml:"file,omitempty"`
}

// LocalConfig locates the device database.
type LocalConfig struct {
	Path string `mapstructure:"path" json:"path" yaml:"path"`
}

// RemoteConfig locates the document server.
type RemoteConfig struct {
	URL     string        `mapstructure:"url" json:"url" yaml:"url"`
	Timeout time.Duration `mapstructure:"timeout" json:"timeout" yaml:"timeout"`
}

// SyncConfig tunes the repositories and the sweep scheduler.
type SyncConfig struct {
	PushWorkers     int           `mapstructure:"push_workers" json:"push_workers" yaml:"push_workers"`
	PushQueue       int           `mapstructure:"push_queue" json:"push_queue" yaml:"push_queue"`
	PushTimeout     time.Duration `mapstructure:"push_timeout" json:"push_timeout" yaml:"push_timeout"`
	IngestWorkers   int           `mapstructure:"ingest_workers" json:"ingest_workers" yaml:"ingest_workers"`
	IngestQueue     int           `mapstructure:"ingest_queue" json:"ingest_queue" yaml:"ingest_queue"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval" json:"sweep_interval" yaml:"sweep_interval"`
	SweepMaxBackoff time.Duration `mapstructure:"sweep_max_backoff" json:"sweep_max_backoff" yaml:"sweep_max_backoff"`
	ProbeTimeout    time.Duration `mapstructure:"probe_timeout" json:"probe_timeout" yaml:"probe_timeout"`
	WatchDebounce   time.Duration `mapstructure:"watch_debounce" json:"watch_debounce" yaml:"watch_debounce"`
}

// ServerConfig configures the document server run by `possync serve`.
type ServerConfig struct {
	Addr string `mapstructure:"addr" json:"addr" yaml:"addr"`
	Path string `mapstructure:"path" json:"path" yaml:"path"`
}

// DashboardConfig configures the daemon dashboard. A negative port disables
// it.
type DashboardConfig struct {
	Port int `mapstructure:"port" json:"port" yaml:"port"`
}

// LogConfig configures logging. An empty File logs to stderr only.
type LogConfig struct {
	Level      string `mapstructure:"level" json:"level" yaml:"level"`
	File       string `mapstructure:"file" json:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" json:"max_age_days" yaml:"max_age_days"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("local.path", "possync.db")

	v.SetDefault("remote.url", "http://localhost:8080")
	v.SetDefault("remote.timeout", 10*time.Second)

	v.SetDefault("sync.push_workers", 4)
	v.SetDefault("sync.push_queue", 256)
	v.SetDefault("sync.push_timeout", 30*time.Second)
	v.SetDefault("sync.ingest_workers", 4)
	v.SetDefault("sync.ingest_queue", 1024)
	v.SetDefault("sync.sweep_interval", time.Minute)
	v.SetDefault("sync.sweep_max_backoff", time.Hour)
	v.SetDefault("sync.probe_timeout", 5*time.Second)
	v.SetDefault("sync.watch_debounce", 100*time.Millisecond)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.path", "possync-remote.db")

	v.SetDefault("dashboard.port", 8090)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
}

// Load reads the configuration. An explicit path must exist; without one,
// possync.yaml (or .toml, .json) is looked up in the working directory and
// the user config directory, and a missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("possync")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "possync"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	c.File = v.ConfigFileUsed()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Local.Path) == "" {
		errs = append(errs, fmt.Errorf("local.path is required"))
	}
	if strings.TrimSpace(c.Remote.URL) == "" {
		errs = append(errs, fmt.Errorf("remote.url is required"))
	}
	for name, n := range map[string]int{
		"sync.push_workers":   c.Sync.PushWorkers,
		"sync.push_queue":     c.Sync.PushQueue,
		"sync.ingest_workers": c.Sync.IngestWorkers,
		"sync.ingest_queue":   c.Sync.IngestQueue,
	} {
		if n <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive (got %d)", name, n))
		}
	}
	if c.Sync.SweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("sync.sweep_interval must be positive (got %s)", c.Sync.SweepInterval))
	}
	if c.Sync.SweepMaxBackoff < c.Sync.SweepInterval {
		errs = append(errs, fmt.Errorf("sync.sweep_max_backoff (%s) must not be below sync.sweep_interval (%s)",
			c.Sync.SweepMaxBackoff, c.Sync.SweepInterval))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
