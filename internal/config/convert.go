package config

import (
	"go.uber.org/zap"

	"github.com/pos-system/possync/internal/daemon"
	"github.com/pos-system/possync/internal/docserver"
	"github.com/pos-system/possync/internal/logging"
	"github.com/pos-system/possync/internal/store/remote"
	possync "github.com/pos-system/possync/internal/sync"
)

// ClientConfig returns the remote client settings.
func (c *Config) ClientConfig() remote.ClientConfig {
	cc := remote.DefaultClientConfig()
	cc.BaseURL = c.Remote.URL
	if c.Remote.Timeout > 0 {
		cc.Timeout = c.Remote.Timeout
	}
	return cc
}

// SyncOptions returns the repository settings.
func (c *Config) SyncOptions(logger *zap.Logger) possync.Options {
	return possync.Options{
		Logger:      logger,
		PushLanes:   c.Sync.PushWorkers,
		PushDepth:   c.Sync.PushQueue,
		IngestLanes: c.Sync.IngestWorkers,
		IngestDepth: c.Sync.IngestQueue,
		PushTimeout: c.Sync.PushTimeout,
	}
}

// SchedulerConfig returns the sweep scheduler settings.
func (c *Config) SchedulerConfig() daemon.SchedulerConfig {
	return daemon.SchedulerConfig{
		Interval:     c.Sync.SweepInterval,
		MaxBackoff:   c.Sync.SweepMaxBackoff,
		ProbeTimeout: c.Sync.ProbeTimeout,
	}
}

// DaemonConfig returns the daemon settings.
func (c *Config) DaemonConfig(logger *zap.Logger) *daemon.Config {
	dc := daemon.DefaultConfig()
	dc.Sweep = c.SchedulerConfig()
	dc.WatchDebounce = c.Sync.WatchDebounce
	dc.DashboardPort = c.Dashboard.Port
	dc.Logger = logger
	return dc
}

// DocServerConfig returns the document server settings.
func (c *Config) DocServerConfig(logger *zap.Logger) docserver.Config {
	dc := docserver.DefaultConfig()
	dc.Addr = c.Server.Addr
	dc.DBPath = c.Server.Path
	dc.Logger = logger
	return dc
}

// LoggingConfig returns the logger settings.
func (c *Config) LoggingConfig() logging.Config {
	return logging.Config{
		Level:      c.Log.Level,
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
	}
}
