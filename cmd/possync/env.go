package main

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/pos-system/possync/internal/config"
	"github.com/pos-system/possync/internal/logging"
	"github.com/pos-system/possync/internal/store/local"
	"github.com/pos-system/possync/internal/store/remote"
	possync "github.com/pos-system/possync/internal/sync"
)

// env is what a command needs to reach the local database and the remote
// store.
type env struct {
	cfg      *config.Config
	logger   *zap.Logger
	closeLog func() error

	db     *local.DB
	client *remote.Client
	repos  *possync.Repositories
}

// loadConfig reads the config and applies flag overrides. --verbose lowers
// the log level to debug.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.DBPath != "" {
		cfg.Local.Path = opts.DBPath
	}
	if opts.RemoteURL != "" {
		cfg.Remote.URL = opts.RemoteURL
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

// newLogger builds the process logger. Commands other than daemon and serve
// log warnings and above only, unless --verbose is set.
func newLogger(cfg *config.Config, quiet bool) (*zap.Logger, func() error, error) {
	lc := cfg.LoggingConfig()
	if quiet && lc.Level != "debug" {
		lc.Level = "warn"
	}
	logger, closeFn, err := logging.New(lc)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to set up logging", err)
	}
	return logger, closeFn, nil
}

// openEnv opens the local database and the remote client and builds the
// repositories over them.
func openEnv(opts *RootOptions, quiet bool) (*env, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	logger, closeLog, err := newLogger(cfg, quiet)
	if err != nil {
		return nil, err
	}

	db, err := local.Open(cfg.Local.Path, local.WithLogger(logger))
	if err != nil {
		_ = closeLog()
		return nil, WrapExitError(ExitCommandError, "failed to open local database", err)
	}

	client := remote.NewClient(cfg.ClientConfig(), logger)
	repos := possync.NewRepositories(db, client, cfg.SyncOptions(logger))

	return &env{
		cfg:      cfg,
		logger:   logger,
		closeLog: closeLog,
		db:       db,
		client:   client,
		repos:    repos,
	}, nil
}

// Close waits for pending remote pushes, bounded by the push timeout, then
// releases everything.
func (e *env) Close() error {
	timeout := e.cfg.Sync.PushTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if err := e.repos.Close(ctx); err != nil {
		e.logger.Warn("pending remote pushes abandoned", zap.Error(err))
	}
	errs = append(errs, e.client.Close(), e.db.Close(), e.closeLog())
	return errors.Join(errs...)
}
