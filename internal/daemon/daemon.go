package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pos-system/possync/internal/dashboard"
	"github.com/pos-system/possync/internal/store/local"
	possync "github.com/pos-system/possync/internal/sync"
)

// ErrAlreadyRunning is returned by Start when another daemon holds the lock
// on the same database.
var ErrAlreadyRunning = errors.New("daemon already running for this database")

// Config holds configuration for the daemon.
type Config struct {
	// Sweep configures the unsynced-sales sweep scheduler
	Sweep SchedulerConfig

	// WatchDebounce batches external database writes before live queries
	// are refreshed. Negative disables the file watcher.
	WatchDebounce time.Duration

	// StatusInterval is how often the dashboard receives a status message
	StatusInterval time.Duration

	// DashboardPort for the WebSocket dashboard. Negative disables it.
	DashboardPort int

	// Logger for daemon activity
	Logger *zap.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Sweep:          DefaultSchedulerConfig(),
		WatchDebounce:  100 * time.Millisecond,
		StatusInterval: 5 * time.Second,
		DashboardPort:  8090,
		Logger:         zap.NewNop(),
	}
}

// Daemon keeps the local database in sync with the remote store while the
// POS is running.
type Daemon struct {
	db        *local.DB
	repos     *possync.Repositories
	config    *Config
	logger    *zap.Logger
	scheduler *Scheduler

	server  *dashboard.Server
	handler *dashboard.Handler

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped bool
}

// New creates a new Daemon instance.
//
// The daemon requires:
//   - db: the local database
//   - repos: repositories over db and the remote store
//   - prober: connectivity check run before each sweep (nil means always online)
//
// Use Start() to begin syncing.
func New(db *local.DB, repos *possync.Repositories, prober Prober, config *Config) (*Daemon, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if repos == nil {
		return nil, fmt.Errorf("repos cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.StatusInterval <= 0 {
		config.StatusInterval = DefaultConfig().StatusInterval
	}

	d := &Daemon{
		db:        db,
		repos:     repos,
		config:    config,
		logger:    logger.Named("daemon"),
		scheduler: NewScheduler(repos.Sales, prober, config.Sweep, logger),
	}

	if config.DashboardPort >= 0 {
		d.server = dashboard.NewServer(&dashboard.Config{Port: config.DashboardPort, Logger: logger})
		d.handler = dashboard.NewHandler(d.server, db, repos.All(), logger)
		d.scheduler.OnResult(d.publishSweep)
	}
	return d, nil
}

// Scheduler returns the daemon's sweep scheduler.
func (d *Daemon) Scheduler() *Scheduler {
	return d.scheduler
}

// DashboardAddr returns the dashboard's listening address, or "" if the
// dashboard is disabled.
func (d *Daemon) DashboardAddr() string {
	if d.server == nil {
		return ""
	}
	return d.server.GetAddr()
}

// Start begins the daemon's operation.
//
// The daemon will:
// 1. Take the single-instance lock beside the database
// 2. Run a full sync of every kind
// 3. Subscribe every kind to its change feed
// 4. Run the sweep scheduler, the dashboard and the overflow resync loops
//
// This blocks until ctx is cancelled, Stop is called, or an error occurs.
func (d *Daemon) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.cancel = cancel
	d.mu.Unlock()

	lock, err := acquireLock(d.db.Path() + ".daemon.lock")
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.release(); err != nil {
			d.logger.Warn("failed to release lock", zap.Error(err))
		}
	}()

	d.logger.Info("starting daemon", zap.String("db", d.db.Path()))

	if err := d.PerformFullSync(ctx); err != nil {
		return fmt.Errorf("initial sync failed: %w", err)
	}

	if err := d.repos.StartRealtimeSync(ctx); err != nil {
		return fmt.Errorf("failed to start realtime sync: %w", err)
	}
	defer func() {
		for _, r := range d.repos.All() {
			_ = r.StopRealtimeSync()
		}
	}()

	if d.config.WatchDebounce >= 0 {
		w, err := local.NewWatcher(d.db, d.config.WatchDebounce, d.logger)
		if err != nil {
			return err
		}
		if err := w.Start(); err != nil {
			_ = w.Stop()
			return err
		}
		defer func() { _ = w.Stop() }()
	}

	if d.server != nil {
		if err := d.server.Start(); err != nil {
			return fmt.Errorf("failed to start dashboard: %w", err)
		}
		defer func() {
			if err := d.server.Stop(); err != nil {
				d.logger.Warn("failed to stop dashboard", zap.Error(err))
			}
		}()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.scheduler.Run(gctx) })
	for _, r := range d.repos.All() {
		g.Go(func() error { return d.resyncOnOverflow(gctx, r) })
	}
	if d.handler != nil {
		g.Go(func() error { return d.handler.Run(gctx, d.config.StatusInterval) })
	}

	err = g.Wait()
	d.logger.Info("daemon stopped")
	return err
}

// Stop signals Start to shut down. It is safe to call more than once.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.cancel != nil {
		d.cancel()
	}
}

// PerformFullSync pulls every kind from the remote store. An unreachable
// remote is not an error; the local data is kept as is.
func (d *Daemon) PerformFullSync(ctx context.Context) error {
	start := time.Now()
	results, err := d.repos.SyncAll(ctx)
	if err != nil {
		return err
	}
	for _, res := range results {
		d.logger.Info("full sync",
			zap.String("kind", string(res.Kind)),
			zap.Bool("offline", res.Offline),
			zap.Int("fetched", res.Fetched),
			zap.Int("applied", res.Applied),
			zap.Int("skipped", res.Skipped))
	}
	if d.handler != nil {
		d.handler.OnSyncComplete(results, time.Since(start))
	}
	return nil
}

// resyncOnOverflow runs a full sync of r whenever its ingestion queue drops
// a change.
func (d *Daemon) resyncOnOverflow(ctx context.Context, r possync.Repository) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.Overflow():
		}

		d.logger.Warn("ingestion queue overflowed, resyncing", zap.String("kind", string(r.Kind())))
		start := time.Now()
		res, err := r.SyncAll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			d.logger.Error("resync failed", zap.String("kind", string(r.Kind())), zap.Error(err))
			continue
		}
		if d.handler != nil {
			d.handler.OnSyncComplete([]possync.SyncResult{res}, time.Since(start))
		}
	}
}

func (d *Daemon) publishSweep(st SweepStatus) {
	d.handler.OnSweepComplete(dashboard.SweepCompleteData{
		Online:    st.Online,
		Attempted: st.LastResult.Attempted,
		Pushed:    st.LastResult.Pushed,
		Failed:    st.LastResult.Failed,
		Error:     st.LastError,
		Duration:  st.LastResult.Duration,
		NextRun:   st.NextRun,
	})
}
