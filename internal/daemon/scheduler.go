package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	possync "github.com/pos-system/possync/internal/sync"
)

var (
	// ErrSweepInProgress is returned when a sweep is requested while another
	// one is still running.
	ErrSweepInProgress = errors.New("sweep already in progress")

	// ErrOffline is returned when the connectivity probe fails before a sweep.
	ErrOffline = errors.New("remote store unreachable")
)

// Sweeper pushes pending local writes to the remote store.
type Sweeper interface {
	PushUnsynced(ctx context.Context) (possync.SweepResult, error)
}

// Prober checks that the remote store can be reached.
type Prober interface {
	Ping(ctx context.Context) error
}

// ProbeFunc adapts a function to the Prober interface.
type ProbeFunc func(ctx context.Context) error

// Ping calls f(ctx).
func (f ProbeFunc) Ping(ctx context.Context) error { return f(ctx) }

// SchedulerConfig holds configuration for the sweep scheduler.
type SchedulerConfig struct {
	// Interval between sweeps while they succeed
	Interval time.Duration

	// MaxBackoff caps the delay after repeated failures
	MaxBackoff time.Duration

	// ProbeTimeout bounds the connectivity check before each sweep
	ProbeTimeout time.Duration
}

// DefaultSchedulerConfig returns sensible defaults.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:     time.Minute,
		MaxBackoff:   time.Hour,
		ProbeTimeout: 5 * time.Second,
	}
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	d := DefaultSchedulerConfig()
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.MaxBackoff < c.Interval {
		c.MaxBackoff = max(d.MaxBackoff, c.Interval)
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = d.ProbeTimeout
	}
	return c
}

// SweepStatus describes the scheduler's most recent run.
type SweepStatus struct {
	Online     bool                `json:"online" yaml:"online"`
	Running    bool                `json:"running" yaml:"running"`
	LastRun    time.Time           `json:"last_run" yaml:"last_run"`
	LastResult possync.SweepResult `json:"last_result" yaml:"last_result"`
	LastError  string              `json:"last_error,omitempty" yaml:"last_error,omitempty"`
	Failures   int                 `json:"failures" yaml:"failures"`
	NextRun    time.Time           `json:"next_run" yaml:"next_run"`
}

// Scheduler runs the unsynced-sales sweep periodically. Each run is gated on
// a connectivity probe, runs never overlap, and after a failed sweep the
// next one is delayed with exponential backoff.
type Scheduler struct {
	sweeper Sweeper
	prober  Prober
	config  SchedulerConfig
	logger  *zap.Logger

	running atomic.Bool
	trigger chan struct{}

	mu       sync.Mutex
	status   SweepStatus
	onResult func(SweepStatus)
}

// NewScheduler creates a scheduler. A nil prober treats the remote as always
// reachable.
func NewScheduler(sweeper Sweeper, prober Prober, config SchedulerConfig, logger *zap.Logger) *Scheduler {
	if prober == nil {
		prober = ProbeFunc(func(context.Context) error { return nil })
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		sweeper: sweeper,
		prober:  prober,
		config:  config.withDefaults(),
		logger:  logger.Named("sweep"),
		trigger: make(chan struct{}, 1),
	}
}

// OnResult registers fn to be called after every scheduled run. It must be
// called before Run.
func (s *Scheduler) OnResult(fn func(SweepStatus)) {
	s.mu.Lock()
	s.onResult = fn
	s.mu.Unlock()
}

// TriggerNow asks Run to start a sweep without waiting for the next tick.
// Requests made while one is already pending are merged.
func (s *Scheduler) TriggerNow() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Status returns a snapshot of the scheduler state.
func (s *Scheduler) Status() SweepStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status
	st.Running = s.running.Load()
	return st
}

// Run sweeps once immediately and then on every tick or trigger until ctx is
// done.
func (s *Scheduler) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		case <-s.trigger:
		}
		timer.Reset(s.tick(ctx))
	}
}

// tick runs one sweep and returns the delay until the next one.
func (s *Scheduler) tick(ctx context.Context) time.Duration {
	_, err := s.RunOnce(ctx)

	s.mu.Lock()
	delay := s.config.Interval
	if err != nil && !errors.Is(err, ErrOffline) && !errors.Is(err, ErrSweepInProgress) {
		delay = calculateBackoff(s.config.Interval, s.config.MaxBackoff, s.status.Failures)
	}
	s.status.NextRun = time.Now().Add(delay)
	st := s.status
	fn := s.onResult
	s.mu.Unlock()

	if ctx.Err() == nil {
		s.logger.Debug("next sweep scheduled", zap.Duration("in", delay), zap.Int("failures", st.Failures))
		if fn != nil {
			fn(st)
		}
	}
	return delay
}

// RunOnce probes the remote store and, if it is reachable, runs one sweep.
// It returns ErrSweepInProgress if another sweep is running and wraps
// ErrOffline if the probe fails.
func (s *Scheduler) RunOnce(ctx context.Context) (possync.SweepResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		return possync.SweepResult{}, ErrSweepInProgress
	}
	defer s.running.Store(false)

	probeCtx, cancel := context.WithTimeout(ctx, s.config.ProbeTimeout)
	err := s.prober.Ping(probeCtx)
	cancel()
	if err != nil {
		s.mu.Lock()
		s.status.Online = false
		s.status.LastError = err.Error()
		s.mu.Unlock()
		s.logger.Info("remote unreachable, skipping sweep", zap.Error(err))
		return possync.SweepResult{}, fmt.Errorf("%w: %w", ErrOffline, err)
	}

	res, err := s.sweeper.PushUnsynced(ctx)

	s.mu.Lock()
	s.status.Online = true
	s.status.LastRun = time.Now()
	s.status.LastResult = res
	if err != nil {
		s.status.Failures++
		s.status.LastError = err.Error()
	} else {
		s.status.Failures = 0
		s.status.LastError = ""
	}
	s.mu.Unlock()

	return res, err
}

// calculateBackoff returns base * 2^failures, capped at limit.
func calculateBackoff(base, limit time.Duration, failures int) time.Duration {
	if failures <= 0 {
		return base
	}
	d := base
	for i := 0; i < failures; i++ {
		d *= 2
		if d >= limit || d <= 0 {
			return limit
		}
	}
	return d
}
