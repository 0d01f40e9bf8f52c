package sync

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pos-system/possync/internal/schema"
)

// Repository is the part of an entity repository the daemon drives.
//
// CategoryRepository, ItemRepository and SaleRepository implement it. Each
// keeps LocalStore and RemoteStore converging for one record kind.
type Repository interface {
	// Kind returns the record kind the repository serves.
	Kind() schema.Kind

	// SyncAll fetches the whole remote collection and applies it locally.
	//
	// Categories and items replace the local table; sales are upserted so
	// unsynced local sales survive. Documents without a name are skipped.
	//
	// A remote failure is logged and reported through SyncResult.Offline,
	// never as an error. The error is non-nil only when the local store
	// fails.
	SyncAll(ctx context.Context) (SyncResult, error)

	// StartRealtimeSync subscribes to the remote change feed and applies
	// every batch locally, removals before upserts. There is at most one
	// subscription per repository; a second call returns
	// ErrAlreadyListening.
	//
	// The subscription lives until StopRealtimeSync, Close, or ctx ends.
	StartRealtimeSync(ctx context.Context) error

	// StopRealtimeSync closes the subscription. It is a no-op when realtime
	// sync is not running.
	StopRealtimeSync() error

	// Overflow receives a value whenever the ingestion queue dropped a
	// change. A full SyncAll brings the local table back in line.
	Overflow() <-chan struct{}

	// Stats reports ingestion counters.
	Stats() IngestStats

	// Wait blocks until detached pushes and queued ingestion writes have
	// finished.
	Wait(ctx context.Context) error

	// Close stops realtime sync and drains the workers.
	Close(ctx context.Context) error
}

// SyncResult summarizes one SyncAll run.
type SyncResult struct {
	Kind    schema.Kind `json:"kind" yaml:"kind"`
	Fetched int         `json:"fetched" yaml:"fetched"`
	Applied int         `json:"applied" yaml:"applied"`
	Skipped int         `json:"skipped" yaml:"skipped"`

	// Offline is set when the remote collection could not be fetched and
	// the local table was left untouched.
	Offline bool `json:"offline" yaml:"offline"`
}

// Options configure a repository. Zero values take the defaults below.
type Options struct {
	// Logger for sync activity (default: no-op).
	Logger *zap.Logger

	// IDs issues ids for new records. Categories and items default to
	// RemoteAssigned, sales to LocallyGenerated.
	IDs IDStrategy

	// PushLanes and PushDepth size the worker for detached remote writes.
	PushLanes int
	PushDepth int

	// IngestLanes and IngestDepth size the worker for feed writes.
	IngestLanes int
	IngestDepth int

	// PushTimeout bounds one detached remote write (default: 30s).
	PushTimeout time.Duration

	// Now returns the current time (default: time.Now).
	Now func() time.Time
}

// Default worker sizes.
const (
	DefaultPushLanes   = 4
	DefaultPushDepth   = 256
	DefaultIngestLanes = 4
	DefaultIngestDepth = 1024
	DefaultPushTimeout = 30 * time.Second
)

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.PushLanes <= 0 {
		o.PushLanes = DefaultPushLanes
	}
	if o.PushDepth <= 0 {
		o.PushDepth = DefaultPushDepth
	}
	if o.IngestLanes <= 0 {
		o.IngestLanes = DefaultIngestLanes
	}
	if o.IngestDepth <= 0 {
		o.IngestDepth = DefaultIngestDepth
	}
	if o.PushTimeout <= 0 {
		o.PushTimeout = DefaultPushTimeout
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

var (
	_ Repository = (*CategoryRepository)(nil)
	_ Repository = (*ItemRepository)(nil)
	_ Repository = (*SaleRepository)(nil)
)
