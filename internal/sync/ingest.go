package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/pos-system/possync/internal/schema"
	"github.com/pos-system/possync/internal/store/remote"
)

// applier writes remote changes of one kind into LocalStore.
type applier interface {
	applyRemove(ctx context.Context, id string) error
	applyUpsert(ctx context.Context, id string, doc schema.Document) error
}

// IngestStats counts what the ingestion pipeline did since it was created.
type IngestStats struct {
	Listening bool  `json:"listening" yaml:"listening"`
	Batches   int64 `json:"batches" yaml:"batches"`
	Upserted  int64 `json:"upserted" yaml:"upserted"`
	Removed   int64 `json:"removed" yaml:"removed"`
	Skipped   int64 `json:"skipped" yaml:"skipped"`
	Failed    int64 `json:"failed" yaml:"failed"`
	Dropped   int64 `json:"dropped" yaml:"dropped"`
}

// pipeline applies a remote change feed to LocalStore.
//
// The feed callback only queues work: each change becomes a task on the
// ingest worker keyed by record id. Removals are queued before upserts, and
// tasks for one id share a lane, so a batch that removes and re-adds the same
// id ends with the record present.
//
// Lanes are picked by a hash of the id, so a slow local write also delays
// every other id that hashes to its lane. The feed callback itself never
// waits on a lane.
type pipeline struct {
	kind   schema.Kind
	remote remote.Store
	worker *Worker
	apply  applier
	logger *zap.Logger

	mu     gosync.Mutex
	sub    remote.Subscription
	cancel context.CancelFunc

	overflow chan struct{}

	batches  atomic.Int64
	upserted atomic.Int64
	removed  atomic.Int64
	skipped  atomic.Int64
	failed   atomic.Int64
	dropped  atomic.Int64
}

func newPipeline(kind schema.Kind, store remote.Store, worker *Worker, apply applier, logger *zap.Logger) *pipeline {
	return &pipeline{
		kind:     kind,
		remote:   store,
		worker:   worker,
		apply:    apply,
		logger:   logger,
		overflow: make(chan struct{}, 1),
	}
}

func (p *pipeline) start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sub != nil {
		return ErrAlreadyListening
	}

	ctx, cancel := context.WithCancel(ctx)
	sub, err := p.remote.Listen(ctx, p.kind, p.handle)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to listen on %s: %w", p.kind, err)
	}
	p.sub = sub
	p.cancel = cancel

	p.logger.Info("realtime sync started")
	return nil
}

func (p *pipeline) stop() error {
	p.mu.Lock()
	sub, cancel := p.sub, p.cancel
	p.sub, p.cancel = nil, nil
	p.mu.Unlock()

	if sub == nil {
		return nil
	}
	cancel()
	if err := sub.Close(); err != nil {
		return fmt.Errorf("failed to close %s subscription: %w", p.kind, err)
	}
	p.logger.Info("realtime sync stopped")
	return nil
}

func (p *pipeline) listening() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sub != nil
}

// handle is the feed callback. It must not block.
func (p *pipeline) handle(b remote.Batch) {
	p.batches.Add(1)
	if b.Empty() {
		return
	}
	p.logger.Debug("batch received",
		zap.Bool("snapshot", b.Snapshot),
		zap.Int("upserts", len(b.Upserts)),
		zap.Int("removed", len(b.Removed)))

	for _, id := range b.Removed {
		p.submit(id, "remove", func(ctx context.Context) error {
			if err := p.apply.applyRemove(ctx, id); err != nil {
				return err
			}
			p.removed.Add(1)
			return nil
		})
	}
	for _, ch := range b.Upserts {
		p.submit(ch.ID, "upsert", func(ctx context.Context) error {
			err := p.apply.applyUpsert(ctx, ch.ID, ch.Fields)
			var de *schema.DecodeError
			if errors.As(err, &de) {
				p.skipped.Add(1)
				if errors.Is(err, schema.ErrMissingName) {
					p.logger.Debug("skipped document without name", zap.String("id", ch.ID))
				} else {
					p.logger.Warn("skipped malformed document", zap.String("id", ch.ID), zap.Error(err))
				}
				return nil
			}
			if err != nil {
				return err
			}
			p.upserted.Add(1)
			return nil
		})
	}
}

func (p *pipeline) submit(id, op string, fn func(ctx context.Context) error) {
	err := p.worker.Submit(id, op, func(ctx context.Context) {
		if err := fn(ctx); err != nil {
			p.failed.Add(1)
			p.logger.Warn("failed to apply remote change",
				zap.String("op", op), zap.String("id", id), zap.Error(err))
		}
	})
	if err == nil {
		return
	}

	p.dropped.Add(1)
	p.logger.Warn("remote change dropped", zap.String("op", op), zap.String("id", id), zap.Error(err))
	select {
	case p.overflow <- struct{}{}:
	default:
	}
}

func (p *pipeline) stats() IngestStats {
	return IngestStats{
		Listening: p.listening(),
		Batches:   p.batches.Load(),
		Upserted:  p.upserted.Load(),
		Removed:   p.removed.Load(),
		Skipped:   p.skipped.Load(),
		Failed:    p.failed.Load(),
		Dropped:   p.dropped.Load(),
	}
}
