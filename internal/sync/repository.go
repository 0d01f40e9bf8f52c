package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/pos-system/possync/internal/schema"
	"github.com/pos-system/possync/internal/store/local"
	"github.com/pos-system/possync/internal/store/remote"
)

// repository is the plumbing shared by the entity repositories: the two
// stores, the detached push worker and the ingestion pipeline.
type repository struct {
	kind   schema.Kind
	local  *local.DB
	remote remote.Store
	ids    IDStrategy
	opts   Options
	logger *zap.Logger

	pushes *Worker
	ingest *Worker
	feed   *pipeline
}

func newRepository(kind schema.Kind, db *local.DB, store remote.Store, ids IDStrategy, opts Options, apply applier) *repository {
	opts = opts.withDefaults()
	if opts.IDs != nil {
		ids = opts.IDs
	}
	logger := opts.Logger.Named("sync." + string(kind))

	r := &repository{
		kind:   kind,
		local:  db,
		remote: store,
		ids:    ids,
		opts:   opts,
		logger: logger,
		pushes: NewWorker(string(kind)+".push", opts.PushLanes, opts.PushDepth, logger),
		ingest: NewWorker(string(kind)+".ingest", opts.IngestLanes, opts.IngestDepth, logger),
	}
	r.feed = newPipeline(kind, store, r.ingest, apply, logger)
	return r
}

// Kind implements Repository.
func (r *repository) Kind() schema.Kind { return r.kind }

// StartRealtimeSync implements Repository.
func (r *repository) StartRealtimeSync(ctx context.Context) error { return r.feed.start(ctx) }

// StopRealtimeSync implements Repository.
func (r *repository) StopRealtimeSync() error { return r.feed.stop() }

// Overflow implements Repository.
func (r *repository) Overflow() <-chan struct{} { return r.feed.overflow }

// Stats implements Repository.
func (r *repository) Stats() IngestStats { return r.feed.stats() }

// Wait implements Repository. Pushes are awaited first because the feed
// echoes them back as ingestion work.
func (r *repository) Wait(ctx context.Context) error {
	if err := r.pushes.Wait(ctx); err != nil {
		return err
	}
	return r.ingest.Wait(ctx)
}

// Close implements Repository.
func (r *repository) Close(ctx context.Context) error {
	var errs []error
	if err := r.feed.stop(); err != nil {
		errs = append(errs, err)
	}
	if err := r.pushes.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("%s push worker: %w", r.kind, err))
	}
	if err := r.ingest.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("%s ingest worker: %w", r.kind, err))
	}
	return errors.Join(errs...)
}

// push writes doc to the remote in the background. after runs only when the
// write succeeded. Failures are logged and otherwise ignored.
func (r *repository) push(id string, doc schema.Document, after func(ctx context.Context) error) {
	err := r.pushes.Submit(id, "push", func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, r.opts.PushTimeout)
		defer cancel()

		if err := r.remote.Set(ctx, r.kind, id, doc); err != nil {
			r.logger.Warn("remote push failed", zap.String("id", id), zap.Error(err))
			return
		}
		r.logger.Debug("pushed", zap.String("id", id))
		if after == nil {
			return
		}
		if err := after(ctx); err != nil {
			r.logger.Error("post-push update failed", zap.String("id", id), zap.Error(err))
		}
	})
	if err != nil {
		r.logger.Warn("remote push not scheduled", zap.String("id", id), zap.Error(err))
	}
}

// removeRemote deletes id from the remote collection of kind in the
// background. A failure is logged and not retried. The delete starts only
// after every channel in after is closed. The returned channel closes when
// the delete has run or could not be scheduled.
func (r *repository) removeRemote(kind schema.Kind, id string, after ...<-chan struct{}) <-chan struct{} {
	done := make(chan struct{})
	err := r.pushes.Submit(id, "delete", func(ctx context.Context) {
		defer close(done)
		for _, ch := range after {
			select {
			case <-ch:
			case <-ctx.Done():
			}
		}

		ctx, cancel := context.WithTimeout(ctx, r.opts.PushTimeout)
		defer cancel()

		if err := r.remote.Delete(ctx, kind, id); err != nil {
			r.logger.Warn("remote delete failed",
				zap.String("kind", string(kind)), zap.String("id", id), zap.Error(err))
		}
	})
	if err != nil {
		close(done)
		r.logger.Warn("remote delete not scheduled", zap.String("id", id), zap.Error(err))
	}
	return done
}

// fetch returns the remote collection in id order, or ok=false when the
// remote could not be reached.
func (r *repository) fetch(ctx context.Context) (ids []string, docs map[string]schema.Document, ok bool) {
	docs, err := r.remote.FetchAll(ctx, r.kind)
	if err != nil {
		r.logger.Warn("full sync skipped, remote fetch failed", zap.Error(err))
		return nil, nil, false
	}
	ids = make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, docs, true
}

// decodeAll decodes every fetched document, dropping the ones decode
// rejects. Missing names are expected and logged at debug level.
func decodeAll[T any](r *repository, ids []string, docs map[string]schema.Document, decode func(string, schema.Document) (T, error)) ([]T, int) {
	out := make([]T, 0, len(ids))
	skipped := 0
	for _, id := range ids {
		rec, err := decode(id, docs[id])
		if err != nil {
			skipped++
			if errors.Is(err, schema.ErrMissingName) {
				r.logger.Debug("skipped document without name", zap.String("id", id))
			} else {
				r.logger.Warn("skipped malformed document", zap.String("id", id), zap.Error(err))
			}
			continue
		}
		out = append(out, rec)
	}
	return out, skipped
}

func notFound(err error, kind schema.Kind, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return err
}
