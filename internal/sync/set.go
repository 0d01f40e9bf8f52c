package sync

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/pos-system/possync/internal/store/local"
	"github.com/pos-system/possync/internal/store/remote"
)

// Repositories bundles the three entity repositories over one pair of
// stores.
type Repositories struct {
	Categories *CategoryRepository
	Items      *ItemRepository
	Sales      *SaleRepository
}

// NewRepositories creates all three repositories with shared options.
// opts.IDs is ignored so each kind keeps its own id strategy.
func NewRepositories(db *local.DB, store remote.Store, opts Options) *Repositories {
	opts.IDs = nil
	return &Repositories{
		Categories: NewCategoryRepository(db, store, opts),
		Items:      NewItemRepository(db, store, opts),
		Sales:      NewSaleRepository(db, store, opts),
	}
}

// All returns the repositories in cascade order.
func (rs *Repositories) All() []Repository {
	return []Repository{rs.Categories, rs.Items, rs.Sales}
}

// SyncAll runs a full sync of every kind concurrently.
func (rs *Repositories) SyncAll(ctx context.Context) ([]SyncResult, error) {
	all := rs.All()
	results := make([]SyncResult, len(all))

	g, ctx := errgroup.WithContext(ctx)
	for i, r := range all {
		g.Go(func() error {
			res, err := r.SyncAll(ctx)
			if err != nil {
				return fmt.Errorf("full sync of %s: %w", r.Kind(), err)
			}
			results[i] = res
			return nil
		})
	}
	return results, g.Wait()
}

// StartRealtimeSync subscribes every repository to its change feed. On
// failure the subscriptions already opened are closed again.
func (rs *Repositories) StartRealtimeSync(ctx context.Context) error {
	var started []Repository
	for _, r := range rs.All() {
		if err := r.StartRealtimeSync(ctx); err != nil {
			for _, s := range started {
				_ = s.StopRealtimeSync()
			}
			return err
		}
		started = append(started, r)
	}
	return nil
}

// Wait blocks until every repository is idle.
func (rs *Repositories) Wait(ctx context.Context) error {
	for _, r := range rs.All() {
		if err := r.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every repository.
func (rs *Repositories) Close(ctx context.Context) error {
	var errs []error
	for _, r := range rs.All() {
		if err := r.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
