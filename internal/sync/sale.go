package sync

import (
	"context"

	"go.uber.org/zap"

	"github.com/pos-system/possync/internal/schema"
	"github.com/pos-system/possync/internal/store/local"
	"github.com/pos-system/possync/internal/store/remote"
)

// SaleRepository keeps the sales table and the remote "sales" collection
// converging. Sales carry a local IsSynced flag: a sale whose push failed
// stays unsynced until PushUnsynced delivers it.
type SaleRepository struct {
	*repository
}

// NewSaleRepository creates a repository with locally generated ids.
func NewSaleRepository(db *local.DB, store remote.Store, opts Options) *SaleRepository {
	r := &SaleRepository{}
	r.repository = newRepository(schema.KindSale, db, store, LocallyGenerated, opts, r)
	return r
}

// Add stores a sale as unsynced and pushes it in the background. A
// successful push marks it synced.
//
// An empty ID or Timestamp is filled in. The stored sale is returned.
func (r *SaleRepository) Add(ctx context.Context, s schema.Sale) (schema.Sale, error) {
	if s.ID == "" {
		s.ID = r.ids.NewID(schema.KindSale)
	}
	if s.Timestamp == 0 {
		s.Timestamp = r.opts.Now().UnixMilli()
	}
	if s.PaymentType == "" {
		s.PaymentType = schema.DefaultPaymentType
	}
	if s.ItemsJSON == "" {
		s.ItemsJSON = "[]"
	}
	s.IsSynced = false

	if err := r.local.UpsertSaleContext(ctx, &s); err != nil {
		return schema.Sale{}, err
	}
	r.logger.Info("sale recorded",
		zap.String("id", s.ID), zap.String("total", s.TotalAmount.StringFixed(2)), zap.String("payment", s.PaymentType))

	id := s.ID
	r.push(id, s.Document(), func(ctx context.Context) error {
		return r.local.MarkSaleSyncedContext(ctx, id)
	})
	return s, nil
}

// Delete removes a sale locally, then remotely in the background. A remote
// failure is logged and not retried.
func (r *SaleRepository) Delete(ctx context.Context, id string) error {
	if err := r.local.DeleteSaleContext(ctx, id); err != nil {
		return err
	}
	r.removeRemote(schema.KindSale, id)
	return nil
}

// Get returns one sale or ErrNotFound.
func (r *SaleRepository) Get(ctx context.Context, id string) (schema.Sale, error) {
	s, err := r.local.GetSaleContext(ctx, id)
	if err != nil {
		return schema.Sale{}, notFound(err, schema.KindSale, id)
	}
	return *s, nil
}

// List returns all sales, newest first.
func (r *SaleRepository) List(ctx context.Context) ([]schema.Sale, error) {
	return r.local.ListSalesContext(ctx)
}

// ListBetween returns sales with start <= timestamp <= end, newest first.
func (r *SaleRepository) ListBetween(ctx context.Context, start, end int64) ([]schema.Sale, error) {
	return r.local.ListSalesBetweenContext(ctx, start, end)
}

// Live streams all sales until ctx ends.
func (r *SaleRepository) Live(ctx context.Context) <-chan []schema.Sale {
	return r.local.LiveSales(ctx)
}

// LiveBetween streams the sales of one period until ctx ends.
func (r *SaleRepository) LiveBetween(ctx context.Context, start, end int64) <-chan []schema.Sale {
	return r.local.LiveSalesBetween(ctx, start, end)
}

// GetUnsynced returns the sales not yet confirmed by the remote, oldest
// first.
func (r *SaleRepository) GetUnsynced(ctx context.Context) ([]schema.Sale, error) {
	return r.local.ListUnsyncedSalesContext(ctx)
}

// MarkSynced records that the remote holds sale id.
func (r *SaleRepository) MarkSynced(ctx context.Context, id string) error {
	return r.local.MarkSaleSyncedContext(ctx, id)
}

// SyncAll implements Repository. Remote sales are upserted, never
// replacing the table, so local sales still waiting for a push survive.
func (r *SaleRepository) SyncAll(ctx context.Context) (SyncResult, error) {
	res := SyncResult{Kind: schema.KindSale}
	ids, docs, ok := r.fetch(ctx)
	if !ok {
		res.Offline = true
		return res, nil
	}

	now := r.opts.Now()
	sales, skipped := decodeAll(r.repository, ids, docs, func(id string, doc schema.Document) (schema.Sale, error) {
		return schema.DecodeSale(id, doc, now)
	})
	if err := r.local.UpsertSalesContext(ctx, sales); err != nil {
		return res, err
	}

	res.Fetched, res.Applied, res.Skipped = len(ids), len(sales), skipped
	r.logger.Info("full sync complete", zap.Int("fetched", res.Fetched), zap.Int("skipped", res.Skipped))
	return res, nil
}

func (r *SaleRepository) applyRemove(ctx context.Context, id string) error {
	return r.local.DeleteSaleContext(ctx, id)
}

func (r *SaleRepository) applyUpsert(ctx context.Context, id string, doc schema.Document) error {
	s, err := schema.DecodeSale(id, doc, r.opts.Now())
	if err != nil {
		return err
	}
	return r.local.UpsertSaleContext(ctx, &s)
}
