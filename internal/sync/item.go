package sync

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/pos-system/possync/internal/schema"
	"github.com/pos-system/possync/internal/store/local"
	"github.com/pos-system/possync/internal/store/remote"
)

// NewItem is the input to ItemRepository.Add.
type NewItem struct {
	Name       string
	Price      decimal.Decimal
	CategoryID string
	ItemType   string // default: schema.DefaultItemType
}

// ItemRepository keeps the item table and the remote "item" collection
// converging.
type ItemRepository struct {
	*repository
}

// NewItemRepository creates a repository with remote-assigned ids.
func NewItemRepository(db *local.DB, store remote.Store, opts Options) *ItemRepository {
	r := &ItemRepository{}
	r.repository = newRepository(schema.KindItem, db, store, RemoteAssigned(store), opts, r)
	return r
}

// Add creates an item locally and pushes it in the background.
func (r *ItemRepository) Add(ctx context.Context, in NewItem) (schema.Item, error) {
	it := schema.Item{
		ID:         r.ids.NewID(schema.KindItem),
		Name:       strings.TrimSpace(in.Name),
		Price:      in.Price,
		CategoryID: in.CategoryID,
		ItemType:   in.ItemType,
		CreatedAt:  r.opts.Now().UnixMilli(),
	}
	if it.ItemType == "" {
		it.ItemType = schema.DefaultItemType
	}
	if err := r.local.UpsertItemContext(ctx, &it); err != nil {
		return schema.Item{}, err
	}
	r.logger.Info("item added",
		zap.String("id", it.ID), zap.String("name", it.Name), zap.String("category", it.CategoryID))

	r.push(it.ID, it.Document(), nil)
	return it, nil
}

// Delete removes an item locally, then remotely in the background. A remote
// failure is logged and not retried.
func (r *ItemRepository) Delete(ctx context.Context, id string) error {
	if err := r.local.DeleteItemContext(ctx, id); err != nil {
		return err
	}
	r.removeRemote(schema.KindItem, id)
	return nil
}

// Get returns one item or ErrNotFound.
func (r *ItemRepository) Get(ctx context.Context, id string) (schema.Item, error) {
	it, err := r.local.GetItemContext(ctx, id)
	if err != nil {
		return schema.Item{}, notFound(err, schema.KindItem, id)
	}
	return *it, nil
}

// List returns items whose category exists.
func (r *ItemRepository) List(ctx context.Context) ([]schema.Item, error) {
	return r.local.ListItemsContext(ctx)
}

// ListByCategory returns the items of one category.
func (r *ItemRepository) ListByCategory(ctx context.Context, categoryID string) ([]schema.Item, error) {
	return r.local.ListItemsByCategoryContext(ctx, categoryID)
}

// Live streams the item list until ctx ends.
func (r *ItemRepository) Live(ctx context.Context) <-chan []schema.Item {
	return r.local.LiveItems(ctx)
}

// LiveByCategory streams the items of one category until ctx ends.
func (r *ItemRepository) LiveByCategory(ctx context.Context, categoryID string) <-chan []schema.Item {
	return r.local.LiveItemsByCategory(ctx, categoryID)
}

// SyncAll implements Repository by replacing the local table.
func (r *ItemRepository) SyncAll(ctx context.Context) (SyncResult, error) {
	res := SyncResult{Kind: schema.KindItem}
	ids, docs, ok := r.fetch(ctx)
	if !ok {
		res.Offline = true
		return res, nil
	}

	now := r.opts.Now()
	items, skipped := decodeAll(r.repository, ids, docs, func(id string, doc schema.Document) (schema.Item, error) {
		return schema.DecodeItem(id, doc, now)
	})
	if err := r.local.ReplaceItemsContext(ctx, items); err != nil {
		return res, err
	}

	res.Fetched, res.Applied, res.Skipped = len(ids), len(items), skipped
	r.logger.Info("full sync complete", zap.Int("fetched", res.Fetched), zap.Int("skipped", res.Skipped))
	return res, nil
}

func (r *ItemRepository) applyRemove(ctx context.Context, id string) error {
	return r.local.DeleteItemContext(ctx, id)
}

func (r *ItemRepository) applyUpsert(ctx context.Context, id string, doc schema.Document) error {
	it, err := schema.DecodeItem(id, doc, r.opts.Now())
	if err != nil {
		return err
	}
	return r.local.UpsertItemContext(ctx, &it)
}
