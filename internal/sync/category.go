package sync

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pos-system/possync/internal/schema"
	"github.com/pos-system/possync/internal/store/local"
	"github.com/pos-system/possync/internal/store/remote"
)

// CategoryRepository keeps the category table and the remote "category"
// collection converging.
type CategoryRepository struct {
	*repository
}

// NewCategoryRepository creates a repository with remote-assigned ids.
func NewCategoryRepository(db *local.DB, store remote.Store, opts Options) *CategoryRepository {
	r := &CategoryRepository{}
	r.repository = newRepository(schema.KindCategory, db, store, RemoteAssigned(store), opts, r)
	return r
}

// Add creates a category locally and pushes it in the background.
func (r *CategoryRepository) Add(ctx context.Context, name string) (schema.Category, error) {
	c := schema.Category{
		ID:        r.ids.NewID(schema.KindCategory),
		Name:      strings.TrimSpace(name),
		CreatedAt: r.opts.Now().UnixMilli(),
	}
	if err := r.local.UpsertCategoryContext(ctx, &c); err != nil {
		return schema.Category{}, err
	}
	r.logger.Info("category added", zap.String("id", c.ID), zap.String("name", c.Name))

	r.push(c.ID, c.Document(), nil)
	return c, nil
}

// Rename changes a category's name locally and pushes the new document.
func (r *CategoryRepository) Rename(ctx context.Context, id, name string) (schema.Category, error) {
	c, err := r.local.GetCategoryContext(ctx, id)
	if err != nil {
		return schema.Category{}, notFound(err, schema.KindCategory, id)
	}
	c.Name = strings.TrimSpace(name)
	if err := r.local.UpsertCategoryContext(ctx, c); err != nil {
		return schema.Category{}, err
	}
	r.push(c.ID, c.Document(), nil)
	return *c, nil
}

// Delete removes a category and every item in it.
//
// Items are deleted one by one, locally and then remotely. A failed item
// does not stop the loop and nothing is rolled back; the category itself is
// deleted last. Remote deletes run in the background and are not retried.
// The remote category delete waits for the item deletes, so the remote never
// holds items whose category is already gone.
// The returned error reports local failures only.
func (r *CategoryRepository) Delete(ctx context.Context, id string) error {
	itemIDs, err := r.local.ItemIDsByCategoryContext(ctx, id)
	if err != nil {
		return err
	}

	var (
		failed  []string
		removed []<-chan struct{}
	)
	for _, itemID := range itemIDs {
		if err := r.local.DeleteItemContext(ctx, itemID); err != nil {
			r.logger.Warn("cascade delete failed", zap.String("category", id), zap.String("item", itemID), zap.Error(err))
			failed = append(failed, itemID)
			continue
		}
		removed = append(removed, r.removeRemote(schema.KindItem, itemID))
	}

	if err := r.local.DeleteCategoryContext(ctx, id); err != nil {
		return err
	}
	r.removeRemote(schema.KindCategory, id, removed...)

	r.logger.Info("category deleted",
		zap.String("id", id), zap.Int("items", len(itemIDs)-len(failed)), zap.Int("failed", len(failed)))
	if len(failed) > 0 {
		return fmt.Errorf("category %s deleted, %d of %d items remain: %v", id, len(failed), len(itemIDs), failed)
	}
	return nil
}

// Get returns one category or ErrNotFound.
func (r *CategoryRepository) Get(ctx context.Context, id string) (schema.Category, error) {
	c, err := r.local.GetCategoryContext(ctx, id)
	if err != nil {
		return schema.Category{}, notFound(err, schema.KindCategory, id)
	}
	return *c, nil
}

// List returns all local categories.
func (r *CategoryRepository) List(ctx context.Context) ([]schema.Category, error) {
	return r.local.ListCategoriesContext(ctx)
}

// Live streams the category list until ctx ends.
func (r *CategoryRepository) Live(ctx context.Context) <-chan []schema.Category {
	return r.local.LiveCategories(ctx)
}

// SyncAll implements Repository by replacing the local table.
func (r *CategoryRepository) SyncAll(ctx context.Context) (SyncResult, error) {
	res := SyncResult{Kind: schema.KindCategory}
	ids, docs, ok := r.fetch(ctx)
	if !ok {
		res.Offline = true
		return res, nil
	}

	now := r.opts.Now()
	cs, skipped := decodeAll(r.repository, ids, docs, func(id string, doc schema.Document) (schema.Category, error) {
		return schema.DecodeCategory(id, doc, now)
	})
	if err := r.local.ReplaceCategoriesContext(ctx, cs); err != nil {
		return res, err
	}

	res.Fetched, res.Applied, res.Skipped = len(ids), len(cs), skipped
	r.logger.Info("full sync complete", zap.Int("fetched", res.Fetched), zap.Int("skipped", res.Skipped))
	return res, nil
}

func (r *CategoryRepository) applyRemove(ctx context.Context, id string) error {
	return r.local.DeleteCategoryContext(ctx, id)
}

func (r *CategoryRepository) applyUpsert(ctx context.Context, id string, doc schema.Document) error {
	c, err := schema.DecodeCategory(id, doc, r.opts.Now())
	if err != nil {
		return err
	}
	return r.local.UpsertCategoryContext(ctx, &c)
}
