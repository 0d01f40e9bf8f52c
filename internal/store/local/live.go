package local

import (
	"context"

	"go.uber.org/zap"

	"github.com/pos-system/possync/internal/schema"
)

// live runs query once, then again every time one of tables is invalidated,
// sending each snapshot on the returned channel. The channel is closed when
// ctx is done. Query failures are logged and the previous snapshot stands.
func live[T any](ctx context.Context, db *DB, name string, query func(context.Context) ([]T, error), tables ...Table) <-chan []T {
	out := make(chan []T, 1)
	sub := db.notify.subscribe(tables...)

	go func() {
		defer close(out)
		defer db.notify.unsubscribe(sub)

		for {
			rows, err := query(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				db.logger.Warn("live query failed", zap.String("query", name), zap.Error(err))
			} else {
				select {
				case out <- rows:
				case <-ctx.Done():
					return
				}
			}

			select {
			case <-sub.ch:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

// LiveCategories streams all categories ordered by creation time.
func (db *DB) LiveCategories(ctx context.Context) <-chan []schema.Category {
	return live(ctx, db, "categories", db.ListCategoriesContext, TableCategories)
}

// LiveItems streams all items whose category exists, ordered by creation time.
func (db *DB) LiveItems(ctx context.Context) <-chan []schema.Item {
	return live(ctx, db, "items", db.ListItemsContext, TableItems, TableCategories)
}

// LiveItemsByCategory streams the items of one category.
func (db *DB) LiveItemsByCategory(ctx context.Context, categoryID string) <-chan []schema.Item {
	query := func(ctx context.Context) ([]schema.Item, error) {
		return db.ListItemsByCategoryContext(ctx, categoryID)
	}
	return live(ctx, db, "items_by_category", query, TableItems, TableCategories)
}

// LiveSales streams all sales, newest first.
func (db *DB) LiveSales(ctx context.Context) <-chan []schema.Sale {
	return live(ctx, db, "sales", db.ListSalesContext, TableSales)
}

// LiveSalesBetween streams sales with start <= timestamp <= end, newest first.
func (db *DB) LiveSalesBetween(ctx context.Context, start, end int64) <-chan []schema.Sale {
	query := func(ctx context.Context) ([]schema.Sale, error) {
		return db.ListSalesBetweenContext(ctx, start, end)
	}
	return live(ctx, db, "sales_between", query, TableSales)
}
