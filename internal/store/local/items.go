package local

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pos-system/possync/internal/schema"
)

var itemTables = []Table{TableItems}

const upsertItemSQL = `
	INSERT INTO items (id, name, price, category_id, item_type, created_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		price = excluded.price,
		category_id = excluded.category_id,
		item_type = excluded.item_type,
		created_at = excluded.created_at
`

// itemColumns joins against categories so that dangling items are hidden.
const itemColumns = `i.id, i.name, i.price, i.category_id, i.item_type, i.created_at`

func itemArgs(i *schema.Item) []any {
	itemType := i.ItemType
	if itemType == "" {
		itemType = schema.DefaultItemType
	}
	return []any{i.ID, i.Name, i.Price.String(), i.CategoryID, itemType, i.CreatedAt}
}

// UpsertItem inserts or replaces an item by id.
func (db *DB) UpsertItem(i *schema.Item) error {
	return db.UpsertItemContext(context.Background(), i)
}

// UpsertItemContext inserts or replaces an item with context support.
func (db *DB) UpsertItemContext(ctx context.Context, i *schema.Item) error {
	if err := i.Validate(); err != nil {
		return fmt.Errorf("invalid item: %w", err)
	}
	if _, err := db.exec(ctx, itemTables, upsertItemSQL, itemArgs(i)...); err != nil {
		return fmt.Errorf("failed to upsert item %s: %w", i.ID, err)
	}
	return nil
}

// DeleteItemContext removes an item. Returns nil if it doesn't exist.
func (db *DB) DeleteItemContext(ctx context.Context, id string) error {
	if _, err := db.exec(ctx, itemTables, `DELETE FROM items WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete item %s: %w", id, err)
	}
	return nil
}

// DeleteAllItemsContext empties the items table.
func (db *DB) DeleteAllItemsContext(ctx context.Context) error {
	if _, err := db.exec(ctx, itemTables, `DELETE FROM items`); err != nil {
		return fmt.Errorf("failed to delete items: %w", err)
	}
	return nil
}

// ReplaceItemsContext atomically replaces the whole table with items.
func (db *DB) ReplaceItemsContext(ctx context.Context, items []schema.Item) error {
	return db.withTx(ctx, itemTables, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM items`); err != nil {
			return fmt.Errorf("failed to clear items: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx, upsertItemSQL)
		if err != nil {
			return fmt.Errorf("failed to prepare item insert: %w", err)
		}
		defer stmt.Close()
		for i := range items {
			if err := items[i].Validate(); err != nil {
				return fmt.Errorf("invalid item %s: %w", items[i].ID, err)
			}
			if _, err := stmt.ExecContext(ctx, itemArgs(&items[i])...); err != nil {
				return fmt.Errorf("failed to insert item %s: %w", items[i].ID, err)
			}
		}
		return nil
	})
}

// GetItemContext returns one item, dangling or not, or sql.ErrNoRows.
func (db *DB) GetItemContext(ctx context.Context, id string) (*schema.Item, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items i WHERE i.id = ?`, id)
	item, err := scanItem(row)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ListItems returns items whose category exists, ordered by creation time.
func (db *DB) ListItems() ([]schema.Item, error) {
	return db.ListItemsContext(context.Background())
}

// ListItemsContext returns visible items with context support.
func (db *DB) ListItemsContext(ctx context.Context) ([]schema.Item, error) {
	return db.queryItems(ctx, `
		SELECT `+itemColumns+`
		FROM items i
		JOIN categories c ON c.id = i.category_id
		ORDER BY i.created_at ASC, i.id ASC
	`)
}

// ListItemsByCategoryContext returns the items of one category. The result
// is empty if the category itself doesn't exist.
func (db *DB) ListItemsByCategoryContext(ctx context.Context, categoryID string) ([]schema.Item, error) {
	return db.queryItems(ctx, `
		SELECT `+itemColumns+`
		FROM items i
		JOIN categories c ON c.id = i.category_id
		WHERE i.category_id = ?
		ORDER BY i.created_at ASC, i.id ASC
	`, categoryID)
}

// ItemIDsByCategoryContext returns the ids of every item referencing
// categoryID, whether or not the category still exists.
func (db *DB) ItemIDsByCategoryContext(ctx context.Context, categoryID string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id FROM items WHERE category_id = ? ORDER BY id`, categoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to query items for category %s: %w", categoryID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan item id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (db *DB) queryItems(ctx context.Context, query string, args ...any) ([]schema.Item, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	items := []schema.Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(s scanner) (schema.Item, error) {
	var i schema.Item
	err := s.Scan(&i.ID, &i.Name, &i.Price, &i.CategoryID, &i.ItemType, &i.CreatedAt)
	return i, err
}
