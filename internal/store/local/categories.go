package local

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pos-system/possync/internal/schema"
)

var categoryTables = []Table{TableCategories}

// UpsertCategory inserts or replaces a category by id.
func (db *DB) UpsertCategory(c *schema.Category) error {
	return db.UpsertCategoryContext(context.Background(), c)
}

// UpsertCategoryContext inserts or replaces a category with context support.
func (db *DB) UpsertCategoryContext(ctx context.Context, c *schema.Category) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid category: %w", err)
	}
	if _, err := db.exec(ctx, categoryTables, upsertCategorySQL, c.ID, c.Name, c.CreatedAt); err != nil {
		return fmt.Errorf("failed to upsert category %s: %w", c.ID, err)
	}
	return nil
}

const upsertCategorySQL = `
	INSERT INTO categories (id, name, created_at)
	VALUES (?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		created_at = excluded.created_at
`

// DeleteCategoryContext removes a category. Items are not touched; callers
// cascade explicitly. Returns nil if the category doesn't exist.
func (db *DB) DeleteCategoryContext(ctx context.Context, id string) error {
	if _, err := db.exec(ctx, categoryTables, `DELETE FROM categories WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete category %s: %w", id, err)
	}
	return nil
}

// DeleteAllCategoriesContext empties the categories table.
func (db *DB) DeleteAllCategoriesContext(ctx context.Context) error {
	if _, err := db.exec(ctx, categoryTables, `DELETE FROM categories`); err != nil {
		return fmt.Errorf("failed to delete categories: %w", err)
	}
	return nil
}

// ReplaceCategoriesContext atomically replaces the whole table with cs.
// Live queries observe either the old or the new contents, never a mix.
func (db *DB) ReplaceCategoriesContext(ctx context.Context, cs []schema.Category) error {
	return db.withTx(ctx, categoryTables, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM categories`); err != nil {
			return fmt.Errorf("failed to clear categories: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx, upsertCategorySQL)
		if err != nil {
			return fmt.Errorf("failed to prepare category insert: %w", err)
		}
		defer stmt.Close()
		for i := range cs {
			if err := cs[i].Validate(); err != nil {
				return fmt.Errorf("invalid category %s: %w", cs[i].ID, err)
			}
			if _, err := stmt.ExecContext(ctx, cs[i].ID, cs[i].Name, cs[i].CreatedAt); err != nil {
				return fmt.Errorf("failed to insert category %s: %w", cs[i].ID, err)
			}
		}
		return nil
	})
}

// GetCategoryContext returns one category or sql.ErrNoRows.
func (db *DB) GetCategoryContext(ctx context.Context, id string) (*schema.Category, error) {
	var c schema.Category
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM categories WHERE id = ?`, id,
	).Scan(&c.ID, &c.Name, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListCategories returns all categories ordered by creation time.
func (db *DB) ListCategories() ([]schema.Category, error) {
	return db.ListCategoriesContext(context.Background())
}

// ListCategoriesContext returns all categories with context support.
func (db *DB) ListCategoriesContext(ctx context.Context) ([]schema.Category, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, name, created_at FROM categories ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	cs := []schema.Category{}
	for rows.Next() {
		var c schema.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		cs = append(cs, c)
	}
	return cs, rows.Err()
}
