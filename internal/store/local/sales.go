package local

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pos-system/possync/internal/schema"
)

var saleTables = []Table{TableSales}

const saleColumns = `id, timestamp, total_amount, payment_type, items_json, is_synced`

const upsertSaleSQL = `
	INSERT INTO sales (` + saleColumns + `)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		timestamp = excluded.timestamp,
		total_amount = excluded.total_amount,
		payment_type = excluded.payment_type,
		items_json = excluded.items_json,
		is_synced = MAX(sales.is_synced, excluded.is_synced)
`

func saleArgs(s *schema.Sale) []any {
	paymentType := s.PaymentType
	if paymentType == "" {
		paymentType = schema.DefaultPaymentType
	}
	itemsJSON := s.ItemsJSON
	if itemsJSON == "" {
		itemsJSON = "[]"
	}
	return []any{s.ID, s.Timestamp, s.TotalAmount.String(), paymentType, itemsJSON, boolToInt(s.IsSynced)}
}

// UpsertSale inserts or replaces a sale by id.
func (db *DB) UpsertSale(s *schema.Sale) error {
	return db.UpsertSaleContext(context.Background(), s)
}

// UpsertSaleContext inserts or replaces a sale with context support.
//
// is_synced never goes back to false: once a sale has been seen synced,
// a later upsert carrying IsSynced=false keeps the flag set.
func (db *DB) UpsertSaleContext(ctx context.Context, s *schema.Sale) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid sale: %w", err)
	}

	_, err := db.exec(ctx, saleTables, upsertSaleSQL, saleArgs(s)...)
	if err != nil {
		return fmt.Errorf("failed to upsert sale %s: %w", s.ID, err)
	}
	return nil
}

// UpsertSalesContext upserts many sales in one transaction. Sales already
// present locally but absent from sales are kept.
func (db *DB) UpsertSalesContext(ctx context.Context, sales []schema.Sale) error {
	return db.withTx(ctx, saleTables, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, upsertSaleSQL)
		if err != nil {
			return fmt.Errorf("failed to prepare sale upsert: %w", err)
		}
		defer stmt.Close()
		for i := range sales {
			if err := sales[i].Validate(); err != nil {
				return fmt.Errorf("invalid sale %s: %w", sales[i].ID, err)
			}
			if _, err := stmt.ExecContext(ctx, saleArgs(&sales[i])...); err != nil {
				return fmt.Errorf("failed to upsert sale %s: %w", sales[i].ID, err)
			}
		}
		return nil
	})
}

// DeleteSaleContext removes a sale. Returns nil if it doesn't exist.
func (db *DB) DeleteSaleContext(ctx context.Context, id string) error {
	if _, err := db.exec(ctx, saleTables, `DELETE FROM sales WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete sale %s: %w", id, err)
	}
	return nil
}

// MarkSaleSyncedContext sets is_synced on a sale. Marking a missing sale is
// not an error.
func (db *DB) MarkSaleSyncedContext(ctx context.Context, id string) error {
	if _, err := db.exec(ctx, saleTables, `UPDATE sales SET is_synced = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to mark sale %s synced: %w", id, err)
	}
	return nil
}

// GetSaleContext returns one sale or sql.ErrNoRows.
func (db *DB) GetSaleContext(ctx context.Context, id string) (*schema.Sale, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = ?`, id)
	s, err := scanSale(row)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSales returns all sales, newest first.
func (db *DB) ListSales() ([]schema.Sale, error) {
	return db.ListSalesContext(context.Background())
}

// ListSalesContext returns all sales with context support.
func (db *DB) ListSalesContext(ctx context.Context) ([]schema.Sale, error) {
	return db.querySales(ctx, `SELECT `+saleColumns+` FROM sales ORDER BY timestamp DESC, id ASC`)
}

// ListSalesBetweenContext returns sales with start <= timestamp <= end,
// newest first.
func (db *DB) ListSalesBetweenContext(ctx context.Context, start, end int64) ([]schema.Sale, error) {
	return db.querySales(ctx, `
		SELECT `+saleColumns+` FROM sales
		WHERE timestamp BETWEEN ? AND ?
		ORDER BY timestamp DESC, id ASC
	`, start, end)
}

// ListUnsyncedSalesContext returns sales not yet pushed, oldest first.
func (db *DB) ListUnsyncedSalesContext(ctx context.Context) ([]schema.Sale, error) {
	return db.querySales(ctx, `
		SELECT `+saleColumns+` FROM sales
		WHERE is_synced = 0
		ORDER BY timestamp ASC, id ASC
	`)
}

func (db *DB) querySales(ctx context.Context, query string, args ...any) ([]schema.Sale, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sales: %w", err)
	}
	defer rows.Close()

	sales := []schema.Sale{}
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sale: %w", err)
		}
		sales = append(sales, s)
	}
	return sales, rows.Err()
}

func scanSale(sc scanner) (schema.Sale, error) {
	var (
		s      schema.Sale
		synced int
	)
	err := sc.Scan(&s.ID, &s.Timestamp, &s.TotalAmount, &s.PaymentType, &s.ItemsJSON, &synced)
	s.IsSynced = synced != 0
	return s, err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
