package docserver

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pos-system/possync/internal/schema"
	"github.com/pos-system/possync/internal/store/remote"
)

const documentsSchema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id TEXT NOT NULL,
	fields TEXT NOT NULL,  -- JSON object
	update_time INTEGER NOT NULL,
	PRIMARY KEY (collection, id)
);
`

// Store persists documents in SQLite.
type Store struct {
	conn *sql.DB
}

// OpenStore opens (and creates if needed) the document database at path.
func OpenStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open document database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping document database: %w", err)
	}
	if _, err := conn.Exec(documentsSchema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to initialize document schema: %w", err)
	}
	return &Store{conn: conn}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Put writes a document and reports whether it was newly created.
func (s *Store) Put(ctx context.Context, collection, id string, fields schema.Document) (created bool, updateTime int64, err error) {
	if fields == nil {
		fields = schema.Document{}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return false, 0, fmt.Errorf("failed to marshal fields: %w", err)
	}
	updateTime = time.Now().UnixMilli()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE collection = ? AND id = ?`, collection, id,
	).Scan(&exists)
	if err != nil {
		return false, 0, fmt.Errorf("failed to look up document: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (collection, id, fields, update_time)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			fields = excluded.fields,
			update_time = excluded.update_time
	`, collection, id, string(data), updateTime)
	if err != nil {
		return false, 0, fmt.Errorf("failed to write document %s/%s: %w", collection, id, err)
	}
	if err := tx.Commit(); err != nil {
		return false, 0, fmt.Errorf("failed to commit document %s/%s: %w", collection, id, err)
	}
	return exists == 0, updateTime, nil
}

// Remove deletes a document and reports whether it existed.
func (s *Store) Remove(ctx context.Context, collection, id string) (bool, error) {
	res, err := s.conn.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete document %s/%s: %w", collection, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

// List returns every document in a collection ordered by id.
func (s *Store) List(ctx context.Context, collection string) ([]remote.DocumentJSON, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, fields, update_time FROM documents WHERE collection = ? ORDER BY id`, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	docs := []remote.DocumentJSON{}
	for rows.Next() {
		var (
			d   remote.DocumentJSON
			raw string
		)
		if err := rows.Scan(&d.ID, &raw, &d.UpdateTime); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		fields, err := decodeFields(raw)
		if err != nil {
			return nil, fmt.Errorf("document %s/%s: %w", collection, d.ID, err)
		}
		d.Fields = fields
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// decodeFields keeps numbers as json.Number so integers survive re-encoding
// unchanged.
func decodeFields(raw string) (schema.Document, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var fields schema.Document
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("failed to decode fields: %w", err)
	}
	return fields, nil
}
