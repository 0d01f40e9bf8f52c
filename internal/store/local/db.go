// Package local is the on-device store for categories, items and sales.
//
// The store is an embedded SQLite database in WAL mode, so readers never
// block the single writer. It is always available: every POS operation
// writes here first and the remote copy catches up later.
//
// Every write invalidates the tables it touched, and any live query reading
// those tables re-emits a fresh snapshot.
//
// Writes from other processes (the CLI writing while the daemon runs) are
// picked up by Watcher, which invalidates every table when the database
// files change on disk.
package local

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"go.uber.org/zap"
)

//go:embed schema.sql
var schemaSQL string

// DB wraps the SQLite connection with the POS tables and live-query
// notifications.
type DB struct {
	conn   *sql.DB
	path   string
	notify *notifier
	logger *zap.Logger
}

// Option configures a DB.
type Option func(*DB)

// WithLogger sets the logger used for live-query failures.
func WithLogger(logger *zap.Logger) Option {
	return func(db *DB) {
		if logger != nil {
			db.logger = logger
		}
	}
}

// SchemaVersion is stored in PRAGMA user_version once the tables exist.
const SchemaVersion = 1

// ErrNewerSchema is returned by Open for a database written by a newer
// release.
var ErrNewerSchema = errors.New("database schema is newer than this build")

// Open opens or creates the database at path and brings its schema up to
// SchemaVersion. The caller must Close it.
//
//	db, err := local.Open("data/possync.db", local.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
func Open(path string, opts ...Option) (*DB, error) {
	path = strings.TrimPrefix(path, "file:")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}

	// Pragmas live in the DSN so every pooled connection carries them.
	dsn := "file:" + path +
		"?_pragma=journal_mode(wal)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=foreign_keys(1)" +
		"&_txlock=immediate"
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	conn.SetMaxOpenConns(16)
	conn.SetMaxIdleConns(4)
	conn.SetConnMaxIdleTime(time.Minute)

	db := &DB{conn: conn, path: path, notify: newNotifier(), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(db)
	}
	if err := db.InitSchema(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// RawDB exposes the connection pool for tests and one-off maintenance.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Close checkpoints the WAL into the main file and closes the pool. It is
// safe to call more than once.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	conn := db.conn
	db.conn = nil
	if _, err := conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		db.logger.Warn("wal checkpoint failed", zap.String("path", db.path), zap.Error(err))
	}
	if err := conn.Close(); err != nil {
		return fmt.Errorf("close %s: %w", db.path, err)
	}
	return nil
}

// InitSchema creates missing tables. It is idempotent.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext is InitSchema with a context.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	var version int
	if err := db.conn.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version > SchemaVersion {
		return fmt.Errorf("%w: %s is at v%d, this build knows v%d", ErrNewerSchema, db.path, version, SchemaVersion)
	}
	if _, err := db.conn.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	if version < SchemaVersion {
		if _, err := db.conn.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", SchemaVersion)); err != nil {
			return fmt.Errorf("write schema version: %w", err)
		}
		db.logger.Debug("schema initialized", zap.String("path", db.path), zap.Int("version", SchemaVersion))
	}
	return nil
}

// Counts reports the number of rows per table.
type Counts struct {
	Categories    int `json:"categories" yaml:"categories"`
	Items         int `json:"items" yaml:"items"`
	Sales         int `json:"sales" yaml:"sales"`
	UnsyncedSales int `json:"unsyncedSales" yaml:"unsyncedSales"`
}

// CountsContext returns row counts for status reporting.
func (db *DB) CountsContext(ctx context.Context) (Counts, error) {
	var c Counts
	err := db.conn.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM categories),
			(SELECT COUNT(*) FROM items),
			(SELECT COUNT(*) FROM sales),
			(SELECT COUNT(*) FROM sales WHERE is_synced = 0)
	`).Scan(&c.Categories, &c.Items, &c.Sales, &c.UnsyncedSales)
	if err != nil {
		return Counts{}, fmt.Errorf("failed to count rows: %w", err)
	}
	return c, nil
}

// exec runs a single write statement and invalidates the given tables.
func (db *DB) exec(ctx context.Context, tables []Table, query string, args ...any) (sql.Result, error) {
	res, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	db.notify.publish(tables...)
	return res, nil
}

// withTx runs fn in a transaction and invalidates the given tables on commit.
func (db *DB) withTx(ctx context.Context, tables []Table, fn func(*sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	db.notify.publish(tables...)
	return nil
}
