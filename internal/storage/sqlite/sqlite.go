// Package sqlite provides an embedded single-file trade ledger.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"

	"solana-alpha-engine/internal/observability"
)

// DefaultPath is used when no database path is configured.
const DefaultPath = "./data/alpha_engine.db"

// DB wraps sql.DB for dependency injection.
type DB struct {
	*sql.DB
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*DB, error) {
	if path == "" {
		path = DefaultPath
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory %s: %w", filepath.Dir(path), err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}

	// Single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize sqlite schema: %w", err)
	}

	return &DB{DB: db}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS trade_records (
	trade_id        TEXT PRIMARY KEY,
	execution_id    TEXT NOT NULL,
	position_id     TEXT NOT NULL,
	symbol          TEXT NOT NULL,
	asset_id        TEXT NOT NULL,
	direction       TEXT NOT NULL CHECK (direction IN ('buy', 'sell')),
	amount_in       REAL NOT NULL,
	amount_out      REAL NOT NULL,
	quantity        REAL NOT NULL,
	price           REAL NOT NULL,
	value           REAL NOT NULL,
	realized_pnl    REAL NOT NULL DEFAULT 0,
	unrealized_pnl  REAL NOT NULL DEFAULT 0,
	tx_ref          TEXT NOT NULL DEFAULT '',
	router          TEXT NOT NULL DEFAULT '',
	executed_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trade_records_symbol_executed_at ON trade_records (symbol, executed_at);
CREATE INDEX IF NOT EXISTS idx_trade_records_executed_at ON trade_records (executed_at);
`

func observe(operation string, start time.Time, err error) {
	observability.RecordDBQuery("sqlite", operation, time.Since(start).Seconds(), err)
}

// isDuplicateKeyError checks if error is a primary key or unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
