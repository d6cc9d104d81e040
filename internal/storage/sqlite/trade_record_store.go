package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"solana-alpha-engine/internal/domain"
	"solana-alpha-engine/internal/storage"
)

const tradeColumns = `trade_id, execution_id, position_id, symbol, asset_id, direction,
	amount_in, amount_out, quantity, price, value,
	realized_pnl, unrealized_pnl,
	tx_ref, router, executed_at`

const insertTradeQuery = `INSERT INTO trade_records (` + tradeColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// TradeRecordStore is the SQLite trade ledger.
type TradeRecordStore struct {
	db *DB
}

// NewTradeRecordStore creates a new TradeRecordStore.
func NewTradeRecordStore(db *DB) *TradeRecordStore {
	return &TradeRecordStore{db: db}
}

var _ storage.TradeRecordStore = (*TradeRecordStore)(nil)

// Insert appends t. Returns ErrDuplicateKey if trade_id exists.
func (s *TradeRecordStore) Insert(ctx context.Context, t *domain.TradeRecord) (err error) {
	if !validTrade(t) {
		return storage.ErrInvalidInput
	}
	start := time.Now()
	defer func() { observe("insert_trade", start, err) }()

	if _, err = s.db.ExecContext(ctx, insertTradeQuery, tradeArgs(t)...); err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade record: %w", err)
	}
	return nil
}

// GetByID returns ErrNotFound for an unknown tradeID.
func (s *TradeRecordStore) GetByID(ctx context.Context, tradeID string) (*domain.TradeRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+tradeColumns+` FROM trade_records WHERE trade_id = ?`, tradeID)

	t, err := scanTradeRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get trade record by id: %w", err)
	}
	return t, nil
}

// List returns the records matching f, newest first.
func (s *TradeRecordStore) List(ctx context.Context, f storage.TradeFilter) (trades []*domain.TradeRecord, err error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() { observe("list_trades", start, err) }()

	query := `SELECT ` + tradeColumns + ` FROM trade_records`
	var args []any
	var conds []string
	if f.Symbol != "" {
		conds = append(conds, "symbol = ?")
		args = append(args, f.Symbol)
	}
	if f.Since > 0 {
		conds = append(conds, "executed_at >= ?")
		args = append(args, f.Since)
	}
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY executed_at DESC, trade_id DESC LIMIT ?`
	args = append(args, f.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list trade records: %w", err)
	}
	defer rows.Close()

	return scanTradeRecords(rows)
}

// NetCashFlow returns sell proceeds minus buy spend.
func (s *TradeRecordStore) NetCashFlow(ctx context.Context) (net float64, err error) {
	start := time.Now()
	defer func() { observe("net_cash_flow", start, err) }()

	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(CASE direction
			WHEN 'sell' THEN amount_out
			WHEN 'buy' THEN -amount_in
			ELSE 0 END), 0.0)
		FROM trade_records`).Scan(&net)
	if err != nil {
		return 0, fmt.Errorf("sum trade cash flow: %w", err)
	}
	return net, nil
}

func validTrade(t *domain.TradeRecord) bool {
	return t != nil && t.TradeID != "" && t.Direction.IsValid()
}

func tradeArgs(t *domain.TradeRecord) []any {
	return []any{
		t.TradeID, t.ExecutionID, t.PositionID, t.Symbol, t.AssetID, string(t.Direction),
		t.AmountIn, t.AmountOut, t.Quantity, t.Price, t.Value,
		t.RealizedPnL, t.UnrealizedPnL,
		t.TxRef, t.Router, t.ExecutedAt,
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTradeRecord(row scanner) (*domain.TradeRecord, error) {
	var t domain.TradeRecord
	var direction string

	err := row.Scan(
		&t.TradeID, &t.ExecutionID, &t.PositionID, &t.Symbol, &t.AssetID, &direction,
		&t.AmountIn, &t.AmountOut, &t.Quantity, &t.Price, &t.Value,
		&t.RealizedPnL, &t.UnrealizedPnL,
		&t.TxRef, &t.Router, &t.ExecutedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Direction = domain.Direction(direction)
	return &t, nil
}

func scanTradeRecords(rows *sql.Rows) ([]*domain.TradeRecord, error) {
	var trades []*domain.TradeRecord

	for rows.Next() {
		t, err := scanTradeRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade record row: %w", err)
		}
		trades = append(trades, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade record rows: %w", err)
	}
	return trades, nil
}
