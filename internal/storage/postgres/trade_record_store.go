package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-alpha-engine/internal/domain"
	"solana-alpha-engine/internal/storage"
)

const tradeColumns = `
	trade_id, execution_id, position_id, symbol, asset_id, direction,
	amount_in, amount_out, quantity, price, value,
	realized_pnl, unrealized_pnl,
	tx_ref, router, executed_at
`

const insertTradeQuery = `
	INSERT INTO trade_records (` + tradeColumns + `) VALUES (
		$1, $2, $3, $4, $5, $6,
		$7, $8, $9, $10, $11,
		$12, $13,
		$14, $15, $16
	)
`

// TradeRecordStore is the PostgreSQL trade ledger.
type TradeRecordStore struct {
	pool *Pool
}

// NewTradeRecordStore creates a new TradeRecordStore.
func NewTradeRecordStore(pool *Pool) *TradeRecordStore {
	return &TradeRecordStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeRecordStore = (*TradeRecordStore)(nil)

// Insert appends t. Returns ErrDuplicateKey if trade_id exists.
func (s *TradeRecordStore) Insert(ctx context.Context, t *domain.TradeRecord) (err error) {
	if t == nil || t.TradeID == "" || !t.Direction.IsValid() {
		return storage.ErrInvalidInput
	}
	start := time.Now()
	defer func() { observe("insert_trade", start, err) }()

	_, err = s.pool.Exec(ctx, insertTradeQuery, tradeArgs(t)...)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade record: %w", err)
	}
	return nil
}

// GetByID returns ErrNotFound for an unknown tradeID.
func (s *TradeRecordStore) GetByID(ctx context.Context, tradeID string) (*domain.TradeRecord, error) {
	query := `SELECT ` + tradeColumns + `
		FROM trade_records
		WHERE trade_id = $1
	`

	t, err := scanTradeRecord(s.pool.QueryRow(ctx, query, tradeID))
	if err != nil {
		if isNotFoundError(err) {
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

	where, args := tradeFilterClause(f)
	args = append(args, f.Limit)
	query := `SELECT ` + tradeColumns + `
		FROM trade_records` + where + `
		ORDER BY executed_at DESC, trade_id DESC
		LIMIT $` + strconv.Itoa(len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list trade records: %w", err)
	}
	defer rows.Close()

	return scanTradeRecords(rows)
}

// tradeFilterClause renders the WHERE clause of f with numbered placeholders.
func tradeFilterClause(f storage.TradeFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.Symbol != "" {
		args = append(args, f.Symbol)
		conds = append(conds, "symbol = $"+strconv.Itoa(len(args)))
	}
	if f.Since > 0 {
		args = append(args, f.Since)
		conds = append(conds, "executed_at >= $"+strconv.Itoa(len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return "\n\t\tWHERE " + strings.Join(conds, " AND "), args
}

// NetCashFlow returns sell proceeds minus buy spend.
func (s *TradeRecordStore) NetCashFlow(ctx context.Context) (net float64, err error) {
	start := time.Now()
	defer func() { observe("net_cash_flow", start, err) }()

	query := `
		SELECT COALESCE(SUM(CASE direction
			WHEN 'sell' THEN amount_out
			WHEN 'buy' THEN -amount_in
			ELSE 0 END), 0)
		FROM trade_records
	`

	if err = s.pool.QueryRow(ctx, query).Scan(&net); err != nil {
		return 0, fmt.Errorf("sum trade cash flow: %w", err)
	}
	return net, nil
}

func tradeArgs(t *domain.TradeRecord) []any {
	return []any{
		t.TradeID, t.ExecutionID, t.PositionID, t.Symbol, t.AssetID, string(t.Direction),
		t.AmountIn, t.AmountOut, t.Quantity, t.Price, t.Value,
		t.RealizedPnL, t.UnrealizedPnL,
		t.TxRef, t.Router, t.ExecutedAt,
	}
}

// scanTradeRecord scans a single row into a TradeRecord.
func scanTradeRecord(row pgx.Row) (*domain.TradeRecord, error) {
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

// scanTradeRecords scans multiple rows into a slice of TradeRecord.
func scanTradeRecords(rows pgx.Rows) ([]*domain.TradeRecord, error) {
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
