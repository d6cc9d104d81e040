// Package storage defines the persistence ports of the engine: the trade
// ledger and the monitored price archive.
package storage

import (
	"context"

	"solana-alpha-engine/internal/domain"
)

// TradeFilter selects trade records for List. Zero Symbol and Since match
// every record.
type TradeFilter struct {
	Symbol string // exact symbol match
	Since  int64  // inclusive lower bound on executed_at, Unix ms
	Limit  int    // maximum rows, must be positive
}

// Validate reports ErrInvalidInput for a non-positive limit or negative bound.
func (f TradeFilter) Validate() error {
	if f.Limit <= 0 || f.Since < 0 {
		return ErrInvalidInput
	}
	return nil
}

// TradeRecordStore persists confirmed executions, one row per fill.
type TradeRecordStore interface {
	// Insert appends t. A second insert of the same trade_id returns ErrDuplicateKey.
	Insert(ctx context.Context, t *domain.TradeRecord) error

	// GetByID returns ErrNotFound for an unknown tradeID.
	GetByID(ctx context.Context, tradeID string) (*domain.TradeRecord, error)

	// List returns the records matching f, newest first, ties broken by
	// trade_id descending.
	List(ctx context.Context, f TradeFilter) ([]*domain.TradeRecord, error)

	// NetCashFlow sums sell proceeds minus buy spend in quote currency.
	NetCashFlow(ctx context.Context) (float64, error)
}

// PriceSampleStore archives monitor price samples.
type PriceSampleStore interface {
	// InsertBulk writes a batch. A duplicate (asset_id, timestamp_ms) rejects
	// the whole batch.
	InsertBulk(ctx context.Context, samples []*domain.PriceSample) error

	// GetByTimeRange returns the samples of assetID within [start, end] ms,
	// oldest first.
	GetByTimeRange(ctx context.Context, assetID string, start, end int64) ([]*domain.PriceSample, error)
}
