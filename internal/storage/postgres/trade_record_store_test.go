package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-alpha-engine/internal/domain"
	"solana-alpha-engine/internal/storage"
)

func createTestTradeRecord(tradeID, symbol string, direction domain.Direction, executedAt int64) *domain.TradeRecord {
	t := &domain.TradeRecord{
		TradeID:     tradeID,
		ExecutionID: "exec-" + tradeID,
		PositionID:  "pos-" + symbol,
		Symbol:      symbol,
		AssetID:     symbol + "Mint1111111111111111111111111111",
		Direction:   direction,
		Quantity:    1000,
		Price:       0.01,
		Value:       10,
		TxRef:       "sig-" + tradeID,
		Router:      "primary",
		ExecutedAt:  executedAt,
	}
	if direction == domain.DirectionBuy {
		t.AmountIn = 10
		t.AmountOut = 1000
	} else {
		t.AmountIn = 1000
		t.AmountOut = 12
		t.RealizedPnL = 2
	}
	return t
}

func TestTradeRecordStore_InsertAndGetByID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTradeRecordStore(pool)

	trade := createTestTradeRecord("trade-001", "BONK", domain.DirectionSell, 1000)

	err := store.Insert(ctx, trade)
	require.NoError(t, err)

	got, err := store.GetByID(ctx, "trade-001")
	require.NoError(t, err)
	assert.Equal(t, trade, got)
}

func TestTradeRecordStore_DuplicateKey(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTradeRecordStore(pool)

	trade := createTestTradeRecord("trade-dup", "BONK", domain.DirectionBuy, 1000)
	require.NoError(t, store.Insert(ctx, trade))

	err := store.Insert(ctx, trade)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestTradeRecordStore_NotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTradeRecordStore(pool)

	_, err := store.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTradeRecordStore_ListAndCashFlow(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTradeRecordStore(pool)

	net, err := store.NetCashFlow(ctx)
	require.NoError(t, err)
	assert.Zero(t, net)

	for _, tr := range []*domain.TradeRecord{
		createTestTradeRecord("t1", "BONK", domain.DirectionBuy, 1000),
		createTestTradeRecord("t2", "WIF", domain.DirectionBuy, 2000),
		createTestTradeRecord("t3", "BONK", domain.DirectionSell, 3000),
	} {
		require.NoError(t, store.Insert(ctx, tr))
	}

	recent, err := store.List(ctx, storage.TradeFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "t3", recent[0].TradeID)
	assert.Equal(t, "t2", recent[1].TradeID)

	bonk, err := store.List(ctx, storage.TradeFilter{Symbol: "BONK", Since: 1500, Limit: 10})
	require.NoError(t, err)
	require.Len(t, bonk, 1)
	assert.Equal(t, "t3", bonk[0].TradeID)

	_, err = store.List(ctx, storage.TradeFilter{})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	// Two buys of 10, one sell of 12.
	net, err = store.NetCashFlow(ctx)
	require.NoError(t, err)
	assert.InDelta(t, -8.0, net, 1e-9)
}

func TestTradeFilterClause(t *testing.T) {
	tests := []struct {
		name   string
		filter storage.TradeFilter
		where  string
		args   []any
	}{
		{"none", storage.TradeFilter{Limit: 5}, "", nil},
		{"symbol", storage.TradeFilter{Symbol: "BONK", Limit: 5}, "symbol = $1", []any{"BONK"}},
		{"both", storage.TradeFilter{Symbol: "BONK", Since: 10, Limit: 5}, "symbol = $1 AND executed_at >= $2", []any{"BONK", int64(10)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			where, args := tradeFilterClause(tt.filter)
			assert.Equal(t, tt.args, args)
			if tt.where == "" {
				assert.Empty(t, where)
				return
			}
			assert.Contains(t, where, "WHERE "+tt.where)
		})
	}
}
