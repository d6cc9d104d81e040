package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-alpha-engine/internal/domain"
	"solana-alpha-engine/internal/storage"
)

func setupTestDB(t *testing.T) *TradeRecordStore {
	t.Helper()

	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "data", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewTradeRecordStore(db)
}

func trade(id, symbol string, direction domain.Direction, at int64, amountIn, amountOut float64) *domain.TradeRecord {
	return &domain.TradeRecord{
		TradeID:     id,
		ExecutionID: "exec-" + id,
		PositionID:  "pos-" + symbol,
		Symbol:      symbol,
		AssetID:     symbol + "-mint",
		Direction:   direction,
		AmountIn:    amountIn,
		AmountOut:   amountOut,
		Quantity:    100,
		Price:       0.1,
		Value:       10,
		TxRef:       "sig-" + id,
		Router:      "primary",
		ExecutedAt:  at,
	}
}

func TestTradeRecordStore_InsertAndGetByID(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	want := trade("t1", "BONK", domain.DirectionSell, 1000, 100, 12)
	want.RealizedPnL = 2
	want.UnrealizedPnL = -0.5

	require.NoError(t, store.Insert(ctx, want))

	got, err := store.GetByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestTradeRecordStore_Errors(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	first := trade("t1", "BONK", domain.DirectionBuy, 1000, 10, 100)
	require.NoError(t, store.Insert(ctx, first))

	assert.ErrorIs(t, store.Insert(ctx, first), storage.ErrDuplicateKey)
	assert.ErrorIs(t, store.Insert(ctx, nil), storage.ErrInvalidInput)

	_, err := store.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.List(ctx, storage.TradeFilter{Limit: 0})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestTradeRecordStore_ListAndCashFlow(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	net, err := store.NetCashFlow(ctx)
	require.NoError(t, err)
	assert.Zero(t, net)

	for _, tr := range []*domain.TradeRecord{
		trade("t1", "BONK", domain.DirectionBuy, 1000, 10, 100),
		trade("t2", "WIF", domain.DirectionBuy, 2000, 4, 40),
		trade("t3", "BONK", domain.DirectionSell, 3000, 100, 15),
	} {
		require.NoError(t, store.Insert(ctx, tr))
	}

	all, err := store.List(ctx, storage.TradeFilter{Limit: 5})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "t3", all[0].TradeID)
	assert.Equal(t, "t1", all[2].TradeID)

	bonk, err := store.List(ctx, storage.TradeFilter{Symbol: "BONK", Limit: 5})
	require.NoError(t, err)
	require.Len(t, bonk, 2)
	assert.Equal(t, domain.DirectionSell, bonk[0].Direction)

	since, err := store.List(ctx, storage.TradeFilter{Since: 2000, Limit: 1})
	require.NoError(t, err)
	require.Len(t, since, 1)
	assert.Equal(t, "t3", since[0].TradeID)

	net, err = store.NetCashFlow(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, net, 1e-9)
}

func TestOpen_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	db, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, NewTradeRecordStore(db).Insert(ctx, trade("t1", "BONK", domain.DirectionBuy, 1000, 10, 100)))
	require.NoError(t, db.Close())

	db, err = Open(ctx, path)
	require.NoError(t, err)
	defer db.Close()

	got, err := NewTradeRecordStore(db).GetByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "BONK", got.Symbol)
}
