package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-alpha-engine/internal/domain"
	"solana-alpha-engine/internal/storage"
)

func buyTrade(id, symbol string, at int64, spent float64) *domain.TradeRecord {
	return &domain.TradeRecord{
		TradeID:    id,
		Symbol:     symbol,
		AssetID:    symbol + "-mint",
		Direction:  domain.DirectionBuy,
		AmountIn:   spent,
		ExecutedAt: at,
	}
}

func sellTrade(id, symbol string, at int64, proceeds float64) *domain.TradeRecord {
	return &domain.TradeRecord{
		TradeID:    id,
		Symbol:     symbol,
		AssetID:    symbol + "-mint",
		Direction:  domain.DirectionSell,
		AmountOut:  proceeds,
		ExecutedAt: at,
	}
}

func seed(t *testing.T, store *TradeRecordStore, trades ...*domain.TradeRecord) {
	t.Helper()
	for _, tr := range trades {
		require.NoError(t, store.Insert(context.Background(), tr))
	}
}

func TestTradeRecordStore_InsertAndGet(t *testing.T) {
	store := NewTradeRecordStore()
	ctx := context.Background()

	trade := buyTrade("trade1", "BONK", 1000, 12.5)
	trade.TxRef = "sig1"
	seed(t, store, trade)

	got, err := store.GetByID(ctx, "trade1")
	require.NoError(t, err)
	assert.Equal(t, trade, got)

	got.AmountIn = 0
	again, err := store.GetByID(ctx, "trade1")
	require.NoError(t, err)
	assert.Equal(t, 12.5, again.AmountIn, "GetByID must return a copy")
}

func TestTradeRecordStore_Errors(t *testing.T) {
	store := NewTradeRecordStore()
	ctx := context.Background()
	seed(t, store, buyTrade("t1", "BONK", 1000, 1))

	assert.ErrorIs(t, store.Insert(ctx, buyTrade("t1", "BONK", 2000, 1)), storage.ErrDuplicateKey)
	assert.ErrorIs(t, store.Insert(ctx, nil), storage.ErrInvalidInput)
	assert.ErrorIs(t, store.Insert(ctx, &domain.TradeRecord{Direction: domain.DirectionBuy}), storage.ErrInvalidInput)
	assert.ErrorIs(t, store.Insert(ctx, &domain.TradeRecord{TradeID: "x", Direction: "hold"}), storage.ErrInvalidInput)

	_, err := store.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.List(ctx, storage.TradeFilter{})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestTradeRecordStore_List(t *testing.T) {
	store := NewTradeRecordStore()
	ctx := context.Background()
	seed(t, store,
		buyTrade("t1", "BONK", 1000, 1),
		buyTrade("t2", "WIF", 2000, 1),
		sellTrade("t3", "BONK", 3000, 2),
		sellTrade("t4", "BONK", 3000, 2),
	)

	ids := func(recs []*domain.TradeRecord) []string {
		out := make([]string, len(recs))
		for i, r := range recs {
			out[i] = r.TradeID
		}
		return out
	}

	tests := []struct {
		name   string
		filter storage.TradeFilter
		want   []string
	}{
		{"all newest first", storage.TradeFilter{Limit: 10}, []string{"t4", "t3", "t2", "t1"}},
		{"limit", storage.TradeFilter{Limit: 2}, []string{"t4", "t3"}},
		{"symbol", storage.TradeFilter{Symbol: "BONK", Limit: 10}, []string{"t4", "t3", "t1"}},
		{"since", storage.TradeFilter{Since: 2000, Limit: 10}, []string{"t4", "t3", "t2"}},
		{"symbol and since", storage.TradeFilter{Symbol: "WIF", Since: 2500, Limit: 10}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.List(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestTradeRecordStore_NetCashFlow(t *testing.T) {
	store := NewTradeRecordStore()
	ctx := context.Background()

	net, err := store.NetCashFlow(ctx)
	require.NoError(t, err)
	assert.Zero(t, net)

	seed(t, store,
		buyTrade("t1", "BONK", 1000, 10),
		buyTrade("t2", "WIF", 2000, 5),
		sellTrade("t3", "BONK", 3000, 12),
	)
	// A rejected duplicate leaves the total unchanged.
	assert.ErrorIs(t, store.Insert(ctx, sellTrade("t3", "BONK", 4000, 99)), storage.ErrDuplicateKey)

	net, err = store.NetCashFlow(ctx)
	require.NoError(t, err)
	assert.InDelta(t, -3.0, net, 1e-9)
}
