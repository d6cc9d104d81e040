package marketdata

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-alpha-engine/internal/domain"
)

func TestCacheSource_SeedsWhenEmpty(t *testing.T) {
	c := NewCacheSource([]domain.TokenQuote{{Symbol: "SEED", AssetID: "seed1", Price: 1}}, 0)

	quotes, err := c.GetCandidates(context.Background())
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, "static", quotes[0].Source)
}

func TestCacheSource_StoredQuotesWin(t *testing.T) {
	c := NewCacheSource([]domain.TokenQuote{{Symbol: "SEED", AssetID: "seed1", Price: 1}}, 0)
	c.Store([]domain.TokenQuote{{Symbol: "LIVE", AssetID: "live1", Price: 2, Source: "dex"}})

	quotes, err := c.GetCandidates(context.Background())
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, "LIVE", quotes[0].Symbol)

	price, err := c.GetPrice(context.Background(), "live1")
	require.NoError(t, err)
	assert.Equal(t, 2.0, price)
}

func TestCacheSource_Expiry(t *testing.T) {
	now := time.Unix(1700000000, 0)
	c := NewCacheSource([]domain.TokenQuote{{Symbol: "SEED", AssetID: "seed1", Price: 1}}, time.Minute)
	c.now = func() time.Time { return now }

	c.Store([]domain.TokenQuote{{Symbol: "LIVE", AssetID: "live1", Price: 2}})
	now = now.Add(2 * time.Minute)

	quotes, err := c.GetCandidates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "SEED", quotes[0].Symbol)
}

func TestCacheSource_Empty(t *testing.T) {
	c := NewCacheSource(nil, 0)

	_, err := c.GetCandidates(context.Background())
	assert.ErrorIs(t, err, ErrNoData)

	_, err = c.GetPrice(context.Background(), "x")
	assert.ErrorIs(t, err, ErrPriceUnavailable)
}

func TestCacheSource_StoreEmptyKeepsPrevious(t *testing.T) {
	c := NewCacheSource(nil, 0)
	c.Store([]domain.TokenQuote{{Symbol: "LIVE", AssetID: "live1", Price: 2}})
	c.Store(nil)

	quotes, err := c.GetCandidates(context.Background())
	require.NoError(t, err)
	assert.Len(t, quotes, 1)
}

func TestCacheSource_GetPriceNeverServesSeedsOrExpired(t *testing.T) {
	now := time.Unix(1700000000, 0)
	c := NewCacheSource([]domain.TokenQuote{{Symbol: "BONK", AssetID: "bonk", Price: 0.5}}, time.Minute)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := c.GetPrice(ctx, "bonk")
	assert.ErrorIs(t, err, ErrPriceUnavailable, "seed price")

	c.Store([]domain.TokenQuote{{Symbol: "BONK", AssetID: "bonk", Price: 0.8}})
	price, err := c.GetPrice(ctx, "bonk")
	require.NoError(t, err)
	assert.Equal(t, 0.8, price)

	now = now.Add(2 * time.Minute)
	_, err = c.GetPrice(ctx, "bonk")
	assert.ErrorIs(t, err, ErrPriceUnavailable, "expired scan")
}
