package marketdata_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-alpha-engine/internal/marketdata"
	"solana-alpha-engine/internal/marketdata/stub"
)

func TestPriceFeed_FirstSuccessWins(t *testing.T) {
	primary := stub.NewSource("primary")
	secondary := stub.NewSource("secondary")
	primary.FailPrice("mintA", nil)
	secondary.SetPrice("mintA", 0.25)

	feed := marketdata.NewPriceFeed(time.Second, primary, secondary)

	price, src, err := feed.Price(context.Background(), "mintA")
	require.NoError(t, err)
	assert.Equal(t, 0.25, price)
	assert.Equal(t, "secondary", src)
	assert.Equal(t, 1, primary.PriceCalls())
}

func TestPriceFeed_AllFail(t *testing.T) {
	a := stub.NewSource("a")
	b := stub.NewSource("b")
	a.FailPrice("mintA", nil)

	feed := marketdata.NewPriceFeed(time.Second, a, b)

	_, _, err := feed.Price(context.Background(), "mintA")
	require.Error(t, err)
	assert.ErrorIs(t, err, stub.ErrUnavailable)
	assert.ErrorIs(t, err, marketdata.ErrPriceUnavailable)
}

func TestPriceFeed_TimeoutPerSource(t *testing.T) {
	slow := stub.NewSource("slow")
	slow.SetPrice("mintA", 1)
	slow.SetDelay(time.Second)
	fast := stub.NewSource("fast")
	fast.SetPrice("mintA", 2)

	feed := marketdata.NewPriceFeed(20*time.Millisecond, slow, fast)

	price, src, err := feed.Price(context.Background(), "mintA")
	require.NoError(t, err)
	assert.Equal(t, 2.0, price)
	assert.Equal(t, "fast", src)
}
