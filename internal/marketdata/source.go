// Package marketdata defines the market-data source interface and its implementations.
package marketdata

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"solana-alpha-engine/internal/domain"
)

// Source errors
var (
	// ErrNoData is returned when a source has nothing to report.
	ErrNoData = errors.New("no market data")

	// ErrPriceUnavailable is returned when no price is known for an asset.
	ErrPriceUnavailable = errors.New("price unavailable")
)

// Source provides token quotes and prices.
// Implementations must be safe for concurrent use.
type Source interface {
	// Name returns a stable identifier used in logs, metrics and candidates.
	Name() string

	// GetCandidates returns the tokens the source currently surfaces.
	GetCandidates(ctx context.Context) ([]domain.TokenQuote, error)

	// GetPrice returns the current price of an asset in quote currency.
	GetPrice(ctx context.Context, assetID string) (float64, error)
}

// Default HTTP client settings.
const (
	DefaultRequestTimeout = 10 * time.Second
	DefaultRetryMax       = 3
	DefaultRetryWaitMin   = 500 * time.Millisecond
	DefaultRetryWaitMax   = 3 * time.Second
)

// HTTPConfig configures the retrying HTTP client shared by HTTP sources.
type HTTPConfig struct {
	Timeout      time.Duration
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// DefaultHTTPConfig returns default HTTP client settings.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Timeout:      DefaultRequestTimeout,
		RetryMax:     DefaultRetryMax,
		RetryWaitMin: DefaultRetryWaitMin,
		RetryWaitMax: DefaultRetryWaitMax,
	}
}

// NewRetryClient creates an HTTP client with retry on 429 and 5xx.
func NewRetryClient(cfg HTTPConfig) *http.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = cfg.RetryMax
	c.RetryWaitMin = cfg.RetryWaitMin
	c.RetryWaitMax = cfg.RetryWaitMax
	c.Logger = nil

	std := c.StandardClient()
	std.Timeout = cfg.Timeout
	return std
}
