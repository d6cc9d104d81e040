package marketdata

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// PriceFeed asks sources for a price in priority order and returns the first answer.
type PriceFeed struct {
	sources []Source
	timeout time.Duration
}

// NewPriceFeed creates a PriceFeed. timeout bounds each source call; 0 means DefaultRequestTimeout.
func NewPriceFeed(timeout time.Duration, sources ...Source) *PriceFeed {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &PriceFeed{sources: sources, timeout: timeout}
}

// Price returns the first successful price and the name of the source that produced it.
func (f *PriceFeed) Price(ctx context.Context, assetID string) (float64, string, error) {
	if len(f.sources) == 0 {
		return 0, "", fmt.Errorf("price feed: %w", ErrPriceUnavailable)
	}

	var errs []error
	for _, src := range f.sources {
		callCtx, cancel := context.WithTimeout(ctx, f.timeout)
		price, err := src.GetPrice(callCtx, assetID)
		cancel()
		if err == nil && price > 0 {
			return price, src.Name(), nil
		}
		if err == nil {
			err = fmt.Errorf("%s: %w", src.Name(), ErrPriceUnavailable)
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return 0, "", errors.Join(errs...)
}
