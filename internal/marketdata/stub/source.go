// Package stub provides an in-memory marketdata.Source for tests.
package stub

import (
	"context"
	"errors"
	"sync"
	"time"

	"solana-alpha-engine/internal/domain"
	"solana-alpha-engine/internal/marketdata"
)

// ErrUnavailable is the default injected failure.
var ErrUnavailable = errors.New("stub source unavailable")

// Source implements marketdata.Source with configurable quotes, prices and failures.
type Source struct {
	name string

	mu         sync.Mutex
	quotes     []domain.TokenQuote
	prices     map[string]float64
	candErr    error
	priceErrs  map[string]error
	delay      time.Duration
	candCalls  int
	priceCalls int
}

// NewSource creates a stub source.
func NewSource(name string, quotes ...domain.TokenQuote) *Source {
	s := &Source{
		name:      name,
		prices:    make(map[string]float64),
		priceErrs: make(map[string]error),
	}
	s.SetQuotes(quotes...)
	return s
}

// Name returns the source name.
func (s *Source) Name() string {
	return s.name
}

// SetQuotes replaces the candidates returned by GetCandidates.
func (s *Source) SetQuotes(quotes ...domain.TokenQuote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes = make([]domain.TokenQuote, len(quotes))
	for i, q := range quotes {
		if q.Source == "" {
			q.Source = s.name
		}
		s.quotes[i] = q
	}
}

// SetPrice sets the price returned for an asset.
func (s *Source) SetPrice(assetID string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[assetID] = price
	delete(s.priceErrs, assetID)
}

// FailPrice makes GetPrice fail for an asset.
func (s *Source) FailPrice(assetID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		err = ErrUnavailable
	}
	s.priceErrs[assetID] = err
}

// FailCandidates makes GetCandidates fail. A nil error restores normal behaviour.
func (s *Source) FailCandidates(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candErr = err
}

// SetDelay delays every call, honouring context cancellation.
func (s *Source) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// CandidateCalls returns how many times GetCandidates was called.
func (s *Source) CandidateCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.candCalls
}

// PriceCalls returns how many times GetPrice was called.
func (s *Source) PriceCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.priceCalls
}

// GetCandidates returns the configured quotes.
func (s *Source) GetCandidates(ctx context.Context) ([]domain.TokenQuote, error) {
	s.mu.Lock()
	s.candCalls++
	delay := s.delay
	err := s.candErr
	out := make([]domain.TokenQuote, len(s.quotes))
	copy(out, s.quotes)
	s.mu.Unlock()

	if err := wait(ctx, delay); err != nil {
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetPrice returns the configured price.
func (s *Source) GetPrice(ctx context.Context, assetID string) (float64, error) {
	s.mu.Lock()
	s.priceCalls++
	delay := s.delay
	err := s.priceErrs[assetID]
	price, ok := s.prices[assetID]
	s.mu.Unlock()

	if err := wait(ctx, delay); err != nil {
		return 0, err
	}
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, marketdata.ErrPriceUnavailable
	}
	return price, nil
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

var _ marketdata.Source = (*Source)(nil)
