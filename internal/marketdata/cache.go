package marketdata

import (
	"context"
	"fmt"
	"sync"
	"time"

	"solana-alpha-engine/internal/domain"
)

// CacheSource serves the last successful scan, or a static seed set when nothing was cached.
// It is the aggregator's fallback and is never polled as a live source.
type CacheSource struct {
	mu       sync.RWMutex
	quotes   []domain.TokenQuote
	storedAt time.Time
	seeds    []domain.TokenQuote
	maxAge   time.Duration
	now      func() time.Time
}

// NewCacheSource creates a cache with optional static seeds.
// Cached quotes older than maxAge are ignored in favour of the seeds; maxAge 0 disables expiry.
func NewCacheSource(seeds []domain.TokenQuote, maxAge time.Duration) *CacheSource {
	s := make([]domain.TokenQuote, len(seeds))
	copy(s, seeds)
	for i := range s {
		if s[i].Source == "" {
			s[i].Source = "static"
		}
	}
	return &CacheSource{seeds: s, maxAge: maxAge, now: time.Now}
}

// Name returns the source name.
func (c *CacheSource) Name() string {
	return "cache"
}

// Store replaces the cached quotes.
func (c *CacheSource) Store(quotes []domain.TokenQuote) {
	if len(quotes) == 0 {
		return
	}
	cp := make([]domain.TokenQuote, len(quotes))
	copy(cp, quotes)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.quotes = cp
	c.storedAt = c.now()
}

// GetCandidates returns cached quotes, falling back to the seeds.
func (c *CacheSource) GetCandidates(_ context.Context) ([]domain.TokenQuote, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	src := c.quotes
	if len(src) == 0 || (c.maxAge > 0 && c.now().Sub(c.storedAt) > c.maxAge) {
		src = c.seeds
	}
	if len(src) == 0 {
		return nil, fmt.Errorf("cache: %w", ErrNoData)
	}

	out := make([]domain.TokenQuote, len(src))
	copy(out, src)
	return out, nil
}

// GetPrice returns the price of assetID from the last stored scan. Seeds and
// expired scans never answer: a price is only served while it is fresh.
func (c *CacheSource) GetPrice(_ context.Context, assetID string) (float64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.maxAge > 0 && c.now().Sub(c.storedAt) > c.maxAge {
		return 0, fmt.Errorf("cache: %s: %w", assetID, ErrPriceUnavailable)
	}
	for _, q := range c.quotes {
		if q.AssetID == assetID && q.Price > 0 {
			return q.Price, nil
		}
	}
	return 0, fmt.Errorf("cache: %s: %w", assetID, ErrPriceUnavailable)
}

var _ Source = (*CacheSource)(nil)
