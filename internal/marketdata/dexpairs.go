package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"solana-alpha-engine/internal/domain"
)

// DexPairsSource reads aggregated DEX pair data from a DexScreener-compatible API.
// Prices are taken in native quote units (SOL) so they match the capital currency.
type DexPairsSource struct {
	name    string
	baseURL string
	chainID string
	queries []string
	client  *http.Client
	limiter *rate.Limiter
}

// DexPairsOptions configures a DexPairsSource.
type DexPairsOptions struct {
	Name      string
	BaseURL   string
	ChainID   string   // default: solana
	Queries   []string // search queries polled by GetCandidates
	RateLimit float64  // requests per second, 0 = unlimited
	HTTP      HTTPConfig
	Client    *http.Client // overrides HTTP when set
}

// NewDexPairsSource creates a new aggregated-pair source.
func NewDexPairsSource(opts DexPairsOptions) *DexPairsSource {
	name := opts.Name
	if name == "" {
		name = "dexpairs"
	}
	chainID := opts.ChainID
	if chainID == "" {
		chainID = "solana"
	}
	client := opts.Client
	if client == nil {
		httpCfg := opts.HTTP
		if httpCfg.Timeout == 0 {
			httpCfg = DefaultHTTPConfig()
		}
		client = NewRetryClient(httpCfg)
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}

	return &DexPairsSource{
		name:    name,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		chainID: chainID,
		queries: opts.Queries,
		client:  client,
		limiter: limiter,
	}
}

// Name returns the source name.
func (s *DexPairsSource) Name() string {
	return s.name
}

// pairsResponse is the raw response for search and token endpoints.
type pairsResponse struct {
	Pairs []dexPair `json:"pairs"`
}

type dexPair struct {
	ChainID   string `json:"chainId"`
	DexID     string `json:"dexId"`
	PairAddr  string `json:"pairAddress"`
	BaseToken struct {
		Address string `json:"address"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	PriceNative string `json:"priceNative"`
	PriceUsd    string `json:"priceUsd"`
	Volume      struct {
		H24 float64 `json:"h24"`
	} `json:"volume"`
	PriceChange struct {
		H24 float64 `json:"h24"`
	} `json:"priceChange"`
	Liquidity *struct {
		Usd float64 `json:"usd"`
	} `json:"liquidity"`
	MarketCap float64 `json:"marketCap"`
	Fdv       float64 `json:"fdv"`
	Holders   int     `json:"holders"`
}

// GetCandidates runs every configured query and returns one quote per pair.
// A failing query fails the whole call so partial data is never mistaken for a full scan.
func (s *DexPairsSource) GetCandidates(ctx context.Context) ([]domain.TokenQuote, error) {
	if len(s.queries) == 0 {
		return nil, fmt.Errorf("%s: %w: no queries configured", s.name, ErrNoData)
	}

	var quotes []domain.TokenQuote
	for _, q := range s.queries {
		pairs, err := s.fetch(ctx, "/latest/dex/search?q="+url.QueryEscape(q))
		if err != nil {
			return nil, err
		}
		for _, p := range pairs {
			if p.ChainID != s.chainID {
				continue
			}
			quotes = append(quotes, s.toQuote(p))
		}
	}
	return quotes, nil
}

// GetPrice returns the native price of the most liquid pair for the asset.
func (s *DexPairsSource) GetPrice(ctx context.Context, assetID string) (float64, error) {
	pairs, err := s.fetch(ctx, "/latest/dex/tokens/"+url.PathEscape(assetID))
	if err != nil {
		return 0, err
	}

	var best *dexPair
	for i := range pairs {
		p := &pairs[i]
		if p.ChainID != s.chainID || p.BaseToken.Address != assetID {
			continue
		}
		if best == nil || liquidityOf(*p) > liquidityOf(*best) {
			best = p
		}
	}
	if best == nil {
		return 0, fmt.Errorf("%s: %s: %w", s.name, assetID, ErrPriceUnavailable)
	}

	price := parseFloat(best.PriceNative)
	if price <= 0 {
		return 0, fmt.Errorf("%s: %s: non-positive price: %w", s.name, assetID, domain.ErrDataQuality)
	}
	return price, nil
}

func (s *DexPairsSource) fetch(ctx context.Context, path string) ([]dexPair, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s: rate limiter: %w", s.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", s.name, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", s.name, domain.ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%s: %w: status %d: %s", s.name, domain.ErrTransient, resp.StatusCode, string(body))
	}

	var out pairsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", s.name, err)
	}
	return out.Pairs, nil
}

func (s *DexPairsSource) toQuote(p dexPair) domain.TokenQuote {
	mcap := p.MarketCap
	if mcap == 0 {
		mcap = p.Fdv
	}
	return domain.TokenQuote{
		Symbol:         p.BaseToken.Symbol,
		AssetID:        p.BaseToken.Address,
		Source:         s.name,
		Price:          parseFloat(p.PriceNative),
		Volume24h:      p.Volume.H24,
		MarketCap:      mcap,
		PriceChange24h: p.PriceChange.H24,
		Holders:        p.Holders,
		Liquidity:      liquidityOf(p),
	}
}

func liquidityOf(p dexPair) float64 {
	if p.Liquidity == nil {
		return 0
	}
	return p.Liquidity.Usd
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

var _ Source = (*DexPairsSource)(nil)
