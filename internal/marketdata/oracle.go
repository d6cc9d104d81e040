package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"

	"solana-alpha-engine/internal/domain"
)

// WrappedSOLMint is the mint of wrapped SOL, the default quote asset.
const WrappedSOLMint = "So11111111111111111111111111111111111111112"

// OracleSource reads prices from a Jupiter-compatible price API.
// It surfaces no candidates: it is a price source only.
type OracleSource struct {
	name    string
	baseURL string
	vsToken string
	client  *http.Client
	limiter *rate.Limiter
}

// OracleOptions configures an OracleSource.
type OracleOptions struct {
	Name      string
	BaseURL   string
	VsToken   string  // quote asset mint, default wrapped SOL
	RateLimit float64 // requests per second, 0 = unlimited
	HTTP      HTTPConfig
	Client    *http.Client
}

// NewOracleSource creates a new price-oracle source.
func NewOracleSource(opts OracleOptions) *OracleSource {
	name := opts.Name
	if name == "" {
		name = "oracle"
	}
	vs := opts.VsToken
	if vs == "" {
		vs = WrappedSOLMint
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

	return &OracleSource{
		name:    name,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		vsToken: vs,
		client:  client,
		limiter: limiter,
	}
}

// Name returns the source name.
func (s *OracleSource) Name() string {
	return s.name
}

// GetCandidates returns no quotes.
func (s *OracleSource) GetCandidates(_ context.Context) ([]domain.TokenQuote, error) {
	return nil, nil
}

type priceResponse struct {
	Data map[string]*struct {
		ID    string          `json:"id"`
		Price json.RawMessage `json:"price"` // string or number depending on API version
	} `json:"data"`
}

// GetPrice returns the oracle price of an asset against the quote token.
func (s *OracleSource) GetPrice(ctx context.Context, assetID string) (float64, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("%s: rate limiter: %w", s.name, err)
	}

	q := url.Values{}
	q.Set("ids", assetID)
	q.Set("vsToken", s.vsToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/price?"+q.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("%s: create request: %w", s.name, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s: %w: %w", s.name, domain.ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("%s: %w: status %d: %s", s.name, domain.ErrTransient, resp.StatusCode, string(body))
	}

	var out priceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("%s: decode response: %w", s.name, err)
	}

	entry, ok := out.Data[assetID]
	if !ok || entry == nil {
		return 0, fmt.Errorf("%s: %s: %w", s.name, assetID, ErrPriceUnavailable)
	}

	price := parseRawFloat(entry.Price)
	if price <= 0 {
		return 0, fmt.Errorf("%s: %s: non-positive price: %w", s.name, assetID, domain.ErrDataQuality)
	}
	return price, nil
}

// parseRawFloat accepts a JSON number or a quoted number.
func parseRawFloat(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return parseFloat(s)
	}
	return 0
}

var _ Source = (*OracleSource)(nil)
