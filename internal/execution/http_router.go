package execution

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"solana-alpha-engine/internal/domain"
	"solana-alpha-engine/internal/marketdata"
	"solana-alpha-engine/internal/solana"
	"solana-alpha-engine/internal/wallet"
)

// Default router settings.
const (
	DefaultSlippageBps       = 100
	DefaultMaxPriceImpactPct = 5.0
	DefaultRouterTimeout     = 10 * time.Second
	solDecimals              = 9
	maxTokenDecimals         = 18
)

// HTTPRouterOptions configures an HTTPRouter.
type HTTPRouterOptions struct {
	Name    string
	BaseURL string // serves GET /quote and POST /swap
	RPC     solana.RPCClient

	SlippageBps       int
	MaxPriceImpactPct float64

	// Decimals maps mints to their decimals. Wrapped SOL is always 9. Other
	// mints are resolved through RPC once and cached; without RPC they cannot
	// be quoted.
	Decimals map[string]int

	Timeout  time.Duration
	RetryMax int          // transport-level retries on 429 and 5xx, default 1
	Client   *http.Client // overrides Timeout and RetryMax when set
}

// HTTPRouter talks to a Jupiter-compatible swap API and sends the signed
// transaction through Solana RPC.
type HTTPRouter struct {
	name           string
	baseURL        string
	rpc            solana.RPCClient
	slippageBps    int
	maxPriceImpact float64
	client         *http.Client

	mu       sync.RWMutex
	decimals map[string]int
}

// NewHTTPRouter creates an HTTPRouter.
func NewHTTPRouter(opts HTTPRouterOptions) *HTTPRouter {
	name := opts.Name
	if name == "" {
		name = "router"
	}
	slippage := opts.SlippageBps
	if slippage <= 0 {
		slippage = DefaultSlippageBps
	}
	maxImpact := opts.MaxPriceImpactPct
	if maxImpact <= 0 {
		maxImpact = DefaultMaxPriceImpactPct
	}
	client := opts.Client
	if client == nil {
		rc := retryablehttp.NewClient()
		rc.RetryMax = opts.RetryMax
		if rc.RetryMax <= 0 {
			rc.RetryMax = 1
		}
		rc.RetryWaitMin = 200 * time.Millisecond
		rc.RetryWaitMax = time.Second
		rc.Logger = nil
		client = rc.StandardClient()
		client.Timeout = opts.Timeout
		if client.Timeout <= 0 {
			client.Timeout = DefaultRouterTimeout
		}
	}

	decimals := map[string]int{marketdata.WrappedSOLMint: solDecimals}
	for mint, d := range opts.Decimals {
		decimals[mint] = d
	}

	return &HTTPRouter{
		name:           name,
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		rpc:            opts.RPC,
		slippageBps:    slippage,
		maxPriceImpact: maxImpact,
		decimals:       decimals,
		client:         client,
	}
}

// Name returns the router name.
func (r *HTTPRouter) Name() string {
	return r.name
}

type quoteResponse struct {
	InputMint      string `json:"inputMint"`
	InAmount       string `json:"inAmount"`
	OutputMint     string `json:"outputMint"`
	OutAmount      string `json:"outAmount"`
	PriceImpactPct string `json:"priceImpactPct"`
}

type routerError struct {
	Error     string `json:"error"`
	ErrorCode string `json:"errorCode"`
}

// Quote requests a quote. A "no route" answer returns nil without error.
// Mints with unknown decimals are refused with ErrDataQuality.
func (r *HTTPRouter) Quote(ctx context.Context, inputMint, outputMint string, amount float64) (*Quote, error) {
	inDecimals, err := r.decimalsOf(ctx, inputMint)
	if err != nil {
		return nil, err
	}
	outDecimals, err := r.decimalsOf(ctx, outputMint)
	if err != nil {
		return nil, err
	}

	raw := toBaseUnits(amount, inDecimals)
	if raw == 0 {
		return nil, fmt.Errorf("%s: amount %v rounds to zero: %w", r.name, amount, domain.ErrInvariant)
	}

	q := url.Values{}
	q.Set("inputMint", inputMint)
	q.Set("outputMint", outputMint)
	q.Set("amount", strconv.FormatUint(raw, 10))
	q.Set("slippageBps", strconv.Itoa(r.slippageBps))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/quote?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", r.name, err)
	}

	body, status, err := r.do(req)
	if err != nil {
		return nil, err
	}
	if status == http.StatusBadRequest || status == http.StatusNotFound {
		var re routerError
		if json.Unmarshal(body, &re) == nil && isNoRoute(re) {
			return nil, nil
		}
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%s: quote status %d: %s: %w", r.name, status, truncate(body), domain.ErrTransient)
	}

	var qr quoteResponse
	if err := json.Unmarshal(body, &qr); err != nil {
		return nil, fmt.Errorf("%s: decode quote: %w", r.name, err)
	}

	inRaw, err1 := strconv.ParseUint(qr.InAmount, 10, 64)
	outRaw, err2 := strconv.ParseUint(qr.OutAmount, 10, 64)
	if err1 != nil || err2 != nil {
		return nil, fmt.Errorf("%s: malformed quote amounts %q/%q: %w", r.name, qr.InAmount, qr.OutAmount, domain.ErrDataQuality)
	}
	if outRaw == 0 {
		return nil, nil
	}

	// The API reports impact as a fraction
	impact, _ := strconv.ParseFloat(qr.PriceImpactPct, 64)
	impact *= 100
	if impact > r.maxPriceImpact {
		return nil, fmt.Errorf("%s: price impact %.2f%% over %.2f%%: %w", r.name, impact, r.maxPriceImpact, ErrInsufficientLiquidity)
	}

	return &Quote{
		Router:         r.name,
		InputMint:      inputMint,
		OutputMint:     outputMint,
		InAmount:       fromBaseUnits(inRaw, inDecimals),
		OutAmount:      fromBaseUnits(outRaw, outDecimals),
		PriceImpactPct: impact,
		Raw:            json.RawMessage(body),
	}, nil
}

type swapRequest struct {
	QuoteResponse    json.RawMessage `json:"quoteResponse"`
	UserPublicKey    string          `json:"userPublicKey"`
	WrapAndUnwrapSol bool            `json:"wrapAndUnwrapSol"`
}

type swapResponse struct {
	SwapTransaction string `json:"swapTransaction"`
}

// Execute fetches the unsigned swap transaction, signs it and sends it.
func (r *HTTPRouter) Execute(ctx context.Context, q *Quote, signer wallet.Signer) (string, error) {
	if q == nil || len(q.Raw) == 0 {
		return "", fmt.Errorf("%s: execute without quote: %w", r.name, domain.ErrInvariant)
	}
	if r.rpc == nil {
		return "", fmt.Errorf("%s: no RPC client configured", r.name)
	}

	payload, err := json.Marshal(swapRequest{
		QuoteResponse:    q.Raw,
		UserPublicKey:    signer.PublicKey(),
		WrapAndUnwrapSol: true,
	})
	if err != nil {
		return "", fmt.Errorf("%s: marshal swap request: %w", r.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/swap", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%s: create request: %w", r.name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, status, err := r.do(req)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("%s: swap status %d: %s: %w", r.name, status, truncate(body), domain.ErrTransient)
	}

	var sr swapResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return "", fmt.Errorf("%s: decode swap: %w", r.name, err)
	}
	unsigned, err := base64.StdEncoding.DecodeString(sr.SwapTransaction)
	if err != nil || len(unsigned) == 0 {
		return "", fmt.Errorf("%s: bad swap transaction encoding: %w", r.name, domain.ErrDataQuality)
	}

	signed, err := signer.SignTransaction(ctx, unsigned)
	if err != nil {
		return "", fmt.Errorf("%s: sign: %w", r.name, err)
	}

	sig, err := r.rpc.SendTransaction(ctx, signed)
	if err != nil {
		return "", fmt.Errorf("%s: send: %v: %w", r.name, err, domain.ErrTransient)
	}
	return sig, nil
}

func (r *HTTPRouter) do(req *http.Request) ([]byte, int, error) {
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: request: %v: %w", r.name, err, domain.ErrTransient)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, 0, fmt.Errorf("%s: read response: %v: %w", r.name, err, domain.ErrTransient)
	}
	return body, resp.StatusCode, nil
}

// decimalsOf returns the decimals of mint from the configured overrides, the
// cache, or the mint's on-chain supply.
func (r *HTTPRouter) decimalsOf(ctx context.Context, mint string) (int, error) {
	r.mu.RLock()
	d, ok := r.decimals[mint]
	r.mu.RUnlock()
	if ok {
		return d, nil
	}
	if r.rpc == nil {
		return 0, fmt.Errorf("%s: decimals of %s unknown: %w", r.name, mint, domain.ErrDataQuality)
	}

	supply, err := r.rpc.GetTokenSupply(ctx, mint)
	if err != nil {
		return 0, fmt.Errorf("%s: token supply %s: %v: %w", r.name, mint, err, domain.ErrTransient)
	}
	if supply == nil || supply.Decimals < 0 || supply.Decimals > maxTokenDecimals {
		return 0, fmt.Errorf("%s: mint %s has no usable decimals: %w", r.name, mint, domain.ErrDataQuality)
	}

	r.mu.Lock()
	r.decimals[mint] = supply.Decimals
	r.mu.Unlock()
	return supply.Decimals, nil
}

func toBaseUnits(amount float64, decimals int) uint64 {
	if amount <= 0 {
		return 0
	}
	return uint64(math.Floor(amount * math.Pow10(decimals)))
}

func fromBaseUnits(raw uint64, decimals int) float64 {
	return float64(raw) / math.Pow10(decimals)
}

func isNoRoute(e routerError) bool {
	code := strings.ToUpper(e.ErrorCode)
	return strings.Contains(code, "ROUTE") || code == "TOKEN_NOT_TRADABLE"
}

func truncate(b []byte) string {
	const limit = 200
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}

var _ Router = (*HTTPRouter)(nil)
