package solana

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"solana-alpha-engine/internal/observability"
)

// Default configuration values.
const (
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3
	DefaultRetryDelay = 1 * time.Second
	DefaultMaxDelay   = 10 * time.Second
)

// maxResponseBytes bounds a JSON-RPC response body.
const maxResponseBytes = 8 << 20

// HTTPClient implements RPCClient over HTTP JSON-RPC 2.0. Connection
// failures, 429 and 5xx answers are retried with exponential backoff,
// honouring Retry-After. JSON-RPC errors are returned as is.
type HTTPClient struct {
	endpoint  string
	http      *retryablehttp.Client
	requestID atomic.Uint64
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout bounds each HTTP attempt.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		if d > 0 {
			c.http.HTTPClient.Timeout = d
		}
	}
}

// WithMaxRetries sets the retries after the first attempt.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.http.RetryMax = max(n, 0)
	}
}

// WithRetryDelay sets the first backoff delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.http.RetryWaitMin = d
	}
}

// WithMaxDelay caps the backoff delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.http.RetryWaitMax = d
	}
}

// WithHTTPClient replaces the underlying transport client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.http.HTTPClient = client
	}
}

// NewHTTPClient creates a Solana RPC client for endpoint.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	rc := retryablehttp.NewClient()
	rc.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	rc.RetryMax = DefaultMaxRetries
	rc.RetryWaitMin = DefaultRetryDelay
	rc.RetryWaitMax = DefaultMaxDelay
	rc.Logger = nil
	// Hand back the last response so its status is reported below.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	c := &HTTPClient{endpoint: endpoint, http: rc}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// codeInvalidParams is returned by getTokenAccountBalance for accounts that do not exist.
const codeInvalidParams = -32602

// call performs one JSON-RPC method and decodes its result into result.
func (c *HTTPClient) call(ctx context.Context, method string, params []any, result any) (err error) {
	ctx, span := observability.StartSpan(ctx, "solana."+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("rpc.method", method)),
	)
	start := time.Now()
	defer func() {
		observability.RecordRPCLatency(method, time.Since(start).Seconds())
		if err != nil {
			observability.RecordRPCError(method)
		}
		observability.EndSpan(span, err)
	}()

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read %s response: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %d: %s", method, resp.StatusCode, bytes.TrimSpace(raw))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if result != nil && len(rpcResp.Result) > 0 {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}
	return nil
}

// contextValue wraps results that carry a context slot.
type contextValue[T any] struct {
	Context struct {
		Slot int64 `json:"slot"`
	} `json:"context"`
	Value T `json:"value"`
}

func confirmed() map[string]any {
	return map[string]any{"commitment": CommitmentConfirmed}
}

// GetBalance returns the lamport balance of an account at confirmed commitment.
func (c *HTTPClient) GetBalance(ctx context.Context, pubkey string) (uint64, error) {
	var result contextValue[uint64]
	if err := c.call(ctx, "getBalance", []any{pubkey, confirmed()}, &result); err != nil {
		return 0, err
	}
	return result.Value, nil
}

// GetTokenAccountBalance returns the balance of an SPL token account, nil if it does not exist.
func (c *HTTPClient) GetTokenAccountBalance(ctx context.Context, account string) (*TokenAmount, error) {
	var result contextValue[*TokenAmount]
	err := c.call(ctx, "getTokenAccountBalance", []any{account, confirmed()}, &result)
	var rpcErr *rpcError
	if errors.As(err, &rpcErr) && rpcErr.Code == codeInvalidParams {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return result.Value, nil
}

// GetTokenSupply returns the supply of an SPL mint, nil if the mint does not exist.
func (c *HTTPClient) GetTokenSupply(ctx context.Context, mint string) (*TokenAmount, error) {
	var result contextValue[*TokenAmount]
	err := c.call(ctx, "getTokenSupply", []any{mint, confirmed()}, &result)
	var rpcErr *rpcError
	if errors.As(err, &rpcErr) && rpcErr.Code == codeInvalidParams {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return result.Value, nil
}

// SendTransaction submits a signed transaction. Preflight runs at confirmed
// commitment and the node does not rebroadcast: a transaction whose
// confirmation was lost is never resent.
func (c *HTTPClient) SendTransaction(ctx context.Context, tx []byte) (string, error) {
	params := []any{
		base64.StdEncoding.EncodeToString(tx),
		map[string]any{
			"encoding":            "base64",
			"preflightCommitment": CommitmentConfirmed,
			"maxRetries":          0,
		},
	}

	var signature string
	if err := c.call(ctx, "sendTransaction", params, &signature); err != nil {
		return "", err
	}
	if signature == "" {
		return "", errors.New("sendTransaction: empty signature")
	}
	return signature, nil
}

// GetSignatureStatuses returns the status of each signature. Entries are nil
// for signatures the node does not know.
func (c *HTTPClient) GetSignatureStatuses(ctx context.Context, signatures []string) ([]*SignatureStatus, error) {
	if len(signatures) == 0 {
		return nil, nil
	}
	params := []any{signatures, map[string]any{"searchTransactionHistory": true}}

	var result contextValue[[]*SignatureStatus]
	if err := c.call(ctx, "getSignatureStatuses", params, &result); err != nil {
		return nil, err
	}
	if len(result.Value) != len(signatures) {
		return nil, fmt.Errorf("getSignatureStatuses: %d statuses for %d signatures", len(result.Value), len(signatures))
	}
	return result.Value, nil
}

// GetSlot returns the current slot.
func (c *HTTPClient) GetSlot(ctx context.Context) (int64, error) {
	var slot int64
	if err := c.call(ctx, "getSlot", nil, &slot); err != nil {
		return 0, err
	}
	return slot, nil
}

var _ RPCClient = (*HTTPClient)(nil)
