package execution

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync/atomic"

	"solana-alpha-engine/internal/domain"
	"solana-alpha-engine/internal/marketdata"
	"solana-alpha-engine/internal/wallet"
)

// PriceFeed returns the current price of an asset in the quote currency.
type PriceFeed interface {
	Price(ctx context.Context, assetID string) (float64, string, error)
}

// PaperRouter fills swaps at the live market price less slippage without
// touching the chain. Paper transaction references start with "paper-".
type PaperRouter struct {
	name        string
	prices      PriceFeed
	quoteMint   string
	slippageBps int
	seq         atomic.Uint64
}

// PaperOption configures a PaperRouter.
type PaperOption func(*PaperRouter)

// WithPaperQuoteMint sets the mint buys are paid in, default wrapped SOL.
func WithPaperQuoteMint(mint string) PaperOption {
	return func(r *PaperRouter) {
		if mint != "" {
			r.quoteMint = mint
		}
	}
}

// NewPaperRouter creates a paper router quoting from prices.
func NewPaperRouter(prices PriceFeed, slippageBps int, opts ...PaperOption) *PaperRouter {
	if slippageBps < 0 {
		slippageBps = 0
	}
	r := &PaperRouter{
		name:        "paper",
		prices:      prices,
		quoteMint:   marketdata.WrappedSOLMint,
		slippageBps: slippageBps,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Name returns "paper".
func (r *PaperRouter) Name() string {
	return r.name
}

// Quote prices the swap from the feed. Unknown prices mean no quote.
func (r *PaperRouter) Quote(ctx context.Context, inputMint, outputMint string, amount float64) (*Quote, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("paper: non-positive amount: %w", domain.ErrInvariant)
	}

	asset := outputMint
	buy := inputMint == r.quoteMint
	if !buy {
		asset = inputMint
	}

	price, _, err := r.prices.Price(ctx, asset)
	if err != nil {
		if errors.Is(err, marketdata.ErrPriceUnavailable) {
			return nil, nil
		}
		return nil, fmt.Errorf("paper: price %s: %v: %w", asset, err, domain.ErrTransient)
	}
	if price <= 0 {
		return nil, nil
	}

	keep := 1 - float64(r.slippageBps)/10_000
	out := amount * price * keep
	if buy {
		out = amount / price * keep
	}

	return &Quote{
		Router:     r.name,
		InputMint:  inputMint,
		OutputMint: outputMint,
		InAmount:   amount,
		OutAmount:  out,
	}, nil
}

// Execute returns a unique paper transaction reference.
func (r *PaperRouter) Execute(_ context.Context, q *Quote, _ wallet.Signer) (string, error) {
	if q == nil {
		return "", fmt.Errorf("paper: execute without quote: %w", domain.ErrInvariant)
	}
	n := r.seq.Add(1)
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%v|%d", q.InputMint, q.OutputMint, q.InAmount, n)))
	return "paper-" + hex.EncodeToString(sum[:16]), nil
}

// PaperConfirmer confirms every transaction immediately.
type PaperConfirmer struct{}

// Confirm returns nil unless ctx is done.
func (PaperConfirmer) Confirm(ctx context.Context, _ string) error {
	return ctx.Err()
}

var (
	_ Router    = (*PaperRouter)(nil)
	_ Confirmer = PaperConfirmer{}
)
