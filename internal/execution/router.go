// Package execution turns orders into confirmed swaps.
package execution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"solana-alpha-engine/internal/domain"
	"solana-alpha-engine/internal/wallet"
)

// Router errors. All are transient.
var (
	// ErrNoQuote is returned when a router has no route for a pair.
	ErrNoQuote = fmt.Errorf("no quote: %w", domain.ErrTransient)

	// ErrInsufficientLiquidity is returned when a quote's price impact is too high.
	ErrInsufficientLiquidity = fmt.Errorf("insufficient liquidity: %w", domain.ErrTransient)
)

// ErrTxFailed is returned by a Confirmer when the transaction landed with an error.
var ErrTxFailed = errors.New("transaction failed on chain")

// Quote is a router's offer to swap an input amount for an output amount.
// Amounts are in asset units, not raw base units.
type Quote struct {
	Router         string
	InputMint      string
	OutputMint     string
	InAmount       float64
	OutAmount      float64
	PriceImpactPct float64

	// Raw is the router's own quote payload, posted back on execute.
	Raw json.RawMessage
}

// Router quotes and executes swaps.
type Router interface {
	// Name identifies the router in requests, logs and metrics.
	Name() string

	// Quote returns an offer for amount of inputMint. Returns nil if the router has no route.
	Quote(ctx context.Context, inputMint, outputMint string, amount float64) (*Quote, error)

	// Execute builds, signs and sends the swap for q. A non-empty txRef means
	// the transaction was sent, even if err is set.
	Execute(ctx context.Context, q *Quote, signer wallet.Signer) (txRef string, err error)
}

// Confirmer waits for a sent transaction to land.
type Confirmer interface {
	// Confirm blocks until txRef is confirmed, fails on chain or ctx ends.
	Confirm(ctx context.Context, txRef string) error
}
