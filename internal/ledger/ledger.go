// Package ledger persists confirmed trades and reports the spendable balance.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"

	"solana-alpha-engine/internal/domain"
	"solana-alpha-engine/internal/solana"
	"solana-alpha-engine/internal/storage"
)

// DefaultFeeReserve is the SOL kept back from the wallet balance for fees.
const DefaultFeeReserve = 0.01

// Ledger records trades and reads the capital balance.
type Ledger interface {
	// RecordTrade persists one confirmed trade. Recording the same trade twice is not an error.
	RecordTrade(ctx context.Context, rec domain.TradeRecord) error

	// GetBalance returns the spendable capital in quote currency.
	GetBalance(ctx context.Context) (float64, error)
}

// PaperLedger derives the balance from recorded trades: initial capital plus net cash flow.
type PaperLedger struct {
	store   storage.TradeRecordStore
	initial float64
}

// NewPaperLedger creates a ledger for paper trading starting with initial capital.
func NewPaperLedger(store storage.TradeRecordStore, initial float64) *PaperLedger {
	return &PaperLedger{store: store, initial: initial}
}

// RecordTrade persists rec.
func (l *PaperLedger) RecordTrade(ctx context.Context, rec domain.TradeRecord) error {
	return insert(ctx, l.store, rec)
}

// GetBalance returns initial capital plus sell proceeds minus buy spend, never negative.
func (l *PaperLedger) GetBalance(ctx context.Context) (float64, error) {
	flow, err := l.store.NetCashFlow(ctx)
	if err != nil {
		return 0, fmt.Errorf("net cash flow: %w", err)
	}
	return math.Max(0, l.initial+flow), nil
}

// ChainLedger records trades to a store and reads the balance from the wallet on chain.
type ChainLedger struct {
	store      storage.TradeRecordStore
	rpc        solana.RPCClient
	owner      string
	feeReserve float64
}

// NewChainLedger creates a ledger for the wallet owner. feeReserve SOL is
// excluded from the balance; negative means DefaultFeeReserve.
func NewChainLedger(store storage.TradeRecordStore, rpc solana.RPCClient, owner string, feeReserve float64) *ChainLedger {
	if feeReserve < 0 {
		feeReserve = DefaultFeeReserve
	}
	return &ChainLedger{store: store, rpc: rpc, owner: owner, feeReserve: feeReserve}
}

// RecordTrade persists rec.
func (l *ChainLedger) RecordTrade(ctx context.Context, rec domain.TradeRecord) error {
	return insert(ctx, l.store, rec)
}

// GetBalance returns the wallet's SOL balance less the fee reserve.
func (l *ChainLedger) GetBalance(ctx context.Context) (float64, error) {
	lamports, err := l.rpc.GetBalance(ctx, l.owner)
	if err != nil {
		return 0, fmt.Errorf("wallet balance: %v: %w", err, domain.ErrTransient)
	}
	return math.Max(0, solana.LamportsToSOL(lamports)-l.feeReserve), nil
}

// TokenBalance returns the wallet's holdings of mint, zero without a token account.
func (l *ChainLedger) TokenBalance(ctx context.Context, mint string) (float64, error) {
	ata, err := solana.AssociatedTokenAddress(l.owner, mint)
	if err != nil {
		return 0, err
	}
	amt, err := l.rpc.GetTokenAccountBalance(ctx, ata)
	if err != nil {
		return 0, fmt.Errorf("token balance %s: %v: %w", mint, err, domain.ErrTransient)
	}
	if amt == nil {
		return 0, nil
	}
	return amt.Float(), nil
}

func insert(ctx context.Context, store storage.TradeRecordStore, rec domain.TradeRecord) error {
	err := store.Insert(ctx, &rec)
	if errors.Is(err, storage.ErrDuplicateKey) {
		return nil
	}
	return err
}

var (
	_ Ledger = (*PaperLedger)(nil)
	_ Ledger = (*ChainLedger)(nil)
)
