// Package position holds the shared in-memory position table.
// All writes go through Table methods under one lock; readers get copies.
package position

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"solana-alpha-engine/internal/domain"
)

// ErrNotFound is returned when no live position exists for a symbol.
var ErrNotFound = errors.New("position not found")

// dust is the quantity below which a position counts as fully sold.
const dust = 1e-9

// Buy describes a confirmed buy fill.
type Buy struct {
	PositionID string // used when the buy opens a new position
	Symbol     string
	AssetID    string
	Quantity   float64 // tokens received
	Cost       float64 // capital spent
	Price      float64
	At         time.Time
}

// Sell describes a confirmed sell fill.
type Sell struct {
	Symbol   string
	Quantity float64 // tokens sold, clamped to the held quantity
	Proceeds float64 // capital received
	Price    float64
	At       time.Time
}

// SellResult is the outcome of applying a sell.
type SellResult struct {
	Position    *domain.Position // state after the sell; Status closed when fully sold
	Closed      bool
	RealizedPnL float64 // PnL realized by this sell
	Fraction    float64 // share of the position sold, 0-1
}

// Table is the live set of active and exiting positions, keyed by symbol.
type Table struct {
	mu        sync.RWMutex
	positions map[string]*domain.Position
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{positions: make(map[string]*domain.Position)}
}

// Snapshot returns copies of all live positions ordered by entry time, then symbol.
func (t *Table) Snapshot() []*domain.Position {
	t.mu.RLock()
	out := make([]*domain.Position, 0, len(t.positions))
	for _, p := range t.positions {
		out = append(out, p.Clone())
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].EntryTime.Equal(out[j].EntryTime) {
			return out[i].EntryTime.Before(out[j].EntryTime)
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

// Get returns a copy of the position for symbol.
func (t *Table) Get(symbol string) (*domain.Position, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.positions[symbol]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// Has reports whether a live (active or exiting) position exists for symbol.
func (t *Table) Has(symbol string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.positions[symbol]
	return ok
}

// Len returns the number of live positions.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.positions)
}

// ApplyBuy opens a position or grows an active one.
// Buying into an exiting position or under a different asset id violates the table invariants.
func (t *Table) ApplyBuy(b Buy) (*domain.Position, error) {
	if b.Symbol == "" || b.AssetID == "" {
		return nil, fmt.Errorf("buy: missing symbol or asset: %w", domain.ErrInvariant)
	}
	if b.Quantity <= 0 || b.Cost <= 0 {
		return nil, fmt.Errorf("buy %s: non-positive fill (qty %v, cost %v): %w", b.Symbol, b.Quantity, b.Cost, domain.ErrInvariant)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.positions[b.Symbol]
	if !ok {
		price := b.Price
		if price <= 0 {
			price = b.Cost / b.Quantity
		}
		p = &domain.Position{
			ID:          b.PositionID,
			Symbol:      b.Symbol,
			AssetID:     b.AssetID,
			EntryPrice:  b.Cost / b.Quantity,
			Quantity:    b.Quantity,
			EntryTime:   b.At,
			EntryValue:  b.Cost,
			PeakPrice:   price,
			Status:      domain.PositionActive,
			LastUpdated: b.At,
		}
		p.Revalue(price)
		t.positions[b.Symbol] = p
		return p.Clone(), nil
	}

	if p.AssetID != b.AssetID {
		return nil, fmt.Errorf("buy %s: asset %s conflicts with held %s: %w", b.Symbol, b.AssetID, p.AssetID, domain.ErrInvariant)
	}
	if p.Status != domain.PositionActive {
		return nil, fmt.Errorf("buy %s: position is %s: %w", b.Symbol, p.Status, domain.ErrInvariant)
	}

	p.Quantity += b.Quantity
	p.EntryValue += b.Cost
	p.EntryPrice = p.EntryValue / p.Quantity
	price := b.Price
	if price <= 0 {
		price = p.CurrentPrice
	}
	p.Revalue(price)
	p.LastUpdated = b.At
	return p.Clone(), nil
}

// ApplySell reduces a position pro-rata, or closes and removes it when fully sold.
func (t *Table) ApplySell(s Sell) (SellResult, error) {
	if s.Quantity <= 0 {
		return SellResult{}, fmt.Errorf("sell %s: non-positive quantity %v: %w", s.Symbol, s.Quantity, domain.ErrInvariant)
	}
	if s.Proceeds < 0 {
		return SellResult{}, fmt.Errorf("sell %s: negative proceeds: %w", s.Symbol, domain.ErrInvariant)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.positions[s.Symbol]
	if !ok {
		return SellResult{}, fmt.Errorf("sell %s: %w", s.Symbol, ErrNotFound)
	}

	qty := math.Min(s.Quantity, p.Quantity)
	fraction := qty / p.Quantity
	costBasis := p.EntryValue * fraction
	realized := s.Proceeds - costBasis

	p.Quantity -= qty
	p.EntryValue -= costBasis
	p.RealizedPnL += realized
	p.LastUpdated = s.At

	price := s.Price
	if price <= 0 {
		price = p.CurrentPrice
	}

	if p.Quantity <= dust {
		p.Quantity = 0
		p.EntryValue = 0
		p.CurrentPrice = price
		p.CurrentValue = 0
		p.UnrealizedPnL = 0
		p.Status = domain.PositionClosed
		delete(t.positions, s.Symbol)
		return SellResult{Position: p.Clone(), Closed: true, RealizedPnL: realized, Fraction: 1}, nil
	}

	p.Revalue(price)
	return SellResult{Position: p.Clone(), RealizedPnL: realized, Fraction: fraction}, nil
}

// MarkExiting moves a position to exiting. Marking an exiting position again is a no-op.
func (t *Table) MarkExiting(symbol string) error {
	return t.Update(symbol, func(p *domain.Position) error {
		p.Status = domain.PositionExiting
		return nil
	})
}

// Update applies fn to the live position under the write lock.
// fn works on a copy; the result is committed only if fn succeeds and the
// invariants hold: status moves forward, quantity stays non-negative and the
// trailing stop does not decrease.
func (t *Table) Update(symbol string, fn func(p *domain.Position) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur, ok := t.positions[symbol]
	if !ok {
		return fmt.Errorf("update %s: %w", symbol, ErrNotFound)
	}

	next := cur.Clone()
	if err := fn(next); err != nil {
		return err
	}
	if err := checkUpdate(cur, next); err != nil {
		return fmt.Errorf("update %s: %w", symbol, err)
	}

	if next.Status == domain.PositionClosed {
		delete(t.positions, symbol)
		return nil
	}
	t.positions[symbol] = next
	return nil
}

func checkUpdate(cur, next *domain.Position) error {
	if !cur.Status.CanTransitionTo(next.Status) {
		return fmt.Errorf("status %s -> %s: %w", cur.Status, next.Status, domain.ErrInvariant)
	}
	if next.Quantity < 0 {
		return fmt.Errorf("negative quantity %v: %w", next.Quantity, domain.ErrInvariant)
	}
	if next.TrailingStop < cur.TrailingStop {
		return fmt.Errorf("trailing stop %v below %v: %w", next.TrailingStop, cur.TrailingStop, domain.ErrInvariant)
	}
	if next.Symbol != cur.Symbol || next.AssetID != cur.AssetID || next.ID != cur.ID {
		return fmt.Errorf("identity changed: %w", domain.ErrInvariant)
	}
	return nil
}

// Totals returns the number of live positions, how many are stale and their aggregate unrealized PnL.
func (t *Table) Totals() (open, stale int, unrealized float64) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, p := range t.positions {
		open++
		if p.Stale {
			stale++
		}
		unrealized += p.UnrealizedPnL
	}
	return open, stale, unrealized
}
