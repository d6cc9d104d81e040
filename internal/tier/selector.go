// Package tier maps current capital to the active strategy tier.
package tier

import (
	"errors"
	"fmt"
	"sort"

	"solana-alpha-engine/internal/domain"
)

// Selector errors
var (
	ErrNoTiers       = errors.New("tier table is empty")
	ErrDuplicateTier = errors.New("two tiers share a minimum balance")
	ErrInvalidTier   = errors.New("invalid tier")
)

// Selector picks the active tier from an ordered tier table.
// It is immutable after construction and safe for concurrent use.
type Selector struct {
	tiers []domain.StrategyTier // ascending by MinBalance
}

// NewSelector validates and orders the tier table.
// An empty table is a startup error: sizing cannot proceed without a default tier.
func NewSelector(tiers []domain.StrategyTier) (*Selector, error) {
	if len(tiers) == 0 {
		return nil, ErrNoTiers
	}

	sorted := make([]domain.StrategyTier, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].MinBalance < sorted[j].MinBalance
	})

	for i, t := range sorted {
		if t.Name == "" {
			return nil, fmt.Errorf("%w: tier %d has no name", ErrInvalidTier, i)
		}
		if t.MaxPositionPercent <= 0 || t.MaxPositionPercent > 100 {
			return nil, fmt.Errorf("%w: %s max position percent %.2f", ErrInvalidTier, t.Name, t.MaxPositionPercent)
		}
		if t.RiskMultiplier <= 0 {
			return nil, fmt.Errorf("%w: %s risk multiplier %.2f", ErrInvalidTier, t.Name, t.RiskMultiplier)
		}
		if i > 0 && sorted[i-1].MinBalance == t.MinBalance {
			return nil, fmt.Errorf("%w: %s and %s at %.2f", ErrDuplicateTier, sorted[i-1].Name, t.Name, t.MinBalance)
		}
	}

	return &Selector{tiers: sorted}, nil
}

// ActiveTier returns the highest tier whose minimum balance is met.
// Balances below every threshold fall back to the lowest tier.
func (s *Selector) ActiveTier(balance float64) domain.StrategyTier {
	active := s.tiers[0]
	for _, t := range s.tiers[1:] {
		if balance < t.MinBalance {
			break
		}
		active = t
	}
	return active
}

// Tiers returns a copy of the ordered tier table.
func (s *Selector) Tiers() []domain.StrategyTier {
	out := make([]domain.StrategyTier, len(s.tiers))
	copy(out, s.tiers)
	return out
}
