// Package sizing turns a scored candidate into a bounded capital allocation.
package sizing

import (
	"math"

	"solana-alpha-engine/internal/domain"
)

// Default sizing parameters.
const (
	DefaultAbsoluteCeilingPercent  = 30.0
	DefaultMaxConfidenceMultiplier = 2.0
	DefaultConfidencePivot         = 50.0
	DefaultMinTradeAmount          = 0.05
)

// RejectReason explains why no allocation was made.
type RejectReason string

const (
	RejectNone            RejectReason = ""
	RejectBelowConfidence RejectReason = "below_confidence"
	RejectActivePosition  RejectReason = "active_position"
	RejectBelowMinimum    RejectReason = "below_minimum"
	RejectNoBalance       RejectReason = "no_balance"
)

// Config holds sizing limits.
type Config struct {
	AbsoluteCeilingPercent  float64 `mapstructure:"absolute_ceiling_percent"`  // hard cap per position, percent of balance
	MaxConfidenceMultiplier float64 `mapstructure:"max_confidence_multiplier"` // upper bound of the confidence multiplier
	ConfidencePivot         float64 `mapstructure:"confidence_pivot"`          // confidence that maps to multiplier 1.0
	MinTradeAmount          float64 `mapstructure:"min_trade_amount"`          // smallest tradable allocation
}

// DefaultConfig returns the default sizing limits.
func DefaultConfig() Config {
	return Config{
		AbsoluteCeilingPercent:  DefaultAbsoluteCeilingPercent,
		MaxConfidenceMultiplier: DefaultMaxConfidenceMultiplier,
		ConfidencePivot:         DefaultConfidencePivot,
		MinTradeAmount:          DefaultMinTradeAmount,
	}
}

// Input is everything one sizing decision depends on.
type Input struct {
	Candidate         domain.Candidate
	Tier              domain.StrategyTier
	Balance           float64
	HasActivePosition bool
}

// Decision is the result of sizing. A rejection is a normal outcome, not an error.
type Decision struct {
	Approved   bool
	Amount     float64 // quote currency to allocate
	Percent    float64 // allocation as percent of balance, after clamping
	Multiplier float64 // confidence multiplier applied
	Reason     RejectReason
}

// Policy computes allocations. It holds no state and never touches execution.
type Policy struct {
	cfg Config
}

// NewPolicy creates a Policy, filling zero fields with defaults.
func NewPolicy(cfg Config) *Policy {
	def := DefaultConfig()
	if cfg.AbsoluteCeilingPercent <= 0 {
		cfg.AbsoluteCeilingPercent = def.AbsoluteCeilingPercent
	}
	if cfg.MaxConfidenceMultiplier <= 0 {
		cfg.MaxConfidenceMultiplier = def.MaxConfidenceMultiplier
	}
	if cfg.ConfidencePivot <= 0 {
		cfg.ConfidencePivot = def.ConfidencePivot
	}
	if cfg.MinTradeAmount < 0 {
		cfg.MinTradeAmount = def.MinTradeAmount
	}
	return &Policy{cfg: cfg}
}

// Config returns the effective configuration.
func (p *Policy) Config() Config {
	return p.cfg
}

// ConfidenceMultiplier maps confidence to a bounded, non-decreasing multiplier.
func (p *Policy) ConfidenceMultiplier(confidence float64) float64 {
	if confidence <= 0 {
		return 0
	}
	return math.Min(p.cfg.MaxConfidenceMultiplier, confidence/p.cfg.ConfidencePivot)
}

// Size returns the allocation for one candidate.
//
//	percent = tier.MaxPositionPercent * min(maxMult, confidence/pivot) * tier.RiskMultiplier
//
// clamped to the absolute ceiling.
func (p *Policy) Size(in Input) Decision {
	if in.HasActivePosition {
		return Decision{Reason: RejectActivePosition}
	}
	if in.Candidate.Confidence < in.Tier.MinConfidence {
		return Decision{Reason: RejectBelowConfidence}
	}
	if in.Balance <= 0 {
		return Decision{Reason: RejectNoBalance}
	}

	mult := p.ConfidenceMultiplier(in.Candidate.Confidence)
	percent := in.Tier.MaxPositionPercent * mult * in.Tier.RiskMultiplier
	percent = math.Max(0, math.Min(percent, p.cfg.AbsoluteCeilingPercent))

	amount := in.Balance * percent / 100
	if amount <= 0 || amount < p.cfg.MinTradeAmount {
		return Decision{Percent: percent, Multiplier: mult, Amount: amount, Reason: RejectBelowMinimum}
	}

	return Decision{
		Approved:   true,
		Amount:     amount,
		Percent:    percent,
		Multiplier: mult,
	}
}
