// Package signal merges market-data sources into ranked, scored candidates.
package signal

import (
	"math"

	"solana-alpha-engine/internal/domain"
)

// Step maps values in [Min, Max) to Points. Max 0 leaves the step unbounded above.
type Step struct {
	Min    float64 `mapstructure:"min" json:"min"`
	Max    float64 `mapstructure:"max" json:"max"`
	Points float64 `mapstructure:"points" json:"points"`
}

// Contains reports whether v falls in the step.
func (s Step) Contains(v float64) bool {
	if v < s.Min {
		return false
	}
	return s.Max == 0 || v < s.Max
}

// Bucket scores one metric. Steps are checked in order and the first match wins.
type Bucket struct {
	Weight    float64 `mapstructure:"weight" json:"weight"`
	MaxPoints float64 `mapstructure:"max_points" json:"max_points"`
	Steps     []Step  `mapstructure:"steps" json:"steps"`
}

// Points returns the raw points for v, before weight and cap.
func (b Bucket) Points(v float64) float64 {
	for _, s := range b.Steps {
		if s.Contains(v) {
			return s.Points
		}
	}
	return 0
}

// Contribution returns weight * min(points(v), MaxPoints).
func (b Bucket) Contribution(v float64) float64 {
	return b.Weight * math.Min(b.Points(v), b.MaxPoints)
}

// ScoringConfig holds the five confidence buckets.
type ScoringConfig struct {
	Momentum        Bucket `mapstructure:"momentum" json:"momentum"`                   // 24h price change, percent
	VolumeToMcap    Bucket `mapstructure:"volume_to_mcap" json:"volume_to_mcap"`       // 24h volume / market cap
	MarketCap       Bucket `mapstructure:"market_cap" json:"market_cap"`               // market cap sweet spot
	LiquidityToMcap Bucket `mapstructure:"liquidity_to_mcap" json:"liquidity_to_mcap"` // liquidity / market cap
	Holders         Bucket `mapstructure:"holders" json:"holders"`                     // holder count
}

// DefaultScoring returns the default bucket table. Caps sum to 100 at weight 1.
func DefaultScoring() ScoringConfig {
	return ScoringConfig{
		Momentum: Bucket{Weight: 1, MaxPoints: 25, Steps: []Step{
			{Min: 10, Max: 50, Points: 25},
			{Min: 50, Max: 200, Points: 18},
			{Min: 0, Max: 10, Points: 10},
			{Min: 200, Points: 8},
		}},
		VolumeToMcap: Bucket{Weight: 1, MaxPoints: 25, Steps: []Step{
			{Min: 1, Points: 25},
			{Min: 0.5, Max: 1, Points: 20},
			{Min: 0.2, Max: 0.5, Points: 12},
			{Min: 0.05, Max: 0.2, Points: 5},
		}},
		MarketCap: Bucket{Weight: 1, MaxPoints: 20, Steps: []Step{
			{Min: 100_000, Max: 1_000_000, Points: 20},
			{Min: 1_000_000, Max: 10_000_000, Points: 15},
			{Min: 50_000, Max: 100_000, Points: 8},
			{Min: 10_000_000, Max: 100_000_000, Points: 8},
		}},
		LiquidityToMcap: Bucket{Weight: 1, MaxPoints: 15, Steps: []Step{
			{Min: 0.2, Points: 15},
			{Min: 0.1, Max: 0.2, Points: 10},
			{Min: 0.05, Max: 0.1, Points: 5},
		}},
		Holders: Bucket{Weight: 1, MaxPoints: 15, Steps: []Step{
			{Min: 1000, Points: 15},
			{Min: 500, Max: 1000, Points: 10},
			{Min: 100, Max: 500, Points: 5},
		}},
	}
}

// Score computes the confidence of a quote, clamped to [0, 100].
// Ratio buckets score zero when market cap is unknown.
func Score(cfg ScoringConfig, q domain.TokenQuote) float64 {
	total := cfg.Momentum.Contribution(q.PriceChange24h)
	total += cfg.MarketCap.Contribution(q.MarketCap)
	total += cfg.Holders.Contribution(float64(q.Holders))
	if q.MarketCap > 0 {
		total += cfg.VolumeToMcap.Contribution(q.Volume24h / q.MarketCap)
		total += cfg.LiquidityToMcap.Contribution(q.Liquidity / q.MarketCap)
	}
	return clamp(total, 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
