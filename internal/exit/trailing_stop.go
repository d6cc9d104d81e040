package exit

import (
	"fmt"
	"math"
	"sort"

	"solana-alpha-engine/internal/domain"
)

// RuleTrailingStop is the rule name of the trailing stop.
const RuleTrailingStop = "trailing_stop"

// TrailStep widens the trail once ROI reaches MinROI.
type TrailStep struct {
	MinROI       float64 `mapstructure:"min_roi"`       // percent
	TrailPercent float64 `mapstructure:"trail_percent"` // percent below price
}

// TrailingConfig configures the trailing stop.
type TrailingConfig struct {
	BasePercent float64     `mapstructure:"base_percent"` // trail below +MinROI of the first step, also the initial stop distance
	Steps       []TrailStep `mapstructure:"steps"`
}

// DefaultTrailingConfig returns 8% base, 12% from +50% ROI, 15% from +100% ROI.
func DefaultTrailingConfig() TrailingConfig {
	return TrailingConfig{
		BasePercent: 8,
		Steps: []TrailStep{
			{MinROI: 50, TrailPercent: 12},
			{MinROI: 100, TrailPercent: 15},
		},
	}
}

// TrailingStop ratchets a stop below the price and exits when the previous stop is breached.
// Per cycle:
//   - stop = previous stop, or entry * (1 - base%) for a fresh position
//   - price <= stop: full exit, critical
//   - new stop = max(stop, price * (1 - trail%)), trail% picked from ROI steps
type TrailingStop struct {
	base  float64
	steps []TrailStep
}

// NewTrailingStop creates a trailing stop heuristic.
func NewTrailingStop(cfg TrailingConfig) *TrailingStop {
	steps := append([]TrailStep(nil), cfg.Steps...)
	sort.Slice(steps, func(i, j int) bool { return steps[i].MinROI < steps[j].MinROI })
	return &TrailingStop{base: cfg.BasePercent, steps: steps}
}

// Name returns the heuristic name.
func (t *TrailingStop) Name() string {
	return RuleTrailingStop
}

// Evaluate returns the trailing stop signal.
func (t *TrailingStop) Evaluate(in Input) domain.ExitSignal {
	sig, _ := t.Step(in)
	return sig
}

// TrailPercent returns the trail distance for roi.
func (t *TrailingStop) TrailPercent(roi float64) float64 {
	trail := t.base
	for _, s := range t.steps {
		if roi >= s.MinROI {
			trail = s.TrailPercent
		}
	}
	return trail
}

// Step returns the signal and the ratcheted stop price.
func (t *TrailingStop) Step(in Input) (domain.ExitSignal, float64) {
	p := in.Position
	stop := p.TrailingStop
	if stop <= 0 {
		stop = p.EntryPrice * (1 - t.base/100)
	}

	if p.CurrentPrice <= 0 {
		return domain.Hold("no price"), stop
	}

	if p.CurrentPrice <= stop {
		return domain.ExitSignal{
			Action:     domain.ActionFullExit,
			Percentage: 100,
			Urgency:    domain.UrgencyCritical,
			Reason:     fmt.Sprintf("trailing stop breached: price %.8g <= stop %.8g", p.CurrentPrice, stop),
			Rule:       RuleTrailingStop,
		}, stop
	}

	trail := t.TrailPercent(p.ROIPercent)
	next := math.Max(stop, p.CurrentPrice*(1-trail/100))
	return domain.Hold(fmt.Sprintf("trail %.0f%%", trail)), next
}
