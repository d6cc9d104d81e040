package exit

import (
	"fmt"
	"sort"

	"solana-alpha-engine/internal/domain"
)

// Risk rule names. Profit levels use RuleSecureProfit plus the level ROI.
const (
	RuleStopLoss     = "stop_loss"
	RuleSecureProfit = "secure_profit"
)

// ProfitLevel sells Percent of the position once ROI reaches MinROI × tier risk multiplier.
type ProfitLevel struct {
	MinROI  float64        `mapstructure:"min_roi"`
	Percent float64        `mapstructure:"percent"`
	Urgency domain.Urgency `mapstructure:"urgency"`
}

// RiskConfig configures the risk-management heuristic.
type RiskConfig struct {
	StopLossROI  float64       `mapstructure:"stop_loss_roi"` // percent, full exit at or below
	ProfitLevels []ProfitLevel `mapstructure:"profit_levels"`
}

// DefaultRiskConfig returns -20% stop loss, 25% taken at +100%, 50% at +300%.
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		StopLossROI: -20,
		ProfitLevels: []ProfitLevel{
			{MinROI: 100, Percent: 25, Urgency: domain.UrgencyMedium},
			{MinROI: 300, Percent: 50, Urgency: domain.UrgencyHigh},
		},
	}
}

// Risk enforces the hard stop loss and secures profit at high ROI.
// Profit levels fire once each; a level is skipped once a higher one has fired.
type Risk struct {
	stopLoss float64
	levels   []ProfitLevel // descending MinROI
}

// NewRisk creates a risk-management heuristic.
func NewRisk(cfg RiskConfig) *Risk {
	levels := append([]ProfitLevel(nil), cfg.ProfitLevels...)
	sort.Slice(levels, func(i, j int) bool { return levels[i].MinROI > levels[j].MinROI })
	return &Risk{stopLoss: cfg.StopLossROI, levels: levels}
}

// Name returns the heuristic name.
func (r *Risk) Name() string {
	return "risk"
}

// ProfitRule returns the rule name of a profit level.
func ProfitRule(minROI float64) string {
	return fmt.Sprintf("%s_%g", RuleSecureProfit, minROI)
}

// Evaluate returns the risk-management signal for the position.
func (r *Risk) Evaluate(in Input) domain.ExitSignal {
	p := in.Position

	if p.ROIPercent <= r.stopLoss {
		return domain.ExitSignal{
			Action:     domain.ActionFullExit,
			Percentage: 100,
			Urgency:    domain.UrgencyCritical,
			Reason:     fmt.Sprintf("stop loss: ROI %.1f%% <= %.1f%%", p.ROIPercent, r.stopLoss),
			Rule:       RuleStopLoss,
		}
	}

	mult := in.Tier.RiskMultiplier
	if mult <= 0 {
		mult = 1
	}

	for _, lvl := range r.levels {
		rule := ProfitRule(lvl.MinROI)
		if _, fired := p.FiredAt(rule); fired {
			// a higher level already secured profit
			break
		}
		threshold := lvl.MinROI * mult
		if p.ROIPercent < threshold {
			continue
		}
		return domain.ExitSignal{
			Action:     domain.ActionPartialExit,
			Percentage: lvl.Percent,
			Urgency:    lvl.Urgency,
			Reason:     fmt.Sprintf("secure profit: ROI %.1f%% >= %.1f%%", p.ROIPercent, threshold),
			Rule:       rule,
		}
	}

	return domain.Hold("within risk limits")
}
