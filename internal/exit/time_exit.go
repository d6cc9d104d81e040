package exit

import (
	"fmt"
	"time"

	"solana-alpha-engine/internal/domain"
)

// Time-based rule names.
const (
	RuleFastGain = "fast_gain"
	RuleDeRisk   = "de_risk"
	RuleMaxHold  = "max_hold"
)

// TimeConfig configures the time-based heuristic.
type TimeConfig struct {
	FastGainROI     float64       `mapstructure:"fast_gain_roi"`    // percent
	FastGainWindow  time.Duration `mapstructure:"fast_gain_window"` // gain must arrive within this hold time
	FastGainPercent float64       `mapstructure:"fast_gain_percent"`

	DeRiskAfter   time.Duration `mapstructure:"de_risk_after"`
	DeRiskMaxROI  float64       `mapstructure:"de_risk_max_roi"` // percent, modest gain below this
	DeRiskPercent float64       `mapstructure:"de_risk_percent"`

	MaxHold time.Duration `mapstructure:"max_hold"`
}

// DefaultTimeConfig returns the default time-based parameters.
func DefaultTimeConfig() TimeConfig {
	return TimeConfig{
		FastGainROI:     50,
		FastGainWindow:  time.Hour,
		FastGainPercent: 30,
		DeRiskAfter:     24 * time.Hour,
		DeRiskMaxROI:    10,
		DeRiskPercent:   50,
		MaxHold:         72 * time.Hour,
	}
}

// TimeBased exits on hold duration:
//   - held past MaxHold: full exit, medium
//   - ROI >= FastGainROI within FastGainWindow: partial, medium, once
//   - held past DeRiskAfter with ROI < DeRiskMaxROI: partial, low, once
type TimeBased struct {
	cfg TimeConfig
}

// NewTimeBased creates a time-based heuristic.
func NewTimeBased(cfg TimeConfig) *TimeBased {
	return &TimeBased{cfg: cfg}
}

// Name returns the heuristic name.
func (h *TimeBased) Name() string {
	return "time"
}

// Evaluate returns the time-based signal.
func (h *TimeBased) Evaluate(in Input) domain.ExitSignal {
	p := in.Position
	held := p.TimeHeld(in.Now)

	if h.cfg.MaxHold > 0 && held >= h.cfg.MaxHold {
		return domain.ExitSignal{
			Action:     domain.ActionFullExit,
			Percentage: 100,
			Urgency:    domain.UrgencyMedium,
			Reason:     fmt.Sprintf("max hold %s reached", h.cfg.MaxHold),
			Rule:       RuleMaxHold,
		}
	}

	if h.cfg.FastGainWindow > 0 && held <= h.cfg.FastGainWindow && p.ROIPercent >= h.cfg.FastGainROI &&
		cooledDown(p, RuleFastGain, 0, in.Now) {
		return domain.ExitSignal{
			Action:     domain.ActionPartialExit,
			Percentage: h.cfg.FastGainPercent,
			Urgency:    domain.UrgencyMedium,
			Reason:     fmt.Sprintf("fast gain %.1f%% within %s", p.ROIPercent, held.Truncate(time.Second)),
			Rule:       RuleFastGain,
		}
	}

	if h.cfg.DeRiskAfter > 0 && held >= h.cfg.DeRiskAfter && p.ROIPercent < h.cfg.DeRiskMaxROI &&
		cooledDown(p, RuleDeRisk, 0, in.Now) {
		return domain.ExitSignal{
			Action:     domain.ActionPartialExit,
			Percentage: h.cfg.DeRiskPercent,
			Urgency:    domain.UrgencyLow,
			Reason:     fmt.Sprintf("held %s with ROI %.1f%%", held.Truncate(time.Minute), p.ROIPercent),
			Rule:       RuleDeRisk,
		}
	}

	return domain.Hold("within hold window")
}
