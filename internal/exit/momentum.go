package exit

import (
	"fmt"
	"time"

	"solana-alpha-engine/internal/domain"
)

// RuleMomentum is the rule name of the momentum reversal heuristic.
const RuleMomentum = "momentum_reversal"

// MomentumConfig configures the momentum reversal heuristic.
type MomentumConfig struct {
	SevereChange       float64       `mapstructure:"severe_change"`        // 24h change percent, full exit at or below
	ModerateChange     float64       `mapstructure:"moderate_change"`      // 24h change percent, partial exit at or below
	ModeratePercent    float64       `mapstructure:"moderate_percent"`
	ConfirmVolumeRatio float64       `mapstructure:"confirm_volume_ratio"` // 24h volume / market cap that confirms a reversal
	Cooldown           time.Duration `mapstructure:"cooldown"`
}

// DefaultMomentumConfig returns the default momentum parameters.
func DefaultMomentumConfig() MomentumConfig {
	return MomentumConfig{
		SevereChange:       -30,
		ModerateChange:     -15,
		ModeratePercent:    50,
		ConfirmVolumeRatio: 0.5,
		Cooldown:           30 * time.Minute,
	}
}

// Momentum exits when the external 24h change turns sharply negative.
type Momentum struct {
	cfg MomentumConfig
}

// NewMomentum creates a momentum reversal heuristic.
func NewMomentum(cfg MomentumConfig) *Momentum {
	return &Momentum{cfg: cfg}
}

// Name returns the heuristic name.
func (m *Momentum) Name() string {
	return RuleMomentum
}

// Evaluate returns full_exit/high on a severe reversal, partial_exit/medium on a moderate one.
// A moderate reversal is upgraded to high when heavy volume confirms it.
func (m *Momentum) Evaluate(in Input) domain.ExitSignal {
	p := in.Position
	change := p.PriceChange24h

	if change <= m.cfg.SevereChange {
		return domain.ExitSignal{
			Action:     domain.ActionFullExit,
			Percentage: 100,
			Urgency:    domain.UrgencyHigh,
			Reason:     fmt.Sprintf("severe momentum reversal %.1f%%", change),
			Rule:       RuleMomentum,
		}
	}

	if change > m.cfg.ModerateChange {
		return domain.Hold(fmt.Sprintf("momentum %.1f%%", change))
	}
	if !cooledDown(p, RuleMomentum, m.cfg.Cooldown, in.Now) {
		return domain.Hold("momentum exit cooling down")
	}

	urgency := domain.UrgencyMedium
	reason := fmt.Sprintf("momentum reversal %.1f%%", change)
	if m.confirmed(p) {
		urgency = domain.UrgencyHigh
		reason += fmt.Sprintf(", confirmed by volume/mcap %.2f", p.Volume24h/p.MarketCap)
	}

	return domain.ExitSignal{
		Action:     domain.ActionPartialExit,
		Percentage: m.cfg.ModeratePercent,
		Urgency:    urgency,
		Reason:     reason,
		Rule:       RuleMomentum,
	}
}

func (m *Momentum) confirmed(p *domain.Position) bool {
	if m.cfg.ConfirmVolumeRatio <= 0 || p.MarketCap <= 0 {
		return false
	}
	return p.Volume24h/p.MarketCap >= m.cfg.ConfirmVolumeRatio
}
