package exit

import (
	"fmt"
	"math"
	"time"

	"solana-alpha-engine/internal/domain"
)

// RuleVolatility is the rule name of the volatility heuristic.
const RuleVolatility = "volatility"

// VolatilityConfig configures the volatility heuristic.
type VolatilityConfig struct {
	Window           int           `mapstructure:"window"`            // last K samples considered
	MinSamples       int           `mapstructure:"min_samples"`       // fewer samples hold
	ThresholdPercent float64       `mapstructure:"threshold_percent"` // stddev as percent of mean
	ExitPercent      float64       `mapstructure:"exit_percent"`
	Cooldown         time.Duration `mapstructure:"cooldown"`
}

// DefaultVolatilityConfig returns the default volatility parameters.
func DefaultVolatilityConfig() VolatilityConfig {
	return VolatilityConfig{
		Window:           10,
		MinSamples:       5,
		ThresholdPercent: 15,
		ExitPercent:      40,
		Cooldown:         30 * time.Minute,
	}
}

// Volatility takes partial profit when recent prices swing widely.
type Volatility struct {
	cfg VolatilityConfig
}

// NewVolatility creates a volatility heuristic.
func NewVolatility(cfg VolatilityConfig) *Volatility {
	if cfg.Window <= 0 {
		cfg.Window = 10
	}
	if cfg.MinSamples < 2 {
		cfg.MinSamples = 2
	}
	return &Volatility{cfg: cfg}
}

// Name returns the heuristic name.
func (v *Volatility) Name() string {
	return RuleVolatility
}

// Evaluate returns partial_exit/high when the stddev of the window exceeds the threshold.
func (v *Volatility) Evaluate(in Input) domain.ExitSignal {
	samples := in.Position.Samples
	if len(samples) > v.cfg.Window {
		samples = samples[len(samples)-v.cfg.Window:]
	}
	if len(samples) < v.cfg.MinSamples {
		return domain.Hold("not enough samples")
	}

	vol := StdDevPercent(samples)
	if vol <= v.cfg.ThresholdPercent {
		return domain.Hold(fmt.Sprintf("volatility %.1f%%", vol))
	}
	if !cooledDown(in.Position, RuleVolatility, v.cfg.Cooldown, in.Now) {
		return domain.Hold("volatility exit cooling down")
	}

	return domain.ExitSignal{
		Action:     domain.ActionPartialExit,
		Percentage: v.cfg.ExitPercent,
		Urgency:    domain.UrgencyHigh,
		Reason:     fmt.Sprintf("volatility %.1f%% above %.1f%%", vol, v.cfg.ThresholdPercent),
		Rule:       RuleVolatility,
	}
}

// StdDevPercent returns the population standard deviation of samples as a percent of their mean.
func StdDevPercent(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s
	}
	mean := sum / float64(len(samples))
	if mean <= 0 {
		return 0
	}

	var variance float64
	for _, s := range samples {
		d := s - mean
		variance += d * d
	}
	variance /= float64(len(samples))
	return math.Sqrt(variance) / mean * 100
}
