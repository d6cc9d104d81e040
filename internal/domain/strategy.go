package domain

// StrategyTier is a risk profile selected by current capital.
type StrategyTier struct {
	Name               string  `mapstructure:"name" json:"name"`
	MinBalance         float64 `mapstructure:"min_balance" json:"min_balance"`                   // tier applies at or above this balance
	MaxPositionPercent float64 `mapstructure:"max_position_percent" json:"max_position_percent"` // base allocation, percent of capital
	RiskMultiplier     float64 `mapstructure:"risk_multiplier" json:"risk_multiplier"`
	TargetDailyRate    float64 `mapstructure:"target_daily_rate" json:"target_daily_rate"` // compounding target, percent per day
	MinConfidence      float64 `mapstructure:"min_confidence" json:"min_confidence"`       // candidates below this are rejected
}

// Tier names
const (
	TierConservative = "Conservative"
	TierModerate     = "Moderate"
	TierAggressive   = "Aggressive"
	TierExponential  = "Exponential"
)

// DefaultTiers returns the default tier table ordered by minimum balance.
func DefaultTiers() []StrategyTier {
	return []StrategyTier{
		{Name: TierConservative, MinBalance: 0, MaxPositionPercent: 5, RiskMultiplier: 1.0, TargetDailyRate: 2, MinConfidence: 75},
		{Name: TierModerate, MinBalance: 500, MaxPositionPercent: 8, RiskMultiplier: 1.3, TargetDailyRate: 3, MinConfidence: 70},
		{Name: TierAggressive, MinBalance: 2000, MaxPositionPercent: 12, RiskMultiplier: 1.6, TargetDailyRate: 5, MinConfidence: 65},
		{Name: TierExponential, MinBalance: 10000, MaxPositionPercent: 15, RiskMultiplier: 2.0, TargetDailyRate: 8, MinConfidence: 60},
	}
}
