package sizing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"solana-alpha-engine/internal/domain"
)

func moderateTier() domain.StrategyTier {
	return domain.StrategyTier{
		Name:               domain.TierModerate,
		MinBalance:         500,
		MaxPositionPercent: 8,
		RiskMultiplier:     1.3,
		MinConfidence:      70,
	}
}

func candidate(confidence float64) domain.Candidate {
	return domain.Candidate{
		TokenQuote: domain.TokenQuote{Symbol: "TEST", AssetID: "mint1", Price: 1},
		Confidence: confidence,
	}
}

func TestPolicy_WorkedExample(t *testing.T) {
	p := NewPolicy(DefaultConfig())

	d := p.Size(Input{Candidate: candidate(92), Tier: moderateTier(), Balance: 1000})

	assert.True(t, d.Approved)
	assert.InDelta(t, 1.84, d.Multiplier, 1e-9)
	assert.InDelta(t, 19.136, d.Percent, 1e-9)
	assert.InDelta(t, 191.36, d.Amount, 1e-6)
}

func TestPolicy_Rejections(t *testing.T) {
	p := NewPolicy(DefaultConfig())

	tests := []struct {
		name string
		in   Input
		want RejectReason
	}{
		{
			name: "below tier confidence",
			in:   Input{Candidate: candidate(60), Tier: moderateTier(), Balance: 1000},
			want: RejectBelowConfidence,
		},
		{
			name: "active position",
			in:   Input{Candidate: candidate(95), Tier: moderateTier(), Balance: 1000, HasActivePosition: true},
			want: RejectActivePosition,
		},
		{
			name: "below minimum tradable amount",
			in:   Input{Candidate: candidate(80), Tier: moderateTier(), Balance: 0.2},
			want: RejectBelowMinimum,
		},
		{
			name: "no balance",
			in:   Input{Candidate: candidate(80), Tier: moderateTier(), Balance: 0},
			want: RejectNoBalance,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := p.Size(tt.in)
			assert.False(t, d.Approved)
			assert.Equal(t, tt.want, d.Reason)
		})
	}
}

func TestPolicy_NeverExceedsCeiling(t *testing.T) {
	p := NewPolicy(DefaultConfig())
	greedy := domain.StrategyTier{Name: "greedy", MaxPositionPercent: 25, RiskMultiplier: 3}

	for conf := 0.0; conf <= 100; conf += 5 {
		d := p.Size(Input{Candidate: candidate(conf), Tier: greedy, Balance: 10000})
		assert.LessOrEqual(t, d.Percent, DefaultAbsoluteCeilingPercent, "confidence %.0f", conf)
		assert.LessOrEqual(t, d.Amount, 10000*DefaultAbsoluteCeilingPercent/100+1e-9)
	}
}

func TestPolicy_ConfidenceMultiplierMonotoneAndBounded(t *testing.T) {
	p := NewPolicy(DefaultConfig())

	prev := 0.0
	for conf := 0.0; conf <= 100; conf++ {
		m := p.ConfidenceMultiplier(conf)
		assert.GreaterOrEqual(t, m, prev)
		assert.LessOrEqual(t, m, DefaultMaxConfidenceMultiplier)
		prev = m
	}
	assert.Equal(t, 2.0, p.ConfidenceMultiplier(100))
}

func TestPolicy_Pure(t *testing.T) {
	p := NewPolicy(DefaultConfig())
	in := Input{Candidate: candidate(88), Tier: moderateTier(), Balance: 750}

	first := p.Size(in)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, p.Size(in))
	}
}

func TestNewPolicy_Defaults(t *testing.T) {
	p := NewPolicy(Config{})
	cfg := p.Config()

	assert.Equal(t, DefaultAbsoluteCeilingPercent, cfg.AbsoluteCeilingPercent)
	assert.Equal(t, DefaultMaxConfidenceMultiplier, cfg.MaxConfidenceMultiplier)
	assert.Equal(t, DefaultConfidencePivot, cfg.ConfidencePivot)
	assert.Equal(t, 0.0, cfg.MinTradeAmount)
}
