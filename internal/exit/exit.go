// Package exit evaluates exit heuristics for open positions and combines them into one action.
package exit

import (
	"time"

	"solana-alpha-engine/internal/domain"
)

// Input is what a heuristic sees for one position in one cycle.
type Input struct {
	Position *domain.Position
	Tier     domain.StrategyTier
	Now      time.Time
}

// Heuristic evaluates one exit rule. Implementations must be pure.
type Heuristic interface {
	// Name identifies the heuristic in logs and signal rules.
	Name() string

	// Evaluate returns the heuristic's signal, or a hold.
	Evaluate(in Input) domain.ExitSignal
}

// Config holds the parameters of every heuristic.
type Config struct {
	Trailing   TrailingConfig   `mapstructure:"trailing"`
	Volatility VolatilityConfig `mapstructure:"volatility"`
	Time       TimeConfig       `mapstructure:"time"`
	Momentum   MomentumConfig   `mapstructure:"momentum"`
	Risk       RiskConfig       `mapstructure:"risk"`
}

// DefaultConfig returns the default heuristic parameters.
func DefaultConfig() Config {
	return Config{
		Trailing:   DefaultTrailingConfig(),
		Volatility: DefaultVolatilityConfig(),
		Time:       DefaultTimeConfig(),
		Momentum:   DefaultMomentumConfig(),
		Risk:       DefaultRiskConfig(),
	}
}

// Evaluation is the outcome of evaluating one position.
type Evaluation struct {
	Signal       domain.ExitSignal   // combined action
	Signals      []domain.ExitSignal // every heuristic's output, in evaluation order
	TrailingStop float64             // ratcheted stop to store on the position
	Fired        []string            // rules the combined signal was built from, recorded when the sell is submitted
}

// Engine runs the heuristics in a fixed order: risk, trailing stop, volatility, time, momentum.
// Order only matters for the documented first-critical and same-urgency tie-breaks.
type Engine struct {
	heuristics []Heuristic
	now        func() time.Time
}

// NewEngine creates an exit engine. A nil now uses time.Now.
func NewEngine(cfg Config, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{
		heuristics: []Heuristic{
			NewRisk(cfg.Risk),
			NewTrailingStop(cfg.Trailing),
			NewVolatility(cfg.Volatility),
			NewTimeBased(cfg.Time),
			NewMomentum(cfg.Momentum),
		},
		now: now,
	}
}

// Evaluate evaluates a position at the engine clock.
func (e *Engine) Evaluate(pos *domain.Position, tier domain.StrategyTier) Evaluation {
	return e.EvaluateAt(pos, tier, e.now())
}

// EvaluateAt evaluates a position at now. Stale positions always hold and keep their stop.
func (e *Engine) EvaluateAt(pos *domain.Position, tier domain.StrategyTier, now time.Time) Evaluation {
	if pos == nil {
		return Evaluation{Signal: domain.Hold("no position")}
	}
	if pos.Stale {
		return Evaluation{Signal: domain.Hold("stale price"), TrailingStop: pos.TrailingStop}
	}

	in := Input{Position: pos, Tier: tier, Now: now}
	eval := Evaluation{
		Signals:      make([]domain.ExitSignal, 0, len(e.heuristics)),
		TrailingStop: pos.TrailingStop,
	}

	for _, h := range e.heuristics {
		var sig domain.ExitSignal
		if ts, ok := h.(*TrailingStop); ok {
			sig, eval.TrailingStop = ts.Step(in)
		} else {
			sig = h.Evaluate(in)
		}
		eval.Signals = append(eval.Signals, sig)
	}

	var used []domain.ExitSignal
	eval.Signal, used = combine(eval.Signals)
	for _, s := range used {
		if s.Rule != "" {
			eval.Fired = append(eval.Fired, s.Rule)
		}
	}
	return eval
}

// cooledDown reports whether rule may fire again at now.
// A zero cooldown makes the rule one-shot per position.
func cooledDown(pos *domain.Position, rule string, cooldown time.Duration, now time.Time) bool {
	at, ok := pos.FiredAt(rule)
	if !ok {
		return true
	}
	if cooldown <= 0 {
		return false
	}
	return now.Sub(at) >= cooldown
}
