package domain

import "time"

// PositionStatus is the lifecycle state of a position.
// Transitions only move forward: active -> exiting -> closed.
type PositionStatus string

const (
	PositionActive  PositionStatus = "active"
	PositionExiting PositionStatus = "exiting"
	PositionClosed  PositionStatus = "closed"
)

// String returns the string representation of PositionStatus.
func (s PositionStatus) String() string {
	return string(s)
}

// IsValid checks if the status is a known value.
func (s PositionStatus) IsValid() bool {
	return s == PositionActive || s == PositionExiting || s == PositionClosed
}

// rank orders statuses for forward-only transition checks.
func (s PositionStatus) rank() int {
	switch s {
	case PositionActive:
		return 0
	case PositionExiting:
		return 1
	case PositionClosed:
		return 2
	default:
		return -1
	}
}

// CanTransitionTo reports whether moving from s to next keeps the lifecycle forward-only.
// Staying in the same status is allowed.
func (s PositionStatus) CanTransitionTo(next PositionStatus) bool {
	if !s.IsValid() || !next.IsValid() {
		return false
	}
	return next.rank() >= s.rank()
}

// Position is an open, capital-backing stake in one token.
type Position struct {
	ID            string         `json:"id"`
	Symbol        string         `json:"symbol"`
	AssetID       string         `json:"asset_id"`
	EntryPrice    float64        `json:"entry_price"`
	CurrentPrice  float64        `json:"current_price"`
	Quantity      float64        `json:"quantity"`
	EntryTime     time.Time      `json:"entry_time"`
	EntryValue    float64        `json:"entry_value"`   // capital committed, reduced pro-rata on partial exits
	CurrentValue  float64        `json:"current_value"` // current_price * quantity
	UnrealizedPnL float64        `json:"unrealized_pnl"`
	ROIPercent    float64        `json:"roi_percent"`
	PeakPrice     float64        `json:"peak_price"`
	TrailingStop  float64        `json:"trailing_stop"` // never decreases while active
	Status        PositionStatus `json:"status"`

	Stale       bool      `json:"stale"` // last price refresh failed
	LastUpdated time.Time `json:"last_updated"`
	RealizedPnL float64   `json:"realized_pnl"` // accumulated from partial exits

	// Market context for exit heuristics, refreshed by the monitor.
	Samples        []float64 `json:"-"` // most recent prices, oldest first
	PriceChange24h float64   `json:"price_change_24h"`
	Volume24h      float64   `json:"volume_24h"`
	MarketCap      float64   `json:"market_cap"`

	// Fired records when each exit rule last triggered a sell.
	Fired map[string]time.Time `json:"fired,omitempty"`
}

// TimeHeld returns how long the position has been open at now.
func (p *Position) TimeHeld(now time.Time) time.Duration {
	if p.EntryTime.IsZero() {
		return 0
	}
	return now.Sub(p.EntryTime)
}

// Revalue recomputes value, PnL and ROI from price and quantity.
func (p *Position) Revalue(price float64) {
	p.CurrentPrice = price
	p.CurrentValue = price * p.Quantity
	p.UnrealizedPnL = p.CurrentValue - p.EntryValue
	if p.EntryValue > 0 {
		p.ROIPercent = p.UnrealizedPnL / p.EntryValue * 100
	} else {
		p.ROIPercent = 0
	}
	if price > p.PeakPrice {
		p.PeakPrice = price
	}
}

// FiredAt returns when rule last fired, and whether it ever did.
func (p *Position) FiredAt(rule string) (time.Time, bool) {
	t, ok := p.Fired[rule]
	return t, ok
}

// Clone returns a deep copy safe to hand to readers.
func (p *Position) Clone() *Position {
	c := *p
	if p.Samples != nil {
		c.Samples = append([]float64(nil), p.Samples...)
	}
	if p.Fired != nil {
		c.Fired = make(map[string]time.Time, len(p.Fired))
		for k, v := range p.Fired {
			c.Fired[k] = v
		}
	}
	return &c
}
