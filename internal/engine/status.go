package engine

import (
	"time"

	"solana-alpha-engine/internal/domain"
)

// Health is the coarse engine state reported to operators.
type Health string

const (
	HealthHealthy  Health = "healthy"
	HealthDegraded Health = "degraded"
	HealthStopped  Health = "stopped"
)

// Status is a point-in-time view of the engine.
type Status struct {
	Running        bool                  `json:"running"`
	Health         Health                `json:"health"`
	StartedAt      time.Time             `json:"started_at,omitempty"`
	OpenPositions  int                   `json:"open_positions"`
	StalePositions int                   `json:"stale_positions"`
	UnrealizedPnL  float64               `json:"unrealized_pnl"`
	Balance        float64               `json:"balance"`
	BalanceError   string                `json:"balance_error,omitempty"`
	Committed      float64               `json:"committed"` // capital held by pending buys
	Tier           domain.StrategyTier   `json:"tier"`
	LastScan       time.Time             `json:"last_scan,omitempty"`
	FromFallback   bool                  `json:"from_fallback"`
	Sources        []domain.SourceHealth `json:"sources"`
}

// Status returns the current engine status.
// A running engine is degraded when the last scan saw a failed source or used
// fallback data, the last balance read failed, or a position price is stale.
func (e *Engine) Status() Status {
	e.runMu.Lock()
	running, startedAt := e.running, e.startedAt
	e.runMu.Unlock()

	open, stale, unrealized := e.table.Totals()
	st := Status{
		Running:        running,
		OpenPositions:  open,
		StalePositions: stale,
		UnrealizedPnL:  unrealized,
		Committed:      e.committed(),
	}
	if running {
		st.StartedAt = startedAt
	}

	e.mu.RLock()
	st.Balance = e.balance
	if e.balanceErr != nil {
		st.BalanceError = e.balanceErr.Error()
	}
	st.Tier = e.activeTier
	degraded := e.balanceErr != nil || stale > 0
	if e.lastScanned {
		st.LastScan = e.lastScan.ScannedAt
		st.FromFallback = e.lastScan.FromFallback
		st.Sources = append([]domain.SourceHealth(nil), e.lastScan.Sources...)
		degraded = degraded || e.lastScan.Degraded()
	}
	e.mu.RUnlock()

	switch {
	case !running:
		st.Health = HealthStopped
	case degraded:
		st.Health = HealthDegraded
	default:
		st.Health = HealthHealthy
	}
	return st
}

// Positions returns copies of every active and exiting position.
func (e *Engine) Positions() []*domain.Position {
	return e.table.Snapshot()
}

// Executions returns up to limit recent execution requests, newest first.
func (e *Engine) Executions(limit int) []domain.ExecutionRequest {
	return e.submitter.Recent(limit)
}
