package engine

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"solana-alpha-engine/internal/domain"
	"solana-alpha-engine/internal/execution"
	"solana-alpha-engine/internal/monitor"
	"solana-alpha-engine/internal/position"
)

// MonitorReport summarizes one monitor cycle.
type MonitorReport struct {
	monitor.TickResult
	Submitted   []domain.ExecutionRequest // sells handed to the submitter
	Resubmitted int                       // full exits retried for exiting positions
}

// ExitResult is the outcome of one emergency sell.
type ExitResult struct {
	Symbol      string `json:"symbol"`
	ExecutionID string `json:"execution_id,omitempty"`
	Error       string `json:"error,omitempty"`
}

// MonitorOnce refreshes positions, submits sells for exit decisions and
// resubmits full exits for exiting positions without a pending sell.
func (e *Engine) MonitorOnce(ctx context.Context) MonitorReport {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	tick := e.monitor.Tick(ctx)
	report := MonitorReport{TickResult: tick}

	handled := make(map[string]bool, len(tick.Exits))
	for _, d := range tick.Exits {
		handled[d.Position.Symbol] = true
		sig := d.Evaluation.Signal

		percent := 100.0
		if !d.Full() {
			percent = sig.Percentage
		}
		req, err := e.submitSell(ctx, d.Position, percent, sig.Reason)
		if err != nil {
			e.logSellError(d.Position.Symbol, err)
			continue
		}
		if err := e.monitor.MarkSubmitted(d); err != nil && !errors.Is(err, position.ErrNotFound) {
			e.logger.WithError(err).WithField("symbol", d.Position.Symbol).Error("mark exit submitted failed")
		}
		report.Submitted = append(report.Submitted, req)
	}

	for _, p := range tick.Positions {
		if p.Status != domain.PositionExiting || handled[p.Symbol] || e.submitter.InFlight(p.Symbol) {
			continue
		}
		req, err := e.submitSell(ctx, p, 100, "resubmit full exit")
		if err != nil {
			e.logSellError(p.Symbol, err)
			continue
		}
		report.Submitted = append(report.Submitted, req)
		report.Resubmitted++
	}

	return report
}

// ForceExitAll marks every live position exiting and submits full sells.
// A position with a sell already pending keeps it; the monitor loop retries
// the full exit once that sell finishes.
func (e *Engine) ForceExitAll(ctx context.Context) []ExitResult {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	live := e.table.Snapshot()
	results := make([]ExitResult, 0, len(live))
	for _, p := range live {
		res := ExitResult{Symbol: p.Symbol}

		if err := e.table.MarkExiting(p.Symbol); err != nil {
			res.Error = err.Error()
			results = append(results, res)
			continue
		}

		req, err := e.submitSell(ctx, p, 100, "emergency exit")
		if err != nil {
			res.Error = err.Error()
			e.logSellError(p.Symbol, err)
		} else {
			res.ExecutionID = req.ID
		}
		results = append(results, res)
	}

	e.logger.WithField("positions", len(live)).Warn("emergency exit requested")
	e.events.publish(Event{
		Type:    EventEmergencyExit,
		Message: fmt.Sprintf("emergency exit of %d positions", len(live)),
		At:      e.now(),
	})
	return results
}

// submitSell sells percent of the position, capped at the held token balance.
func (e *Engine) submitSell(ctx context.Context, p *domain.Position, percent float64, reason string) (domain.ExecutionRequest, error) {
	qty := p.Quantity
	if percent < 100 {
		qty = p.Quantity * percent / 100
	}

	if e.holdings != nil {
		readCtx, cancel := context.WithTimeout(ctx, e.balanceTimeout)
		held, err := e.holdings.TokenBalance(readCtx, p.AssetID)
		cancel()
		switch {
		case err != nil:
			e.logger.WithError(err).WithField("symbol", p.Symbol).Warn("token balance read failed, selling tracked quantity")
		case held > 0:
			qty = math.Min(qty, held)
		}
	}

	return e.submitter.Submit(ctx, execution.Order{
		Direction:   domain.DirectionSell,
		Symbol:      p.Symbol,
		AssetID:     p.AssetID,
		Amount:      qty,
		PriceHint:   p.CurrentPrice,
		ExitPercent: percent,
		Reason:      reason,
	})
}

func (e *Engine) logSellError(symbol string, err error) {
	log := e.logger.WithField("symbol", symbol).WithError(err)
	if errors.Is(err, execution.ErrInFlight) {
		log.Debug("sell deferred, request in flight")
		return
	}
	log.Error("sell not submitted")
}

// handleOutcome runs on the submitter's request goroutine for every terminal request.
func (e *Engine) handleOutcome(o execution.Outcome) {
	req := o.Request
	if req.Direction == domain.DirectionBuy {
		e.releaseBuy(req.ID)
	}
	at := req.CompletedAt
	if at.IsZero() {
		at = e.now()
	}

	if req.Status == domain.ExecutionFailed {
		e.events.publish(Event{Type: EventExecutionFailed, Symbol: req.Symbol, Execution: &req, Message: req.Error, At: at})
		return
	}

	e.events.publish(Event{Type: EventExecutionConfirmed, Symbol: req.Symbol, Execution: &req, At: at})
	if o.Position == nil {
		return
	}

	ev := Event{Symbol: req.Symbol, Execution: &req, Position: o.Position, At: at}
	switch {
	case req.Direction == domain.DirectionBuy:
		ev.Type = EventPositionOpened
	case o.Closed:
		ev.Type = EventPositionClosed
		ev.RealizedPnL = o.RealizedPnL
	default:
		ev.Type = EventPositionReduced
		ev.RealizedPnL = o.RealizedPnL
	}
	e.logger.WithFields(logrus.Fields{
		"symbol":       req.Symbol,
		"event":        ev.Type,
		"realized_pnl": ev.RealizedPnL,
	}).Info("position changed")
	e.events.publish(ev)
}
