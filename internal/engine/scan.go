package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"solana-alpha-engine/internal/domain"
	"solana-alpha-engine/internal/execution"
	"solana-alpha-engine/internal/observability"
	"solana-alpha-engine/internal/sizing"
)

// ScanReport summarizes one scan cycle.
type ScanReport struct {
	Balance    float64
	Tier       string
	Candidates int
	Submitted  []domain.ExecutionRequest
	Rejected   map[sizing.RejectReason]int
	Skipped    string // why no buys were attempted, empty when buying ran
	Degraded   bool
	At         time.Time
}

// Skip reasons
const (
	skipBalance   = "balance unavailable"
	skipFallback  = "fallback candidates"
	skipCapacity  = "max open positions reached"
	skipNoCapital = "no capital"
)

// ScanOnce reads the balance, selects the tier, scans for candidates and
// submits buys for approved allocations in rank order.
func (e *Engine) ScanOnce(ctx context.Context) (report ScanReport) {
	ctx, span := observability.StartSpan(ctx, "engine.Scan")
	defer func() {
		span.SetAttributes(attribute.Bool("degraded", report.Degraded))
		observability.EndSpan(span, nil)
	}()

	report.At = e.now()
	report.Rejected = make(map[sizing.RejectReason]int)

	balance, balanceErr := e.refreshBalance(ctx)
	tier := e.tier()
	report.Balance = balance
	report.Tier = tier.Name

	res := e.scanner.Scan(ctx)
	report.Candidates = len(res.Candidates)
	report.Degraded = res.Degraded() || balanceErr != nil

	// Held assets keep their momentum even after they drop under the floor.
	e.monitor.IngestMarket(res.Market)

	e.mu.Lock()
	e.lastScan = res
	e.lastScanned = true
	e.mu.Unlock()

	switch {
	case balanceErr != nil:
		report.Skipped = skipBalance
	case res.FromFallback && !e.tradeOnFallback:
		report.Skipped = skipFallback
	}
	if report.Skipped != "" {
		e.logger.WithFields(logrus.Fields{
			"candidates": len(res.Candidates),
			"reason":     report.Skipped,
		}).Warn("scan completed without buying")
		return report
	}

	available := balance - e.committed()
	open := e.table.Len() + e.pendingCount()
	for _, c := range res.Candidates {
		if open >= e.maxOpenPositions {
			report.Skipped = skipCapacity
			break
		}
		if available <= 0 {
			report.Skipped = skipNoCapital
			break
		}

		d := e.policy.Size(sizing.Input{
			Candidate:         c,
			Tier:              tier,
			Balance:           available,
			HasActivePosition: e.table.Has(c.Symbol) || e.submitter.InFlight(c.Symbol),
		})
		if !d.Approved {
			report.Rejected[d.Reason]++
			observability.RecordSizingDecision(string(d.Reason))
			continue
		}
		observability.RecordSizingDecision("approved")

		req, err := e.submitter.Submit(ctx, execution.Order{
			Direction: domain.DirectionBuy,
			Symbol:    c.Symbol,
			AssetID:   c.AssetID,
			Amount:    d.Amount,
			PriceHint: c.Price,
			Reason:    fmt.Sprintf("confidence %.1f, %.2f%% of capital", c.Confidence, d.Percent),
		})
		if err != nil {
			level := logrus.WarnLevel
			if errors.Is(err, execution.ErrInFlight) {
				level = logrus.DebugLevel
			}
			e.logger.WithFields(logrus.Fields{
				"symbol": c.Symbol,
				"amount": d.Amount,
			}).WithError(err).Log(level, "buy not submitted")
			continue
		}

		e.trackBuy(req)
		report.Submitted = append(report.Submitted, req)
		available -= d.Amount
		open++
	}

	e.logger.WithFields(logrus.Fields{
		"balance":    balance,
		"tier":       tier.Name,
		"candidates": len(res.Candidates),
		"submitted":  len(report.Submitted),
		"degraded":   report.Degraded,
	}).Info("scan completed")
	return report
}

// refreshBalance reads the ledger balance and reselects the tier.
// On failure the previous balance and tier are kept.
func (e *Engine) refreshBalance(ctx context.Context) (float64, error) {
	readCtx, cancel := context.WithTimeout(ctx, e.balanceTimeout)
	defer cancel()

	balance, err := e.ledger.GetBalance(readCtx)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.balanceErr = err
		e.logger.WithError(err).Warn("balance read failed")
		return e.balance, err
	}

	prev := e.activeTier.Name
	e.balance = balance
	e.balanceErr = nil
	e.activeTier = e.tiers.ActiveTier(balance)
	observability.UpdateBalance(balance)
	if prev != e.activeTier.Name {
		e.logger.WithFields(logrus.Fields{
			"balance": balance,
			"from":    prev,
			"to":      e.activeTier.Name,
		}).Info("strategy tier changed")
	}
	return balance, nil
}

func (e *Engine) trackBuy(req domain.ExecutionRequest) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pendingBuys[req.ID] = req.Amount

	// The request may have completed before it was tracked.
	if cur, ok := e.submitter.Get(req.ID); !ok || cur.Status.IsTerminal() {
		delete(e.pendingBuys, req.ID)
	}
}

func (e *Engine) releaseBuy(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.pendingBuys, id)
}

// committed returns capital held by buys that are still pending.
func (e *Engine) committed() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var total float64
	for _, amount := range e.pendingBuys {
		total += amount
	}
	return total
}

func (e *Engine) pendingCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.pendingBuys)
}
