// Package monitor refreshes live positions and decides their exits.
package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"solana-alpha-engine/internal/domain"
	"solana-alpha-engine/internal/exit"
	"solana-alpha-engine/internal/observability"
	"solana-alpha-engine/internal/position"
)

// Defaults.
const (
	DefaultSampleWindow = 20
	DefaultConcurrency  = 4
	DefaultMarketMaxAge = 10 * time.Minute
)

// PriceFeed returns the first successful price for an asset and the source that answered.
type PriceFeed interface {
	Price(ctx context.Context, assetID string) (float64, string, error)
}

// Options configures a Monitor.
type Options struct {
	Table *position.Table
	Feed  PriceFeed
	Exit  *exit.Engine

	// Tier returns the tier used for exit aggressiveness.
	Tier func() domain.StrategyTier

	// Archiver receives every refreshed price. Nil disables archiving.
	Archiver *Archiver

	SampleWindow int // prices kept per position, default DefaultSampleWindow
	Concurrency  int // parallel price fetches, default DefaultConcurrency

	// MarketMaxAge bounds how long an ingested snapshot drives momentum,
	// default DefaultMarketMaxAge.
	MarketMaxAge time.Duration

	Logger logrus.FieldLogger
	Now    func() time.Time
}

// Decision is a non-hold exit for one active position.
type Decision struct {
	Position   *domain.Position
	Evaluation exit.Evaluation
}

// Full reports whether the decision closes the whole position.
func (d Decision) Full() bool {
	return d.Evaluation.Signal.Action == domain.ActionFullExit
}

// TickResult is the outcome of one monitor cycle.
type TickResult struct {
	Refreshed int                // positions with a fresh price
	Stale     []string           // symbols whose price fetch failed
	Positions []*domain.Position // snapshot after the refresh
	Exits     []Decision         // non-hold exits, in snapshot order
	At        time.Time
}

// Monitor refreshes prices of live positions and evaluates exits.
// Tick is not safe for concurrent use; the engine serializes it.
type Monitor struct {
	table       *position.Table
	feed        PriceFeed
	exit        *exit.Engine
	tier        func() domain.StrategyTier
	archiver    *Archiver
	window      int
	concurrency int
	logger      logrus.FieldLogger
	now         func() time.Time

	mu           sync.Mutex
	market       map[string]marketEntry // latest scan snapshot by asset id
	marketMaxAge time.Duration
}

type marketEntry struct {
	quote domain.TokenQuote
	at    time.Time
}

// New creates a Monitor.
func New(opts Options) *Monitor {
	window := opts.SampleWindow
	if window <= 0 {
		window = DefaultSampleWindow
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	ex := opts.Exit
	if ex == nil {
		ex = exit.NewEngine(exit.DefaultConfig(), now)
	}
	marketMaxAge := opts.MarketMaxAge
	if marketMaxAge <= 0 {
		marketMaxAge = DefaultMarketMaxAge
	}
	tier := opts.Tier
	if tier == nil {
		tier = func() domain.StrategyTier { return domain.DefaultTiers()[0] }
	}

	return &Monitor{
		table:        opts.Table,
		feed:         opts.Feed,
		exit:         ex,
		tier:         tier,
		archiver:     opts.Archiver,
		window:       window,
		concurrency:  concurrency,
		logger:       logger.WithField("component", "monitor"),
		now:          now,
		market:       make(map[string]marketEntry),
		marketMaxAge: marketMaxAge,
	}
}

// IngestMarket stores the latest market snapshot. Held assets pick it up on the next tick.
// Entries older than MarketMaxAge are dropped.
func (m *Monitor) IngestMarket(quotes []domain.TokenQuote) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, q := range quotes {
		if q.AssetID == "" {
			continue
		}
		m.market[q.AssetID] = marketEntry{quote: q, at: now}
	}
	for id, e := range m.market {
		if now.Sub(e.at) > m.marketMaxAge {
			delete(m.market, id)
		}
	}
}

func (m *Monitor) marketFor(assetID string, now time.Time) (domain.TokenQuote, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.market[assetID]
	if !ok {
		return domain.TokenQuote{}, false
	}
	if now.Sub(e.at) > m.marketMaxAge {
		delete(m.market, assetID)
		return domain.TokenQuote{}, false
	}
	return e.quote, true
}

type fetchResult struct {
	price  float64
	source string
	err    error
}

// Tick refreshes every active or exiting position, then evaluates exits for
// active positions with a fresh price.
func (m *Monitor) Tick(ctx context.Context) TickResult {
	ctx, span := observability.StartSpan(ctx, "monitor.Tick")
	defer span.End()

	now := m.now()
	live := m.table.Snapshot()
	results := m.fetch(ctx, live)

	result := TickResult{At: now}
	for i, p := range live {
		fr := results[i]
		err := m.table.Update(p.Symbol, func(next *domain.Position) error {
			m.refresh(next, fr, now)
			return nil
		})
		if err != nil {
			if !errors.Is(err, position.ErrNotFound) {
				m.logger.WithError(err).WithField("symbol", p.Symbol).Error("refresh position failed")
			}
			continue
		}

		if fr.err != nil {
			result.Stale = append(result.Stale, p.Symbol)
			m.logger.WithFields(logrus.Fields{
				"symbol": p.Symbol,
				"error":  fr.err,
			}).Warn("price refresh failed, position marked stale")
			continue
		}

		result.Refreshed++
		if m.archiver != nil {
			m.archiver.Enqueue(domain.PriceSample{
				AssetID:     p.AssetID,
				Symbol:      p.Symbol,
				TimestampMs: now.UnixMilli(),
				Price:       fr.price,
				Source:      fr.source,
			})
		}
	}

	result.Exits = m.evaluate(now)
	result.Positions = m.table.Snapshot()

	open, stale, unrealized := m.table.Totals()
	observability.UpdatePositions(open, stale, unrealized)

	return result
}

// fetch gets prices for positions with bounded concurrency. Results align with positions.
func (m *Monitor) fetch(ctx context.Context, positions []*domain.Position) []fetchResult {
	results := make([]fetchResult, len(positions))
	sem := make(chan struct{}, m.concurrency)

	var wg sync.WaitGroup
	for i, p := range positions {
		wg.Add(1)
		go func(i int, assetID string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			price, source, err := m.feed.Price(ctx, assetID)
			results[i] = fetchResult{price: price, source: source, err: err}
		}(i, p.AssetID)
	}
	wg.Wait()

	return results
}

// refresh applies one fetch result and the latest market snapshot to a position copy.
func (m *Monitor) refresh(p *domain.Position, fr fetchResult, now time.Time) {
	if q, ok := m.marketFor(p.AssetID, now); ok {
		p.PriceChange24h = q.PriceChange24h
		p.Volume24h = q.Volume24h
		p.MarketCap = q.MarketCap
	} else {
		// No fresh snapshot: old momentum must not trigger exits.
		p.PriceChange24h = 0
		p.Volume24h = 0
	}

	if fr.err != nil {
		p.Stale = true
		return
	}

	p.Revalue(fr.price)
	p.Stale = false
	p.LastUpdated = now
	p.Samples = append(p.Samples, fr.price)
	if len(p.Samples) > m.window {
		p.Samples = append([]float64(nil), p.Samples[len(p.Samples)-m.window:]...)
	}
}

// evaluate runs the exit engine over active positions, ratchets their trailing
// stops and returns the non-hold decisions.
func (m *Monitor) evaluate(now time.Time) []Decision {
	tier := m.tier()

	var exits []Decision
	for _, p := range m.table.Snapshot() {
		if p.Status != domain.PositionActive {
			continue
		}

		eval := m.exit.EvaluateAt(p, tier, now)
		if eval.TrailingStop > p.TrailingStop {
			err := m.table.Update(p.Symbol, func(next *domain.Position) error {
				if eval.TrailingStop > next.TrailingStop {
					next.TrailingStop = eval.TrailingStop
				}
				return nil
			})
			if err != nil {
				continue
			}
			p.TrailingStop = eval.TrailingStop
		}

		if eval.Signal.IsHold() {
			continue
		}

		observability.RecordExitSignal(eval.Signal.Action.String(), eval.Signal.Urgency.String())
		m.logger.WithFields(logrus.Fields{
			"symbol":  p.Symbol,
			"action":  eval.Signal.Action,
			"percent": eval.Signal.Percentage,
			"urgency": eval.Signal.Urgency,
			"reason":  eval.Signal.Reason,
		}).Info("exit signal")

		exits = append(exits, Decision{Position: p, Evaluation: eval})
	}
	return exits
}

// MarkSubmitted records that a sell for d was handed to the submitter: the
// contributing rules start their cooldown and a full exit moves the position to exiting.
func (m *Monitor) MarkSubmitted(d Decision) error {
	at := m.now()
	return m.table.Update(d.Position.Symbol, func(p *domain.Position) error {
		if len(d.Evaluation.Fired) > 0 && p.Fired == nil {
			p.Fired = make(map[string]time.Time, len(d.Evaluation.Fired))
		}
		for _, rule := range d.Evaluation.Fired {
			p.Fired[rule] = at
		}
		if d.Full() {
			p.Status = domain.PositionExiting
		}
		return nil
	})
}
