package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-alpha-engine/internal/domain"
	"solana-alpha-engine/internal/execution"
	"solana-alpha-engine/internal/marketdata"
	"solana-alpha-engine/internal/marketdata/stub"
	"solana-alpha-engine/internal/monitor"
	"solana-alpha-engine/internal/observability"
	"solana-alpha-engine/internal/signal"
	"solana-alpha-engine/internal/sizing"
	"solana-alpha-engine/internal/tier"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeScanner struct {
	mu     sync.Mutex
	result signal.ScanResult
	calls  int
}

func (s *fakeScanner) Scan(context.Context) signal.ScanResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.result
}

func (s *fakeScanner) set(fromFallback bool, candidates ...domain.Candidate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	market := make([]domain.TokenQuote, 0, len(candidates))
	for _, c := range candidates {
		market = append(market, c.TokenQuote)
	}
	s.result = signal.ScanResult{
		Candidates:   candidates,
		Market:       market,
		Sources:      []domain.SourceHealth{{Name: "stub", State: domain.SourceOK, Quotes: len(candidates)}},
		FromFallback: fromFallback,
		ScannedAt:    t0,
	}
}

// setMarket replaces the pre-floor quotes of the next scan.
func (s *fakeScanner) setMarket(quotes ...domain.TokenQuote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result.Market = quotes
}

func (s *fakeScanner) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fakeLedger struct {
	mu      sync.Mutex
	balance float64
	err     error
}

func (l *fakeLedger) RecordTrade(context.Context, domain.TradeRecord) error { return nil }

func (l *fakeLedger) GetBalance(context.Context) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance, l.err
}

func (l *fakeLedger) fail(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
}

type fakeHoldings struct{ qty float64 }

func (h fakeHoldings) TokenBalance(context.Context, string) (float64, error) { return h.qty, nil }

type harness struct {
	engine    *Engine
	scanner   *fakeScanner
	ledger    *fakeLedger
	market    *stub.Source // prices seen by the monitor
	routerSrc *stub.Source // prices the paper router fills at
}

func newHarness(t *testing.T, mutate ...func(o *Options)) *harness {
	t.Helper()

	h := &harness{
		scanner:   &fakeScanner{},
		ledger:    &fakeLedger{balance: 100},
		market:    stub.NewSource("market"),
		routerSrc: stub.NewSource("router"),
	}
	tiers, err := tier.NewSelector(domain.DefaultTiers())
	require.NoError(t, err)
	logger, _ := logtest.NewNullLogger()

	opts := Options{
		Scanner: h.scanner,
		Tiers:   tiers,
		Ledger:  h.ledger,
		Execution: execution.Options{
			Primary:        execution.NewPaperRouter(marketdata.NewPriceFeed(time.Second, h.routerSrc), 0),
			MaxRetries:     -1,
			BaseDelay:      time.Millisecond,
			AttemptTimeout: time.Second,
			Deadline:       5 * time.Second,
		},
		Monitor:          monitor.Options{Feed: marketdata.NewPriceFeed(time.Second, h.market)},
		ScanInterval:     time.Hour,
		MonitorInterval:  time.Hour,
		MaxOpenPositions: 5,
		Logger:           logger,
		Now:              func() time.Time { return t0 },
	}
	for _, m := range mutate {
		m(&opts)
	}

	h.engine, err = New(opts)
	require.NoError(t, err)
	return h
}

func (h *harness) setPrice(assetID string, price float64) {
	h.market.SetPrice(assetID, price)
	h.routerSrc.SetPrice(assetID, price)
}

func candidate(symbol string, price, confidence float64) domain.Candidate {
	return domain.Candidate{
		TokenQuote: domain.TokenQuote{
			Symbol:    symbol,
			AssetID:   symbol + "-mint",
			Source:    "stub",
			Price:     price,
			MarketCap: 1_000_000,
			Liquidity: 100_000,
		},
		Confidence: confidence,
	}
}

// open buys symbol at price through a scan and waits for the fill.
func (h *harness) open(t *testing.T, symbol string, price float64) {
	t.Helper()
	h.setPrice(symbol+"-mint", price)
	h.scanner.set(false, candidate(symbol, price, 80))
	report := h.engine.ScanOnce(context.Background())
	require.Len(t, report.Submitted, 1)
	h.engine.Wait()
}

func collect(t *testing.T, ch <-chan Event, n int) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case ev := <-ch:
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("got %d of %d events", len(out), n)
		}
	}
	return out
}

func TestNew_RequiresDependencies(t *testing.T) {
	tiers, err := tier.NewSelector(domain.DefaultTiers())
	require.NoError(t, err)
	feed := marketdata.NewPriceFeed(time.Second)
	router := execution.NewPaperRouter(feed, 0)

	valid := func() Options {
		return Options{
			Scanner:   &fakeScanner{},
			Tiers:     tiers,
			Ledger:    &fakeLedger{},
			Execution: execution.Options{Primary: router},
			Monitor:   monitor.Options{Feed: feed},
		}
	}

	tests := []struct {
		name   string
		mutate func(o *Options)
	}{
		{"scanner", func(o *Options) { o.Scanner = nil }},
		{"tiers", func(o *Options) { o.Tiers = nil }},
		{"ledger", func(o *Options) { o.Ledger = nil }},
		{"router", func(o *Options) { o.Execution.Primary = nil }},
		{"feed", func(o *Options) { o.Monitor.Feed = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := valid()
			tt.mutate(&opts)
			_, err := New(opts)
			assert.ErrorIs(t, err, ErrInvalidOptions)
		})
	}

	e, err := New(valid())
	require.NoError(t, err)
	assert.Equal(t, domain.TierConservative, e.Status().Tier.Name)
}

func TestScanOnce_BuysApprovedCandidates(t *testing.T) {
	h := newHarness(t)
	events, cancel := h.engine.Subscribe(16)
	defer cancel()

	h.setPrice("BONK-mint", 0.5)
	h.setPrice("WIF-mint", 2)
	h.scanner.set(false,
		candidate("BONK", 0.5, 80),
		candidate("WIF", 2, 80),
		candidate("LOW", 1, 50),
	)

	report := h.engine.ScanOnce(context.Background())

	assert.Equal(t, 100.0, report.Balance)
	assert.Equal(t, domain.TierConservative, report.Tier)
	assert.Equal(t, 3, report.Candidates)
	assert.Empty(t, report.Skipped)
	assert.Equal(t, 1, report.Rejected[sizing.RejectBelowConfidence])
	require.Len(t, report.Submitted, 2)

	// Conservative tier: 5% * min(2, 80/50) * 1.0 = 8% of capital
	assert.Equal(t, "BONK", report.Submitted[0].Symbol)
	assert.InDelta(t, 8.0, report.Submitted[0].Amount, 1e-9)
	// Committed capital is subtracted within the cycle
	assert.Equal(t, "WIF", report.Submitted[1].Symbol)
	assert.InDelta(t, 92*0.08, report.Submitted[1].Amount, 1e-9)

	h.engine.Wait()

	positions := h.engine.Positions()
	require.Len(t, positions, 2)
	bonk := positions[0]
	if bonk.Symbol != "BONK" {
		bonk = positions[1]
	}
	assert.InDelta(t, 16.0, bonk.Quantity, 1e-9)
	assert.InDelta(t, 8.0, bonk.EntryValue, 1e-9)
	assert.Equal(t, domain.PositionActive, bonk.Status)

	got := collect(t, events, 4)
	counts := map[EventType]int{}
	for _, ev := range got {
		counts[ev.Type]++
	}
	assert.Equal(t, 2, counts[EventExecutionConfirmed])
	assert.Equal(t, 2, counts[EventPositionOpened])

	assert.Zero(t, h.engine.Status().Committed)
	assert.Len(t, h.engine.Executions(0), 2)
}

func scansRecorded() float64 {
	var total float64
	for _, label := range []string{"live", "fallback", "empty", "ok", "degraded"} {
		total += testutil.ToFloat64(observability.DefaultMetrics.ScansTotal.WithLabelValues(label))
	}
	return total
}

func TestScanOnce_CountsOneScan(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.Scanner = signal.NewAggregator(signal.Options{
			Sources: []signal.SourceConfig{{Source: stub.NewSource("dex"), Timeout: time.Second}},
		})
	})

	before := scansRecorded()
	h.engine.ScanOnce(context.Background())
	assert.Equal(t, before+1, scansRecorded())
}

func TestScanOnce_SkipsHeldSymbols(t *testing.T) {
	h := newHarness(t)
	h.open(t, "BONK", 0.5)

	report := h.engine.ScanOnce(context.Background())
	assert.Empty(t, report.Submitted)
	assert.Equal(t, 1, report.Rejected[sizing.RejectActivePosition])
}

func TestScanOnce_MaxOpenPositions(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.MaxOpenPositions = 2 })
	for _, s := range []string{"A", "B", "C"} {
		h.setPrice(s+"-mint", 1)
	}
	h.scanner.set(false, candidate("A", 1, 80), candidate("B", 1, 80), candidate("C", 1, 80))

	report := h.engine.ScanOnce(context.Background())
	assert.Len(t, report.Submitted, 2)
	assert.Equal(t, skipCapacity, report.Skipped)

	h.engine.Wait()
	report = h.engine.ScanOnce(context.Background())
	assert.Empty(t, report.Submitted)
	assert.Equal(t, skipCapacity, report.Skipped)
}

func TestScanOnce_FallbackCandidates(t *testing.T) {
	h := newHarness(t)
	h.setPrice("BONK-mint", 0.5)
	h.scanner.set(true, candidate("BONK", 0.5, 80))

	report := h.engine.ScanOnce(context.Background())
	assert.Empty(t, report.Submitted)
	assert.Equal(t, skipFallback, report.Skipped)
	assert.True(t, report.Degraded)

	h = newHarness(t, func(o *Options) { o.TradeOnFallback = true })
	h.setPrice("BONK-mint", 0.5)
	h.scanner.set(true, candidate("BONK", 0.5, 80))

	report = h.engine.ScanOnce(context.Background())
	assert.Len(t, report.Submitted, 1)
	h.engine.Wait()
}

func TestScanOnce_BalanceFailureSkipsBuying(t *testing.T) {
	h := newHarness(t)
	h.ledger.fail(errors.New("rpc down"))
	h.setPrice("BONK-mint", 0.5)
	h.scanner.set(false, candidate("BONK", 0.5, 80))

	report := h.engine.ScanOnce(context.Background())
	assert.Empty(t, report.Submitted)
	assert.Equal(t, skipBalance, report.Skipped)
	assert.True(t, report.Degraded)

	st := h.engine.Status()
	assert.Equal(t, HealthStopped, st.Health)
	assert.Equal(t, "rpc down", st.BalanceError)
}

func TestScanOnce_TierFollowsBalance(t *testing.T) {
	h := newHarness(t)
	h.ledger.balance = 2500

	report := h.engine.ScanOnce(context.Background())
	assert.Equal(t, domain.TierAggressive, report.Tier)
	assert.Equal(t, domain.TierAggressive, h.engine.Status().Tier.Name)
	assert.Equal(t, 2500.0, h.engine.Status().Balance)
}

func TestMonitorOnce_StopLossClosesPosition(t *testing.T) {
	h := newHarness(t)
	h.open(t, "BONK", 0.5)
	events, cancel := h.engine.Subscribe(16)
	defer cancel()

	h.setPrice("BONK-mint", 0.35)
	report := h.engine.MonitorOnce(context.Background())

	require.Len(t, report.Exits, 1)
	require.Len(t, report.Submitted, 1)
	sell := report.Submitted[0]
	assert.Equal(t, domain.DirectionSell, sell.Direction)
	assert.InDelta(t, 16.0, sell.Amount, 1e-9)
	assert.Equal(t, 100.0, sell.ExitPercent)

	h.engine.Wait()
	assert.Empty(t, h.engine.Positions())

	got := collect(t, events, 2)
	assert.Equal(t, EventExecutionConfirmed, got[0].Type)
	assert.Equal(t, EventPositionClosed, got[1].Type)
	assert.InDelta(t, 16*0.35-8, got[1].RealizedPnL, 1e-9)
}

func TestMonitorOnce_PartialExitFromMarketData(t *testing.T) {
	h := newHarness(t)
	h.open(t, "BONK", 0.5)
	events, cancel := h.engine.Subscribe(16)
	defer cancel()

	// Next scan reports a 24h drop; the monitor picks it up
	c := candidate("BONK", 0.5, 80)
	c.PriceChange24h = -20
	h.scanner.set(false, c)
	h.engine.ScanOnce(context.Background())

	report := h.engine.MonitorOnce(context.Background())
	require.Len(t, report.Submitted, 1)
	assert.InDelta(t, 8.0, report.Submitted[0].Amount, 1e-9)
	assert.Equal(t, 50.0, report.Submitted[0].ExitPercent)

	h.engine.Wait()
	positions := h.engine.Positions()
	require.Len(t, positions, 1)
	assert.InDelta(t, 8.0, positions[0].Quantity, 1e-9)
	assert.Equal(t, domain.PositionActive, positions[0].Status)

	got := collect(t, events, 2)
	assert.Equal(t, EventPositionReduced, got[1].Type)
}

func TestMonitorOnce_HeldAssetBelowFloorKeepsMomentum(t *testing.T) {
	h := newHarness(t)
	h.open(t, "BONK", 0.5)

	// BONK crashed under the market-cap floor: no longer a candidate, still in the market view
	crashed := candidate("BONK", 0.5, 0).TokenQuote
	crashed.MarketCap = 10_000
	crashed.PriceChange24h = -40
	h.scanner.set(false)
	h.scanner.setMarket(crashed)
	scan := h.engine.ScanOnce(context.Background())
	assert.Zero(t, scan.Candidates)

	report := h.engine.MonitorOnce(context.Background())
	require.Len(t, report.Submitted, 1)
	assert.Equal(t, 100.0, report.Submitted[0].ExitPercent)
	assert.Equal(t, domain.DirectionSell, report.Submitted[0].Direction)

	h.engine.Wait()
	assert.Empty(t, h.engine.Positions())
}

func TestMonitorOnce_ResubmitsFailedFullExit(t *testing.T) {
	h := newHarness(t)
	h.open(t, "BONK", 0.5)

	h.setPrice("BONK-mint", 0.35)
	h.routerSrc.FailPrice("BONK-mint", nil)
	report := h.engine.MonitorOnce(context.Background())
	require.Len(t, report.Submitted, 1)
	h.engine.Wait()

	req := h.engine.Executions(1)[0]
	assert.Equal(t, domain.ExecutionFailed, req.Status)
	positions := h.engine.Positions()
	require.Len(t, positions, 1)
	assert.Equal(t, domain.PositionExiting, positions[0].Status)

	h.routerSrc.SetPrice("BONK-mint", 0.35)
	report = h.engine.MonitorOnce(context.Background())
	assert.Empty(t, report.Exits)
	assert.Equal(t, 1, report.Resubmitted)

	h.engine.Wait()
	assert.Empty(t, h.engine.Positions())
}

func TestMonitorOnce_SellCappedAtHoldings(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Holdings = fakeHoldings{qty: 10} })
	h.open(t, "BONK", 0.5)

	h.setPrice("BONK-mint", 0.35)
	report := h.engine.MonitorOnce(context.Background())
	require.Len(t, report.Submitted, 1)
	assert.InDelta(t, 10.0, report.Submitted[0].Amount, 1e-9)
	h.engine.Wait()
}

func TestForceExitAll(t *testing.T) {
	h := newHarness(t)
	h.setPrice("A-mint", 1)
	h.setPrice("B-mint", 2)
	h.scanner.set(false, candidate("A", 1, 80), candidate("B", 2, 80))
	h.engine.ScanOnce(context.Background())
	h.engine.Wait()
	require.Len(t, h.engine.Positions(), 2)

	events, cancel := h.engine.Subscribe(16)
	defer cancel()

	results := h.engine.ForceExitAll(context.Background())
	require.Len(t, results, 2)
	for _, r := range results {
		assert.NotEmpty(t, r.ExecutionID, r.Symbol)
		assert.Empty(t, r.Error)
	}

	h.engine.Wait()
	assert.Empty(t, h.engine.Positions())

	var sawEmergency bool
	for _, ev := range collect(t, events, 5) {
		if ev.Type == EventEmergencyExit {
			sawEmergency = true
		}
	}
	assert.True(t, sawEmergency)
}

func TestForceExitAll_NoPositions(t *testing.T) {
	h := newHarness(t)
	assert.Empty(t, h.engine.ForceExitAll(context.Background()))
}

func TestStartStop(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	assert.ErrorIs(t, h.engine.Stop(), ErrNotRunning)
	assert.Equal(t, HealthStopped, h.engine.Status().Health)

	require.NoError(t, h.engine.Start(ctx))
	assert.ErrorIs(t, h.engine.Start(ctx), ErrAlreadyRunning)
	assert.True(t, h.engine.Running())
	assert.Eventually(t, func() bool { return h.scanner.Calls() > 0 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return h.engine.Status().Health == HealthHealthy }, time.Second, 5*time.Millisecond)

	require.NoError(t, h.engine.Stop())
	assert.False(t, h.engine.Running())
	assert.ErrorIs(t, h.engine.Stop(), ErrNotRunning)

	// Restart after stop
	require.NoError(t, h.engine.Start(ctx))
	require.NoError(t, h.engine.Stop())
}

func TestStatus_DegradedOnBalanceFailure(t *testing.T) {
	h := newHarness(t)
	h.ledger.fail(errors.New("rpc down"))

	require.NoError(t, h.engine.Start(context.Background()))
	defer h.engine.Stop()

	assert.Eventually(t, func() bool { return h.engine.Status().Health == HealthDegraded }, time.Second, 5*time.Millisecond)
}

func TestBus_DropsWhenSubscriberIsFull(t *testing.T) {
	b := newBus()
	ch, cancel := b.subscribe(1)

	b.publish(Event{Type: EventEngineStarted})
	b.publish(Event{Type: EventEngineStopped})

	ev := <-ch
	assert.Equal(t, EventEngineStarted, ev.Type)
	select {
	case extra := <-ch:
		t.Fatalf("unexpected event %s", extra.Type)
	default:
	}

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)
	assert.Zero(t, b.len())
}
