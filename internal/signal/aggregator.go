package signal

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"solana-alpha-engine/internal/domain"
	"solana-alpha-engine/internal/marketdata"
	"solana-alpha-engine/internal/observability"
)

// Default aggregator settings.
const (
	DefaultSourceTimeout = 10 * time.Second
	DefaultMinMarketCap  = 50_000
	DefaultMinLiquidity  = 10_000
)

// Scan result labels for metrics.
const (
	scanLive     = "live"
	scanFallback = "fallback"
	scanEmpty    = "empty"
)

// SourceConfig binds a source to its poll cadence.
type SourceConfig struct {
	Source   marketdata.Source
	Timeout  time.Duration // per-call timeout, 0 = DefaultSourceTimeout
	Interval time.Duration // minimum time between polls, 0 = every scan
}

// Options configures an Aggregator.
type Options struct {
	Sources []SourceConfig

	// Fallback serves the last good merged scan, then static seeds.
	// Scans store their merged quotes into it. Nil disables fallback.
	Fallback *marketdata.CacheSource

	Scoring      ScoringConfig
	MinMarketCap float64 // dropped below this, default DefaultMinMarketCap
	MinLiquidity float64 // dropped below this, default DefaultMinLiquidity

	BreakerThreshold int
	BreakerReset     time.Duration

	// ValidateAsset rejects malformed asset ids as incomplete. Nil accepts any non-empty id.
	ValidateAsset func(assetID string) error

	Logger logrus.FieldLogger
	Now    func() time.Time
}

// ScanResult is the outcome of one scan cycle.
type ScanResult struct {
	Candidates   []domain.Candidate    // ranked, best first
	Market       []domain.TokenQuote   // complete deduplicated quotes before the floors
	Sources      []domain.SourceHealth // in configured order
	FromFallback bool                  // no live source answered
	Incomplete   int                   // quotes dropped for missing fields
	Duplicates   int                   // quotes merged into another source's quote
	BelowFloor   int                   // quotes under the market-cap or liquidity floor
	ScannedAt    time.Time
}

// Degraded reports whether any source failed or fallback data was used.
func (r ScanResult) Degraded() bool {
	if r.FromFallback {
		return true
	}
	for _, s := range r.Sources {
		if s.State != domain.SourceOK {
			return true
		}
	}
	return false
}

type sourceState struct {
	cfg     SourceConfig
	breaker *Breaker

	mu       sync.Mutex
	last     []domain.TokenQuote
	lastPoll time.Time
}

// Aggregator polls sources and ranks their merged output.
type Aggregator struct {
	sources      []*sourceState
	fallback     *marketdata.CacheSource
	scoring      ScoringConfig
	minMarketCap float64
	minLiquidity float64
	validate     func(string) error
	logger       logrus.FieldLogger
	now          func() time.Time
}

// NewAggregator creates an Aggregator.
func NewAggregator(opts Options) *Aggregator {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	scoring := opts.Scoring
	if scoring.Momentum.Steps == nil && scoring.MarketCap.Steps == nil {
		scoring = DefaultScoring()
	}
	minMcap := opts.MinMarketCap
	if minMcap == 0 {
		minMcap = DefaultMinMarketCap
	}
	minLiq := opts.MinLiquidity
	if minLiq == 0 {
		minLiq = DefaultMinLiquidity
	}

	states := make([]*sourceState, 0, len(opts.Sources))
	for _, sc := range opts.Sources {
		if sc.Source == nil {
			continue
		}
		if sc.Timeout <= 0 {
			sc.Timeout = DefaultSourceTimeout
		}
		b := NewBreaker(opts.BreakerThreshold, opts.BreakerReset)
		b.now = now
		states = append(states, &sourceState{cfg: sc, breaker: b})
	}

	return &Aggregator{
		sources:      states,
		fallback:     opts.Fallback,
		scoring:      scoring,
		minMarketCap: minMcap,
		minLiquidity: minLiq,
		validate:     opts.ValidateAsset,
		logger:       logger.WithField("component", "signal"),
		now:          now,
	}
}

// SourceNames returns the configured source names in priority order.
func (a *Aggregator) SourceNames() []string {
	names := make([]string, len(a.sources))
	for i, s := range a.sources {
		names[i] = s.cfg.Source.Name()
	}
	return names
}

// Scan polls every source concurrently and returns ranked candidates.
// It never fails: source errors are reported through ScanResult.Sources.
func (a *Aggregator) Scan(ctx context.Context) ScanResult {
	ctx, span := observability.StartSpan(ctx, "signal.Scan")
	defer span.End()

	start := a.now()
	result := ScanResult{
		Sources:   make([]domain.SourceHealth, len(a.sources)),
		ScannedAt: start,
	}
	quotes := make([][]domain.TokenQuote, len(a.sources))

	var wg sync.WaitGroup
	for i, st := range a.sources {
		wg.Add(1)
		go func(i int, st *sourceState) {
			defer wg.Done()
			quotes[i], result.Sources[i] = a.poll(ctx, st)
		}(i, st)
	}
	wg.Wait()

	var merged []domain.TokenQuote
	live := false
	for i, h := range result.Sources {
		if h.State == domain.SourceOK {
			live = true
			merged = append(merged, quotes[i]...)
		}
	}

	if live {
		a.storeFallback(merged)
	} else {
		merged = a.loadFallback(ctx)
		result.FromFallback = true
	}

	result.Candidates = a.rank(merged, &result)

	label := scanLive
	if result.FromFallback {
		label = scanFallback
	}
	if len(result.Candidates) == 0 {
		label = scanEmpty
	}
	elapsed := a.now().Sub(start)
	observability.RecordScan(label, elapsed.Seconds())
	observability.UpdateLastScan(start.Unix())
	observability.RecordCandidates("scored", len(result.Candidates))
	observability.RecordCandidates("incomplete", result.Incomplete)
	observability.RecordCandidates("duplicate", result.Duplicates)
	observability.RecordCandidates("below_floor", result.BelowFloor)

	span.SetAttributes(
		attribute.Int("candidates", len(result.Candidates)),
		attribute.Bool("fallback", result.FromFallback),
	)

	entry := a.logger.WithFields(logrus.Fields{
		"candidates":  len(result.Candidates),
		"incomplete":  result.Incomplete,
		"duplicates":  result.Duplicates,
		"below_floor": result.BelowFloor,
		"fallback":    result.FromFallback,
		"elapsed":     elapsed,
	})
	if result.Degraded() {
		entry.Warn("scan completed degraded")
	} else {
		entry.Debug("scan completed")
	}

	return result
}

// poll queries one source, honouring its interval and breaker.
func (a *Aggregator) poll(ctx context.Context, st *sourceState) ([]domain.TokenQuote, domain.SourceHealth) {
	st.mu.Lock()
	defer st.mu.Unlock()

	name := st.cfg.Source.Name()
	health := domain.SourceHealth{Name: name}
	now := a.now()

	if st.cfg.Interval > 0 && !st.lastPoll.IsZero() && now.Sub(st.lastPoll) < st.cfg.Interval {
		health.State = domain.SourceOK
		health.Cached = true
		health.Quotes = len(st.last)
		return copyQuotes(st.last), health
	}

	if !st.breaker.Allow() {
		health.State = domain.SourceOpen
		health.LastError = "circuit open"
		observability.SetSourceBreaker(name, observability.BreakerOpen)
		return nil, health
	}

	callCtx, cancel := context.WithTimeout(ctx, st.cfg.Timeout)
	defer cancel()

	ctx, span := observability.StartSpan(callCtx, "signal.poll")
	span.SetAttributes(attribute.String("source", name))
	started := time.Now()
	got, err := st.cfg.Source.GetCandidates(ctx)
	health.Latency = time.Since(started)
	observability.RecordSourceCall(name, health.Latency.Seconds(), err)
	observability.EndSpan(span, err)

	if err != nil {
		health.State = domain.SourceFailed
		health.LastError = err.Error()
		if st.breaker.Failure() {
			a.logger.WithField("source", name).Warn("source circuit opened")
		}
		observability.SetSourceBreaker(name, breakerGauge(st.breaker.State()))
		a.logger.WithFields(logrus.Fields{
			"source": name,
			"error":  err,
		}).Warn("source poll failed")
		return nil, health
	}

	st.breaker.Success()
	observability.SetSourceBreaker(name, observability.BreakerClosed)

	for i := range got {
		if got[i].Source == "" {
			got[i].Source = name
		}
	}
	st.last = copyQuotes(got)
	st.lastPoll = now

	health.State = domain.SourceOK
	health.Quotes = len(got)
	return got, health
}

func (a *Aggregator) storeFallback(quotes []domain.TokenQuote) {
	if a.fallback == nil {
		return
	}
	a.fallback.Store(quotes)
}

func (a *Aggregator) loadFallback(ctx context.Context) []domain.TokenQuote {
	if a.fallback == nil {
		a.logger.Warn("all sources failed and no fallback configured")
		return nil
	}
	quotes, err := a.fallback.GetCandidates(ctx)
	if err != nil {
		if !errors.Is(err, marketdata.ErrNoData) {
			a.logger.WithError(err).Warn("fallback read failed")
		}
		return nil
	}
	a.logger.WithField("quotes", len(quotes)).Warn("all sources failed, using fallback candidates")
	return quotes
}

// rank validates, deduplicates, filters, scores and sorts quotes.
func (a *Aggregator) rank(quotes []domain.TokenQuote, result *ScanResult) []domain.Candidate {
	byAsset := make(map[string]int, len(quotes))
	unique := make([]domain.TokenQuote, 0, len(quotes))

	for _, q := range quotes {
		if !a.complete(q) {
			result.Incomplete++
			continue
		}
		if idx, ok := byAsset[q.AssetID]; ok {
			result.Duplicates++
			if q.Completeness() > unique[idx].Completeness() {
				unique[idx] = q
			}
			continue
		}
		byAsset[q.AssetID] = len(unique)
		unique = append(unique, q)
	}

	result.Market = unique

	candidates := make([]domain.Candidate, 0, len(unique))
	for _, q := range unique {
		if q.MarketCap < a.minMarketCap || q.Liquidity < a.minLiquidity {
			result.BelowFloor++
			continue
		}
		candidates = append(candidates, domain.Candidate{
			TokenQuote: q,
			Confidence: Score(a.scoring, q),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		ci, cj := candidates[i], candidates[j]
		if ci.Confidence != cj.Confidence {
			return ci.Confidence > cj.Confidence
		}
		if ci.Volume24h != cj.Volume24h {
			return ci.Volume24h > cj.Volume24h
		}
		return ci.AssetID < cj.AssetID
	})
	return candidates
}

func (a *Aggregator) complete(q domain.TokenQuote) bool {
	if q.AssetID == "" || q.Symbol == "" || q.Price <= 0 {
		return false
	}
	if a.validate != nil && a.validate(q.AssetID) != nil {
		return false
	}
	return true
}

func breakerGauge(s BreakerState) int {
	switch s {
	case BreakerOpen:
		return observability.BreakerOpen
	case BreakerHalfOpen:
		return observability.BreakerHalfOpen
	default:
		return observability.BreakerClosed
	}
}

func copyQuotes(q []domain.TokenQuote) []domain.TokenQuote {
	if q == nil {
		return nil
	}
	out := make([]domain.TokenQuote, len(q))
	copy(out, q)
	return out
}
