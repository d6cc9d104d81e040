package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"solana-alpha-engine/internal/domain"
	"solana-alpha-engine/internal/idhash"
	"solana-alpha-engine/internal/marketdata"
	"solana-alpha-engine/internal/observability"
	"solana-alpha-engine/internal/position"
	"solana-alpha-engine/internal/wallet"
)

// Submitter errors.
var (
	// ErrInFlight is returned when the symbol already has a pending request.
	ErrInFlight = errors.New("execution already in flight")

	// ErrNoRouter is returned when no primary router is configured.
	ErrNoRouter = errors.New("no router configured")
)

// Default submitter settings.
const (
	DefaultMaxRetries        = 3
	DefaultBaseDelay         = 500 * time.Millisecond
	DefaultBackoffMultiplier = 2.0
	DefaultMaxDelay          = 5 * time.Second
	DefaultAttemptTimeout    = 30 * time.Second
	DefaultDeadline          = 2 * time.Minute
	DefaultHistory           = 200
)

// Order asks the submitter to change a position.
type Order struct {
	Direction   domain.Direction
	Symbol      string
	AssetID     string
	Amount      float64 // buy: capital to spend; sell: token quantity
	PriceHint   float64
	ExitPercent float64 // sells only
	Reason      string
}

// TradeRecorder accepts confirmed trades without blocking.
type TradeRecorder interface {
	Enqueue(rec domain.TradeRecord) bool
}

// Outcome is reported once per request when it reaches a terminal status.
type Outcome struct {
	Request     domain.ExecutionRequest
	Position    *domain.Position // state after the fill, nil if nothing was applied
	Closed      bool             // the sell liquidated the position
	RealizedPnL float64
}

// Options configures a Submitter.
type Options struct {
	Primary   Router
	Alternate Router // tried once the primary is exhausted, may be nil
	Confirmer Confirmer
	Signer    wallet.Signer
	Table     *position.Table
	Recorder  TradeRecorder // may be nil

	// QuoteMint is the capital asset, default wrapped SOL.
	QuoteMint string

	MaxRetries        int // retries per router after the first attempt; negative disables retries
	BaseDelay         time.Duration
	BackoffMultiplier float64
	MaxDelay          time.Duration
	AttemptTimeout    time.Duration // bounds one quote + execute
	Deadline          time.Duration // bounds the whole request, confirmation included

	History int // terminal requests kept for Recent

	// OnComplete is called from the request goroutine after the terminal transition.
	OnComplete func(Outcome)

	Logger logrus.FieldLogger
	Now    func() time.Time
}

// Submitter runs execution requests asynchronously, one in flight per symbol.
type Submitter struct {
	primary    Router
	alternate  Router
	confirmer  Confirmer
	signer     wallet.Signer
	table      *position.Table
	recorder   TradeRecorder
	quoteMint  string
	maxRetries int
	baseDelay  time.Duration
	multiplier float64
	maxDelay   time.Duration
	attemptTTL time.Duration
	deadline   time.Duration
	historyCap int
	onComplete func(Outcome)
	logger     logrus.FieldLogger
	now        func() time.Time

	mu       sync.Mutex
	inFlight map[string]string // symbol -> request id
	byID     map[string]*domain.ExecutionRequest
	history  []*domain.ExecutionRequest // oldest first
	seq      uint64

	wg sync.WaitGroup
}

// NewSubmitter creates a Submitter.
func NewSubmitter(opts Options) *Submitter {
	s := &Submitter{
		primary:    opts.Primary,
		alternate:  opts.Alternate,
		confirmer:  opts.Confirmer,
		signer:     opts.Signer,
		table:      opts.Table,
		recorder:   opts.Recorder,
		quoteMint:  opts.QuoteMint,
		maxRetries: opts.MaxRetries,
		baseDelay:  opts.BaseDelay,
		multiplier: opts.BackoffMultiplier,
		maxDelay:   opts.MaxDelay,
		attemptTTL: opts.AttemptTimeout,
		deadline:   opts.Deadline,
		historyCap: opts.History,
		onComplete: opts.OnComplete,
		logger:     opts.Logger,
		now:        opts.Now,
		inFlight:   make(map[string]string),
		byID:       make(map[string]*domain.ExecutionRequest),
	}
	if s.confirmer == nil {
		s.confirmer = PaperConfirmer{}
	}
	if s.quoteMint == "" {
		s.quoteMint = marketdata.WrappedSOLMint
	}
	if s.maxRetries < 0 {
		s.maxRetries = 0
	} else if s.maxRetries == 0 {
		s.maxRetries = DefaultMaxRetries
	}
	if s.baseDelay <= 0 {
		s.baseDelay = DefaultBaseDelay
	}
	if s.multiplier < 1 {
		s.multiplier = DefaultBackoffMultiplier
	}
	if s.maxDelay <= 0 {
		s.maxDelay = DefaultMaxDelay
	}
	if s.attemptTTL <= 0 {
		s.attemptTTL = DefaultAttemptTimeout
	}
	if s.deadline <= 0 {
		s.deadline = DefaultDeadline
	}
	if s.historyCap <= 0 {
		s.historyCap = DefaultHistory
	}
	if s.logger == nil {
		s.logger = logrus.StandardLogger()
	}
	s.logger = s.logger.WithField("component", "submitter")
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Submit validates o, registers a pending request and runs it in the
// background. It returns the pending request without waiting for confirmation.
func (s *Submitter) Submit(ctx context.Context, o Order) (domain.ExecutionRequest, error) {
	if err := validateOrder(o); err != nil {
		return domain.ExecutionRequest{}, err
	}
	if s.primary == nil {
		return domain.ExecutionRequest{}, ErrNoRouter
	}

	s.mu.Lock()
	if id, busy := s.inFlight[o.Symbol]; busy {
		s.mu.Unlock()
		return domain.ExecutionRequest{}, fmt.Errorf("%s (request %s): %w", o.Symbol, id, ErrInFlight)
	}

	now := s.now()
	s.seq++
	req := &domain.ExecutionRequest{
		ID:          idhash.ComputeExecutionID(o.Direction.String(), o.Symbol, o.AssetID, now.UnixNano(), s.seq),
		Direction:   o.Direction,
		Symbol:      o.Symbol,
		AssetID:     o.AssetID,
		Amount:      o.Amount,
		PriceHint:   o.PriceHint,
		Status:      domain.ExecutionPending,
		Router:      s.primary.Name(),
		ExitPercent: o.ExitPercent,
		Reason:      o.Reason,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.inFlight[o.Symbol] = req.ID
	s.byID[req.ID] = req
	s.history = append(s.history, req)
	s.trimLocked()
	snapshot := *req
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"execution_id": req.ID,
		"symbol":       o.Symbol,
		"direction":    o.Direction,
		"amount":       o.Amount,
	}).Info("execution submitted")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(context.WithoutCancel(ctx), req.ID, o)
	}()

	return snapshot, nil
}

func validateOrder(o Order) error {
	if !o.Direction.IsValid() {
		return fmt.Errorf("order: direction %q: %w", o.Direction, domain.ErrInvariant)
	}
	if o.Symbol == "" || o.AssetID == "" {
		return fmt.Errorf("order: missing symbol or asset: %w", domain.ErrInvariant)
	}
	if o.Amount <= 0 {
		return fmt.Errorf("order %s: non-positive amount %v: %w", o.Symbol, o.Amount, domain.ErrInvariant)
	}
	return nil
}

// InFlight reports whether symbol has a pending request.
func (s *Submitter) InFlight(symbol string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inFlight[symbol]
	return ok
}

// Get returns a copy of the request with id.
func (s *Submitter) Get(id string) (domain.ExecutionRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.byID[id]
	if !ok {
		return domain.ExecutionRequest{}, false
	}
	return *req, true
}

// Recent returns up to limit requests, newest first. limit <= 0 returns all kept requests.
func (s *Submitter) Recent(limit int) []domain.ExecutionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.history)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.ExecutionRequest, 0, n)
	for i := len(s.history) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, *s.history[i])
	}
	return out
}

// Wait blocks until every running request has finished.
func (s *Submitter) Wait() {
	s.wg.Wait()
}

// trimLocked drops the oldest terminal requests beyond the history cap.
func (s *Submitter) trimLocked() {
	for i := 0; len(s.history) > s.historyCap && i < len(s.history); {
		req := s.history[i]
		if !req.Status.IsTerminal() {
			i++
			continue
		}
		delete(s.byID, req.ID)
		s.history = append(s.history[:i], s.history[i+1:]...)
	}
}

// attemptResult is the outcome of one router, retries included.
type attemptResult struct {
	quote *Quote
	txRef string
	sent  bool
	err   error
}

func (s *Submitter) routers() []Router {
	if s.alternate == nil {
		return []Router{s.primary}
	}
	return []Router{s.primary, s.alternate}
}

func (s *Submitter) run(ctx context.Context, id string, o Order) {
	start := s.now()
	ctx, cancel := context.WithTimeout(ctx, s.deadline)
	defer cancel()

	log := s.logger.WithFields(logrus.Fields{"execution_id": id, "symbol": o.Symbol, "direction": o.Direction})

	var last error
	var lastRouter string
	var txRef string
	for i, r := range s.routers() {
		if i > 0 {
			log.WithError(last).WithField("router", r.Name()).Warn("falling back to alternate router")
			s.update(id, func(req *domain.ExecutionRequest) { req.Router = r.Name() })
		}

		res := s.tryRouter(ctx, id, r, o)
		lastRouter = r.Name()
		if res.err == nil {
			s.confirmed(id, o, r.Name(), res, start)
			return
		}
		last = res.err
		if res.sent {
			// Never resend a transaction that may still land
			txRef = res.txRef
			last = fmt.Errorf("sent as %s but not confirmed: %w", res.txRef, res.err)
			break
		}
		if ctx.Err() != nil {
			break
		}
	}

	s.failed(id, o, lastRouter, txRef, last, start)
}

// tryRouter runs attempts against r with exponential backoff between them.
func (s *Submitter) tryRouter(ctx context.Context, id string, r Router, o Order) attemptResult {
	delay := s.baseDelay
	var res attemptResult

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return attemptResult{err: fmt.Errorf("%s: %w", r.Name(), ctx.Err())}
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * s.multiplier)
			if delay > s.maxDelay {
				delay = s.maxDelay
			}
			s.update(id, func(req *domain.ExecutionRequest) { req.RetryCount++ })
			observability.RecordExecutionRetry(r.Name())
		}

		res = s.attempt(ctx, r, o)
		if res.err == nil || res.sent {
			return res
		}
		if !s.retryable(ctx, res.err) {
			return res
		}
		s.logger.WithFields(logrus.Fields{
			"execution_id": id,
			"router":       r.Name(),
			"attempt":      attempt + 1,
			"error":        res.err,
		}).Debug("execution attempt failed")
	}
	return res
}

// retryable reports whether err is worth another attempt. Per-attempt
// timeouts are; the request deadline is not.
func (s *Submitter) retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return domain.IsTransient(err) || errors.Is(err, context.DeadlineExceeded)
}

// attempt quotes, executes and, once sent, confirms within the request deadline.
func (s *Submitter) attempt(ctx context.Context, r Router, o Order) (res attemptResult) {
	ctx, span := observability.StartSpan(ctx, "execution.attempt")
	span.SetAttributes(
		attribute.String("router", r.Name()),
		attribute.String("symbol", o.Symbol),
		attribute.String("direction", o.Direction.String()),
	)
	defer func() { observability.EndSpan(span, res.err) }()

	in, out := s.quoteMint, o.AssetID
	if o.Direction == domain.DirectionSell {
		in, out = o.AssetID, s.quoteMint
	}

	attemptCtx, cancel := context.WithTimeout(ctx, s.attemptTTL)
	defer cancel()

	q, err := r.Quote(attemptCtx, in, out, o.Amount)
	if err != nil {
		return attemptResult{err: err}
	}
	if q == nil || q.OutAmount <= 0 || q.InAmount <= 0 {
		return attemptResult{err: fmt.Errorf("%s: %w", r.Name(), ErrNoQuote)}
	}

	txRef, err := r.Execute(attemptCtx, q, s.signer)
	if txRef == "" {
		if err == nil {
			err = fmt.Errorf("%s: execute returned no transaction: %w", r.Name(), domain.ErrTransient)
		}
		return attemptResult{quote: q, err: err}
	}
	span.SetAttributes(attribute.String("tx", txRef))

	if err == nil {
		err = s.confirmer.Confirm(ctx, txRef)
	}
	return attemptResult{quote: q, txRef: txRef, sent: true, err: err}
}

// fillOf derives the confirmed fill from the executed quote.
func fillOf(o Order, router string, res attemptResult) domain.Fill {
	f := domain.Fill{
		AmountIn:  res.quote.InAmount,
		AmountOut: res.quote.OutAmount,
		TxRef:     res.txRef,
		Router:    router,
	}
	if o.Direction == domain.DirectionBuy {
		f.Price = f.AmountIn / f.AmountOut
	} else {
		f.Price = f.AmountOut / f.AmountIn
	}
	return f
}

// confirmed is the confirmation handler: it applies the fill to the position
// table, enqueues the trade record and finishes the request.
func (s *Submitter) confirmed(id string, o Order, router string, res attemptResult, start time.Time) {
	now := s.now()
	fill := fillOf(o, router, res)
	log := s.logger.WithFields(logrus.Fields{"execution_id": id, "symbol": o.Symbol, "router": router, "tx": fill.TxRef})

	outcome := Outcome{}
	var applyErr error
	switch o.Direction {
	case domain.DirectionBuy:
		p, err := s.table.ApplyBuy(position.Buy{
			PositionID: idhash.ComputePositionID(o.AssetID, id),
			Symbol:     o.Symbol,
			AssetID:    o.AssetID,
			Quantity:   fill.AmountOut,
			Cost:       fill.AmountIn,
			Price:      fill.Price,
			At:         now,
		})
		outcome.Position, applyErr = p, err
	case domain.DirectionSell:
		sr, err := s.table.ApplySell(position.Sell{
			Symbol:   o.Symbol,
			Quantity: fill.AmountIn,
			Proceeds: fill.AmountOut,
			Price:    fill.Price,
			At:       now,
		})
		outcome.Position, outcome.Closed, outcome.RealizedPnL, applyErr = sr.Position, sr.Closed, sr.RealizedPnL, err
	}
	if applyErr != nil {
		log.WithError(applyErr).Error("confirmed fill could not be applied to positions")
	}

	req := s.finish(id, func(req *domain.ExecutionRequest) {
		req.Status = domain.ExecutionConfirmed
		req.TxRef = fill.TxRef
		req.Router = router
		if applyErr != nil {
			req.Error = applyErr.Error()
		}
	})
	outcome.Request = req

	if outcome.Position != nil {
		s.record(req, fill, outcome, now, log)
	}

	observability.RecordExecution(o.Direction.String(), req.Status.String(), router, now.Sub(start).Seconds())
	log.WithFields(logrus.Fields{
		"amount_in":  fill.AmountIn,
		"amount_out": fill.AmountOut,
		"price":      fill.Price,
	}).Info("execution confirmed")

	if s.onComplete != nil {
		s.onComplete(outcome)
	}
}

func (s *Submitter) record(req domain.ExecutionRequest, fill domain.Fill, outcome Outcome, at time.Time, log logrus.FieldLogger) {
	if s.recorder == nil {
		return
	}

	rec := domain.TradeRecord{
		TradeID:       idhash.ComputeTradeID(req.ID, fill.TxRef, at.UnixMilli()),
		ExecutionID:   req.ID,
		PositionID:    outcome.Position.ID,
		Symbol:        req.Symbol,
		AssetID:       req.AssetID,
		Direction:     req.Direction,
		AmountIn:      fill.AmountIn,
		AmountOut:     fill.AmountOut,
		Price:         fill.Price,
		UnrealizedPnL: outcome.Position.UnrealizedPnL,
		TxRef:         fill.TxRef,
		Router:        fill.Router,
		ExecutedAt:    at.UnixMilli(),
	}
	if req.Direction == domain.DirectionBuy {
		rec.Quantity = fill.AmountOut
		rec.Value = fill.AmountIn
	} else {
		rec.Quantity = fill.AmountIn
		rec.Value = fill.AmountOut
		rec.RealizedPnL = outcome.RealizedPnL
	}

	if !s.recorder.Enqueue(rec) {
		log.WithField("trade_id", rec.TradeID).Warn("ledger queue full, trade record dropped")
	}
}

func (s *Submitter) failed(id string, o Order, router, txRef string, cause error, start time.Time) {
	if cause == nil {
		cause = errors.New("no router attempted")
	}
	req := s.finish(id, func(req *domain.ExecutionRequest) {
		req.Status = domain.ExecutionFailed
		req.Error = cause.Error()
		req.TxRef = txRef
		if router != "" {
			req.Router = router
		}
	})

	observability.RecordExecution(o.Direction.String(), req.Status.String(), req.Router, s.now().Sub(start).Seconds())
	s.logger.WithFields(logrus.Fields{
		"execution_id": id,
		"symbol":       o.Symbol,
		"router":       req.Router,
		"retries":      req.RetryCount,
	}).WithError(cause).Error("execution failed")

	if s.onComplete != nil {
		s.onComplete(Outcome{Request: req})
	}
}

// update mutates a pending request under the lock.
func (s *Submitter) update(id string, fn func(req *domain.ExecutionRequest)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.byID[id]
	if !ok || req.Status.IsTerminal() {
		return
	}
	fn(req)
	req.UpdatedAt = s.now()
}

// finish applies the terminal transition and releases the symbol.
func (s *Submitter) finish(id string, fn func(req *domain.ExecutionRequest)) domain.ExecutionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	req := s.byID[id]
	fn(req)
	now := s.now()
	req.UpdatedAt = now
	req.CompletedAt = now
	if s.inFlight[req.Symbol] == id {
		delete(s.inFlight, req.Symbol)
	}
	s.trimLocked()
	return *req
}
