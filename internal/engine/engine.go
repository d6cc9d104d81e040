// Package engine runs the trading loops: scan and buy, monitor and exit.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"solana-alpha-engine/internal/domain"
	"solana-alpha-engine/internal/execution"
	"solana-alpha-engine/internal/ledger"
	"solana-alpha-engine/internal/monitor"
	"solana-alpha-engine/internal/position"
	"solana-alpha-engine/internal/signal"
	"solana-alpha-engine/internal/sizing"
	"solana-alpha-engine/internal/tier"
)

// Lifecycle errors
var (
	// ErrAlreadyRunning is returned by Start on a running engine.
	ErrAlreadyRunning = errors.New("engine already running")

	// ErrNotRunning is returned by Stop on a stopped engine.
	ErrNotRunning = errors.New("engine not running")

	// ErrInvalidOptions is returned by New when a required dependency is missing.
	ErrInvalidOptions = errors.New("invalid engine options")
)

// Defaults.
const (
	DefaultScanInterval     = 30 * time.Second
	DefaultMonitorInterval  = 5 * time.Second
	DefaultBalanceTimeout   = 5 * time.Second
	DefaultMaxOpenPositions = 10
)

// Scanner produces ranked candidates. Implemented by *signal.Aggregator.
type Scanner interface {
	Scan(ctx context.Context) signal.ScanResult
}

// Holdings reports the token quantity actually held, used to cap sells.
// Implemented by *ledger.ChainLedger.
type Holdings interface {
	TokenBalance(ctx context.Context, mint string) (float64, error)
}

// Options configures an Engine.
type Options struct {
	Scanner Scanner
	Policy  *sizing.Policy // default sizing.NewPolicy(sizing.DefaultConfig())
	Tiers   *tier.Selector
	Ledger  ledger.Ledger
	// Holdings caps sell quantities at the on-chain balance. Nil trusts the position table.
	Holdings Holdings

	// Execution configures the submitter. Table and OnComplete are owned by the engine.
	Execution execution.Options
	// Monitor configures position monitoring. Table and Tier are owned by the engine.
	Monitor monitor.Options

	ScanInterval     time.Duration
	MonitorInterval  time.Duration
	BalanceTimeout   time.Duration
	MaxOpenPositions int
	TradeOnFallback  bool // open positions from cached or seed candidates

	Logger logrus.FieldLogger
	Now    func() time.Time
}

// Engine owns the position table and runs the scan and monitor loops.
type Engine struct {
	table     *position.Table
	scanner   Scanner
	policy    *sizing.Policy
	tiers     *tier.Selector
	ledger    ledger.Ledger
	holdings  Holdings
	submitter *execution.Submitter
	monitor   *monitor.Monitor
	events    *bus

	scanInterval     time.Duration
	monitorInterval  time.Duration
	balanceTimeout   time.Duration
	maxOpenPositions int
	tradeOnFallback  bool

	logger logrus.FieldLogger
	now    func() time.Time

	// lifecycle
	runMu     sync.Mutex
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startedAt time.Time

	// cycleMu serializes monitor cycles and emergency exits.
	cycleMu sync.Mutex

	mu          sync.RWMutex
	balance     float64
	balanceErr  error
	activeTier  domain.StrategyTier
	lastScan    signal.ScanResult
	lastScanned bool
	pendingBuys map[string]float64 // execution id -> committed capital
}

// New creates an Engine.
func New(opts Options) (*Engine, error) {
	if opts.Scanner == nil {
		return nil, fmt.Errorf("%w: scanner required", ErrInvalidOptions)
	}
	if opts.Tiers == nil {
		return nil, fmt.Errorf("%w: tier selector required", ErrInvalidOptions)
	}
	if opts.Ledger == nil {
		return nil, fmt.Errorf("%w: ledger required", ErrInvalidOptions)
	}
	if opts.Execution.Primary == nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOptions, execution.ErrNoRouter)
	}
	if opts.Monitor.Feed == nil {
		return nil, fmt.Errorf("%w: price feed required", ErrInvalidOptions)
	}

	e := &Engine{
		table:            position.NewTable(),
		scanner:          opts.Scanner,
		policy:           opts.Policy,
		tiers:            opts.Tiers,
		ledger:           opts.Ledger,
		holdings:         opts.Holdings,
		events:           newBus(),
		scanInterval:     opts.ScanInterval,
		monitorInterval:  opts.MonitorInterval,
		balanceTimeout:   opts.BalanceTimeout,
		maxOpenPositions: opts.MaxOpenPositions,
		tradeOnFallback:  opts.TradeOnFallback,
		logger:           opts.Logger,
		now:              opts.Now,
		pendingBuys:      make(map[string]float64),
	}
	if e.policy == nil {
		e.policy = sizing.NewPolicy(sizing.DefaultConfig())
	}
	if e.scanInterval <= 0 {
		e.scanInterval = DefaultScanInterval
	}
	if e.monitorInterval <= 0 {
		e.monitorInterval = DefaultMonitorInterval
	}
	if e.balanceTimeout <= 0 {
		e.balanceTimeout = DefaultBalanceTimeout
	}
	if e.maxOpenPositions <= 0 {
		e.maxOpenPositions = DefaultMaxOpenPositions
	}
	if e.logger == nil {
		e.logger = logrus.StandardLogger()
	}
	if e.now == nil {
		e.now = time.Now
	}
	e.activeTier = e.tiers.ActiveTier(0)

	execOpts := opts.Execution
	execOpts.Table = e.table
	userComplete := execOpts.OnComplete
	execOpts.OnComplete = func(o execution.Outcome) {
		e.handleOutcome(o)
		if userComplete != nil {
			userComplete(o)
		}
	}
	if execOpts.Logger == nil {
		execOpts.Logger = e.logger
	}
	if execOpts.Now == nil {
		execOpts.Now = e.now
	}
	e.submitter = execution.NewSubmitter(execOpts)

	monOpts := opts.Monitor
	monOpts.Table = e.table
	monOpts.Tier = e.tier
	if monOpts.Logger == nil {
		monOpts.Logger = e.logger
	}
	if monOpts.Now == nil {
		monOpts.Now = e.now
	}
	e.monitor = monitor.New(monOpts)

	e.logger = e.logger.WithField("component", "engine")
	return e, nil
}

// Start launches the scan and monitor loops. They run until Stop is called or ctx is cancelled.
func (e *Engine) Start(ctx context.Context) error {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.running {
		return ErrAlreadyRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.running = true
	e.startedAt = e.now()

	e.wg.Add(2)
	go func() {
		defer e.wg.Done()
		e.runLoop(loopCtx, "scan", e.scanInterval, func(ctx context.Context) { e.ScanOnce(ctx) })
	}()
	go func() {
		defer e.wg.Done()
		e.runLoop(loopCtx, "monitor", e.monitorInterval, func(ctx context.Context) { e.MonitorOnce(ctx) })
	}()

	e.logger.WithFields(logrus.Fields{
		"scan_interval":    e.scanInterval,
		"monitor_interval": e.monitorInterval,
	}).Info("engine started")
	e.events.publish(Event{Type: EventEngineStarted, At: e.startedAt})
	return nil
}

// Stop cancels the loops and waits for the current cycles to return.
// Pending executions keep running until they reach a terminal status.
func (e *Engine) Stop() error {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if !e.running {
		return ErrNotRunning
	}

	e.cancel()
	e.wg.Wait()
	e.running = false
	e.cancel = nil

	e.logger.Info("engine stopped")
	e.events.publish(Event{Type: EventEngineStopped, At: e.now()})
	return nil
}

// Running reports whether the loops are active.
func (e *Engine) Running() bool {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	return e.running
}

// Wait blocks until every submitted execution has finished.
func (e *Engine) Wait() {
	e.submitter.Wait()
}

// Subscribe returns a channel of lifecycle events and a func that ends the subscription.
// Events are dropped for a subscriber whose buffer is full.
func (e *Engine) Subscribe(buffer int) (<-chan Event, func()) {
	return e.events.subscribe(buffer)
}

// runLoop runs fn immediately and then on every tick until ctx is done.
func (e *Engine) runLoop(ctx context.Context, name string, interval time.Duration, fn func(ctx context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log := e.logger.WithField("loop", name)
	log.Debug("loop started")
	for {
		fn(ctx)

		select {
		case <-ctx.Done():
			log.Debug("loop stopped")
			return
		case <-ticker.C:
		}
	}
}

// tier returns the tier selected by the last balance read.
func (e *Engine) tier() domain.StrategyTier {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.activeTier
}
