// Package observability provides Prometheus metrics and OpenTelemetry tracing.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Breaker state gauge values.
const (
	BreakerClosed   = 0
	BreakerOpen     = 1
	BreakerHalfOpen = 2
)

// Metrics holds all Prometheus metrics for the engine.
type Metrics struct {
	// Scan metrics
	ScansTotal        *prometheus.CounterVec
	ScanDuration      prometheus.Histogram
	CandidatesTotal   *prometheus.CounterVec
	SourceErrors      *prometheus.CounterVec
	SourceLatency     *prometheus.HistogramVec
	SourceBreaker     *prometheus.GaugeVec
	LastScanTimestamp prometheus.Gauge

	// Sizing metrics
	SizingDecisions *prometheus.CounterVec

	// Execution metrics
	ExecutionsTotal  *prometheus.CounterVec
	ExecutionLatency *prometheus.HistogramVec
	ExecutionRetries *prometheus.CounterVec

	// Position metrics
	OpenPositions  prometheus.Gauge
	StalePositions prometheus.Gauge
	UnrealizedPnL  prometheus.Gauge
	Balance        prometheus.Gauge
	ExitSignals    *prometheus.CounterVec

	// RPC metrics
	RPCCallLatency *prometheus.HistogramVec
	RPCErrors      *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Ledger and event metrics
	LedgerFailures   prometheus.Counter
	LedgerQueueDepth prometheus.Gauge
	EventsDropped    prometheus.Counter

	// Sample archive metrics
	SamplesArchived prometheus.Counter
	SamplesDropped  prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "alpha_engine"
	}

	return &Metrics{
		// Scan metrics
		ScansTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signal",
			Name:      "scans_total",
			Help:      "Total number of scan cycles by result",
		}, []string{"result"}),
		ScanDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "signal",
			Name:      "scan_duration_seconds",
			Help:      "Scan cycle duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		CandidatesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signal",
			Name:      "candidates_total",
			Help:      "Total number of quotes seen by outcome",
		}, []string{"outcome"}),
		SourceErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signal",
			Name:      "source_errors_total",
			Help:      "Total number of market-data source failures",
		}, []string{"source"}),
		SourceLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "signal",
			Name:      "source_latency_seconds",
			Help:      "Market-data source call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		SourceBreaker: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "signal",
			Name:      "source_breaker_state",
			Help:      "Circuit breaker state per source (0 closed, 1 open, 2 half-open)",
		}, []string{"source"}),
		LastScanTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_scan_timestamp",
			Help:      "Unix timestamp of the last completed scan",
		}),

		// Sizing metrics
		SizingDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sizing",
			Name:      "decisions_total",
			Help:      "Total number of sizing decisions by outcome",
		}, []string{"outcome"}),

		// Execution metrics
		ExecutionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "requests_total",
			Help:      "Total number of finished execution requests",
		}, []string{"direction", "status", "router"}),
		ExecutionLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "latency_seconds",
			Help:      "Time from submission to terminal status in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"direction"}),
		ExecutionRetries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "retries_total",
			Help:      "Total number of router attempt retries",
		}, []string{"router"}),

		// Position metrics
		OpenPositions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "open",
			Help:      "Number of active or exiting positions",
		}),
		StalePositions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "stale",
			Help:      "Number of positions whose last price refresh failed",
		}),
		UnrealizedPnL: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "unrealized_pnl",
			Help:      "Aggregate unrealized PnL of open positions",
		}),
		Balance: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "balance",
			Help:      "Last capital balance read from the ledger",
		}),
		ExitSignals: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "exit",
			Name:      "signals_total",
			Help:      "Total number of combined non-hold exit signals",
		}, []string{"action", "urgency"}),

		// RPC metrics
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		RPCErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_errors_total",
			Help:      "Total number of failed Solana RPC calls",
		}, []string{"method"}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Ledger and event metrics
		LedgerFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "record_failures_total",
			Help:      "Total number of trade records that could not be persisted",
		}),
		LedgerQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "queue_depth",
			Help:      "Trade records waiting to be persisted",
		}),
		EventsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "events_dropped_total",
			Help:      "Lifecycle events dropped because a subscriber was slow",
		}),

		// Sample archive metrics
		SamplesArchived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "samples_archived_total",
			Help:      "Price samples written to the archive",
		}),
		SamplesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "samples_dropped_total",
			Help:      "Price samples dropped because the archive queue was full or the write failed",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordScan records a finished scan cycle.
func RecordScan(result string, seconds float64) {
	DefaultMetrics.ScansTotal.WithLabelValues(result).Inc()
	DefaultMetrics.ScanDuration.Observe(seconds)
}

// RecordCandidates adds n quotes with the given outcome.
func RecordCandidates(outcome string, n int) {
	if n <= 0 {
		return
	}
	DefaultMetrics.CandidatesTotal.WithLabelValues(outcome).Add(float64(n))
}

// RecordSourceCall records latency and failure of one source call.
func RecordSourceCall(source string, seconds float64, err error) {
	DefaultMetrics.SourceLatency.WithLabelValues(source).Observe(seconds)
	if err != nil {
		DefaultMetrics.SourceErrors.WithLabelValues(source).Inc()
	}
}

// SetSourceBreaker updates the breaker state gauge of a source.
func SetSourceBreaker(source string, state int) {
	DefaultMetrics.SourceBreaker.WithLabelValues(source).Set(float64(state))
}

// UpdateLastScan sets the last scan timestamp gauge.
func UpdateLastScan(unix int64) {
	DefaultMetrics.LastScanTimestamp.Set(float64(unix))
}

// RecordSizingDecision counts a sizing outcome ("approved" or a reject reason).
func RecordSizingDecision(outcome string) {
	DefaultMetrics.SizingDecisions.WithLabelValues(outcome).Inc()
}

// RecordExecution records a terminal execution request.
func RecordExecution(direction, status, router string, seconds float64) {
	DefaultMetrics.ExecutionsTotal.WithLabelValues(direction, status, router).Inc()
	DefaultMetrics.ExecutionLatency.WithLabelValues(direction).Observe(seconds)
}

// RecordExecutionRetry counts a retried router attempt.
func RecordExecutionRetry(router string) {
	DefaultMetrics.ExecutionRetries.WithLabelValues(router).Inc()
}

// UpdatePositions sets the position gauges.
func UpdatePositions(open, stale int, unrealizedPnL float64) {
	DefaultMetrics.OpenPositions.Set(float64(open))
	DefaultMetrics.StalePositions.Set(float64(stale))
	DefaultMetrics.UnrealizedPnL.Set(unrealizedPnL)
}

// UpdateBalance sets the balance gauge.
func UpdateBalance(balance float64) {
	DefaultMetrics.Balance.Set(balance)
}

// RecordExitSignal counts a combined exit signal.
func RecordExitSignal(action, urgency string) {
	DefaultMetrics.ExitSignals.WithLabelValues(action, urgency).Inc()
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordRPCError counts a failed RPC call.
func RecordRPCError(method string) {
	DefaultMetrics.RPCErrors.WithLabelValues(method).Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordLedgerFailure counts a trade record that failed to persist.
func RecordLedgerFailure() {
	DefaultMetrics.LedgerFailures.Inc()
}

// UpdateLedgerQueue sets the ledger queue depth gauge.
func UpdateLedgerQueue(depth int) {
	DefaultMetrics.LedgerQueueDepth.Set(float64(depth))
}

// RecordEventDropped counts a dropped lifecycle event.
func RecordEventDropped() {
	DefaultMetrics.EventsDropped.Inc()
}

// RecordSamplesArchived counts archived price samples.
func RecordSamplesArchived(n int) {
	DefaultMetrics.SamplesArchived.Add(float64(n))
}

// RecordSamplesDropped counts dropped price samples.
func RecordSamplesDropped(n int) {
	DefaultMetrics.SamplesDropped.Add(float64(n))
}
