package ledger

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"solana-alpha-engine/internal/domain"
	"solana-alpha-engine/internal/observability"
)

// RecorderOptions configures a Recorder.
type RecorderOptions struct {
	Ledger       Ledger
	Buffer       int           // queue capacity, default 256
	WriteTimeout time.Duration // per-record timeout, default 5s
	Logger       logrus.FieldLogger
}

// Recorder writes trade records to a ledger in the background.
// Failures are logged and counted; nothing is rolled back.
type Recorder struct {
	ledger  Ledger
	queue   chan domain.TradeRecord
	timeout time.Duration
	logger  logrus.FieldLogger
}

// NewRecorder creates a Recorder. Call Run to start writing.
func NewRecorder(opts RecorderOptions) *Recorder {
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = 256
	}
	timeout := opts.WriteTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Recorder{
		ledger:  opts.Ledger,
		queue:   make(chan domain.TradeRecord, buffer),
		timeout: timeout,
		logger:  logger.WithField("component", "ledger"),
	}
}

// Enqueue queues rec without blocking. Returns false if the queue is full.
func (r *Recorder) Enqueue(rec domain.TradeRecord) bool {
	select {
	case r.queue <- rec:
		observability.UpdateLedgerQueue(len(r.queue))
		return true
	default:
		observability.RecordLedgerFailure()
		return false
	}
}

// Run writes queued records until ctx is cancelled, then writes what is left.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case rec := <-r.queue:
					r.write(context.WithoutCancel(ctx), rec)
				default:
					observability.UpdateLedgerQueue(0)
					return
				}
			}
		case rec := <-r.queue:
			r.write(ctx, rec)
			observability.UpdateLedgerQueue(len(r.queue))
		}
	}
}

func (r *Recorder) write(ctx context.Context, rec domain.TradeRecord) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.ledger.RecordTrade(ctx, rec); err != nil {
		observability.RecordLedgerFailure()
		r.logger.WithError(err).WithFields(logrus.Fields{
			"trade_id":     rec.TradeID,
			"execution_id": rec.ExecutionID,
			"symbol":       rec.Symbol,
		}).Error("record trade failed")
		return
	}
	r.logger.WithFields(logrus.Fields{
		"trade_id":  rec.TradeID,
		"symbol":    rec.Symbol,
		"direction": rec.Direction,
	}).Debug("trade recorded")
}
