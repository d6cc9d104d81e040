package monitor

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"solana-alpha-engine/internal/domain"
	"solana-alpha-engine/internal/observability"
	"solana-alpha-engine/internal/storage"
)

// ArchiverOptions configures an Archiver.
type ArchiverOptions struct {
	Store         storage.PriceSampleStore
	Buffer        int           // queue capacity, default 1024
	BatchSize     int           // flush when this many samples are queued, default 100
	FlushInterval time.Duration // flush at least this often, default 5s
	WriteTimeout  time.Duration // per-batch write timeout, default 10s
	Logger        logrus.FieldLogger
}

// Archiver writes price samples to a store in the background.
// Enqueue never blocks: samples are dropped when the queue is full.
type Archiver struct {
	store         storage.PriceSampleStore
	queue         chan *domain.PriceSample
	batchSize     int
	flushInterval time.Duration
	writeTimeout  time.Duration
	logger        logrus.FieldLogger
}

// NewArchiver creates an Archiver. Call Run to start writing.
func NewArchiver(opts ArchiverOptions) *Archiver {
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = 1024
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	flushInterval := opts.FlushInterval
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Archiver{
		store:         opts.Store,
		queue:         make(chan *domain.PriceSample, buffer),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		writeTimeout:  writeTimeout,
		logger:        logger.WithField("component", "archiver"),
	}
}

// Enqueue queues a sample. Returns false if it was dropped.
func (a *Archiver) Enqueue(s domain.PriceSample) bool {
	select {
	case a.queue <- &s:
		return true
	default:
		observability.RecordSamplesDropped(1)
		return false
	}
}

// Run writes queued samples until ctx is cancelled, then flushes what is left.
func (a *Archiver) Run(ctx context.Context) {
	ticker := time.NewTicker(a.flushInterval)
	defer ticker.Stop()

	batch := make([]*domain.PriceSample, 0, a.batchSize)
	for {
		select {
		case <-ctx.Done():
			batch = a.drain(batch)
			a.flush(context.Background(), batch)
			return
		case s := <-a.queue:
			batch = append(batch, s)
			if len(batch) >= a.batchSize {
				a.flush(ctx, batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			a.flush(ctx, batch)
			batch = batch[:0]
		}
	}
}

func (a *Archiver) drain(batch []*domain.PriceSample) []*domain.PriceSample {
	for {
		select {
		case s := <-a.queue:
			batch = append(batch, s)
		default:
			return batch
		}
	}
}

func (a *Archiver) flush(ctx context.Context, batch []*domain.PriceSample) {
	if len(batch) == 0 {
		return
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.writeTimeout)
	defer cancel()

	if err := a.store.InsertBulk(writeCtx, batch); err != nil {
		observability.RecordSamplesDropped(len(batch))
		a.logger.WithError(err).WithField("samples", len(batch)).Warn("archive price samples failed")
		return
	}
	observability.RecordSamplesArchived(len(batch))
}
