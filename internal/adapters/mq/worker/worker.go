// Package worker runs sale reconstructions off the queue with a fixed worker
// budget.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/axiesales/internal/adapters/mq/queue"
	"github.com/okian/axiesales/internal/domain/reconstruct"
	"github.com/okian/axiesales/pkg/logger"
	"github.com/okian/axiesales/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerCount  = 5
	poolShutdownTimeout = 30 * time.Second
)

// Message is what workers read off the queue.
type Message = queue.Message

// Processor reconstructs and stores one sale.
type Processor interface {
	Process(ctx context.Context, m Message) (reconstruct.Outcome, error)
}

// Queue defines how workers receive messages and hand back failures.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Message
	Redeliver(m Message) bool
}

// Worker processes messages from a queue.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue closes.
	Run(ctx context.Context)

	// Shutdown stops the worker after its current message.
	Shutdown(ctx context.Context) error
}

// Counters is a snapshot of pool activity.
type Counters struct {
	Processed  int64
	Failed     int64
	Duplicates int64
	Skipped    int64
}

type counters struct {
	processed  atomic.Int64
	failed     atomic.Int64
	duplicates atomic.Int64
	skipped    atomic.Int64
	active     atomic.Int64
}

// InMemoryWorker implements Worker for processing sale messages.
type InMemoryWorker struct {
	queue     Queue
	processor Processor
	name      string
	stats     *counters

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, processor Processor, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     q,
		processor: processor,
		name:      "worker",
		stats:     &counters{},
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		logger:    logger.Get().Named("worker"),
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}

	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	messages := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case m, ok := <-messages:
			if !ok {
				return
			}
			if err := w.processMessage(ctx, m); err != nil {
				w.logger.Error(ctx, "error processing message", logger.Error(err))
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// processMessage runs one reconstruction. A failed message is not
// acknowledged; it goes back to the queue for another delivery.
func (w *InMemoryWorker) processMessage(ctx context.Context, m Message) error {
	start := time.Now()
	metrics.RecordQueueDequeue()
	metrics.UpdateWorkerActiveCount(int(w.stats.active.Add(1)))
	defer func() {
		metrics.UpdateWorkerActiveCount(int(w.stats.active.Add(-1)))
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	outcome, err := w.processor.Process(ctx, m)
	if err != nil {
		w.stats.failed.Add(1)
		metrics.RecordWorkerError()
		if w.queue.Redeliver(m) {
			w.logger.Warn(ctx, "sale scheduled for redelivery",
				logger.String("tx_hash", m.TransactionHash),
				logger.Int64("axie_id", m.AxieID),
				logger.Int("attempt", m.Attempt),
			)
		}
		return fmt.Errorf("process sale %s: %w", m.Key(), err)
	}

	w.stats.processed.Add(1)
	switch outcome {
	case reconstruct.OutcomeDuplicate:
		w.stats.duplicates.Add(1)
	case reconstruct.OutcomeSkippedImmature:
		w.stats.skipped.Add(1)
	}
	return nil
}

// Pool manages multiple workers sharing one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	stats   *counters

	logger logger.Logger
}

// NewPool creates a new worker pool. A non-positive workerCount falls back
// to the default budget.
func NewPool(workerCount int, q Queue, processor Processor) *Pool {
	if workerCount < 1 {
		workerCount = defaultWorkerCount
	}

	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		stats:   &counters{},
		logger:  logger.Get().Named("worker-pool"),
	}

	for i := 0; i < workerCount; i++ {
		w := NewInMemoryWorker(q, processor, WithName("worker-"+strconv.Itoa(i)))
		w.stats = pool.stats
		pool.workers[i] = w
	}

	metrics.UpdateWorkerCount(workerCount)
	metrics.UpdateWorkerActiveCount(0)

	return pool
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	p.logger.Info(ctx, "worker pool started", logger.Int("workers", len(p.workers)))
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Counters returns the pool's processing counters.
func (p *Pool) Counters() Counters {
	return Counters{
		Processed:  p.stats.processed.Load(),
		Failed:     p.stats.failed.Load(),
		Duplicates: p.stats.duplicates.Load(),
		Skipped:    p.stats.skipped.Load(),
	}
}

// Shutdown closes the queue and waits for the workers to drain it. Workers
// still busy when ctx expires are told to stop after their current message.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut int
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			timedOut++
			p.logger.Warn(ctx, "worker did not drain in time", logger.Int("worker_id", i))
			w.shutdownOnce.Do(func() { close(w.shutdown) })
		}
	}
	if timedOut > 0 {
		return fmt.Errorf("%d workers did not drain: %w", timedOut, shutdownCtx.Err())
	}
	return nil
}
