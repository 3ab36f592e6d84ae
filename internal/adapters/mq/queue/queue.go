// Package queue holds sale messages between ingress and the workers.
//
// Delivery is at-least-once: a message a worker fails to process is handed
// back through Redeliver and comes round again after a delay, until its
// delivery budget is spent. Every message the queue gives up on is passed to
// the drop handler.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/okian/axiesales/internal/domain/model"
	"github.com/okian/axiesales/pkg/logger"
	"github.com/okian/axiesales/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity   = 10000
	defaultMaxDeliveries   = 5
	defaultRedeliveryDelay = 30 * time.Second
)

// Message is the payload flowing through the queue.
type Message = model.SaleMessage

// Queue provides non-blocking enqueue, channel-based dequeue and delayed
// redelivery.
type Queue interface {
	// Enqueue adds a message to the queue. It returns ErrFull when the queue
	// is at capacity and ErrStopped once the queue is closed.
	Enqueue(ctx context.Context, m Message) error

	// Dequeue returns the channel consumers receive from. A message leaves
	// the queue only when a consumer receives it. The channel is closed once
	// the queue is closed and drained.
	Dequeue(ctx context.Context) <-chan Message

	// Redeliver schedules a failed message for another attempt. It returns
	// false when the message was dead-lettered or the queue is closed.
	Redeliver(m Message) bool

	// Len returns the current number of queued messages.
	Len(ctx context.Context) int

	// Close stops accepting messages. Pending redeliveries are dropped.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	messages        chan Message
	capacity        int
	maxDeliveries   int
	redeliveryDelay time.Duration

	mu     sync.RWMutex
	closed bool
	done   chan struct{}

	timersMu sync.Mutex
	timers   map[*time.Timer]Message

	onDrop func(Message)
	logger logger.Logger
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity:        defaultQueueCapacity,
		maxDeliveries:   defaultMaxDeliveries,
		redeliveryDelay: defaultRedeliveryDelay,
		done:            make(chan struct{}),
		timers:          make(map[*time.Timer]Message),
		onDrop:          func(Message) {},
		logger:          logger.Get().Named("queue"),
	}

	for _, opt := range opts {
		opt(q)
	}

	q.messages = make(chan Message, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)

	return q
}

// Enqueue adds a message to the queue. A zero Attempt is treated as the
// first delivery.
func (q *InMemoryQueue) Enqueue(ctx context.Context, m Message) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		return ErrStopped
	}
	if m.Attempt < 1 {
		m.Attempt = 1
	}

	select {
	case <-ctx.Done():
		metrics.RecordQueueEnqueueError()
		return ctx.Err()
	default:
	}

	select {
	case q.messages <- m:
		metrics.RecordQueueEnqueue()
		metrics.UpdateQueueSize(len(q.messages))
		return nil
	default:
		metrics.RecordQueueEnqueueError()
		return ErrFull
	}
}

// Dequeue returns the buffered channel itself, shared by all consumers.
func (q *InMemoryQueue) Dequeue(_ context.Context) <-chan Message {
	return q.messages
}

// Redeliver puts m back on the queue after the redelivery delay with its
// attempt counter advanced. A message that has used up its deliveries is
// dead-lettered.
func (q *InMemoryQueue) Redeliver(m Message) bool {
	if m.Attempt >= q.maxDeliveries {
		metrics.RecordDeadLetter()
		q.logger.Error(context.Background(), "message exhausted its deliveries; dead-lettering",
			logger.String("tx_hash", m.TransactionHash),
			logger.Int64("axie_id", m.AxieID),
			logger.Int("attempt", m.Attempt),
		)
		q.onDrop(m)
		return false
	}

	m.Attempt++

	q.timersMu.Lock()
	select {
	case <-q.done:
		q.timersMu.Unlock()
		q.logger.Warn(context.Background(), "queue closed; dropping redelivery",
			logger.String("tx_hash", m.TransactionHash),
			logger.Int64("axie_id", m.AxieID),
		)
		q.onDrop(m)
		return false
	default:
	}
	var t *time.Timer
	t = time.AfterFunc(q.redeliveryDelay, func() {
		q.timersMu.Lock()
		delete(q.timers, t)
		q.timersMu.Unlock()
		q.push(m)
	})
	q.timers[t] = m
	q.timersMu.Unlock()

	metrics.RecordRedelivery()
	return true
}

// push blocks until m is queued or the queue closes.
func (q *InMemoryQueue) push(m Message) {
	if !q.tryPush(m) {
		q.logger.Warn(context.Background(), "queue closed before redelivery",
			logger.String("tx_hash", m.TransactionHash),
			logger.Int64("axie_id", m.AxieID),
		)
		q.onDrop(m)
	}
}

func (q *InMemoryQueue) tryPush(m Message) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false
	}
	select {
	case q.messages <- m:
		metrics.UpdateQueueSize(len(q.messages))
		return true
	case <-q.done:
		return false
	}
}

// Len returns the current number of queued messages.
func (q *InMemoryQueue) Len(_ context.Context) int {
	size := len(q.messages)
	metrics.UpdateQueueSize(size)
	return size
}

// Pending returns the number of scheduled redeliveries.
func (q *InMemoryQueue) Pending() int {
	q.timersMu.Lock()
	defer q.timersMu.Unlock()
	return len(q.timers)
}

// Close gracefully shuts down the queue. Messages already queued can still
// be dequeued.
func (q *InMemoryQueue) Close() error {
	q.timersMu.Lock()
	select {
	case <-q.done:
		q.timersMu.Unlock()
		return nil
	default:
	}
	close(q.done)
	var dropped []Message
	for t, m := range q.timers {
		if t.Stop() {
			dropped = append(dropped, m)
		}
		delete(q.timers, t)
	}
	q.timersMu.Unlock()

	// Blocked redeliveries observe done and release the read lock.
	q.mu.Lock()
	close(q.messages)
	q.closed = true
	q.mu.Unlock()

	if len(dropped) > 0 {
		q.logger.Warn(context.Background(), "dropped pending redeliveries on close", logger.Int("count", len(dropped)))
	}
	for _, m := range dropped {
		q.onDrop(m)
	}
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
