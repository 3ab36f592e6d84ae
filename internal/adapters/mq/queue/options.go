package queue

import (
	"time"

	"github.com/okian/axiesales/pkg/logger"
)

// Option applies a configuration option to the InMemoryQueue.
type Option func(*InMemoryQueue)

// WithCapacity sets the maximum capacity of the queue.
func WithCapacity(capacity int) Option {
	return func(q *InMemoryQueue) {
		if capacity > 0 {
			q.capacity = capacity
		}
	}
}

// WithMaxDeliveries sets how many times a message is delivered before it is
// dead-lettered.
func WithMaxDeliveries(n int) Option {
	return func(q *InMemoryQueue) {
		if n > 0 {
			q.maxDeliveries = n
		}
	}
}

// WithRedeliveryDelay sets how long a failed message waits before it is
// queued again.
func WithRedeliveryDelay(d time.Duration) Option {
	return func(q *InMemoryQueue) {
		if d >= 0 {
			q.redeliveryDelay = d
		}
	}
}

// WithLogger sets a custom logger for the queue.
func WithLogger(l logger.Logger) Option {
	return func(q *InMemoryQueue) {
		if l != nil {
			q.logger = l
		}
	}
}

// WithDropHandler registers fn to be called with every message the queue
// gives up on: dead-lettered, or pending redelivery when the queue closes.
// fn must not call back into the queue.
func WithDropHandler(fn func(Message)) Option {
	return func(q *InMemoryQueue) {
		if fn != nil {
			q.onDrop = fn
		}
	}
}
