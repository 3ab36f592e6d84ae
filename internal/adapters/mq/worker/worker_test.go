package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	queue "github.com/okian/axiesales/internal/adapters/mq/queue"
	worker "github.com/okian/axiesales/internal/adapters/mq/worker"
	"github.com/okian/axiesales/internal/domain/reconstruct"
	logging "github.com/okian/axiesales/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

// Mock implementations for testing.
type mockQueue struct {
	messages    chan queue.Message
	mu          sync.Mutex
	redelivered []queue.Message
	accept      bool
}

func newMockQueue() *mockQueue {
	return &mockQueue{messages: make(chan queue.Message, 200), accept: true}
}

func (mq *mockQueue) Dequeue(ctx context.Context) <-chan queue.Message {
	return mq.messages
}

func (mq *mockQueue) Redeliver(m queue.Message) bool {
	mq.mu.Lock()
	defer mq.mu.Unlock()
	mq.redelivered = append(mq.redelivered, m)
	return mq.accept
}

func (mq *mockQueue) Close() error {
	close(mq.messages)
	return nil
}

func (mq *mockQueue) add(m queue.Message) {
	mq.messages <- m
}

func (mq *mockQueue) redeliveries() []queue.Message {
	mq.mu.Lock()
	defer mq.mu.Unlock()
	return append([]queue.Message(nil), mq.redelivered...)
}

type mockProcessor struct {
	mu       sync.Mutex
	outcomes map[string]reconstruct.Outcome
	errors   map[string]error
	done     map[string]int
	delay    time.Duration
}

func newMockProcessor() *mockProcessor {
	return &mockProcessor{
		outcomes: make(map[string]reconstruct.Outcome),
		errors:   make(map[string]error),
		done:     make(map[string]int),
	}
}

func (mp *mockProcessor) Process(ctx context.Context, m queue.Message) (reconstruct.Outcome, error) {
	if mp.delay > 0 {
		time.Sleep(mp.delay)
	}
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.done[m.Key()]++
	if err, ok := mp.errors[m.Key()]; ok {
		return "", err
	}
	if o, ok := mp.outcomes[m.Key()]; ok {
		return o, nil
	}
	return reconstruct.OutcomeStored, nil
}

func (mp *mockProcessor) setError(key string, err error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.errors[key] = err
}

func (mp *mockProcessor) setOutcome(key string, o reconstruct.Outcome) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.outcomes[key] = o
}

func (mp *mockProcessor) calls(key string) int {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.done[key]
}

func (mp *mockProcessor) total() int {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	n := 0
	for _, c := range mp.done {
		n += c
	}
	return n
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func msg(hash string, id int64) queue.Message {
	return queue.Message{TransactionHash: hash, AxieID: id, SaleDate: 1700000000, Attempt: 1}
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a new InMemoryWorker", t, func() {
		_ = logging.Init()

		q := newMockQueue()
		processor := newMockProcessor()

		convey.Convey("When creating a worker with custom options", func() {
			w := worker.NewInMemoryWorker(q, processor,
				worker.WithName("test-worker"),
				worker.WithLogger(logging.Get()),
			)

			convey.Convey("Then it should be created successfully", func() {
				convey.So(w, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When running a worker", func() {
			w := worker.NewInMemoryWorker(q, processor)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			go w.Run(ctx)

			convey.Convey("And when a sale is processed", func() {
				q.add(msg("0xa", 1))

				convey.Convey("Then the processor runs once and nothing is redelivered", func() {
					convey.So(eventually(func() bool { return processor.calls("0xa:1") == 1 }), convey.ShouldBeTrue)
					convey.So(q.redeliveries(), convey.ShouldBeEmpty)
				})
			})

			convey.Convey("And when processing fails", func() {
				processor.setError("0xb:2", errors.New("provider down"))
				q.add(msg("0xb", 2))

				convey.Convey("Then the message is handed back for redelivery", func() {
					convey.So(eventually(func() bool { return len(q.redeliveries()) == 1 }), convey.ShouldBeTrue)
					convey.So(q.redeliveries()[0].Key(), convey.ShouldEqual, "0xb:2")
					convey.So(q.redeliveries()[0].Attempt, convey.ShouldEqual, 1)
				})
			})

			convey.Convey("And when shutting down", func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
				defer shutdownCancel()

				err := w.Shutdown(shutdownCtx)

				convey.Convey("Then it should shutdown gracefully", func() {
					convey.So(err, convey.ShouldBeNil)
				})
			})
		})

		convey.Convey("When the queue channel is closed", func() {
			w := worker.NewInMemoryWorker(q, processor)
			stopped := make(chan struct{})
			go func() {
				w.Run(context.Background())
				close(stopped)
			}()
			_ = q.Close()

			convey.Convey("Then the worker stops", func() {
				select {
				case <-stopped:
				case <-time.After(time.Second):
					t.Fatal("worker did not stop after queue close")
				}
			})
		})

		convey.Convey("When the context is canceled", func() {
			w := worker.NewInMemoryWorker(q, processor)
			ctx, cancel := context.WithCancel(context.Background())
			stopped := make(chan struct{})
			go func() {
				w.Run(ctx)
				close(stopped)
			}()
			cancel()

			convey.Convey("Then the worker stops", func() {
				select {
				case <-stopped:
				case <-time.After(time.Second):
					t.Fatal("worker did not stop after cancel")
				}
			})
		})
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a new WorkerPool", t, func() {
		_ = logging.Init()

		q := newMockQueue()
		processor := newMockProcessor()

		convey.Convey("When creating a worker pool with default count", func() {
			pool := worker.NewPool(0, q, processor)

			convey.Convey("Then it uses the default budget", func() {
				convey.So(pool.Size(), convey.ShouldEqual, 5)
			})
		})

		convey.Convey("When starting a worker pool", func() {
			pool := worker.NewPool(2, q, processor)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			pool.Start(ctx)

			convey.Convey("And when processing a mix of outcomes", func() {
				processor.setOutcome("0x2:2", reconstruct.OutcomeDuplicate)
				processor.setOutcome("0x3:3", reconstruct.OutcomeSkippedImmature)
				processor.setError("0x4:4", errors.New("boom"))
				for i := int64(1); i <= 4; i++ {
					q.add(msg(fmt.Sprintf("0x%d", i), i))
				}

				convey.Convey("Then the counters reflect each outcome", func() {
					convey.So(eventually(func() bool { return processor.total() == 4 }), convey.ShouldBeTrue)
					convey.So(eventually(func() bool {
						c := pool.Counters()
						return c.Processed+c.Failed == 4
					}), convey.ShouldBeTrue)
					c := pool.Counters()
					convey.So(c.Processed, convey.ShouldEqual, 3)
					convey.So(c.Duplicates, convey.ShouldEqual, 1)
					convey.So(c.Skipped, convey.ShouldEqual, 1)
					convey.So(c.Failed, convey.ShouldEqual, 1)
				})
			})

			convey.Convey("And when shutting down", func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
				defer shutdownCancel()

				err := pool.Shutdown(shutdownCtx)

				convey.Convey("Then it should shutdown gracefully", func() {
					convey.So(err, convey.ShouldBeNil)
				})
			})
		})

		convey.Convey("When shutting down with queued messages", func() {
			processor.delay = 5 * time.Millisecond
			pool := worker.NewPool(2, q, processor)
			for i := int64(1); i <= 10; i++ {
				q.add(msg("0xdrain", i))
			}
			pool.Start(context.Background())

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer shutdownCancel()
			err := pool.Shutdown(shutdownCtx)

			convey.Convey("Then the workers drain the queue first", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(processor.total(), convey.ShouldEqual, 10)
			})
		})

		convey.Convey("When workers cannot drain before the deadline", func() {
			processor.delay = 200 * time.Millisecond
			pool := worker.NewPool(1, q, processor)
			for i := int64(1); i <= 5; i++ {
				q.add(msg("0xslow", i))
			}
			pool.Start(context.Background())

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer shutdownCancel()
			err := pool.Shutdown(shutdownCtx)

			convey.Convey("Then shutdown reports the timeout", func() {
				convey.So(errors.Is(err, context.DeadlineExceeded), convey.ShouldBeTrue)
			})
		})
	})
}

func TestWorkerConcurrency(t *testing.T) {
	convey.Convey("Given a worker pool with multiple workers", t, func() {
		_ = logging.Init()

		q := newMockQueue()
		processor := newMockProcessor()

		pool := worker.NewPool(4, q, processor)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		pool.Start(ctx)

		convey.Convey("When processing many concurrent sales", func() {
			const count = 100
			var wg sync.WaitGroup

			for i := 0; i < 5; i++ {
				wg.Add(1)
				go func(producer int) {
					defer wg.Done()
					for j := 0; j < count/5; j++ {
						q.add(msg(fmt.Sprintf("0x%d", producer), int64(j)))
					}
				}(i)
			}
			wg.Wait()

			convey.Convey("Then every sale is processed exactly once", func() {
				convey.So(eventually(func() bool { return processor.total() == count }), convey.ShouldBeTrue)
				for i := 0; i < 5; i++ {
					for j := 0; j < count/5; j++ {
						convey.So(processor.calls(fmt.Sprintf("0x%d:%d", i, j)), convey.ShouldEqual, 1)
					}
				}
			})
		})
	})
}

func TestWorkerRedeliveryEndToEnd(t *testing.T) {
	convey.Convey("Given a real queue that redelivers quickly", t, func() {
		_ = logging.Init()

		q := queue.NewInMemoryQueue(
			queue.WithCapacity(10),
			queue.WithMaxDeliveries(3),
			queue.WithRedeliveryDelay(5*time.Millisecond),
		)
		processor := newMockProcessor()
		pool := worker.NewPool(1, q, processor)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		pool.Start(ctx)

		convey.Reset(func() {
			_ = pool.Shutdown(context.Background())
		})

		convey.Convey("When a sale always fails", func() {
			processor.setError("0xfail:9", errors.New("still failing"))
			convey.So(q.Enqueue(ctx, queue.Message{TransactionHash: "0xfail", AxieID: 9}), convey.ShouldBeNil)

			convey.Convey("Then it is attempted max deliveries times and then dropped", func() {
				convey.So(eventually(func() bool { return processor.calls("0xfail:9") == 3 }), convey.ShouldBeTrue)
				time.Sleep(30 * time.Millisecond)
				convey.So(processor.calls("0xfail:9"), convey.ShouldEqual, 3)
				convey.So(q.Pending(), convey.ShouldEqual, 0)
			})
		})
	})
}

func TestWorkerShutdownKeepsQueuedSales(t *testing.T) {
	convey.Convey("Given a real queue shared by two workers", t, func() {
		_ = logging.Init()

		q := queue.NewInMemoryQueue(queue.WithCapacity(10))
		processor := newMockProcessor()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		first := worker.NewInMemoryWorker(q, processor, worker.WithName("first"))
		go first.Run(ctx)

		convey.Convey("When the first worker stops before a sale arrives", func() {
			convey.So(first.Shutdown(context.Background()), convey.ShouldBeNil)
			convey.So(q.Enqueue(ctx, msg("0xkeep", 1)), convey.ShouldBeNil)

			second := worker.NewInMemoryWorker(q, processor, worker.WithName("second"))
			go second.Run(ctx)

			convey.Convey("Then the remaining worker still processes it", func() {
				convey.So(eventually(func() bool { return processor.calls("0xkeep:1") == 1 }), convey.ShouldBeTrue)
				convey.So(q.Close(), convey.ShouldBeNil)
				convey.So(second.Shutdown(context.Background()), convey.ShouldBeNil)
			})
		})
	})
}
