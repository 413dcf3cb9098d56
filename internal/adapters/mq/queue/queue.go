// Package queue is the bounded FIFO between the resolver and the persistence
// writer. Batches leave the queue in the order they were accepted.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/okian/crosscam/internal/adapters/persistence"
	"github.com/okian/crosscam/pkg/metrics"
)

const defaultQueueCapacity = 1024

// Item is one unit of work for the writer: either a batch to persist or a
// barrier that is acknowledged once everything ahead of it has been written.
type Item struct {
	Batch      persistence.Batch
	EnqueuedAt time.Time

	ack chan struct{}
}

// NewItem wraps a batch for enqueueing.
func NewItem(b persistence.Batch) Item {
	return Item{Batch: b, EnqueuedAt: time.Now()}
}

// Barrier returns a barrier item and the channel closed when it is reached.
func Barrier() (Item, <-chan struct{}) {
	ack := make(chan struct{})
	return Item{EnqueuedAt: time.Now(), ack: ack}, ack
}

// IsBarrier reports whether the item carries no batch and only marks a position.
func (i Item) IsBarrier() bool { return i.ack != nil }

// Ack releases whoever waits on a barrier. No-op for batches.
func (i Item) Ack() {
	if i.ack != nil {
		close(i.ack)
	}
}

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds an item without blocking.
	// Returns ErrFull or ErrClosed when the item was not accepted.
	Enqueue(ctx context.Context, it Item) error

	// Put adds an item, waiting for room until ctx is done.
	Put(ctx context.Context, it Item) error

	// Dequeue returns a channel that receives items in FIFO order.
	// The channel is closed once the queue is closed and drained.
	Dequeue(ctx context.Context) <-chan Item

	// Len returns the number of pending items.
	Len(ctx context.Context) int

	// Close stops accepting items. Pending items are still delivered.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	items    chan Item
	capacity int

	mu     sync.RWMutex
	closed bool
}

var _ Queue = (*InMemoryQueue)(nil)

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.items = make(chan Item, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0.0)
	return q
}

// Capacity returns the configured bound.
func (q *InMemoryQueue) Capacity() int { return q.capacity }

// Enqueue adds an item to the queue without blocking.
func (q *InMemoryQueue) Enqueue(ctx context.Context, it Item) error { //nolint:gocritic // hugeParam: Item is passed by value for channel semantics
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "closed")
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return err
	}

	select {
	case q.items <- it:
		metrics.RecordQueueEnqueue()
		q.observe()
		return nil
	default:
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return ErrFull
	}
}

// Put adds an item, blocking while the queue is full.
func (q *InMemoryQueue) Put(ctx context.Context, it Item) error { //nolint:gocritic // hugeParam: Item is passed by value for channel semantics
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrClosed
	}
	select {
	case q.items <- it:
		metrics.RecordQueueEnqueue()
		q.observe()
		return nil
	case <-ctx.Done():
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return ctx.Err()
	}
}

// Dequeue returns a channel that will receive items as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Item {
	out := make(chan Item)
	go func() {
		defer close(out)
		for it := range q.items {
			select {
			case out <- it:
				metrics.RecordQueueDequeue()
				q.observe()
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the current number of queued items.
func (q *InMemoryQueue) Len(_ context.Context) int {
	q.observe()
	return len(q.items)
}

// Close gracefully shuts down the queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.items)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

func (q *InMemoryQueue) observe() {
	size := len(q.items)
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
}
