// Package writer drains the write-behind queue into the persistence adapter.
// A single goroutine applies batches in queue order, so writes for any one
// tracking record land in the order they were produced.
package writer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/crosscam/internal/adapters/mq/queue"
	"github.com/okian/crosscam/internal/adapters/persistence"
	"github.com/okian/crosscam/pkg/logger"
	"github.com/okian/crosscam/pkg/metrics"
)

const defaultTimeout = 5 * time.Second

// Applier persists one batch atomically.
type Applier interface {
	Apply(ctx context.Context, b persistence.Batch) error
}

// Queue is the part of the queue the writer consumes and flushes through.
type Queue interface {
	Put(ctx context.Context, it queue.Item) error
	Dequeue(ctx context.Context) <-chan queue.Item
	Close() error
}

// Writer applies queued batches one at a time.
type Writer struct {
	queue   Queue
	store   Applier
	name    string
	timeout time.Duration
	onError func(error)
	logger  logger.Logger

	started  atomic.Bool
	done     chan struct{}
	stopOnce sync.Once

	written atomic.Int64
	failed  atomic.Int64
}

// New creates a writer over q and store.
func New(q Queue, store Applier, opts ...Option) *Writer {
	w := &Writer{
		queue:   q,
		store:   store,
		name:    "writer",
		timeout: defaultTimeout,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named(w.name)
	}
	return w
}

// Run drains the queue until it is closed and empty, or ctx is canceled.
func (w *Writer) Run(ctx context.Context) {
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	defer close(w.done)

	for it := range w.queue.Dequeue(ctx) {
		if it.IsBarrier() {
			it.Ack()
			continue
		}
		w.write(ctx, it)
	}
}

func (w *Writer) write(ctx context.Context, it queue.Item) { //nolint:gocritic // hugeParam: Item arrives by value off the channel
	metrics.RecordQueueProcessingLatency(float64(time.Since(it.EnqueuedAt).Milliseconds()))

	// Persist even while shutting down; the parent may already be canceled.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.timeout)
	defer cancel()

	start := time.Now()
	err := w.store.Apply(wctx, it.Batch)
	latency := float64(time.Since(start).Milliseconds())
	metrics.RecordWriterProcessingLatency(latency)
	metrics.RecordStoreLatency("apply", latency)

	if err != nil {
		w.failed.Add(1)
		metrics.RecordWriterError()
		metrics.RecordStoreError("apply")
		metrics.RecordErrorByComponent("writer", "apply_error")
		w.logger.Error(ctx, "batch persist failed",
			logger.Int("ops", it.Batch.Len()),
			logger.Error(err),
		)
		if w.onError != nil {
			w.onError(err)
		}
		return
	}
	w.written.Add(1)
	metrics.RecordWriterBatch()
}

// Flush blocks until every batch enqueued before the call has been handled.
func (w *Writer) Flush(ctx context.Context) error {
	barrier, ack := queue.Barrier()
	if err := w.queue.Put(ctx, barrier); err != nil {
		if errors.Is(err, queue.ErrClosed) {
			return w.wait(ctx)
		}
		return fmt.Errorf("flush: %w", err)
	}
	select {
	case <-ack:
		return nil
	case <-w.done:
		return ErrStopped
	case <-ctx.Done():
		return fmt.Errorf("flush: %w", ctx.Err())
	}
}

// Shutdown closes the queue and waits for the pending batches to be written.
func (w *Writer) Shutdown(ctx context.Context) error {
	w.stopOnce.Do(func() {
		if err := w.queue.Close(); err != nil {
			w.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	})
	return w.wait(ctx)
}

func (w *Writer) wait(ctx context.Context) error {
	if !w.started.Load() {
		return nil
	}
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Written returns the number of batches persisted.
func (w *Writer) Written() int64 { return w.written.Load() }

// Failed returns the number of batches that could not be persisted.
func (w *Writer) Failed() int64 { return w.failed.Load() }
