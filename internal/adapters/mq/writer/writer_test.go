package writer_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/okian/crosscam/internal/adapters/mq/queue"
	"github.com/okian/crosscam/internal/adapters/mq/writer"
	"github.com/okian/crosscam/internal/adapters/persistence"
	"github.com/okian/crosscam/internal/domain/model"
	"github.com/okian/crosscam/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type recordingStore struct {
	mu    sync.Mutex
	ids   []string
	fail  map[string]error
	delay time.Duration
}

func (s *recordingStore) Apply(ctx context.Context, b persistence.Batch) error {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	id := b.Ops[0].Record.TrackingID
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[id]; err != nil {
		return err
	}
	s.ids = append(s.ids, id)
	return nil
}

func (s *recordingStore) written() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ids...)
}

func batchFor(id string) persistence.Batch {
	var b persistence.Batch
	b.Upsert(model.TrackingRecord{TrackingID: id})
	return b
}

func TestWriter(t *testing.T) {
	convey.Convey("Given a queue drained by one writer", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		q := queue.NewInMemoryQueue(queue.WithCapacity(64))
		store := &recordingStore{fail: map[string]error{}}
		var handled []error
		var hmu sync.Mutex
		w := writer.New(q, store,
			writer.WithName("test-writer"),
			writer.WithLogger(logger.Nop()),
			writer.WithTimeout(time.Second),
			writer.WithErrorHandler(func(err error) {
				hmu.Lock()
				handled = append(handled, err)
				hmu.Unlock()
			}),
		)
		go w.Run(ctx)

		convey.Convey("Batches are applied in enqueue order", func() {
			var want []string
			for i := 0; i < 40; i++ {
				id := fmt.Sprintf("t%02d", i)
				want = append(want, id)
				convey.So(q.Enqueue(ctx, queue.NewItem(batchFor(id))), convey.ShouldBeNil)
			}
			convey.So(w.Flush(ctx), convey.ShouldBeNil)
			convey.So(store.written(), convey.ShouldResemble, want)
			convey.So(w.Written(), convey.ShouldEqual, int64(40))
		})

		convey.Convey("A failed batch is counted and reported but does not stop the writer", func() {
			boom := errors.New("disk full")
			store.fail["bad"] = boom
			convey.So(q.Enqueue(ctx, queue.NewItem(batchFor("bad"))), convey.ShouldBeNil)
			convey.So(q.Enqueue(ctx, queue.NewItem(batchFor("good"))), convey.ShouldBeNil)
			convey.So(w.Flush(ctx), convey.ShouldBeNil)

			convey.So(store.written(), convey.ShouldResemble, []string{"good"})
			convey.So(w.Failed(), convey.ShouldEqual, int64(1))
			hmu.Lock()
			convey.So(handled, convey.ShouldHaveLength, 1)
			convey.So(errors.Is(handled[0], boom), convey.ShouldBeTrue)
			hmu.Unlock()
		})

		convey.Convey("Shutdown drains pending batches", func() {
			store.delay = 2 * time.Millisecond
			for i := 0; i < 10; i++ {
				convey.So(q.Enqueue(ctx, queue.NewItem(batchFor(fmt.Sprintf("s%d", i)))), convey.ShouldBeNil)
			}
			sctx, scancel := context.WithTimeout(ctx, 5*time.Second)
			defer scancel()
			convey.So(w.Shutdown(sctx), convey.ShouldBeNil)
			convey.So(store.written(), convey.ShouldHaveLength, 10)

			convey.Convey("and later flushes return immediately", func() {
				convey.So(w.Flush(ctx), convey.ShouldBeNil)
				convey.So(w.Shutdown(ctx), convey.ShouldBeNil)
			})
		})
	})
}

func TestWriterFlushTimeout(t *testing.T) {
	convey.Convey("Given a writer that was never started", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(4))
		w := writer.New(q, &recordingStore{}, writer.WithLogger(logger.Nop()))

		convey.Convey("Flush gives up when the context expires", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
			defer cancel()
			err := w.Flush(ctx)
			convey.So(errors.Is(err, context.DeadlineExceeded), convey.ShouldBeTrue)
		})

		convey.Convey("Shutdown returns without waiting", func() {
			convey.So(w.Shutdown(context.Background()), convey.ShouldBeNil)
			convey.So(q.IsClosed(), convey.ShouldBeTrue)
		})
	})
}
