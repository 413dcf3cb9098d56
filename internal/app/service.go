// Package service wires the tracking engine together: it resolves attribute
// observations into identities and owns every mutation of tracking state.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/crosscam/internal/adapters/mq/queue"
	"github.com/okian/crosscam/internal/adapters/mq/writer"
	"github.com/okian/crosscam/internal/adapters/persistence"
	"github.com/okian/crosscam/internal/adapters/persistence/backend"
	"github.com/okian/crosscam/internal/domain/candidates"
	"github.com/okian/crosscam/internal/domain/scoring"
	"github.com/okian/crosscam/internal/domain/topology"
	"github.com/okian/crosscam/pkg/logger"
	"github.com/okian/crosscam/pkg/metrics"
)

// Default engine configuration.
const (
	defaultTimeWindow   = 300 * time.Second
	defaultThreshold    = 0.6
	defaultGraceFactor  = 3.0
	defaultQueueSize    = 1024
	defaultStoreTimeout = 5 * time.Second
	defaultActiveWindow = 30 * time.Minute
)

// Service is the cross-camera tracking engine.
type Service struct {
	// mu serializes every mutation: resolve, link, cleanup and topology
	// changes. It is held across read-score-select-apply for a whole call.
	mu sync.Mutex

	store   persistence.Store
	backend backend.Config
	index   *candidates.Index
	topo    *topology.Store
	scorer  scoring.Scorer
	queue   *queue.InMemoryQueue
	writer  *writer.Writer

	scope        string
	timeWindow   time.Duration
	threshold    float64
	graceFactor  float64
	policy       topology.Policy
	writeMode    WriteMode
	queueSize    int
	storeTimeout time.Duration
	activeWindow time.Duration
	retention    Retention

	now   func() time.Time
	newID func() string

	// highWater is the newest observation time seen; the index is pruned
	// relative to it.
	highWater time.Time
	// horizon is the oldest last-seen time the index is known to be complete
	// for. Frames whose window reaches further back backfill from the store.
	horizon time.Time

	// writeErr latches the first failed write-behind batch until the index
	// is re-warmed from the store.
	failMu   sync.Mutex
	writeErr error

	started atomic.Bool
	cancel  context.CancelFunc
	stopCh  chan struct{}
	wg      sync.WaitGroup

	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		index:        candidates.New(),
		scorer:       scoring.NewAttributeScorer(),
		timeWindow:   defaultTimeWindow,
		threshold:    defaultThreshold,
		graceFactor:  defaultGraceFactor,
		policy:       topology.PolicyPermissive,
		writeMode:    WriteSync,
		queueSize:    defaultQueueSize,
		storeTimeout: defaultStoreTimeout,
		activeWindow: defaultActiveWindow,
		now:          time.Now,
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the store, loads topology, warms the candidate index and starts
// the background writer and retention sweeper when configured.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started.Load() {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("tracking")
	}
	s.logger.Info(ctx, "starting tracking service...")

	if s.store == nil {
		st, kind, err := backend.Open(ctx, s.backend)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		}
		s.store = st
		s.logger.Info(ctx, "persistence backend selected", logger.String("backend", string(kind)))
	}
	if err := s.load(ctx); err != nil {
		if cerr := s.store.Close(); cerr != nil {
			s.logger.Warn(ctx, "closing store after failed start", logger.Error(cerr))
		}
		return err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.stopCh = make(chan struct{})

	if s.writeMode == WriteAsync {
		s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
		s.writer = writer.New(s.queue, s.store,
			writer.WithName("writer"),
			writer.WithLogger(s.logger.Named("writer")),
			writer.WithTimeout(s.storeTimeout),
			writer.WithErrorHandler(s.latchWriteFailure),
		)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.writer.Run(runCtx)
		}()
	}

	if s.retention.Enabled && s.retention.Interval > 0 && s.retention.MaxAge > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.sweep(runCtx)
		}()
	}

	s.started.Store(true)
	s.logger.Info(ctx, "tracking service started",
		logger.String("write_mode", string(s.writeMode)),
		logger.Duration("time_window", s.timeWindow),
		logger.Float64("match_threshold", s.threshold),
		logger.String("topology_policy", string(s.policy)),
		logger.Int("live_candidates", s.index.Len()),
	)
	return nil
}

// load reads topology and warms the candidate index from the store.
func (s *Service) load(ctx context.Context) error {
	s.topo = topology.NewStore(
		topology.WithPersister(s.store),
		topology.WithPolicy(s.policy),
		topology.WithGraceFactor(s.graceFactor),
		topology.WithLogger(s.logger.Named("topology")),
	)
	if err := s.topo.Load(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return s.warm(ctx)
}

// warm loads the records still inside the time window into the index.
func (s *Service) warm(ctx context.Context) error {
	latest, ok, err := s.store.LatestSighting(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	s.index.Reset()
	if !ok {
		s.highWater, s.horizon = time.Time{}, time.Time{}
		metrics.UpdateLiveCandidates(0)
		return nil
	}

	ref := s.now().UTC()
	if latest.Before(ref) {
		ref = latest
	}
	cutoff := ref.Add(-s.timeWindow)
	recs, err := s.store.LiveSince(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	for _, r := range recs {
		s.index.Upsert(r)
	}
	s.highWater = latest
	s.horizon = cutoff
	metrics.UpdateLiveCandidates(s.index.Len())
	s.logger.Info(ctx, "candidate index warmed", logger.Int("records", len(recs)))
	return nil
}

// Stop flushes pending writes, stops background loops and closes the store.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started.Load() {
		s.mu.Unlock()
		return nil
	}
	s.started.Store(false)
	close(s.stopCh)
	s.mu.Unlock()

	s.logger.Info(ctx, "stopping tracking service...")

	var errs []error
	if s.writer != nil {
		if err := s.writer.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		if err := s.writeFailure(); err != nil {
			errs = append(errs, err)
		}
	}
	s.cancel()
	s.wg.Wait()

	if err := s.store.Close(); err != nil {
		errs = append(errs, err)
	}
	s.logger.Info(ctx, "tracking service stopped")
	return errors.Join(errs...)
}

// Flush waits until every write accepted so far has been handled. It reports
// ErrStoreUnavailable while a failed write-behind batch has not been
// reconciled with the store. It is a no-op in sync mode.
func (s *Service) Flush(ctx context.Context) error {
	if s.writer == nil {
		return nil
	}
	if err := s.writer.Flush(ctx); err != nil {
		return err
	}
	return s.writeFailure()
}

func (s *Service) latchWriteFailure(err error) {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	if s.writeErr == nil {
		s.writeErr = err
	}
}

// writeFailure returns the latched write-behind failure, if any.
func (s *Service) writeFailure() error {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	if s.writeErr == nil {
		return nil
	}
	return fmt.Errorf("%w: write-behind batch lost: %w", ErrStoreUnavailable, s.writeErr)
}

// reconcile surfaces a latched write-behind failure to the caller and
// re-warms the index from the store, so later calls work on what was
// actually persisted. Callers hold s.mu.
func (s *Service) reconcile(ctx context.Context) error {
	failure := s.writeFailure()
	if failure == nil {
		return nil
	}
	s.logger.Warn(ctx, "re-warming candidates after a lost write", logger.Error(failure))
	if err := s.writer.Flush(ctx); err != nil {
		return errors.Join(failure, err)
	}
	if err := s.warm(ctx); err != nil {
		return errors.Join(failure, err)
	}
	s.failMu.Lock()
	s.writeErr = nil
	s.failMu.Unlock()
	return failure
}

// Ping checks the persistence adapter.
func (s *Service) Ping(ctx context.Context) error {
	st, err := s.readStore()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	if err := st.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

// readStore returns the store once Start has run. Reads do not take the
// engine mutex; the backends return consistent copies on their own.
func (s *Service) readStore() (persistence.Store, error) {
	if !s.started.Load() {
		return nil, ErrNotStarted
	}
	return s.store, nil
}
