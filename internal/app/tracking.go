package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/crosscam/internal/adapters/persistence"
	"github.com/okian/crosscam/internal/domain/model"
	"github.com/okian/crosscam/internal/domain/topology"
	"github.com/okian/crosscam/pkg/logger"
	"github.com/okian/crosscam/pkg/metrics"
)

// LinkToExternalWorker attaches an external worker id to a tracking record.
// It returns false for unknown or removed records. Linking twice with the
// same arguments leaves the same state as linking once.
func (s *Service) LinkToExternalWorker(ctx context.Context, trackingID string, workerID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started.Load() {
		return false, ErrNotStarted
	}
	if err := s.reconcile(ctx); err != nil {
		return false, err
	}

	rec, live := s.index.Get(trackingID)
	if !live {
		if err := s.Flush(ctx); err != nil {
			return false, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		}
		var err error
		rec, err = s.fetch(ctx, trackingID)
		if errors.Is(err, persistence.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
	}
	if rec.Deleted() {
		return false, nil
	}
	if rec.LinkedWorkerID != nil && *rec.LinkedWorkerID == workerID {
		return true, nil
	}

	rec.LinkedWorkerID = &workerID
	m := &mutation{}
	if live {
		s.stage(m, rec)
	} else {
		m.batch.Upsert(rec)
	}
	if err := s.commit(ctx, m); err != nil {
		return false, err
	}

	metrics.RecordLink()
	s.logger.Info(ctx, "tracking record linked",
		logger.String("tracking_id", trackingID),
		logger.Int64("worker_id", workerID),
	)
	return true, nil
}

func (s *Service) fetch(ctx context.Context, trackingID string) (model.TrackingRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	rec, err := s.store.GetRecord(ctx, trackingID)
	if err != nil && !errors.Is(err, persistence.ErrNotFound) {
		metrics.RecordStoreError("get_record")
		return rec, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return rec, err
}

// GetRecord returns a live tracking record.
func (s *Service) GetRecord(ctx context.Context, trackingID string) (model.TrackingRecord, error) {
	if _, err := s.readStore(); err != nil {
		return model.TrackingRecord{}, err
	}
	rec, err := s.fetch(ctx, trackingID)
	if errors.Is(err, persistence.ErrNotFound) {
		return model.TrackingRecord{}, fmt.Errorf("%w: %s", ErrNotFound, trackingID)
	}
	return rec, err
}

// GetTrajectory returns the sightings of a record in ascending time order.
// Unknown or removed ids yield an empty list.
func (s *Service) GetTrajectory(ctx context.Context, trackingID string) ([]model.TrajectoryPoint, error) {
	st, err := s.readStore()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	start := time.Now()
	pts, err := st.GetTrajectory(ctx, trackingID)
	metrics.RecordStoreLatency("get_trajectory", float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.RecordStoreError("get_trajectory")
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if pts == nil {
		pts = []model.TrajectoryPoint{}
	}
	return pts, nil
}

// Search returns live records by badge substring or clothing color, newest
// first. No match is an empty list.
func (s *Service) Search(ctx context.Context, q model.SearchQuery) ([]model.TrackingRecord, error) {
	st, err := s.readStore()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	start := time.Now()
	recs, err := st.Search(ctx, q)
	metrics.RecordStoreLatency("search", float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.RecordStoreError("search")
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if recs == nil {
		recs = []model.TrackingRecord{}
	}
	return recs, nil
}

// Statistics summarizes the store as of asOf; the zero time means now.
func (s *Service) Statistics(ctx context.Context, asOf time.Time) (model.Statistics, error) {
	st, err := s.readStore()
	if err != nil {
		return model.Statistics{}, err
	}
	if asOf.IsZero() {
		asOf = s.now()
	}
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	start := time.Now()
	stats, err := st.Statistics(ctx, asOf.UTC(), s.activeWindow)
	metrics.RecordStoreLatency("statistics", float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.RecordStoreError("statistics")
		return model.Statistics{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return stats, nil
}

// Cleanup removes every record last seen more than maxAge ago, skipping
// linked records when keepLinked is set. Trajectories of removed records are
// deleted with them.
func (s *Service) Cleanup(ctx context.Context, maxAge time.Duration, keepLinked bool) (model.CleanupResult, error) {
	if maxAge < 0 {
		return model.CleanupResult{}, fmt.Errorf("%w: negative max age %s", ErrInvalidArgument, maxAge)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started.Load() {
		return model.CleanupResult{}, ErrNotStarted
	}
	if err := s.reconcile(ctx); err != nil {
		return model.CleanupResult{}, err
	}
	if err := s.Flush(ctx); err != nil {
		return model.CleanupResult{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	now := s.now().UTC()
	params := persistence.CleanupParams{
		Cutoff:     now.Add(-maxAge),
		KeepLinked: keepLinked,
		Hard:       s.retention.Hard,
		Now:        now,
	}

	cctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	start := time.Now()
	removed, remaining, err := s.store.Cleanup(cctx, params)
	metrics.RecordStoreLatency("cleanup", float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.RecordStoreError("cleanup")
		return model.CleanupResult{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	for _, id := range removed {
		s.index.Remove(id)
	}
	metrics.RecordRetentionRemovals(len(removed))
	metrics.UpdateLiveCandidates(s.index.Len())
	s.logger.Info(ctx, "retention cleanup finished",
		logger.Time("cutoff", params.Cutoff),
		logger.Bool("keep_linked", keepLinked),
		logger.Bool("hard", params.Hard),
		logger.Int("removed", len(removed)),
		logger.Int("remaining", remaining),
	)
	return model.CleanupResult{RemovedCount: len(removed), RemainingCount: remaining}, nil
}

// ConfigureTopology validates and stores a camera adjacency edge. An empty
// scope uses the service scope. The edge applies to later resolutions only.
func (s *Service) ConfigureTopology(ctx context.Context, edge model.CameraTopologyEdge) (model.CameraTopologyEdge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started.Load() {
		return edge, ErrNotStarted
	}
	if edge.Scope == "" {
		edge.Scope = s.scope
	}

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	e, err := s.topo.Put(ctx, edge)
	switch {
	case errors.Is(err, topology.ErrInvalidConfiguration):
		return e, fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	case err != nil:
		return e, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return e, nil
}

// Topology lists the edges of the service scope.
func (s *Service) Topology() []model.CameraTopologyEdge {
	if !s.started.Load() {
		return nil
	}
	return s.topo.List(s.scope)
}

// sweep runs Cleanup on the retention interval until stopped.
func (s *Service) sweep(ctx context.Context) {
	ticker := time.NewTicker(s.retention.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			res, err := s.Cleanup(ctx, s.retention.MaxAge, s.retention.KeepLinked)
			if errors.Is(err, ErrNotStarted) {
				return
			}
			if err != nil {
				metrics.RecordErrorByComponent("retention", "cleanup_failed")
				s.logger.Error(ctx, "retention sweep failed", logger.Error(err))
				continue
			}
			s.logger.Debug(ctx, "retention sweep",
				logger.Int("removed", res.RemovedCount),
				logger.Int("remaining", res.RemainingCount),
			)
		}
	}
}
