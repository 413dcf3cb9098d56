package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/okian/crosscam/internal/adapters/mq/queue"
	"github.com/okian/crosscam/internal/adapters/persistence"
	"github.com/okian/crosscam/internal/domain/extraction"
	"github.com/okian/crosscam/internal/domain/model"
	"github.com/okian/crosscam/internal/domain/scoring"
	"github.com/okian/crosscam/pkg/logger"
	"github.com/okian/crosscam/pkg/metrics"
)

// scoreQuantum is the resolution scores are compared at. Sums of the
// attribute weights differ only in the last bits depending on order.
const scoreQuantum = 1e9

func quantize(score float64) float64 {
	return math.Round(score*scoreQuantum) / scoreQuantum
}

// change remembers the index entry a mutation replaced.
type change struct {
	id      string
	prev    model.TrackingRecord
	existed bool
}

// mutation collects the writes of one engine call so they can be persisted
// together or undone together.
type mutation struct {
	batch persistence.Batch
	undo  []change
}

// stage applies rec to the index and queues it for persistence.
func (s *Service) stage(m *mutation, rec model.TrackingRecord) {
	prev, existed := s.index.Upsert(rec)
	m.undo = append(m.undo, change{id: rec.TrackingID, prev: prev, existed: existed})
	m.batch.Upsert(rec)
}

func (s *Service) rollback(m *mutation) {
	for i := len(m.undo) - 1; i >= 0; i-- {
		c := m.undo[i]
		if c.existed {
			s.index.Upsert(c.prev)
		} else {
			s.index.Remove(c.id)
		}
	}
}

// commit persists m, or undoes its index changes when the store refuses it.
func (s *Service) commit(ctx context.Context, m *mutation) error {
	if m.batch.Len() == 0 {
		return nil
	}

	var err error
	if s.writeMode == WriteAsync {
		err = s.queue.Enqueue(ctx, queue.NewItem(m.batch))
	} else {
		err = s.persist(ctx, m.batch)
	}
	if err != nil {
		s.rollback(m)
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	metrics.UpdateLiveCandidates(s.index.Len())
	return nil
}

func (s *Service) persist(ctx context.Context, b persistence.Batch) error {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	start := time.Now()
	err := s.store.Apply(ctx, b)
	metrics.RecordStoreLatency("apply", float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.RecordStoreError("apply")
		metrics.RecordErrorByComponent("tracking", "store_unavailable")
	}
	return err
}

// Resolve matches every observation of one frame against the live identities
// and creates or updates tracking records. Observations are resolved in input
// order; a later one may match a record created or updated by an earlier one.
// Either all resulting writes are persisted or none are.
func (s *Service) Resolve(ctx context.Context, observations []model.AttributeObservation, cameraID string, ts time.Time) ([]model.ResolutionResult, error) {
	start := time.Now()
	cameraID = strings.TrimSpace(cameraID)
	if cameraID == "" {
		return nil, fmt.Errorf("%w: empty camera id", ErrInvalidArgument)
	}
	if ts.IsZero() {
		ts = s.now()
	}
	ts = ts.UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started.Load() {
		return nil, ErrNotStarted
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.reconcile(ctx); err != nil {
		return nil, err
	}
	if len(observations) == 0 {
		return []model.ResolutionResult{}, nil
	}
	if err := s.backfill(ctx, ts.Add(-s.timeWindow)); err != nil {
		return nil, err
	}

	m := &mutation{}
	results := make([]model.ResolutionResult, 0, len(observations))
	for _, raw := range observations {
		results = append(results, s.resolveOne(m, raw.Normalize(), cameraID, ts))
	}

	if err := s.commit(ctx, m); err != nil {
		metrics.RecordResolveError()
		s.logger.Error(ctx, "resolve failed",
			logger.String("camera_id", cameraID),
			logger.Int("observations", len(observations)),
			logger.Error(err),
		)
		return nil, err
	}

	if ts.After(s.highWater) {
		s.highWater = ts
	}
	if h := s.highWater.Add(-s.timeWindow); h.After(s.horizon) {
		s.horizon = h
	}
	if n := s.index.Prune(s.horizon); n > 0 {
		s.logger.Debug(ctx, "pruned stale candidates", logger.Int("count", n))
		metrics.UpdateLiveCandidates(s.index.Len())
	}

	for _, r := range results {
		metrics.RecordObservationResolved()
		if r.IsNew {
			metrics.RecordIdentityCreated()
		} else {
			metrics.RecordMatch(r.MatchScore)
		}
	}
	metrics.RecordResolveLatency(float64(time.Since(start).Milliseconds()))
	return results, nil
}

// backfill merges live records last seen at or after cutoff back into the
// index when cutoff lies before the pruned horizon. Records already held are
// newer than their stored copy and are kept.
func (s *Service) backfill(ctx context.Context, cutoff time.Time) error {
	if !cutoff.Before(s.horizon) {
		return nil
	}
	if s.writer != nil {
		if err := s.writer.Flush(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		}
	}

	lctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	start := time.Now()
	recs, err := s.store.LiveSince(lctx, cutoff)
	metrics.RecordStoreLatency("live_since", float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.RecordStoreError("live_since")
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	restored := 0
	for _, r := range recs {
		if _, held := s.index.Get(r.TrackingID); held {
			continue
		}
		s.index.Upsert(r)
		restored++
	}
	if restored > 0 {
		s.logger.Debug(ctx, "restored candidates for a late frame",
			logger.Time("cutoff", cutoff),
			logger.Int("count", restored),
		)
	}
	return nil
}

// ResolveFrame extracts observations from image and resolves them. A failed
// extraction resolves zero observations instead of failing the call.
func (s *Service) ResolveFrame(ctx context.Context, ex extraction.Extractor, image []byte, cameraID string, ts time.Time) ([]model.ResolutionResult, error) {
	if !s.started.Load() {
		return nil, ErrNotStarted
	}
	if ex == nil {
		return nil, fmt.Errorf("%w: nil extractor", ErrInvalidArgument)
	}
	observations, err := ex.Extract(ctx, image)
	if err != nil {
		metrics.RecordExtractionFailure()
		metrics.RecordErrorByComponent("extraction", "extract_failed")
		s.logger.Warn(ctx, "attribute extraction failed",
			logger.String("camera_id", cameraID),
			logger.Error(err),
		)
		observations = nil
	}
	return s.Resolve(ctx, observations, cameraID, ts)
}

func (s *Service) resolveOne(m *mutation, obs model.AttributeObservation, cameraID string, ts time.Time) model.ResolutionResult {
	best, res, ok := s.match(obs, cameraID, ts)
	if !ok {
		rec := model.TrackingRecord{
			TrackingID:       s.newID(),
			LatestFeatures:   obs,
			LastSeenCameraID: cameraID,
			LastSeenTime:     ts,
			FirstSeenTime:    ts,
			TotalSightings:   1,
			MatchConfidence:  obs.Confidence,
		}
		s.stage(m, rec)
		return model.ResolutionResult{
			TrackingID:   rec.TrackingID,
			IsNew:        true,
			MatchScore:   obs.Confidence,
			MatchReasons: []string{scoring.ReasonNewIdentity},
		}
	}

	// A late frame adds a sighting but does not rewind the latest one.
	if !ts.Before(best.LastSeenTime) {
		best.LatestFeatures = obs
		best.LastSeenCameraID = cameraID
		best.LastSeenTime = ts
	}
	if ts.Before(best.FirstSeenTime) {
		best.FirstSeenTime = ts
	}
	best.TotalSightings++
	best.MatchConfidence = res.Score
	s.stage(m, best)
	m.batch.Append(model.TrajectoryPoint{
		TrackingID: best.TrackingID,
		CameraID:   cameraID,
		Timestamp:  ts,
		Position:   obs.PositionInFrame,
		Action:     obs.Action,
		Confidence: obs.Confidence,
	})

	var linked *int64
	if best.LinkedWorkerID != nil {
		id := *best.LinkedWorkerID
		linked = &id
	}
	return model.ResolutionResult{
		TrackingID:     best.TrackingID,
		LinkedWorkerID: linked,
		MatchScore:     res.Score,
		MatchReasons:   res.Reasons,
	}
}

// match scores the live candidates inside the time window and returns the
// winner, if it reaches the threshold.
func (s *Service) match(obs model.AttributeObservation, cameraID string, ts time.Time) (model.TrackingRecord, scoring.Result, bool) {
	var (
		best       model.TrackingRecord
		bestRes    scoring.Result
		found      bool
		considered int
		rejected   int
	)

	for _, c := range s.index.Since(ts.Add(-s.timeWindow)) {
		if c.Deleted() {
			continue
		}
		if c.LastSeenCameraID != cameraID {
			elapsed := ts.Sub(c.LastSeenTime)
			if elapsed < 0 {
				elapsed = -elapsed
			}
			if !s.topo.Allows(s.scope, c.LastSeenCameraID, cameraID, elapsed) {
				rejected++
				continue
			}
		}
		considered++

		res := s.scorer.Score(c.LatestFeatures, obs)
		res.Score = quantize(res.Score)
		if !found || outranks(res.Score, c, bestRes.Score, best) {
			best, bestRes, found = c, res, true
		}
	}

	metrics.RecordCandidatesConsidered(considered)
	if rejected > 0 {
		metrics.RecordTopologyRejections(rejected)
	}
	if !found || bestRes.Score < s.threshold {
		return model.TrackingRecord{}, scoring.Result{}, false
	}
	return best, bestRes, true
}

// outranks orders candidates by score, then oldest identity, then id.
func outranks(score float64, c model.TrackingRecord, bestScore float64, best model.TrackingRecord) bool {
	if score != bestScore {
		return score > bestScore
	}
	if !c.FirstSeenTime.Equal(best.FirstSeenTime) {
		return c.FirstSeenTime.Before(best.FirstSeenTime)
	}
	return c.TrackingID < best.TrackingID
}
