// Package memory is the in-process persistence backend used when no
// relational store is configured.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/crosscam/internal/adapters/persistence"
	"github.com/okian/crosscam/internal/domain/model"
)

// Store keeps records, trajectories and topology edges in maps guarded by a
// single RWMutex. Every read returns copies.
type Store struct {
	mu      sync.RWMutex
	records map[string]model.TrackingRecord
	points  map[string][]model.TrajectoryPoint
	edges   map[string]model.CameraTopologyEdge
	closed  bool
}

var _ persistence.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		records: make(map[string]model.TrackingRecord),
		points:  make(map[string][]model.TrajectoryPoint),
		edges:   make(map[string]model.CameraTopologyEdge),
	}
}

// Apply validates the whole batch before touching state so a rejected batch
// leaves nothing behind.
func (s *Store) Apply(ctx context.Context, b persistence.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return persistence.ErrClosed
	}

	known := make(map[string]struct{})
	for i, op := range b.Ops {
		switch {
		case op.Record != nil && op.Point == nil:
			if op.Record.TrackingID == "" {
				return fmt.Errorf("%w: op %d: empty tracking id", persistence.ErrInvalidBatch, i)
			}
			known[op.Record.TrackingID] = struct{}{}
		case op.Point != nil && op.Record == nil:
			id := op.Point.TrackingID
			if _, ok := known[id]; ok {
				continue
			}
			if _, ok := s.records[id]; !ok {
				return fmt.Errorf("%w: op %d: point for unknown record %q", persistence.ErrInvalidBatch, i, id)
			}
		default:
			return fmt.Errorf("%w: op %d must set exactly one of record or point", persistence.ErrInvalidBatch, i)
		}
	}

	for _, op := range b.Ops {
		if op.Record != nil {
			rec := op.Record.Clone()
			rec.LastSeenTime = rec.LastSeenTime.UTC()
			rec.FirstSeenTime = rec.FirstSeenTime.UTC()
			s.records[rec.TrackingID] = rec
			continue
		}
		p := *op.Point
		p.Timestamp = p.Timestamp.UTC()
		s.points[p.TrackingID] = append(s.points[p.TrackingID], p)
	}
	return nil
}

// GetRecord returns a copy of a live record.
func (s *Store) GetRecord(_ context.Context, trackingID string) (model.TrackingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[trackingID]
	if !ok || rec.Deleted() {
		return model.TrackingRecord{}, persistence.ErrNotFound
	}
	return rec.Clone(), nil
}

// GetTrajectory returns the points of trackingID ascending by time.
func (s *Store) GetTrajectory(_ context.Context, trackingID string) ([]model.TrajectoryPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.points[trackingID]
	out := make([]model.TrajectoryPoint, len(src))
	copy(out, src)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// Search scans every live record.
func (s *Store) Search(_ context.Context, q model.SearchQuery) ([]model.TrackingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.TrackingRecord, 0)
	for _, rec := range s.records {
		if rec.Deleted() || !persistence.Matches(rec, q) {
			continue
		}
		out = append(out, rec.Clone())
	}
	persistence.SortNewestFirst(out)
	return out, nil
}

// Statistics aggregates over live records.
func (s *Store) Statistics(_ context.Context, asOf time.Time, activeWindow time.Duration) (model.Statistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := model.Statistics{PerCameraCounts: make(map[string]int)}
	activeFrom := asOf.Add(-activeWindow)
	for _, rec := range s.records {
		if rec.Deleted() {
			continue
		}
		st.TotalTracks++
		if !rec.LastSeenTime.Before(activeFrom) {
			st.ActiveTracks++
		}
		if rec.Linked() {
			st.LinkedTracks++
		}
		if rec.LatestFeatures.HasBadge() {
			st.BadgeIdentifiedTracks++
		}
		st.PerCameraCounts[rec.LastSeenCameraID]++
	}
	for _, pts := range s.points {
		st.TotalTrajectoryPoints += len(pts)
	}
	return st, nil
}

// Cleanup removes stale records and their trajectories.
func (s *Store) Cleanup(ctx context.Context, p persistence.CleanupParams) ([]string, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := make([]string, 0)
	remaining := 0
	now := p.Now.UTC()
	for id, rec := range s.records {
		if rec.Deleted() {
			continue
		}
		if !rec.LastSeenTime.Before(p.Cutoff) || (p.KeepLinked && rec.Linked()) {
			remaining++
			continue
		}
		removed = append(removed, id)
		delete(s.points, id)
		if p.Hard {
			delete(s.records, id)
			continue
		}
		at := now
		rec.DeletedAt = &at
		s.records[id] = rec
	}
	sort.Strings(removed)
	return removed, remaining, nil
}

// LiveSince returns live records last seen at or after cutoff, oldest first.
func (s *Store) LiveSince(_ context.Context, cutoff time.Time) ([]model.TrackingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.TrackingRecord, 0)
	for _, rec := range s.records {
		if rec.Deleted() || rec.LastSeenTime.Before(cutoff) {
			continue
		}
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastSeenTime.Equal(out[j].LastSeenTime) {
			return out[i].LastSeenTime.Before(out[j].LastSeenTime)
		}
		return out[i].TrackingID < out[j].TrackingID
	})
	return out, nil
}

// LatestSighting returns the newest LastSeenTime among live records.
func (s *Store) LatestSighting(_ context.Context) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest time.Time
	found := false
	for _, rec := range s.records {
		if rec.Deleted() {
			continue
		}
		if !found || rec.LastSeenTime.After(latest) {
			latest = rec.LastSeenTime
			found = true
		}
	}
	return latest, found, nil
}

// SaveEdge upserts by (scope, unordered pair).
func (s *Store) SaveEdge(_ context.Context, e model.CameraTopologyEdge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return persistence.ErrClosed
	}
	s.edges[e.PairKey()] = e
	return nil
}

// ListEdges returns all edges ordered by scope then pair.
func (s *Store) ListEdges(_ context.Context) ([]model.CameraTopologyEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.edges))
	for k := range s.edges {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]model.CameraTopologyEdge, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.edges[k])
	}
	return out, nil
}

// Ping fails once the store is closed.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return persistence.ErrClosed
	}
	return nil
}

// Close marks the store closed; later writes fail with ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
