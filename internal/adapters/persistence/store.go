// Package persistence defines the durable backing contract of the tracking
// store. Implementations live in the memory and sqlstore subpackages.
package persistence

import (
	"context"
	"time"

	"github.com/okian/crosscam/internal/domain/model"
)

// Op is one mutation inside a Batch. Exactly one field is set.
type Op struct {
	Record *model.TrackingRecord
	Point  *model.TrajectoryPoint
}

// Batch is an ordered list of mutations applied atomically.
type Batch struct {
	Ops []Op
}

// Upsert appends a record write.
func (b *Batch) Upsert(rec model.TrackingRecord) {
	r := rec.Clone()
	b.Ops = append(b.Ops, Op{Record: &r})
}

// Append appends a trajectory point write.
func (b *Batch) Append(p model.TrajectoryPoint) {
	b.Ops = append(b.Ops, Op{Point: &p})
}

// Len returns the number of mutations.
func (b Batch) Len() int { return len(b.Ops) }

// CleanupParams selects the records a retention sweep removes.
type CleanupParams struct {
	// Cutoff removes live records last seen strictly before it.
	Cutoff     time.Time
	KeepLinked bool
	// Hard deletes rows; otherwise records are marked deleted at Now.
	Hard bool
	Now  time.Time
}

// Store is the read/write contract both backends satisfy with identical
// observable results. Soft-deleted records are invisible to every read.
type Store interface {
	// Apply writes the batch in order inside one transaction.
	Apply(ctx context.Context, b Batch) error

	// GetRecord returns ErrNotFound for unknown or deleted ids.
	GetRecord(ctx context.Context, trackingID string) (model.TrackingRecord, error)
	// GetTrajectory returns points ascending by time; empty for unknown ids.
	GetTrajectory(ctx context.Context, trackingID string) ([]model.TrajectoryPoint, error)
	// Search matches case-insensitively, newest sighting first.
	Search(ctx context.Context, q model.SearchQuery) ([]model.TrackingRecord, error)
	Statistics(ctx context.Context, asOf time.Time, activeWindow time.Duration) (model.Statistics, error)
	// Cleanup returns the removed ids in ascending order and the live count left.
	Cleanup(ctx context.Context, p CleanupParams) ([]string, int, error)

	// LiveSince returns live records last seen at or after cutoff.
	LiveSince(ctx context.Context, cutoff time.Time) ([]model.TrackingRecord, error)
	// LatestSighting returns the newest LastSeenTime among live records.
	LatestSighting(ctx context.Context) (time.Time, bool, error)

	SaveEdge(ctx context.Context, e model.CameraTopologyEdge) error
	ListEdges(ctx context.Context) ([]model.CameraTopologyEdge, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
	Close() error
}
