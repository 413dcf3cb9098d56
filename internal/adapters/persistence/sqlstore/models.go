package sqlstore

import (
	"encoding/json"
	"math"
	"time"

	"github.com/pkg/errors"
	"gorm.io/datatypes"

	"github.com/okian/crosscam/internal/domain/model"
)

// Timestamps are stored as Unix nanoseconds so range predicates compare
// integers on every dialect.

type TrackingRecordModel struct {
	TrackingID       string         `gorm:"column:tracking_id;primaryKey"`
	LinkedWorkerID   *int64         `gorm:"column:linked_worker_id"`
	BadgeNumber      string         `gorm:"column:badge_number;not null;index"`
	ClothingUpper    string         `gorm:"column:clothing_upper;not null"`
	ClothingLower    string         `gorm:"column:clothing_lower;not null"`
	BodyType         string         `gorm:"column:body_type;not null"`
	HeightEstimate   string         `gorm:"column:height_estimate;not null"`
	SafetyGear       datatypes.JSON `gorm:"column:safety_gear"`
	PositionInFrame  string         `gorm:"column:position_in_frame;not null"`
	Action           string         `gorm:"column:action;not null"`
	Confidence       float64        `gorm:"column:confidence;not null"`
	LastSeenCameraID string         `gorm:"column:last_seen_camera_id;not null;index"`
	LastSeenAt       int64          `gorm:"column:last_seen_at;not null;index"`
	FirstSeenAt      int64          `gorm:"column:first_seen_at;not null"`
	TotalSightings   int            `gorm:"column:total_sightings;not null"`
	MatchConfidence  float64        `gorm:"column:match_confidence;not null"`
	DeletedAtNano    *int64         `gorm:"column:deleted_at;index"`
}

func (TrackingRecordModel) TableName() string { return "tracking_records" }

type TrajectoryPointModel struct {
	ID         uint    `gorm:"column:id;primaryKey"`
	TrackingID string  `gorm:"column:tracking_id;not null;index:idx_trajectory_points_track_time,priority:1"`
	CameraID   string  `gorm:"column:camera_id;not null;index"`
	ObservedAt int64   `gorm:"column:observed_at;not null;index:idx_trajectory_points_track_time,priority:2"`
	Position   string  `gorm:"column:position;not null"`
	Action     string  `gorm:"column:action;not null"`
	Confidence float64 `gorm:"column:confidence;not null"`
}

func (TrajectoryPointModel) TableName() string { return "trajectory_points" }

type TopologyEdgeModel struct {
	ID                uint   `gorm:"column:id;primaryKey"`
	Scope             string `gorm:"column:scope;not null;uniqueIndex:uq_camera_topology_pair"`
	CameraLo          string `gorm:"column:camera_lo;not null;uniqueIndex:uq_camera_topology_pair"`
	CameraHi          string `gorm:"column:camera_hi;not null;uniqueIndex:uq_camera_topology_pair"`
	CameraAID         string `gorm:"column:camera_a_id;not null"`
	CameraBID         string `gorm:"column:camera_b_id;not null"`
	TransitionSeconds int    `gorm:"column:transition_seconds;not null"`
	Direction         string `gorm:"column:direction;not null"`
}

func (TopologyEdgeModel) TableName() string { return "camera_topology_edges" }

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func cutoffNanos(t time.Time) int64 {
	if t.IsZero() {
		return math.MinInt64
	}
	return t.UnixNano()
}

func fromRecord(r model.TrackingRecord) (TrackingRecordModel, error) {
	f := r.LatestFeatures
	m := TrackingRecordModel{
		TrackingID:       r.TrackingID,
		BadgeNumber:      f.BadgeNumber,
		ClothingUpper:    f.ClothingUpper,
		ClothingLower:    f.ClothingLower,
		BodyType:         string(f.BodyType),
		HeightEstimate:   string(f.HeightEstimate),
		PositionInFrame:  f.PositionInFrame,
		Action:           f.Action,
		Confidence:       f.Confidence,
		LastSeenCameraID: r.LastSeenCameraID,
		LastSeenAt:       toNanos(r.LastSeenTime),
		FirstSeenAt:      toNanos(r.FirstSeenTime),
		TotalSightings:   r.TotalSightings,
		MatchConfidence:  r.MatchConfidence,
	}
	if r.LinkedWorkerID != nil {
		id := *r.LinkedWorkerID
		m.LinkedWorkerID = &id
	}
	if r.DeletedAt != nil {
		n := r.DeletedAt.UnixNano()
		m.DeletedAtNano = &n
	}
	if f.SafetyGear != nil {
		raw, err := json.Marshal(f.SafetyGear)
		if err != nil {
			return TrackingRecordModel{}, errors.Wrapf(err, "encode safety gear for %s", r.TrackingID)
		}
		m.SafetyGear = datatypes.JSON(raw)
	}
	return m, nil
}

func (m TrackingRecordModel) toRecord() (model.TrackingRecord, error) {
	r := model.TrackingRecord{
		TrackingID: m.TrackingID,
		LatestFeatures: model.AttributeObservation{
			BadgeNumber:     m.BadgeNumber,
			ClothingUpper:   m.ClothingUpper,
			ClothingLower:   m.ClothingLower,
			BodyType:        model.BodyType(m.BodyType),
			HeightEstimate:  model.HeightEstimate(m.HeightEstimate),
			PositionInFrame: m.PositionInFrame,
			Action:          m.Action,
			Confidence:      m.Confidence,
		},
		LastSeenCameraID: m.LastSeenCameraID,
		LastSeenTime:     fromNanos(m.LastSeenAt),
		FirstSeenTime:    fromNanos(m.FirstSeenAt),
		TotalSightings:   m.TotalSightings,
		MatchConfidence:  m.MatchConfidence,
	}
	if m.LinkedWorkerID != nil {
		id := *m.LinkedWorkerID
		r.LinkedWorkerID = &id
	}
	if m.DeletedAtNano != nil {
		t := fromNanos(*m.DeletedAtNano)
		r.DeletedAt = &t
	}
	if len(m.SafetyGear) > 0 && string(m.SafetyGear) != "null" {
		var gear model.SafetyGear
		if err := json.Unmarshal(m.SafetyGear, &gear); err != nil {
			return model.TrackingRecord{}, errors.Wrapf(err, "decode safety gear for %s", m.TrackingID)
		}
		r.LatestFeatures.SafetyGear = gear
	}
	return r, nil
}

func fromPoint(p model.TrajectoryPoint) TrajectoryPointModel {
	return TrajectoryPointModel{
		TrackingID: p.TrackingID,
		CameraID:   p.CameraID,
		ObservedAt: toNanos(p.Timestamp),
		Position:   p.Position,
		Action:     p.Action,
		Confidence: p.Confidence,
	}
}

func (m TrajectoryPointModel) toPoint() model.TrajectoryPoint {
	return model.TrajectoryPoint{
		TrackingID: m.TrackingID,
		CameraID:   m.CameraID,
		Timestamp:  fromNanos(m.ObservedAt),
		Position:   m.Position,
		Action:     m.Action,
		Confidence: m.Confidence,
	}
}

func fromEdge(e model.CameraTopologyEdge) TopologyEdgeModel {
	lo, hi := model.OrderedPair(e.CameraAID, e.CameraBID)
	return TopologyEdgeModel{
		Scope:             e.Scope,
		CameraLo:          lo,
		CameraHi:          hi,
		CameraAID:         e.CameraAID,
		CameraBID:         e.CameraBID,
		TransitionSeconds: e.TransitionTimeSeconds,
		Direction:         string(e.Direction),
	}
}

func (m TopologyEdgeModel) toEdge() model.CameraTopologyEdge {
	return model.CameraTopologyEdge{
		Scope:                 m.Scope,
		CameraAID:             m.CameraAID,
		CameraBID:             m.CameraBID,
		TransitionTimeSeconds: m.TransitionSeconds,
		Direction:             model.Direction(m.Direction),
	}
}
