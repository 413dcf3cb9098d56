package model

import "time"

// TrackingRecord is one resolved cross-camera identity.
type TrackingRecord struct {
	TrackingID       string
	LinkedWorkerID   *int64
	LatestFeatures   AttributeObservation
	LastSeenCameraID string
	LastSeenTime     time.Time
	FirstSeenTime    time.Time
	TotalSightings   int
	MatchConfidence  float64
	DeletedAt        *time.Time
}

// Deleted reports whether retention has soft-deleted the record.
func (r TrackingRecord) Deleted() bool { return r.DeletedAt != nil }

// Linked reports whether an operator linked the record to a worker.
func (r TrackingRecord) Linked() bool { return r.LinkedWorkerID != nil }

// Clone returns a deep copy.
func (r TrackingRecord) Clone() TrackingRecord {
	r.LatestFeatures = r.LatestFeatures.Clone()
	if r.LinkedWorkerID != nil {
		id := *r.LinkedWorkerID
		r.LinkedWorkerID = &id
	}
	if r.DeletedAt != nil {
		t := *r.DeletedAt
		r.DeletedAt = &t
	}
	return r
}

// TrajectoryPoint is one append-only sighting of a record.
type TrajectoryPoint struct {
	TrackingID string
	CameraID   string
	Timestamp  time.Time
	Position   string
	Action     string
	Confidence float64
}

// ResolutionResult is what a caller receives for every resolved observation.
type ResolutionResult struct {
	TrackingID     string   `json:"tracking_id" yaml:"tracking_id"`
	LinkedWorkerID *int64   `json:"linked_worker_id,omitempty" yaml:"linked_worker_id,omitempty"`
	IsNew          bool     `json:"is_new" yaml:"is_new"`
	MatchScore     float64  `json:"match_score" yaml:"match_score"`
	MatchReasons   []string `json:"match_reasons" yaml:"match_reasons"`
}

// Statistics summarizes the tracking store at a point in time.
type Statistics struct {
	TotalTracks           int            `json:"total_tracks" yaml:"total_tracks"`
	ActiveTracks          int            `json:"active_tracks" yaml:"active_tracks"`
	LinkedTracks          int            `json:"linked_tracks" yaml:"linked_tracks"`
	BadgeIdentifiedTracks int            `json:"badge_identified_tracks" yaml:"badge_identified_tracks"`
	PerCameraCounts       map[string]int `json:"per_camera_counts" yaml:"per_camera_counts"`
	TotalTrajectoryPoints int            `json:"total_trajectory_points" yaml:"total_trajectory_points"`
}

// CleanupResult reports the outcome of a retention sweep.
type CleanupResult struct {
	RemovedCount   int `json:"removed_count" yaml:"removed_count"`
	RemainingCount int `json:"remaining_count" yaml:"remaining_count"`
}

// SearchQuery selects records by badge substring or clothing color. Badge wins
// when both are set; an empty query matches nothing.
type SearchQuery struct {
	Badge         string
	ClothingColor string
}
