package model

import "strings"

// Direction records the expected travel direction along a topology edge.
// It is informational; matching treats every edge as bidirectional.
type Direction string

// Edge directions.
const (
	DirectionAToB          Direction = "A_TO_B"
	DirectionBToA          Direction = "B_TO_A"
	DirectionBidirectional Direction = "BIDIRECTIONAL"
)

// Valid reports whether d is one of the known directions.
func (d Direction) Valid() bool {
	switch d {
	case DirectionAToB, DirectionBToA, DirectionBidirectional:
		return true
	}
	return false
}

// DefaultTransitionSeconds is used when an edge is configured without a transition time.
const DefaultTransitionSeconds = 30

// CameraTopologyEdge is the configured travel time between two cameras within a scope.
type CameraTopologyEdge struct {
	Scope                 string    `json:"scope,omitempty" yaml:"scope,omitempty"`
	CameraAID             string    `json:"camera_a_id" yaml:"camera_a_id"`
	CameraBID             string    `json:"camera_b_id" yaml:"camera_b_id"`
	TransitionTimeSeconds int       `json:"transition_time_seconds" yaml:"transition_time_seconds"`
	Direction             Direction `json:"direction" yaml:"direction"`
}

// PairKey returns the unordered (scope, camera, camera) key used for uniqueness.
func (e CameraTopologyEdge) PairKey() string {
	return PairKey(e.Scope, e.CameraAID, e.CameraBID)
}

// PairKey builds the unordered key for two cameras in a scope.
func PairKey(scope, a, b string) string {
	lo, hi := OrderedPair(a, b)
	return strings.Join([]string{scope, lo, hi}, "\x00")
}

// OrderedPair returns the two camera ids in lexical order.
func OrderedPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}
