// Package model contains domain models passed between layers.
package model

import "strings"

// BodyType is the coarse build estimate produced by the vision model.
type BodyType string

// Known body types. The zero value means unknown.
const (
	BodyUnknown BodyType = ""
	BodyThin    BodyType = "THIN"
	BodyMedium  BodyType = "MEDIUM"
	BodyHeavy   BodyType = "HEAVY"
)

// Known reports whether the body type carries information.
func (b BodyType) Known() bool {
	switch b {
	case BodyThin, BodyMedium, BodyHeavy:
		return true
	}
	return false
}

// ParseBodyType normalizes free-form model output; unrecognized values map to unknown.
func ParseBodyType(s string) BodyType {
	b := BodyType(strings.ToUpper(strings.TrimSpace(s)))
	if b.Known() {
		return b
	}
	return BodyUnknown
}

// HeightEstimate is the coarse height estimate produced by the vision model.
type HeightEstimate string

// Known height estimates. The zero value means unknown.
const (
	HeightUnknown HeightEstimate = ""
	HeightShort   HeightEstimate = "SHORT"
	HeightMedium  HeightEstimate = "MEDIUM"
	HeightTall    HeightEstimate = "TALL"
)

// Known reports whether the height estimate carries information.
func (h HeightEstimate) Known() bool {
	switch h {
	case HeightShort, HeightMedium, HeightTall:
		return true
	}
	return false
}

// ParseHeightEstimate normalizes free-form model output; unrecognized values map to unknown.
func ParseHeightEstimate(s string) HeightEstimate {
	h := HeightEstimate(strings.ToUpper(strings.TrimSpace(s)))
	if h.Known() {
		return h
	}
	return HeightUnknown
}

// SafetyGear maps a gear name (hasMask, hatColor, ...) to a bool or string value.
type SafetyGear map[string]any

// Clone returns an independent copy.
func (g SafetyGear) Clone() SafetyGear {
	if g == nil {
		return nil
	}
	out := make(SafetyGear, len(g))
	for k, v := range g {
		out[k] = v
	}
	return out
}

// AttributeObservation is one non-biometric description of a person in one frame,
// as returned by the external attribute extraction call.
type AttributeObservation struct {
	BadgeNumber     string         `json:"badge_number,omitempty" yaml:"badge_number,omitempty"`
	ClothingUpper   string         `json:"clothing_upper" yaml:"clothing_upper"`
	ClothingLower   string         `json:"clothing_lower" yaml:"clothing_lower"`
	BodyType        BodyType       `json:"body_type,omitempty" yaml:"body_type,omitempty"`
	HeightEstimate  HeightEstimate `json:"height_estimate,omitempty" yaml:"height_estimate,omitempty"`
	SafetyGear      SafetyGear     `json:"safety_gear,omitempty" yaml:"safety_gear,omitempty"`
	PositionInFrame string         `json:"position_in_frame,omitempty" yaml:"position_in_frame,omitempty"`
	Action          string         `json:"action,omitempty" yaml:"action,omitempty"`
	Confidence      float64        `json:"confidence" yaml:"confidence"`
}

// HasBadge reports whether a badge number was read.
func (o AttributeObservation) HasBadge() bool {
	return strings.TrimSpace(o.BadgeNumber) != ""
}

// Clone returns a copy that shares no mutable state with o.
func (o AttributeObservation) Clone() AttributeObservation {
	o.SafetyGear = o.SafetyGear.Clone()
	return o
}

// Normalize trims text fields, canonicalizes enums and clamps confidence into [0,1].
func (o AttributeObservation) Normalize() AttributeObservation {
	o.BadgeNumber = strings.TrimSpace(o.BadgeNumber)
	o.ClothingUpper = strings.TrimSpace(o.ClothingUpper)
	o.ClothingLower = strings.TrimSpace(o.ClothingLower)
	o.BodyType = ParseBodyType(string(o.BodyType))
	o.HeightEstimate = ParseHeightEstimate(string(o.HeightEstimate))
	switch {
	case o.Confidence < 0:
		o.Confidence = 0
	case o.Confidence > 1:
		o.Confidence = 1
	}
	o.SafetyGear = o.SafetyGear.Clone()
	return o
}
