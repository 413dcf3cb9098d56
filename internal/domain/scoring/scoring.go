// Package scoring computes the weighted attribute similarity between a known
// identity and a new observation.
package scoring

import (
	"fmt"
	"math"
	"strings"

	"github.com/okian/crosscam/internal/domain/model"
)

// Default contribution of each attribute. They sum to exactly 1.0.
const (
	defaultBadgeWeight      = 0.50
	defaultUpperExactWeight = 0.15
	defaultUpperColorWeight = 0.08
	defaultLowerExactWeight = 0.10
	defaultLowerColorWeight = 0.05
	defaultBodyTypeWeight   = 0.10
	defaultHeightWeight     = 0.10
	defaultGearWeight       = 0.05
	maxScoreValue           = 1.0
)

// Reasons attached to a score, one per contributing attribute.
const (
	ReasonBadge       = "badge_match"
	ReasonUpperExact  = "upper_clothing_match"
	ReasonUpperColor  = "upper_color_match"
	ReasonLowerExact  = "lower_clothing_match"
	ReasonLowerColor  = "lower_color_match"
	ReasonBodyType    = "body_type_match"
	ReasonHeight      = "height_match"
	ReasonSafetyGear  = "safety_gear_similarity"
	ReasonNewIdentity = "new_identity"
)

// GearKeys are the safety gear attributes taken into account.
var GearKeys = []string{"hatColor", "apronColor", "hasMask", "hasGloves", "hasApron"} //nolint:gochecknoglobals // fixed vocabulary

// Weights holds the contribution of every attribute to the final score.
type Weights struct {
	Badge      float64
	UpperExact float64
	UpperColor float64
	LowerExact float64
	LowerColor float64
	BodyType   float64
	Height     float64
	Gear       float64
}

// DefaultWeights returns the production weighting.
func DefaultWeights() Weights {
	return Weights{
		Badge:      defaultBadgeWeight,
		UpperExact: defaultUpperExactWeight,
		UpperColor: defaultUpperColorWeight,
		LowerExact: defaultLowerExactWeight,
		LowerColor: defaultLowerColorWeight,
		BodyType:   defaultBodyTypeWeight,
		Height:     defaultHeightWeight,
		Gear:       defaultGearWeight,
	}
}

// Option applies a configuration option to the AttributeScorer.
type Option func(*AttributeScorer)

// WithWeights replaces the default weights. Negative weights are ignored.
func WithWeights(w Weights) Option {
	return func(s *AttributeScorer) {
		if w.Badge < 0 || w.UpperExact < 0 || w.UpperColor < 0 || w.LowerExact < 0 ||
			w.LowerColor < 0 || w.BodyType < 0 || w.Height < 0 || w.Gear < 0 {
			return
		}
		s.weights = w
	}
}

// Result contains the computed score and the attributes that contributed to it.
type Result struct {
	Score   float64
	Reasons []string
}

// Scorer compares a stored identity snapshot against a new observation.
// Implementations must be pure: the same inputs always give the same Result.
type Scorer interface {
	Score(known, observed model.AttributeObservation) Result
}

// AttributeScorer implements Scorer with fixed per-attribute weights.
type AttributeScorer struct {
	weights Weights
}

// NewAttributeScorer creates a scorer with the default weights.
func NewAttributeScorer(opts ...Option) *AttributeScorer {
	s := &AttributeScorer{weights: DefaultWeights()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Weights returns the weights in use.
func (s *AttributeScorer) Weights() Weights { return s.weights }

// Score sums the independent attribute contributions, clamped to [0,1].
func (s *AttributeScorer) Score(known, observed model.AttributeObservation) Result {
	var (
		score   float64
		reasons []string
	)
	add := func(w float64, reason string) {
		score += w
		reasons = append(reasons, reason)
	}

	if known.HasBadge() && observed.HasBadge() &&
		strings.EqualFold(strings.TrimSpace(known.BadgeNumber), strings.TrimSpace(observed.BadgeNumber)) {
		add(s.weights.Badge, ReasonBadge)
	}

	switch clothingMatch(known.ClothingUpper, observed.ClothingUpper) {
	case matchExact:
		add(s.weights.UpperExact, ReasonUpperExact)
	case matchColor:
		add(s.weights.UpperColor, ReasonUpperColor)
	}

	switch clothingMatch(known.ClothingLower, observed.ClothingLower) {
	case matchExact:
		add(s.weights.LowerExact, ReasonLowerExact)
	case matchColor:
		add(s.weights.LowerColor, ReasonLowerColor)
	}

	if known.BodyType.Known() && known.BodyType == observed.BodyType {
		add(s.weights.BodyType, ReasonBodyType)
	}

	if known.HeightEstimate.Known() && known.HeightEstimate == observed.HeightEstimate {
		add(s.weights.Height, ReasonHeight)
	}

	if frac, compared := GearSimilarity(known.SafetyGear, observed.SafetyGear); compared > 0 && frac > 0 {
		add(frac*s.weights.Gear, ReasonSafetyGear)
	}

	return Result{Score: math.Max(0, math.Min(maxScoreValue, score)), Reasons: reasons}
}

type clothing int

const (
	matchNone clothing = iota
	matchExact
	matchColor
)

func clothingMatch(a, b string) clothing {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" {
		return matchNone
	}
	if strings.EqualFold(a, b) {
		return matchExact
	}
	ca, cb := DominantColor(a), DominantColor(b)
	if ca != "" && ca == cb {
		return matchColor
	}
	return matchNone
}

// GearSimilarity returns the fraction of GearKeys present on at least one side
// whose values match exactly, and how many keys were compared.
func GearSimilarity(a, b model.SafetyGear) (float64, int) {
	compared, matched := 0, 0
	for _, key := range GearKeys {
		va, okA := a[key]
		vb, okB := b[key]
		if !okA && !okB {
			continue
		}
		compared++
		if okA && okB && gearEqual(va, vb) {
			matched++
		}
	}
	if compared == 0 {
		return 0, 0
	}
	return float64(matched) / float64(compared), compared
}

func gearEqual(a, b any) bool {
	switch va := a.(type) {
	case bool:
		vb, ok := b.(bool)
		return ok && va == vb
	case string:
		vb, ok := b.(string)
		return ok && va == vb
	case nil:
		return b == nil
	default:
		return fmt.Sprint(a) == fmt.Sprint(b)
	}
}
