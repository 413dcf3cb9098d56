package scoring_test

import (
	"testing"

	"github.com/okian/crosscam/internal/domain/model"
	scoring "github.com/okian/crosscam/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func worker() model.AttributeObservation {
	return model.AttributeObservation{
		BadgeNumber:    "B12",
		ClothingUpper:  "blue overalls",
		ClothingLower:  "black trousers",
		BodyType:       model.BodyMedium,
		HeightEstimate: model.HeightTall,
		Confidence:     0.9,
	}
}

func TestAttributeScorer_Score(t *testing.T) {
	Convey("Given the default attribute scorer", t, func() {
		scorer := scoring.NewAttributeScorer()

		Convey("When both observations are identical", func() {
			res := scorer.Score(worker(), worker())

			Convey("Then every attribute contributes", func() {
				So(res.Score, ShouldAlmostEqual, 0.95, 1e-9)
				So(res.Reasons, ShouldContain, scoring.ReasonBadge)
				So(res.Reasons, ShouldContain, scoring.ReasonUpperExact)
				So(res.Reasons, ShouldContain, scoring.ReasonLowerExact)
				So(res.Reasons, ShouldContain, scoring.ReasonBodyType)
				So(res.Reasons, ShouldContain, scoring.ReasonHeight)
				So(res.Score, ShouldBeLessThanOrEqualTo, 1.0)
			})
		})

		Convey("When only the badge matches", func() {
			a := model.AttributeObservation{BadgeNumber: "B12"}
			b := model.AttributeObservation{BadgeNumber: "b12"}

			Convey("Then the score is the badge weight alone", func() {
				res := scorer.Score(a, b)
				So(res.Score, ShouldAlmostEqual, 0.5, 1e-9)
				So(res.Reasons, ShouldResemble, []string{scoring.ReasonBadge})
			})
		})

		Convey("When badges are missing on one side", func() {
			a := worker()
			b := worker()
			b.BadgeNumber = ""

			Convey("Then the badge does not contribute", func() {
				res := scorer.Score(a, b)
				So(res.Reasons, ShouldNotContain, scoring.ReasonBadge)
				So(res.Score, ShouldAlmostEqual, 0.45, 1e-9)
			})
		})

		Convey("When clothing differs but shares the dominant color", func() {
			a := worker()
			b := worker()
			b.ClothingUpper = "Blue hi-vis vest"
			b.ClothingLower = "black cargo shorts"

			Convey("Then partial color credit is given instead of the exact credit", func() {
				res := scorer.Score(a, b)
				So(res.Reasons, ShouldContain, scoring.ReasonUpperColor)
				So(res.Reasons, ShouldContain, scoring.ReasonLowerColor)
				So(res.Reasons, ShouldNotContain, scoring.ReasonUpperExact)
				So(res.Score, ShouldAlmostEqual, 0.5+0.08+0.05+0.1+0.1, 1e-9)
			})
		})

		Convey("When clothing colors differ", func() {
			a := worker()
			b := worker()
			b.ClothingUpper = "red overalls"

			Convey("Then the upper clothing gives nothing", func() {
				res := scorer.Score(a, b)
				So(res.Reasons, ShouldNotContain, scoring.ReasonUpperExact)
				So(res.Reasons, ShouldNotContain, scoring.ReasonUpperColor)
			})
		})

		Convey("When both clothing descriptions are empty", func() {
			a := model.AttributeObservation{}
			b := model.AttributeObservation{}

			Convey("Then empty strings never count as equal", func() {
				res := scorer.Score(a, b)
				So(res.Score, ShouldEqual, 0)
				So(res.Reasons, ShouldBeEmpty)
			})
		})

		Convey("When body type and height are unknown on both sides", func() {
			a := model.AttributeObservation{BodyType: model.BodyUnknown, HeightEstimate: model.HeightUnknown}

			Convey("Then unknown values do not match", func() {
				So(scorer.Score(a, a).Score, ShouldEqual, 0)
			})
		})

		Convey("When observations differ only in one of three gear keys", func() {
			a := worker()
			a.SafetyGear = model.SafetyGear{"hasMask": true, "hasGloves": true, "hatColor": "white"}
			b := worker()
			b.SafetyGear = model.SafetyGear{"hasMask": true, "hasGloves": false, "hatColor": "white"}

			Convey("Then two thirds of the gear weight is added", func() {
				res := scorer.Score(a, b)
				So(res.Score, ShouldAlmostEqual, 0.5+0.15+0.1+0.1+0.1+(2.0/3.0)*0.05, 1e-9)
				So(res.Score, ShouldAlmostEqual, 0.983, 0.001)
				So(res.Reasons, ShouldContain, scoring.ReasonSafetyGear)
			})
		})

		Convey("When scoring the same pair repeatedly", func() {
			a := worker()
			b := worker()
			b.ClothingUpper = "navy jacket"
			first := scorer.Score(a, b)

			Convey("Then the result is deterministic", func() {
				for i := 0; i < 50; i++ {
					So(scorer.Score(a, b), ShouldResemble, first)
				}
			})
		})
	})
}

func TestAttributeScorer_Weights(t *testing.T) {
	Convey("Given custom weights", t, func() {
		w := scoring.DefaultWeights()
		w.Badge = 0.9

		Convey("When they are valid", func() {
			scorer := scoring.NewAttributeScorer(scoring.WithWeights(w))
			Convey("Then they replace the defaults", func() {
				So(scorer.Weights().Badge, ShouldEqual, 0.9)
			})
		})

		Convey("When one of them is negative", func() {
			w.Gear = -1
			scorer := scoring.NewAttributeScorer(scoring.WithWeights(w))
			Convey("Then the defaults are kept", func() {
				So(scorer.Weights(), ShouldResemble, scoring.DefaultWeights())
			})
		})

		Convey("When weights sum above one", func() {
			w.Badge = 2
			scorer := scoring.NewAttributeScorer(scoring.WithWeights(w))
			Convey("Then the score is clamped", func() {
				So(scorer.Score(worker(), worker()).Score, ShouldEqual, 1.0)
			})
		})
	})
}

func TestGearSimilarity(t *testing.T) {
	Convey("Given safety gear maps", t, func() {
		Convey("When a key is present on one side only", func() {
			frac, compared := scoring.GearSimilarity(
				model.SafetyGear{"hasMask": true},
				model.SafetyGear{"hasApron": true},
			)
			Convey("Then both keys are compared and neither matches", func() {
				So(compared, ShouldEqual, 2)
				So(frac, ShouldEqual, 0)
			})
		})

		Convey("When unrelated keys are present", func() {
			frac, compared := scoring.GearSimilarity(
				model.SafetyGear{"vestColor": "orange"},
				model.SafetyGear{"vestColor": "orange"},
			)
			Convey("Then they are ignored", func() {
				So(compared, ShouldEqual, 0)
				So(frac, ShouldEqual, 0)
			})
		})

		Convey("When a bool and a string look alike", func() {
			frac, _ := scoring.GearSimilarity(
				model.SafetyGear{"hasMask": true},
				model.SafetyGear{"hasMask": "true"},
			)
			Convey("Then they do not match", func() {
				So(frac, ShouldEqual, 0)
			})
		})
	})
}

func TestDominantColor(t *testing.T) {
	Convey("Given clothing descriptions", t, func() {
		So(scoring.DominantColor("Blue overalls"), ShouldEqual, "blue")
		So(scoring.DominantColor("navy jacket with white stripes"), ShouldEqual, "blue")
		So(scoring.DominantColor("dark-grey hoodie"), ShouldEqual, "gray")
		So(scoring.DominantColor("hi-vis vest"), ShouldEqual, "")
		So(scoring.DominantColor(""), ShouldEqual, "")
	})
}
