package model_test

import (
	"testing"

	"github.com/okian/crosscam/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestAttributeObservation(t *testing.T) {
	convey.Convey("Given a raw observation from the vision model", t, func() {
		obs := model.AttributeObservation{
			BadgeNumber:    "  B12 ",
			ClothingUpper:  " Blue Overalls ",
			BodyType:       "medium",
			HeightEstimate: "giant",
			SafetyGear:     model.SafetyGear{"hasMask": true},
			Confidence:     1.7,
		}

		convey.Convey("When normalizing it", func() {
			n := obs.Normalize()

			convey.Convey("Then text is trimmed and enums are canonical", func() {
				convey.So(n.BadgeNumber, convey.ShouldEqual, "B12")
				convey.So(n.ClothingUpper, convey.ShouldEqual, "Blue Overalls")
				convey.So(n.BodyType, convey.ShouldEqual, model.BodyMedium)
				convey.So(n.HeightEstimate, convey.ShouldEqual, model.HeightUnknown)
				convey.So(n.Confidence, convey.ShouldEqual, 1.0)
				convey.So(n.HasBadge(), convey.ShouldBeTrue)
			})

			convey.Convey("Then the safety gear map is not shared", func() {
				n.SafetyGear["hasMask"] = false
				convey.So(obs.SafetyGear["hasMask"], convey.ShouldEqual, true)
			})
		})

		convey.Convey("When the confidence is negative", func() {
			obs.Confidence = -0.2
			convey.So(obs.Normalize().Confidence, convey.ShouldEqual, 0.0)
		})
	})
}

func TestTrackingRecordClone(t *testing.T) {
	convey.Convey("Given a linked record", t, func() {
		worker := int64(42)
		rec := model.TrackingRecord{TrackingID: "t1", LinkedWorkerID: &worker}

		convey.Convey("When cloning it", func() {
			cp := rec.Clone()
			*cp.LinkedWorkerID = 7

			convey.Convey("Then the original keeps its link", func() {
				convey.So(*rec.LinkedWorkerID, convey.ShouldEqual, 42)
				convey.So(rec.Linked(), convey.ShouldBeTrue)
				convey.So(rec.Deleted(), convey.ShouldBeFalse)
			})
		})
	})
}

func TestPairKey(t *testing.T) {
	convey.Convey("Given two cameras", t, func() {
		convey.Convey("Then the key ignores ordering", func() {
			convey.So(model.PairKey("plant-1", "C1", "C2"), convey.ShouldEqual, model.PairKey("plant-1", "C2", "C1"))
		})

		convey.Convey("Then the key depends on scope", func() {
			convey.So(model.PairKey("plant-1", "C1", "C2"), convey.ShouldNotEqual, model.PairKey("plant-2", "C1", "C2"))
		})

		convey.Convey("Then edges share the helper", func() {
			e := model.CameraTopologyEdge{Scope: "s", CameraAID: "B", CameraBID: "A"}
			convey.So(e.PairKey(), convey.ShouldEqual, model.PairKey("s", "A", "B"))
		})
	})
}

func TestDirection(t *testing.T) {
	convey.Convey("Given edge directions", t, func() {
		convey.So(model.DirectionAToB.Valid(), convey.ShouldBeTrue)
		convey.So(model.DirectionBidirectional.Valid(), convey.ShouldBeTrue)
		convey.So(model.Direction("SIDEWAYS").Valid(), convey.ShouldBeFalse)
	})
}
