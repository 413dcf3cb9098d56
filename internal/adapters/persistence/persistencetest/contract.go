// Package persistencetest holds the behavioural suite every persistence
// backend must pass.
package persistencetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/crosscam/internal/adapters/persistence"
	"github.com/okian/crosscam/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

// Factory returns a fresh, empty store. It is called once per leaf scenario.
type Factory func(t *testing.T) persistence.Store

// Base is the reference instant used by the suite.
var Base = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func at(sec int) time.Time { return Base.Add(time.Duration(sec) * time.Second) }

// Record builds a live record first seen at Base and last seen at sec.
func Record(id, camera string, sec int, features model.AttributeObservation) model.TrackingRecord {
	return model.TrackingRecord{
		TrackingID:       id,
		LatestFeatures:   features,
		LastSeenCameraID: camera,
		LastSeenTime:     at(sec),
		FirstSeenTime:    Base,
		TotalSightings:   1,
		MatchConfidence:  features.Confidence,
	}
}

func point(id, camera string, sec int) model.TrajectoryPoint {
	return model.TrajectoryPoint{TrackingID: id, CameraID: camera, Timestamp: at(sec), Position: "center", Action: "walking", Confidence: 0.9}
}

func apply(s persistence.Store, ops ...func(*persistence.Batch)) error {
	var b persistence.Batch
	for _, op := range ops {
		op(&b)
	}
	return s.Apply(context.Background(), b)
}

func upsert(r model.TrackingRecord) func(*persistence.Batch) {
	return func(b *persistence.Batch) { b.Upsert(r) }
}

func appendPoint(p model.TrajectoryPoint) func(*persistence.Batch) {
	return func(b *persistence.Batch) { b.Append(p) }
}

func trackingIDs(recs []model.TrackingRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.TrackingID
	}
	return out
}

// Run executes the suite against stores produced by open.
func Run(t *testing.T, open Factory) { //nolint:funlen // one suite covering the whole contract
	ctx := context.Background()
	blue := model.AttributeObservation{
		BadgeNumber:    "B-1042",
		ClothingUpper:  "Blue overalls",
		ClothingLower:  "black trousers",
		BodyType:       model.BodyMedium,
		HeightEstimate: model.HeightTall,
		SafetyGear:     model.SafetyGear{"hasMask": true, "hatColor": "yellow"},
		Confidence:     0.8,
	}
	red := model.AttributeObservation{ClothingUpper: "red vest", ClothingLower: "navy_jeans 100%", Confidence: 0.6}

	Convey("Given an empty store", t, func() {
		s := open(t)
		Reset(func() { _ = s.Close() })

		Convey("Unknown ids read as absent", func() {
			_, err := s.GetRecord(ctx, "nope")
			So(errors.Is(err, persistence.ErrNotFound), ShouldBeTrue)
			pts, err := s.GetTrajectory(ctx, "nope")
			So(err, ShouldBeNil)
			So(pts, ShouldBeEmpty)
			_, ok, err := s.LatestSighting(ctx)
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)
		})

		Convey("A written record reads back unchanged", func() {
			So(apply(s, upsert(Record("t1", "C1", 0, blue))), ShouldBeNil)

			got, err := s.GetRecord(ctx, "t1")
			So(err, ShouldBeNil)
			So(got.TrackingID, ShouldEqual, "t1")
			So(got.LatestFeatures.BadgeNumber, ShouldEqual, "B-1042")
			So(got.LatestFeatures.BodyType, ShouldEqual, model.BodyMedium)
			So(got.LatestFeatures.HeightEstimate, ShouldEqual, model.HeightTall)
			So(got.LatestFeatures.SafetyGear["hasMask"], ShouldEqual, true)
			So(got.LatestFeatures.SafetyGear["hatColor"], ShouldEqual, "yellow")
			So(got.LastSeenCameraID, ShouldEqual, "C1")
			So(got.LastSeenTime.Equal(Base), ShouldBeTrue)
			So(got.FirstSeenTime.Equal(Base), ShouldBeTrue)
			So(got.TotalSightings, ShouldEqual, 1)
			So(got.MatchConfidence, ShouldAlmostEqual, 0.8)
			So(got.LinkedWorkerID, ShouldBeNil)
			So(got.DeletedAt, ShouldBeNil)

			Convey("And a later write of the same id replaces it", func() {
				upd := Record("t1", "C2", 60, blue)
				upd.TotalSightings = 2
				upd.MatchConfidence = 0.95
				worker := int64(77)
				upd.LinkedWorkerID = &worker
				So(apply(s, upsert(upd), appendPoint(point("t1", "C2", 60))), ShouldBeNil)

				got, err := s.GetRecord(ctx, "t1")
				So(err, ShouldBeNil)
				So(got.TotalSightings, ShouldEqual, 2)
				So(got.LastSeenCameraID, ShouldEqual, "C2")
				So(got.LastSeenTime.Equal(at(60)), ShouldBeTrue)
				So(got.FirstSeenTime.Equal(Base), ShouldBeTrue)
				So(*got.LinkedWorkerID, ShouldEqual, int64(77))
			})
		})

		Convey("Trajectories come back ascending by time", func() {
			So(apply(s,
				upsert(Record("t1", "C1", 0, blue)),
				appendPoint(point("t1", "C3", 120)),
				appendPoint(point("t1", "C1", 30)),
				appendPoint(point("t1", "C2", 60)),
			), ShouldBeNil)

			pts, err := s.GetTrajectory(ctx, "t1")
			So(err, ShouldBeNil)
			So(pts, ShouldHaveLength, 3)
			So(pts[0].CameraID, ShouldEqual, "C1")
			So(pts[1].CameraID, ShouldEqual, "C2")
			So(pts[2].CameraID, ShouldEqual, "C3")
			So(pts[2].Timestamp.Equal(at(120)), ShouldBeTrue)
			So(pts[0].Position, ShouldEqual, "center")
			So(pts[0].Action, ShouldEqual, "walking")
		})

		Convey("A batch that cannot be applied leaves nothing behind", func() {
			err := apply(s,
				upsert(Record("t1", "C1", 0, blue)),
				appendPoint(point("ghost", "C1", 0)),
			)
			So(err, ShouldNotBeNil)
			_, err = s.GetRecord(ctx, "t1")
			So(errors.Is(err, persistence.ErrNotFound), ShouldBeTrue)
		})

		Convey("A malformed op is rejected", func() {
			err := s.Apply(ctx, persistence.Batch{Ops: []persistence.Op{{}}})
			So(errors.Is(err, persistence.ErrInvalidBatch), ShouldBeTrue)
		})

		Convey("Given a few records", func() {
			plain := model.AttributeObservation{ClothingUpper: "grey hoodie", Confidence: 0.5}
			So(apply(s,
				upsert(Record("t1", "C1", 0, blue)),
				upsert(Record("t2", "C2", 600, red)),
				upsert(Record("t3", "C1", 3600, plain)),
				appendPoint(point("t1", "C1", 0)),
				appendPoint(point("t2", "C2", 600)),
				appendPoint(point("t2", "C2", 610)),
			), ShouldBeNil)

			Convey("Search by badge is a case-insensitive substring match", func() {
				got, err := s.Search(ctx, model.SearchQuery{Badge: "b-10"})
				So(err, ShouldBeNil)
				So(trackingIDs(got), ShouldResemble, []string{"t1"})

				got, err = s.Search(ctx, model.SearchQuery{Badge: "zzz"})
				So(err, ShouldBeNil)
				So(got, ShouldBeEmpty)
			})

			Convey("Search by color looks at both garments, newest first", func() {
				got, err := s.Search(ctx, model.SearchQuery{ClothingColor: "BLUE"})
				So(err, ShouldBeNil)
				So(trackingIDs(got), ShouldResemble, []string{"t1"})

				got, err = s.Search(ctx, model.SearchQuery{ClothingColor: "navy"})
				So(err, ShouldBeNil)
				So(trackingIDs(got), ShouldResemble, []string{"t2"})

				got, err = s.Search(ctx, model.SearchQuery{ClothingColor: "e"})
				So(err, ShouldBeNil)
				So(trackingIDs(got), ShouldResemble, []string{"t3", "t2", "t1"})
			})

			Convey("Search treats wildcards literally", func() {
				got, err := s.Search(ctx, model.SearchQuery{ClothingColor: "_"})
				So(err, ShouldBeNil)
				So(trackingIDs(got), ShouldResemble, []string{"t2"})

				got, err = s.Search(ctx, model.SearchQuery{ClothingColor: "%"})
				So(err, ShouldBeNil)
				So(trackingIDs(got), ShouldResemble, []string{"t2"})
			})

			Convey("An empty query matches nothing", func() {
				got, err := s.Search(ctx, model.SearchQuery{})
				So(err, ShouldBeNil)
				So(got, ShouldBeEmpty)
			})

			Convey("Statistics summarize live records", func() {
				st, err := s.Statistics(ctx, at(3600), 30*time.Minute)
				So(err, ShouldBeNil)
				So(st.TotalTracks, ShouldEqual, 3)
				So(st.ActiveTracks, ShouldEqual, 1)
				So(st.LinkedTracks, ShouldEqual, 0)
				So(st.BadgeIdentifiedTracks, ShouldEqual, 1)
				So(st.PerCameraCounts, ShouldResemble, map[string]int{"C1": 2, "C2": 1})
				So(st.TotalTrajectoryPoints, ShouldEqual, 3)
			})

			Convey("LiveSince and LatestSighting follow recency", func() {
				got, err := s.LiveSince(ctx, at(600))
				So(err, ShouldBeNil)
				So(trackingIDs(got), ShouldResemble, []string{"t2", "t3"})

				all, err := s.LiveSince(ctx, time.Time{})
				So(err, ShouldBeNil)
				So(all, ShouldHaveLength, 3)

				latest, ok, err := s.LatestSighting(ctx)
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(latest.Equal(at(3600)), ShouldBeTrue)
			})

			Convey("Soft cleanup hides stale records and drops their trajectories", func() {
				removed, remaining, err := s.Cleanup(ctx, persistence.CleanupParams{Cutoff: at(3000), Now: at(7200)})
				So(err, ShouldBeNil)
				So(removed, ShouldResemble, []string{"t1", "t2"})
				So(remaining, ShouldEqual, 1)

				_, err = s.GetRecord(ctx, "t1")
				So(errors.Is(err, persistence.ErrNotFound), ShouldBeTrue)
				pts, err := s.GetTrajectory(ctx, "t2")
				So(err, ShouldBeNil)
				So(pts, ShouldBeEmpty)

				st, err := s.Statistics(ctx, at(3600), 30*time.Minute)
				So(err, ShouldBeNil)
				So(st.TotalTracks, ShouldEqual, 1)
				So(st.TotalTrajectoryPoints, ShouldEqual, 0)

				got, err := s.Search(ctx, model.SearchQuery{Badge: "B-1042"})
				So(err, ShouldBeNil)
				So(got, ShouldBeEmpty)

				live, err := s.LiveSince(ctx, time.Time{})
				So(err, ShouldBeNil)
				So(trackingIDs(live), ShouldResemble, []string{"t3"})

				Convey("And a second sweep finds nothing more", func() {
					removed, remaining, err := s.Cleanup(ctx, persistence.CleanupParams{Cutoff: at(3000), Now: at(7300)})
					So(err, ShouldBeNil)
					So(removed, ShouldBeEmpty)
					So(remaining, ShouldEqual, 1)
				})
			})

			Convey("Cleanup keeps linked records when asked", func() {
				linked := Record("t1", "C1", 0, blue)
				worker := int64(9)
				linked.LinkedWorkerID = &worker
				So(apply(s, upsert(linked)), ShouldBeNil)

				removed, remaining, err := s.Cleanup(ctx, persistence.CleanupParams{Cutoff: at(3000), KeepLinked: true, Now: at(7200)})
				So(err, ShouldBeNil)
				So(removed, ShouldResemble, []string{"t2"})
				So(remaining, ShouldEqual, 2)

				pts, err := s.GetTrajectory(ctx, "t1")
				So(err, ShouldBeNil)
				So(pts, ShouldHaveLength, 1)
			})

			Convey("Hard cleanup removes rows and cascades to trajectories", func() {
				removed, remaining, err := s.Cleanup(ctx, persistence.CleanupParams{Cutoff: at(3000), Hard: true, Now: at(7200)})
				So(err, ShouldBeNil)
				So(removed, ShouldResemble, []string{"t1", "t2"})
				So(remaining, ShouldEqual, 1)

				pts, err := s.GetTrajectory(ctx, "t2")
				So(err, ShouldBeNil)
				So(pts, ShouldBeEmpty)

				st, err := s.Statistics(ctx, at(3600), 30*time.Minute)
				So(err, ShouldBeNil)
				So(st.TotalTrajectoryPoints, ShouldEqual, 0)
			})
		})

		Convey("Topology edges upsert by unordered pair within a scope", func() {
			So(s.SaveEdge(ctx, model.CameraTopologyEdge{CameraAID: "C1", CameraBID: "C2", TransitionTimeSeconds: 30, Direction: model.DirectionBidirectional}), ShouldBeNil)
			So(s.SaveEdge(ctx, model.CameraTopologyEdge{CameraAID: "C2", CameraBID: "C1", TransitionTimeSeconds: 45, Direction: model.DirectionAToB}), ShouldBeNil)
			So(s.SaveEdge(ctx, model.CameraTopologyEdge{Scope: "plant-2", CameraAID: "C1", CameraBID: "C2", TransitionTimeSeconds: 10, Direction: model.DirectionBidirectional}), ShouldBeNil)

			edges, err := s.ListEdges(ctx)
			So(err, ShouldBeNil)
			So(edges, ShouldHaveLength, 2)
			So(edges[0].Scope, ShouldEqual, "")
			So(edges[0].CameraAID, ShouldEqual, "C2")
			So(edges[0].TransitionTimeSeconds, ShouldEqual, 45)
			So(edges[0].Direction, ShouldEqual, model.DirectionAToB)
			So(edges[1].Scope, ShouldEqual, "plant-2")
		})

		Convey("The store answers pings while open", func() {
			So(s.Ping(ctx), ShouldBeNil)
		})
	})
}
