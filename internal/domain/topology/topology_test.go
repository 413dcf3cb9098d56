package topology_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/crosscam/internal/domain/model"
	"github.com/okian/crosscam/internal/domain/topology"
	"github.com/okian/crosscam/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

type fakePersister struct {
	saved []model.CameraTopologyEdge
	err   error
}

func (f *fakePersister) SaveEdge(_ context.Context, e model.CameraTopologyEdge) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, e)
	return nil
}

func (f *fakePersister) ListEdges(_ context.Context) ([]model.CameraTopologyEdge, error) {
	return f.saved, f.err
}

func TestMain(m *testing.M) {
	_ = logger.Init()
	m.Run()
}

func TestStore_PutGet(t *testing.T) {
	convey.Convey("Given an empty topology store", t, func() {
		ctx := context.Background()
		store := topology.NewStore()

		convey.Convey("When an edge is configured", func() {
			e, err := store.Put(ctx, model.CameraTopologyEdge{CameraAID: "C1", CameraBID: "C2", TransitionTimeSeconds: 45})
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then defaults are filled in", func() {
				convey.So(e.Direction, convey.ShouldEqual, model.DirectionBidirectional)
			})

			convey.Convey("Then it is found in both orderings", func() {
				ab, ok := store.Get("", "C1", "C2")
				convey.So(ok, convey.ShouldBeTrue)
				ba, ok := store.Get("", "C2", "C1")
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(ab, convey.ShouldResemble, ba)
			})

			convey.Convey("Then it is not visible from another scope", func() {
				_, ok := store.Get("plant-2", "C1", "C2")
				convey.So(ok, convey.ShouldBeFalse)
			})

			convey.Convey("And the reverse pair is configured again", func() {
				_, err := store.Put(ctx, model.CameraTopologyEdge{CameraAID: "C2", CameraBID: "C1", TransitionTimeSeconds: 10, Direction: model.DirectionAToB})
				convey.So(err, convey.ShouldBeNil)

				convey.Convey("Then the single edge for the pair is replaced", func() {
					convey.So(store.List(""), convey.ShouldHaveLength, 1)
					got, _ := store.Get("", "C1", "C2")
					convey.So(got.TransitionTimeSeconds, convey.ShouldEqual, 10)
					convey.So(got.Direction, convey.ShouldEqual, model.DirectionAToB)
				})
			})
		})

		convey.Convey("When an edge has no transition time", func() {
			e, err := store.Put(ctx, model.CameraTopologyEdge{CameraAID: "C1", CameraBID: "C3"})
			convey.Convey("Then the default transition time applies", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(e.TransitionTimeSeconds, convey.ShouldEqual, model.DefaultTransitionSeconds)
			})
		})
	})
}

func TestValidate(t *testing.T) {
	convey.Convey("Given malformed edges", t, func() {
		cases := []model.CameraTopologyEdge{
			{CameraAID: "", CameraBID: "C2"},
			{CameraAID: "cam 1", CameraBID: "C2"},
			{CameraAID: "C1", CameraBID: "C1"},
			{CameraAID: "C1", CameraBID: "C2", TransitionTimeSeconds: -5},
			{CameraAID: "C1", CameraBID: "C2", Direction: "UPWARDS"},
		}

		convey.Convey("Then each is rejected as invalid configuration", func() {
			for _, c := range cases {
				_, err := topology.Validate(c)
				convey.So(errors.Is(err, topology.ErrInvalidConfiguration), convey.ShouldBeTrue)
			}
		})

		convey.Convey("Then a rejected edge never reaches the store", func() {
			store := topology.NewStore()
			_, err := store.Put(context.Background(), cases[3])
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(store.List(""), convey.ShouldBeEmpty)
		})
	})
}

func TestStore_Allows(t *testing.T) {
	convey.Convey("Given an edge C1-C2 with a 30s transition", t, func() {
		store := topology.NewStore()
		_, err := store.Put(context.Background(), model.CameraTopologyEdge{CameraAID: "C1", CameraBID: "C2", TransitionTimeSeconds: 30})
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("Then the same camera is always allowed", func() {
			convey.So(store.Allows("", "C1", "C1", time.Hour), convey.ShouldBeTrue)
		})

		convey.Convey("Then a move within three transitions is allowed", func() {
			convey.So(store.Allows("", "C1", "C2", 90*time.Second), convey.ShouldBeTrue)
			convey.So(store.Allows("", "C2", "C1", 60*time.Second), convey.ShouldBeTrue)
		})

		convey.Convey("Then a slower move is rejected", func() {
			convey.So(store.Allows("", "C1", "C2", 200*time.Second), convey.ShouldBeFalse)
		})

		convey.Convey("Then an unconfigured pair is allowed under the permissive default", func() {
			convey.So(store.Policy(), convey.ShouldEqual, topology.PolicyPermissive)
			convey.So(store.Allows("", "C1", "C9", time.Hour), convey.ShouldBeTrue)
		})
	})

	convey.Convey("Given a strict store with a custom grace factor", t, func() {
		store := topology.NewStore(topology.WithPolicy(topology.PolicyStrict), topology.WithGraceFactor(1))
		_, _ = store.Put(context.Background(), model.CameraTopologyEdge{CameraAID: "C1", CameraBID: "C2", TransitionTimeSeconds: 30})

		convey.Convey("Then an unconfigured pair is rejected", func() {
			convey.So(store.Allows("", "C1", "C9", time.Second), convey.ShouldBeFalse)
		})

		convey.Convey("Then the grace factor bounds the move", func() {
			convey.So(store.Allows("", "C1", "C2", 30*time.Second), convey.ShouldBeTrue)
			convey.So(store.Allows("", "C1", "C2", 31*time.Second), convey.ShouldBeFalse)
		})
	})
}

func TestStore_Persistence(t *testing.T) {
	convey.Convey("Given a store backed by a persister", t, func() {
		ctx := context.Background()
		p := &fakePersister{}
		store := topology.NewStore(topology.WithPersister(p))

		convey.Convey("When an edge is configured", func() {
			_, err := store.Put(ctx, model.CameraTopologyEdge{Scope: "plant-1", CameraAID: "C1", CameraBID: "C2"})
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then it is written through", func() {
				convey.So(p.saved, convey.ShouldHaveLength, 1)
			})

			convey.Convey("Then a fresh store loads it back", func() {
				other := topology.NewStore(topology.WithPersister(p))
				convey.So(other.Load(ctx), convey.ShouldBeNil)
				_, ok := other.Get("plant-1", "C2", "C1")
				convey.So(ok, convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the persister fails", func() {
			p.err = errors.New("disk full")
			_, err := store.Put(ctx, model.CameraTopologyEdge{CameraAID: "C1", CameraBID: "C2"})

			convey.Convey("Then the edge is not cached", func() {
				convey.So(errors.Is(err, topology.ErrPersist), convey.ShouldBeTrue)
				_, ok := store.Get("", "C1", "C2")
				convey.So(ok, convey.ShouldBeFalse)
			})
		})
	})
}
