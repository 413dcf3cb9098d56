package sqlstore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/okian/crosscam/internal/adapters/persistence"
	"github.com/okian/crosscam/internal/adapters/persistence/persistencetest"
	"github.com/okian/crosscam/internal/adapters/persistence/sqlstore"
	"github.com/okian/crosscam/internal/domain/model"
	"github.com/okian/crosscam/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func openSQLite(t *testing.T) *sqlstore.Store {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "crosscam_test.db")
	s, err := sqlstore.Open(context.Background(), sqlstore.Config{Dialect: sqlstore.DialectSQLite, DSN: dsn}, sqlstore.WithLogger(logger.Nop()))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	return s
}

func TestSQLiteContract(t *testing.T) {
	persistencetest.Run(t, func(t *testing.T) persistence.Store { return openSQLite(t) })
}

func TestSQLiteReopen(t *testing.T) {
	Convey("Given a sqlite file with data", t, func() {
		ctx := context.Background()
		dsn := filepath.Join(t.TempDir(), "reopen.db")
		cfg := sqlstore.Config{Dialect: sqlstore.DialectSQLite, DSN: dsn}

		s, err := sqlstore.Open(ctx, cfg, sqlstore.WithLogger(logger.Nop()))
		So(err, ShouldBeNil)
		var b persistence.Batch
		b.Upsert(persistencetest.Record("t1", "C1", 0, model.AttributeObservation{BadgeNumber: "B7"}))
		So(s.Apply(ctx, b), ShouldBeNil)
		So(s.SaveEdge(ctx, model.CameraTopologyEdge{CameraAID: "C1", CameraBID: "C2", TransitionTimeSeconds: 30, Direction: model.DirectionBidirectional}), ShouldBeNil)
		So(s.Close(), ShouldBeNil)

		Convey("When it is opened again", func() {
			again, err := sqlstore.Open(ctx, cfg, sqlstore.WithLogger(logger.Nop()))
			So(err, ShouldBeNil)
			defer again.Close()

			Convey("Then migrations are not re-applied and data survives", func() {
				got, err := again.GetRecord(ctx, "t1")
				So(err, ShouldBeNil)
				So(got.LatestFeatures.BadgeNumber, ShouldEqual, "B7")
				So(got.LatestFeatures.SafetyGear, ShouldBeNil)

				edges, err := again.ListEdges(ctx)
				So(err, ShouldBeNil)
				So(edges, ShouldHaveLength, 1)
				So(again.Dialect(), ShouldEqual, sqlstore.DialectSQLite)
			})
		})
	})
}

func TestOpenValidation(t *testing.T) {
	Convey("Given invalid configurations", t, func() {
		ctx := context.Background()

		Convey("An unknown dialect is rejected", func() {
			_, err := sqlstore.Open(ctx, sqlstore.Config{Dialect: "oracle", DSN: "x"}, sqlstore.WithLogger(logger.Nop()))
			So(err, ShouldNotBeNil)
		})

		Convey("A missing dsn is rejected", func() {
			_, err := sqlstore.Open(ctx, sqlstore.Config{Dialect: sqlstore.DialectSQLite}, sqlstore.WithLogger(logger.Nop()))
			So(err, ShouldEqual, persistence.ErrMissingDSN)
		})
	})
}
