package extraction_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/crosscam/internal/domain/extraction"
	"github.com/okian/crosscam/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestStatic(t *testing.T) {
	Convey("Given a static extractor", t, func() {
		src := extraction.Static{{BadgeNumber: "B12", SafetyGear: model.SafetyGear{"hasMask": true}}}

		Convey("It returns independent copies", func() {
			got, err := src.Extract(context.Background(), nil)
			So(err, ShouldBeNil)
			So(got, ShouldHaveLength, 1)
			got[0].SafetyGear["hasMask"] = false
			So(src[0].SafetyGear["hasMask"], ShouldEqual, true)
		})
	})
}

func TestWithTimeout(t *testing.T) {
	Convey("Given an extractor that blocks until cancelled", t, func() {
		slow := extraction.Func(func(ctx context.Context, _ []byte) ([]model.AttributeObservation, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})

		Convey("A bounded call fails with a deadline error", func() {
			_, err := extraction.WithTimeout(slow, 10*time.Millisecond).Extract(context.Background(), []byte("img"))
			So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
		})

		Convey("A non-positive timeout leaves the extractor untouched", func() {
			e := extraction.WithTimeout(extraction.Static{}, 0)
			_, ok := e.(extraction.Static)
			So(ok, ShouldBeTrue)
		})
	})
}
