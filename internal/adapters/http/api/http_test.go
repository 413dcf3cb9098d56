package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/crosscam/internal/adapters/http/api"
)

type stubPinger struct {
	err   error
	calls int
}

func (p *stubPinger) Ping(ctx context.Context) error {
	p.calls++
	return p.err
}

type slowPinger struct{}

func (slowPinger) Ping(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func newMux(p api.Pinger, opts ...api.HealthOption) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(p, opts...).Register(mux)
	return mux
}

func decode(body io.Reader) map[string]any {
	out := map[string]any{}
	_ = json.NewDecoder(body).Decode(&out)
	return out
}

func TestHealthz(t *testing.T) {
	fixed := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	Convey("Given the operational routes", t, func() {
		Convey("a reachable store reports ok", func() {
			p := &stubPinger{}
			rec := httptest.NewRecorder()
			newMux(p, api.WithClock(func() time.Time { return fixed })).
				ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Header().Get("Content-Type"), ShouldStartWith, "application/json")
			body := decode(rec.Body)
			So(body["status"], ShouldEqual, "ok")
			So(body["checked_at"], ShouldEqual, "2026-03-02T08:00:00Z")
			So(body, ShouldNotContainKey, "error")
			So(p.calls, ShouldEqual, 1)
		})

		Convey("a failing store reports 503 with the cause", func() {
			rec := httptest.NewRecorder()
			newMux(&stubPinger{err: errors.New("connection refused")}).
				ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			So(rec.Code, ShouldEqual, http.StatusServiceUnavailable)
			body := decode(rec.Body)
			So(body["status"], ShouldEqual, "unavailable")
			So(body["error"], ShouldContainSubstring, "connection refused")
		})

		Convey("a hanging store is cut off by the ping timeout", func() {
			rec := httptest.NewRecorder()
			newMux(slowPinger{}, api.WithPingTimeout(20*time.Millisecond)).
				ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			So(rec.Code, ShouldEqual, http.StatusServiceUnavailable)
			So(decode(rec.Body)["error"], ShouldContainSubstring, "deadline exceeded")
		})

		Convey("a missing engine is unavailable", func() {
			rec := httptest.NewRecorder()
			newMux(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			So(rec.Code, ShouldEqual, http.StatusServiceUnavailable)
		})

		Convey("writes are rejected", func() {
			p := &stubPinger{}
			rec := httptest.NewRecorder()
			newMux(p).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/healthz", strings.NewReader("{}")))

			So(rec.Code, ShouldEqual, http.StatusMethodNotAllowed)
			So(rec.Header().Get("Allow"), ShouldEqual, "GET, HEAD")
			So(p.calls, ShouldEqual, 0)
		})
	})
}

func TestMetricsEndpoint(t *testing.T) {
	Convey("Given a mux that has served a health check", t, func() {
		mux := newMux(&stubPinger{})
		mux.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

		Convey("the scrape includes the request counter for the health check", func() {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

			So(rec.Code, ShouldEqual, http.StatusOK)
			text := rec.Body.String()
			So(text, ShouldContainSubstring, "crosscam_tracking_http_requests_total")
			So(text, ShouldContainSubstring, `endpoint="healthz"`)
		})
	})
}
