package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"
	"gopkg.in/yaml.v3"

	"github.com/okian/crosscam/internal/config"
	"github.com/okian/crosscam/pkg/logger"
)

func init() {
	if err := logger.Init(logger.WithOutput(io.Discard)); err != nil {
		panic(err)
	}
}

const fixtureYAML = `frames:
  - camera_id: CAM-1
    timestamp: "2026-03-02T08:00:00Z"
    observations:
      - badge_number: B12
        clothing_upper: blue overalls
        body_type: medium
        confidence: 0.9
  - camera_id: CAM-2
    timestamp: "2026-03-02T08:01:00Z"
    observations:
      - badge_number: B12
        clothing_upper: blue overalls
        body_type: medium
        position_in_frame: left
        action: walking
        confidence: 0.8
`

// run executes the CLI with args and returns what it printed to stdout.
func run(ctx context.Context, args ...string) (string, error) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		k, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(k, config.EnvPrefix) {
			t.Setenv(k, "")
			_ = os.Unsetenv(k)
		}
	}
}

func TestVersion(t *testing.T) {
	convey.Convey("version prints build metadata without loading configuration", t, func() {
		out, err := run(context.Background(), "version", "--config", "/does/not/exist.yaml")
		convey.So(err, convey.ShouldBeNil)
		convey.So(out, convey.ShouldStartWith, "crosscam dev")
	})
}

func TestOperatorWorkflow(t *testing.T) {
	clearConfigEnv(t)
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "crosscam.yaml", strings.Join([]string{
		"backend: sqlite",
		"db_dsn: " + filepath.Join(dir, "tracking.db"),
		"log_level: error",
		"scope: plant-1",
	}, "\n")+"\n")
	fixturePath := writeFile(t, dir, "frames.yaml", fixtureYAML)
	ctx := context.Background()
	base := []string{"--config", cfgPath, "--env-file", filepath.Join(dir, "missing.env")}
	cli := func(args ...string) (string, error) {
		return run(ctx, append(append([]string{}, base...), args...)...)
	}

	convey.Convey("Given a sqlite-backed engine driven through the CLI", t, func() {
		out, err := cli("topology", "set", "CAM-1", "CAM-2", "--transition", "60")
		convey.So(err, convey.ShouldBeNil)
		var edge map[string]any
		convey.So(json.Unmarshal([]byte(out), &edge), convey.ShouldBeNil)
		convey.So(edge["camera_a_id"], convey.ShouldEqual, "CAM-1")
		convey.So(edge["scope"], convey.ShouldEqual, "plant-1")
		convey.So(edge["direction"], convey.ShouldEqual, "BIDIRECTIONAL")

		out, err = cli("topology", "list")
		convey.So(err, convey.ShouldBeNil)
		var edges []map[string]any
		convey.So(json.Unmarshal([]byte(out), &edges), convey.ShouldBeNil)
		convey.So(edges, convey.ShouldHaveLength, 1)

		out, err = cli("resolve", "-f", fixturePath)
		convey.So(err, convey.ShouldBeNil)
		var frames []struct {
			CameraID string `json:"camera_id"`
			Results  []struct {
				TrackingID   string   `json:"tracking_id"`
				IsNew        bool     `json:"is_new"`
				MatchReasons []string `json:"match_reasons"`
			} `json:"results"`
		}
		convey.So(json.Unmarshal([]byte(out), &frames), convey.ShouldBeNil)
		convey.So(frames, convey.ShouldHaveLength, 2)
		convey.So(frames[0].Results[0].IsNew, convey.ShouldBeTrue)
		convey.So(frames[1].Results[0].IsNew, convey.ShouldBeFalse)
		convey.So(frames[1].Results[0].MatchReasons, convey.ShouldContain, "badge_match")
		id := frames[0].Results[0].TrackingID
		convey.So(frames[1].Results[0].TrackingID, convey.ShouldEqual, id)

		out, err = cli("trajectory", id)
		convey.So(err, convey.ShouldBeNil)
		var points []map[string]any
		convey.So(json.Unmarshal([]byte(out), &points), convey.ShouldBeNil)
		convey.So(points, convey.ShouldHaveLength, 1)
		convey.So(points[0]["camera_id"], convey.ShouldEqual, "CAM-2")
		convey.So(points[0]["action"], convey.ShouldEqual, "walking")

		out, err = cli("stats", "--as-of", "2026-03-02T08:05:00Z")
		convey.So(err, convey.ShouldBeNil)
		var stats map[string]any
		convey.So(json.Unmarshal([]byte(out), &stats), convey.ShouldBeNil)
		convey.So(stats["total_tracks"], convey.ShouldEqual, 1.0)
		convey.So(stats["active_tracks"], convey.ShouldEqual, 1.0)
		convey.So(stats["badge_identified_tracks"], convey.ShouldEqual, 1.0)

		out, err = cli("search", "--badge", "b1")
		convey.So(err, convey.ShouldBeNil)
		var found []map[string]any
		convey.So(json.Unmarshal([]byte(out), &found), convey.ShouldBeNil)
		convey.So(found, convey.ShouldHaveLength, 1)
		convey.So(found[0]["tracking_id"], convey.ShouldEqual, id)
		convey.So(found[0]["total_sightings"], convey.ShouldEqual, 2.0)

		out, err = cli("-o", "yaml", "link", id, "77")
		convey.So(err, convey.ShouldBeNil)
		var link struct {
			Linked   bool  `yaml:"linked"`
			WorkerID int64 `yaml:"worker_id"`
		}
		convey.So(yaml.Unmarshal([]byte(out), &link), convey.ShouldBeNil)
		convey.So(link.Linked, convey.ShouldBeTrue)
		convey.So(link.WorkerID, convey.ShouldEqual, int64(77))

		out, err = cli("link", "no-such-id", "5")
		convey.So(err, convey.ShouldBeNil)
		convey.So(out, convey.ShouldContainSubstring, `"linked": false`)

		out, err = cli("cleanup", "--max-age", "1h")
		convey.So(err, convey.ShouldBeNil)
		convey.So(out, convey.ShouldContainSubstring, `"removed_count": 0`)

		out, err = cli("cleanup", "--max-age", "1h", "--keep-linked=false")
		convey.So(err, convey.ShouldBeNil)
		convey.So(out, convey.ShouldContainSubstring, `"removed_count": 1`)
		convey.So(out, convey.ShouldContainSubstring, `"remaining_count": 0`)

		out, err = cli("search", "--badge", "B12")
		convey.So(err, convey.ShouldBeNil)
		convey.So(strings.TrimSpace(out), convey.ShouldEqual, "[]")
	})
}

func TestCommandErrors(t *testing.T) {
	clearConfigEnv(t)
	dir := t.TempDir()
	ctx := context.Background()
	noEnv := filepath.Join(dir, "missing.env")

	convey.Convey("Given invalid invocations", t, func() {
		convey.Convey("an unknown output format is rejected", func() {
			_, err := run(ctx, "--env-file", noEnv, "-o", "xml", "stats")
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(err.Error(), convey.ShouldContainSubstring, "output format")
		})

		convey.Convey("a relational backend without a DSN fails validation", func() {
			cfg := writeFile(t, dir, "bad.yaml", "backend: postgres\n")
			_, err := run(ctx, "--env-file", noEnv, "--config", cfg, "stats")
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("search needs a criterion", func() {
			_, err := run(ctx, "--env-file", noEnv, "search")
			convey.So(err, convey.ShouldNotBeNil)
		})

		convey.Convey("resolve needs a fixture", func() {
			_, err := run(ctx, "--env-file", noEnv, "resolve")
			convey.So(err, convey.ShouldNotBeNil)
		})

		convey.Convey("a non-numeric worker id is rejected", func() {
			_, err := run(ctx, "--env-file", noEnv, "link", "trk-1", "seven")
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(err.Error(), convey.ShouldContainSubstring, "invalid worker id")
		})
	})
}

func TestDotenv(t *testing.T) {
	clearConfigEnv(t)
	dir := t.TempDir()
	envFile := writeFile(t, dir, "test.env", "CROSSCAM_LOG_FORMAT=yaml\n")
	t.Cleanup(func() { _ = os.Unsetenv("CROSSCAM_LOG_FORMAT") })

	convey.Convey("values from the dotenv file reach configuration", t, func() {
		_, err := run(context.Background(), "--env-file", envFile, "stats")
		convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
	})
}

func TestSimulate(t *testing.T) {
	clearConfigEnv(t)
	dir := t.TempDir()
	ctx := context.Background()
	noEnv := filepath.Join(dir, "missing.env")

	convey.Convey("Given a memory-backed engine", t, func() {
		convey.Convey("a badged walk resolves without splits or merges", func() {
			out, err := run(ctx, "--env-file", noEnv, "simulate",
				"--workers", "8", "--steps", "4", "--start", "2026-03-02T08:00:00Z")
			convey.So(err, convey.ShouldBeNil)
			var rep struct {
				Workers           int     `json:"workers"`
				IdentitiesCreated int     `json:"identities_created"`
				FragmentedWorkers int     `json:"fragmented_workers"`
				MergedIdentities  int     `json:"merged_identities"`
				Purity            float64 `json:"purity"`
			}
			convey.So(json.Unmarshal([]byte(out), &rep), convey.ShouldBeNil)
			convey.So(rep.Workers, convey.ShouldEqual, 8)
			convey.So(rep.IdentitiesCreated, convey.ShouldEqual, 8)
			convey.So(rep.FragmentedWorkers, convey.ShouldEqual, 0)
			convey.So(rep.MergedIdentities, convey.ShouldEqual, 0)
			convey.So(rep.Purity, convey.ShouldEqual, 1.0)
		})

		convey.Convey("a written walk can be replayed with resolve", func() {
			fixture := filepath.Join(dir, "walk.yaml")
			out, err := run(ctx, "--env-file", noEnv, "simulate", "--dry-run",
				"--workers", "3", "--steps", "2", "--cameras", "2", "--write", fixture)
			convey.So(err, convey.ShouldBeNil)
			convey.So(out, convey.ShouldContainSubstring, `"workers": 3`)

			out, err = run(ctx, "--env-file", noEnv, "resolve", "-f", fixture)
			convey.So(err, convey.ShouldBeNil)
			var frames []map[string]any
			convey.So(json.Unmarshal([]byte(out), &frames), convey.ShouldBeNil)
			convey.So(frames, convey.ShouldNotBeEmpty)
		})

		convey.Convey("an invalid walk is rejected", func() {
			_, err := run(ctx, "--env-file", noEnv, "simulate", "--workers", "0")
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestServe(t *testing.T) {
	clearConfigEnv(t)

	convey.Convey("Given a memory-backed server on an ephemeral port", t, func() {
		cfg := config.New()
		cfg.Addr = "127.0.0.1:0"
		c := &cli{cfg: cfg, log: logger.Nop(), output: outputJSON}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		ready := make(chan string, 1)
		done := make(chan error, 1)
		go func() { done <- c.serve(ctx, ready) }()

		var addr string
		select {
		case addr = <-ready:
		case err := <-done:
			t.Fatalf("serve exited early: %v", err)
		case <-time.After(5 * time.Second):
			t.Fatal("server did not start")
		}

		client := &http.Client{Timeout: 2 * time.Second}
		for _, path := range []string{"/healthz", "/metrics", "/openapi.yaml"} {
			resp, err := client.Get("http://" + addr + path)
			convey.So(err, convey.ShouldBeNil)
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
		}

		cancel()
		select {
		case err := <-done:
			convey.So(err, convey.ShouldBeNil)
		case <-time.After(10 * time.Second):
			t.Fatal("server did not stop")
		}
	})
}
