package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	app "github.com/okian/crosscam/internal/app"
	"github.com/okian/crosscam/internal/domain/extraction"
	"github.com/okian/crosscam/internal/domain/model"
	"github.com/okian/crosscam/internal/simulation"
)

type frameResult struct {
	CameraID  string                   `json:"camera_id" yaml:"camera_id"`
	Timestamp time.Time                `json:"timestamp" yaml:"timestamp"`
	Results   []model.ResolutionResult `json:"results" yaml:"results"`
}

func newResolveCmd(c *cli) *cobra.Command {
	var (
		path   string
		camera string
		at     string
	)
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve recorded observations into tracking identities",
		Long: `Replay a YAML fixture of frames through the engine:

  frames:
    - camera_id: CAM-1
      timestamp: "2026-03-02T08:00:00Z"
      observations:
        - badge_number: B12
          clothing_upper: blue overalls
          confidence: 0.9

--camera and --at fill in frames that omit camera_id or timestamp.
Use "-" to read the fixture from stdin. "crosscam simulate --write" produces
fixtures in this format.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fx, err := readFixture(cmd, path)
			if err != nil {
				return err
			}
			fallback, err := parseTime(at)
			if err != nil {
				return err
			}

			out := make([]frameResult, 0, len(fx.Frames))
			err = c.withService(cmd.Context(), func(svc *app.Service) error {
				for i, f := range fx.Frames {
					cam := f.CameraID
					if cam == "" {
						cam = camera
					}
					ts, err := f.Time()
					if err != nil {
						return fmt.Errorf("frame %d: %w", i, err)
					}
					if ts.IsZero() {
						ts = fallback
					}
					res, err := svc.ResolveFrame(cmd.Context(), extraction.Static(f.Observations), nil, cam, ts)
					if err != nil {
						return fmt.Errorf("frame %d: %w", i, err)
					}
					out = append(out, frameResult{CameraID: cam, Timestamp: ts.UTC(), Results: res})
				}
				return nil
			})
			if err != nil {
				return err
			}
			return c.print(cmd, out)
		},
	}
	cmd.Flags().StringVarP(&path, "file", "f", "", "fixture file (required; - for stdin)")
	cmd.Flags().StringVar(&camera, "camera", "", "camera id for frames without one")
	cmd.Flags().StringVar(&at, "at", "", "RFC3339 time for frames without one (default: now)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func readFixture(cmd *cobra.Command, path string) (simulation.Fixture, error) {
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return simulation.Fixture{}, err
		}
		defer f.Close()
		r = f
	}
	return simulation.ReadFixture(r)
}
