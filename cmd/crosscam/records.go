package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	app "github.com/okian/crosscam/internal/app"
	"github.com/okian/crosscam/internal/domain/model"
)

// recordView is the printed shape of a tracking record.
type recordView struct {
	TrackingID       string                     `json:"tracking_id" yaml:"tracking_id"`
	LinkedWorkerID   *int64                     `json:"linked_worker_id,omitempty" yaml:"linked_worker_id,omitempty"`
	LastSeenCameraID string                     `json:"last_seen_camera_id" yaml:"last_seen_camera_id"`
	LastSeenTime     time.Time                  `json:"last_seen_time" yaml:"last_seen_time"`
	FirstSeenTime    time.Time                  `json:"first_seen_time" yaml:"first_seen_time"`
	TotalSightings   int                        `json:"total_sightings" yaml:"total_sightings"`
	MatchConfidence  float64                    `json:"match_confidence" yaml:"match_confidence"`
	LatestFeatures   model.AttributeObservation `json:"latest_features" yaml:"latest_features"`
}

func viewRecord(r model.TrackingRecord) recordView {
	return recordView{
		TrackingID:       r.TrackingID,
		LinkedWorkerID:   r.LinkedWorkerID,
		LastSeenCameraID: r.LastSeenCameraID,
		LastSeenTime:     r.LastSeenTime.UTC(),
		FirstSeenTime:    r.FirstSeenTime.UTC(),
		TotalSightings:   r.TotalSightings,
		MatchConfidence:  r.MatchConfidence,
		LatestFeatures:   r.LatestFeatures,
	}
}

type pointView struct {
	CameraID   string    `json:"camera_id" yaml:"camera_id"`
	Timestamp  time.Time `json:"timestamp" yaml:"timestamp"`
	Position   string    `json:"position,omitempty" yaml:"position,omitempty"`
	Action     string    `json:"action,omitempty" yaml:"action,omitempty"`
	Confidence float64   `json:"confidence" yaml:"confidence"`
}

type linkView struct {
	TrackingID string `json:"tracking_id" yaml:"tracking_id"`
	WorkerID   int64  `json:"worker_id" yaml:"worker_id"`
	Linked     bool   `json:"linked" yaml:"linked"`
}

func newLinkCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "link TRACKING_ID WORKER_ID",
		Short: "Link a tracking identity to a known worker",
		Long: `Attach an external worker id to a tracking identity. Relinking replaces the
previous worker. Unknown or removed identities report linked: false.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			worker, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid worker id %q: %w", args[1], err)
			}
			out := linkView{TrackingID: args[0], WorkerID: worker}
			err = c.withService(cmd.Context(), func(svc *app.Service) error {
				out.Linked, err = svc.LinkToExternalWorker(cmd.Context(), args[0], worker)
				return err
			})
			if err != nil {
				return err
			}
			return c.print(cmd, out)
		},
	}
}

func newTrajectoryCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "trajectory TRACKING_ID",
		Short: "Print the camera sightings of an identity, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var points []model.TrajectoryPoint
			err := c.withService(cmd.Context(), func(svc *app.Service) error {
				var err error
				points, err = svc.GetTrajectory(cmd.Context(), args[0])
				return err
			})
			if err != nil {
				return err
			}
			out := make([]pointView, 0, len(points))
			for _, p := range points {
				out = append(out, pointView{
					CameraID:   p.CameraID,
					Timestamp:  p.Timestamp.UTC(),
					Position:   p.Position,
					Action:     p.Action,
					Confidence: p.Confidence,
				})
			}
			return c.print(cmd, out)
		},
	}
}

func newSearchCmd(c *cli) *cobra.Command {
	var q model.SearchQuery
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Find identities by badge or clothing color",
		Long: `Search live identities, newest sighting first. --badge matches a badge
substring; otherwise --color matches either clothing field. Matching ignores
case.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if q.Badge == "" && q.ClothingColor == "" {
				return fmt.Errorf("one of --badge or --color is required")
			}
			var recs []model.TrackingRecord
			err := c.withService(cmd.Context(), func(svc *app.Service) error {
				var err error
				recs, err = svc.Search(cmd.Context(), q)
				return err
			})
			if err != nil {
				return err
			}
			out := make([]recordView, 0, len(recs))
			for _, r := range recs {
				out = append(out, viewRecord(r))
			}
			return c.print(cmd, out)
		},
	}
	cmd.Flags().StringVar(&q.Badge, "badge", "", "badge substring")
	cmd.Flags().StringVar(&q.ClothingColor, "color", "", "clothing color")
	return cmd
}

func newStatsCmd(c *cli) *cobra.Command {
	var asOf string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize the tracking store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ts, err := parseTime(asOf)
			if err != nil {
				return err
			}
			var stats model.Statistics
			err = c.withService(cmd.Context(), func(svc *app.Service) error {
				stats, err = svc.Statistics(cmd.Context(), ts)
				return err
			})
			if err != nil {
				return err
			}
			return c.print(cmd, stats)
		},
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "RFC3339 reference time for active counts (default: now)")
	return cmd
}

func newCleanupCmd(c *cli) *cobra.Command {
	var (
		maxAge     time.Duration
		keepLinked bool
	)
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove identities not seen within --max-age",
		Long: `Remove identities last seen more than --max-age ago together with their
trajectories. Defaults come from the retention settings; retention_hard_delete
decides between marking records deleted and removing the rows.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("max-age") {
				maxAge = c.cfg.RetentionMaxAge()
			}
			if !cmd.Flags().Changed("keep-linked") {
				keepLinked = c.cfg.RetentionKeepLinked
			}
			var res model.CleanupResult
			err := c.withService(cmd.Context(), func(svc *app.Service) error {
				var err error
				res, err = svc.Cleanup(cmd.Context(), maxAge, keepLinked)
				return err
			})
			if err != nil {
				return err
			}
			return c.print(cmd, res)
		},
	}
	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "age cutoff, e.g. 72h (default: retention_max_age_hours)")
	cmd.Flags().BoolVar(&keepLinked, "keep-linked", true, "keep identities linked to a worker (default: retention_keep_linked)")
	return cmd
}
