package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	app "github.com/okian/crosscam/internal/app"
	"github.com/okian/crosscam/internal/simulation"
)

func newSimulateCmd(c *cli) *cobra.Command {
	var (
		cfg    = simulation.DefaultConfig()
		start  string
		write  string
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Walk synthetic workers past the cameras and score the identities",
		Long: `Generate workers walking a corridor of cameras, configure the corridor
topology and resolve every sighting. The report counts workers split over
several identities and identities shared by several workers.

Run it against a scratch store: the generated identities are persisted like
any other. --write saves the walk as a fixture for "crosscam resolve".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ts, err := parseTime(start)
			if err != nil {
				return err
			}
			cfg.Start = ts

			plan, err := simulation.Generate(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if write != "" {
				if err := writeFixture(write, plan.Frames); err != nil {
					return err
				}
			}
			if dryRun {
				return c.print(cmd, map[string]int{"workers": len(plan.Workers), "frames": len(plan.Frames)})
			}

			var rep simulation.Report
			err = c.withService(cmd.Context(), func(svc *app.Service) error {
				runner := simulation.NewRunner(svc,
					simulation.WithTopology(svc),
					simulation.WithLogger(c.log.Named("simulation")),
				)
				var err error
				rep, err = runner.Play(cmd.Context(), cfg, plan)
				return err
			})
			if err != nil {
				return err
			}
			return c.print(cmd, rep)
		},
	}
	f := cmd.Flags()
	f.IntVar(&cfg.Workers, "workers", cfg.Workers, "number of workers")
	f.IntVar(&cfg.Cameras, "cameras", cfg.Cameras, "cameras along the corridor")
	f.IntVar(&cfg.Steps, "steps", cfg.Steps, "camera hops per worker")
	f.IntVar(&cfg.TransitSeconds, "transit", cfg.TransitSeconds, "seconds between neighboring cameras")
	f.Float64Var(&cfg.Jitter, "jitter", cfg.Jitter, "relative transit jitter, 0 to 0.5")
	f.Float64Var(&cfg.BadgeRatio, "badge-ratio", cfg.BadgeRatio, "share of workers with a readable badge")
	f.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "random seed")
	f.StringVar(&start, "start", "", "RFC3339 start of the walk (default: now)")
	f.StringVar(&write, "write", "", "write the generated frames to this fixture file")
	f.BoolVar(&dryRun, "dry-run", false, "generate (and write) the walk without resolving it")
	return cmd
}

func writeFixture(path string, frames []simulation.Frame) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()
	return simulation.WriteFixture(f, simulation.Fixture{Frames: frames})
}
