package simulation

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/crosscam/internal/domain/model"
	"github.com/okian/crosscam/pkg/logger"
)

// Resolver resolves the observations of one frame.
type Resolver interface {
	Resolve(ctx context.Context, observations []model.AttributeObservation, cameraID string, ts time.Time) ([]model.ResolutionResult, error)
}

// TopologyConfigurer stores camera adjacency edges.
type TopologyConfigurer interface {
	ConfigureTopology(ctx context.Context, edge model.CameraTopologyEdge) (model.CameraTopologyEdge, error)
}

// Runner replays frames through a resolver and scores the outcome.
type Runner struct {
	resolver Resolver
	topology TopologyConfigurer
	logger   logger.Logger
}

// NewRunner creates a runner for r.
func NewRunner(r Resolver, opts ...Option) *Runner {
	rn := &Runner{resolver: r}
	for _, opt := range opts {
		opt(rn)
	}
	if rn.logger == nil {
		rn.logger = logger.Nop()
	}
	return rn
}

// Run generates the walk for cfg and plays it.
func (r *Runner) Run(ctx context.Context, cfg Config) (Report, error) {
	plan, err := Generate(ctx, cfg)
	if err != nil {
		return Report{}, err
	}
	return r.Play(ctx, cfg, plan)
}

// Play configures the corridor of cfg when a topology configurer was given,
// then replays the frames of plan.
func (r *Runner) Play(ctx context.Context, cfg Config, plan Plan) (Report, error) {
	r.logger.Info(ctx, "playing simulated site walk",
		logger.Int("workers", len(plan.Workers)),
		logger.Int("frames", len(plan.Frames)),
		logger.Int("cameras", cfg.Cameras),
	)

	if r.topology != nil {
		for _, e := range Edges(cfg) {
			if _, err := r.topology.ConfigureTopology(ctx, e); err != nil {
				return Report{}, fmt.Errorf("configure %s-%s: %w", e.CameraAID, e.CameraBID, err)
			}
		}
	}
	return r.Replay(ctx, plan.Frames)
}

// Replay resolves frames in order. Observations with ground truth are scored;
// the rest only count towards totals.
func (r *Runner) Replay(ctx context.Context, frames []Frame) (Report, error) {
	start := time.Now()
	t := newTally()

	for i, f := range frames {
		ts, err := f.Time()
		if err != nil {
			return Report{}, fmt.Errorf("frame %d: %w", i, err)
		}
		res, err := r.resolver.Resolve(ctx, f.Observations, f.CameraID, ts)
		if err != nil {
			return Report{}, fmt.Errorf("frame %d: %w", i, err)
		}
		if len(res) != len(f.Observations) {
			return Report{}, fmt.Errorf("frame %d: %w: %d != %d", i, ErrResultCount, len(res), len(f.Observations))
		}
		t.frames++
		for j, rr := range res {
			worker := -1
			if j < len(f.Workers) {
				worker = f.Workers[j]
			}
			t.add(worker, rr)
		}
	}

	rep := t.report()
	rep.Duration = time.Since(start)
	r.logger.Info(ctx, "simulation replay finished",
		logger.Int("frames", rep.Frames),
		logger.Int("observations", rep.Observations),
		logger.Int("identities_created", rep.IdentitiesCreated),
		logger.Int("fragmented_workers", rep.FragmentedWorkers),
		logger.Int("merged_identities", rep.MergedIdentities),
		logger.Float64("purity", rep.Purity),
		logger.Duration("duration", rep.Duration),
	)
	return rep, nil
}
