package simulation

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/crosscam/internal/domain/model"
)

// Attribute vocabularies. Upper clothing is unique per worker; the rest is
// drawn at random and may repeat.
var (
	upperColors = []string{"orange", "yellow", "blue", "red", "green", "white", "black", "gray", "brown", "purple"} //nolint:gochecknoglobals // fixed vocabulary
	garments    = []string{"vest", "overalls", "jacket", "hoodie", "coverall", "shirt"}                             //nolint:gochecknoglobals // fixed vocabulary
	lowerWear   = []string{"navy trousers", "khaki pants", "black jeans", "gray cargo pants", "blue jeans"}         //nolint:gochecknoglobals // fixed vocabulary
	hatColors   = []string{"white", "yellow", "orange", "blue", "red"}                                              //nolint:gochecknoglobals // fixed vocabulary
	bodyTypes   = []model.BodyType{model.BodyThin, model.BodyMedium, model.BodyHeavy}                               //nolint:gochecknoglobals // fixed vocabulary
	heights     = []model.HeightEstimate{model.HeightShort, model.HeightMedium, model.HeightTall}                   //nolint:gochecknoglobals // fixed vocabulary
	positions   = []string{"left", "center", "right"}                                                               //nolint:gochecknoglobals // fixed vocabulary
	actions     = []string{"walking", "standing", "carrying", "operating"}                                          //nolint:gochecknoglobals // fixed vocabulary
)

// Worker is one simulated person and the attributes cameras report for them.
type Worker struct {
	Index   int
	Profile model.AttributeObservation
}

// Sighting is one camera observing one worker.
type Sighting struct {
	Worker      int
	CameraID    string
	Timestamp   time.Time
	Observation model.AttributeObservation
}

// Plan is a generated walk: the workers and their sightings grouped into
// frames in time order.
type Plan struct {
	Workers []Worker
	Frames  []Frame
}

// CameraID names the i-th camera of the corridor, counting from zero.
func CameraID(i int) string { return fmt.Sprintf("CAM-%d", i+1) }

// Edges returns the adjacency of the corridor: one edge per neighbor pair.
func Edges(cfg Config) []model.CameraTopologyEdge {
	out := make([]model.CameraTopologyEdge, 0, max(cfg.Cameras-1, 0))
	for i := 0; i+1 < cfg.Cameras; i++ {
		out = append(out, model.CameraTopologyEdge{
			CameraAID:             CameraID(i),
			CameraBID:             CameraID(i + 1),
			TransitionTimeSeconds: cfg.TransitSeconds,
			Direction:             model.DirectionBidirectional,
		})
	}
	return out
}

// rngFor returns the deterministic stream of worker i.
func rngFor(seed uint64, i int) *rand.Rand {
	return rand.New(rand.NewPCG(seed, uint64(i)+1)) //nolint:gosec // simulation data, not security sensitive
}

func pick[T any](r *rand.Rand, xs []T) T { return xs[r.IntN(len(xs))] }

// profile builds the fixed attributes of worker i.
func profile(cfg Config, i int, r *rand.Rand) model.AttributeObservation {
	upper := upperColors[i%len(upperColors)] + " " + garments[(i/len(upperColors))%len(garments)]
	if round := i / (len(upperColors) * len(garments)); round > 0 {
		upper = fmt.Sprintf("%s %d", upper, round+1)
	}
	obs := model.AttributeObservation{
		ClothingUpper:  upper,
		ClothingLower:  pick(r, lowerWear),
		BodyType:       pick(r, bodyTypes),
		HeightEstimate: pick(r, heights),
		SafetyGear: model.SafetyGear{
			"hatColor":   pick(r, hatColors),
			"apronColor": "none",
			"hasMask":    r.IntN(2) == 0,
			"hasGloves":  r.IntN(2) == 0,
			"hasApron":   false,
		},
	}
	if r.Float64() < cfg.BadgeRatio {
		obs.BadgeNumber = fmt.Sprintf("B%04d", i+1)
	}
	return obs
}

// walk generates the sightings of worker w.
func walk(cfg Config, w Worker, r *rand.Rand) []Sighting {
	cam := r.IntN(cfg.Cameras)
	dir := 1
	if r.IntN(2) == 0 {
		dir = -1
	}
	at := cfg.Start.Add(time.Duration(r.IntN(cfg.TransitSeconds*cfg.Cameras)) * time.Second)

	out := make([]Sighting, 0, cfg.Steps+1)
	for step := 0; step <= cfg.Steps; step++ {
		obs := w.Profile.Clone()
		obs.PositionInFrame = pick(r, positions)
		obs.Action = pick(r, actions)
		obs.Confidence = math.Round((0.7+0.3*r.Float64())*100) / 100
		out = append(out, Sighting{Worker: w.Index, CameraID: CameraID(cam), Timestamp: at, Observation: obs})

		if cfg.Cameras > 1 {
			if next := cam + dir; next < 0 || next >= cfg.Cameras {
				dir = -dir
			}
			cam += dir
		}
		transit := float64(cfg.TransitSeconds) * (1 + cfg.Jitter*(2*r.Float64()-1))
		at = at.Add(time.Duration(max(1, int(math.Round(transit)))) * time.Second)
	}
	return out
}

// Generate builds the plan for cfg. Given a fixed Start, the same config
// always yields the same frames. A zero Start means now.
func Generate(ctx context.Context, cfg Config) (Plan, error) {
	if err := cfg.Validate(); err != nil {
		return Plan{}, err
	}
	if cfg.Start.IsZero() {
		cfg.Start = time.Now()
	}
	cfg.Start = cfg.Start.UTC().Truncate(time.Second)

	workers := make([]Worker, cfg.Workers)
	walks := make([][]Sighting, cfg.Workers)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i := range workers {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r := rngFor(cfg.Seed, i)
			workers[i] = Worker{Index: i, Profile: profile(cfg, i, r)}
			walks[i] = walk(cfg, workers[i], r)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Plan{}, err
	}

	var all []Sighting
	for _, w := range walks {
		all = append(all, w...)
	}
	return Plan{Workers: workers, Frames: frames(all)}, nil
}

// frames groups sightings by camera and instant, ordered by time, then camera,
// then worker.
func frames(all []Sighting) []Frame {
	sort.Slice(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		if a.CameraID != b.CameraID {
			return a.CameraID < b.CameraID
		}
		return a.Worker < b.Worker
	})

	var out []Frame
	for _, s := range all {
		ts := s.Timestamp.UTC().Format(time.RFC3339)
		if n := len(out); n > 0 && out[n-1].CameraID == s.CameraID && out[n-1].Timestamp == ts {
			out[n-1].Observations = append(out[n-1].Observations, s.Observation)
			out[n-1].Workers = append(out[n-1].Workers, s.Worker)
			continue
		}
		out = append(out, Frame{
			CameraID:     s.CameraID,
			Timestamp:    ts,
			Observations: []model.AttributeObservation{s.Observation},
			Workers:      []int{s.Worker},
		})
	}
	return out
}
