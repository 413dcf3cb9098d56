package simulation

import (
	"math"
	"time"

	"github.com/okian/crosscam/internal/domain/model"
)

// Report compares resolved identities against ground truth.
type Report struct {
	Frames            int `json:"frames" yaml:"frames"`
	Observations      int `json:"observations" yaml:"observations"`
	Workers           int `json:"workers" yaml:"workers"`
	IdentitiesCreated int `json:"identities_created" yaml:"identities_created"`
	Matches           int `json:"matches" yaml:"matches"`
	// FragmentedWorkers counts workers that were split over several identities.
	FragmentedWorkers int `json:"fragmented_workers" yaml:"fragmented_workers"`
	// MergedIdentities counts identities shared by several workers.
	MergedIdentities int `json:"merged_identities" yaml:"merged_identities"`
	// Purity is the share of observations that landed on their worker's
	// dominant identity.
	Purity   float64       `json:"purity" yaml:"purity"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// Clean reports a replay where every worker kept exactly one identity of
// their own.
func (r Report) Clean() bool {
	return r.FragmentedWorkers == 0 && r.MergedIdentities == 0
}

type tally struct {
	frames       int
	observations int
	created      int
	matches      int
	byWorker     map[int]map[string]int
	byIdentity   map[string]map[int]struct{}
}

func newTally() *tally {
	return &tally{
		byWorker:   make(map[int]map[string]int),
		byIdentity: make(map[string]map[int]struct{}),
	}
}

func (t *tally) add(worker int, res model.ResolutionResult) {
	t.observations++
	if res.IsNew {
		t.created++
	} else {
		t.matches++
	}
	if worker < 0 {
		return
	}
	ids := t.byWorker[worker]
	if ids == nil {
		ids = make(map[string]int)
		t.byWorker[worker] = ids
	}
	ids[res.TrackingID]++

	ws := t.byIdentity[res.TrackingID]
	if ws == nil {
		ws = make(map[int]struct{})
		t.byIdentity[res.TrackingID] = ws
	}
	ws[worker] = struct{}{}
}

func (t *tally) report() Report {
	rep := Report{
		Frames:            t.frames,
		Observations:      t.observations,
		Workers:           len(t.byWorker),
		IdentitiesCreated: t.created,
		Matches:           t.matches,
	}

	scored, dominant := 0, 0
	for _, ids := range t.byWorker {
		if len(ids) > 1 {
			rep.FragmentedWorkers++
		}
		best := 0
		for _, n := range ids {
			scored += n
			best = max(best, n)
		}
		dominant += best
	}
	for _, ws := range t.byIdentity {
		if len(ws) > 1 {
			rep.MergedIdentities++
		}
	}
	if scored > 0 {
		rep.Purity = math.Round(float64(dominant)/float64(scored)*1e6) / 1e6
	}
	return rep
}
