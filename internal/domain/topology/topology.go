// Package topology holds the configured adjacency between cameras and decides
// whether a move between two cameras is physically plausible.
package topology

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/okian/crosscam/internal/domain/model"
	"github.com/okian/crosscam/pkg/logger"
	"github.com/okian/crosscam/pkg/metrics"
)

const defaultGraceFactor = 3.0

// Policy decides what happens for camera pairs without a configured edge.
type Policy string

// Policies for unconfigured camera pairs.
const (
	// PolicyPermissive treats a missing edge as "no constraint".
	PolicyPermissive Policy = "permissive"
	// PolicyStrict rejects cross-camera continuations without an edge.
	PolicyStrict Policy = "strict"
)

// Valid reports whether p is a known policy.
func (p Policy) Valid() bool { return p == PolicyPermissive || p == PolicyStrict }

var cameraIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:\-]{0,63}$`) //nolint:gochecknoglobals // compiled once

// Persister is the durable backing for topology edges.
type Persister interface {
	SaveEdge(ctx context.Context, edge model.CameraTopologyEdge) error
	ListEdges(ctx context.Context) ([]model.CameraTopologyEdge, error)
}

// Store is a read-mostly cache of topology edges keyed by unordered camera pair.
type Store struct {
	mu          sync.RWMutex
	edges       map[string]model.CameraTopologyEdge
	persister   Persister
	policy      Policy
	graceFactor float64
	logger      logger.Logger
}

// NewStore constructs a topology store with configuration options.
func NewStore(opts ...Option) *Store {
	s := &Store{
		edges:       make(map[string]model.CameraTopologyEdge),
		policy:      PolicyPermissive,
		graceFactor: defaultGraceFactor,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("topology")
	}
	return s
}

// Policy returns the policy for unconfigured pairs.
func (s *Store) Policy() Policy { return s.policy }

// Load replaces the cache with the edges held by the persister.
func (s *Store) Load(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	edges, err := s.persister.ListEdges(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	fresh := make(map[string]model.CameraTopologyEdge, len(edges))
	for _, e := range edges {
		fresh[e.PairKey()] = e
	}
	s.mu.Lock()
	s.edges = fresh
	s.mu.Unlock()
	metrics.UpdateTopologyEdges(len(fresh))
	s.logger.Info(ctx, "topology loaded", logger.Int("edges", len(fresh)))
	return nil
}

// Validate checks an edge and fills in defaults.
func Validate(e model.CameraTopologyEdge) (model.CameraTopologyEdge, error) {
	e.Scope = strings.TrimSpace(e.Scope)
	e.CameraAID = strings.TrimSpace(e.CameraAID)
	e.CameraBID = strings.TrimSpace(e.CameraBID)
	switch {
	case !cameraIDPattern.MatchString(e.CameraAID):
		return e, fmt.Errorf("%w: malformed camera id %q", ErrInvalidConfiguration, e.CameraAID)
	case !cameraIDPattern.MatchString(e.CameraBID):
		return e, fmt.Errorf("%w: malformed camera id %q", ErrInvalidConfiguration, e.CameraBID)
	case e.CameraAID == e.CameraBID:
		return e, fmt.Errorf("%w: edge from %q to itself", ErrInvalidConfiguration, e.CameraAID)
	case e.TransitionTimeSeconds < 0:
		return e, fmt.Errorf("%w: negative transition time %d", ErrInvalidConfiguration, e.TransitionTimeSeconds)
	}
	if e.TransitionTimeSeconds == 0 {
		e.TransitionTimeSeconds = model.DefaultTransitionSeconds
	}
	if e.Direction == "" {
		e.Direction = model.DirectionBidirectional
	}
	e.Direction = model.Direction(strings.ToUpper(string(e.Direction)))
	if !e.Direction.Valid() {
		return e, fmt.Errorf("%w: unknown direction %q", ErrInvalidConfiguration, e.Direction)
	}
	return e, nil
}

// Put validates and upserts an edge by unordered camera pair. The change is
// visible to lookups made after Put returns.
func (s *Store) Put(ctx context.Context, e model.CameraTopologyEdge) (model.CameraTopologyEdge, error) {
	e, err := Validate(e)
	if err != nil {
		metrics.RecordErrorByComponent("topology", "invalid_configuration")
		return e, err
	}
	if s.persister != nil {
		if err := s.persister.SaveEdge(ctx, e); err != nil {
			metrics.RecordErrorByComponent("topology", "persist")
			return e, fmt.Errorf("%w: %w", ErrPersist, err)
		}
	}

	s.mu.Lock()
	s.edges[e.PairKey()] = e
	n := len(s.edges)
	s.mu.Unlock()

	metrics.UpdateTopologyEdges(n)
	s.logger.Info(ctx, "topology edge configured",
		logger.String("scope", e.Scope),
		logger.String("camera_a", e.CameraAID),
		logger.String("camera_b", e.CameraBID),
		logger.Int("transition_seconds", e.TransitionTimeSeconds),
		logger.String("direction", string(e.Direction)),
	)
	return e, nil
}

// Get returns the edge between two cameras in either order.
func (s *Store) Get(scope, a, b string) (model.CameraTopologyEdge, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.edges[model.PairKey(scope, a, b)]
	return e, ok
}

// List returns the edges of a scope ordered by camera pair.
func (s *Store) List(scope string) []model.CameraTopologyEdge {
	s.mu.RLock()
	out := make([]model.CameraTopologyEdge, 0, len(s.edges))
	for _, e := range s.edges {
		if e.Scope == scope {
			out = append(out, e)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		ai, bi := model.OrderedPair(out[i].CameraAID, out[i].CameraBID)
		aj, bj := model.OrderedPair(out[j].CameraAID, out[j].CameraBID)
		if ai != aj {
			return ai < aj
		}
		return bi < bj
	})
	return out
}

// Allows reports whether an identity last seen on camera from can reappear on
// camera to after elapsed. The edge direction is not enforced.
func (s *Store) Allows(scope, from, to string, elapsed time.Duration) bool {
	if from == to {
		return true
	}
	e, ok := s.Get(scope, from, to)
	if !ok {
		return s.policy == PolicyPermissive
	}
	limit := time.Duration(s.graceFactor * float64(e.TransitionTimeSeconds) * float64(time.Second))
	return elapsed <= limit
}
