package service

import (
	"time"

	"github.com/okian/crosscam/internal/adapters/persistence"
	"github.com/okian/crosscam/internal/adapters/persistence/backend"
	"github.com/okian/crosscam/internal/domain/scoring"
	"github.com/okian/crosscam/internal/domain/topology"
	"github.com/okian/crosscam/pkg/logger"
)

// WriteMode selects how resolutions reach the persistence adapter.
type WriteMode string

// Write modes.
const (
	// WriteSync persists every call in one transaction before returning.
	WriteSync WriteMode = "sync"
	// WriteAsync hands batches to an ordered write-behind queue.
	WriteAsync WriteMode = "async"
)

// Valid reports whether m is a known write mode.
func (m WriteMode) Valid() bool { return m == WriteSync || m == WriteAsync }

// Retention configures the background cleanup sweeper.
type Retention struct {
	Enabled    bool
	Interval   time.Duration
	MaxAge     time.Duration
	KeepLinked bool
	Hard       bool
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore injects an already opened persistence store. The service takes
// ownership and closes it on Stop.
func WithStore(st persistence.Store) Option {
	return func(s *Service) {
		if st != nil {
			s.store = st
		}
	}
}

// WithBackend configures the store opened by Start when none was injected.
func WithBackend(cfg backend.Config) Option {
	return func(s *Service) {
		s.backend = cfg
	}
}

// WithScope sets the topology scope used for lookups and new edges.
func WithScope(scope string) Option {
	return func(s *Service) {
		s.scope = scope
	}
}

// WithTimeWindow sets how far back candidates are searched.
func WithTimeWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeWindow = d
		}
	}
}

// WithMatchThreshold sets the minimum score for a match.
func WithMatchThreshold(t float64) Option {
	return func(s *Service) {
		if t > 0 && t <= 1 {
			s.threshold = t
		}
	}
}

// WithGraceFactor sets the multiple of an edge transition time still
// considered plausible.
func WithGraceFactor(f float64) Option {
	return func(s *Service) {
		if f > 0 {
			s.graceFactor = f
		}
	}
}

// WithTopologyPolicy sets the handling of camera pairs without an edge.
func WithTopologyPolicy(p topology.Policy) Option {
	return func(s *Service) {
		if p.Valid() {
			s.policy = p
		}
	}
}

// WithWriteMode selects synchronous or write-behind persistence.
func WithWriteMode(m WriteMode) Option {
	return func(s *Service) {
		if m.Valid() {
			s.writeMode = m
		}
	}
}

// WithWriteQueueSize bounds the write-behind queue.
func WithWriteQueueSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

// WithStoreTimeout bounds every call into the persistence adapter.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.storeTimeout = d
		}
	}
}

// WithActiveWindow sets the recency that counts a record as active in Statistics.
func WithActiveWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.activeWindow = d
		}
	}
}

// WithRetention configures the background cleanup sweeper.
func WithRetention(r Retention) Option {
	return func(s *Service) {
		s.retention = r
	}
}

// WithScorer replaces the attribute scorer.
func WithScorer(sc scoring.Scorer) Option {
	return func(s *Service) {
		if sc != nil {
			s.scorer = sc
		}
	}
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides tracking id generation.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
