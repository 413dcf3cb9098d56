package topology

import "github.com/okian/crosscam/pkg/logger"

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithPersister makes the store write edges through to durable storage.
func WithPersister(p Persister) Option {
	return func(s *Store) {
		if p != nil {
			s.persister = p
		}
	}
}

// WithPolicy selects how camera pairs without a configured edge are treated.
func WithPolicy(p Policy) Option {
	return func(s *Store) {
		if p.Valid() {
			s.policy = p
		}
	}
}

// WithGraceFactor sets the multiple of the transition time a move may take.
func WithGraceFactor(f float64) Option {
	return func(s *Store) {
		if f > 0 {
			s.graceFactor = f
		}
	}
}

// WithLogger sets a custom logger for the store.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}
