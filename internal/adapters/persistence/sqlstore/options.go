package sqlstore

import (
	"time"

	"github.com/okian/crosscam/pkg/logger"
)

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithLogger sets the logger used for the store and its query log.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithSlowQueryThreshold logs queries slower than d at warn level.
func WithSlowQueryThreshold(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.slowQuery = d
		}
	}
}
