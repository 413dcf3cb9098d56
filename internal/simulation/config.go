// Package simulation generates synthetic site walks, replays them through a
// resolver and checks the resulting identities against ground truth.
package simulation

import (
	"fmt"
	"time"
)

// Config describes a synthetic site walk. Cameras sit along one corridor,
// CAM-1 to CAM-n, and every worker walks back and forth between neighbors.
type Config struct {
	Workers        int       `json:"workers" yaml:"workers"`
	Cameras        int       `json:"cameras" yaml:"cameras"`
	Steps          int       `json:"steps" yaml:"steps"`                     // hops per worker
	TransitSeconds int       `json:"transit_seconds" yaml:"transit_seconds"` // between neighbors
	Jitter         float64   `json:"jitter" yaml:"jitter"`                   // relative, in [0, 0.5]
	BadgeRatio     float64   `json:"badge_ratio" yaml:"badge_ratio"`         // workers with a readable badge
	Seed           uint64    `json:"seed" yaml:"seed"`
	Start          time.Time `json:"start" yaml:"start"`
}

// DefaultConfig returns a small walk that fits the default time window.
func DefaultConfig() Config {
	return Config{
		Workers:        20,
		Cameras:        4,
		Steps:          6,
		TransitSeconds: 30,
		Jitter:         0.2,
		BadgeRatio:     1,
		Seed:           1,
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.Workers <= 0:
		return fmt.Errorf("%w: workers must be positive", ErrInvalidConfig)
	case c.Cameras <= 0:
		return fmt.Errorf("%w: cameras must be positive", ErrInvalidConfig)
	case c.Steps < 0:
		return fmt.Errorf("%w: steps must not be negative", ErrInvalidConfig)
	case c.TransitSeconds <= 0:
		return fmt.Errorf("%w: transit_seconds must be positive", ErrInvalidConfig)
	case c.Jitter < 0 || c.Jitter > 0.5:
		return fmt.Errorf("%w: jitter must be in [0, 0.5]", ErrInvalidConfig)
	case c.BadgeRatio < 0 || c.BadgeRatio > 1:
		return fmt.Errorf("%w: badge_ratio must be in [0, 1]", ErrInvalidConfig)
	}
	return nil
}
