package simulation

import "github.com/okian/crosscam/pkg/logger"

// Option applies a configuration option to the Runner.
type Option func(*Runner)

// WithTopology makes Run configure the corridor edges before replaying.
func WithTopology(t TopologyConfigurer) Option {
	return func(r *Runner) {
		r.topology = t
	}
}

// WithLogger sets a custom logger for the runner.
func WithLogger(l logger.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}
