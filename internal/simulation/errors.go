package simulation

import "errors"

// Error constants.
var (
	ErrInvalidConfig = errors.New("invalid simulation config")
	ErrResultCount   = errors.New("resolver returned a different number of results than observations")
)
