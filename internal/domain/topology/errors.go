package topology

import "errors"

// Sentinel kinds for topology errors.
var (
	ErrInvalidConfiguration = errors.New("invalid topology configuration")
	ErrPersist              = errors.New("topology persist failed")
)
