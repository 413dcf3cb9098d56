package persistence

import "errors"

// Sentinel kinds shared by all backends.
var (
	ErrNotFound       = errors.New("tracking record not found")
	ErrInvalidBatch   = errors.New("invalid batch")
	ErrUnknownBackend = errors.New("unknown persistence backend")
	ErrMissingDSN     = errors.New("relational backend requires a dsn")
	ErrClosed         = errors.New("store closed")
)
