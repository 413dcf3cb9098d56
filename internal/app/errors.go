package service

import "errors"

// Sentinel errors returned by the Service.
var (
	// ErrNotFound reports an unknown or removed tracking id.
	ErrNotFound = errors.New("tracking record not found")
	// ErrStoreUnavailable reports that the persistence adapter could not
	// complete a write. The in-memory state is left as it was before the call.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrInvalidConfiguration reports a malformed topology edge or option.
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrInvalidArgument reports malformed call arguments.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotStarted is returned by operations called before Start.
	ErrNotStarted = errors.New("service not started")
)
