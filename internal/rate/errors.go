package rate

import "errors"

var (
	// ErrUnknownKind is returned for a resource kind with no configured cap.
	ErrUnknownKind = errors.New("unknown resource kind")
	// ErrInvalidIdentifier is returned for an empty identifier.
	ErrInvalidIdentifier = errors.New("invalid resource identifier")
	// ErrRedisUnavailable wraps every store failure.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
