package authguard

import "errors"

var (
	// ErrMissingIdentity means the request carries no valid session: the
	// cookie is absent or unverifiable, or its record is gone or malformed.
	ErrMissingIdentity = errors.New("missing identity")
	// ErrSessionNotFound is returned when a session addressed by key no
	// longer exists (or belongs to someone else). It is a normal outcome.
	ErrSessionNotFound = errors.New("session not found")
	// ErrStoreUnavailable wraps connectivity failures and timeouts talking
	// to Redis.
	ErrStoreUnavailable = errors.New("session store unavailable")
	// ErrResourceLimited is returned when a daily resource cap is reached.
	ErrResourceLimited = errors.New("resource limit reached")
	// ErrResourceLocked is returned while a resource lock is engaged.
	ErrResourceLocked = errors.New("resource locked")
	// ErrUnknownResourceKind is returned for a kind with no configured policy.
	ErrUnknownResourceKind = errors.New("unknown resource kind")
	// ErrInvalidIdentifier is returned for an empty resource identifier.
	ErrInvalidIdentifier = errors.New("invalid resource identifier")
	// ErrInvalidUserID is returned for a user id <= 0.
	ErrInvalidUserID = errors.New("invalid user id")
	// ErrConfig reports an invalid or incomplete configuration.
	ErrConfig = errors.New("invalid configuration")
	// ErrEngineNotReady is returned by methods called on a nil or unbuilt Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
