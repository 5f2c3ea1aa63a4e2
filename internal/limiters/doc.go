// Package limiters provides the exponential-backoff resource lock used to
// slow down brute force against sensitive operations.
//
// # Semantics
//
// One counter per (kind, identifier) under
//
//	{prefix}:{kind}:{identifier}
//
// Below the kind's MaxAttempts a failure increments the counter and ensures
// the base TTL. At or above it the counter stops growing and each failure
// resets the TTL to min(base * 2^attempts, max_backoff). max_backoff never
// exceeds the global ceiling. The whole branch runs as one Lua script.
//
// # What this package must NOT do
//
//   - Import authguard or any sibling internal package.
//   - Decide what a locked resource means for the caller.
package limiters
