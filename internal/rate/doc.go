// Package rate provides the rolling daily resource limiter: a per-kind cap on
// how many times one identifier may perform an action inside a window.
//
// # Window semantics
//
// One counter per (kind, identifier) under
//
//	{prefix}:{kind}:{identifier}
//
// The first increment of a window creates the counter and gives it the full
// window TTL; when the key expires the window resets. Increment is a single
// Lua script, so concurrent callers never lose an update.
//
// # Failure policy
//
// Check before the gated action, Increment after it succeeded. A failed
// Increment is reported but must not be retried.
//
// # What this package must NOT do
//
//   - Implement backoff (that lives in internal/limiters).
//   - Be imported outside the authguard module.
package rate
