// Package internal contains helper utilities that are intentionally private to authguard,
// including secure session-token generation and the default User-Agent classifier.
//
// # Sub-packages
//
//   - limiters: exponential-backoff resource lock for brute-force protection
//   - rate: rolling daily resource limiter
//
// # What this package must NOT do
//
//   - Export types that appear in the public authguard API.
//   - Be imported by any package outside the authguard module.
package internal
