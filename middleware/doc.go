// Package middleware adapts authguard.Engine to net/http.
//
// # Handlers
//
//   - [RequestID] and [ClientInfo] enrich the request context with a
//     correlation id, the client address and the User-Agent.
//   - [LoadIdentity] resolves the session cookie if present;
//     [RequireIdentity] rejects anonymous requests.
//   - [LimitResource] enforces a daily resource cap and counts only
//     successful responses.
//   - [LockGuard] rejects requests while a resource lock is engaged.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does not talk
// to Redis and makes no decision the Engine has not made.
package middleware
