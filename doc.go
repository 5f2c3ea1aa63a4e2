// Package authguard provides cookie-backed user sessions and abuse protection
// on top of Redis.
//
// A session is a random token addressed together with its owner's user id.
// The client only ever holds a signed cookie carrying that key; the record
// (creation time, device, location, acknowledgement flag) lives in Redis
// under a TTL, so sessions expire without any sweeper.
//
// Besides sessions the [Engine] offers two counters keyed by resource kind
// and an opaque identifier (user id, client address):
//
//   - a daily resource limiter that caps how many actions of a kind may be
//     performed per rolling window, and
//   - a resource lock that counts failures and, once the attempt budget is
//     spent, blocks the kind for an exponentially growing backoff.
//
// Engine methods are safe to call from multiple goroutines once built with
// [Builder.Build].
//
// # Architecture boundaries
//
// authguard is the public surface. It exposes [Engine], [Builder], [Config]
// and value types ([Identity], [SessionInfo], [LockStatus]). Storage codecs,
// Lua scripts and key layouts live in the session, cookie and internal
// packages. The Redis client is owned by the caller.
//
// # Failure semantics
//
// Every check fails closed: an unreachable store makes [Engine.Identity]
// report a missing identity, [Engine.CheckResource] deny, and
// [Engine.ResourceLocked] report locked. Best-effort side effects (device
// classification, location lookup, audit delivery) are logged and never
// block the request.
package authguard
