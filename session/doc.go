// Package session provides Redis-backed session persistence and the compact binary
// record encoding used by authguard.
//
// # Binary encoding
//
// Records are stored as a version byte followed by tagged fields
// (tag, uvarint length, payload). Unknown tags are skipped and missing tags keep
// their zero value, so old and new releases can read each other's records.
//
// # Key layout
//
//	{prefix}:{user_id}:{token}
//
// Putting the user id in the key lets every session of one user be found with a
// single SCAN pattern, which backs session listing and "log out everywhere".
//
// # Architecture boundaries
//
// This package owns the [Store] (Redis operations), the [Record] model and the
// [Key] format. It does NOT sign cookies or decide whether a request is
// authenticated; those responsibilities belong to the cookie package and the Engine.
//
// # What this package must NOT do
//
//   - Import authguard or cookie (no upward imports).
//   - Treat a missing or undecodable record as an error.
package session
