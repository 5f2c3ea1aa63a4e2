// Package cookie turns session keys into tamper-evident cookie values and
// writes them to HTTP responses.
//
// A cookie value is
//
//	base64url("{user_id}:{token}") "." base64url(HMAC-SHA256)
//
// where the MAC key is derived from the process secret with HKDF-SHA256.
// [Codec.Decode] never explains why a value was rejected.
package cookie
