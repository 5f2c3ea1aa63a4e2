package cookie

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/penwell/authguard/session"
	"golang.org/x/crypto/hkdf"
)

// MinSecretLen is the minimum length of the process signing secret.
const MinSecretLen = 32

const (
	macKeyLen  = 32
	macKeyInfo = "authguard/cookie/v1"
	separator  = "."
)

// ErrWeakSecret is returned by [NewCodec] when the secret is shorter than
// [MinSecretLen].
var ErrWeakSecret = errors.New("cookie signing secret must be at least 32 bytes")

// Codec signs session keys into cookie values and verifies them back.
//
// The MAC key is derived once from the secret and never changes, so a Codec
// is safe for concurrent use. Rotating the secret invalidates every cookie
// issued under the old one.
type Codec struct {
	macKey []byte
	method *jwt.SigningMethodHMAC
}

// NewCodec derives the MAC subkey from secret.
func NewCodec(secret []byte) (*Codec, error) {
	if len(secret) < MinSecretLen {
		return nil, ErrWeakSecret
	}

	macKey := make([]byte, macKeyLen)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(macKeyInfo)), macKey); err != nil {
		return nil, err
	}

	return &Codec{
		macKey: macKey,
		method: jwt.SigningMethodHS256,
	}, nil
}

// Encode returns base64url(key) "." base64url(HMAC-SHA256(key)).
func (c *Codec) Encode(key session.Key) string {
	payload := key.String()
	sig, err := c.method.Sign(payload, c.macKey)
	if err != nil {
		// Sign only fails for a non-[]byte key.
		return ""
	}
	return base64.RawURLEncoding.EncodeToString([]byte(payload)) + separator +
		base64.RawURLEncoding.EncodeToString(sig)
}

// Decode verifies value and returns the session key it carries. Any
// problem (empty input, bad encoding, MAC mismatch, malformed key) yields
// false with no further detail.
func (c *Codec) Decode(value string) (session.Key, bool) {
	if value == "" {
		return session.Key{}, false
	}

	rawPayload, rawSig, ok := strings.Cut(value, separator)
	if !ok || rawPayload == "" || rawSig == "" {
		return session.Key{}, false
	}

	payload, err := base64.RawURLEncoding.DecodeString(rawPayload)
	if err != nil {
		return session.Key{}, false
	}
	sig, err := base64.RawURLEncoding.DecodeString(rawSig)
	if err != nil {
		return session.Key{}, false
	}

	// Verify compares with hmac.Equal.
	if err := c.method.Verify(string(payload), sig, c.macKey); err != nil {
		return session.Key{}, false
	}

	key, err := session.ParseKey(string(payload))
	if err != nil {
		return session.Key{}, false
	}
	return key, true
}
