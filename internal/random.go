package internal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
)

const sessionTokenSize = 32

// SessionToken is the random half of a session key.
type SessionToken [sessionTokenSize]byte

// NewSessionToken returns a token read from crypto/rand.
func NewSessionToken() (SessionToken, error) {
	var tok SessionToken
	_, err := rand.Read(tok[:])
	return tok, err
}

func (t SessionToken) String() string {
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(t[:])
}

// ValidSessionToken reports whether s is the string form of a SessionToken.
func ValidSessionToken(s string) bool {
	if base64.RawURLEncoding.EncodedLen(sessionTokenSize) != len(s) {
		return false
	}
	_, err := ParseSessionToken(s)
	return err == nil
}

// ParseSessionToken validates s and returns it as a SessionToken.
func ParseSessionToken(s string) (SessionToken, error) {
	var tok SessionToken

	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return tok, err
	}
	if len(raw) != len(tok) {
		return tok, errors.New("invalid session token size")
	}

	copy(tok[:], raw)
	return tok, nil
}
