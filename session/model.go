package session

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
)

// ErrInvalidKey is returned by [ParseKey] for malformed session keys.
var ErrInvalidKey = errors.New("invalid session key")

// Key identifies one login. Its string form is "{user_id}:{token}".
type Key struct {
	UserID int64
	Token  string
}

// String returns the "{user_id}:{token}" form used in store keys and cookies.
func (k Key) String() string {
	return strconv.FormatInt(k.UserID, 10) + ":" + k.Token
}

// Fingerprint returns a short stable digest of k that is safe to show to
// clients and write to logs. It cannot be turned back into the token.
func (k Key) Fingerprint() string {
	sum := sha256.Sum256([]byte(k.String()))
	return hex.EncodeToString(sum[:8])
}

// IsZero reports whether k is the zero Key.
func (k Key) IsZero() bool {
	return k.UserID == 0 && k.Token == ""
}

// ParseKey parses the "{user_id}:{token}" form produced by [Key.String].
// The user id must be positive and the token non-empty and free of ':'.
func ParseKey(s string) (Key, error) {
	idx := strings.IndexByte(s, ':')
	if idx <= 0 || idx == len(s)-1 {
		return Key{}, ErrInvalidKey
	}

	userID, err := strconv.ParseInt(s[:idx], 10, 64)
	if err != nil || userID <= 0 {
		return Key{}, ErrInvalidKey
	}
	// Reject "+1" and "01" so that every key has exactly one string form.
	if strconv.FormatInt(userID, 10) != s[:idx] {
		return Key{}, ErrInvalidKey
	}

	token := s[idx+1:]
	if strings.IndexByte(token, ':') >= 0 || strings.ContainsAny(token, "*?[]\\") {
		return Key{}, ErrInvalidKey
	}

	return Key{UserID: userID, Token: token}, nil
}

// DeviceType is the coarse device family recorded at login.
type DeviceType uint8

const (
	DeviceUnknown DeviceType = iota
	DeviceDesktop
	DeviceMobile
	DeviceTablet
	DeviceBot
)

func (t DeviceType) String() string {
	switch t {
	case DeviceDesktop:
		return "desktop"
	case DeviceMobile:
		return "mobile"
	case DeviceTablet:
		return "tablet"
	case DeviceBot:
		return "bot"
	default:
		return "unknown"
	}
}

// MarshalText renders the type by name in JSON.
func (t DeviceType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Device describes the client that performed the login.
type Device struct {
	Name string     `json:"name"`
	Type DeviceType `json:"type"`
}

// Location is the coarse place a login came from. Coordinates are optional.
type Location struct {
	Name string   `json:"name"`
	Lat  *float64 `json:"lat,omitempty"`
	Lng  *float64 `json:"lng,omitempty"`
}

// Record is the payload stored for one session.
//
// UserID is required; a value <= 0 means the field was absent from the
// stored payload and the record must not authenticate anyone.
type Record struct {
	UserID    int64
	CreatedAt int64
	Device    *Device
	Location  *Location
	Ack       bool
}

// HasUserID reports whether the record carries an owner.
func (r *Record) HasUserID() bool {
	return r != nil && r.UserID > 0
}

// Entry pairs a session key with its record.
type Entry struct {
	Key    Key
	Record Record
}
