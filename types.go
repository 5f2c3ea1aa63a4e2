package authguard

import (
	"context"
	"time"

	"github.com/penwell/authguard/internal"
	"github.com/penwell/authguard/session"
)

// Identity is the capability handed to downstream handlers once a request's
// cookie has been verified and its session record loaded.
type Identity struct {
	UserID       int64
	Key          session.Key
	CreatedAt    time.Time
	Acknowledged bool
}

// LoginOptions carries the optional inputs of [Engine.Login].
type LoginOptions struct {
	// PreviousCookie is the session cookie presented with the login request,
	// if any. A live session behind it is deleted before the new one is
	// issued.
	PreviousCookie string

	// Device and Location, when set, are stored as-is. Otherwise they are
	// derived from UserAgent / ClientIP (or the values attached to ctx with
	// WithUserAgent / WithClientIP).
	Device    *session.Device
	Location  *session.Location
	UserAgent string
	ClientIP  string
}

// LoginResult is returned by [Engine.Login].
type LoginResult struct {
	Key    session.Key
	Cookie string
	Record session.Record
	// Renewed reports whether a previous session was replaced.
	Renewed bool
}

// SessionInfo is the display view of one session in login activity.
// It never includes the token itself.
type SessionInfo struct {
	Key          session.Key       `json:"-"`
	ID           string            `json:"id"`
	CreatedAt    time.Time         `json:"created_at"`
	Device       *session.Device   `json:"device,omitempty"`
	Location     *session.Location `json:"location,omitempty"`
	Acknowledged bool              `json:"acknowledged"`
	Active       bool              `json:"active"`
}

// LoginActivity lists a user's sessions newest first and highlights the
// most recent login the user has not confirmed yet.
type LoginActivity struct {
	Sessions             []SessionInfo `json:"sessions"`
	RecentUnacknowledged *SessionInfo  `json:"recent_unacknowledged,omitempty"`
}

// LockStatus is the state of one resource lock.
type LockStatus struct {
	Attempts   int64
	Locked     bool
	RetryAfter time.Duration
}

// HealthStatus is an on-demand backend health result.
type HealthStatus struct {
	RedisAvailable bool
	RedisLatency   time.Duration
}

// DeviceClassifier derives the device recorded at login from a User-Agent.
// Implementations should be fast and side-effect free; errors are logged
// and the session is created without a device.
type DeviceClassifier interface {
	Classify(userAgent string) (*session.Device, error)
}

// DeviceClassifierFunc adapts a function to [DeviceClassifier].
type DeviceClassifierFunc func(userAgent string) (*session.Device, error)

// Classify calls f.
func (f DeviceClassifierFunc) Classify(userAgent string) (*session.Device, error) {
	return f(userAgent)
}

// LocationResolver maps a client address to a coarse location. Errors are
// logged and never block login.
type LocationResolver interface {
	Resolve(ctx context.Context, clientIP string) (*session.Location, error)
}

// LocationResolverFunc adapts a function to [LocationResolver].
type LocationResolverFunc func(ctx context.Context, clientIP string) (*session.Location, error)

// Resolve calls f.
func (f LocationResolverFunc) Resolve(ctx context.Context, clientIP string) (*session.Location, error) {
	return f(ctx, clientIP)
}

// UserAgentClassifier is the default [DeviceClassifier]. It recognises the
// common browser and platform tokens and labels crawlers as bots.
type UserAgentClassifier struct{}

func (UserAgentClassifier) Classify(userAgent string) (*session.Device, error) {
	name, class := internal.ClassifyUserAgent(userAgent)
	if name == "" && class == internal.DeviceClassUnknown {
		return nil, nil
	}
	return &session.Device{Name: name, Type: deviceType(class)}, nil
}

func deviceType(c internal.DeviceClass) session.DeviceType {
	switch c {
	case internal.DeviceClassDesktop:
		return session.DeviceDesktop
	case internal.DeviceClassMobile:
		return session.DeviceMobile
	case internal.DeviceClassTablet:
		return session.DeviceTablet
	case internal.DeviceClassBot:
		return session.DeviceBot
	default:
		return session.DeviceUnknown
	}
}
