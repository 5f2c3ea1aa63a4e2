package authguard

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the complete, immutable configuration of an [Engine]. Build one
// with [DefaultConfig] or [LoadConfigFromEnv] and pass it to
// [Builder.WithConfig]; the builder takes a deep copy.
type Config struct {
	Cookie         CookieConfig
	Session        SessionConfig
	Store          StoreConfig
	Redis          RedisConfig
	ResourceLimits ResourceLimitConfig
	ResourceLocks  ResourceLockConfig
	Audit          AuditConfig
	Metrics        MetricsConfig
}

/*
====================================
COOKIE CONFIG
====================================
*/

// CookieConfig controls the signed session cookie.
type CookieConfig struct {
	// SigningKey is the process-wide MAC secret (>= 32 bytes). Changing it
	// invalidates every issued cookie.
	SigningKey []byte
	Name       string
	Path       string
	Domain     string
	// MaxAge applies to persistent cookies. Zero means Session.TTL.
	MaxAge     time.Duration
	Persistent bool
	Secure     bool
	HTTPOnly   bool
	SameSite   http.SameSite
}

/*
====================================
SESSION / STORE CONFIG
====================================
*/

// SessionConfig controls server-side session records.
type SessionConfig struct {
	RedisPrefix string
	TTL         time.Duration
}

// StoreConfig bounds every Redis round trip made by the Engine.
type StoreConfig struct {
	OperationTimeout time.Duration
}

// RedisConfig is consumed by [OpenRedis]. The Engine itself only needs a
// client passed to [Builder.WithRedis].
type RedisConfig struct {
	Addr        string
	Username    string
	Password    string
	DB          int
	PoolSize    int
	DialTimeout time.Duration
	PingTimeout time.Duration
}

/*
====================================
RESOURCE CONFIG
====================================
*/

// ResourceLimitConfig configures the rolling daily resource limiter.
type ResourceLimitConfig struct {
	RedisPrefix string
	Window      time.Duration
	// Caps maps a resource kind (e.g. "draft") to the number of actions one
	// identifier may perform per window.
	Caps        map[string]int64
}

// LockPolicy configures one resource lock kind.
type LockPolicy struct {
	MaxAttempts int64
	BaseBackoff time.Duration
	// MaxBackoff caps the backoff for this kind. Zero means the ceiling.
	MaxBackoff  time.Duration
}

// ResourceLockConfig configures the exponential-backoff resource lock.
type ResourceLockConfig struct {
	RedisPrefix string
	// Ceiling is the hard upper bound for every kind's lockout window.
	Ceiling     time.Duration
	Policies    map[string]LockPolicy
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns production-leaning defaults. The signing key is left
// empty and must be supplied.
func DefaultConfig() Config {
	return Config{
		Cookie: CookieConfig{
			Name:       "authguard_session",
			Path:       "/",
			MaxAge:     7 * 24 * time.Hour,
			Persistent: true,
			Secure:     true,
			HTTPOnly:   true,
			SameSite:   http.SameSiteLaxMode,
		},
		Session: SessionConfig{
			RedisPrefix: "session",
			TTL:         7 * 24 * time.Hour,
		},
		Store: StoreConfig{
			OperationTimeout: 2 * time.Second,
		},
		Redis: RedisConfig{
			Addr:        "localhost:6379",
			PoolSize:    20,
			DialTimeout: 2 * time.Second,
			PingTimeout: 2 * time.Second,
		},
		ResourceLimits: ResourceLimitConfig{
			RedisPrefix: "resource-limit",
			Window:      24 * time.Hour,
			Caps: map[string]int64{
				"draft":   50,
				"comment": 500,
			},
		},
		ResourceLocks: ResourceLockConfig{
			RedisPrefix: "resource-lock",
			Ceiling:     24 * time.Hour,
			Policies: map[string]LockPolicy{
				"login": {MaxAttempts: 5, BaseBackoff: time.Minute, MaxBackoff: 24 * time.Hour},
			},
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Cookie.SigningKey = cloneBytes(cfg.Cookie.SigningKey)
	if cfg.ResourceLimits.Caps != nil {
		out.ResourceLimits.Caps = make(map[string]int64, len(cfg.ResourceLimits.Caps))
		for k, v := range cfg.ResourceLimits.Caps {
			out.ResourceLimits.Caps[k] = v
		}
	}
	if cfg.ResourceLocks.Policies != nil {
		out.ResourceLocks.Policies = make(map[string]LockPolicy, len(cfg.ResourceLocks.Policies))
		for k, v := range cfg.ResourceLocks.Policies {
			out.ResourceLocks.Policies[k] = v
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

func configError(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrConfig}, args...)...)
}

// Validate checks cross-field invariants. Every returned error wraps
// [ErrConfig].
func (c *Config) Validate() error {
	// Cookie
	if len(c.Cookie.SigningKey) < 32 {
		return configError("Cookie SigningKey must be at least 32 bytes")
	}
	if !validCookieName(c.Cookie.Name) {
		return configError("Cookie Name %q is not a valid cookie name", c.Cookie.Name)
	}
	if c.Cookie.MaxAge < 0 {
		return configError("Cookie MaxAge must be >= 0")
	}
	if c.Cookie.SameSite == http.SameSiteNoneMode && !c.Cookie.Secure {
		return configError("Cookie SameSite=None requires Secure")
	}

	// Session
	if c.Session.TTL <= 0 {
		return configError("Session TTL must be > 0")
	}
	if strings.ContainsAny(c.Session.RedisPrefix, ":*?[]") {
		return configError("Session RedisPrefix must not contain ':' or glob characters")
	}

	// Store
	if c.Store.OperationTimeout <= 0 {
		return configError("Store OperationTimeout must be > 0")
	}

	// Resource limits
	if c.ResourceLimits.Window <= 0 {
		return configError("ResourceLimits Window must be > 0")
	}
	for kind, limit := range c.ResourceLimits.Caps {
		if !validKind(kind) {
			return configError("ResourceLimits kind %q is invalid", kind)
		}
		if limit <= 0 {
			return configError("ResourceLimits cap for %q must be > 0", kind)
		}
	}

	// Resource locks
	if c.ResourceLocks.Ceiling <= 0 {
		return configError("ResourceLocks Ceiling must be > 0")
	}
	for kind, p := range c.ResourceLocks.Policies {
		if !validKind(kind) {
			return configError("ResourceLocks kind %q is invalid", kind)
		}
		if p.MaxAttempts <= 0 {
			return configError("ResourceLocks MaxAttempts for %q must be > 0", kind)
		}
		if p.BaseBackoff <= 0 {
			return configError("ResourceLocks BaseBackoff for %q must be > 0", kind)
		}
		if p.MaxBackoff < 0 || (p.MaxBackoff > 0 && p.MaxBackoff < p.BaseBackoff) {
			return configError("ResourceLocks MaxBackoff for %q must be 0 or >= BaseBackoff", kind)
		}
		if p.BaseBackoff > c.ResourceLocks.Ceiling {
			return configError("ResourceLocks BaseBackoff for %q exceeds the ceiling", kind)
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return configError("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}

// validKind accepts short lowercase identifiers; kinds end up inside Redis
// keys so separators and glob characters are rejected.
func validKind(kind string) bool {
	if kind == "" || len(kind) > 64 {
		return false
	}
	for _, r := range kind {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-', r == '.':
		default:
			return false
		}
	}
	return true
}

func validCookieName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if r <= ' ' || r >= 0x7f || strings.ContainsRune("()<>@,;:\\\"/[]?={}", r) {
			return false
		}
	}
	return true
}

/*
====================================
ENVIRONMENT
====================================
*/

// LoadConfigFromEnv builds a Config from [DefaultConfig] and AUTHGUARD_*
// environment variables.
//
// Required:
//   - AUTHGUARD_SIGNING_KEY (at least 32 bytes)
//   - AUTHGUARD_REDIS_ADDR
//
// Optional (durations are Go duration strings):
//   - AUTHGUARD_REDIS_USERNAME, AUTHGUARD_REDIS_PASSWORD, AUTHGUARD_REDIS_DB
//   - AUTHGUARD_COOKIE_NAME, AUTHGUARD_COOKIE_DOMAIN
//   - AUTHGUARD_COOKIE_SECURE, AUTHGUARD_COOKIE_PERSISTENT (bool)
//   - AUTHGUARD_COOKIE_SAMESITE (lax, strict, none)
//   - AUTHGUARD_SESSION_TTL, AUTHGUARD_STORE_TIMEOUT
//   - AUTHGUARD_RESOURCE_WINDOW, AUTHGUARD_LOCK_CEILING
//   - AUTHGUARD_RESOURCE_LIMITS, e.g. "draft=50,comment=500"
//   - AUTHGUARD_RESOURCE_LOCKS, e.g. "login=5/1m/1h,password=3/30s"
//   - AUTHGUARD_AUDIT_ENABLED, AUTHGUARD_METRICS_ENABLED (bool)
//
// Every error wraps [ErrConfig].
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	cfg.Cookie.SigningKey = []byte(os.Getenv("AUTHGUARD_SIGNING_KEY"))
	if len(cfg.Cookie.SigningKey) == 0 {
		return Config{}, configError("AUTHGUARD_SIGNING_KEY is required")
	}
	cfg.Redis.Addr = os.Getenv("AUTHGUARD_REDIS_ADDR")
	if cfg.Redis.Addr == "" {
		return Config{}, configError("AUTHGUARD_REDIS_ADDR is required")
	}
	cfg.Redis.Username = os.Getenv("AUTHGUARD_REDIS_USERNAME")
	cfg.Redis.Password = os.Getenv("AUTHGUARD_REDIS_PASSWORD")

	if v := os.Getenv("AUTHGUARD_REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Config{}, configError("AUTHGUARD_REDIS_DB must be a non-negative integer")
		}
		cfg.Redis.DB = n
	}

	if v := os.Getenv("AUTHGUARD_COOKIE_NAME"); v != "" {
		cfg.Cookie.Name = v
	}
	cfg.Cookie.Domain = os.Getenv("AUTHGUARD_COOKIE_DOMAIN")

	var err error
	if cfg.Cookie.Secure, err = envBool("AUTHGUARD_COOKIE_SECURE", cfg.Cookie.Secure); err != nil {
		return Config{}, err
	}
	if cfg.Cookie.Persistent, err = envBool("AUTHGUARD_COOKIE_PERSISTENT", cfg.Cookie.Persistent); err != nil {
		return Config{}, err
	}
	if v := os.Getenv("AUTHGUARD_COOKIE_SAMESITE"); v != "" {
		switch strings.ToLower(v) {
		case "lax":
			cfg.Cookie.SameSite = http.SameSiteLaxMode
		case "strict":
			cfg.Cookie.SameSite = http.SameSiteStrictMode
		case "none":
			cfg.Cookie.SameSite = http.SameSiteNoneMode
		default:
			return Config{}, configError("AUTHGUARD_COOKIE_SAMESITE must be lax, strict or none")
		}
	}

	if cfg.Session.TTL, err = envDuration("AUTHGUARD_SESSION_TTL", cfg.Session.TTL); err != nil {
		return Config{}, err
	}
	cfg.Cookie.MaxAge = cfg.Session.TTL
	if cfg.Store.OperationTimeout, err = envDuration("AUTHGUARD_STORE_TIMEOUT", cfg.Store.OperationTimeout); err != nil {
		return Config{}, err
	}
	if cfg.ResourceLimits.Window, err = envDuration("AUTHGUARD_RESOURCE_WINDOW", cfg.ResourceLimits.Window); err != nil {
		return Config{}, err
	}
	if cfg.ResourceLocks.Ceiling, err = envDuration("AUTHGUARD_LOCK_CEILING", cfg.ResourceLocks.Ceiling); err != nil {
		return Config{}, err
	}

	if v := os.Getenv("AUTHGUARD_RESOURCE_LIMITS"); v != "" {
		caps, err := parseResourceLimits(v)
		if err != nil {
			return Config{}, err
		}
		cfg.ResourceLimits.Caps = caps
	}
	if v := os.Getenv("AUTHGUARD_RESOURCE_LOCKS"); v != "" {
		policies, err := parseResourceLocks(v)
		if err != nil {
			return Config{}, err
		}
		cfg.ResourceLocks.Policies = policies
	}

	if cfg.Audit.Enabled, err = envBool("AUTHGUARD_AUDIT_ENABLED", cfg.Audit.Enabled); err != nil {
		return Config{}, err
	}
	if cfg.Metrics.Enabled, err = envBool("AUTHGUARD_METRICS_ENABLED", cfg.Metrics.Enabled); err != nil {
		return Config{}, err
	}
	cfg.Metrics.EnableLatencyHistograms = cfg.Metrics.Enabled

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func envDuration(name string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, configError("%s must be a positive duration", name)
	}
	return d, nil
}

func envBool(name string, fallback bool) (bool, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, configError("%s must be a boolean", name)
	}
	return b, nil
}

// parseResourceLimits parses "kind=cap,kind=cap".
func parseResourceLimits(v string) (map[string]int64, error) {
	out := make(map[string]int64)
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kind, raw, ok := strings.Cut(part, "=")
		if !ok {
			return nil, configError("resource limit %q must be kind=cap", part)
		}
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return nil, configError("resource limit %q has an invalid cap", part)
		}
		out[strings.TrimSpace(kind)] = n
	}
	return out, nil
}

// parseResourceLocks parses "kind=max/base[/maxBackoff],...".
func parseResourceLocks(v string) (map[string]LockPolicy, error) {
	out := make(map[string]LockPolicy)
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kind, raw, ok := strings.Cut(part, "=")
		if !ok {
			return nil, configError("resource lock %q must be kind=max/base[/max_backoff]", part)
		}
		fields := strings.Split(strings.TrimSpace(raw), "/")
		if len(fields) < 2 || len(fields) > 3 {
			return nil, configError("resource lock %q must be kind=max/base[/max_backoff]", part)
		}
		var p LockPolicy
		var err error
		if p.MaxAttempts, err = strconv.ParseInt(fields[0], 10, 64); err != nil {
			return nil, configError("resource lock %q has invalid max attempts", part)
		}
		if p.BaseBackoff, err = time.ParseDuration(fields[1]); err != nil {
			return nil, configError("resource lock %q has invalid base backoff", part)
		}
		if len(fields) == 3 {
			if p.MaxBackoff, err = time.ParseDuration(fields[2]); err != nil {
				return nil, configError("resource lock %q has invalid max backoff", part)
			}
		}
		out[strings.TrimSpace(kind)] = p
	}
	return out, nil
}
