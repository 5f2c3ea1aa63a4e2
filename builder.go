package authguard

import (
	"errors"
	"fmt"
	"time"

	"github.com/penwell/authguard/cookie"
	"github.com/penwell/authguard/internal/limiters"
	"github.com/penwell/authguard/internal/rate"
	"github.com/penwell/authguard/session"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Builder assembles an [Engine]. A Builder is single use: after a successful
// Build it refuses to build again.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	logger zerolog.Logger

	auditSink AuditSink
	devices   DeviceClassifier
	locations LocationResolver

	built bool
}

// New returns a Builder seeded with [DefaultConfig], a no-op logger and the
// built-in User-Agent classifier.
func New() *Builder {
	return &Builder{
		config:  DefaultConfig(),
		logger:  zerolog.Nop(),
		devices: UserAgentClassifier{},
	}
}

// WithConfig replaces the whole configuration with a deep copy of cfg.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithSigningKey sets the cookie signing secret.
func (b *Builder) WithSigningKey(key []byte) *Builder {
	b.config.Cookie.SigningKey = cloneBytes(key)
	return b
}

// WithRedis sets the shared Redis client (single node, cluster or ring).
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithLogger sets the structured logger used for best-effort failures.
func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets the sink that receives audit events when auditing is enabled.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithDeviceClassifier replaces the User-Agent classifier. nil disables
// device detection.
func (b *Builder) WithDeviceClassifier(c DeviceClassifier) *Builder {
	b.devices = c
	return b
}

// WithLocationResolver installs an IP-to-location resolver. There is none by
// default.
func (b *Builder) WithLocationResolver(r LocationResolver) *Builder {
	b.locations = r
	return b
}

// WithMetricsEnabled overrides Config.Metrics.Enabled.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms overrides Config.Metrics.EnableLatencyHistograms.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires every component. Errors wrap
// [ErrConfig].
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, configError("redis client required")
	}

	cfg := cloneConfig(b.config)
	if cfg.Cookie.MaxAge == 0 {
		cfg.Cookie.MaxAge = cfg.Session.TTL
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	codec, err := cookie.NewCodec(cfg.Cookie.SigningKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	logger := b.logger.With().Str("lib", "authguard").Logger()

	engine := &Engine{
		config: cfg,
		codec:  codec,
		cookies: cookie.Options{
			Name:       cfg.Cookie.Name,
			Path:       cfg.Cookie.Path,
			Domain:     cfg.Cookie.Domain,
			MaxAge:     cfg.Cookie.MaxAge,
			Persistent: cfg.Cookie.Persistent,
			Secure:     cfg.Cookie.Secure,
			HTTPOnly:   cfg.Cookie.HTTPOnly,
			SameSite:   cfg.Cookie.SameSite,
		},
		redis:    b.redis,
		sessions: session.NewStore(b.redis, cfg.Session.RedisPrefix, logger).WithRoundTripTimeout(cfg.Store.OperationTimeout),
		limiter: rate.New(b.redis, rate.Config{
			Prefix: cfg.ResourceLimits.RedisPrefix,
			Window: cfg.ResourceLimits.Window,
			Caps:   cfg.ResourceLimits.Caps,
		}),
		locks:     limiters.NewResourceLock(b.redis, lockConfig(cfg.ResourceLocks)),
		devices:   b.devices,
		locations: b.locations,
		log:       logger,
		metrics:   NewMetrics(cfg.Metrics),
		audit:     newAuditDispatcher(cfg.Audit, b.auditSink, logger),
		now:       time.Now,
	}

	b.built = true

	return engine, nil
}

func lockConfig(c ResourceLockConfig) limiters.LockConfig {
	policies := make(map[string]limiters.LockPolicy, len(c.Policies))
	for kind, p := range c.Policies {
		policies[kind] = limiters.LockPolicy{
			MaxAttempts: p.MaxAttempts,
			BaseBackoff: p.BaseBackoff,
			MaxBackoff:  p.MaxBackoff,
		}
	}
	return limiters.LockConfig{
		Prefix:   c.RedisPrefix,
		Ceiling:  c.Ceiling,
		Policies: policies,
	}
}
