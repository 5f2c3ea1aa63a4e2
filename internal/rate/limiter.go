package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix is the key namespace used when Config.Prefix is empty.
const DefaultPrefix = "resource-limit"

// DefaultWindow is the counting window used when Config.Window is zero.
const DefaultWindow = 24 * time.Hour

// Config holds limiter tuning parameters.
type Config struct {
	Prefix string
	Window time.Duration
	// Caps maps a resource kind to the number of actions allowed per window.
	Caps   map[string]int64
}

// incrementScript bumps the counter and gives it the window TTL when the
// window starts. The PTTL branch repairs a counter that lost its TTL.
var incrementScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 or redis.call('PTTL', KEYS[1]) < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// Limiter enforces per-kind daily caps using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	prefix string
	window time.Duration
	caps   map[string]int64
}

// New creates a rate [Limiter] backed by the given Redis client.
// The caps map is copied.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	window := cfg.Window
	if window <= 0 {
		window = DefaultWindow
	}
	caps := make(map[string]int64, len(cfg.Caps))
	for k, v := range cfg.Caps {
		caps[k] = v
	}
	return &Limiter{
		redis:  redisClient,
		prefix: prefix,
		window: window,
		caps:   caps,
	}
}

// Window returns the configured counting window.
func (l *Limiter) Window() time.Duration {
	return l.window
}

// Kinds returns the configured resource kinds in no particular order.
func (l *Limiter) Kinds() []string {
	out := make([]string, 0, len(l.caps))
	for k := range l.caps {
		out = append(out, k)
	}
	return out
}

// Key returns the Redis key for (kind, identifier).
func (l *Limiter) Key(kind, identifier string) string {
	return l.prefix + ":" + kind + ":" + identifier
}

func (l *Limiter) lookup(kind, identifier string) (int64, error) {
	limit, ok := l.caps[kind]
	if !ok {
		return 0, ErrUnknownKind
	}
	if identifier == "" {
		return 0, ErrInvalidIdentifier
	}
	return limit, nil
}

// Count returns the number of actions recorded in the current window.
//
//	Performance: 1 Redis GET.
func (l *Limiter) Count(ctx context.Context, kind, identifier string) (int64, error) {
	if _, err := l.lookup(kind, identifier); err != nil {
		return 0, err
	}
	return l.count(ctx, l.Key(kind, identifier))
}

func (l *Limiter) count(ctx context.Context, key string) (int64, error) {
	n, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if n < 0 {
		return 0, nil
	}
	return n, nil
}

// Check reports whether identifier is still under the cap for kind. It does
// not modify the counter. On any error it returns false.
//
//	Performance: 1 Redis GET.
func (l *Limiter) Check(ctx context.Context, kind, identifier string) (bool, error) {
	limit, err := l.lookup(kind, identifier)
	if err != nil {
		return false, err
	}
	n, err := l.count(ctx, l.Key(kind, identifier))
	if err != nil {
		return false, err
	}
	return n < limit, nil
}

// Remaining returns how many more actions are allowed in the current window.
func (l *Limiter) Remaining(ctx context.Context, kind, identifier string) (int64, error) {
	limit, err := l.lookup(kind, identifier)
	if err != nil {
		return 0, err
	}
	n, err := l.count(ctx, l.Key(kind, identifier))
	if err != nil {
		return 0, err
	}
	if n >= limit {
		return 0, nil
	}
	return limit - n, nil
}

// Increment records one action and returns the new count. The counter is
// created with the full window TTL when absent.
//
//	Performance: 1 Redis EVALSHA.
func (l *Limiter) Increment(ctx context.Context, kind, identifier string) (int64, error) {
	if _, err := l.lookup(kind, identifier); err != nil {
		return 0, err
	}
	n, err := incrementScript.Run(ctx, l.redis, []string{l.Key(kind, identifier)}, l.window.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n, nil
}

// Purge deletes the counters of identifier for every configured kind. Keys
// are deleted one by one in a pipeline so cluster deployments never see a
// cross-slot DEL.
func (l *Limiter) Purge(ctx context.Context, identifier string) error {
	if identifier == "" {
		return ErrInvalidIdentifier
	}
	if len(l.caps) == 0 {
		return nil
	}
	pipe := l.redis.Pipeline()
	for kind := range l.caps {
		pipe.Del(ctx, l.Key(kind, identifier))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
