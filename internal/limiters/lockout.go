package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix is the key namespace used when LockConfig.Prefix is empty.
const DefaultPrefix = "resource-lock"

// DefaultCeiling is the hard upper bound on any lockout window.
const DefaultCeiling = 24 * time.Hour

// LockPolicy configures one lock kind.
type LockPolicy struct {
	MaxAttempts int64
	BaseBackoff time.Duration
	MaxBackoff  time.Duration // clamped to the ceiling
}

// LockConfig holds configuration for the resource lock.
type LockConfig struct {
	Prefix   string
	Ceiling  time.Duration
	Policies map[string]LockPolicy
}

var (
	// ErrUnknownLockKind is returned for a kind with no policy.
	ErrUnknownLockKind = errors.New("unknown lock kind")
	// ErrInvalidIdentifier is returned for an empty identifier.
	ErrInvalidIdentifier = errors.New("invalid lock identifier")
	// ErrLockUnavailable indicates the lock backend is unreachable.
	ErrLockUnavailable = errors.New("lock backend unavailable")
)

// LockState is a point-in-time view of one lock counter.
type LockState struct {
	Attempts   int64
	Locked     bool
	RetryAfter time.Duration
}

// failureScript records one failure. Below the maximum it increments and
// makes sure the base TTL is set; at or above it the count is left alone and
// the TTL becomes min(base * 2^attempts, max_backoff). A value that is not a
// non-negative integer is discarded and counting restarts from zero.
//
// KEYS[1] lock key; ARGV: max attempts, base ms, max backoff ms.
// Returns {attempts, pttl}.
var failureScript = redis.NewScript(`
local maxAttempts = tonumber(ARGV[1])
local base = tonumber(ARGV[2])
local ceiling = tonumber(ARGV[3])
local raw = redis.call('GET', KEYS[1])
if raw and not string.match(raw, '^%d+$') then
	redis.call('DEL', KEYS[1])
	raw = false
end
local n = tonumber(raw) or 0
if n < maxAttempts then
	n = redis.call('INCR', KEYS[1])
	if redis.call('PTTL', KEYS[1]) < 0 then
		redis.call('PEXPIRE', KEYS[1], base)
	end
else
	local ttl = base * math.pow(2, n)
	if ttl > ceiling then
		ttl = ceiling
	end
	redis.call('PEXPIRE', KEYS[1], math.floor(ttl))
end
return {n, redis.call('PTTL', KEYS[1])}
`)

// ResourceLock is a brute-force counter with exponential backoff.
type ResourceLock struct {
	redis    redis.UniversalClient
	prefix   string
	ceiling  time.Duration
	policies map[string]LockPolicy
}

// NewResourceLock creates a new resource lock. Every policy's MaxBackoff is
// clamped to the ceiling.
func NewResourceLock(redisClient redis.UniversalClient, cfg LockConfig) *ResourceLock {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	ceiling := cfg.Ceiling
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	policies := make(map[string]LockPolicy, len(cfg.Policies))
	for kind, p := range cfg.Policies {
		if p.MaxBackoff <= 0 || p.MaxBackoff > ceiling {
			p.MaxBackoff = ceiling
		}
		if p.BaseBackoff > p.MaxBackoff {
			p.BaseBackoff = p.MaxBackoff
		}
		policies[kind] = p
	}
	return &ResourceLock{
		redis:    redisClient,
		prefix:   prefix,
		ceiling:  ceiling,
		policies: policies,
	}
}

// Key returns the Redis key for (kind, identifier).
func (l *ResourceLock) Key(kind, identifier string) string {
	return l.prefix + ":" + kind + ":" + identifier
}

// Kinds returns the configured lock kinds in no particular order.
func (l *ResourceLock) Kinds() []string {
	out := make([]string, 0, len(l.policies))
	for k := range l.policies {
		out = append(out, k)
	}
	return out
}

// Policy returns the effective policy of kind.
func (l *ResourceLock) Policy(kind string) (LockPolicy, bool) {
	p, ok := l.policies[kind]
	return p, ok
}

func (l *ResourceLock) lookup(kind, identifier string) (LockPolicy, error) {
	p, ok := l.policies[kind]
	if !ok {
		return LockPolicy{}, ErrUnknownLockKind
	}
	if identifier == "" {
		return LockPolicy{}, ErrInvalidIdentifier
	}
	return p, nil
}

// RecordFailure records a failed attempt and returns the resulting state.
//
//	Performance: 1 Redis EVALSHA.
func (l *ResourceLock) RecordFailure(ctx context.Context, kind, identifier string) (LockState, error) {
	p, err := l.lookup(kind, identifier)
	if err != nil {
		return LockState{}, err
	}

	res, err := failureScript.Run(ctx, l.redis, []string{l.Key(kind, identifier)},
		p.MaxAttempts, p.BaseBackoff.Milliseconds(), p.MaxBackoff.Milliseconds()).Int64Slice()
	if err != nil {
		return LockState{}, fmt.Errorf("%w: %v", ErrLockUnavailable, err)
	}
	if len(res) != 2 {
		return LockState{}, fmt.Errorf("%w: unexpected script reply", ErrLockUnavailable)
	}

	return state(p, res[0], res[1]), nil
}

// Status returns the current state without recording anything.
//
//	Performance: 1 pipelined round trip (GET + PTTL).
func (l *ResourceLock) Status(ctx context.Context, kind, identifier string) (LockState, error) {
	p, err := l.lookup(kind, identifier)
	if err != nil {
		return LockState{}, err
	}

	key := l.Key(kind, identifier)
	pipe := l.redis.Pipeline()
	getCmd := pipe.Get(ctx, key)
	ttlCmd := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return LockState{}, fmt.Errorf("%w: %v", ErrLockUnavailable, err)
	}

	n, err := getCmd.Int64()
	if err != nil {
		// Missing, or a value the failure script would discard.
		return LockState{}, nil
	}
	if n < 0 {
		return LockState{}, nil
	}
	ttl, err := ttlCmd.Result()
	if err != nil {
		return LockState{}, fmt.Errorf("%w: %v", ErrLockUnavailable, err)
	}

	return state(p, n, ttl.Milliseconds()), nil
}

func state(p LockPolicy, attempts, pttlMillis int64) LockState {
	s := LockState{Attempts: attempts}
	if attempts >= p.MaxAttempts {
		s.Locked = true
		if pttlMillis > 0 {
			s.RetryAfter = time.Duration(pttlMillis) * time.Millisecond
		}
	}
	return s
}

// Reset clears the counter for (kind, identifier), e.g. after a success.
func (l *ResourceLock) Reset(ctx context.Context, kind, identifier string) error {
	if _, err := l.lookup(kind, identifier); err != nil {
		return err
	}
	if err := l.redis.Del(ctx, l.Key(kind, identifier)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLockUnavailable, err)
	}
	return nil
}

// Purge deletes the counters of identifier for every configured kind.
func (l *ResourceLock) Purge(ctx context.Context, identifier string) error {
	if identifier == "" {
		return ErrInvalidIdentifier
	}
	if len(l.policies) == 0 {
		return nil
	}
	pipe := l.redis.Pipeline()
	for kind := range l.policies {
		pipe.Del(ctx, l.Key(kind, identifier))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrLockUnavailable, err)
	}
	return nil
}
