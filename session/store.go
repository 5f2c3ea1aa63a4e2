package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/penwell/authguard/internal"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrRedisUnavailable wraps every connectivity or protocol failure returned
// by the store. Misses and undecodable payloads are not errors.
var ErrRedisUnavailable = errors.New("redis unavailable")

// DefaultPrefix is the key namespace used when [NewStore] is given "".
const DefaultPrefix = "session"

// Store is a Redis-backed session store. Records live under
// "{prefix}:{user_id}:{token}" with a per-key TTL.
//
// Store holds no in-process state besides its configuration and is safe for
// concurrent use.
type Store struct {
	redis   redis.UniversalClient
	prefix  string
	log     zerolog.Logger
	timeout time.Duration
}

// NewStore creates a session [Store] backed by the given Redis client.
func NewStore(client redis.UniversalClient, prefix string, logger zerolog.Logger) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{
		redis:  client,
		prefix: prefix,
		log:    logger.With().Str("component", "session_store").Logger(),
	}
}

// WithRoundTripTimeout bounds every Redis call made by the multi-call
// operations (DeletePrefix, DeleteUser, List) by d, so their total duration
// grows with the number of keys. Zero leaves only the caller's context.
func (s *Store) WithRoundTripTimeout(d time.Duration) *Store {
	s.timeout = d
	return s
}

func (s *Store) key(k Key) string {
	return s.prefix + ":" + k.String()
}

// UserPattern returns the SCAN pattern covering every session of userID.
func (s *Store) UserPattern(userID int64) string {
	return s.prefix + ":" + strconv.FormatInt(userID, 10) + ":*"
}

func (s *Store) parseStoreKey(raw string) (Key, bool) {
	rest, ok := strings.CutPrefix(raw, s.prefix+":")
	if !ok {
		return Key{}, false
	}
	k, err := ParseKey(rest)
	if err != nil {
		return Key{}, false
	}
	return k, true
}

// Get loads the record for k. It returns (nil, nil) when the key is absent or
// the payload cannot be decoded; the latter is logged since it usually means
// a partially written record.
//
//	Performance: 1 Redis GET.
func (s *Store) Get(ctx context.Context, k Key) (*Record, error) {
	data, err := s.redis.Get(ctx, s.key(k)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	rec, err := Decode(data)
	if err != nil {
		s.log.Warn().Err(err).Int64("user_id", k.UserID).Msg("undecodable session record")
		return nil, nil
	}
	return rec, nil
}

// Set writes rec under k with the given TTL, replacing any previous value.
//
//	Performance: 1 Redis SET.
func (s *Store) Set(ctx context.Context, k Key, rec *Record, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("session ttl must be > 0")
	}
	data, err := Encode(rec)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(k), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// SetIfExistsKeepTTL overwrites the record only when the key still exists and
// leaves its remaining TTL untouched. It reports whether the write happened.
//
// The existence check and the write are one command (SET XX KEEPTTL), so a
// session that expires concurrently is never revived.
//
//	Performance: 1 Redis SET.
func (s *Store) SetIfExistsKeepTTL(ctx context.Context, k Key, rec *Record) (bool, error) {
	data, err := Encode(rec)
	if err != nil {
		return false, err
	}
	ok, err := s.redis.SetXX(ctx, s.key(k), data, redis.KeepTTL).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ok, nil
}

// Delete removes a single session and reports whether it existed.
// Deleting a missing session is not an error.
func (s *Store) Delete(ctx context.Context, k Key) (bool, error) {
	n, err := s.redis.Del(ctx, s.key(k)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n > 0, nil
}

// TTL returns the remaining lifetime of k, or 0 when it does not exist.
func (s *Store) TTL(ctx context.Context, k Key) (time.Duration, error) {
	d, err := s.redis.PTTL(ctx, s.key(k)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if d < 0 {
		return 0, nil
	}
	return d, nil
}

// DeletePrefix deletes every key matching pattern, paging through SCAN
// until the cursor is exhausted. It returns the number of deleted keys.
//
// This is not atomic against concurrent writers: a session created while the
// scan is in progress may survive. The next purge or its TTL removes it.
func (s *Store) DeletePrefix(ctx context.Context, pattern string) (int, error) {
	n, err := internal.DeleteMatching(ctx, s.redis, pattern, s.timeout)
	if err != nil {
		return int(n), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(n), nil
}

// DeleteUser removes every session owned by userID.
func (s *Store) DeleteUser(ctx context.Context, userID int64) (int, error) {
	return s.DeletePrefix(ctx, s.UserPattern(userID))
}

// List returns every decodable session of userID. Entries whose payload is
// corrupt, or that expired between the scan and the read, are skipped.
//
//	Performance: SCAN pages + 1 pipelined round trip of GETs.
func (s *Store) List(ctx context.Context, userID int64) ([]Entry, error) {
	rawKeys, err := internal.ScanKeys(ctx, s.redis, s.UserPattern(userID), s.timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	keys := make([]Key, 0, len(rawKeys))
	storeKeys := make([]string, 0, len(rawKeys))
	for _, raw := range rawKeys {
		k, ok := s.parseStoreKey(raw)
		if !ok || k.UserID != userID {
			continue
		}
		keys = append(keys, k)
		storeKeys = append(storeKeys, raw)
	}
	if len(keys) == 0 {
		return []Entry{}, nil
	}

	getCtx, cancel := internal.RoundTrip(ctx, s.timeout)
	defer cancel()
	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(storeKeys))
	for i, sk := range storeKeys {
		cmds[i] = pipe.Get(getCtx, sk)
	}
	if _, err := pipe.Exec(getCtx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	entries := make([]Entry, 0, len(keys))
	for i, cmd := range cmds {
		data, cmdErr := cmd.Bytes()
		if cmdErr != nil {
			if errors.Is(cmdErr, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, cmdErr)
		}
		rec, decErr := Decode(data)
		if decErr != nil {
			s.log.Warn().Err(decErr).Int64("user_id", userID).Msg("skipping undecodable session record")
			continue
		}
		entries = append(entries, Entry{Key: keys[i], Record: *rec})
	}

	return entries, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
