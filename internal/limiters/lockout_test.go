package limiters

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newLockTest(t *testing.T, policies map[string]LockPolicy, ceiling time.Duration) (*ResourceLock, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	l := NewResourceLock(rdb, LockConfig{Ceiling: ceiling, Policies: policies})
	return l, mr, func() {
		rdb.Close()
		mr.Close()
	}
}

func TestRecordFailureStopsCountingAtMax(t *testing.T) {
	const maxAttempts = 5
	l, mr, done := newLockTest(t, map[string]LockPolicy{
		"login": {MaxAttempts: maxAttempts, BaseBackoff: time.Minute, MaxBackoff: 12 * time.Hour},
	}, 0)
	defer done()
	ctx := context.Background()
	key := "resource-lock:login:10.0.0.1"

	for i := int64(1); i <= maxAttempts; i++ {
		st, err := l.RecordFailure(ctx, "login", "10.0.0.1")
		if err != nil {
			t.Fatalf("failure %d: %v", i, err)
		}
		if st.Attempts != i {
			t.Fatalf("failure %d: expected attempts %d, got %d", i, i, st.Attempts)
		}
	}
	before := mr.TTL(key)
	if before <= 0 || before > time.Minute {
		t.Fatalf("expected base ttl after max failures, got %v", before)
	}

	st, err := l.RecordFailure(ctx, "login", "10.0.0.1")
	if err != nil {
		t.Fatalf("failure past max: %v", err)
	}
	if st.Attempts != maxAttempts {
		t.Fatalf("counter must stay at %d, got %d", maxAttempts, st.Attempts)
	}
	if got, _ := mr.Get(key); got != "5" {
		t.Fatalf("stored counter must stay at 5, got %q", got)
	}
	after := mr.TTL(key)
	if after <= before {
		t.Fatalf("ttl must strictly grow: before=%v after=%v", before, after)
	}
	if after != 32*time.Minute {
		t.Fatalf("expected base*2^5 = 32m, got %v", after)
	}
	if !st.Locked || st.RetryAfter != after {
		t.Fatalf("expected locked state with retry-after %v, got %+v", after, st)
	}
}

func TestRecordFailureNeverExceedsCeiling(t *testing.T) {
	ceiling := 2 * time.Hour
	l, mr, done := newLockTest(t, map[string]LockPolicy{
		// MaxBackoff above the ceiling gets clamped.
		"password": {MaxAttempts: 10, BaseBackoff: 10 * time.Minute, MaxBackoff: 48 * time.Hour},
	}, ceiling)
	defer done()
	ctx := context.Background()

	for i := 0; i < 40; i++ {
		st, err := l.RecordFailure(ctx, "password", "u1")
		if err != nil {
			t.Fatalf("failure %d: %v", i, err)
		}
		if ttl := mr.TTL("resource-lock:password:u1"); ttl > ceiling {
			t.Fatalf("failure %d: ttl %v exceeds ceiling %v", i, ttl, ceiling)
		}
		if st.RetryAfter > ceiling {
			t.Fatalf("failure %d: retry-after %v exceeds ceiling", i, st.RetryAfter)
		}
		mr.FastForward(time.Second)
	}
	if p, _ := l.Policy("password"); p.MaxBackoff != ceiling {
		t.Fatalf("expected max backoff clamped to %v, got %v", ceiling, p.MaxBackoff)
	}
}

func TestLockExpiresAndStatus(t *testing.T) {
	l, mr, done := newLockTest(t, map[string]LockPolicy{
		"login": {MaxAttempts: 2, BaseBackoff: time.Minute, MaxBackoff: time.Hour},
	}, 0)
	defer done()
	ctx := context.Background()

	st, err := l.Status(ctx, "login", "u")
	if err != nil || st.Locked || st.Attempts != 0 {
		t.Fatalf("expected empty state, got %+v err=%v", st, err)
	}

	for i := 0; i < 3; i++ {
		if _, err := l.RecordFailure(ctx, "login", "u"); err != nil {
			t.Fatalf("failure %d: %v", i, err)
		}
	}
	st, err = l.Status(ctx, "login", "u")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !st.Locked || st.RetryAfter <= 0 || st.RetryAfter > 4*time.Minute {
		t.Fatalf("expected locked for at most 4m, got %+v", st)
	}

	mr.FastForward(5 * time.Minute)
	st, err = l.Status(ctx, "login", "u")
	if err != nil || st.Locked {
		t.Fatalf("expected lock to expire, got %+v err=%v", st, err)
	}
}

func TestRecordFailureConcurrentCountsEveryAttempt(t *testing.T) {
	l, mr, done := newLockTest(t, map[string]LockPolicy{
		"login": {MaxAttempts: 100, BaseBackoff: time.Minute, MaxBackoff: time.Hour},
	}, 0)
	defer done()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = l.RecordFailure(ctx, "login", "racer")
		}()
	}
	wg.Wait()

	if got, _ := mr.Get("resource-lock:login:racer"); got != "30" {
		t.Fatalf("expected 30 recorded attempts, got %q", got)
	}
}

func TestLockResetPurgeAndErrors(t *testing.T) {
	l, mr, done := newLockTest(t, map[string]LockPolicy{
		"login":    {MaxAttempts: 3, BaseBackoff: time.Minute},
		"password": {MaxAttempts: 3, BaseBackoff: time.Minute},
	}, 0)
	defer done()
	ctx := context.Background()

	for _, kind := range []string{"login", "password"} {
		if _, err := l.RecordFailure(ctx, kind, "9"); err != nil {
			t.Fatalf("record %s: %v", kind, err)
		}
	}
	if err := l.Reset(ctx, "login", "9"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if mr.Exists("resource-lock:login:9") {
		t.Fatal("reset must delete the counter")
	}
	if err := l.Purge(ctx, "9"); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if mr.Exists("resource-lock:password:9") {
		t.Fatal("purge must delete every kind")
	}

	if _, err := l.RecordFailure(ctx, "unknown", "9"); !errors.Is(err, ErrUnknownLockKind) {
		t.Fatalf("expected ErrUnknownLockKind, got %v", err)
	}
	if _, err := l.RecordFailure(ctx, "login", ""); !errors.Is(err, ErrInvalidIdentifier) {
		t.Fatalf("expected ErrInvalidIdentifier, got %v", err)
	}

	mr.Close()
	if _, err := l.RecordFailure(ctx, "login", "9"); !errors.Is(err, ErrLockUnavailable) {
		t.Fatalf("expected ErrLockUnavailable, got %v", err)
	}
}

func TestCorruptCounterIsDiscarded(t *testing.T) {
	l, mr, done := newLockTest(t, map[string]LockPolicy{
		"login": {MaxAttempts: 3, BaseBackoff: time.Minute},
	}, 0)
	defer done()
	ctx := context.Background()
	key := "resource-lock:login:10.0.0.9"

	for _, junk := range []string{"abc", "1.5", "-3"} {
		if err := mr.Set(key, junk); err != nil {
			t.Fatalf("seed %q: %v", junk, err)
		}

		st, err := l.Status(ctx, "login", "10.0.0.9")
		if err != nil {
			t.Fatalf("status on %q: %v", junk, err)
		}
		if st.Locked || st.Attempts != 0 {
			t.Fatalf("status on %q: expected unlocked with 0 attempts, got %+v", junk, st)
		}

		st, err = l.RecordFailure(ctx, "login", "10.0.0.9")
		if err != nil {
			t.Fatalf("record on %q: %v", junk, err)
		}
		if st.Attempts != 1 {
			t.Fatalf("record on %q: expected counting to restart at 1, got %d", junk, st.Attempts)
		}
		if ttl := mr.TTL(key); ttl <= 0 || ttl > time.Minute {
			t.Fatalf("record on %q: expected base ttl, got %v", junk, ttl)
		}
	}
}
