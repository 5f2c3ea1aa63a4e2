//go:build integration
// +build integration

package test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/penwell/authguard"
)

// The suites below exercise the Redis features the engine depends on
// (SET XX KEEPTTL, Lua scripts, SCAN) against every available backend.

func TestRedisCompatSessionLifecycle(t *testing.T) {
	for _, mode := range redisModes(t) {
		t.Run(mode.name, func(t *testing.T) {
			rdb, cleanup := mode.setup(t)
			defer cleanup()
			engine := newIntegrationEngine(t, rdb)
			ctx := context.Background()

			a, err := engine.Login(ctx, 42, authguard.LoginOptions{})
			if err != nil {
				t.Fatalf("Login failed: %v", err)
			}
			b, err := engine.Login(ctx, 42, authguard.LoginOptions{})
			if err != nil {
				t.Fatalf("second Login failed: %v", err)
			}

			id, err := engine.Identity(ctx, a.Cookie)
			if err != nil || id.UserID != 42 {
				t.Fatalf("Identity = %+v, %v", id, err)
			}

			if err := engine.Acknowledge(ctx, id, a.Key); err != nil {
				t.Fatalf("Acknowledge failed: %v", err)
			}
			ttl := rdb.PTTL(ctx, "session:"+a.Key.String()).Val()
			if ttl <= 0 || ttl > time.Hour {
				t.Fatalf("acknowledge must keep the TTL, got %v", ttl)
			}

			entries, err := engine.ListSessions(ctx, 42)
			if err != nil {
				t.Fatalf("ListSessions failed: %v", err)
			}
			if len(entries) != 2 {
				t.Fatalf("expected 2 sessions, got %d", len(entries))
			}

			if err := engine.Logout(ctx, b.Key); err != nil {
				t.Fatalf("Logout failed: %v", err)
			}
			if _, err := engine.Identity(ctx, b.Cookie); !errors.Is(err, authguard.ErrMissingIdentity) {
				t.Fatalf("expected ErrMissingIdentity after logout, got %v", err)
			}

			n, err := engine.LogoutAll(ctx, 42)
			if err != nil || n != 1 {
				t.Fatalf("LogoutAll = %d, %v", n, err)
			}
		})
	}
}

func TestRedisCompatResourceScripts(t *testing.T) {
	for _, mode := range redisModes(t) {
		t.Run(mode.name, func(t *testing.T) {
			rdb, cleanup := mode.setup(t)
			defer cleanup()
			engine := newIntegrationEngine(t, rdb)
			ctx := context.Background()

			for i := 0; i < 3; i++ {
				if _, err := engine.IncrementResource(ctx, "draft", "u1"); err != nil {
					t.Fatalf("IncrementResource failed: %v", err)
				}
			}
			if err := engine.RequireResource(ctx, "draft", "u1"); !errors.Is(err, authguard.ErrResourceLimited) {
				t.Fatalf("expected ErrResourceLimited, got %v", err)
			}

			for i := 0; i < 2; i++ {
				if _, err := engine.RecordFailure(ctx, "login", "10.0.0.1"); err != nil {
					t.Fatalf("RecordFailure failed: %v", err)
				}
			}
			st, err := engine.RecordFailure(ctx, "login", "10.0.0.1")
			if err != nil {
				t.Fatalf("RecordFailure failed: %v", err)
			}
			if !st.Locked || st.Attempts != 2 {
				t.Fatalf("expected locked at 2 attempts, got %+v", st)
			}
			// 2 attempts at max: min(1m·2², 1h).
			if st.RetryAfter != 4*time.Minute {
				t.Fatalf("expected 4m backoff, got %v", st.RetryAfter)
			}

			if err := engine.ClearFailures(ctx, "login", "10.0.0.1"); err != nil {
				t.Fatalf("ClearFailures failed: %v", err)
			}
			locked, _, err := engine.ResourceLocked(ctx, "login", "10.0.0.1")
			if err != nil || locked {
				t.Fatalf("expected unlocked after clear, got %v, %v", locked, err)
			}
		})
	}
}
