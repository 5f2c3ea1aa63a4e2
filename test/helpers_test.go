//go:build integration
// +build integration

package test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/penwell/authguard"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var integrationKey = []byte("integration-signing-key-0123456789")

// redisMode describes which Redis backend a suite is running against.
type redisMode struct {
	name  string
	setup func(t *testing.T) (redis.UniversalClient, func())
}

// redisModes returns the Redis backends to test. miniredis is always
// available; a real server is added when REDIS_ADDR is set.
func redisModes(t *testing.T) []redisMode {
	t.Helper()
	modes := []redisMode{
		{
			name: "miniredis",
			setup: func(t *testing.T) (redis.UniversalClient, func()) {
				t.Helper()
				mr, err := miniredis.Run()
				if err != nil {
					t.Fatalf("miniredis: %v", err)
				}
				rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
				return rdb, func() { _ = rdb.Close(); mr.Close() }
			},
		},
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		modes = append(modes, redisMode{
			name: "standalone:" + addr,
			setup: func(t *testing.T) (redis.UniversalClient, func()) {
				t.Helper()
				rdb := redis.NewClient(&redis.Options{Addr: addr})
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := rdb.Ping(ctx).Err(); err != nil {
					t.Skipf("cannot connect to Redis at %s: %v", addr, err)
				}
				rdb.FlushDB(context.Background())
				return rdb, func() { rdb.FlushDB(context.Background()); _ = rdb.Close() }
			},
		})
	}
	return modes
}

func integrationConfig() authguard.Config {
	cfg := authguard.DefaultConfig()
	cfg.Cookie.SigningKey = append([]byte(nil), integrationKey...)
	cfg.Session.TTL = time.Hour
	cfg.Cookie.MaxAge = 0
	cfg.ResourceLimits.Caps = map[string]int64{"draft": 3}
	cfg.ResourceLocks.Policies = map[string]authguard.LockPolicy{
		"login": {MaxAttempts: 2, BaseBackoff: time.Minute, MaxBackoff: time.Hour},
	}
	return cfg
}

func newIntegrationEngine(t *testing.T, rdb redis.UniversalClient) *authguard.Engine {
	t.Helper()
	engine, err := authguard.New().
		WithConfig(integrationConfig()).
		WithRedis(rdb).
		WithLogger(zerolog.Nop()).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}
