package authguard

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var testSigningKey = []byte("0123456789abcdef0123456789abcdef")

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, rdb
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Cookie.SigningKey = append([]byte(nil), testSigningKey...)
	cfg.Session.TTL = time.Hour
	cfg.Cookie.MaxAge = 0
	cfg.ResourceLimits.Caps = map[string]int64{"draft": 3}
	cfg.ResourceLocks.Policies = map[string]LockPolicy{
		"login": {MaxAttempts: 3, BaseBackoff: time.Minute, MaxBackoff: time.Hour},
	}
	cfg.Metrics.Enabled = true
	return cfg
}

func newTestEngine(t *testing.T, cfg Config) (*Engine, *miniredis.Miniredis, func()) {
	t.Helper()
	return newTestEngineWith(t, New().WithConfig(cfg))
}

func newTestEngineWith(t *testing.T, b *Builder) (*Engine, *miniredis.Miniredis, func()) {
	t.Helper()

	mr, rdb := newTestRedis(t)
	engine, err := b.WithRedis(rdb).Build()
	if err != nil {
		rdb.Close()
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}
	return engine, mr, func() {
		engine.Close()
		rdb.Close()
		mr.Close()
	}
}
