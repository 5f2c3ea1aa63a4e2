//go:build integration
// +build integration

package test

import (
	"context"
	"net"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/penwell/authguard"
	"github.com/redis/go-redis/v9"
)

// cmdCounter is a go-redis Hook that counts Redis round trips. A pipeline
// is one round trip regardless of how many commands it carries.
type cmdCounter struct {
	commands  atomic.Int64
	pipelines atomic.Int64
}

func (h *cmdCounter) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h *cmdCounter) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		h.commands.Add(1)
		return next(ctx, cmd)
	}
}

func (h *cmdCounter) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		h.pipelines.Add(1)
		return next(ctx, cmds)
	}
}

func (h *cmdCounter) Reset() {
	h.commands.Store(0)
	h.pipelines.Store(0)
}

func (h *cmdCounter) RoundTrips() int64 { return h.commands.Load() + h.pipelines.Load() }

// newCountedEngine builds an engine on miniredis with a cmdCounter hook.
// Reset the counter before each measured operation.
func newCountedEngine(t *testing.T) (*authguard.Engine, *cmdCounter) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	counter := &cmdCounter{}
	rdb.AddHook(counter)

	// The first command on a connection may carry handshake noise.
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("warmup ping: %v", err)
	}

	engine := newIntegrationEngine(t, rdb)
	counter.Reset()
	return engine, counter
}

func expectBudget(t *testing.T, counter *cmdCounter, op string, max int64) {
	t.Helper()
	if got := counter.RoundTrips(); got > max {
		t.Fatalf("%s used %d Redis round trips, budget is %d", op, got, max)
	}
	counter.Reset()
}

func TestSessionRedisBudget(t *testing.T) {
	engine, counter := newCountedEngine(t)
	ctx := context.Background()

	res, err := engine.Login(ctx, 7, authguard.LoginOptions{})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	expectBudget(t, counter, "Login", 1)

	renewed, err := engine.Login(ctx, 7, authguard.LoginOptions{PreviousCookie: res.Cookie})
	if err != nil {
		t.Fatalf("renewing Login failed: %v", err)
	}
	expectBudget(t, counter, "renewing Login", 2)

	id, err := engine.Identity(ctx, renewed.Cookie)
	if err != nil {
		t.Fatalf("Identity failed: %v", err)
	}
	expectBudget(t, counter, "Identity", 1)

	if err := engine.Acknowledge(ctx, id, renewed.Key); err != nil {
		t.Fatalf("Acknowledge failed: %v", err)
	}
	expectBudget(t, counter, "Acknowledge", 2)

	if err := engine.Logout(ctx, renewed.Key); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	expectBudget(t, counter, "Logout", 1)
}

func TestResourceRedisBudget(t *testing.T) {
	engine, counter := newCountedEngine(t)
	ctx := context.Background()

	// Load the Lua scripts so the measured calls hit EVALSHA.
	if _, err := engine.IncrementResource(ctx, "draft", "warm"); err != nil {
		t.Fatalf("warm IncrementResource failed: %v", err)
	}
	if _, err := engine.RecordFailure(ctx, "login", "warm"); err != nil {
		t.Fatalf("warm RecordFailure failed: %v", err)
	}
	counter.Reset()

	if _, err := engine.CheckResource(ctx, "draft", "u1"); err != nil {
		t.Fatalf("CheckResource failed: %v", err)
	}
	expectBudget(t, counter, "CheckResource", 1)

	if _, err := engine.IncrementResource(ctx, "draft", "u1"); err != nil {
		t.Fatalf("IncrementResource failed: %v", err)
	}
	expectBudget(t, counter, "IncrementResource", 1)

	if _, err := engine.RecordFailure(ctx, "login", "10.0.0.1"); err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	expectBudget(t, counter, "RecordFailure", 1)

	if _, _, err := engine.ResourceLocked(ctx, "login", "10.0.0.1"); err != nil {
		t.Fatalf("ResourceLocked failed: %v", err)
	}
	expectBudget(t, counter, "ResourceLocked", 1)
}
