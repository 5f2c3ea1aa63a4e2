package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func newSessionStoreTest(t *testing.T) (*Store, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewStore(rdb, "", zerolog.Nop())
	return store, mr, func() {
		rdb.Close()
		mr.Close()
	}
}

func testRecord(userID int64) *Record {
	return &Record{
		UserID:    userID,
		CreatedAt: time.Now().Unix(),
		Device:    &Device{Name: "Chrome on Windows", Type: DeviceDesktop},
	}
}

func TestStoreSetGetAndTTL(t *testing.T) {
	store, mr, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()
	k := Key{UserID: 5, Token: "tok-a"}

	if err := store.Set(ctx, k, testRecord(5), time.Hour); err != nil {
		t.Fatalf("set: %v", err)
	}
	if !mr.Exists("session:5:tok-a") {
		t.Fatalf("expected key session:5:tok-a to exist, keys=%v", mr.Keys())
	}

	got, err := store.Get(ctx, k)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.UserID != 5 || got.Device == nil || got.Device.Name != "Chrome on Windows" {
		t.Fatalf("unexpected record: %+v", got)
	}

	ttl, err := store.TTL(ctx, k)
	if err != nil {
		t.Fatalf("ttl: %v", err)
	}
	if ttl <= 0 || ttl > time.Hour {
		t.Fatalf("expected ttl in (0, 1h], got %v", ttl)
	}

	mr.FastForward(time.Hour + time.Second)
	got, err = store.Get(ctx, k)
	if err != nil {
		t.Fatalf("get after expiry: %v", err)
	}
	if got != nil {
		t.Fatalf("expected expired session to be absent, got %+v", got)
	}
}

func TestStoreSetRejectsNonPositiveTTL(t *testing.T) {
	store, _, done := newSessionStoreTest(t)
	defer done()

	if err := store.Set(context.Background(), Key{UserID: 1, Token: "t"}, testRecord(1), 0); err == nil {
		t.Fatal("expected error for zero ttl")
	}
}

func TestStoreGetUndecodableIsMiss(t *testing.T) {
	store, mr, done := newSessionStoreTest(t)
	defer done()

	if err := mr.Set("session:9:broken", "not a record"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	got, err := store.Get(context.Background(), Key{UserID: 9, Token: "broken"})
	if err != nil {
		t.Fatalf("expected no error for corrupt payload, got %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil record, got %+v", got)
	}
}

func TestStoreSetIfExistsKeepsTTLAndNeverRevives(t *testing.T) {
	store, mr, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()
	k := Key{UserID: 3, Token: "keep"}

	if err := store.Set(ctx, k, testRecord(3), time.Hour); err != nil {
		t.Fatalf("set: %v", err)
	}
	mr.FastForward(30 * time.Minute)

	rec := testRecord(3)
	rec.Ack = true
	ok, err := store.SetIfExistsKeepTTL(ctx, k, rec)
	if err != nil || !ok {
		t.Fatalf("conditional write: ok=%v err=%v", ok, err)
	}
	if ttl := mr.TTL("session:3:keep"); ttl > 30*time.Minute || ttl <= 0 {
		t.Fatalf("expected remaining ttl to be preserved, got %v", ttl)
	}
	got, _ := store.Get(ctx, k)
	if got == nil || !got.Ack {
		t.Fatalf("expected acknowledged record, got %+v", got)
	}

	mr.FastForward(31 * time.Minute)
	ok, err = store.SetIfExistsKeepTTL(ctx, k, rec)
	if err != nil {
		t.Fatalf("conditional write after expiry: %v", err)
	}
	if ok {
		t.Fatal("expected conditional write to report miss")
	}
	if mr.Exists("session:3:keep") {
		t.Fatal("expired session must not be revived")
	}
}

func TestStoreDeleteIsIdempotent(t *testing.T) {
	store, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()
	k := Key{UserID: 2, Token: "gone"}

	if err := store.Set(ctx, k, testRecord(2), time.Hour); err != nil {
		t.Fatalf("set: %v", err)
	}
	existed, err := store.Delete(ctx, k)
	if err != nil || !existed {
		t.Fatalf("first delete: existed=%v err=%v", existed, err)
	}
	for i := 0; i < 3; i++ {
		existed, err = store.Delete(ctx, k)
		if err != nil {
			t.Fatalf("repeat delete %d: %v", i, err)
		}
		if existed {
			t.Fatalf("repeat delete %d reported an existing key", i)
		}
	}
}

func TestStoreListAndDeleteUserScopedToOneUser(t *testing.T) {
	store, mr, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	// More than one SCAN page to make sure the cursor is followed.
	const n = 1200
	for i := 0; i < n; i++ {
		k := Key{UserID: 1, Token: fmt.Sprintf("t%d", i)}
		if err := store.Set(ctx, k, testRecord(1), time.Hour); err != nil {
			t.Fatalf("set %d: %v", i, err)
		}
	}
	// User 11 shares the "1" prefix digit and must not be touched.
	if err := store.Set(ctx, Key{UserID: 11, Token: "other"}, testRecord(11), time.Hour); err != nil {
		t.Fatalf("set other: %v", err)
	}
	if err := mr.Set("session:1:corrupt", "garbage"); err != nil {
		t.Fatalf("seed corrupt: %v", err)
	}

	entries, err := store.List(ctx, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != n {
		t.Fatalf("expected %d entries, got %d", n, len(entries))
	}
	for _, e := range entries {
		if e.Key.UserID != 1 {
			t.Fatalf("foreign entry in listing: %+v", e.Key)
		}
	}

	deleted, err := store.DeleteUser(ctx, 1)
	if err != nil {
		t.Fatalf("delete user: %v", err)
	}
	if deleted != n+1 {
		t.Fatalf("expected %d deleted keys, got %d", n+1, deleted)
	}
	if !mr.Exists("session:11:other") {
		t.Fatal("session of user 11 must survive")
	}
	entries, err = store.List(ctx, 1)
	if err != nil {
		t.Fatalf("list after delete: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty listing, got %d", len(entries))
	}
}

func TestStoreReportsRedisUnavailable(t *testing.T) {
	store, mr, done := newSessionStoreTest(t)
	defer done()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if _, err := store.Get(ctx, Key{UserID: 1, Token: "x"}); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable from Get, got %v", err)
	}
	if _, err := store.List(ctx, 1); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable from List, got %v", err)
	}
	if _, err := store.Ping(ctx); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable from Ping, got %v", err)
	}
}
