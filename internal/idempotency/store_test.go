package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestMemoryStoreClaimOnce(t *testing.T) {
	now := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore(time.Hour)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	if ok, _ := store.Claim(ctx, "delivery-1"); !ok {
		t.Fatal("expected first claim to succeed")
	}
	if ok, _ := store.Claim(ctx, "delivery-1"); ok {
		t.Fatal("expected repeat claim to fail")
	}
	if ok, _ := store.Claim(ctx, "delivery-2"); !ok {
		t.Fatal("expected other delivery to be claimable")
	}

	now = now.Add(2 * time.Hour)
	if ok, _ := store.Claim(ctx, "delivery-1"); !ok {
		t.Fatal("expected claim to be available after ttl")
	}
	if removed := store.Sweep(); removed != 1 {
		t.Fatalf("expected 1 expired claim swept, got %d", removed)
	}
}

func TestMemoryStoreRelease(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := context.Background()

	_, _ = store.Claim(ctx, "delivery-1")
	if err := store.Release(ctx, "delivery-1"); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if ok, _ := store.Claim(ctx, "delivery-1"); !ok {
		t.Fatal("expected claim after release to succeed")
	}
}

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://"+s.Addr(), time.Minute)
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	return store, s
}

func TestRedisStoreClaimAndExpiry(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	ctx := context.Background()

	if ok, err := store.Claim(ctx, "delivery-1"); err != nil || !ok {
		t.Fatalf("first Claim = %v, %v", ok, err)
	}
	if !s.Exists("devblog:delivery:delivery-1") {
		t.Fatal("expected prefixed key to exist")
	}
	if ok, err := store.Claim(ctx, "delivery-1"); err != nil || ok {
		t.Fatalf("repeat Claim = %v, %v", ok, err)
	}

	s.FastForward(2 * time.Minute)
	if ok, err := store.Claim(ctx, "delivery-1"); err != nil || !ok {
		t.Fatalf("Claim after expiry = %v, %v", ok, err)
	}
}

func TestRedisStoreRelease(t *testing.T) {
	store, _ := setupTestRedis(t)
	defer store.Close()
	ctx := context.Background()

	_, _ = store.Claim(ctx, "delivery-1")
	if err := store.Release(ctx, "delivery-1"); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if ok, _ := store.Claim(ctx, "delivery-1"); !ok {
		t.Fatal("expected claim after release to succeed")
	}
}

func TestNewRedisStoreRejectsBadURL(t *testing.T) {
	if _, err := NewRedisStore("not-a-url", time.Minute); err == nil {
		t.Fatal("expected error for invalid url")
	}
}

func TestRedisStorePing(t *testing.T) {
	store, _ := setupTestRedis(t)
	defer store.Close()
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}
