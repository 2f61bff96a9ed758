package storage

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestMemoryKVSetGetDelete(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	kv := NewMemoryKV(10, clock)

	if err := kv.Set(ctx, "a", "1", clock.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := kv.Get(ctx, "a")
	if err != nil || !ok || v != "1" {
		t.Fatalf("Get = %q,%v,%v", v, ok, err)
	}

	if err := kv.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := kv.Delete(ctx, "a"); err != nil {
		t.Fatalf("second Delete should be a no-op: %v", err)
	}
	if _, ok, _ := kv.Get(ctx, "a"); ok {
		t.Fatal("key still present after delete")
	}
}

func TestMemoryKVAbsoluteExpiry(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	kv := NewMemoryKV(10, clock)

	_ = kv.Set(ctx, "short", "x", clock.Now().Add(time.Minute))
	_ = kv.Set(ctx, "long", "y", clock.Now().Add(time.Hour))

	clock.Advance(2 * time.Minute)

	if _, ok, _ := kv.Get(ctx, "short"); ok {
		t.Fatal("expired key should be invisible")
	}
	keys, _ := kv.Keys(ctx, "")
	if len(keys) != 1 || keys[0] != "long" {
		t.Fatalf("Keys = %v, want [long]", keys)
	}
}

func TestMemoryKVEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV(2, nil)
	exp := time.Now().Add(time.Hour)

	_ = kv.Set(ctx, "a", "1", exp)
	_ = kv.Set(ctx, "b", "2", exp)
	_, _, _ = kv.Get(ctx, "a") // a is now most recent
	_ = kv.Set(ctx, "c", "3", exp)

	if _, ok, _ := kv.Get(ctx, "b"); ok {
		t.Fatal("b should have been evicted")
	}
	if _, ok, _ := kv.Get(ctx, "a"); !ok {
		t.Fatal("a should survive eviction")
	}
	if kv.Size() != 2 {
		t.Fatalf("Size = %d, want 2", kv.Size())
	}
}

func TestMemoryKVKeysByPrefix(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV(10, nil)
	exp := time.Now().Add(time.Hour)
	for _, k := range []string{"cache_b", "auth_token", "cache_a"} {
		_ = kv.Set(ctx, k, "v", exp)
	}

	keys, err := kv.Keys(ctx, "cache_")
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 2 || keys[0] != "cache_a" || keys[1] != "cache_b" {
		t.Fatalf("Keys = %v", keys)
	}
}

func TestMemoryKVCleanExpired(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	kv := NewMemoryKV(10, clock)

	_ = kv.Set(ctx, "a", "1", clock.Now().Add(time.Second))
	_ = kv.Set(ctx, "b", "2", clock.Now().Add(time.Second))
	_ = kv.Set(ctx, "c", "3", clock.Now().Add(time.Hour))
	clock.Advance(time.Minute)

	if n := kv.CleanExpired(); n != 2 {
		t.Fatalf("CleanExpired = %d, want 2", n)
	}
	if kv.Size() != 1 {
		t.Fatalf("Size = %d, want 1", kv.Size())
	}
}

func TestMemoryKVRejectsEmptyKey(t *testing.T) {
	kv := NewMemoryKV(1, nil)
	if err := kv.Set(context.Background(), "", "v", time.Now()); err != ErrEmptyKey {
		t.Fatalf("Set err = %v, want ErrEmptyKey", err)
	}
}
