package cache

import (
	"testing"
	"time"
)

func TestCache_SetGet(t *testing.T) {
	c := New(time.Minute)
	defer c.Stop()

	if _, ok := c.Get("missing"); ok {
		t.Fatal("unexpected hit on empty cache")
	}

	c.Set("k", "v")
	got, ok := c.Get("k")
	if !ok || got != "v" {
		t.Fatalf("expected v, got %v (hit=%v)", got, ok)
	}
	if c.Len() != 1 {
		t.Fatalf("expected 1 item, got %d", c.Len())
	}
}

func TestCache_TTLExpiry(t *testing.T) {
	c := New(time.Minute)
	defer c.Stop()

	c.SetWithTTL("short", "v", 30*time.Millisecond)
	if _, ok := c.Get("short"); !ok {
		t.Fatal("entry should be live before TTL")
	}

	time.Sleep(60 * time.Millisecond)
	if _, ok := c.Get("short"); ok {
		t.Fatal("expired entry must read as absent")
	}
	if c.Len() != 0 {
		t.Fatalf("expired entries must not count, got %d", c.Len())
	}
}

func TestCache_ZeroTTLDoesNotPanic(t *testing.T) {
	c := New(0)
	defer c.Stop()

	c.Set("k", "v")
	if _, ok := c.Get("k"); ok {
		t.Fatal("zero-TTL entry must read as expired")
	}
}

func TestCache_Delete(t *testing.T) {
	c := New(time.Minute)
	defer c.Stop()

	c.Set("k", "v")
	c.Delete("k")
	if _, ok := c.Get("k"); ok {
		t.Fatal("deleted entry must be gone")
	}
}
