package cache

import (
	"testing"
	"time"
)

func TestTTLCachePutGet(t *testing.T) {
	c, err := New[string, int](10, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c.Put("a", 1)
	v, ok := c.Get("a")
	if !ok || v != 1 {
		t.Fatalf("expected (1, true), got (%d, %v)", v, ok)
	}
}

func TestTTLCacheExpiry(t *testing.T) {
	c, err := New[string, int](10, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c.Put("a", 1)
	time.Sleep(20 * time.Millisecond)

	if _, ok := c.Get("a"); ok {
		t.Error("expected entry to have expired")
	}
}

func TestTTLCacheEviction(t *testing.T) {
	c, err := New[string, int](2, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3) // evicts "a" (least recently used)

	if _, ok := c.Get("a"); ok {
		t.Error("expected a to be evicted")
	}
	if v, ok := c.Get("b"); !ok || v != 2 {
		t.Error("expected b to survive")
	}
}

func TestTTLCacheRemoveMatching(t *testing.T) {
	c, err := New[string, int](10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c.Put("src/a.ts", 1)
	c.Put("src/b.ts", 2)
	c.Put("test/a.ts", 3)

	removed := c.RemoveMatching(func(k string) bool {
		return len(k) >= 4 && k[:4] == "src/"
	})
	if removed != 2 {
		t.Errorf("expected 2 removed, got %d", removed)
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 remaining, got %d", c.Len())
	}
}
