package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestGetSet_RoundTrip(t *testing.T) {
	t.Parallel()
	c := New(Config{FastSize: 4, SlowSize: 16, TTL: time.Minute})

	c.Set("crawl:https://example.com", "document")
	v, ok := c.Get("crawl:https://example.com")
	if !ok {
		t.Fatal("expected hit")
	}
	if v.(string) != "document" {
		t.Errorf("unexpected value: %v", v)
	}
}

func TestGet_MissReturnsFalse(t *testing.T) {
	t.Parallel()
	c := New(Config{FastSize: 4, SlowSize: 16, TTL: time.Minute})

	if _, ok := c.Get("absent"); ok {
		t.Error("expected miss")
	}
}

func TestTTL_ExpiresEntries(t *testing.T) {
	t.Parallel()
	c := New(Config{FastSize: 4, SlowSize: 16, TTL: 30 * time.Millisecond})

	c.Set("k", "v")
	if _, ok := c.Get("k"); !ok {
		t.Fatal("expected hit before TTL")
	}

	time.Sleep(60 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Error("expected miss after TTL expiry")
	}
}

func TestSlowTierHit_PromotesToFastTier(t *testing.T) {
	t.Parallel()
	c := New(Config{FastSize: 2, SlowSize: 16, TTL: time.Minute})

	// Fill beyond the fast tier so "k0" gets evicted from it but survives
	// in the slow tier.
	for i := 0; i < 4; i++ {
		c.Set(fmt.Sprintf("k%d", i), i)
	}

	if _, ok := c.fast.Get("k0"); ok {
		t.Fatal("expected k0 evicted from fast tier")
	}

	v, ok := c.Get("k0")
	if !ok {
		t.Fatal("expected slow-tier hit for k0")
	}
	if v.(int) != 0 {
		t.Errorf("unexpected value: %v", v)
	}

	if _, ok := c.fast.Get("k0"); !ok {
		t.Error("expected k0 promoted back into fast tier")
	}
}

func TestCapacity_EvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()
	c := New(Config{FastSize: 2, SlowSize: 3, TTL: time.Minute})

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	// Touch "a" so "b" is the least recently used in the slow tier.
	c.Get("a")
	c.Set("d", 4)

	if _, ok := c.Get("b"); ok {
		t.Error("expected b evicted as least recently used")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("expected a retained after recent use")
	}
}

func TestRemoveAndPurge(t *testing.T) {
	t.Parallel()
	c := New(Config{FastSize: 4, SlowSize: 16, TTL: time.Minute})

	c.Set("a", 1)
	c.Remove("a")
	if _, ok := c.Get("a"); ok {
		t.Error("expected miss after Remove")
	}

	c.Set("b", 2)
	c.Purge()
	if c.Len() != 0 {
		t.Errorf("expected empty cache after Purge, got %d", c.Len())
	}
}

func TestConcurrentAccess(t *testing.T) {
	t.Parallel()
	c := New(Config{FastSize: 8, SlowSize: 64, TTL: time.Minute})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k%d", j%10)
				c.Set(key, n)
				c.Get(key)
			}
		}(i)
	}
	wg.Wait()
}
