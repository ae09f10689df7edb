// Package cache provides the two-tier TTL cache that sits in front of the
// collection adapters. A small fast tier absorbs hot targets; the larger slow
// tier holds the long tail. Both tiers share one TTL and evict expired
// entries first, then least-recently-used once at capacity. The cache is
// never used for LLM output.
package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Config sizes the two tiers and sets the shared TTL.
type Config struct {
	FastSize int
	SlowSize int
	TTL      time.Duration
}

// DefaultConfig returns development defaults.
func DefaultConfig() Config {
	return Config{
		FastSize: 64,
		SlowSize: 512,
		TTL:      10 * time.Minute,
	}
}

// TieredCache is safe for concurrent use; the underlying LRUs carry their own
// locking around eviction and promotion bookkeeping.
type TieredCache struct {
	fast *expirable.LRU[string, any]
	slow *expirable.LRU[string, any]
}

// New creates a TieredCache. Zero config fields fall back to defaults.
func New(cfg Config) *TieredCache {
	def := DefaultConfig()
	if cfg.FastSize <= 0 {
		cfg.FastSize = def.FastSize
	}
	if cfg.SlowSize <= 0 {
		cfg.SlowSize = def.SlowSize
	}
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	return &TieredCache{
		fast: expirable.NewLRU[string, any](cfg.FastSize, nil, cfg.TTL),
		slow: expirable.NewLRU[string, any](cfg.SlowSize, nil, cfg.TTL),
	}
}

// Get looks up key in the fast tier first, then the slow tier. A slow-tier
// hit is promoted into the fast tier.
func (c *TieredCache) Get(key string) (any, bool) {
	if v, ok := c.fast.Get(key); ok {
		return v, true
	}
	if v, ok := c.slow.Get(key); ok {
		c.fast.Add(key, v)
		return v, true
	}
	return nil, false
}

// Set stores the value in both tiers. The slow tier keeps the entry alive
// after a fast-tier capacity eviction.
func (c *TieredCache) Set(key string, value any) {
	c.fast.Add(key, value)
	c.slow.Add(key, value)
}

// Remove drops key from both tiers.
func (c *TieredCache) Remove(key string) {
	c.fast.Remove(key)
	c.slow.Remove(key)
}

// Len reports the slow-tier entry count (the authoritative population).
func (c *TieredCache) Len() int {
	return c.slow.Len()
}

// Purge empties both tiers.
func (c *TieredCache) Purge() {
	c.fast.Purge()
	c.slow.Purge()
}
