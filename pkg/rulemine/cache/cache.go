// Package cache provides the fingerprint-keyed result cache. It is a
// pure optimization: last-writer-wins with a TTL, never a correctness
// dependency.
package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache is the injected dependency the orchestrator uses to
// short-circuit repeated runs over an unchanged snapshot.
type Cache interface {
	Get(fingerprint string) ([]byte, bool)
	Put(fingerprint string, result []byte)
}

// LRU is a TTL-bounded in-memory cache.
type LRU struct {
	inner *expirable.LRU[string, []byte]
}

// NewLRU creates a cache holding up to size entries for ttl each.
func NewLRU(size int, ttl time.Duration) *LRU {
	if size <= 0 {
		size = 128
	}
	return &LRU{inner: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

// Get returns the cached payload for a fingerprint.
func (c *LRU) Get(fingerprint string) ([]byte, bool) {
	return c.inner.Get(fingerprint)
}

// Put stores a payload; an existing entry is overwritten.
func (c *LRU) Put(fingerprint string, result []byte) {
	c.inner.Add(fingerprint, result)
}

// Noop implements Cache but never stores anything.
type Noop struct{}

// Get always misses.
func (Noop) Get(string) ([]byte, bool) { return nil, false }

// Put discards the payload.
func (Noop) Put(string, []byte) {}
