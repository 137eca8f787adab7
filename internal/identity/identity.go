// Package identity resolves the ProcessIdentity owning a socket and
// caches it per PID, grounded on the teacher's cmd/probe/main.go
// IdentityCache (RWMutex-guarded map keyed by PID, SHA-256 over the
// executable, lazy eviction).
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"sync"
	"time"

	"github.com/netsentinel/agent/internal/types"
)

type cacheEntry struct {
	identity types.ProcessIdentity
	lastSeen time.Time
}

// Cache resolves and caches ProcessIdentity by PID. Resolution itself is
// platform-specific (see identity_linux.go / identity_windows.go /
// identity_fallback.go); Cache only owns the memoization and eviction.
type Cache struct {
	mu      sync.RWMutex
	entries map[int32]cacheEntry
	resolve func(pid int32) (types.ProcessIdentity, error)
	ttl     time.Duration
}

// NewCache builds a Cache backed by the platform resolver resolveProcess
// (see the build-tagged files in this package).
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Cache{
		entries: make(map[int32]cacheEntry),
		resolve: resolveProcess,
		ttl:     ttl,
	}
}

// Resolve returns the cached ProcessIdentity for pid, resolving and
// caching it on first use.
func (c *Cache) Resolve(pid int32) (types.ProcessIdentity, error) {
	c.mu.Lock()
	if e, ok := c.entries[pid]; ok {
		e.lastSeen = time.Now()
		c.entries[pid] = e
		c.mu.Unlock()
		return e.identity, nil
	}
	c.mu.Unlock()

	id, err := c.resolve(pid)
	if err != nil {
		return types.ProcessIdentity{}, err
	}

	c.mu.Lock()
	c.entries[pid] = cacheEntry{identity: id, lastSeen: time.Now()}
	c.mu.Unlock()

	return id, nil
}

// Evict removes a PID's cached identity immediately, used when a
// collector variant observes the process exiting.
func (c *Cache) Evict(pid int32) {
	c.mu.Lock()
	delete(c.entries, pid)
	c.mu.Unlock()
}

// Sweep drops entries whose last-seen time exceeds the cache TTL. Call
// this periodically (e.g. once per collector tick) to bound growth for
// long-lived daemons.
func (c *Cache) Sweep(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for pid, e := range c.entries {
		if now.Sub(e.lastSeen) > c.ttl {
			delete(c.entries, pid)
		}
	}
}

// sha256_16 hashes the file at path and returns the first 16 hex chars
// of its SHA-256 digest, per spec.md §3.
func sha256_16(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil))[:16], nil
}
