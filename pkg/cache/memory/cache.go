// Package memory implements the process-wide response cache. Each entry owns
// an eviction timer, and lookups also check expiry, so nothing is returned
// past its TTL even when the process sits idle.
package memory

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pario-ai/chatline/pkg/models"
)

// Key identifies a query. Two sends with equal keys are the same query.
type Key struct {
	SystemPrompt string
	UserMessage  string
}

// Hash returns a SHA-256 hex digest of the key, safe to log or persist.
// Each field is prefixed with its length so field boundaries are unambiguous.
func (k Key) Hash() string {
	h := sha256.New()
	var buf []byte
	for _, field := range []string{k.SystemPrompt, k.UserMessage} {
		buf = binary.AppendUvarint(buf[:0], uint64(len(field)))
		h.Write(buf)
		h.Write([]byte(field))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// stopper is the part of *time.Timer the cache needs.
type stopper interface {
	Stop() bool
}

type entry struct {
	text      string
	expiresAt time.Time
	timer     stopper
	gen       uint64
}

// Cache is an exact-match completion cache held in memory.
type Cache struct {
	mu      sync.Mutex
	entries map[Key]*entry
	ttl     time.Duration
	gen     uint64
	closed  bool

	hits   atomic.Int64
	misses atomic.Int64

	now       func() time.Time
	afterFunc func(time.Duration, func()) stopper
}

// New creates a Cache whose entries live for ttl unless Put is given another TTL.
func New(ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[Key]*entry),
		ttl:     ttl,
		now:     time.Now,
		afterFunc: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
	}
}

// TTL returns the default time-to-live.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Get returns the cached text for key if present and not expired.
func (c *Cache) Get(key Key) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)
		return "", false
	}
	if !c.now().Before(e.expiresAt) {
		// The timer has not run yet; drop the entry now.
		e.timer.Stop()
		delete(c.entries, key)
		c.misses.Add(1)
		return "", false
	}

	c.hits.Add(1)
	return e.text, true
}

// Put stores text under key and schedules its removal after ttl.
// A non-positive ttl uses the cache default. Any earlier entry for the same
// key is replaced and its timer stopped.
func (c *Cache) Put(key Key, text string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	if old, ok := c.entries[key]; ok {
		old.timer.Stop()
	}

	c.gen++
	gen := c.gen
	e := &entry{
		text:      text,
		expiresAt: c.now().Add(ttl),
		gen:       gen,
	}
	// The callback blocks on c.mu, so it cannot observe e before timer is set.
	e.timer = c.afterFunc(ttl, func() { c.evict(key, gen) })
	c.entries[key] = e
}

// evict removes key only if it still holds the entry of generation gen.
// A timer that fires after its entry was replaced is a no-op.
func (c *Cache) evict(key Key, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok && e.gen == gen {
		delete(c.entries, key)
	}
}

// Delete removes key and stops its timer.
func (c *Cache) Delete(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.timer.Stop()
		delete(c.entries, key)
	}
}

// Len returns the number of entries currently held, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear removes all entries and stops their timers.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
}

func (c *Cache) clearLocked() {
	for k, e := range c.entries {
		e.timer.Stop()
		delete(c.entries, k)
	}
}

// Stats returns cache performance metrics.
func (c *Cache) Stats() models.CacheStats {
	return models.CacheStats{
		Entries: int64(c.Len()),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}
}

// Close clears the cache and stops every pending timer. Later Puts are ignored.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
	c.closed = true
	return nil
}
