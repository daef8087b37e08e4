package memory

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock drives Cache time and timers by hand.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

func (fc *fakeClock) Now() time.Time {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.now
}

func (fc *fakeClock) AfterFunc(d time.Duration, f func()) stopper {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	t := &fakeTimer{clock: fc, at: fc.now.Add(d), f: f}
	fc.timers = append(fc.timers, t)
	return t
}

// Advance moves time forward and runs due timers outside the clock lock.
func (fc *fakeClock) Advance(d time.Duration) {
	fc.mu.Lock()
	fc.now = fc.now.Add(d)
	var due []*fakeTimer
	for _, t := range fc.timers {
		if !t.stopped && !t.fired && !t.at.After(fc.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	fc.mu.Unlock()

	for _, t := range due {
		t.f()
	}
}

func (fc *fakeClock) pending() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	n := 0
	for _, t := range fc.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

func newTestCache(t *testing.T, ttl time.Duration) (*Cache, *fakeClock) {
	t.Helper()
	fc := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	c := New(ttl)
	c.now = fc.Now
	c.afterFunc = fc.AfterFunc
	t.Cleanup(func() { _ = c.Close() })
	return c, fc
}

func TestKeyHash(t *testing.T) {
	k1 := Key{UserMessage: "hello"}
	k2 := Key{UserMessage: "hello"}
	k3 := Key{SystemPrompt: "be brief", UserMessage: "hello"}
	k4 := Key{SystemPrompt: "hel", UserMessage: "lo"}
	k5 := Key{SystemPrompt: "he", UserMessage: "llo"}
	k6 := Key{SystemPrompt: "a\x00", UserMessage: "b"}
	k7 := Key{SystemPrompt: "a", UserMessage: "\x00b"}

	assert.Equal(t, k1.Hash(), k2.Hash())
	assert.NotEqual(t, k1.Hash(), k3.Hash())
	assert.NotEqual(t, k4.Hash(), k5.Hash(), "field boundary must be part of the hash")
	assert.NotEqual(t, k6.Hash(), k7.Hash(), "NUL bytes inside a field must not shift the boundary")
	assert.Len(t, k1.Hash(), 64)
}

func TestPutAndGet(t *testing.T) {
	c, _ := newTestCache(t, 5*time.Minute)
	key := Key{UserMessage: "Hello"}

	c.Put(key, "Hi there!", 0)

	text, ok := c.Get(key)
	require.True(t, ok, "expected cache hit")
	assert.Equal(t, "Hi there!", text)

	_, ok = c.Get(Key{SystemPrompt: "other", UserMessage: "Hello"})
	assert.False(t, ok, "different system prompt is a different key")
}

func TestLazyExpiry(t *testing.T) {
	c, fc := newTestCache(t, time.Minute)
	key := Key{UserMessage: "q"}
	c.Put(key, "a", 0)

	// Move the clock without running timers.
	fc.mu.Lock()
	fc.now = fc.now.Add(time.Minute)
	fc.mu.Unlock()

	_, ok := c.Get(key)
	assert.False(t, ok, "lookup at expiry must miss")
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 0, fc.pending(), "lazy removal must stop the timer")
}

func TestTimerEvictsIdleEntry(t *testing.T) {
	c, fc := newTestCache(t, 5*time.Minute)
	c.Put(Key{UserMessage: "q"}, "a", 0)
	require.Equal(t, 1, c.Len())

	fc.Advance(5*time.Minute - time.Second)
	assert.Equal(t, 1, c.Len())

	fc.Advance(time.Second)
	assert.Equal(t, 0, c.Len(), "timer must remove the entry without a lookup")
}

func TestOverwriteIgnoresStaleTimer(t *testing.T) {
	c, fc := newTestCache(t, 5*time.Minute)
	key := Key{UserMessage: "q"}

	c.Put(key, "old", 0)
	fc.Advance(2 * time.Minute)
	c.Put(key, "new", 0)

	// The first entry's original expiry passes.
	fc.Advance(3 * time.Minute)
	text, ok := c.Get(key)
	require.True(t, ok, "newer value must survive the old expiry time")
	assert.Equal(t, "new", text)
	assert.Equal(t, 1, fc.pending(), "only the newer timer may remain")

	fc.Advance(2 * time.Minute)
	_, ok = c.Get(key)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestStaleTimerAlreadyFiredIsNoop(t *testing.T) {
	c, fc := newTestCache(t, time.Minute)
	key := Key{UserMessage: "q"}

	c.Put(key, "old", 0)
	c.mu.Lock()
	oldGen := c.entries[key].gen
	c.mu.Unlock()

	c.Put(key, "new", 0)

	// Simulate a timer callback for the replaced entry racing with Put.
	c.evict(key, oldGen)

	text, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, "new", text)

	fc.Advance(time.Minute)
	assert.Equal(t, 0, c.Len())
}

func TestPerEntryTTL(t *testing.T) {
	c, fc := newTestCache(t, time.Hour)
	c.Put(Key{UserMessage: "short"}, "a", time.Second)
	c.Put(Key{UserMessage: "long"}, "b", 0)

	fc.Advance(time.Second)

	_, ok := c.Get(Key{UserMessage: "short"})
	assert.False(t, ok)
	_, ok = c.Get(Key{UserMessage: "long"})
	assert.True(t, ok)
}

func TestDeleteStopsTimer(t *testing.T) {
	c, fc := newTestCache(t, time.Minute)
	key := Key{UserMessage: "q"}
	c.Put(key, "a", 0)

	c.Delete(key)
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 0, fc.pending())
}

func TestStats(t *testing.T) {
	c, _ := newTestCache(t, time.Hour)

	c.Put(Key{UserMessage: "h1"}, "data", 0)
	c.Get(Key{UserMessage: "h1"}) // hit
	c.Get(Key{UserMessage: "h2"}) // miss

	stats := c.Stats()
	if stats.Entries != 1 {
		t.Errorf("expected 1 entry, got %d", stats.Entries)
	}
	if stats.Hits != 1 {
		t.Errorf("expected 1 hit, got %d", stats.Hits)
	}
	if stats.Misses != 1 {
		t.Errorf("expected 1 miss, got %d", stats.Misses)
	}
}

func TestClear(t *testing.T) {
	c, fc := newTestCache(t, time.Hour)

	c.Put(Key{UserMessage: "h1"}, "data", 0)
	c.Put(Key{UserMessage: "h2"}, "data", 0)

	c.Clear()

	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 0, fc.pending())

	c.Put(Key{UserMessage: "h3"}, "data", 0)
	assert.Equal(t, 1, c.Len(), "cache stays usable after Clear")
}

func TestCloseStopsTimersAndIgnoresPuts(t *testing.T) {
	c, fc := newTestCache(t, time.Hour)
	c.Put(Key{UserMessage: "h1"}, "data", 0)

	require.NoError(t, c.Close())
	assert.Equal(t, 0, fc.pending())

	c.Put(Key{UserMessage: "h2"}, "data", 0)
	assert.Equal(t, 0, c.Len())
}

func TestRealTimerEviction(t *testing.T) {
	c := New(20 * time.Millisecond)
	t.Cleanup(func() { _ = c.Close() })

	c.Put(Key{UserMessage: "q"}, "a", 0)
	require.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestConcurrentPutsLastWins(t *testing.T) {
	c := New(time.Hour)
	t.Cleanup(func() { _ = c.Close() })
	key := Key{UserMessage: "q"}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Put(key, "v", 0)
			c.Get(key)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, c.Len())
	text, ok := c.Get(key)
	assert.True(t, ok)
	assert.Equal(t, "v", text)
}
