package cache

import (
	"fmt"
	"testing"
	"time"
)

// fixedClock lets tests advance time without sleeping.
type fixedClock struct {
	t time.Time
}

func (f *fixedClock) now() time.Time          { return f.t }
func (f *fixedClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestCache(capacity int) (*Cache[string], *fixedClock) {
	c := New[string](capacity)
	clock := &fixedClock{t: time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)}
	c.now = clock.now
	return c, clock
}

func TestGetSet_RoundTrip(t *testing.T) {
	c, _ := newTestCache(10)

	if _, ok := c.Get("missing"); ok {
		t.Error("empty cache should miss")
	}

	c.Set("k", "v", time.Second)
	got, ok := c.Get("k")
	if !ok || got != "v" {
		t.Errorf("Get = (%q, %v), want (%q, true)", got, ok, "v")
	}
}

func TestExpiry_LazyAtRead(t *testing.T) {
	c, clock := newTestCache(10)

	c.Set("k", "v", 1000*time.Millisecond)

	clock.advance(999 * time.Millisecond)
	if _, ok := c.Get("k"); !ok {
		t.Error("entry should be retrievable just before its TTL")
	}

	clock.advance(2 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Error("entry should be a miss after 1000ms elapsed")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry should be removed on read, Len = %d", c.Len())
	}
}

func TestEviction_DropsLeastRecentlyAccessedTenth(t *testing.T) {
	c, clock := newTestCache(20)

	// Fill to capacity; each entry gets a strictly later access time.
	for i := 0; i < 20; i++ {
		c.Set(fmt.Sprintf("k%02d", i), "v", time.Hour)
		clock.advance(time.Second)
	}

	// Touch the two oldest so they become the most recent.
	c.Get("k00")
	clock.advance(time.Second)
	c.Get("k01")
	clock.advance(time.Second)

	// Overflow: capacity/10 = 2 coldest entries (k02, k03) must go.
	c.Set("new", "v", time.Hour)

	if _, ok := c.Get("k02"); ok {
		t.Error("k02 was the least recently accessed, should be evicted")
	}
	if _, ok := c.Get("k03"); ok {
		t.Error("k03 was second least recently accessed, should be evicted")
	}
	for _, k := range []string{"k00", "k01", "new"} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("%s should have survived eviction", k)
		}
	}
	if c.Len() != 19 {
		t.Errorf("Len = %d, want 19 (20 - 2 evicted + 1 new)", c.Len())
	}
}

func TestEviction_OverwriteDoesNotEvict(t *testing.T) {
	c, _ := newTestCache(10)
	for i := 0; i < 10; i++ {
		c.Set(fmt.Sprintf("k%d", i), "v", time.Hour)
	}

	c.Set("k5", "v2", time.Hour)
	if c.Len() != 10 {
		t.Errorf("overwrite at capacity should not evict, Len = %d", c.Len())
	}
	if got, _ := c.Get("k5"); got != "v2" {
		t.Errorf("overwritten value = %q, want %q", got, "v2")
	}
}

func TestClear(t *testing.T) {
	c, _ := newTestCache(10)
	c.Set("a", "1", time.Hour)
	c.Set("b", "2", time.Hour)
	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len after Clear = %d, want 0", c.Len())
	}
	if _, ok := c.Get("a"); ok {
		t.Error("cleared entry should miss")
	}
}
