package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time { return f.t }

func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestCache(size int, ttl time.Duration) (*LRUCache[string], *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)}
	return NewLRUCache[string](size, ttl).WithClock(clock.now), clock
}

func TestLRUCache_GetSet(t *testing.T) {
	c, _ := newTestCache(10, time.Minute)

	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Set("a", "1")
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "1", v)

	c.Set("a", "2")
	v, _ = c.Get("a")
	assert.Equal(t, "2", v)
	assert.Equal(t, 1, c.Size())

	c.Delete("a")
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Size())
}

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c, _ := newTestCache(2, time.Minute)

	c.Set("a", "1")
	c.Set("b", "2")
	c.Get("a")
	c.Set("c", "3")

	_, ok := c.Get("b")
	assert.False(t, ok, "b was least recently used")
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestLRUCache_Expiry(t *testing.T) {
	c, clock := newTestCache(10, time.Minute)

	c.Set("a", "1")
	c.Set("b", "2")
	clock.advance(30 * time.Second)
	c.Set("c", "3")
	clock.advance(31 * time.Second)

	_, ok := c.Get("a")
	assert.False(t, ok)

	assert.Equal(t, 1, c.CleanExpired())
	assert.Equal(t, 1, c.Size())
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestLRUCache_SetIfAbsent(t *testing.T) {
	c, clock := newTestCache(10, time.Minute)

	assert.True(t, c.SetIfAbsent("evt-1", "x"))
	assert.False(t, c.SetIfAbsent("evt-1", "y"))

	v, _ := c.Get("evt-1")
	assert.Equal(t, "x", v)

	clock.advance(2 * time.Minute)
	assert.True(t, c.SetIfAbsent("evt-1", "z"), "expired entries count as absent")
}

func TestManager_CleanAll(t *testing.T) {
	a, clockA := newTestCache(10, time.Minute)
	b, clockB := newTestCache(10, time.Hour)

	m := NewManager()
	m.Register(a)
	m.Register(b)

	a.Set("1", "x")
	a.Set("2", "x")
	b.Set("1", "x")
	clockA.advance(2 * time.Minute)
	clockB.advance(2 * time.Minute)

	assert.Equal(t, 2, m.CleanAll())
	assert.Equal(t, 0, a.Size())
	assert.Equal(t, 1, b.Size())
}

func TestManager_StartStop(t *testing.T) {
	c, clock := newTestCache(10, time.Millisecond)
	c.Set("a", "1")
	clock.advance(time.Second)

	m := NewManager()
	m.Register(c)
	m.StartCleanup(context.Background(), 5*time.Millisecond)

	assert.Eventually(t, func() bool { return c.Size() == 0 }, time.Second, 5*time.Millisecond)

	m.Stop()
	m.Stop()
}

func TestManager_StopWithoutStart(t *testing.T) {
	m := NewManager()
	m.Stop()
}
