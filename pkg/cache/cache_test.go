package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestCache(opts Options, clock *time.Time) *Cache {
	c := New(opts)
	c.now = func() time.Time { return *clock }
	return c
}

func TestSetGetExpiry(t *testing.T) {
	now := time.Now()
	c := newTestCache(Options{DefaultExpiration: time.Minute}, &now)

	c.Set("k", "v")
	v, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("k")
	assert.False(t, ok)

	c.deleteExpired()
	assert.Zero(t, c.Count())
}

func TestIncrementWindow(t *testing.T) {
	now := time.Now()
	c := newTestCache(Options{}, &now)

	n, resetAt := c.Increment("quota:1.2.3.4", time.Hour)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, now.Add(time.Hour), resetAt)

	now = now.Add(10 * time.Minute)
	n, resetAt2 := c.Increment("quota:1.2.3.4", time.Hour)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, resetAt.UnixNano(), resetAt2.UnixNano())

	now = now.Add(time.Hour)
	n, _ = c.Increment("quota:1.2.3.4", time.Hour)
	assert.Equal(t, int64(1), n)
}

func TestMaxItemsEvictsOldest(t *testing.T) {
	now := time.Now()
	c := newTestCache(Options{MaxItems: 2}, &now)

	c.Set("a", 1)
	now = now.Add(time.Second)
	c.Set("b", 2)
	now = now.Add(time.Second)
	c.Set("c", 3)

	assert.Equal(t, 2, c.Count())
	_, ok := c.Get("a")
	assert.False(t, ok)
}
