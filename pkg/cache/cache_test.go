package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func frozen[V any](c *Cache[V]) *time.Time {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	return &now
}

func TestGetRespectsTTL(t *testing.T) {
	c := New[string]()
	now := frozen(c)

	c.Set("k", "v", time.Second)
	v, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	*now = now.Add(2 * time.Second)
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.Zero(t, c.Len(), "expired item is removed on read")
}

func TestInvalidateByPrefix(t *testing.T) {
	c := New[int]()
	c.Set("cache:cuA:ctT:/users/?", 1, time.Minute)
	c.Set("cache:cuA:ctT:/roles/?", 2, time.Minute)
	c.Set("cache:cuB:ctT:/users/?", 3, time.Minute)

	assert.Equal(t, 2, c.Invalidate("cache:cuA:ctT:"))
	_, ok := c.Get("cache:cuA:ctT:/roles/?")
	assert.False(t, ok)
	v, ok := c.Get("cache:cuB:ctT:/users/?")
	assert.True(t, ok)
	assert.Equal(t, 3, v)

	c.Delete("cache:cuB:ctT:/users/?")
	assert.Zero(t, c.Len())
}

func TestBoundedSweepsExpiredFirst(t *testing.T) {
	c := NewBounded[string](2)
	now := frozen(c)

	c.Set("old", "a", time.Second)
	c.Set("long", "b", time.Hour)
	*now = now.Add(2 * time.Second)
	c.Set("new", "c", time.Minute)

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("long")
	assert.True(t, ok)
}

func TestBoundedDropsSoonestToExpire(t *testing.T) {
	c := NewBounded[string](2)
	frozen(c)

	c.Set("short", "a", time.Minute)
	c.Set("long", "b", time.Hour)
	c.Set("new", "c", time.Hour)

	_, ok := c.Get("short")
	assert.False(t, ok)
	assert.Equal(t, 2, c.Len())

	c.Set("long", "b2", time.Hour)
	assert.Equal(t, 2, c.Len(), "overwriting a key does not evict")
}
