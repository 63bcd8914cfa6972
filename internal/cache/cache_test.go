package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/drallgood/plex-audiobook-cache/internal/logger"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestMemoryCache(t *testing.T) {
	clk := &clock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := newMemoryCache[int, string](logger.Nop(), clk.now)

	c.Set(1, "one", time.Minute)
	c.Set(2, "two", 0)

	v, ok := c.Get(1)
	assert.True(t, ok)
	assert.Equal(t, "one", v)

	clk.t = clk.t.Add(time.Minute)
	_, ok = c.Get(1)
	assert.False(t, ok, "entry expires once its ttl has passed")

	v, ok = c.Get(2)
	assert.True(t, ok, "zero ttl never expires")
	assert.Equal(t, "two", v)

	c.Set(3, "three", time.Minute)
	assert.Equal(t, 2, c.Len(), "expired entries are evicted on Set")

	c.Delete(2)
	_, ok = c.Get(2)
	assert.False(t, ok)

	c.Clear()
	assert.Zero(t, c.Len())
}

func TestWithTTL(t *testing.T) {
	clk := &clock{t: time.Now()}
	inner := newMemoryCache[string, int](logger.Nop(), clk.now)
	c := WithTTL[string, int](inner, time.Second)

	c.Set("a", 1, 0)
	_, ok := c.Get("a")
	assert.True(t, ok)

	clk.t = clk.t.Add(2 * time.Second)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())
}

func TestNilLoggerIsSafe(t *testing.T) {
	c := NewMemoryCache[int, int](nil)
	c.Set(1, 1, 0)
	v, ok := c.Get(1)
	assert.True(t, ok)
	assert.Equal(t, 1, v)
}
