package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryCacheExpiry(t *testing.T) {
	now := time.Now()
	c := NewMemoryCache[string](time.Minute, 0)
	c.now = func() time.Time { return now }

	c.Set("shroud", "profile")
	v, ok := c.Get("shroud")
	assert.True(t, ok)
	assert.Equal(t, "profile", v)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("shroud")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Size())
}

func TestMemoryCacheEvictsOldest(t *testing.T) {
	now := time.Now()
	c := NewMemoryCache[int](time.Minute, 2)
	c.now = func() time.Time { return now }

	c.Set("a", 1)
	now = now.Add(time.Second)
	c.Set("b", 2)
	now = now.Add(time.Second)
	c.Set("c", 3)

	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 2, c.Size())

	// Overwriting an existing key never evicts
	c.Set("b", 20)
	v, _ := c.Get("b")
	assert.Equal(t, 20, v)
	assert.Equal(t, 2, c.Size())
}

func TestMemoryCacheCleanup(t *testing.T) {
	now := time.Now()
	c := NewMemoryCache[int](time.Minute, 0)
	c.now = func() time.Time { return now }
	c.Set("a", 1)
	c.Delete("missing")

	now = now.Add(time.Hour)
	c.cleanupExpired()

	assert.Equal(t, 0, c.Size())
}
