package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRU[int](2)

	c.Set("a", 1, 0)
	c.Set("b", 2, 0)
	_, _ = c.Get("a") // a 变为最近使用
	c.Set("c", 3, 0)

	_, ok := c.Get("b")
	assert.False(t, ok)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, c.Len())
}

func TestLRU_TTL(t *testing.T) {
	c := NewLRU[string](10)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Set("k", "v", time.Minute)
	c.Set("forever", "v", 0)

	now = now.Add(61 * time.Second)

	_, ok := c.Get("k")
	assert.False(t, ok)
	_, ok = c.Get("forever")
	assert.True(t, ok)
	assert.Equal(t, 1, c.Len())
}

func TestLRU_UpdateAndDelete(t *testing.T) {
	c := NewLRU[int](0)

	c.Set("k", 1, 0)
	c.Set("k", 2, 0)
	v, _ := c.Get("k")
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, c.Len())

	c.Delete("k")
	c.Delete("missing")
	_, ok := c.Get("k")
	assert.False(t, ok)
}
