package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestLRUExpiry(t *testing.T) {
	clk := &clock{t: time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)}
	var evicted []string
	c := NewLRUCache[string](10, time.Minute,
		WithClock[string](clk.now),
		WithEvictHook[string](func(key, _ string) { evicted = append(evicted, key) }))

	c.Set("a", "1")
	c.SetWithTTL("b", "2", time.Hour)

	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "1", got)

	clk.advance(2 * time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("b")
	assert.True(t, ok)
	assert.Equal(t, []string{"a"}, evicted)

	clk.advance(2 * time.Hour)
	assert.Equal(t, 1, c.CleanExpired())
	assert.Zero(t, c.Size())
}

func TestLRUCapacity(t *testing.T) {
	c := NewLRUCache[int](2, time.Hour)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a")
	c.Set("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok, "least recently used entry is evicted")
	_, ok = c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Size())
}

func TestLRUTakeAndDeleteFunc(t *testing.T) {
	c := NewLRUCache[int](10, time.Hour)
	c.Set("maria:1", 1)
	c.Set("maria:2", 2)
	c.Set("francis:1", 3)

	v, ok := c.Take("maria:1")
	require.True(t, ok)
	assert.Equal(t, 1, v)
	_, ok = c.Take("maria:1")
	assert.False(t, ok)

	n := c.DeleteFunc(func(_ string, v int) bool { return v == 3 })
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, c.Size())
	assert.True(t, c.Delete("maria:2"))
	assert.False(t, c.Delete("maria:2"))
}

func TestManagerSweep(t *testing.T) {
	clk := &clock{t: time.Now()}
	c := NewLRUCache[int](10, time.Second, WithClock[int](clk.now))
	c.Set("x", 1)

	m := NewManager(nil)
	m.Register("test", c)
	assert.Zero(t, m.Sweep(context.Background()))
	clk.advance(time.Minute)
	assert.Equal(t, 1, m.Sweep(context.Background()))

	m.Start(time.Hour)
	m.Stop()
	m.Stop()
	m.Wait()
}
