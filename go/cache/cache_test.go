package cache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemLRUCache_AddGet(t *testing.T) {
	c := NewMemLRUCache(10)
	c.Add("a", 1)
	c.Add("b", []string{"x"})

	v, ok := c.Get("a")
	require.True(t, ok)
	require.Equal(t, 1, v)

	v, ok = c.Get("b")
	require.True(t, ok)
	require.Equal(t, []string{"x"}, v)

	_, ok = c.Get("c")
	require.False(t, ok)
	require.Equal(t, 2, c.Len())

	// Adding an existing key replaces its value.
	c.Add("a", 2)
	v, ok = c.Get("a")
	require.True(t, ok)
	require.Equal(t, 2, v)
	require.Equal(t, 2, c.Len())
}

func TestMemLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewMemLRUCache(2)
	c.Add("a", 1)
	c.Add("b", 2)
	// Touch "a" so that "b" is the eviction candidate.
	_, ok := c.Get("a")
	require.True(t, ok)
	c.Add("c", 3)

	_, ok = c.Get("b")
	require.False(t, ok)
	_, ok = c.Get("a")
	require.True(t, ok)
	_, ok = c.Get("c")
	require.True(t, ok)
	require.Equal(t, 2, c.Len())
}

func TestMemLRUCache_ConcurrentAccess(t *testing.T) {
	c := NewMemLRUCache(50)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("%d-%d", i, j%20)
				c.Add(key, j)
				c.Get(key)
				c.Len()
			}
		}(i)
	}
	wg.Wait()
	require.Equal(t, 50, c.Len())
}
