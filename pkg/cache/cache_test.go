package cache

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUCache_Basic(t *testing.T) {
	c := New(Options[string]{MaxSize: 3})

	c.Set("a", "value_a")
	c.Set("b", "value_b")
	c.Set("c", "value_c")

	assert.Equal(t, 3, c.Len())

	val, found := c.Get("a")
	require.True(t, found)
	assert.Equal(t, "value_a", val)

	_, found = c.Get("missing")
	assert.False(t, found)
}

func TestLRUCache_LRU_Eviction(t *testing.T) {
	var evicted []string
	c := New(Options[string]{
		MaxSize: 3,
		OnEvict: func(key, _ string) { evicted = append(evicted, key) },
	})

	c.Set("a", "value_a")
	c.Set("b", "value_b")
	c.Set("c", "value_c")

	// Access 'a' to make it most recently used
	c.Get("a")

	// Add new item - should evict 'b' (least recently used)
	c.Set("d", "value_d")

	assert.Equal(t, 3, c.Len())
	assert.Equal(t, []string{"b"}, evicted)

	_, found := c.Get("b")
	assert.False(t, found, "b should have been evicted")
	for _, k := range []string{"a", "c", "d"} {
		_, found = c.Get(k)
		assert.True(t, found, k)
	}
}

func TestLRUCache_Delete(t *testing.T) {
	c := New(Options[int]{MaxSize: 10})

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	c.Delete("b")
	c.Delete("missing")
	assert.Equal(t, 2, c.Len())

	_, found := c.Get("b")
	assert.False(t, found)

	// The list stays consistent after unlinking from the middle.
	c.Delete("a")
	c.Delete("c")
	assert.Equal(t, 0, c.Len())
	c.Set("d", 4)
	val, found := c.Get("d")
	require.True(t, found)
	assert.Equal(t, 4, val)
}

func TestLRUCache_Lookup(t *testing.T) {
	c := New(Options[string]{})
	c.Set("a", "x")

	v, err := c.Lookup("a")
	require.NoError(t, err)
	assert.Equal(t, "x", v)

	_, err = c.Lookup("b")
	assert.True(t, errors.Is(err, ErrKeyNotFound))
}

func TestLRUCache_Clear(t *testing.T) {
	c := New(Options[string]{MaxSize: 10})

	c.Set("a", "value_a")
	c.Set("b", "value_b")

	c.Clear()

	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(0), c.CurrentBytes())
}

func TestLRUCache_SaveLoadKeepsRecency(t *testing.T) {
	c := New(Options[string]{MaxSize: 10})
	c.Set("key1", "value1")
	c.Set("key2", "value2")
	c.Set("key3", "value3")
	c.Get("key1")

	var buf bytes.Buffer
	require.NoError(t, c.Save(&buf))

	c2 := New(Options[string]{MaxSize: 3})
	require.NoError(t, c2.Load(&buf))
	assert.Equal(t, 3, c2.Len())

	val, found := c2.Get("key3")
	require.True(t, found)
	assert.Equal(t, "value3", val)

	// key2 was the least recently used entry before saving.
	c2.Set("key4", "value4")
	_, found = c2.Get("key2")
	assert.False(t, found)
	_, found = c2.Get("key1")
	assert.True(t, found)
}

func TestLRUCache_LoadGarbage(t *testing.T) {
	c := New(Options[string]{})
	assert.Error(t, c.Load(bytes.NewReader([]byte{0xc1})))
}

func TestLRUCache_MaxBytes(t *testing.T) {
	c := New(Options[string]{MaxBytes: 25})

	c.Set("a", "1234567890")
	c.Set("b", "1234567890")
	c.Set("c", "1234567890")

	assert.Equal(t, 2, c.Len())
	_, found := c.Get("a")
	assert.False(t, found)

	// An oversized entry is kept on its own.
	c.Set("big", "123456789012345678901234567890")
	assert.Equal(t, 1, c.Len())
}

func TestLRUCache_Update(t *testing.T) {
	c := New(Options[string]{MaxSize: 10})

	c.Set("a", "value1")
	c.Set("a", "value22")

	val, found := c.Get("a")
	require.True(t, found)
	assert.Equal(t, "value22", val)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, int64(7), c.CurrentBytes())
}

func TestPersistedFileDoesNotExist(t *testing.T) {
	c := New(Options[string]{})
	err := LoadFromFile[string](c, filepath.Join(t.TempDir(), "nope.msgpack"))
	assert.NoError(t, err)
	assert.Equal(t, 0, c.Len())
}

func TestPersistToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.msgpack")
	c := New(Options[[]int]{})
	c.Set("a", []int{1, 2, 3})
	require.NoError(t, PersistToFile[[]int](c, path))

	c2 := New(Options[[]int]{})
	require.NoError(t, LoadFromFile[[]int](c2, path))
	v, found := c2.Get("a")
	require.True(t, found)
	assert.Equal(t, []int{1, 2, 3}, v)
}

func TestStats(t *testing.T) {
	c := New(Options[string]{})
	c.Set("a", "x")
	c.Get("a")
	c.Get("a")
	c.Get("b")

	s := c.Stats()
	assert.Equal(t, 1, s.Length)
	assert.Equal(t, int64(2), s.HitCount)
	assert.Equal(t, int64(1), s.MissCount)
	assert.InDelta(t, 2.0/3.0, s.HitRate(), 1e-9)
	assert.Zero(t, Stats{}.HitRate())
}
