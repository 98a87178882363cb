// Package cache provides LRU caching with disk persistence.
package cache

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrKeyNotFound is returned when a key is not found in the cache.
var ErrKeyNotFound = errors.New("key not found")

// Cache defines the interface for a cache with basic operations.
type Cache[V any] interface {
	// Get retrieves a value by key.
	Get(key string) (V, bool)

	// Set stores a key-value pair in the cache.
	// If the cache is full, LRU eviction will occur.
	Set(key string, value V)

	Delete(key string)
	Clear()
	Len() int

	// Save persists the cache to the given writer.
	Save(w io.Writer) error

	// Load restores the cache from the given reader.
	Load(r io.Reader) error
}

// Entry represents a cache entry with metadata.
type Entry[V any] struct {
	Key        string    `msgpack:"key"`
	Value      V         `msgpack:"value"`
	AccessedAt time.Time `msgpack:"accessed_at"`
	CreatedAt  time.Time `msgpack:"created_at"`
	Size       int       `msgpack:"size"` // estimated size in bytes
}

// LRUCache is an in-memory LRU cache with optional disk persistence.
type LRUCache[V any] struct {
	mu           sync.RWMutex
	items        map[string]*listItem[V]
	lru          *list[V] // most recent at front
	maxSize      int
	maxBytes     int64
	currentBytes int64
	onEvict      func(key string, value V)

	hits   int64
	misses int64
}

type listItem[V any] struct {
	Entry[V]
	prev *listItem[V]
	next *listItem[V]
}

type list[V any] struct {
	head *listItem[V] // most recently accessed
	tail *listItem[V] // least recently accessed
	len  int
}

func (l *list[V]) unlink(item *listItem[V]) {
	if item.prev != nil {
		item.prev.next = item.next
	} else {
		l.head = item.next
	}
	if item.next != nil {
		item.next.prev = item.prev
	} else {
		l.tail = item.prev
	}
	item.prev, item.next = nil, nil
	l.len--
}

func (l *list[V]) pushFront(item *listItem[V]) {
	item.next = l.head
	item.prev = nil
	if l.head != nil {
		l.head.prev = item
	}
	l.head = item
	if l.tail == nil {
		l.tail = item
	}
	l.len++
}

func (l *list[V]) moveToFront(item *listItem[V]) {
	if item == l.head {
		return
	}
	l.unlink(item)
	l.pushFront(item)
}

// removeBack removes and returns the least recently used item.
func (l *list[V]) removeBack() *listItem[V] {
	item := l.tail
	if item != nil {
		l.unlink(item)
	}
	return item
}

// Options configures the LRU cache.
type Options[V any] struct {
	// MaxSize is the maximum number of entries.
	// 0 means unlimited.
	MaxSize int

	// MaxBytes is the approximate maximum size in bytes.
	// 0 means unlimited.
	MaxBytes int64

	// OnEvict is called when an entry is evicted or deleted.
	OnEvict func(key string, value V)
}

// New creates a new LRU cache with the given options.
func New[V any](opts Options[V]) *LRUCache[V] {
	return &LRUCache[V]{
		items:    make(map[string]*listItem[V]),
		lru:      &list[V]{},
		maxSize:  opts.MaxSize,
		maxBytes: opts.MaxBytes,
		onEvict:  opts.OnEvict,
	}
}

// Get retrieves a value from the cache.
func (c *LRUCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, found := c.items[key]
	if !found {
		c.misses++
		var zero V
		return zero, false
	}
	c.hits++
	item.AccessedAt = time.Now()
	c.lru.moveToFront(item)
	return item.Value, true
}

// Lookup is Get with ErrKeyNotFound for a missing key.
func (c *LRUCache[V]) Lookup(key string) (V, error) {
	v, ok := c.Get(key)
	if !ok {
		return v, fmt.Errorf("%q: %w", key, ErrKeyNotFound)
	}
	return v, nil
}

// Set stores a value in the cache.
func (c *LRUCache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	size := estimateSize(value)
	now := time.Now()

	if item, exists := c.items[key]; exists {
		c.currentBytes -= int64(item.Size)
		item.Value = value
		item.Size = size
		item.AccessedAt = now
		c.currentBytes += int64(size)
		c.lru.moveToFront(item)
		c.evictIfNeeded()
		return
	}

	item := &listItem[V]{
		Entry: Entry[V]{
			Key:        key,
			Value:      value,
			AccessedAt: now,
			CreatedAt:  now,
			Size:       size,
		},
	}
	c.items[key] = item
	c.lru.pushFront(item)
	c.currentBytes += int64(size)

	c.evictIfNeeded()
}

// Delete removes a key from the cache.
func (c *LRUCache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, found := c.items[key]
	if !found {
		return
	}
	c.lru.unlink(item)
	delete(c.items, key)
	c.currentBytes -= int64(item.Size)

	if c.onEvict != nil {
		c.onEvict(key, item.Value)
	}
}

// Clear removes all entries from the cache.
func (c *LRUCache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
}

func (c *LRUCache[V]) reset() {
	c.items = make(map[string]*listItem[V])
	c.lru = &list[V]{}
	c.currentBytes = 0
}

// Len returns the number of entries in the cache.
func (c *LRUCache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// CurrentBytes returns the approximate current size in bytes.
func (c *LRUCache[V]) CurrentBytes() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentBytes
}

func (c *LRUCache[V]) evictIfNeeded() {
	for c.shouldEvict() {
		item := c.lru.removeBack()
		if item == nil {
			break
		}
		delete(c.items, item.Key)
		c.currentBytes -= int64(item.Size)

		if c.onEvict != nil {
			c.onEvict(item.Key, item.Value)
		}
	}
}

func (c *LRUCache[V]) shouldEvict() bool {
	if c.maxSize > 0 && c.lru.len > c.maxSize {
		return true
	}
	// A single entry larger than the limit is kept.
	if c.maxBytes > 0 && c.currentBytes > c.maxBytes && c.lru.len > 1 {
		return true
	}
	return false
}

// entries returns the entries from most to least recently used. The caller
// holds the read lock.
func (c *LRUCache[V]) entries() []Entry[V] {
	out := make([]Entry[V], 0, len(c.items))
	for it := c.lru.head; it != nil; it = it.next {
		out = append(out, it.Entry)
	}
	return out
}

// restore replaces the contents with entries, most recent first. The caller
// holds the write lock.
func (c *LRUCache[V]) restore(entries []Entry[V]) {
	c.reset()
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		if old, dup := c.items[entry.Key]; dup {
			c.lru.unlink(old)
			c.currentBytes -= int64(old.Size)
		}
		item := &listItem[V]{Entry: entry}
		c.items[entry.Key] = item
		c.lru.pushFront(item)
		c.currentBytes += int64(entry.Size)
	}
	c.evictIfNeeded()
}

// Save persists the cache to a writer using msgpack. Recency order is
// preserved.
func (c *LRUCache[V]) Save(w io.Writer) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return newEncoder(w).Encode(c.entries())
}

// Load restores the cache from a reader using msgpack.
func (c *LRUCache[V]) Load(r io.Reader) error {
	var entries []Entry[V]
	if err := newDecoder(r).Decode(&entries); err != nil {
		return fmt.Errorf("failed to decode cache: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.restore(entries)
	return nil
}

// PersistToFile saves the cache to a file.
func PersistToFile[V any](c Cache[V], path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	if err := c.Save(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadFromFile loads the cache from a file.
func LoadFromFile[V any](c Cache[V], path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // No cache file is not an error
		}
		return fmt.Errorf("failed to open cache file: %w", err)
	}
	defer f.Close()

	return c.Load(f)
}

// Stats returns cache statistics.
type Stats struct {
	Length       int   `json:"length"`
	CurrentBytes int64 `json:"current_bytes"`
	HitCount     int64 `json:"hit_count"`
	MissCount    int64 `json:"miss_count"`
}

// Stats returns the current cache statistics.
func (c *LRUCache[V]) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Length:       len(c.items),
		CurrentBytes: c.currentBytes,
		HitCount:     c.hits,
		MissCount:    c.misses,
	}
}

// HitRate returns the cache hit rate.
func (s Stats) HitRate() float64 {
	total := s.HitCount + s.MissCount
	if total == 0 {
		return 0
	}
	return float64(s.HitCount) / float64(total)
}

// newEncoder returns a msgpack encoder that honours json struct tags, so
// values shared with the JSON output keep one set of field names.
func newEncoder(w io.Writer) *msgpack.Encoder {
	enc := msgpack.NewEncoder(w)
	enc.SetCustomStructTag("json")
	return enc
}

func newDecoder(r io.Reader) *msgpack.Decoder {
	dec := msgpack.NewDecoder(r)
	dec.SetCustomStructTag("json")
	return dec
}

// estimateSize estimates the size of a value in bytes.
func estimateSize(value any) int {
	switch v := value.(type) {
	case string:
		return len(v)
	case []byte:
		return len(v)
	default:
		b, err := msgpack.Marshal(v)
		if err != nil {
			return 0
		}
		return len(b)
	}
}

var _ Cache[string] = (*LRUCache[string])(nil)
