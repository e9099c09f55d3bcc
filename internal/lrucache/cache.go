// Package lrucache implements a generic, size-bounded least-recently-used
// cache. The contract (Insert returning evicted values, Erase, LookUp,
// CheckInvariants) is reconstructed from the gcsfuse cache's test suite;
// the key and value types are parameterized here rather than fixed to
// string keys and a Sizer interface, so the same implementation serves
// both the block cache (keyed by block number) and any future consumer.
package lrucache

import "container/list"

// Sized is implemented by cache values that occupy more than one capacity
// unit; entries whose value does not implement Sized are assumed to
// occupy exactly one unit, which is what the block cache wants (capacity
// bounded by entry count).
type Sized interface {
	Size() uint64
}

func sizeOf(v interface{}) uint64 {
	if s, ok := v.(Sized); ok {
		return s.Size()
	}
	return 1
}

type entry[K comparable, V any] struct {
	key   K
	value V
}

// Cache is a capacity-bounded LRU keyed by K holding values of type V.
// It is not safe for concurrent use; callers needing concurrent access
// wrap it with their own lock, the way blockcache.Cache does.
type Cache[K comparable, V any] struct {
	capacity uint64
	size     uint64

	ll    *list.List
	items map[K]*list.Element
}

// New returns an empty Cache bounded to the given total capacity, measured
// in Size() units (or entry count, for values that don't implement Sized).
func New[K comparable, V any](capacity uint64) *Cache[K, V] {
	return &Cache[K, V]{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[K]*list.Element),
	}
}

// LookUp returns the value for key and marks it most-recently-used, or the
// zero value and false if key is not present.
func (c *Cache[K, V]) LookUp(key K) (V, bool) {
	el, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}

	c.ll.MoveToFront(el)
	return el.Value.(*entry[K, V]).value, true
}

// Insert adds or replaces the entry for key, evicting least-recently-used
// entries as needed to stay within capacity, and returns the evicted
// values (oldest first).
func (c *Cache[K, V]) Insert(key K, value V) []V {
	var evicted []V

	if el, ok := c.items[key]; ok {
		old := el.Value.(*entry[K, V])
		c.size -= sizeOf(old.value)
		c.ll.Remove(el)
		delete(c.items, key)
	}

	el := c.ll.PushFront(&entry[K, V]{key: key, value: value})
	c.items[key] = el
	c.size += sizeOf(value)

	for c.size > c.capacity {
		back := c.ll.Back()
		if back == nil {
			break
		}
		old := back.Value.(*entry[K, V])
		c.ll.Remove(back)
		delete(c.items, old.key)
		c.size -= sizeOf(old.value)
		evicted = append(evicted, old.value)
	}

	return evicted
}

// Erase removes key from the cache, returning its value and whether it was
// present.
func (c *Cache[K, V]) Erase(key K) (V, bool) {
	el, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}

	e := el.Value.(*entry[K, V])
	c.ll.Remove(el)
	delete(c.items, key)
	c.size -= sizeOf(e.value)

	return e.value, true
}

// Len returns the number of entries currently cached.
func (c *Cache[K, V]) Len() int {
	return c.ll.Len()
}

// CheckInvariants panics if the cache's internal bookkeeping has drifted:
// the map and list must agree on membership, and total size must not
// exceed capacity.
func (c *Cache[K, V]) CheckInvariants() {
	if c.ll.Len() != len(c.items) {
		panic("lrucache: list and map disagree on length")
	}

	var total uint64
	for el := c.ll.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry[K, V])
		if _, ok := c.items[e.key]; !ok {
			panic("lrucache: list entry missing from map")
		}
		total += sizeOf(e.value)
	}

	if total != c.size {
		panic("lrucache: size bookkeeping drifted from actual total")
	}
	if c.size > c.capacity {
		panic("lrucache: size exceeds capacity")
	}
}
