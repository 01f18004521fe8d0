// Package reconcile keeps identity-keyed, discovery-ordered collections of
// GATT entities and merges fresh discovery results into them.
package reconcile

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Result lists the positions touched by a Merge, in post-merge index space.
// Added and Updated never share an index.
type Result struct {
	Added   []int
	Updated []int
}

// Empty reports whether the merge changed nothing.
func (r Result) Empty() bool {
	return len(r.Added) == 0 && len(r.Updated) == 0
}

type slot[V any] struct {
	index int
	value V
}

// Collection is an ordered sequence of values with unique keys. Positions are
// stable: an entry keeps its index until Clear.
type Collection[K comparable, V any] struct {
	key   func(V) K
	index *orderedmap.OrderedMap[K, *slot[V]]
	slots []*slot[V]
}

// New creates an empty collection using key to derive identity.
func New[K comparable, V any](key func(V) K) *Collection[K, V] {
	return &Collection[K, V]{
		key:   key,
		index: orderedmap.New[K, *slot[V]](),
	}
}

// Len returns the number of entries.
func (c *Collection[K, V]) Len() int {
	return len(c.slots)
}

// At returns the value at position i. It panics when i is out of range.
func (c *Collection[K, V]) At(i int) V {
	return c.slots[i].value
}

// IndexOf returns the position of key, or -1.
func (c *Collection[K, V]) IndexOf(key K) int {
	if s, ok := c.index.Get(key); ok {
		return s.index
	}
	return -1
}

// Get returns the value stored for key.
func (c *Collection[K, V]) Get(key K) (V, bool) {
	if s, ok := c.index.Get(key); ok {
		return s.value, true
	}
	var zero V
	return zero, false
}

// Set replaces the value of an existing key in place and returns its index,
// or -1 if the key is unknown.
func (c *Collection[K, V]) Set(v V) int {
	s, ok := c.index.Get(c.key(v))
	if !ok {
		return -1
	}
	s.value = v
	return s.index
}

// Values returns the values in order.
func (c *Collection[K, V]) Values() []V {
	out := make([]V, 0, c.index.Len())
	for pair := c.index.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value.value)
	}
	return out
}

// Keys returns the keys in order.
func (c *Collection[K, V]) Keys() []K {
	out := make([]K, 0, c.index.Len())
	for pair := c.index.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Key)
	}
	return out
}

// Merge folds incoming into the collection. Values whose key is already
// present replace the stored value at its current position; the rest are
// appended in incoming order. Nothing is ever removed.
//
// A key repeated within incoming is reported once: as added if it was new,
// otherwise as updated, and the last occurrence wins.
func (c *Collection[K, V]) Merge(incoming []V) Result {
	var res Result
	start := len(c.slots)
	updated := make(map[int]struct{})

	for _, v := range incoming {
		k := c.key(v)
		if s, ok := c.index.Get(k); ok {
			s.value = v
			if s.index >= start {
				continue
			}
			if _, seen := updated[s.index]; !seen {
				updated[s.index] = struct{}{}
				res.Updated = append(res.Updated, s.index)
			}
			continue
		}

		s := &slot[V]{index: len(c.slots), value: v}
		c.slots = append(c.slots, s)
		c.index.Set(k, s)
		res.Added = append(res.Added, s.index)
	}
	return res
}

// Clear removes every entry and returns the indices that were occupied.
func (c *Collection[K, V]) Clear() []int {
	removed := make([]int, len(c.slots))
	for i := range removed {
		removed[i] = i
	}
	c.slots = nil
	c.index = orderedmap.New[K, *slot[V]]()
	return removed
}
