// Package scratch provides the per-operator keyed storage operators use
// to make maintenance incremental (§9: "Operator scratch storage is
// naturally modeled as a keyed mapping of opaque keys ... to
// counts/flags. A per-operator store rather than a global store gives
// clear lifetime boundaries.").
//
// Store is deliberately in-process and ephemeral, backed by
// github.com/tidwall/btree's generic ordered map — the same structure
// the teacher uses for its own per-operator scratch (group-by
// aggregates, stream-join buffers). It is not durable: per §1 Non-goals,
// operator scratch is rebuilt from sources on start, so there is nothing
// here that needs to survive a process restart.
package scratch

import (
	tbtree "github.com/tidwall/btree"
)

// Less compares two keys of type K, establishing the total order Store
// keeps its entries in.
type Less[K any] func(a, b K) bool

type entry[K any, V any] struct {
	key   K
	value V
}

// Store is a keyed mapping from K to V, ordered by a caller-supplied
// Less function. Entries are counts/flags/small structs — exactly the
// kind of opaque keyed scratch §9 describes.
type Store[K any, V any] struct {
	tree *tbtree.Generic[*entry[K, V]]
	less Less[K]
}

// New constructs an empty Store ordered by less.
func New[K any, V any](less Less[K]) *Store[K, V] {
	s := &Store[K, V]{less: less}
	s.tree = tbtree.NewGenericOptions[*entry[K, V]](func(a, b *entry[K, V]) bool {
		return less(a.key, b.key)
	}, tbtree.Options{NoLocks: true})
	return s
}

// Get returns the value stored under key, and whether it was present.
func (s *Store[K, V]) Get(key K) (V, bool) {
	item, ok := s.tree.Get(&entry[K, V]{key: key})
	if !ok {
		var zero V
		return zero, false
	}
	return item.value, true
}

// Has reports whether key is present.
func (s *Store[K, V]) Has(key K) bool {
	_, ok := s.tree.Get(&entry[K, V]{key: key})
	return ok
}

// Set inserts or overwrites the value stored under key.
func (s *Store[K, V]) Set(key K, value V) {
	s.tree.Set(&entry[K, V]{key: key, value: value})
}

// Delete removes key, returning the value that was stored (if any) and
// whether it was present.
func (s *Store[K, V]) Delete(key K) (V, bool) {
	item, ok := s.tree.Delete(&entry[K, V]{key: key})
	if !ok {
		var zero V
		return zero, false
	}
	return item.value, true
}

// Len returns the number of entries currently held.
func (s *Store[K, V]) Len() int {
	return s.tree.Len()
}

// Max returns the entry with the greatest key, if any.
func (s *Store[K, V]) Max() (K, V, bool) {
	item, ok := s.tree.Max()
	if !ok {
		var k K
		var v V
		return k, v, false
	}
	return item.key, item.value, true
}

// Min returns the entry with the smallest key, if any.
func (s *Store[K, V]) Min() (K, V, bool) {
	item, ok := s.tree.Min()
	if !ok {
		var k K
		var v V
		return k, v, false
	}
	return item.key, item.value, true
}

// Ascend visits every entry in ascending key order, stopping early if fn
// returns false.
func (s *Store[K, V]) Ascend(fn func(key K, value V) bool) {
	s.tree.Scan(func(item *entry[K, V]) bool {
		return fn(item.key, item.value)
	})
}

// Keys returns every key currently stored, in ascending order.
func (s *Store[K, V]) Keys() []K {
	out := make([]K, 0, s.Len())
	s.Ascend(func(k K, _ V) bool {
		out = append(out, k)
		return true
	})
	return out
}
