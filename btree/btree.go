// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package btree implements an ordered, de-duplicated
// container keyed by a caller-supplied total order.
//
// Nodes are copy-on-write: cloning a tree is O(1), and
// mutation of either copy clones only the nodes along
// the mutated path. The tree stores each key exactly
// once; inserting a key that compares equal to a stored
// key replaces the stored key.
package btree

import (
	"gopkg.in/src-d/go-errors.v1"
)

// fanout is the per-node capacity cap for both
// leaf keys and internal children.
const fanout = 32

// ErrNaNKey is raised (via panic) when a key is not
// reflexively equal under the tree's comparator, which
// happens with NaN-producing comparators.
var ErrNaNKey = errors.NewKind("btree: comparator is not reflexive for key %v")

// node is either a leaf or an internal node.
// For a leaf, kids is nil and keys holds the stored
// keys in ascending order. For an internal node,
// kids[i] is the i'th child and keys[i] is the maximum
// key stored in that child's subtree (the routing key).
type node[T any] struct {
	shared bool
	keys   []T
	kids   []*node[T]
}

func (n *node[T]) leaf() bool { return n.kids == nil }

// max returns the largest key in the subtree rooted at n.
// For both node kinds this is the last entry of keys.
func (n *node[T]) max() T { return n.keys[len(n.keys)-1] }

// mutable returns n if it is exclusively owned, or a
// clone of n otherwise. The clone's children are marked
// shared, since the clone and the original now both
// reference them.
func (n *node[T]) mutable() *node[T] {
	if !n.shared {
		return n
	}
	nn := &node[T]{keys: append([]T(nil), n.keys...)}
	if n.kids != nil {
		nn.kids = append([]*node[T](nil), n.kids...)
		for _, k := range nn.kids {
			k.shared = true
		}
	}
	return nn
}

// Tree is an ordered set of T under a total order.
// The zero value is not usable; see New.
type Tree[T any] struct {
	cmp  func(a, b T) int
	root *node[T]
	size int
}

// New constructs an empty Tree ordered by cmp.
// cmp must be a deterministic, antisymmetric total
// order. Keys that compare equal are collapsed into a
// single entry, so a comparator that cannot distinguish
// logically distinct values silently de-duplicates them.
func New[T any](cmp func(a, b T) int) *Tree[T] {
	return &Tree[T]{cmp: cmp, root: &node[T]{shared: true}}
}

// Len returns the number of stored keys.
func (t *Tree[T]) Len() int { return t.size }

// Clear empties the tree to a shared empty leaf sentinel.
func (t *Tree[T]) Clear() {
	t.root = &node[T]{shared: true}
	t.size = 0
}

// Clone returns a tree sharing all of t's nodes.
// Subsequent mutation of either tree copies only the
// nodes along the mutated path.
func (t *Tree[T]) Clone() *Tree[T] {
	t.root.shared = true
	return &Tree[T]{cmp: t.cmp, root: t.root, size: t.size}
}

// search locates probe within keys. On a hit it returns
// the exact index; on a miss it returns the insertion
// index XOR failXor. Callers that do not care about the
// hit/miss distinction pass failXor == 0; callers that do
// pass 1 and re-check the slot with the comparator (a
// missed probe never compares equal to the slot the
// flipped index names, so the check is unambiguous).
func (t *Tree[T]) search(keys []T, probe T, failXor int) int {
	lo, hi := 0, len(keys)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		c := t.cmp(keys[mid], probe)
		if c == 0 {
			return mid
		}
		if c < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo ^ failXor
}

// leafIndex returns the position of probe in the leaf n
// and whether the probe is actually present.
func (t *Tree[T]) leafIndex(n *node[T], probe T) (int, bool) {
	i := t.search(n.keys, probe, 1)
	if i < len(n.keys) && t.cmp(n.keys[i], probe) == 0 {
		return i, true
	}
	return i ^ 1, false
}

// Get returns the stored key equal to probe under the
// tree's comparator.
func (t *Tree[T]) Get(probe T) (T, bool) {
	var zero T
	n := t.root
	for !n.leaf() {
		i := t.search(n.keys, probe, 0)
		if i >= len(n.keys) {
			return zero, false
		}
		n = n.kids[i]
	}
	if i, ok := t.leafIndex(n, probe); ok {
		return n.keys[i], true
	}
	return zero, false
}

// Has reports whether a key equal to probe is stored.
func (t *Tree[T]) Has(probe T) bool {
	_, ok := t.Get(probe)
	return ok
}

// Min returns the smallest stored key.
func (t *Tree[T]) Min() (T, bool) {
	var zero T
	if t.size == 0 {
		return zero, false
	}
	n := t.root
	for !n.leaf() {
		n = n.kids[0]
	}
	return n.keys[0], true
}

// Max returns the largest stored key.
func (t *Tree[T]) Max() (T, bool) {
	var zero T
	if t.size == 0 {
		return zero, false
	}
	return t.root.max(), true
}

// Add inserts key, replacing any stored key that
// compares equal to it. The tree takes ownership of the
// value. Keys that are not reflexively equal under the
// comparator (NaN) panic with ErrNaNKey.
func (t *Tree[T]) Add(key T) {
	if t.cmp(key, key) != 0 {
		panic(ErrNaNKey.New(key))
	}
	root := t.root.mutable()
	t.root = root
	right, grew := t.insert(root, key)
	if right != nil {
		t.root = &node[T]{
			keys: []T{root.max(), right.max()},
			kids: []*node[T]{root, right},
		}
	}
	if grew {
		t.size++
	}
}

// insert adds key beneath n, which must already be
// mutable. It returns the new right sibling if n split,
// and whether the subtree gained an element (false on
// replacement).
func (t *Tree[T]) insert(n *node[T], key T) (*node[T], bool) {
	if n.leaf() {
		i, found := t.leafIndex(n, key)
		if found {
			n.keys[i] = key
			return nil, false
		}
		var zero T
		n.keys = append(n.keys, zero)
		copy(n.keys[i+1:], n.keys[i:])
		n.keys[i] = key
		if len(n.keys) <= fanout {
			return nil, true
		}
		return n.split(), true
	}
	i := t.search(n.keys, key, 0)
	if i >= len(n.keys) {
		i = len(n.keys) - 1
	}
	child := n.kids[i].mutable()
	n.kids[i] = child
	right, grew := t.insert(child, key)
	n.keys[i] = child.max()
	if right != nil {
		n.keys = append(n.keys, *new(T))
		copy(n.keys[i+2:], n.keys[i+1:])
		n.keys[i+1] = right.max()
		n.kids = append(n.kids, nil)
		copy(n.kids[i+2:], n.kids[i+1:])
		n.kids[i+1] = right
		if len(n.kids) > fanout {
			return n.split(), grew
		}
	}
	return nil, grew
}

// split halves n in place and returns the new right
// sibling carrying the upper half.
func (n *node[T]) split() *node[T] {
	mid := len(n.keys) / 2
	right := &node[T]{keys: append([]T(nil), n.keys[mid:]...)}
	n.keys = n.keys[:mid]
	if n.kids != nil {
		right.kids = append([]*node[T](nil), n.kids[mid:]...)
		n.kids = n.kids[:mid]
	}
	return right
}

// Delete removes the stored key equal to probe and
// reports whether a key was removed.
func (t *Tree[T]) Delete(probe T) bool {
	if t.size == 0 {
		return false
	}
	root := t.root.mutable()
	t.root = root
	if !t.remove(root, probe) {
		return false
	}
	t.size--
	// an internal root with a single child is redundant
	for !t.root.leaf() && len(t.root.kids) == 1 {
		t.root = t.root.kids[0]
	}
	return true
}

// remove deletes probe beneath n, which must already be
// mutable.
func (t *Tree[T]) remove(n *node[T], probe T) bool {
	if n.shared {
		panic("btree: shared node mutated in delete")
	}
	if n.leaf() {
		i, found := t.leafIndex(n, probe)
		if !found {
			return false
		}
		n.keys = append(n.keys[:i], n.keys[i+1:]...)
		return true
	}
	i := t.search(n.keys, probe, 0)
	if i >= len(n.keys) {
		return false
	}
	child := n.kids[i].mutable()
	n.kids[i] = child
	if !t.remove(child, probe) {
		return false
	}
	if len(child.keys) == 0 {
		n.keys = append(n.keys[:i], n.keys[i+1:]...)
		n.kids = append(n.kids[:i], n.kids[i+1:]...)
		return true
	}
	n.keys[i] = child.max()
	if len(child.keys) < fanout/2 {
		t.rebalance(n, i)
	}
	return true
}

// rebalance merges the child at position i with one of
// its siblings when the pair fits into a single node.
// Under-full nodes whose neighbors are too large to
// absorb them are left as-is; lookups do not depend on
// minimum occupancy.
func (t *Tree[T]) rebalance(n *node[T], i int) {
	at := -1
	if i > 0 && len(n.kids[i-1].keys)+len(n.kids[i].keys) <= fanout {
		at = i - 1
	} else if i+1 < len(n.kids) && len(n.kids[i].keys)+len(n.kids[i+1].keys) <= fanout {
		at = i
	}
	if at < 0 {
		return
	}
	left := n.kids[at].mutable()
	// cloning the right sibling marks its children
	// shared, so stealing them into left is safe even
	// when the sibling is referenced by another tree
	right := n.kids[at+1].mutable()
	left.keys = append(left.keys, right.keys...)
	if left.kids != nil {
		left.kids = append(left.kids, right.kids...)
	}
	n.kids[at] = left
	n.keys[at] = left.max()
	n.keys = append(n.keys[:at+1], n.keys[at+2:]...)
	n.kids = append(n.kids[:at+1], n.kids[at+2:]...)
}
