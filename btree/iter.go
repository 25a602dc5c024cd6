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

package btree

// frame is one level of an iterator's descent stack.
// For the leaf on top of the stack, i indexes the
// current key; for internal frames it indexes the child
// currently being walked.
type frame[T any] struct {
	n *node[T]
	i int
}

// Iter is a lazy cursor over a tree's keys. Mutating the
// tree invalidates its iterators; clone the tree first
// if iteration must survive mutation.
type Iter[T any] struct {
	stack []frame[T]
	rev   bool
}

// Iter returns an ascending cursor positioned before the
// smallest key.
func (t *Tree[T]) Iter() *Iter[T] {
	return &Iter[T]{stack: []frame[T]{{t.root, -1}}}
}

// Reverse returns a descending cursor positioned after
// the largest key.
func (t *Tree[T]) Reverse() *Iter[T] {
	return &Iter[T]{stack: []frame[T]{{t.root, len(t.root.keys)}}, rev: true}
}

// IterFrom returns an ascending cursor whose first key
// is the smallest key >= probe (> probe when inclusive
// is false).
func (t *Tree[T]) IterFrom(probe T, inclusive bool) *Iter[T] {
	it := &Iter[T]{}
	n := t.root
	for !n.leaf() {
		i := t.search(n.keys, probe, 0)
		if i >= len(n.keys) {
			// probe is beyond every key; yield nothing
			return &Iter[T]{}
		}
		it.stack = append(it.stack, frame[T]{n, i})
		n = n.kids[i]
	}
	start, found := t.leafIndex(n, probe)
	if found && !inclusive {
		start++
	}
	it.stack = append(it.stack, frame[T]{n, start - 1})
	return it
}

// ReverseFrom returns a descending cursor whose first
// key is the largest key <= probe (< probe when
// inclusive is false).
func (t *Tree[T]) ReverseFrom(probe T, inclusive bool) *Iter[T] {
	it := &Iter[T]{rev: true}
	n := t.root
	for !n.leaf() {
		i := t.search(n.keys, probe, 0)
		if i >= len(n.keys) {
			i = len(n.keys) - 1
		}
		it.stack = append(it.stack, frame[T]{n, i})
		n = n.kids[i]
	}
	start, found := t.leafIndex(n, probe)
	if !found || !inclusive {
		// first key >= probe is excluded either way;
		// step back to the last key below it
		start--
	}
	it.stack = append(it.stack, frame[T]{n, start + 1})
	return it
}

// Next advances the cursor and reports whether a key is
// available via Value.
func (it *Iter[T]) Next() bool {
	if len(it.stack) == 0 {
		return false
	}
	step := 1
	if it.rev {
		step = -1
	}
	it.stack[len(it.stack)-1].i += step
	for {
		top := &it.stack[len(it.stack)-1]
		if top.i < 0 || top.i >= len(top.n.keys) {
			it.stack = it.stack[:len(it.stack)-1]
			if len(it.stack) == 0 {
				return false
			}
			it.stack[len(it.stack)-1].i += step
			continue
		}
		if top.n.leaf() {
			return true
		}
		child := top.n.kids[top.i]
		ci := 0
		if it.rev {
			ci = len(child.keys) - 1
		}
		it.stack = append(it.stack, frame[T]{child, ci})
	}
}

// Value returns the key the cursor is positioned on.
// Only valid after Next has returned true.
func (it *Iter[T]) Value() T {
	top := it.stack[len(it.stack)-1]
	return top.n.keys[top.i]
}

// Values drains the cursor into a slice. Intended for
// tests and snapshotting small trees.
func (it *Iter[T]) Values() []T {
	var out []T
	for it.Next() {
		out = append(out, it.Value())
	}
	return out
}
