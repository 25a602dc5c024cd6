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

// Package zset implements weighted multisets of records
// (Z-sets), the universal delta representation of the
// dataflow engine. A positive weight is an insertion,
// a negative weight a deletion; the logical multiset is
// the per-record sum of weights. Change-sets form a
// commutative group under Add.
package zset

import "bytes"

// Entry is one (record, weight) pair of a change-set.
type Entry[T any] struct {
	Record T
	Weight int
}

// ChangeSet is an ordered list of weighted records.
// The zero value is an empty change-set ready for use.
type ChangeSet[T any] struct {
	entries []Entry[T]
}

// New constructs an empty change-set.
func New[T any]() *ChangeSet[T] { return &ChangeSet[T]{} }

// Zero is the additive identity: the empty change-set.
func Zero[T any]() *ChangeSet[T] { return &ChangeSet[T]{} }

// Of constructs a change-set from entries, in order.
func Of[T any](entries ...Entry[T]) *ChangeSet[T] {
	return &ChangeSet[T]{entries: append([]Entry[T](nil), entries...)}
}

// Append adds one (record, weight) pair to the end.
func (c *ChangeSet[T]) Append(record T, weight int) {
	c.entries = append(c.entries, Entry[T]{Record: record, Weight: weight})
}

// Concat appends every pair of other to c.
func (c *ChangeSet[T]) Concat(other *ChangeSet[T]) {
	c.entries = append(c.entries, other.entries...)
}

// Entries exposes the underlying pairs. Callers must
// not mutate the returned slice.
func (c *ChangeSet[T]) Entries() []Entry[T] { return c.entries }

// Len returns the number of pairs (not the logical
// cardinality; merge first for that).
func (c *ChangeSet[T]) Len() int { return len(c.entries) }

// IsEmpty reports whether the change-set has no pairs.
func (c *ChangeSet[T]) IsEmpty() bool { return len(c.entries) == 0 }

// IsPositive reports whether every weight is positive.
func (c *ChangeSet[T]) IsPositive() bool {
	for i := range c.entries {
		if c.entries[i].Weight <= 0 {
			return false
		}
	}
	return true
}

// IsSet reports whether every weight is exactly 1.
func (c *ChangeSet[T]) IsSet() bool {
	for i := range c.entries {
		if c.entries[i].Weight != 1 {
			return false
		}
	}
	return true
}

// slot is one distinct record observed during a merge
// pass, with its canonical bytes and running weight.
type slot[T any] struct {
	record T
	raw    []byte
	weight int
}

// merge buckets the entries by record identity,
// preserving first-appearance order.
func (c *ChangeSet[T]) merge() []*slot[T] {
	order := make([]*slot[T], 0, len(c.entries))
	buckets := make(map[uint64][]*slot[T], len(c.entries))
	for i := range c.entries {
		e := &c.entries[i]
		raw := Canonical(e.Record)
		h := digestBytes(raw)
		var found *slot[T]
		for _, s := range buckets[h] {
			if bytes.Equal(s.raw, raw) {
				found = s
				break
			}
		}
		if found == nil {
			found = &slot[T]{record: e.Record, raw: raw}
			buckets[h] = append(buckets[h], found)
			order = append(order, found)
		}
		found.weight += e.Weight
	}
	return order
}

// IsMerged reports whether the change-set is in
// canonical form: at most one pair per distinct record,
// every weight non-zero.
func (c *ChangeSet[T]) IsMerged() bool {
	slots := c.merge()
	if len(slots) != len(c.entries) {
		return false
	}
	for _, s := range slots {
		if s.weight == 0 {
			return false
		}
	}
	return true
}

// MergeRecords compacts the change-set into canonical
// form: each distinct record appears at most once with
// its non-zero summed weight, in first-appearance order.
// Idempotent.
func (c *ChangeSet[T]) MergeRecords() *ChangeSet[T] {
	out := &ChangeSet[T]{entries: make([]Entry[T], 0, len(c.entries))}
	for _, s := range c.merge() {
		if s.weight != 0 {
			out.entries = append(out.entries, Entry[T]{Record: s.record, Weight: s.weight})
		}
	}
	return out
}

// Multiply scales every weight by k, dropping pairs
// whose weight becomes zero.
func (c *ChangeSet[T]) Multiply(k int) *ChangeSet[T] {
	out := &ChangeSet[T]{}
	if k == 0 {
		return out
	}
	out.entries = make([]Entry[T], 0, len(c.entries))
	for _, e := range c.entries {
		if w := e.Weight * k; w != 0 {
			out.entries = append(out.entries, Entry[T]{Record: e.Record, Weight: w})
		}
	}
	return out
}

// Negate flips every weight.
func (c *ChangeSet[T]) Negate() *ChangeSet[T] { return c.Multiply(-1) }

// Distinct reduces a change-set to a set: every record
// whose merged weight is positive appears exactly once
// with weight 1.
func (c *ChangeSet[T]) Distinct() *ChangeSet[T] {
	out := &ChangeSet[T]{}
	for _, s := range c.merge() {
		if s.weight >= 1 {
			out.entries = append(out.entries, Entry[T]{Record: s.record, Weight: 1})
		}
	}
	return out
}

// Add returns the canonical sum of a and b:
// concatenation followed by a merge.
func Add[T any](a, b *ChangeSet[T]) *ChangeSet[T] {
	sum := &ChangeSet[T]{entries: make([]Entry[T], 0, len(a.entries)+len(b.entries))}
	sum.entries = append(sum.entries, a.entries...)
	sum.entries = append(sum.entries, b.entries...)
	return sum.MergeRecords()
}

// Subtract returns add(a, negate(b)).
func Subtract[T any](a, b *ChangeSet[T]) *ChangeSet[T] {
	return Add(a, b.Negate())
}

// Equal reports whether a and b denote the same logical
// multiset.
func Equal[T any](a, b *ChangeSet[T]) bool {
	return Subtract(a, b).IsEmpty()
}
