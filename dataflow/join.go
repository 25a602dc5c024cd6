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

package dataflow

import (
	"bytes"

	"github.com/incrdb/incr/btree"
	"github.com/incrdb/incr/zset"
)

// Pair is a joined row.
type Pair[L, R any] struct {
	Left  L
	Right R
}

// indexed wraps a row with its extracted join key and a
// canonical tie-break, so a side's rows are seekable by
// key in O(log n).
type indexed[T any] struct {
	key    any
	rowKey []byte
	row    T
}

func indexedOf[T any](key any, row T) indexed[T] {
	return indexed[T]{key: key, rowKey: zset.Canonical(row), row: row}
}

func compareIndexed[T any](a, b indexed[T]) int {
	if c := CompareValues(a.key, b.key); c != 0 {
		return c
	}
	return bytes.Compare(a.rowKey, b.rowKey)
}

// matches collects the rows stored under key. The probe
// carries a nil tie-break, which sorts before every
// stored row of the key.
func matches[T any](t *btree.Tree[indexed[T]], key any) []T {
	var out []T
	it := t.IterFrom(indexed[T]{key: key}, true)
	for it.Next() {
		v := it.Value()
		if CompareValues(v.key, key) != 0 {
			break
		}
		out = append(out, v.row)
	}
	return out
}

// refcountCursor expands a tree of refcounted rows into
// a duplicate-preserving (record, +1) sequence.
func refcountCursor[T any](it *btree.Iter[refcounted[T]]) Cursor[T] {
	var cur refcounted[T]
	rem := 0
	return cursorFunc[T](func() (zset.Entry[T], bool) {
		for rem <= 0 {
			if !it.Next() {
				return zset.Entry[T]{}, false
			}
			cur = it.Value()
			rem = cur.count
		}
		rem--
		return zset.Entry[T]{Record: cur.row, Weight: 1}, true
	})
}

// Join is an inner equi-join. Each side's rows are
// indexed by extracted key; a push on either side probes
// the other and emits one pair per match, weighted by
// the pushed weight. Stored occurrences count as 1
// regardless of pushed multiplicity: the join is
// set-semantic per side, a deliberate deviation from
// strict Z-set bag semantics.
type Join[L, R any] struct {
	out[Pair[L, R]]
	left       Source[L]
	right      Source[R]
	leftKey    func(L) any
	rightKey   func(R) any
	leftStore  *btree.Tree[indexed[L]]
	rightStore *btree.Tree[indexed[R]]
	results    *btree.Tree[refcounted[Pair[L, R]]]
}

// NewJoin attaches a Join to both upstreams. resultCmp
// orders the joined output and must distinguish distinct
// pairs.
func NewJoin[L, R any](left Source[L], right Source[R], leftKey func(L) any, rightKey func(R) any, resultCmp func(a, b Pair[L, R]) int) (*Join[L, R], error) {
	j := &Join[L, R]{
		left:       left,
		right:      right,
		leftKey:    leftKey,
		rightKey:   rightKey,
		leftStore:  btree.New(compareIndexed[L]),
		rightStore: btree.New(compareIndexed[R]),
	}
	j.results = btree.New(func(a, b refcounted[Pair[L, R]]) int {
		return resultCmp(a.row, b.row)
	})
	if err := left.SetSink(joinLeft[L, R]{j}); err != nil {
		return nil, err
	}
	if err := right.SetSink(joinRight[L, R]{j}); err != nil {
		return nil, err
	}
	return j, nil
}

// joinLeft and joinRight adapt the two input ports to
// the Sink interface.
type joinLeft[L, R any] struct{ j *Join[L, R] }

func (p joinLeft[L, R]) Push(cs *zset.ChangeSet[L]) { p.j.pushLeft(cs) }

type joinRight[L, R any] struct{ j *Join[L, R] }

func (p joinRight[L, R]) Push(cs *zset.ChangeSet[R]) { p.j.pushRight(cs) }

// result applies one weighted pair to the result tree
// and the outgoing change-set.
func (j *Join[L, R]) result(p Pair[L, R], w int, fwd *zset.ChangeSet[Pair[L, R]]) {
	probe := refcounted[Pair[L, R]]{row: p}
	n := w
	if prev, ok := j.results.Get(probe); ok {
		n += prev.count
	}
	if n <= 0 {
		j.results.Delete(probe)
	} else {
		j.results.Add(refcounted[Pair[L, R]]{row: p, count: n})
	}
	fwd.Append(p, w)
}

func (j *Join[L, R]) pushLeft(cs *zset.ChangeSet[L]) {
	fwd := zset.New[Pair[L, R]]()
	for _, e := range cs.Entries() {
		k := j.leftKey(e.Record)
		idx := indexedOf(k, e.Record)
		if e.Weight > 0 {
			j.leftStore.Add(idx)
		} else {
			j.leftStore.Delete(idx)
		}
		for _, r := range matches(j.rightStore, k) {
			j.result(Pair[L, R]{Left: e.Record, Right: r}, e.Weight, fwd)
		}
	}
	j.emit(fwd)
}

func (j *Join[L, R]) pushRight(cs *zset.ChangeSet[R]) {
	fwd := zset.New[Pair[L, R]]()
	for _, e := range cs.Entries() {
		k := j.rightKey(e.Record)
		idx := indexedOf(k, e.Record)
		if e.Weight > 0 {
			j.rightStore.Add(idx)
		} else {
			j.rightStore.Delete(idx)
		}
		for _, l := range matches(j.leftStore, k) {
			j.result(Pair[L, R]{Left: l, Right: e.Record}, e.Weight, fwd)
		}
	}
	j.emit(fwd)
}

func (j *Join[L, R]) Size() int { return j.results.Len() }

// Pull rebuilds both sides with a build-and-probe pass
// (smaller side as build side) and yields the joined
// pairs in result order.
func (j *Join[L, R]) Pull() Cursor[Pair[L, R]] {
	j.leftStore.Clear()
	j.rightStore.Clear()
	j.results.Clear()
	scratch := zset.New[Pair[L, R]]()
	if j.left.Size() <= j.right.Size() {
		j.loadLeft()
		up := j.right.Pull()
		for {
			e, ok := up.Next()
			if !ok {
				break
			}
			k := j.rightKey(e.Record)
			j.rightStore.Add(indexedOf(k, e.Record))
			for _, l := range matches(j.leftStore, k) {
				j.result(Pair[L, R]{Left: l, Right: e.Record}, 1, scratch)
			}
		}
	} else {
		j.loadRight()
		up := j.left.Pull()
		for {
			e, ok := up.Next()
			if !ok {
				break
			}
			k := j.leftKey(e.Record)
			j.leftStore.Add(indexedOf(k, e.Record))
			for _, r := range matches(j.rightStore, k) {
				j.result(Pair[L, R]{Left: e.Record, Right: r}, 1, scratch)
			}
		}
	}
	return refcountCursor(j.results.Clone().Iter())
}

func (j *Join[L, R]) loadLeft() {
	up := j.left.Pull()
	for {
		e, ok := up.Next()
		if !ok {
			return
		}
		j.leftStore.Add(indexedOf(j.leftKey(e.Record), e.Record))
	}
}

func (j *Join[L, R]) loadRight() {
	up := j.right.Pull()
	for {
		e, ok := up.Next()
		if !ok {
			return
		}
		j.rightStore.Add(indexedOf(j.rightKey(e.Record), e.Record))
	}
}
