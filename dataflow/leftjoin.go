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
	"github.com/incrdb/incr/btree"
	"github.com/incrdb/incr/zset"
)

// LeftOuterJoin joins like Join but every left row is
// always represented: a left row with no right match
// appears once as Pair{left, nil}. When its first match
// arrives, the nil pair is retracted; when its last
// match is removed, the nil pair is re-asserted. The
// output Right is a pointer, nil meaning "no match".
type LeftOuterJoin[L, R any] struct {
	out[Pair[L, *R]]
	left       Source[L]
	right      Source[R]
	leftKey    func(L) any
	rightKey   func(R) any
	leftStore  *btree.Tree[indexed[L]]
	rightStore *btree.Tree[indexed[R]]
	results    *btree.Tree[refcounted[Pair[L, *R]]]
	// counts tracks the number of right matches emitted
	// for each left row, keyed by the row's canonical
	// serialization
	counts map[string]int
}

// NewLeftOuterJoin attaches a LeftOuterJoin to both
// upstreams.
func NewLeftOuterJoin[L, R any](left Source[L], right Source[R], leftKey func(L) any, rightKey func(R) any, resultCmp func(a, b Pair[L, *R]) int) (*LeftOuterJoin[L, R], error) {
	j := &LeftOuterJoin[L, R]{
		left:       left,
		right:      right,
		leftKey:    leftKey,
		rightKey:   rightKey,
		leftStore:  btree.New(compareIndexed[L]),
		rightStore: btree.New(compareIndexed[R]),
		counts:     make(map[string]int),
	}
	j.results = btree.New(func(a, b refcounted[Pair[L, *R]]) int {
		return resultCmp(a.row, b.row)
	})
	if err := left.SetSink(lojLeft[L, R]{j}); err != nil {
		return nil, err
	}
	if err := right.SetSink(lojRight[L, R]{j}); err != nil {
		return nil, err
	}
	return j, nil
}

type lojLeft[L, R any] struct{ j *LeftOuterJoin[L, R] }

func (p lojLeft[L, R]) Push(cs *zset.ChangeSet[L]) { p.j.pushLeft(cs) }

type lojRight[L, R any] struct{ j *LeftOuterJoin[L, R] }

func (p lojRight[L, R]) Push(cs *zset.ChangeSet[R]) { p.j.pushRight(cs) }

func (j *LeftOuterJoin[L, R]) result(p Pair[L, *R], w int, fwd *zset.ChangeSet[Pair[L, *R]]) {
	probe := refcounted[Pair[L, *R]]{row: p}
	n := w
	if prev, ok := j.results.Get(probe); ok {
		n += prev.count
	}
	if n <= 0 {
		j.results.Delete(probe)
	} else {
		j.results.Add(refcounted[Pair[L, *R]]{row: p, count: n})
	}
	fwd.Append(p, w)
}

// emitLeft asserts or retracts (w = ±1) everything a
// left row currently contributes: its match pairs, or
// the nil pair when it has none.
func (j *LeftOuterJoin[L, R]) emitLeft(l L, ms []R, w int, fwd *zset.ChangeSet[Pair[L, *R]]) {
	if len(ms) == 0 {
		j.result(Pair[L, *R]{Left: l}, w, fwd)
		return
	}
	for i := range ms {
		r := ms[i]
		j.result(Pair[L, *R]{Left: l, Right: &r}, w, fwd)
	}
}

func (j *LeftOuterJoin[L, R]) pushLeft(cs *zset.ChangeSet[L]) {
	fwd := zset.New[Pair[L, *R]]()
	for _, e := range cs.Entries() {
		k := j.leftKey(e.Record)
		idx := indexedOf(k, e.Record)
		id := string(idx.rowKey)
		ms := matches(j.rightStore, k)
		if e.Weight > 0 {
			j.leftStore.Add(idx)
			j.emitLeft(e.Record, ms, 1, fwd)
			j.counts[id] = len(ms)
		} else {
			j.leftStore.Delete(idx)
			j.emitLeft(e.Record, ms, -1, fwd)
			delete(j.counts, id)
		}
	}
	j.emit(fwd)
}

func (j *LeftOuterJoin[L, R]) pushRight(cs *zset.ChangeSet[R]) {
	fwd := zset.New[Pair[L, *R]]()
	for _, e := range cs.Entries() {
		k := j.rightKey(e.Record)
		idx := indexedOf(k, e.Record)
		if e.Weight > 0 {
			j.rightStore.Add(idx)
			for _, l := range matches(j.leftStore, k) {
				id := string(zset.Canonical(l))
				if j.counts[id] == 0 {
					j.result(Pair[L, *R]{Left: l}, -1, fwd)
				}
				r := e.Record
				j.result(Pair[L, *R]{Left: l, Right: &r}, 1, fwd)
				j.counts[id]++
			}
		} else {
			j.rightStore.Delete(idx)
			for _, l := range matches(j.leftStore, k) {
				id := string(zset.Canonical(l))
				r := e.Record
				j.result(Pair[L, *R]{Left: l, Right: &r}, -1, fwd)
				j.counts[id]--
				if j.counts[id] == 0 {
					j.result(Pair[L, *R]{Left: l}, 1, fwd)
				}
			}
		}
	}
	j.emit(fwd)
}

func (j *LeftOuterJoin[L, R]) Size() int { return j.results.Len() }

// Pull rebuilds by loading the right side and streaming
// the left side, then yields pairs in result order.
func (j *LeftOuterJoin[L, R]) Pull() Cursor[Pair[L, *R]] {
	j.leftStore.Clear()
	j.rightStore.Clear()
	j.results.Clear()
	j.counts = make(map[string]int)
	up := j.right.Pull()
	for {
		e, ok := up.Next()
		if !ok {
			break
		}
		j.rightStore.Add(indexedOf(j.rightKey(e.Record), e.Record))
	}
	scratch := zset.New[Pair[L, *R]]()
	lp := j.left.Pull()
	for {
		e, ok := lp.Next()
		if !ok {
			break
		}
		k := j.leftKey(e.Record)
		idx := indexedOf(k, e.Record)
		j.leftStore.Add(idx)
		ms := matches(j.rightStore, k)
		j.emitLeft(e.Record, ms, 1, scratch)
		j.counts[string(idx.rowKey)] = len(ms)
	}
	return refcountCursor(j.results.Clone().Iter())
}
