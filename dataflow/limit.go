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

// Limit maintains the top k rows of its input under a
// comparator (the k smallest). When deletions leave it
// below k it refills from upstream; the refill is the
// one place an operator re-reads its upstream inside
// push handling, and it assumes the upstream's natural
// pull order agrees with cmp (a sorted base connection
// or an OrderBy).
type Limit[T any] struct {
	out[T]
	src  Source[T]
	k    int
	cmp  func(a, b T) int
	topK *btree.Tree[T]
	last []T
}

// NewLimit attaches a Limit to src.
func NewLimit[T any](src Source[T], k int, cmp func(a, b T) int) (*Limit[T], error) {
	l := &Limit[T]{src: src, k: k, cmp: cmp, topK: btree.New(cmp)}
	if err := src.SetSink(l); err != nil {
		return nil, err
	}
	return l, nil
}

// handleAddition admits row if there is room, or if it
// ranks better than the current worst.
func (l *Limit[T]) handleAddition(row T) {
	if l.topK.Len() < l.k {
		l.topK.Add(row)
		return
	}
	worst, ok := l.topK.Max()
	if ok && l.cmp(row, worst) < 0 {
		l.topK.Delete(worst)
		l.topK.Add(row)
	}
}

// refill pulls upstream rows in order until the tree is
// full again or upstream exhausts.
func (l *Limit[T]) refill() {
	up := l.src.Pull()
	for l.topK.Len() < l.k {
		e, ok := up.Next()
		if !ok {
			return
		}
		if e.Weight <= 0 || l.topK.Has(e.Record) {
			continue
		}
		l.topK.Add(e.Record)
	}
}

func (l *Limit[T]) Push(cs *zset.ChangeSet[T]) {
	for _, e := range cs.MergeRecords().Entries() {
		if e.Weight > 0 {
			l.handleAddition(e.Record)
		} else {
			l.topK.Delete(e.Record)
		}
	}
	if l.topK.Len() < l.k {
		l.refill()
	}
	if l.topK.Len() > l.k {
		panic("dataflow: limit: state grew past k")
	}
	cur := l.topK.Clone().Iter().Values()
	diff := diffSorted(l.last, cur, l.cmp)
	l.last = cur
	l.emit(diff)
}

// diffSorted computes cur − old over two ascending
// snapshots sharing one comparator.
func diffSorted[T any](old, cur []T, cmp func(a, b T) int) *zset.ChangeSet[T] {
	out := zset.New[T]()
	i, j := 0, 0
	for i < len(old) && j < len(cur) {
		c := cmp(old[i], cur[j])
		switch {
		case c == 0:
			i++
			j++
		case c < 0:
			out.Append(old[i], -1)
			i++
		default:
			out.Append(cur[j], 1)
			j++
		}
	}
	for ; i < len(old); i++ {
		out.Append(old[i], -1)
	}
	for ; j < len(cur); j++ {
		out.Append(cur[j], 1)
	}
	return out
}

func (l *Limit[T]) Size() int { return l.topK.Len() }

// Pull lazily yields up to k rows from upstream,
// terminating the upstream read as soon as k rows have
// been seen, and rebuilds the operator state along the
// way.
func (l *Limit[T]) Pull() Cursor[T] {
	l.topK.Clear()
	l.last = nil
	up := l.src.Pull()
	n := 0
	done := false
	return cursorFunc[T](func() (zset.Entry[T], bool) {
		for n < l.k {
			e, ok := up.Next()
			if !ok {
				break
			}
			if e.Weight <= 0 || l.topK.Has(e.Record) {
				continue
			}
			l.topK.Add(e.Record)
			n++
			return zset.Entry[T]{Record: e.Record, Weight: 1}, true
		}
		if !done {
			done = true
			l.last = l.topK.Clone().Iter().Values()
		}
		return zset.Entry[T]{}, false
	})
}
