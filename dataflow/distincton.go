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

// keyGroup is the per-key state of a DistinctOn: every
// live row sharing the key, ordered by the row
// comparator. The emitted row for the key is the
// ordering's minimum.
type keyGroup[T any] struct {
	key  any
	rows *btree.Tree[T]
}

// DistinctOn keeps one "best" row per extracted key.
// The best row is the minimum under rowCmp; when it is
// deleted, the next-best row is promoted automatically.
// This differs from SQL's snapshot DISTINCT ON: the
// output tracks the live best continuously rather than
// freezing a choice.
type DistinctOn[T any] struct {
	out[T]
	src    Source[T]
	keyOf  func(T) any
	keyCmp func(a, b any) int
	rowCmp func(a, b T) int
	state  *btree.Tree[*keyGroup[T]]
}

// NewDistinctOn attaches a DistinctOn to src. keyCmp nil
// defaults to CompareValues; rowCmp nil defaults to
// canonical-serialization order.
func NewDistinctOn[T any](src Source[T], keyOf func(T) any, keyCmp func(a, b any) int, rowCmp func(a, b T) int) (*DistinctOn[T], error) {
	if keyCmp == nil {
		keyCmp = CompareValues
	}
	if rowCmp == nil {
		rowCmp = func(a, b T) int { return zset.CompareCanonical(a, b) }
	}
	d := &DistinctOn[T]{src: src, keyOf: keyOf, keyCmp: keyCmp, rowCmp: rowCmp}
	d.state = btree.New(func(a, b *keyGroup[T]) int { return keyCmp(a.key, b.key) })
	if err := src.SetSink(d); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *DistinctOn[T]) group(key any) (*keyGroup[T], bool) {
	return d.state.Get(&keyGroup[T]{key: key})
}

func (d *DistinctOn[T]) apply(e zset.Entry[T], fwd *zset.ChangeSet[T]) {
	key := d.keyOf(e.Record)
	g, ok := d.group(key)
	if e.Weight > 0 {
		if !ok {
			g = &keyGroup[T]{key: key, rows: btree.New(d.rowCmp)}
			g.rows.Add(e.Record)
			d.state.Add(g)
			fwd.Append(e.Record, 1)
			return
		}
		oldBest, _ := g.rows.Min()
		g.rows.Add(e.Record)
		newBest, _ := g.rows.Min()
		if d.rowCmp(oldBest, newBest) != 0 {
			fwd.Append(oldBest, -1)
			fwd.Append(newBest, 1)
		}
		return
	}
	if !ok {
		return
	}
	oldBest, _ := g.rows.Min()
	if !g.rows.Delete(e.Record) {
		return
	}
	if g.rows.Len() == 0 {
		d.state.Delete(g)
		fwd.Append(oldBest, -1)
		return
	}
	newBest, _ := g.rows.Min()
	if d.rowCmp(oldBest, newBest) != 0 {
		fwd.Append(oldBest, -1)
		fwd.Append(newBest, 1)
	}
}

func (d *DistinctOn[T]) Push(cs *zset.ChangeSet[T]) {
	fwd := zset.New[T]()
	for _, e := range cs.Entries() {
		d.apply(e, fwd)
	}
	d.emit(fwd)
}

func (d *DistinctOn[T]) Size() int { return d.state.Len() }

// Pull reconstructs the per-key groups from upstream and
// yields the best row of each key in key order.
func (d *DistinctOn[T]) Pull() Cursor[T] {
	d.state.Clear()
	scratch := zset.New[T]()
	up := d.src.Pull()
	for {
		e, ok := up.Next()
		if !ok {
			break
		}
		d.apply(e, scratch)
	}
	it := d.state.Clone().Iter()
	return cursorFunc[T](func() (zset.Entry[T], bool) {
		if !it.Next() {
			return zset.Entry[T]{}, false
		}
		best, _ := it.Value().rows.Min()
		return zset.Entry[T]{Record: best, Weight: 1}, true
	})
}
