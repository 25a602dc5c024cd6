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

// refcounted pairs a row with its reference count.
type refcounted[T any] struct {
	row   T
	count int
}

// Distinct collapses the input multiset to a set: a row
// enters the output when its reference count becomes
// positive and leaves it when the count returns to zero.
type Distinct[T any] struct {
	out[T]
	src  Source[T]
	cmp  func(a, b T) int
	refs *btree.Tree[refcounted[T]]
}

// NewDistinct attaches a Distinct to src. Rows are
// identified by cmp.
func NewDistinct[T any](src Source[T], cmp func(a, b T) int) (*Distinct[T], error) {
	d := &Distinct[T]{src: src, cmp: cmp}
	d.refs = btree.New(func(a, b refcounted[T]) int { return cmp(a.row, b.row) })
	if err := src.SetSink(d); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Distinct[T]) Push(cs *zset.ChangeSet[T]) {
	fwd := zset.New[T]()
	for _, e := range cs.Entries() {
		probe := refcounted[T]{row: e.Record}
		prev, ok := d.refs.Get(probe)
		if !ok {
			if e.Weight > 0 {
				d.refs.Add(refcounted[T]{row: e.Record, count: e.Weight})
				fwd.Append(e.Record, 1)
			}
			// a deletion of a row never seen is ignored
			continue
		}
		next := prev.count + e.Weight
		switch {
		case next == 0:
			d.refs.Delete(probe)
			fwd.Append(prev.row, -1)
		case next < 0:
			Log.Warnf("dataflow: distinct: reference count for %v went negative (%d)", e.Record, next)
			d.refs.Add(refcounted[T]{row: prev.row, count: next})
			if prev.count > 0 {
				fwd.Append(prev.row, -1)
			}
		case prev.count <= 0:
			// resurfacing after a negative excursion
			d.refs.Add(refcounted[T]{row: prev.row, count: next})
			fwd.Append(prev.row, 1)
		default:
			d.refs.Add(refcounted[T]{row: prev.row, count: next})
		}
	}
	d.emit(fwd)
}

func (d *Distinct[T]) Size() int { return d.refs.Len() }

// Pull reconstructs the reference counts from upstream
// and yields each unique row once.
func (d *Distinct[T]) Pull() Cursor[T] {
	d.refs.Clear()
	up := d.src.Pull()
	for {
		e, ok := up.Next()
		if !ok {
			break
		}
		probe := refcounted[T]{row: e.Record}
		if prev, ok := d.refs.Get(probe); ok {
			d.refs.Add(refcounted[T]{row: prev.row, count: prev.count + e.Weight})
		} else {
			d.refs.Add(refcounted[T]{row: e.Record, count: e.Weight})
		}
	}
	it := d.refs.Clone().Iter()
	return cursorFunc[T](func() (zset.Entry[T], bool) {
		for it.Next() {
			if rc := it.Value(); rc.count > 0 {
				return zset.Entry[T]{Record: rc.row, Weight: 1}, true
			}
		}
		return zset.Entry[T]{}, false
	})
}
