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

// Row is the record shape used by the column-addressed
// parts of the engine (base sources, projections,
// group-bys, aggregations). A missing column reads as
// nil. Everything else in the package is generic over an
// opaque record type compared only through
// caller-supplied total orders.
type Row map[string]any

// Source produces a stream of change-sets and supports a
// cold read of its current contents.
type Source[T any] interface {
	// Size is the best-effort current cardinality.
	// It is intended for diagnostics; fan-out points
	// may report approximations.
	Size() int

	// SetSink attaches the single downstream sink.
	// A second attachment fails with ErrSinkAlreadySet.
	SetSink(Sink[T]) error

	// Pull returns a lazy cursor over the current
	// materialized contents as (record, +1) entries in
	// the source's natural order. Abandoning the
	// cursor cancels the read.
	Pull() Cursor[T]

	// Disconnect detaches the sink if it is attached.
	// Idempotent.
	Disconnect(Sink[T])
}

// Sink consumes change-sets. Push is synchronous: it
// returns only after every transitive downstream effect
// has been applied.
type Sink[T any] interface {
	Push(cs *zset.ChangeSet[T])
}

// Cursor is a lazy sequence of weighted records.
type Cursor[T any] interface {
	// Next returns the next entry, or ok == false when
	// the sequence is exhausted.
	Next() (zset.Entry[T], bool)
}

// cursorFunc adapts a closure to a Cursor.
type cursorFunc[T any] func() (zset.Entry[T], bool)

func (f cursorFunc[T]) Next() (zset.Entry[T], bool) { return f() }

// emptyCursor yields nothing.
func emptyCursor[T any]() Cursor[T] {
	return cursorFunc[T](func() (zset.Entry[T], bool) {
		return zset.Entry[T]{}, false
	})
}

// treeCursor yields a tree's keys in iterator order,
// each with weight +1.
func treeCursor[T any](it *btree.Iter[T]) Cursor[T] {
	return cursorFunc[T](func() (zset.Entry[T], bool) {
		if !it.Next() {
			return zset.Entry[T]{}, false
		}
		return zset.Entry[T]{Record: it.Value(), Weight: 1}, true
	})
}

// sliceCursor yields the elements of a slice with
// weight +1.
func sliceCursor[T any](rows []T) Cursor[T] {
	i := 0
	return cursorFunc[T](func() (zset.Entry[T], bool) {
		if i >= len(rows) {
			return zset.Entry[T]{}, false
		}
		e := zset.Entry[T]{Record: rows[i], Weight: 1}
		i++
		return e, true
	})
}

// drain exhausts a cursor into a change-set.
func drain[T any](c Cursor[T]) *zset.ChangeSet[T] {
	out := zset.New[T]()
	for {
		e, ok := c.Next()
		if !ok {
			return out
		}
		out.Append(e.Record, e.Weight)
	}
}

// out is the exclusive downstream sink slot shared by
// every Source implementation in the package.
type out[T any] struct {
	sink Sink[T]
}

func (o *out[T]) SetSink(s Sink[T]) error {
	if o.sink != nil {
		return ErrSinkAlreadySet.New()
	}
	o.sink = s
	return nil
}

func (o *out[T]) Disconnect(s Sink[T]) {
	if o.sink == s {
		o.sink = nil
	}
}

// emit forwards a change-set downstream, suppressing
// empty pushes and pushes with no sink attached.
func (o *out[T]) emit(cs *zset.ChangeSet[T]) {
	if o.sink == nil || cs.IsEmpty() {
		return
	}
	o.sink.Push(cs)
}
