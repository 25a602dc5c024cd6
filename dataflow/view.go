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
	"github.com/google/uuid"

	"github.com/incrdb/incr/btree"
	"github.com/incrdb/incr/zset"
)

// View materializes the far end of a pipeline into a
// duplicate-preserving ordered sequence. Rows are
// refcounted under the view's comparator, so a
// non-injective upstream faithfully reproduces its
// duplicates. Subscribers are notified with the full
// current snapshot after every delta.
type View[T any] struct {
	src   Source[T]
	cmp   func(a, b T) int
	state *btree.Tree[refcounted[T]]
	subs  []subscriber[T]
}

type subscriber[T any] struct {
	id uuid.UUID
	cb func([]T)
}

// NewView attaches a View to src. cmp orders the
// materialized output and defines row equality for
// multiplicity tracking.
func NewView[T any](src Source[T], cmp func(a, b T) int) (*View[T], error) {
	v := &View[T]{src: src, cmp: cmp}
	v.state = btree.New(func(a, b refcounted[T]) int { return cmp(a.row, b.row) })
	if err := src.SetSink(v); err != nil {
		return nil, err
	}
	return v, nil
}

// apply folds one weighted record into the multiplicity
// tree.
func (v *View[T]) apply(rec T, w int) {
	if w == 0 {
		return
	}
	probe := refcounted[T]{row: rec}
	n := w
	if prev, ok := v.state.Get(probe); ok {
		n += prev.count
	}
	switch {
	case n > 0:
		v.state.Add(refcounted[T]{row: rec, count: n})
	case n == 0:
		v.state.Delete(probe)
	default:
		Log.Warnf("dataflow: view: multiplicity for %v went negative (%d)", rec, n)
		v.state.Delete(probe)
	}
}

// Materialize clears the view and cold-pulls the
// upstream, returning the rebuilt snapshot.
func (v *View[T]) Materialize() []T {
	v.state.Clear()
	up := v.src.Pull()
	for {
		e, ok := up.Next()
		if !ok {
			break
		}
		v.apply(e.Record, e.Weight)
	}
	return v.CurrentState()
}

// CurrentState returns the current snapshot without
// re-pulling: each row repeated per its multiplicity, in
// comparator order.
func (v *View[T]) CurrentState() []T {
	out := make([]T, 0, v.state.Len())
	it := v.state.Clone().Iter()
	for it.Next() {
		rc := it.Value()
		for i := 0; i < rc.count; i++ {
			out = append(out, rc.row)
		}
	}
	return out
}

// Push folds a delta into the materialized state and
// notifies every subscriber with the new snapshot.
// Subscribers must not mutate this view's base sources
// from within the callback.
func (v *View[T]) Push(cs *zset.ChangeSet[T]) {
	for _, e := range cs.Entries() {
		v.apply(e.Record, e.Weight)
	}
	if len(v.subs) == 0 {
		return
	}
	snap := v.CurrentState()
	for _, s := range v.subs {
		s.cb(snap)
	}
}

// Subscribe registers a callback, invokes it immediately
// with the current snapshot, and returns its unsubscribe
// function.
func (v *View[T]) Subscribe(cb func([]T)) func() {
	id := uuid.New()
	v.subs = append(v.subs, subscriber[T]{id: id, cb: cb})
	cb(v.CurrentState())
	return func() {
		for i := range v.subs {
			if v.subs[i].id == id {
				v.subs = append(v.subs[:i], v.subs[i+1:]...)
				return
			}
		}
	}
}

// Disconnect detaches from the upstream and drops all
// state and subscribers.
func (v *View[T]) Disconnect() {
	v.src.Disconnect(v)
	v.state.Clear()
	v.subs = nil
}
