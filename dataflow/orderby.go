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

// OrderBy maintains its input ordered under a
// comparator. Pushes flow through unmodified; the
// ordering is observable through Pull, which yields rows
// ascending. The comparator must distinguish distinct
// rows or they collapse.
type OrderBy[T any] struct {
	out[T]
	src  Source[T]
	tree *btree.Tree[T]
}

// NewOrderBy attaches an OrderBy to src.
func NewOrderBy[T any](src Source[T], cmp func(a, b T) int) (*OrderBy[T], error) {
	o := &OrderBy[T]{src: src, tree: btree.New(cmp)}
	if err := src.SetSink(o); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *OrderBy[T]) Push(cs *zset.ChangeSet[T]) {
	for _, e := range cs.Entries() {
		if e.Weight > 0 {
			if DebugChecks && o.tree.Has(e.Record) {
				prev, _ := o.tree.Get(e.Record)
				warnReplaced("orderby", prev, e.Record)
			}
			o.tree.Add(e.Record)
		} else if e.Weight < 0 {
			o.tree.Delete(e.Record)
		}
	}
	o.emit(cs)
}

func (o *OrderBy[T]) Size() int { return o.tree.Len() }

// Pull reconstructs the ordered state from upstream and
// yields it ascending.
func (o *OrderBy[T]) Pull() Cursor[T] {
	o.tree.Clear()
	up := o.src.Pull()
	for {
		e, ok := up.Next()
		if !ok {
			break
		}
		if e.Weight > 0 {
			o.tree.Add(e.Record)
		}
	}
	return treeCursor(o.tree.Clone().Iter())
}
