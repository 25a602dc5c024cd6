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
	"github.com/incrdb/incr/zset"
)

// Filter forwards only the records satisfying a
// predicate. The predicate must be pure: it is applied
// to insertions and deletions alike, and a row's verdict
// must not change between them.
type Filter[T any] struct {
	out[T]
	src  Source[T]
	pred func(T) bool
}

// NewFilter attaches a Filter to src.
func NewFilter[T any](src Source[T], pred func(T) bool) (*Filter[T], error) {
	f := &Filter[T]{src: src, pred: pred}
	if err := src.SetSink(f); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *Filter[T]) Push(cs *zset.ChangeSet[T]) {
	fwd := zset.New[T]()
	for _, e := range cs.Entries() {
		if f.pred(e.Record) {
			fwd.Append(e.Record, e.Weight)
		}
	}
	f.emit(fwd)
}

func (f *Filter[T]) Size() int { return f.src.Size() }

func (f *Filter[T]) Pull() Cursor[T] {
	up := f.src.Pull()
	return cursorFunc[T](func() (zset.Entry[T], bool) {
		for {
			e, ok := up.Next()
			if !ok {
				return zset.Entry[T]{}, false
			}
			if f.pred(e.Record) {
				return e, true
			}
		}
	})
}
