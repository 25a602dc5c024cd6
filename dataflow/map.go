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

// Map applies a transform to every record, 1-to-1,
// preserving weights.
type Map[I, O any] struct {
	out[O]
	src Source[I]
	fn  func(I) O
}

// NewMap attaches a Map to src.
func NewMap[I, O any](src Source[I], fn func(I) O) (*Map[I, O], error) {
	m := &Map[I, O]{src: src, fn: fn}
	if err := src.SetSink(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Map[I, O]) Push(cs *zset.ChangeSet[I]) {
	fwd := zset.New[O]()
	for _, e := range cs.Entries() {
		fwd.Append(m.fn(e.Record), e.Weight)
	}
	m.emit(fwd)
}

func (m *Map[I, O]) Size() int { return m.src.Size() }

func (m *Map[I, O]) Pull() Cursor[O] {
	up := m.src.Pull()
	return cursorFunc[O](func() (zset.Entry[O], bool) {
		e, ok := up.Next()
		if !ok {
			return zset.Entry[O]{}, false
		}
		return zset.Entry[O]{Record: m.fn(e.Record), Weight: e.Weight}, true
	})
}

// Project builds an output Row from named extractors.
// A non-injective projection produces duplicates, which
// flow downstream as separate weighted entries unless a
// Distinct follows.
type Project[T any] struct {
	out[Row]
	src  Source[T]
	cols map[string]func(T) any
}

// NewProject attaches a Project to src. cols maps each
// output column name to its extractor.
func NewProject[T any](src Source[T], cols map[string]func(T) any) (*Project[T], error) {
	p := &Project[T]{src: src, cols: cols}
	if err := src.SetSink(p); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Project[T]) apply(rec T) Row {
	row := make(Row, len(p.cols))
	for name, extract := range p.cols {
		row[name] = extract(rec)
	}
	return row
}

func (p *Project[T]) Push(cs *zset.ChangeSet[T]) {
	fwd := zset.New[Row]()
	for _, e := range cs.Entries() {
		fwd.Append(p.apply(e.Record), e.Weight)
	}
	p.emit(fwd)
}

func (p *Project[T]) Size() int { return p.src.Size() }

func (p *Project[T]) Pull() Cursor[Row] {
	up := p.src.Pull()
	return cursorFunc[Row](func() (zset.Entry[Row], bool) {
		e, ok := up.Next()
		if !ok {
			return zset.Entry[Row]{}, false
		}
		return zset.Entry[Row]{Record: p.apply(e.Record), Weight: e.Weight}, true
	})
}
