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

	"golang.org/x/exp/slices"

	"github.com/incrdb/incr/zset"
)

// Combine pairs two single-row upstreams (scalar
// aggregators) into one output row. A push from either
// side absorbs that side's latest value and recomputes
// the merger; the old result is retracted and the new
// one asserted whenever they differ. Because the two
// sides of a split update one after the other, a single
// base mutation may surface briefly as two half-updated
// results before settling.
type Combine[L, R, O any] struct {
	out[O]
	left  Source[L]
	right Source[R]
	merge func(L, R) O
	lval  L
	rval  R
	cur   O
	has   bool
}

// NewCombine attaches a Combine to both upstreams.
func NewCombine[L, R, O any](left Source[L], right Source[R], merge func(L, R) O) (*Combine[L, R, O], error) {
	c := &Combine[L, R, O]{left: left, right: right, merge: merge}
	if err := left.SetSink(combineLeft[L, R, O]{c}); err != nil {
		return nil, err
	}
	if err := right.SetSink(combineRight[L, R, O]{c}); err != nil {
		return nil, err
	}
	return c, nil
}

type combineLeft[L, R, O any] struct{ c *Combine[L, R, O] }

func (p combineLeft[L, R, O]) Push(cs *zset.ChangeSet[L]) {
	if v, ok := lastPositive(cs); ok {
		p.c.lval = v
		p.c.recompute()
	}
}

type combineRight[L, R, O any] struct{ c *Combine[L, R, O] }

func (p combineRight[L, R, O]) Push(cs *zset.ChangeSet[R]) {
	if v, ok := lastPositive(cs); ok {
		p.c.rval = v
		p.c.recompute()
	}
}

// lastPositive returns the record of the last
// positive-weight entry: the asserted value of a
// retract/assert pair.
func lastPositive[T any](cs *zset.ChangeSet[T]) (T, bool) {
	entries := cs.Entries()
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Weight > 0 {
			return entries[i].Record, true
		}
	}
	var zero T
	return zero, false
}

func (c *Combine[L, R, O]) recompute() {
	old, had := c.cur, c.has
	c.cur = c.merge(c.lval, c.rval)
	c.has = true
	if had && zset.CompareCanonical(old, c.cur) == 0 {
		return
	}
	fwd := zset.New[O]()
	if had {
		fwd.Append(old, -1)
	}
	fwd.Append(c.cur, 1)
	c.emit(fwd)
}

func (c *Combine[L, R, O]) Size() int { return 1 }

// Pull initializes both sides from their upstream pulls
// and yields the merged result.
func (c *Combine[L, R, O]) Pull() Cursor[O] {
	if v, ok := lastPositive(drain(c.left.Pull())); ok {
		c.lval = v
	}
	if v, ok := lastPositive(drain(c.right.Pull())); ok {
		c.rval = v
	}
	c.cur = c.merge(c.lval, c.rval)
	c.has = true
	return sliceCursor([]O{c.cur})
}

// MultiRowCombine merges two keyed multi-row upstreams
// (per-group aggregators) row by row. A row's key is its
// canonical serialization with the aggregate value
// columns stripped; the merger runs for keys present on
// both sides and keys present on only one side are
// omitted.
type MultiRowCombine struct {
	out[Row]
	left      Source[Row]
	right     Source[Row]
	valueCols []string
	merge     func(l, r Row) Row
	leftRows  map[string]Row
	rightRows map[string]Row
	results   map[string]Row
}

// NewMultiRowCombine attaches a MultiRowCombine to both
// upstreams. valueCols names the aggregate columns
// excluded from the pairing key.
func NewMultiRowCombine(left, right Source[Row], valueCols []string, merge func(l, r Row) Row) (*MultiRowCombine, error) {
	m := &MultiRowCombine{
		left:      left,
		right:     right,
		valueCols: valueCols,
		merge:     merge,
		leftRows:  make(map[string]Row),
		rightRows: make(map[string]Row),
		results:   make(map[string]Row),
	}
	if err := left.SetSink(multiLeft{m}); err != nil {
		return nil, err
	}
	if err := right.SetSink(multiRight{m}); err != nil {
		return nil, err
	}
	return m, nil
}

type multiLeft struct{ m *MultiRowCombine }

func (p multiLeft) Push(cs *zset.ChangeSet[Row]) { p.m.push(cs, p.m.leftRows) }

type multiRight struct{ m *MultiRowCombine }

func (p multiRight) Push(cs *zset.ChangeSet[Row]) { p.m.push(cs, p.m.rightRows) }

// key strips the aggregate columns and canonicalizes
// what remains.
func (m *MultiRowCombine) key(row Row) string {
	stripped := row.Clone()
	for _, col := range m.valueCols {
		delete(stripped, col)
	}
	return string(zset.Canonical(stripped))
}

func (m *MultiRowCombine) push(cs *zset.ChangeSet[Row], side map[string]Row) {
	affected := make(map[string]struct{})
	for _, e := range cs.Entries() {
		k := m.key(e.Record)
		affected[k] = struct{}{}
		if e.Weight > 0 {
			side[k] = e.Record
		} else if prev, ok := side[k]; ok && bytes.Equal(zset.Canonical(prev), zset.Canonical(e.Record)) {
			delete(side, k)
		}
	}
	fwd := zset.New[Row]()
	for k := range affected {
		m.recompute(k, fwd)
	}
	m.emit(fwd)
}

func (m *MultiRowCombine) recompute(k string, fwd *zset.ChangeSet[Row]) {
	old, had := m.results[k]
	l, lok := m.leftRows[k]
	r, rok := m.rightRows[k]
	if !lok || !rok {
		if had {
			delete(m.results, k)
			fwd.Append(old, -1)
		}
		return
	}
	next := m.merge(l, r)
	m.results[k] = next
	if had && bytes.Equal(zset.Canonical(old), zset.Canonical(next)) {
		return
	}
	if had {
		fwd.Append(old, -1)
	}
	fwd.Append(next, 1)
}

func (m *MultiRowCombine) Size() int { return len(m.results) }

// Pull initializes both sides from upstream and yields
// the merged rows in key order.
func (m *MultiRowCombine) Pull() Cursor[Row] {
	m.leftRows = make(map[string]Row)
	m.rightRows = make(map[string]Row)
	m.results = make(map[string]Row)
	up := m.left.Pull()
	for {
		e, ok := up.Next()
		if !ok {
			break
		}
		if e.Weight > 0 {
			m.leftRows[m.key(e.Record)] = e.Record
		}
	}
	up2 := m.right.Pull()
	for {
		e, ok := up2.Next()
		if !ok {
			break
		}
		if e.Weight > 0 {
			m.rightRows[m.key(e.Record)] = e.Record
		}
	}
	scratch := zset.New[Row]()
	for k := range m.leftRows {
		if _, ok := m.rightRows[k]; ok {
			m.recompute(k, scratch)
		}
	}
	keys := make([]string, 0, len(m.results))
	for k := range m.results {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	rows := make([]Row, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, m.results[k])
	}
	return sliceCursor(rows)
}
