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

	"github.com/spf13/cast"
	"golang.org/x/exp/slices"

	"github.com/incrdb/incr/btree"
	"github.com/incrdb/incr/zset"
)

// The scalar aggregators consume a stream of Rows and
// emit their single aggregate value as the record. Every
// observable change emits a retraction of the old value
// and an assertion of the new one.

// Count maintains a running row count. With a column it
// counts only rows whose value in that column is
// non-nil.
type Count struct {
	out[int]
	src    Source[Row]
	column string
	count  int
}

// NewCount attaches a Count to src. column may be empty
// to count all rows.
func NewCount(src Source[Row], column string) (*Count, error) {
	c := &Count{src: src, column: column}
	if err := src.SetSink(c); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Count) counted(row Row) bool {
	return c.column == "" || row[c.column] != nil
}

func (c *Count) Push(cs *zset.ChangeSet[Row]) {
	old := c.count
	for _, e := range cs.Entries() {
		if c.counted(e.Record) {
			c.count += e.Weight
		}
	}
	if c.count == old {
		return
	}
	c.emit(zset.Of(
		zset.Entry[int]{Record: old, Weight: -1},
		zset.Entry[int]{Record: c.count, Weight: 1},
	))
}

func (c *Count) Size() int { return 1 }

func (c *Count) Pull() Cursor[int] {
	c.count = 0
	up := c.src.Pull()
	for {
		e, ok := up.Next()
		if !ok {
			break
		}
		if c.counted(e.Record) {
			c.count += e.Weight
		}
	}
	return sliceCursor([]int{c.count})
}

// Sum maintains a running sum over a numeric column.
// Nil values are skipped; a non-nil value that is not a
// number is a caller contract violation.
type Sum struct {
	out[float64]
	src    Source[Row]
	column string
	sum    float64
}

// NewSum attaches a Sum to src.
func NewSum(src Source[Row], column string) (*Sum, error) {
	s := &Sum{src: src, column: column}
	if err := src.SetSink(s); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Sum) value(row Row) (float64, bool) {
	v := row[s.column]
	if v == nil {
		return 0, false
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		panic(ErrValueType.New("sum("+s.column+")", v, v))
	}
	return f, true
}

func (s *Sum) Push(cs *zset.ChangeSet[Row]) {
	old := s.sum
	for _, e := range cs.Entries() {
		if f, ok := s.value(e.Record); ok {
			s.sum += f * float64(e.Weight)
		}
	}
	if s.sum == old {
		return
	}
	s.emit(zset.Of(
		zset.Entry[float64]{Record: old, Weight: -1},
		zset.Entry[float64]{Record: s.sum, Weight: 1},
	))
}

func (s *Sum) Size() int { return 1 }

func (s *Sum) Pull() Cursor[float64] {
	s.sum = 0
	up := s.src.Pull()
	for {
		e, ok := up.Next()
		if !ok {
			break
		}
		if f, ok := s.value(e.Record); ok {
			s.sum += f * float64(e.Weight)
		}
	}
	return sliceCursor([]float64{s.sum})
}

// Extremum is the shared machinery of Min and Max: the
// source rows ordered by the aggregated column, with the
// aggregate read off the tree's boundary.
type Extremum struct {
	out[any]
	src    Source[Row]
	column string
	name   string
	max    bool
	rows   *btree.Tree[Row]
}

func newExtremum(src Source[Row], column, name string, max bool) (*Extremum, error) {
	x := &Extremum{
		src:    src,
		column: column,
		name:   name,
		max:    max,
		rows:   btree.New(CompareRowsBy(column)),
	}
	if err := src.SetSink(x); err != nil {
		return nil, err
	}
	return x, nil
}

// NewMin attaches a Min aggregator over column to src.
// It emits the smallest non-nil value of the column.
func NewMin(src Source[Row], column string) (*Extremum, error) {
	return newExtremum(src, column, "min", false)
}

// NewMax attaches a Max aggregator over column to src.
func NewMax(src Source[Row], column string) (*Extremum, error) {
	return newExtremum(src, column, "max", true)
}

// current returns the boundary value, if any rows exist.
func (x *Extremum) current() (any, bool) {
	var row Row
	var ok bool
	if x.max {
		row, ok = x.rows.Max()
	} else {
		row, ok = x.rows.Min()
	}
	if !ok {
		return nil, false
	}
	return row[x.column], true
}

func (x *Extremum) Push(cs *zset.ChangeSet[Row]) {
	old, hadOld := x.current()
	for _, e := range cs.Entries() {
		if e.Record[x.column] == nil {
			continue
		}
		if e.Weight > 0 {
			x.rows.Add(e.Record)
		} else if e.Weight < 0 {
			x.rows.Delete(e.Record)
		}
	}
	next, hasNext := x.current()
	if hadOld == hasNext && CompareValues(old, next) == 0 {
		return
	}
	fwd := zset.New[any]()
	if hadOld {
		fwd.Append(old, -1)
	}
	if hasNext {
		fwd.Append(next, 1)
	}
	x.emit(fwd)
}

func (x *Extremum) Size() int {
	if x.rows.Len() == 0 {
		return 0
	}
	return 1
}

func (x *Extremum) Pull() Cursor[any] {
	x.rows.Clear()
	up := x.src.Pull()
	for {
		e, ok := up.Next()
		if !ok {
			break
		}
		if e.Record[x.column] == nil {
			continue
		}
		if e.Weight > 0 {
			x.rows.Add(e.Record)
		}
	}
	if v, ok := x.current(); ok {
		return sliceCursor([]any{v})
	}
	return emptyCursor[any]()
}

// ArrayAgg collects the string values of a column in
// source insertion order. A non-nil value that is not a
// string is a caller contract violation.
type ArrayAgg struct {
	out[[]string]
	src    Source[Row]
	column string
	values []string
}

// NewArrayAgg attaches an ArrayAgg to src.
func NewArrayAgg(src Source[Row], column string) (*ArrayAgg, error) {
	a := &ArrayAgg{src: src, column: column}
	if err := src.SetSink(a); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *ArrayAgg) value(row Row) (string, bool) {
	v := row[a.column]
	if v == nil {
		return "", false
	}
	s, ok := v.(string)
	if !ok {
		panic(ErrValueType.New("array_agg("+a.column+")", v, v))
	}
	return s, true
}

func (a *ArrayAgg) apply(row Row, w int) {
	s, ok := a.value(row)
	if !ok {
		return
	}
	for ; w > 0; w-- {
		a.values = append(a.values, s)
	}
	for ; w < 0; w++ {
		if i := slices.Index(a.values, s); i >= 0 {
			a.values = append(a.values[:i], a.values[i+1:]...)
		}
	}
}

func (a *ArrayAgg) Push(cs *zset.ChangeSet[Row]) {
	old := slices.Clone(a.values)
	for _, e := range cs.Entries() {
		a.apply(e.Record, e.Weight)
	}
	if slices.Equal(old, a.values) {
		return
	}
	a.emit(zset.Of(
		zset.Entry[[]string]{Record: old, Weight: -1},
		zset.Entry[[]string]{Record: slices.Clone(a.values), Weight: 1},
	))
}

func (a *ArrayAgg) Size() int { return 1 }

func (a *ArrayAgg) Pull() Cursor[[]string] {
	a.values = nil
	up := a.src.Pull()
	for {
		e, ok := up.Next()
		if !ok {
			break
		}
		a.apply(e.Record, e.Weight)
	}
	return sliceCursor([][]string{slices.Clone(a.values)})
}

// JsonAgg collects one JSON value per row in source
// insertion order: a single column's value, an object of
// named columns, or an aliased object. In the
// single-column form a row with a nil value contributes
// nothing; the object forms contribute one object per
// row, which is empty when all its columns are nil.
type JsonAgg struct {
	out[[]any]
	src     Source[Row]
	extract func(Row) (any, bool)
	values  []any
}

func newJsonAgg(src Source[Row], extract func(Row) (any, bool)) (*JsonAgg, error) {
	j := &JsonAgg{src: src, extract: extract}
	if err := src.SetSink(j); err != nil {
		return nil, err
	}
	return j, nil
}

// NewJsonAgg aggregates a single column's values,
// excluding nils.
func NewJsonAgg(src Source[Row], column string) (*JsonAgg, error) {
	return newJsonAgg(src, func(row Row) (any, bool) {
		v := row[column]
		return v, v != nil
	})
}

// NewJsonAggColumns aggregates an object per row holding
// the named columns; nil-valued columns are omitted.
func NewJsonAggColumns(src Source[Row], columns []string) (*JsonAgg, error) {
	return newJsonAgg(src, func(row Row) (any, bool) {
		obj := make(Row, len(columns))
		for _, col := range columns {
			if v := row[col]; v != nil {
				obj[col] = v
			}
		}
		return obj, true
	})
}

// NewJsonAggAliased aggregates an object per row mapping
// each alias to its column's value; nil-valued columns
// are omitted.
func NewJsonAggAliased(src Source[Row], aliases map[string]string) (*JsonAgg, error) {
	return newJsonAgg(src, func(row Row) (any, bool) {
		obj := make(Row, len(aliases))
		for alias, col := range aliases {
			if v := row[col]; v != nil {
				obj[alias] = v
			}
		}
		return obj, true
	})
}

func (j *JsonAgg) apply(row Row, w int) {
	v, ok := j.extract(row)
	if !ok {
		return
	}
	for ; w > 0; w-- {
		j.values = append(j.values, v)
	}
	raw := zset.Canonical(v)
	for ; w < 0; w++ {
		for i := range j.values {
			if bytes.Equal(zset.Canonical(j.values[i]), raw) {
				j.values = append(j.values[:i], j.values[i+1:]...)
				break
			}
		}
	}
}

func (j *JsonAgg) Push(cs *zset.ChangeSet[Row]) {
	old := slices.Clone(j.values)
	for _, e := range cs.Entries() {
		j.apply(e.Record, e.Weight)
	}
	if bytes.Equal(zset.Canonical(old), zset.Canonical(j.values)) {
		return
	}
	j.emit(zset.Of(
		zset.Entry[[]any]{Record: old, Weight: -1},
		zset.Entry[[]any]{Record: slices.Clone(j.values), Weight: 1},
	))
}

func (j *JsonAgg) Size() int { return 1 }

func (j *JsonAgg) Pull() Cursor[[]any] {
	j.values = nil
	up := j.src.Pull()
	for {
		e, ok := up.Next()
		if !ok {
			break
		}
		j.apply(e.Record, e.Weight)
	}
	return sliceCursor([][]any{slices.Clone(j.values)})
}

// NewAvg composes Sum and Count over a SplitStream and
// merges them through a Combine into {"avg": sum/count},
// or a nil average for an empty input.
func NewAvg(src Source[Row], column string) (*Combine[float64, int, Row], error) {
	split, err := NewSplitStream(src)
	if err != nil {
		return nil, err
	}
	sum, err := NewSum(split.Branch(), column)
	if err != nil {
		return nil, err
	}
	count, err := NewCount(split.Branch(), column)
	if err != nil {
		return nil, err
	}
	return NewCombine[float64, int, Row](sum, count, func(s float64, c int) Row {
		if c > 0 {
			return Row{"avg": s / float64(c)}
		}
		return Row{"avg": nil}
	})
}
