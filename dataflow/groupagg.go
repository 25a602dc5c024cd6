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

	"github.com/incrdb/incr/btree"
	"github.com/incrdb/incr/zset"
)

// rowIter is the lazy row sequence handed to a per-group
// compute function: either a group snapshot or a live
// inner tree.
type rowIter func() (Row, bool)

func sliceRows(rows []Row) rowIter {
	i := 0
	return func() (Row, bool) {
		if i >= len(rows) {
			return nil, false
		}
		r := rows[i]
		i++
		return r, true
	}
}

func treeRows(it *btree.Iter[Row]) rowIter {
	return func() (Row, bool) {
		if !it.Next() {
			return nil, false
		}
		return it.Value(), true
	}
}

// aggEntry is one group's current aggregate: the key
// tuple and the full row last emitted for it.
type aggEntry struct {
	kv      Row
	emitted Row
}

// rawPuller is implemented by GroupBy; aggregators use
// the live-tree channel when their upstream offers it
// and fall back to snapshot pulls behind a split.
type rawPuller interface {
	PullRaw() Cursor[RawGroup]
}

// GroupByAggregate maintains one aggregate row per live
// group. On a group change it recomputes that group's
// aggregate from the post-delta rows, retracts the old
// aggregate row and asserts the new one; groups that die
// or fail shouldKeep lose their entry. The emitted
// record is the group's key columns plus the aggregate
// under resultKey.
type GroupByAggregate struct {
	out[Row]
	src        Source[GroupRow]
	resultKey  string
	column     string
	compute    func(rows rowIter, column string) any
	shouldKeep func(value any, size int) bool
	state      *btree.Tree[aggEntry]
}

// NewGroupByAggregate attaches a custom per-group
// aggregator to a GroupBy (or a branch over one).
// shouldKeep nil keeps every non-empty group.
func NewGroupByAggregate(src Source[GroupRow], resultKey, column string, compute func(rows rowIter, column string) any, shouldKeep func(value any, size int) bool) (*GroupByAggregate, error) {
	if shouldKeep == nil {
		shouldKeep = func(any, int) bool { return true }
	}
	a := &GroupByAggregate{
		src:        src,
		resultKey:  resultKey,
		column:     column,
		compute:    compute,
		shouldKeep: shouldKeep,
	}
	a.state = btree.New(func(x, y aggEntry) int {
		return zset.CompareCanonical(x.kv, y.kv)
	})
	if err := src.SetSink(a); err != nil {
		return nil, err
	}
	return a, nil
}

// groupUpdate is the net effect of one delta on one
// group: its latest asserted rows, or death.
type groupUpdate struct {
	kv   Row
	rows []Row
	live bool
}

func (a *GroupByAggregate) Push(cs *zset.ChangeSet[GroupRow]) {
	seen := make(map[string]*groupUpdate)
	var order []*groupUpdate
	for _, e := range cs.Entries() {
		id := string(zset.Canonical(e.Record.KeyValues))
		u, ok := seen[id]
		if !ok {
			u = &groupUpdate{kv: e.Record.KeyValues}
			seen[id] = u
			order = append(order, u)
		}
		if e.Weight > 0 {
			u.rows = e.Record.Rows
			u.live = true
		} else {
			u.rows = nil
			u.live = false
		}
	}
	fwd := zset.New[Row]()
	for _, u := range order {
		a.applyGroup(u, fwd)
	}
	a.emit(fwd)
}

func (a *GroupByAggregate) applyGroup(u *groupUpdate, fwd *zset.ChangeSet[Row]) {
	probe := aggEntry{kv: u.kv}
	prev, had := a.state.Get(probe)
	if !u.live {
		if had {
			a.state.Delete(probe)
			fwd.Append(prev.emitted, -1)
		}
		return
	}
	val := a.compute(sliceRows(u.rows), a.column)
	if !a.shouldKeep(val, len(u.rows)) {
		if had {
			a.state.Delete(probe)
			fwd.Append(prev.emitted, -1)
		}
		return
	}
	emitted := u.kv.Clone()
	emitted[a.resultKey] = val
	if had && bytes.Equal(zset.Canonical(prev.emitted), zset.Canonical(emitted)) {
		return
	}
	a.state.Add(aggEntry{kv: u.kv, emitted: emitted})
	if had {
		fwd.Append(prev.emitted, -1)
	}
	fwd.Append(emitted, 1)
}

func (a *GroupByAggregate) Size() int { return a.state.Len() }

// Pull reconstructs the per-group aggregates, preferring
// the upstream's raw live-tree channel.
func (a *GroupByAggregate) Pull() Cursor[Row] {
	a.state.Clear()
	var rows []Row
	add := func(kv Row, it rowIter, size int) {
		val := a.compute(it, a.column)
		if !a.shouldKeep(val, size) {
			return
		}
		emitted := kv.Clone()
		emitted[a.resultKey] = val
		a.state.Add(aggEntry{kv: kv, emitted: emitted})
		rows = append(rows, emitted)
	}
	if raw, ok := a.src.(rawPuller); ok {
		up := raw.PullRaw()
		for {
			e, ok := up.Next()
			if !ok {
				break
			}
			g := e.Record
			add(g.KeyValues, treeRows(g.Rows.Iter()), g.Rows.Len())
		}
	} else {
		up := a.src.Pull()
		for {
			e, ok := up.Next()
			if !ok {
				break
			}
			g := e.Record
			add(g.KeyValues, sliceRows(g.Rows), len(g.Rows))
		}
	}
	return sliceCursor(rows)
}

// NewCountGroupBy counts each group's rows; with a
// non-empty column only rows with a non-nil value there
// count.
func NewCountGroupBy(src Source[GroupRow], column string) (*GroupByAggregate, error) {
	return NewGroupByAggregate(src, "count", column,
		func(rows rowIter, column string) any {
			n := 0
			for row, ok := rows(); ok; row, ok = rows() {
				if column == "" || row[column] != nil {
					n++
				}
			}
			return n
		}, nil)
}

// NewSumGroupBy sums a numeric column per group, nils
// skipped.
func NewSumGroupBy(src Source[GroupRow], column string) (*GroupByAggregate, error) {
	return NewGroupByAggregate(src, "sum", column,
		func(rows rowIter, column string) any {
			sum := 0.0
			for row, ok := rows(); ok; row, ok = rows() {
				v := row[column]
				if v == nil {
					continue
				}
				f, err := cast.ToFloat64E(v)
				if err != nil {
					panic(ErrValueType.New("sum("+column+")", v, v))
				}
				sum += f
			}
			return sum
		}, nil)
}

func extremumCompute(max bool) func(rows rowIter, column string) any {
	return func(rows rowIter, column string) any {
		var best any
		for row, ok := rows(); ok; row, ok = rows() {
			v := row[column]
			if v == nil {
				continue
			}
			if best == nil {
				best = v
				continue
			}
			c := CompareValues(v, best)
			if (max && c > 0) || (!max && c < 0) {
				best = v
			}
		}
		return best
	}
}

// NewMinGroupBy tracks the smallest non-nil value of a
// column per group; groups with no such value are
// dropped.
func NewMinGroupBy(src Source[GroupRow], column string) (*GroupByAggregate, error) {
	return NewGroupByAggregate(src, "min", column, extremumCompute(false),
		func(value any, _ int) bool { return value != nil })
}

// NewMaxGroupBy tracks the largest non-nil value of a
// column per group.
func NewMaxGroupBy(src Source[GroupRow], column string) (*GroupByAggregate, error) {
	return NewGroupByAggregate(src, "max", column, extremumCompute(true),
		func(value any, _ int) bool { return value != nil })
}

// NewArrayAggGroupBy collects a column's string values
// per group, in group row order.
func NewArrayAggGroupBy(src Source[GroupRow], column string) (*GroupByAggregate, error) {
	return NewGroupByAggregate(src, "array_agg", column,
		func(rows rowIter, column string) any {
			vals := []string{}
			for row, ok := rows(); ok; row, ok = rows() {
				v := row[column]
				if v == nil {
					continue
				}
				s, good := v.(string)
				if !good {
					panic(ErrValueType.New("array_agg("+column+")", v, v))
				}
				vals = append(vals, s)
			}
			return vals
		}, nil)
}

// NewJsonAggGroupBy collects a column's values per
// group, nils excluded.
func NewJsonAggGroupBy(src Source[GroupRow], column string) (*GroupByAggregate, error) {
	return NewGroupByAggregate(src, "json_agg", column,
		func(rows rowIter, column string) any {
			vals := []any{}
			for row, ok := rows(); ok; row, ok = rows() {
				if v := row[column]; v != nil {
					vals = append(vals, v)
				}
			}
			return vals
		}, nil)
}

// NewAvgGroupBy computes a per-group average as
// MultiRowCombine(sum, count) over two branches of the
// grouping.
func NewAvgGroupBy(g *GroupBy, column string) (*MultiRowCombine, error) {
	split, err := NewSplitStream[GroupRow](g)
	if err != nil {
		return nil, err
	}
	sum, err := NewSumGroupBy(split.Branch(), column)
	if err != nil {
		return nil, err
	}
	count, err := NewCountGroupBy(split.Branch(), column)
	if err != nil {
		return nil, err
	}
	return NewMultiRowCombine(sum, count, []string{"sum", "count"}, func(l, r Row) Row {
		out := l.Clone()
		delete(out, "sum")
		s := cast.ToFloat64(l["sum"])
		c := cast.ToInt(r["count"])
		if c > 0 {
			out["avg"] = s / float64(c)
		} else {
			out["avg"] = nil
		}
		return out
	})
}
