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

	"github.com/incrdb/incr/btree"
	"github.com/incrdb/incr/zset"
)

// GroupRow is the record emitted by GroupBy: the group's
// key columns, their values, and a snapshot of the
// group's rows. A retraction names the group through
// KeyValues with a nil Rows sentinel; downstream
// consumers identify groups by KeyValues alone.
type GroupRow struct {
	Keys      []string
	KeyValues Row
	Rows      []Row
}

// RawGroup is the live representation served by
// GroupBy.PullRaw: the group's key values plus its inner
// row tree, consumed directly by per-group aggregators.
type RawGroup struct {
	Keys      []string
	KeyValues Row
	Rows      *btree.Tree[Row]
}

// CompareGroupRows orders GroupRows by their key value
// tuple; it is the natural comparator for sinks fed by
// GroupBy.
func CompareGroupRows(a, b GroupRow) int {
	for _, col := range a.Keys {
		if c := CompareValues(a.KeyValues[col], b.KeyValues[col]); c != 0 {
			return c
		}
	}
	return 0
}

// groupState is one live group.
type groupState struct {
	kv   Row
	rows *btree.Tree[Row]
}

// GroupBy partitions rows by the values of a column
// tuple. After any change to a group it retracts the old
// group value (empty-rows sentinel) and asserts the new
// one; a group whose last row disappears is retracted
// without a new assertion. rowCmp orders each group's
// inner tree and must distinguish distinct rows
// (typically via a primary-key tie-break); nil defaults
// to canonical-serialization order.
type GroupBy struct {
	out[GroupRow]
	src     Source[Row]
	keyCols []string
	rowCmp  func(a, b Row) int
	state   *btree.Tree[*groupState]
}

// NewGroupBy attaches a GroupBy to src.
func NewGroupBy(src Source[Row], keyCols []string, rowCmp func(a, b Row) int) (*GroupBy, error) {
	if rowCmp == nil {
		rowCmp = func(a, b Row) int { return zset.CompareCanonical(a, b) }
	}
	g := &GroupBy{src: src, keyCols: keyCols, rowCmp: rowCmp}
	g.state = btree.New(func(a, b *groupState) int {
		for _, col := range g.keyCols {
			if c := CompareValues(a.kv[col], b.kv[col]); c != 0 {
				return c
			}
		}
		return 0
	})
	if err := src.SetSink(g); err != nil {
		return nil, err
	}
	return g, nil
}

// keyValues extracts the group key tuple of a row.
func (g *GroupBy) keyValues(row Row) Row {
	kv := make(Row, len(g.keyCols))
	for _, col := range g.keyCols {
		kv[col] = row[col]
	}
	return kv
}

// touched tracks one group affected by a delta, with its
// pre-delta snapshot for change detection.
type touched struct {
	st  *groupState
	pre []Row
}

func (g *GroupBy) Push(cs *zset.ChangeSet[Row]) {
	seen := make(map[string]*touched)
	var order []*touched

	for _, e := range cs.Entries() {
		kv := g.keyValues(e.Record)
		id := string(zset.Canonical(kv))
		t, ok := seen[id]
		if !ok {
			st, live := g.state.Get(&groupState{kv: kv})
			t = &touched{}
			if live {
				t.st = st
				t.pre = st.rows.Clone().Iter().Values()
			}
			seen[id] = t
			order = append(order, t)
		}
		switch {
		case e.Weight > 0:
			if t.st == nil {
				t.st = &groupState{kv: kv, rows: btree.New(g.rowCmp)}
				g.state.Add(t.st)
			} else if _, live := g.state.Get(t.st); !live {
				// group died earlier in this delta; revive it
				g.state.Add(t.st)
			}
			if DebugChecks && t.st.rows.Has(e.Record) {
				prev, _ := t.st.rows.Get(e.Record)
				warnReplaced("groupby", prev, e.Record)
			}
			t.st.rows.Add(e.Record)
		case e.Weight < 0:
			if t.st == nil {
				continue
			}
			t.st.rows.Delete(e.Record)
			if t.st.rows.Len() == 0 {
				g.state.Delete(t.st)
			}
		}
	}

	fwd := zset.New[GroupRow]()
	for _, t := range order {
		if t.st == nil {
			// only deletions for a group that never existed
			continue
		}
		post := []Row(nil)
		if _, live := g.state.Get(t.st); live {
			post = t.st.rows.Clone().Iter().Values()
		}
		if snapshotsEqual(t.pre, post) {
			continue
		}
		if len(t.pre) > 0 {
			fwd.Append(GroupRow{Keys: g.keyCols, KeyValues: t.st.kv}, -1)
		}
		if len(post) > 0 {
			fwd.Append(GroupRow{Keys: g.keyCols, KeyValues: t.st.kv, Rows: post}, 1)
		}
	}
	g.emit(fwd)
}

// snapshotsEqual compares two row snapshots taken under
// the same ordering.
func snapshotsEqual(a, b []Row) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !bytes.Equal(zset.Canonical(a[i]), zset.Canonical(b[i])) {
			return false
		}
	}
	return true
}

func (g *GroupBy) Size() int { return g.state.Len() }

// rebuild reconstructs the group state from upstream.
func (g *GroupBy) rebuild() {
	g.state.Clear()
	up := g.src.Pull()
	for {
		e, ok := up.Next()
		if !ok {
			return
		}
		if e.Weight <= 0 {
			continue
		}
		kv := g.keyValues(e.Record)
		st, live := g.state.Get(&groupState{kv: kv})
		if !live {
			st = &groupState{kv: kv, rows: btree.New(g.rowCmp)}
			g.state.Add(st)
		}
		st.rows.Add(e.Record)
	}
}

// Pull reconstructs the groups from upstream and yields
// snapshot GroupRows in key order.
func (g *GroupBy) Pull() Cursor[GroupRow] {
	g.rebuild()
	it := g.state.Clone().Iter()
	return cursorFunc[GroupRow](func() (zset.Entry[GroupRow], bool) {
		if !it.Next() {
			return zset.Entry[GroupRow]{}, false
		}
		st := it.Value()
		row := GroupRow{
			Keys:      g.keyCols,
			KeyValues: st.kv,
			Rows:      st.rows.Clone().Iter().Values(),
		}
		return zset.Entry[GroupRow]{Record: row, Weight: 1}, true
	})
}

// PullRaw reconstructs the groups from upstream and
// yields the live inner-tree representation, in key
// order. It is the channel the per-group aggregators
// initialize from.
func (g *GroupBy) PullRaw() Cursor[RawGroup] {
	g.rebuild()
	it := g.state.Clone().Iter()
	return cursorFunc[RawGroup](func() (zset.Entry[RawGroup], bool) {
		if !it.Next() {
			return zset.Entry[RawGroup]{}, false
		}
		st := it.Value()
		raw := RawGroup{Keys: g.keyCols, KeyValues: st.kv, Rows: st.rows}
		return zset.Entry[RawGroup]{Record: raw, Weight: 1}, true
	})
}
