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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/incrdb/incr/zset"
)

func userGroups(t *testing.T, m *Memory) *GroupBy {
	t.Helper()
	g, err := NewGroupBy(m.Connect("", nil), []string{"user"}, CompareRowsBy("id"))
	require.NoError(t, err)
	return g
}

func TestGroupByPull(t *testing.T) {
	require := require.New(t)
	m := usersTable(t,
		row(1, Row{"user": 1}),
		row(2, Row{"user": 1}),
		row(3, Row{"user": 2}),
		row(4, Row{"user": 3}),
	)
	g := userGroups(t, m)

	groups := collect(t, g.Pull())
	require.Len(groups, 3)
	require.Equal(1, groups[0].KeyValues["user"])
	require.Len(groups[0].Rows, 2)
	require.Equal([]string{"user"}, groups[0].Keys)
	require.Len(groups[1].Rows, 1)
	require.Len(groups[2].Rows, 1)
}

func TestGroupByRetractAssertOnChange(t *testing.T) {
	require := require.New(t)
	m := usersTable(t, row(1, Row{"user": 1}))
	g := userGroups(t, m)
	sink := &capture[GroupRow]{}
	require.NoError(g.SetSink(sink))
	collect(t, g.Pull())

	// growing an existing group: sentinel retraction
	// plus a full assertion
	require.NoError(m.Add(row(2, Row{"user": 1})))
	got := sink.last(t).Entries()
	require.Len(got, 2)
	require.Equal(-1, got[0].Weight)
	require.Nil(got[0].Record.Rows)
	require.Equal(1, got[0].Record.KeyValues["user"])
	require.Equal(1, got[1].Weight)
	require.Len(got[1].Record.Rows, 2)

	// a brand-new group asserts without retraction
	require.NoError(m.Add(row(3, Row{"user": 7})))
	got = sink.last(t).Entries()
	require.Len(got, 1)
	require.Equal(1, got[0].Weight)

	// the last row leaving a group retracts it outright
	require.NoError(m.Remove(Row{"id": 3}))
	got = sink.last(t).Entries()
	require.Len(got, 1)
	require.Equal(-1, got[0].Weight)
	require.Nil(got[0].Record.Rows)
	require.Equal(1, g.Size()) // the two-row group remains
}

func TestGroupByContentChangeEmits(t *testing.T) {
	// a group whose size is unchanged but whose contents
	// moved still emits retract+assert
	require := require.New(t)
	m := usersTable(t, row(1, Row{"user": 1, "v": "a"}))
	g := userGroups(t, m)
	sink := &capture[GroupRow]{}
	require.NoError(g.SetSink(sink))
	collect(t, g.Pull())

	require.NoError(m.Update(Row{"id": 1}, Row{"v": "b"}))
	got := sink.last(t).Entries()
	require.Len(got, 2)
	require.Equal(-1, got[0].Weight)
	require.Equal(1, got[1].Weight)
	require.Equal("b", got[1].Record.Rows[0]["v"])
}

func TestGroupByUnchangedGroupSilent(t *testing.T) {
	require := require.New(t)
	m := usersTable(t, row(1, Row{"user": 1}))
	g := userGroups(t, m)
	sink := &capture[GroupRow]{}
	require.NoError(g.SetSink(sink))
	collect(t, g.Pull())

	// a push that cancels itself inside one delta leaves
	// the group untouched and emits nothing
	probe := row(9, Row{"user": 1})
	cs := zset.New[Row]()
	cs.Append(probe, 1)
	cs.Append(probe, -1)
	g.Push(cs)
	require.Empty(sink.pushes)
}

func TestGroupCountScenario(t *testing.T) {
	require := require.New(t)
	m := usersTable(t,
		row(1, Row{"user": 1}),
		row(2, Row{"user": 1}),
		row(3, Row{"user": 2}),
		row(4, Row{"user": 3}),
	)
	g := userGroups(t, m)
	count, err := NewCountGroupBy(g, "")
	require.NoError(err)
	v, err := NewView[Row](count, CompareRowsBy("user"))
	require.NoError(err)

	type uc struct{ user, count int }
	snap := func() []uc {
		rows := v.CurrentState()
		out := make([]uc, len(rows))
		for i, r := range rows {
			out[i] = uc{r["user"].(int), r["count"].(int)}
		}
		return out
	}

	v.Materialize()
	require.Equal([]uc{{1, 2}, {2, 1}, {3, 1}}, snap())

	require.NoError(m.Add(row(5, Row{"user": 1})))
	require.Equal([]uc{{1, 3}, {2, 1}, {3, 1}}, snap())

	require.NoError(m.Remove(Row{"id": 4}))
	require.Equal([]uc{{1, 3}, {2, 1}}, snap())
}

func TestGroupAggregatesBijection(t *testing.T) {
	// the emitted aggregate rows stay in bijection with
	// the live groups across arbitrary mutations
	require := require.New(t)
	m := usersTable(t)
	g := userGroups(t, m)
	count, err := NewCountGroupBy(g, "")
	require.NoError(err)
	v, err := NewView[Row](count, CompareRowsBy("user"))
	require.NoError(err)
	v.Materialize()

	for i := 1; i <= 30; i++ {
		require.NoError(m.Add(row(i, Row{"user": i % 5})))
	}
	for i := 1; i <= 10; i++ {
		require.NoError(m.Remove(Row{"id": i * 3}))
	}
	require.Len(v.CurrentState(), g.Size())
	incremental := v.CurrentState()
	require.Equal(v.Materialize(), incremental)
}

func TestGroupBySumMinMax(t *testing.T) {
	require := require.New(t)
	m := usersTable(t,
		row(1, Row{"user": 1, "amt": 10}),
		row(2, Row{"user": 1, "amt": 30}),
		row(3, Row{"user": 2, "amt": 5}),
	)
	g := userGroups(t, m)
	split, err := NewSplitStream[GroupRow](g)
	require.NoError(err)
	sum, err := NewSumGroupBy(split.Branch(), "amt")
	require.NoError(err)
	min, err := NewMinGroupBy(split.Branch(), "amt")
	require.NoError(err)
	max, err := NewMaxGroupBy(split.Branch(), "amt")
	require.NoError(err)

	vs, err := NewView[Row](sum, CompareRowsBy("user"))
	require.NoError(err)
	vmin, err := NewView[Row](min, CompareRowsBy("user"))
	require.NoError(err)
	vmax, err := NewView[Row](max, CompareRowsBy("user"))
	require.NoError(err)

	require.Equal(40.0, vs.Materialize()[0]["sum"])
	require.Equal(10, vmin.Materialize()[0]["min"])
	require.Equal(30, vmax.Materialize()[0]["max"])

	require.NoError(m.Add(row(4, Row{"user": 1, "amt": 2})))
	require.Equal(42.0, vs.CurrentState()[0]["sum"])
	require.Equal(2, vmin.CurrentState()[0]["min"])
	require.Equal(30, vmax.CurrentState()[0]["max"])

	require.NoError(m.Remove(Row{"id": 2}))
	require.Equal(12.0, vs.CurrentState()[0]["sum"])
	require.Equal(10, vmax.CurrentState()[0]["max"])
}

func TestGroupByAvg(t *testing.T) {
	require := require.New(t)
	m := usersTable(t,
		row(1, Row{"user": 1, "amt": 10}),
		row(2, Row{"user": 1, "amt": 20}),
		row(3, Row{"user": 2, "amt": 7}),
	)
	g := userGroups(t, m)
	avg, err := NewAvgGroupBy(g, "amt")
	require.NoError(err)
	v, err := NewView[Row](avg, CompareRowsBy("user"))
	require.NoError(err)

	got := v.Materialize()
	require.Len(got, 2)
	require.Equal(15.0, got[0]["avg"])
	require.Equal(7.0, got[1]["avg"])

	require.NoError(m.Add(row(4, Row{"user": 2, "amt": 9})))
	got = v.CurrentState()
	require.Equal(8.0, got[1]["avg"])
}

func TestGroupArrayAndJsonAgg(t *testing.T) {
	require := require.New(t)
	m := usersTable(t,
		row(1, Row{"user": 1, "tag": "a"}),
		row(2, Row{"user": 1, "tag": "b"}),
	)
	g := userGroups(t, m)
	split, err := NewSplitStream[GroupRow](g)
	require.NoError(err)
	arr, err := NewArrayAggGroupBy(split.Branch(), "tag")
	require.NoError(err)
	jsn, err := NewJsonAggGroupBy(split.Branch(), "id")
	require.NoError(err)

	va, err := NewView[Row](arr, CompareRowsBy("user"))
	require.NoError(err)
	vj, err := NewView[Row](jsn, CompareRowsBy("user"))
	require.NoError(err)

	require.Equal([]string{"a", "b"}, va.Materialize()[0]["array_agg"])
	require.Equal([]any{1, 2}, vj.Materialize()[0]["json_agg"])

	require.NoError(m.Remove(Row{"id": 1}))
	require.Equal([]string{"b"}, va.CurrentState()[0]["array_agg"])
	require.Equal([]any{2}, vj.CurrentState()[0]["json_agg"])
}
