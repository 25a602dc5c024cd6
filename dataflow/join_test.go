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
)

func joinFixture(t *testing.T) (*Memory, *Memory, *View[Pair[Row, Row]]) {
	t.Helper()
	users, err := NewMemory([]Row{
		row(1, Row{"name": "alice"}),
		row(2, Row{"name": "bob"}),
	}, "id", nil)
	require.NoError(t, err)
	orders, err := NewMemory([]Row{
		row(101, Row{"user": 1, "amt": 50}),
		row(102, Row{"user": 1, "amt": 70}),
	}, "id", nil)
	require.NoError(t, err)

	j, err := NewJoin[Row, Row](users.Connect("", nil), orders.Connect("", nil),
		func(r Row) any { return r["id"] },
		func(r Row) any { return r["user"] },
		func(a, b Pair[Row, Row]) int {
			if c := CompareValues(a.Left["id"], b.Left["id"]); c != 0 {
				return c
			}
			return CompareValues(a.Right["id"], b.Right["id"])
		})
	require.NoError(t, err)
	v, err := NewView[Pair[Row, Row]](j, func(a, b Pair[Row, Row]) int {
		if c := CompareValues(a.Left["id"], b.Left["id"]); c != 0 {
			return c
		}
		return CompareValues(a.Right["id"], b.Right["id"])
	})
	require.NoError(t, err)
	return users, orders, v
}

func pairIDs(pairs []Pair[Row, Row]) [][2]int {
	out := make([][2]int, len(pairs))
	for i, p := range pairs {
		out[i] = [2]int{p.Left["id"].(int), p.Right["id"].(int)}
	}
	return out
}

func TestJoinInitialBuildAndProbe(t *testing.T) {
	require := require.New(t)
	_, _, v := joinFixture(t)
	got := v.Materialize()
	require.Equal([][2]int{{1, 101}, {1, 102}}, pairIDs(got))
}

func TestJoinIncremental(t *testing.T) {
	require := require.New(t)
	users, orders, v := joinFixture(t)
	v.Materialize()

	// a new right row pairs with its left match
	require.NoError(orders.Add(row(103, Row{"user": 2, "amt": 5})))
	require.Equal([][2]int{{1, 101}, {1, 102}, {2, 103}}, pairIDs(v.CurrentState()))

	// a new left row pairs with existing right rows
	require.NoError(orders.Add(row(104, Row{"user": 3, "amt": 1})))
	require.NoError(users.Add(row(3, Row{"name": "carol"})))
	require.Equal([][2]int{{1, 101}, {1, 102}, {2, 103}, {3, 104}}, pairIDs(v.CurrentState()))

	// removing a left row retracts all its pairs
	require.NoError(users.Remove(Row{"id": 1}))
	require.Equal([][2]int{{2, 103}, {3, 104}}, pairIDs(v.CurrentState()))

	// removing a right row retracts just that pair
	require.NoError(orders.Remove(Row{"id": 103}))
	require.Equal([][2]int{{3, 104}}, pairIDs(v.CurrentState()))
}

func TestJoinMatchesCrossProductDefinition(t *testing.T) {
	// output must equal {(l, r) | key(l) == key(r)}
	require := require.New(t)
	left, err := NewMemory(nil, "id", nil)
	require.NoError(err)
	right, err := NewMemory(nil, "id", nil)
	require.NoError(err)
	j, err := NewJoin[Row, Row](left.Connect("", nil), right.Connect("", nil),
		func(r Row) any { return r["k"] },
		func(r Row) any { return r["k"] },
		func(a, b Pair[Row, Row]) int {
			if c := CompareValues(a.Left["id"], b.Left["id"]); c != 0 {
				return c
			}
			return CompareValues(a.Right["id"], b.Right["id"])
		})
	require.NoError(err)
	v, err := NewView[Pair[Row, Row]](j, func(a, b Pair[Row, Row]) int {
		if c := CompareValues(a.Left["id"], b.Left["id"]); c != 0 {
			return c
		}
		return CompareValues(a.Right["id"], b.Right["id"])
	})
	require.NoError(err)
	v.Materialize()

	for i := 1; i <= 6; i++ {
		require.NoError(left.Add(row(i, Row{"k": i % 3})))
		require.NoError(right.Add(row(100+i, Row{"k": i % 2})))
	}

	want := 0
	for _, l := range left.Rows() {
		for _, r := range right.Rows() {
			if l["k"] == r["k"] {
				want++
			}
		}
	}
	require.Len(v.CurrentState(), want)
	incremental := v.CurrentState()
	require.Equal(v.Materialize(), incremental)
}

func TestJoinUpdatePropagates(t *testing.T) {
	require := require.New(t)
	_, orders, v := joinFixture(t)
	v.Materialize()

	// re-keying an order moves it between users
	require.NoError(orders.Update(Row{"id": 101}, Row{"user": 2}))
	require.Equal([][2]int{{1, 102}, {2, 101}}, pairIDs(v.CurrentState()))
}
