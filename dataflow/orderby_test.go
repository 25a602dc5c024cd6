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

func TestOrderByPullSorted(t *testing.T) {
	require := require.New(t)
	m := usersTable(t,
		row(1, Row{"value": 30}),
		row(2, Row{"value": 10}),
		row(3, Row{"value": 20}),
	)
	o, err := NewOrderBy[Row](m.Connect("", nil), byValue)
	require.NoError(err)

	require.Equal([]int{2, 3, 1}, ids(collect(t, o.Pull())))

	require.NoError(m.Add(row(4, Row{"value": 15})))
	require.NoError(m.Remove(Row{"id": 1}))
	require.Equal([]int{2, 4, 3}, ids(collect(t, o.Pull())))
}

func TestOrderByForwardsDeltaUnmodified(t *testing.T) {
	require := require.New(t)
	m := usersTable(t)
	o, err := NewOrderBy[Row](m.Connect("", nil), byValue)
	require.NoError(err)
	sink := &capture[Row]{}
	require.NoError(o.SetSink(sink))

	require.NoError(m.Add(row(1, Row{"value": 9})))
	require.Len(sink.pushes, 1)
	got := sink.last(t).Entries()
	require.Len(got, 1)
	require.Equal(1, got[0].Weight)
	require.Equal(9, got[0].Record["value"])

	require.NoError(m.Update(Row{"id": 1}, Row{"value": 4}))
	got = sink.last(t).Entries()
	require.Len(got, 2)
	require.Equal(-1, got[0].Weight)
	require.Equal(1, got[1].Weight)
	require.Equal(1, o.Size())
}
