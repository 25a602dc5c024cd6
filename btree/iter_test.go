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

package btree

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// evens 0..198
func evenTree() *Tree[int] {
	tr := New(intCompare)
	for i := 0; i < 100; i++ {
		tr.Add(i * 2)
	}
	return tr
}

func TestIterAscending(t *testing.T) {
	require := require.New(t)
	tr := evenTree()
	vals := tr.Iter().Values()
	require.Len(vals, 100)
	for i, v := range vals {
		require.Equal(i*2, v)
	}
}

func TestReverseDescending(t *testing.T) {
	require := require.New(t)
	tr := evenTree()
	vals := tr.Reverse().Values()
	require.Len(vals, 100)
	for i, v := range vals {
		require.Equal(198-i*2, v)
	}
}

func TestIterFrom(t *testing.T) {
	require := require.New(t)
	tr := evenTree()

	// present probe, inclusive and exclusive
	it := tr.IterFrom(100, true)
	require.True(it.Next())
	require.Equal(100, it.Value())

	it = tr.IterFrom(100, false)
	require.True(it.Next())
	require.Equal(102, it.Value())

	// absent probe lands on the next larger key
	it = tr.IterFrom(99, true)
	require.True(it.Next())
	require.Equal(100, it.Value())

	// before the smallest key
	it = tr.IterFrom(-5, true)
	require.True(it.Next())
	require.Equal(0, it.Value())

	// beyond the largest key
	it = tr.IterFrom(1000, true)
	require.False(it.Next())

	// exclusive from the largest key
	it = tr.IterFrom(198, false)
	require.False(it.Next())
}

func TestReverseFrom(t *testing.T) {
	require := require.New(t)
	tr := evenTree()

	it := tr.ReverseFrom(100, true)
	require.True(it.Next())
	require.Equal(100, it.Value())
	require.True(it.Next())
	require.Equal(98, it.Value())

	it = tr.ReverseFrom(100, false)
	require.True(it.Next())
	require.Equal(98, it.Value())

	// absent probe lands on the next smaller key
	it = tr.ReverseFrom(99, true)
	require.True(it.Next())
	require.Equal(98, it.Value())

	// beyond the largest key walks everything
	vals := tr.ReverseFrom(10_000, true).Values()
	require.Len(vals, 100)
	require.Equal(198, vals[0])

	// before the smallest key yields nothing
	it = tr.ReverseFrom(-1, true)
	require.False(it.Next())
}

func TestIterFromWalksAcrossLeaves(t *testing.T) {
	require := require.New(t)
	tr := evenTree()
	vals := tr.IterFrom(61, true).Values()
	require.Equal(62, vals[0])
	require.Equal(198, vals[len(vals)-1])
	require.Len(vals, 69)
}

func TestIterEmptyTree(t *testing.T) {
	require := require.New(t)
	tr := New(intCompare)
	require.False(tr.Iter().Next())
	require.False(tr.Reverse().Next())
	require.False(tr.IterFrom(1, true).Next())
	require.False(tr.ReverseFrom(1, true).Next())
}

func TestIterEarlyAbandon(t *testing.T) {
	require := require.New(t)
	tr := evenTree()
	it := tr.Iter()
	for i := 0; i < 10; i++ {
		require.True(it.Next())
	}
	require.Equal(18, it.Value())
	// abandoning the iterator is the cancellation path;
	// nothing to assert beyond not crashing
}
