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
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func intCompare(a, b int) int { return a - b }

func TestAddGetDelete(t *testing.T) {
	require := require.New(t)
	tr := New(intCompare)
	require.Equal(0, tr.Len())

	for _, k := range []int{5, 1, 9, 3, 7} {
		tr.Add(k)
	}
	require.Equal(5, tr.Len())
	for _, k := range []int{5, 1, 9, 3, 7} {
		got, ok := tr.Get(k)
		require.True(ok)
		require.Equal(k, got)
	}
	_, ok := tr.Get(4)
	require.False(ok)
	require.False(tr.Has(4))

	require.True(tr.Delete(3))
	require.False(tr.Delete(3))
	require.Equal(4, tr.Len())
	require.False(tr.Has(3))

	min, ok := tr.Min()
	require.True(ok)
	require.Equal(1, min)
	max, ok := tr.Max()
	require.True(ok)
	require.Equal(9, max)
}

func TestAddReplacesEqualKey(t *testing.T) {
	require := require.New(t)
	type row struct {
		id   int
		name string
	}
	tr := New(func(a, b row) int { return a.id - b.id })
	tr.Add(row{1, "old"})
	tr.Add(row{1, "new"})
	require.Equal(1, tr.Len())
	got, ok := tr.Get(row{id: 1})
	require.True(ok)
	require.Equal("new", got.name)
}

// A comparator that cannot distinguish logically
// distinct values silently collapses them; the container
// keeps only the last insert per equality class.
func TestComparatorCollapsesIndistinctRows(t *testing.T) {
	require := require.New(t)
	type row struct {
		group int
		id    int
	}
	tr := New(func(a, b row) int { return a.group - b.group })
	tr.Add(row{group: 1, id: 100})
	tr.Add(row{group: 1, id: 200})
	require.Equal(1, tr.Len())
	got, _ := tr.Get(row{group: 1})
	require.Equal(200, got.id)
}

func TestNaNKeyPanics(t *testing.T) {
	require := require.New(t)
	tr := New(func(a, b float64) int {
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		case a == b:
			return 0
		}
		return -1 // NaN: not antisymmetric, not reflexive
	})
	tr.Add(1.5)
	require.Panics(func() { tr.Add(math.NaN()) })
}

func TestClear(t *testing.T) {
	require := require.New(t)
	tr := New(intCompare)
	for i := 0; i < 100; i++ {
		tr.Add(i)
	}
	tr.Clear()
	require.Equal(0, tr.Len())
	require.False(tr.Has(42))
	require.Empty(tr.Iter().Values())
	tr.Add(7)
	require.Equal(1, tr.Len())
}

func TestRandomizedAgainstReference(t *testing.T) {
	require := require.New(t)
	rng := rand.New(rand.NewSource(0x5eed))
	tr := New(intCompare)
	ref := make(map[int]bool)

	for i := 0; i < 20000; i++ {
		k := rng.Intn(3000)
		if rng.Intn(3) == 0 {
			require.Equal(ref[k], tr.Delete(k))
			delete(ref, k)
		} else {
			tr.Add(k)
			ref[k] = true
		}
	}
	require.Equal(len(ref), tr.Len())

	want := make([]int, 0, len(ref))
	for k := range ref {
		want = append(want, k)
	}
	sort.Ints(want)
	require.Equal(want, tr.Iter().Values())
}

func TestDeleteToEmptyCollapsesRoot(t *testing.T) {
	require := require.New(t)
	tr := New(intCompare)
	for i := 0; i < 1000; i++ {
		tr.Add(i)
	}
	for i := 0; i < 1000; i++ {
		require.True(tr.Delete(i))
	}
	require.Equal(0, tr.Len())
	_, ok := tr.Min()
	require.False(ok)
	tr.Add(1)
	require.Equal([]int{1}, tr.Iter().Values())
}

func TestCloneIsolation(t *testing.T) {
	require := require.New(t)
	tr := New(intCompare)
	for i := 0; i < 500; i++ {
		tr.Add(i)
	}
	cl := tr.Clone()

	// diverge both copies
	for i := 0; i < 100; i++ {
		tr.Delete(i)
	}
	for i := 500; i < 600; i++ {
		cl.Add(i)
	}

	require.Equal(400, tr.Len())
	require.Equal(600, cl.Len())
	require.False(tr.Has(50))
	require.True(cl.Has(50))
	require.True(cl.Has(599))
	require.False(tr.Has(599))

	// the original's ordering is intact
	vals := tr.Iter().Values()
	require.Equal(100, vals[0])
	require.Equal(499, vals[len(vals)-1])
}

func TestCloneOfCloneMutation(t *testing.T) {
	require := require.New(t)
	tr := New(intCompare)
	for i := 0; i < 200; i++ {
		tr.Add(i * 2)
	}
	a := tr.Clone()
	b := a.Clone()
	b.Add(3)
	a.Delete(0)
	require.Equal(200, tr.Len())
	require.Equal(199, a.Len())
	require.Equal(201, b.Len())
	require.True(tr.Has(0))
	require.False(a.Has(0))
	require.True(b.Has(3))
	require.False(tr.Has(3))
}
