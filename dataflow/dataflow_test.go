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

// shared test plumbing

// countingSource wraps a Source and counts how many
// entries its pulled cursors actually hand out, to
// assert pull laziness.
type countingSource[T any] struct {
	inner Source[T]
	reads int
}

func (c *countingSource[T]) Size() int               { return c.inner.Size() }
func (c *countingSource[T]) SetSink(s Sink[T]) error { return c.inner.SetSink(s) }
func (c *countingSource[T]) Disconnect(s Sink[T])    { c.inner.Disconnect(s) }

func (c *countingSource[T]) Pull() Cursor[T] {
	up := c.inner.Pull()
	return cursorFunc[T](func() (zset.Entry[T], bool) {
		e, ok := up.Next()
		if ok {
			c.reads++
		}
		return e, ok
	})
}

// collect drains a cursor into records, requiring every
// weight to be one.
func collect[T any](t *testing.T, c Cursor[T]) []T {
	t.Helper()
	var out []T
	for {
		e, ok := c.Next()
		if !ok {
			return out
		}
		require.Equal(t, 1, e.Weight, "pull cursors yield unit weights")
		out = append(out, e.Record)
	}
}

// capture is a Sink recording every pushed change-set.
type capture[T any] struct {
	pushes []*zset.ChangeSet[T]
}

func (c *capture[T]) Push(cs *zset.ChangeSet[T]) { c.pushes = append(c.pushes, cs) }

func (c *capture[T]) last(t *testing.T) *zset.ChangeSet[T] {
	t.Helper()
	require.NotEmpty(t, c.pushes)
	return c.pushes[len(c.pushes)-1]
}

// usersTable builds a seeded Memory used across tests.
func usersTable(t *testing.T, rows ...Row) *Memory {
	t.Helper()
	m, err := NewMemory(rows, "id", nil)
	require.NoError(t, err)
	return m
}

func row(id int, cols Row) Row {
	r := Row{"id": id}
	for k, v := range cols {
		r[k] = v
	}
	return r
}

// ids projects the id column of a row snapshot.
func ids(rows []Row) []int {
	out := make([]int, len(rows))
	for i := range rows {
		out[i] = rows[i]["id"].(int)
	}
	return out
}
