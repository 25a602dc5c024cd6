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
	"fmt"

	"github.com/incrdb/incr/btree"
	"github.com/incrdb/incr/schema"
	"github.com/incrdb/incr/zset"
)

// Memory is a base source: the primary store of a table,
// ordered by primary key, with optional per-connection
// sort indexes. Every mutation constructs a delta and
// fans it out to all attached sinks before returning.
//
// A Memory has a single owning mutator; concurrent
// mutation is undefined.
type Memory struct {
	pk      string
	table   *schema.Table
	primary *memIndex
	sorted  map[string]*memIndex
	conns   []*connection
}

// memIndex is one ordering of the table's rows.
type memIndex struct {
	name   string
	tree   *btree.Tree[Row]
	usedBy map[*connection]struct{}
}

// NewMemory builds a base source over the initial rows,
// keyed by the pk column. table may be nil; when
// provided, its primary key must agree with pk.
func NewMemory(initial []Row, pk string, table *schema.Table) (*Memory, error) {
	if pk == "" {
		return nil, fmt.Errorf("dataflow: memory source needs a primary key column")
	}
	if table != nil && table.PrimaryKey != pk {
		return nil, fmt.Errorf("dataflow: table %s declares primary key %s, not %s",
			table.Name, table.PrimaryKey, pk)
	}
	m := &Memory{
		pk:     pk,
		table:  table,
		sorted: make(map[string]*memIndex),
	}
	m.primary = &memIndex{
		name:   pk,
		tree:   btree.New(m.pkCompare),
		usedBy: make(map[*connection]struct{}),
	}
	for _, row := range initial {
		if m.primary.tree.Has(row) {
			return nil, ErrDuplicateKey.New(row[pk])
		}
		m.primary.tree.Add(row)
	}
	return m, nil
}

// pkCompare orders rows by primary key value alone, so a
// probe row carrying only the pk column finds its match.
func (m *Memory) pkCompare(a, b Row) int {
	return CompareValues(a[m.pk], b[m.pk])
}

// Len returns the current row count.
func (m *Memory) Len() int { return m.primary.tree.Len() }

// Rows returns a snapshot of the table in primary-key
// order.
func (m *Memory) Rows() []Row {
	return m.primary.tree.Clone().Iter().Values()
}

// Connect returns a Source reading the table under the
// requested sort. An empty sortKey yields primary-key
// order. The first connection for a sortKey builds the
// index by re-inserting the primary contents under the
// new comparator; cmp is wrapped with a primary-key
// tie-break so distinct rows never collapse.
func (m *Memory) Connect(sortKey string, cmp func(a, b Row) int) Source[Row] {
	idx := m.primary
	if sortKey != "" {
		var ok bool
		idx, ok = m.sorted[sortKey]
		if !ok {
			idx = &memIndex{
				name: sortKey,
				tree: btree.New(func(a, b Row) int {
					if c := cmp(a, b); c != 0 {
						return c
					}
					return m.pkCompare(a, b)
				}),
				usedBy: make(map[*connection]struct{}),
			}
			it := m.primary.tree.Iter()
			for it.Next() {
				idx.tree.Add(it.Value())
			}
			m.sorted[sortKey] = idx
		}
	}
	conn := &connection{mem: m, idx: idx}
	idx.usedBy[conn] = struct{}{}
	m.conns = append(m.conns, conn)
	return conn
}

// Add inserts a row that must not collide with an
// existing primary key, updates every index and emits
// {(row, +1)} to all connections.
func (m *Memory) Add(row Row) error {
	if m.primary.tree.Has(row) {
		return ErrDuplicateKey.New(row[m.pk])
	}
	m.insert(row)
	delta := zset.Of(zset.Entry[Row]{Record: row, Weight: 1})
	m.fanout(delta)
	return nil
}

// Update supersedes the row matching probe's primary key
// with (old ⊕ patch), updates every index and emits
// {(old, -1), (new, +1)}.
func (m *Memory) Update(probe, patch Row) error {
	old, ok := m.primary.tree.Get(probe)
	if !ok {
		return ErrKeyNotFound.New(probe[m.pk])
	}
	next := old.patch(patch)
	m.delete(old)
	m.insert(next)
	delta := zset.Of(
		zset.Entry[Row]{Record: old, Weight: -1},
		zset.Entry[Row]{Record: next, Weight: 1},
	)
	m.fanout(delta)
	return nil
}

// Remove deletes the row matching probe's primary key
// from every index and emits {(old, -1)}.
func (m *Memory) Remove(probe Row) error {
	old, ok := m.primary.tree.Get(probe)
	if !ok {
		return ErrKeyNotFound.New(probe[m.pk])
	}
	m.delete(old)
	delta := zset.Of(zset.Entry[Row]{Record: old, Weight: -1})
	m.fanout(delta)
	return nil
}

func (m *Memory) insert(row Row) {
	m.primary.tree.Add(row)
	for _, idx := range m.sorted {
		idx.tree.Add(row)
	}
}

func (m *Memory) delete(row Row) {
	m.primary.tree.Delete(row)
	for _, idx := range m.sorted {
		idx.tree.Delete(row)
	}
}

// fanout delivers a delta to every connection before
// returning. Order across connections is arbitrary but
// exhaustive.
func (m *Memory) fanout(delta *zset.ChangeSet[Row]) {
	for _, conn := range m.conns {
		conn.emit(delta)
	}
}

// release drops a connection's claim on its index; an
// unused non-primary index is discarded.
func (m *Memory) release(conn *connection) {
	delete(conn.idx.usedBy, conn)
	if conn.idx != m.primary && len(conn.idx.usedBy) == 0 {
		delete(m.sorted, conn.idx.name)
		Log.Debugf("dataflow: memory source dropped unused index %s", conn.idx.name)
	}
	for i := range m.conns {
		if m.conns[i] == conn {
			m.conns = append(m.conns[:i], m.conns[i+1:]...)
			break
		}
	}
}

// connection is one attachment point of a Memory: a
// Source reading from one of its indexes.
type connection struct {
	out[Row]
	mem *Memory
	idx *memIndex
}

func (c *connection) Size() int { return c.idx.tree.Len() }

// Pull reads a copy-on-write clone of the index so the
// cursor is isolated from subsequent mutations.
func (c *connection) Pull() Cursor[Row] {
	return treeCursor(c.idx.tree.Clone().Iter())
}

// Disconnect detaches the sink and releases the
// connection's index claim.
func (c *connection) Disconnect(s Sink[Row]) {
	if c.sink != s {
		return
	}
	c.out.Disconnect(s)
	c.mem.release(c)
}
