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
	"strings"

	"golang.org/x/exp/maps"

	"github.com/incrdb/incr/zset"
)

// numeric widens the common numeric kinds to float64.
func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// typeRank buckets values into a cross-type order:
// nil < bool < number < string < everything else.
func typeRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case string:
		return 3
	}
	if _, ok := numeric(v); ok {
		return 2
	}
	return 4
}

// CompareValues is the default total order on cell
// values: nils first, then booleans, numbers, strings,
// and finally everything else by canonical
// serialization.
func CompareValues(a, b any) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return ra - rb
	}
	switch ra {
	case 0:
		return 0
	case 1:
		x, y := a.(bool), b.(bool)
		switch {
		case x == y:
			return 0
		case y:
			return -1
		}
		return 1
	case 2:
		x, _ := numeric(a)
		y, _ := numeric(b)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case 3:
		return strings.Compare(a.(string), b.(string))
	}
	return zset.CompareCanonical(a, b)
}

// CompareRowsBy orders Rows by the given column under
// CompareValues, breaking ties by canonical
// serialization so that distinct rows never collapse.
func CompareRowsBy(column string) func(a, b Row) int {
	return func(a, b Row) int {
		if c := CompareValues(a[column], b[column]); c != 0 {
			return c
		}
		return zset.CompareCanonical(a, b)
	}
}

// CompareRowsByColumns orders Rows by a column tuple
// under CompareValues, with a canonical-serialization
// tie-break.
func CompareRowsByColumns(columns ...string) func(a, b Row) int {
	return func(a, b Row) int {
		for _, col := range columns {
			if c := CompareValues(a[col], b[col]); c != 0 {
				return c
			}
		}
		return zset.CompareCanonical(a, b)
	}
}

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	if r == nil {
		return Row{}
	}
	return Row(maps.Clone(map[string]any(r)))
}

// patch returns r with every column of p superseding
// r's value. Neither input is mutated.
func (r Row) patch(p Row) Row {
	next := r.Clone()
	for k, v := range p {
		next[k] = v
	}
	return next
}
