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

package zset

import (
	"bytes"
	"fmt"

	"github.com/dchest/siphash"
	"github.com/goccy/go-json"
)

// record identity is structural: two records are the
// same iff their canonical serializations are
// byte-identical. Digests are siphash-64 over the
// canonical bytes under fixed keys; collisions fall
// back to byte comparison.
const (
	sipK0 = 0x7c3a9d1e5b8f2406
	sipK1 = 0x1f6e4c2a8d9b3750
)

// Canonical returns the canonical serialization of v.
// Records must be serializable; a record that is not is
// a caller contract violation.
func Canonical(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("zset: record %v is not serializable: %v", v, err))
	}
	return b
}

// Digest returns the 64-bit identity digest of v's
// canonical serialization.
func Digest(v any) uint64 { return digestBytes(Canonical(v)) }

func digestBytes(b []byte) uint64 { return siphash.Hash(sipK0, sipK1, b) }

// CompareCanonical orders two values by their canonical
// serializations. It distinguishes any two records whose
// serializations differ, which makes it the default
// tie-break order for set-semantic containers.
func CompareCanonical(a, b any) int {
	return bytes.Compare(Canonical(a), Canonical(b))
}
