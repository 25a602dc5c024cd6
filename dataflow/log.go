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
	"github.com/sirupsen/logrus"
)

// Log is the package diagnostic logger. It carries
// non-fatal conditions only (reference counts going
// negative, index lifecycle events); contract and
// invariant violations raise errors instead. Replace it
// during init() to redirect diagnostics.
var Log logrus.FieldLogger = logrus.StandardLogger()

// DebugChecks enables expensive sanity checking of
// caller-supplied comparators: OrderBy and GroupBy warn
// when an insertion into their internal tree replaces an
// existing row that compares equal, which is usually a
// comparator that fails to distinguish distinct rows.
// Other operators do not check.
var DebugChecks bool

// warnReplaced logs a duplicate-collapse event observed
// under DebugChecks.
func warnReplaced(op string, prev, next any) {
	Log.Warnf("dataflow: %s: comparator collapsed distinct rows %v and %v", op, prev, next)
}
