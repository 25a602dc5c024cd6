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
	"gopkg.in/src-d/go-errors.v1"
)

// Caller contract errors. These indicate misuse by the
// surrounding code and are surfaced synchronously at the
// call site, either as returned errors or as panics on
// paths that have no error return. They are not
// recoverable: a pipeline that has observed one must be
// treated as inconsistent.
var (
	// ErrSinkAlreadySet is returned by SetSink when a
	// source already has a downstream sink. Fan-out
	// requires SplitStream branches, not double
	// attachment.
	ErrSinkAlreadySet = errors.NewKind("dataflow: sink already attached")

	// ErrDuplicateKey is returned by Memory.Add when a
	// row with the same primary key already exists.
	ErrDuplicateKey = errors.NewKind("dataflow: row with primary key %v already exists")

	// ErrKeyNotFound is returned by Memory.Update and
	// Memory.Remove when no row has the probe's
	// primary key.
	ErrKeyNotFound = errors.NewKind("dataflow: no row with primary key %v")

	// ErrValueType is raised by typed aggregators fed
	// a value outside their domain (non-number to Sum,
	// non-string to ArrayAgg).
	ErrValueType = errors.NewKind("dataflow: %s: unsupported value %v of type %T")
)
