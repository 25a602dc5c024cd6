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

// Package dataflow implements the incremental view
// maintenance runtime: base sources, stream operators,
// aggregations and materialized views connected into a
// DAG through which row-level deltas propagate.
//
// Each operator is both a Sink (it accepts change-sets
// pushed from upstream) and a Source (it feeds at most
// one downstream sink and can reconstruct its current
// output lazily via Pull). Base Memory sources own the
// canonical table contents; a View materializes the far
// end of a pipeline and notifies subscribers after every
// delta. All propagation is synchronous on the mutating
// goroutine: a call to Memory.Add/Update/Remove returns
// only after every transitively connected sink has
// finished updating.
//
// Pull is always a cold read: a stateful operator clears
// any partial push-built state and reconstructs it from
// upstream, after which push-driven maintenance is
// authoritative. Pipelines are therefore materialized
// once (View.Materialize) before deltas are interpreted
// incrementally.
//
// Caller contract violations (duplicate primary key,
// second sink attachment, unsupported aggregate value
// types, NaN keys) surface synchronously as tagged
// errors, or as panics carrying the same tagged errors
// on paths with no error return. Internal invariant
// violations panic. The engine never swallows errors
// raised by user comparators, extractors or subscriber
// callbacks.
package dataflow
