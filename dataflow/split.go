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
	"github.com/incrdb/incr/zset"
)

// SplitStream fans one upstream out to N independent
// branches. The split occupies the upstream's single
// sink slot; each Branch is a Source with its own
// downstream sink, and every push is delivered to all
// branches in registration order.
type SplitStream[T any] struct {
	src      Source[T]
	branches []*Branch[T]
}

// NewSplitStream attaches a SplitStream to src.
func NewSplitStream[T any](src Source[T]) (*SplitStream[T], error) {
	s := &SplitStream[T]{src: src}
	if err := src.SetSink(s); err != nil {
		return nil, err
	}
	return s, nil
}

// Branch registers and returns a new independent branch.
func (s *SplitStream[T]) Branch() *Branch[T] {
	b := &Branch[T]{split: s}
	s.branches = append(s.branches, b)
	return b
}

func (s *SplitStream[T]) Push(cs *zset.ChangeSet[T]) {
	for _, b := range s.branches {
		b.emit(cs)
	}
}

// Branch is one independent downstream arm of a
// SplitStream. Pulls read through to the shared
// upstream.
type Branch[T any] struct {
	out[T]
	split *SplitStream[T]
}

func (b *Branch[T]) Size() int { return b.split.src.Size() }

func (b *Branch[T]) Pull() Cursor[T] { return b.split.src.Pull() }
