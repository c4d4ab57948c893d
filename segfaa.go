// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package lfproxy

import (
	"sync/atomic"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"
)

// FAA-array cell states. The original algorithm packs these as reserved
// uintptr values (0 and 1) inside the slot itself, relying on a bit_cast of
// the stored pointer. Go has no safe generic equivalent for an arbitrary T,
// so each cell carries an explicit state alongside its value instead.
const (
	faaCellEmpty    uint32 = 0
	faaCellWriting  uint32 = 1
	faaCellFilled   uint32 = 2
	faaCellSeen     uint32 = 3
	faaMaxPatience         = 4 * 1024
)

// segFAA is an FAA-array linked segment with a next pointer and an
// open/close lifecycle. Unlike segSeq it uses exactly n physical slots (no
// rounding up to a power of two) and each slot is claimed at most once over
// the segment's lifetime, so no cycle counter is needed, only a one-way
// EMPTY→WRITING→FILLED→SEEN state.
type segFAA[T any] struct {
	_        pad
	tail     atomix.Uint64
	_        pad
	head     atomix.Uint64
	_        pad
	next     atomic.Pointer[segFAA[T]]
	_        padPtr
	cells    []segFAACell[T]
	size_    uint64
	startIdx uint64
	draining atomix.Bool
}

type segFAACell[T any] struct {
	state atomix.Uint32
	val   T
	_     padShort
}

var _ linkedSegment[int] = (*segFAA[int])(nil)

func newSegFAA[T any](capacity int, start uint64) *segFAA[T] {
	s := &segFAA[T]{
		cells:    make([]segFAACell[T], capacity),
		size_:    uint64(capacity),
		startIdx: start,
	}
	return s
}

func (s *segFAA[T]) enqueue(item T) bool {
	for {
		t := s.tail.AddAcqRel(1) - 1
		if t >= s.size_ {
			return false
		}
		cell := &s.cells[t]
		if cell.state.CompareAndSwapAcqRel(faaCellEmpty, faaCellWriting) {
			cell.val = item
			cell.state.StoreRelease(faaCellFilled)
			return true
		}
		// Slot already marked SEEN by an impatient consumer: skip it.
	}
}

func (s *segFAA[T]) dequeue() (T, bool) {
	sw := spin.Wait{}
	for {
		h := s.head.AddAcqRel(1) - 1
		if h >= s.size_ {
			var zero T
			return zero, false
		}
		cell := &s.cells[h]

		state := cell.state.LoadAcquire()
		if state == faaCellEmpty && s.tail.LoadAcquire() > h {
			for i := 0; i < faaMaxPatience; i++ {
				state = cell.state.LoadAcquire()
				if state != faaCellEmpty {
					break
				}
				sw.Once()
			}
		}
		// A producer that won the slot but hasn't published its value yet:
		// wait it out rather than racing the plain (non-atomic) val store.
		// An EMPTY cell is sealed by CAS, so a producer claiming it at the
		// same moment either wins (and is waited for) or finds it SEEN.
		for state == faaCellWriting ||
			(state == faaCellEmpty && !cell.state.CompareAndSwapAcqRel(faaCellEmpty, faaCellSeen)) {
			sw.Once()
			state = cell.state.LoadAcquire()
		}

		// h is claimed by exactly one dequeuer (head is FAA'd), so state is
		// now either FILLED (ours to take) or EMPTY (sealed as SEEN above).
		if state == faaCellFilled {
			cell.state.StoreRelease(faaCellSeen)
			elem := cell.val
			var zero T
			cell.val = zero
			return elem, true
		}

		if !s.draining.LoadAcquire() {
			var zero T
			return zero, false
		}
		// Draining: a sealed hole doesn't mean the segment is empty, keep
		// advancing past it instead of reporting empty to the caller.
	}
}

func (s *segFAA[T]) drain() {
	s.draining.StoreRelease(true)
}

func (s *segFAA[T]) capacity() int { return int(s.size_) }

func (s *segFAA[T]) isClosed() bool {
	return s.tail.LoadAcquire() >= s.size_
}

func (s *segFAA[T]) close() {
	s.tail.AddAcqRel(s.size_)
}

func (s *segFAA[T]) open(startIndex uint64) {
	s.startIdx = startIndex
	s.head.StoreRelaxed(0)
	s.tail.StoreRelease(0)
	s.draining.StoreRelease(false)
	for i := range s.cells {
		s.cells[i].state.StoreRelaxed(faaCellEmpty)
		var zero T
		s.cells[i].val = zero
	}
	s.next.Store(nil)
}

func (s *segFAA[T]) nextStartIndex() uint64 {
	return s.startIdx + s.size_
}

func (s *segFAA[T]) getNext() *segFAA[T] {
	return s.next.Load()
}

func (s *segFAA[T]) linkNext(next *segFAA[T]) bool {
	return s.next.CompareAndSwap(nil, next)
}
