// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package lfproxy

import (
	"sync/atomic"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"
)

// segSeq is a CAS-based sequenced-cell segment: the same per-slot
// sequence-number pattern as MPMCSeq, independently implemented with a next
// pointer and an open/close lifecycle so segments can be linked into a
// larger queue and later recycled.
//
// Closed is encoded in the top bit of tail (auto-close), exactly as the
// CAS-loop segment this is grounded on: once a producer observes
// tail > seq (meaning the slot it landed on isn't free), it closes the
// segment instead of spinning forever against a segment a consumer has
// already abandoned.
type segSeq[T any] struct {
	_          pad
	tail       atomix.Uint64
	_          pad
	head       atomix.Uint64
	_          pad
	next       atomic.Pointer[segSeq[T]]
	_          padPtr
	// nextIdx is an alternate, index-based successor link used by
	// recycler-backed (memory-bounded) proxies in place of the next
	// pointer — the pool addresses segments by recycled slot index, so the
	// link has to survive a segment being recycled into a different index
	// than its neighbor ever pointed at. This mirrors the segment
	// algorithm's NextT being instantiated with a versioned index instead
	// of a raw pointer.
	nextIdx   atomix.Uint64
	cells     []segSeqCell[T]
	mask      uint64
	capacity_ uint64
	autoClose bool
	startIdx  uint64
}

type segSeqCell[T any] struct {
	seq atomix.Uint64
	val T
	_   padShort
}

const closedBit = uint64(1) << 63

var _ linkedSegment[int] = (*segSeq[int])(nil)

func newSegSeq[T any](capacity int, start uint64, autoClose bool) *segSeq[T] {
	n := uint64(roundToPow2(capacity))
	s := &segSeq[T]{
		cells:     make([]segSeqCell[T], n),
		mask:      n - 1,
		capacity_: n,
		autoClose: autoClose,
		startIdx:  start,
	}
	s.initSlots(start)
	return s
}

func (s *segSeq[T]) initSlots(start uint64) {
	for i := start; i < start+s.capacity_; i++ {
		s.cells[i&s.mask].seq.StoreRelaxed(i)
	}
	s.head.StoreRelaxed(start)
	s.tail.StoreRelaxed(start)
}

func (s *segSeq[T]) enqueue(item T) bool {
	sw := spin.Wait{}
	for {
		tail := s.tail.LoadRelaxed()
		if s.autoClose && isClosedTail(tail) {
			return false
		}

		cell := &s.cells[tail&s.mask]
		seq := cell.seq.LoadAcquire()
		diff := int64(seq) - int64(tail)

		if diff == 0 {
			if s.tail.CompareAndSwapAcqRel(tail, tail+1) {
				cell.val = item
				cell.seq.StoreRelease(tail + 1)
				return true
			}
		} else if diff < 0 {
			if s.autoClose {
				s.close()
			}
			return false
		}
		sw.Once()
	}
}

func (s *segSeq[T]) dequeue() (T, bool) {
	sw := spin.Wait{}
	for {
		head := s.head.LoadRelaxed()
		cell := &s.cells[head&s.mask]
		seq := cell.seq.LoadAcquire()
		diff := int64(seq) - int64(head+1)

		if diff == 0 {
			if s.head.CompareAndSwapAcqRel(head, head+1) {
				elem := cell.val
				var zero T
				cell.val = zero
				cell.seq.StoreRelease(head + s.capacity_)
				return elem, true
			}
		} else if diff < 0 && s.size() == 0 {
			var zero T
			return zero, false
		}
		sw.Once()
	}
}

func (s *segSeq[T]) capacity() int { return int(s.capacity_) }

func (s *segSeq[T]) size() uint64 {
	return clearMSB(s.tail.LoadAcquire()) - s.head.LoadAcquire()
}

func (s *segSeq[T]) isClosed() bool {
	return isClosedTail(s.tail.LoadAcquire())
}

func isClosedTail(tail uint64) bool {
	return tail&closedBit != 0
}

func clearMSB(v uint64) uint64 {
	return v &^ closedBit
}

func (s *segSeq[T]) close() {
	for {
		tail := s.tail.LoadRelaxed()
		if isClosedTail(tail) {
			return
		}
		if s.tail.CompareAndSwapAcqRel(tail, tail|closedBit) {
			return
		}
	}
}

// open reopens a closed, drained segment for reuse at a new start index,
// resetting head/tail/cell sequence numbers — the recycler-driven reuse
// path: a proxy only calls this after the segment has been reclaimed and
// is no longer reachable from any hazard-protected pointer.
func (s *segSeq[T]) open(startIndex uint64) {
	s.startIdx = startIndex
	s.initSlots(startIndex)
	s.next.Store(nil)
}

func (s *segSeq[T]) nextStartIndex() uint64 {
	return s.startIdx + s.capacity_
}

func (s *segSeq[T]) getNext() *segSeq[T] {
	return s.next.Load()
}

// linkNext attempts to install next as this segment's successor exactly
// once, returning false if another goroutine already linked one.
func (s *segSeq[T]) linkNext(next *segSeq[T]) bool {
	return s.next.CompareAndSwap(nil, next)
}

// getNextIdx reads the index-based successor link used by recycler-backed
// proxies; raw is a packed versionedIndex, or the domain's null value.
func (s *segSeq[T]) getNextIdx() uint64 {
	return s.nextIdx.LoadAcquire()
}

func (s *segSeq[T]) storeNextIdxRelease(raw uint64) {
	s.nextIdx.StoreRelease(raw)
}

func (s *segSeq[T]) linkNextIdx(expectedNull, newRaw uint64) bool {
	return s.nextIdx.CompareAndSwapAcqRel(expectedNull, newRaw)
}
