// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package lfproxy

import (
	"sync/atomic"

	"code.hybscloud.com/atomix"
)

// ChunkBoundedProxy links segSeq segments like UnboundedProxy, but caps the
// total number of linked segments (chunkFactor), giving the queue an overall
// bounded capacity of chunkFactor*segCapacity elements.
type ChunkBoundedProxy[T any] struct {
	_           pad
	head        atomic.Pointer[segSeq[T]]
	_           padPtr
	tail        atomic.Pointer[segSeq[T]]
	_           padPtr
	tailIdx     atomix.Uint64
	_           pad
	headIdx     atomix.Uint64
	_           pad
	ticketing   *ticketAllocator
	hazard      *hazardArray[segSeq[T]]
	segCapacity int
	chunkFactor int
	opCounters  []atomix.Int64
	lastSeen    []atomix.Uint64 // per-ticket cached tailIdx hint, see safeEnqueue
}

// NewChunkBoundedProxy creates a proxy bounded to chunkFactor linked
// segments of segCapacity elements each.
func NewChunkBoundedProxy[T any](capacity, chunkFactor, maxThreads int) *ChunkBoundedProxy[T] {
	if chunkFactor <= 0 {
		panic("lfproxy: chunk factor must be > 0")
	}
	segCapacity := capacity / chunkFactor
	if segCapacity <= 0 {
		panic("lfproxy: segment capacity underflow, capacity too small for chunk factor")
	}
	p := &ChunkBoundedProxy[T]{
		ticketing:   newTicketAllocator(maxThreads),
		hazard:      newHazardArray[segSeq[T]](maxThreads),
		segCapacity: segCapacity,
		chunkFactor: chunkFactor,
		opCounters:  make([]atomix.Int64, maxThreads),
		lastSeen:    make([]atomix.Uint64, maxThreads),
	}
	p.tailIdx.StoreRelaxed(1)
	p.headIdx.StoreRelaxed(1)
	sentinel := newSegSeq[T](segCapacity, 0, true)
	p.head.Store(sentinel)
	p.tail.Store(sentinel)
	return p
}

func (p *ChunkBoundedProxy[T]) Acquire() (Ticket, bool) { return p.ticketing.acquire() }
func (p *ChunkBoundedProxy[T]) Release(t Ticket)        { p.ticketing.release(t) }

func (p *ChunkBoundedProxy[T]) Enqueue(t Ticket, item T) bool {
	for {
		tail := p.hazard.protectLoad(&p.tail, t)

		if next := tail.getNext(); next != nil {
			ok := p.tail.CompareAndSwap(tail, next)
			if ok {
				tail = p.hazard.protect(next, t)
			}
			continue
		}

		if p.safeEnqueue(t, tail, item) {
			break
		}

		if !p.capacityRespected() {
			p.hazard.clear(t)
			return false
		}

		newTail := newSegSeq[T](p.segCapacity, tail.nextStartIndex(), true)
		_ = newTail.enqueue(item)

		if tail.linkNext(newTail) {
			p.tailIdx.AddAcqRel(1)
			p.tail.CompareAndSwap(tail, newTail)
			break
		}
		// lost the link race; newTail is dropped (never published, GC'd)
	}
	p.hazard.clear(t)
	p.opCounters[t.id].AddAcqRel(1)
	return true
}

// safeEnqueue skips the inner segment enqueue call entirely once this
// ticket has already observed the segment close at the current tailIdx
// generation — without this guard a closed segment's enqueue still has to
// walk its full sequence check before reporting failure, and repeating
// that on every producer every round risks a livelock under high
// contention.
func (p *ChunkBoundedProxy[T]) safeEnqueue(t Ticket, tail *segSeq[T], item T) bool {
	if p.lastSeen[t.id].LoadRelaxed() == p.tailIdx.LoadRelaxed() && tail.isClosed() {
		return false
	}
	if !tail.enqueue(item) {
		p.lastSeen[t.id].StoreRelease(p.tailIdx.LoadAcquire())
		return false
	}
	p.lastSeen[t.id].StoreRelease(0)
	return true
}

func (p *ChunkBoundedProxy[T]) capacityRespected() bool {
	tail := p.tailIdx.LoadRelaxed()
	head := p.headIdx.LoadAcquire()
	return (tail-head)+1 < uint64(p.chunkFactor)
}

func (p *ChunkBoundedProxy[T]) Dequeue(t Ticket) (T, bool) {
	head := p.hazard.protectLoad(&p.head, t)

	for {
		if elem, ok := head.dequeue(); ok {
			p.hazard.clear(t)
			p.opCounters[t.id].AddAcqRel(-1)
			return elem, true
		}

		next := head.getNext()
		if next == nil {
			p.hazard.clear(t)
			var zero T
			return zero, false
		}

		if elem, ok := head.dequeue(); ok {
			p.hazard.clear(t)
			p.opCounters[t.id].AddAcqRel(-1)
			return elem, true
		}

		if p.head.CompareAndSwap(head, next) {
			p.headIdx.AddAcqRel(1)
			p.hazard.retire(head, t)
			head = p.hazard.protect(next, t)
		} else {
			head = p.hazard.protect(p.head.Load(), t)
		}
	}
}

func (p *ChunkBoundedProxy[T]) Capacity() int {
	return p.segCapacity * p.chunkFactor
}

// Size sums every ticket's signed op-counter; does not require the caller
// to hold a ticket.
func (p *ChunkBoundedProxy[T]) Size(Ticket) int {
	var total int64
	for i := range p.opCounters {
		total += p.opCounters[i].LoadRelaxed()
	}
	assertNonNegativeSize(total)
	if total < 0 {
		return 0
	}
	return int(total)
}
