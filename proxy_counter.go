// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package lfproxy

import (
	"sync/atomic"

	"code.hybscloud.com/atomix"
)

// CounterBoundedProxy links segSeq segments without limiting the chain
// length directly; instead a pair of monotone push/pop counters bounds the
// total live element count to capacity, so segments are still allocated on
// demand but never beyond what the counters allow.
type CounterBoundedProxy[T any] struct {
	_            pad
	head         atomic.Pointer[segSeq[T]]
	_            padPtr
	tail         atomic.Pointer[segSeq[T]]
	_            padPtr
	itemsPushed  atomix.Uint64
	_            pad
	itemsPopped  atomix.Uint64
	_            pad
	ticketing    *ticketAllocator
	hazard       *hazardArray[segSeq[T]]
	segCapacity  int
	fullCapacity int
	lastSeen     []*segSeq[T] // per-ticket cached tail pointer, see safeEnqueue
}

// NewCounterBoundedProxy creates a proxy with capacity live elements, split
// across segments of capacity/chunkFactor elements each.
func NewCounterBoundedProxy[T any](capacity, chunkFactor, maxThreads int) *CounterBoundedProxy[T] {
	if chunkFactor <= 0 {
		panic("lfproxy: chunk factor must be > 0")
	}
	segCapacity := capacity / chunkFactor
	if segCapacity <= 0 {
		panic("lfproxy: segment capacity underflow, capacity too small for chunk factor")
	}
	p := &CounterBoundedProxy[T]{
		ticketing:    newTicketAllocator(maxThreads),
		hazard:       newHazardArray[segSeq[T]](maxThreads),
		segCapacity:  segCapacity,
		fullCapacity: capacity,
		lastSeen:     make([]*segSeq[T], maxThreads),
	}
	sentinel := newSegSeq[T](segCapacity, 0, true)
	p.head.Store(sentinel)
	p.tail.Store(sentinel)
	return p
}

func (p *CounterBoundedProxy[T]) Acquire() (Ticket, bool) { return p.ticketing.acquire() }
func (p *CounterBoundedProxy[T]) Release(t Ticket)        { p.ticketing.release(t) }

func (p *CounterBoundedProxy[T]) capacityRespected() bool {
	return p.itemsPushed.LoadRelaxed()-p.itemsPopped.LoadAcquire() < uint64(p.fullCapacity)
}

func (p *CounterBoundedProxy[T]) Enqueue(t Ticket, item T) bool {
	tail := p.hazard.protectLoad(&p.tail, t)

	for {
		if tail2 := p.tail.Load(); tail != tail2 {
			tail = p.hazard.protectLoad(&p.tail, t)
			continue
		}

		if next := tail.getNext(); next != nil {
			ok := p.tail.CompareAndSwap(tail, next)
			if ok {
				tail = p.hazard.protect(next, t)
			} else {
				tail = p.hazard.protectLoad(&p.tail, t)
			}
			continue
		}

		if !p.capacityRespected() {
			p.hazard.clear(t)
			return false
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
			p.tail.CompareAndSwap(tail, newTail)
			break
		}
		tail = p.hazard.protect(tail.getNext(), t)
	}
	p.itemsPushed.AddAcqRel(1)
	p.hazard.clear(t)
	return true
}

func (p *CounterBoundedProxy[T]) safeEnqueue(t Ticket, tail *segSeq[T], item T) bool {
	if p.lastSeen[t.id] == tail && tail.isClosed() {
		return false
	}
	if !tail.enqueue(item) {
		p.lastSeen[t.id] = tail
		return false
	}
	p.lastSeen[t.id] = nil
	return true
}

func (p *CounterBoundedProxy[T]) Dequeue(t Ticket) (T, bool) {
	head := p.hazard.protectLoad(&p.head, t)

	for {
		if head2 := p.head.Load(); head != head2 {
			head = p.hazard.protectLoad(&p.head, t)
			continue
		}

		if elem, ok := head.dequeue(); ok {
			p.itemsPopped.AddAcqRel(1)
			p.hazard.clear(t)
			return elem, true
		}

		next := head.getNext()
		if next == nil {
			p.hazard.clear(t)
			var zero T
			return zero, false
		}

		if elem, ok := head.dequeue(); ok {
			p.itemsPopped.AddAcqRel(1)
			p.hazard.clear(t)
			return elem, true
		}

		if p.head.CompareAndSwap(head, next) {
			p.hazard.retire(head, t)
			head = p.hazard.protect(next, t)
		} else {
			head = p.hazard.protect(p.head.Load(), t)
		}
	}
}

func (p *CounterBoundedProxy[T]) Capacity() int {
	return p.fullCapacity
}

// Size requires the caller to hold a ticket, matching the design this
// proxy is grounded on.
func (p *CounterBoundedProxy[T]) Size(Ticket) int {
	pushed := p.itemsPushed.LoadRelaxed()
	popped := p.itemsPopped.LoadAcquire()
	if popped > pushed {
		return 0
	}
	return int(pushed - popped)
}
