// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package lfproxy

import "sync/atomic"

// UnboundedFAAProxy is UnboundedProxy's sibling built on FAA-array segments
// instead of sequenced-cell segments: better throughput under heavy
// contention, with exactly n (not rounded up to a power of two) physical
// slots per segment, each used once, and an explicit Drain step before a
// final consumer sweep (see Drain).
type UnboundedFAAProxy[T any] struct {
	_           pad
	head        atomic.Pointer[segFAA[T]]
	_           padPtr
	tail        atomic.Pointer[segFAA[T]]
	_           padPtr
	ticketing   *ticketAllocator
	hazard      *hazardArray[segFAA[T]]
	segCapacity int
}

// NewUnboundedFAAProxy creates a proxy whose segments each hold segCapacity
// elements, supporting up to maxThreads concurrently registered tickets.
func NewUnboundedFAAProxy[T any](segCapacity, maxThreads int) *UnboundedFAAProxy[T] {
	if segCapacity <= 0 {
		panic("lfproxy: segment capacity must be > 0")
	}
	p := &UnboundedFAAProxy[T]{
		ticketing:   newTicketAllocator(maxThreads),
		hazard:      newHazardArray[segFAA[T]](maxThreads),
		segCapacity: segCapacity,
	}
	sentinel := newSegFAA[T](segCapacity, 0)
	p.head.Store(sentinel)
	p.tail.Store(sentinel)
	return p
}

func (p *UnboundedFAAProxy[T]) Acquire() (Ticket, bool) {
	return p.ticketing.acquire()
}

func (p *UnboundedFAAProxy[T]) Release(t Ticket) {
	p.ticketing.release(t)
}

func (p *UnboundedFAAProxy[T]) Enqueue(t Ticket, item T) bool {
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

		if tail.enqueue(item) {
			break
		}

		newTail := newSegFAA[T](p.segCapacity, tail.nextStartIndex())
		_ = newTail.enqueue(item)

		if tail.linkNext(newTail) {
			p.tail.CompareAndSwap(tail, newTail)
			break
		}
		tail = p.hazard.protect(tail.getNext(), t)
	}
	p.hazard.clear(t)
	return true
}

func (p *UnboundedFAAProxy[T]) Dequeue(t Ticket) (T, bool) {
	head := p.hazard.protectLoad(&p.head, t)

	for {
		if head2 := p.head.Load(); head != head2 {
			head = p.hazard.protectLoad(&p.head, t)
			continue
		}

		if elem, ok := head.dequeue(); ok {
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

// Drain marks the current tail segment as draining, so a dequeuer racing a
// producer's FAA claim sees a sealed-but-unwritten slot as "keep going"
// rather than "empty". Call once all producers have stopped enqueueing, the
// same contract segFAA's own Drain carries.
func (p *UnboundedFAAProxy[T]) Drain(t Ticket) {
	tail := p.hazard.protectLoad(&p.tail, t)
	tail.drain()
	p.hazard.clear(t)
}

func (p *UnboundedFAAProxy[T]) Capacity() int {
	return p.segCapacity
}

func (p *UnboundedFAAProxy[T]) Size(t Ticket) int {
	tail := p.hazard.protectLoad(&p.tail, t)
	tailIdx := tail.tail.LoadRelaxed()
	if tailIdx > uint64(p.segCapacity) {
		tailIdx = uint64(p.segCapacity)
	}
	head := p.hazard.protectLoad(&p.head, t)
	headIdx := head.head.LoadAcquire()
	p.hazard.clear(t)
	if headIdx > tailIdx {
		return 0
	}
	return int(tailIdx - headIdx)
}
