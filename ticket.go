// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package lfproxy

import "code.hybscloud.com/atomix"

// maxTicketInstances bounds the number of independent ticket allocators
// (one per proxy) that may exist concurrently in a process.
const maxTicketInstances = 16

// maxTicketBits bounds the number of distinct tickets a single allocator
// can hand out.
const maxTicketBits = 1024

const ticketCells = (maxTicketBits + 63) / 64

// invalidTicket marks the absence of a ticket.
const invalidTicket = ^uint64(0)

var ticketInstanceBitmap = func() *atomix.Uint64 {
	a := &atomix.Uint64{}
	if maxTicketInstances >= 64 {
		a.StoreRelaxed(^uint64(0))
	} else {
		a.StoreRelaxed((uint64(1) << maxTicketInstances) - 1)
	}
	return a
}()

func allocateTicketInstance() uint64 {
	for {
		cur := ticketInstanceBitmap.LoadRelaxed()
		if cur == 0 {
			panic("lfproxy: too many ticket allocator instances")
		}
		bit := trailingZeros64(cur)
		mask := uint64(1) << bit
		if ticketInstanceBitmap.CompareAndSwapAcqRel(cur, cur&^mask) {
			return bit
		}
	}
}

func freeTicketInstance(id uint64) {
	if id >= maxTicketInstances {
		return
	}
	for {
		cur := ticketInstanceBitmap.LoadRelaxed()
		if ticketInstanceBitmap.CompareAndSwapAcqRel(cur, cur|(uint64(1)<<id)) {
			return
		}
	}
}

func trailingZeros64(x uint64) uint64 {
	if x == 0 {
		return 64
	}
	var n uint64
	for x&1 == 0 {
		x >>= 1
		n++
	}
	return n
}

// Ticket is the handle a caller acquires once (per proxy) and threads
// through every subsequent Enqueue/Dequeue/Release call.
//
// Go has no safe per-goroutine storage, so unlike the thread-local caching
// this design is based on, a Ticket is not looked up implicitly: the caller
// owns the value and is responsible for not sharing it across concurrent
// goroutines.
type Ticket struct {
	id uint64
}

func (t Ticket) valid() bool {
	return t.id != invalidTicket
}

// ticketAllocator hands out the smallest available integer in
// [0, maxThreads) to callers, and reclaims it on release.
type ticketAllocator struct {
	instanceID uint64
	maxThreads uint64
	bits       [ticketCells]atomix.Uint64
}

func newTicketAllocator(maxThreads int) *ticketAllocator {
	if maxThreads <= 0 || maxThreads > maxTicketBits {
		panic("lfproxy: maxThreads out of range")
	}
	a := &ticketAllocator{
		instanceID: allocateTicketInstance(),
		maxThreads: uint64(maxThreads),
	}
	remaining := a.maxThreads
	for i := range a.bits {
		var bits uint64
		switch {
		case remaining >= 64:
			bits = ^uint64(0)
			remaining -= 64
		case remaining > 0:
			bits = (uint64(1) << remaining) - 1
			remaining = 0
		}
		a.bits[i].StoreRelaxed(bits)
	}
	return a
}

// close returns the allocator's instance slot to the global pool.
// Callers must release all outstanding tickets first.
func (a *ticketAllocator) close() {
	freeTicketInstance(a.instanceID)
}

// acquire picks the smallest free ticket and claims it via CAS.
// Returns an invalid Ticket and false if none are available.
func (a *ticketAllocator) acquire() (Ticket, bool) {
	for cell := range a.bits {
		for {
			cur := a.bits[cell].LoadRelaxed()
			if cur == 0 {
				break
			}
			bit := trailingZeros64(cur)
			id := uint64(cell)*64 + bit
			if id >= a.maxThreads {
				break
			}
			mask := uint64(1) << bit
			if a.bits[cell].CompareAndSwapAcqRel(cur, cur&^mask) {
				return Ticket{id: id}, true
			}
			// CAS failed: cur is stale, reread and retry within this cell.
		}
	}
	return Ticket{id: invalidTicket}, false
}

// release returns a ticket to the pool. It is not idempotent: the Ticket
// value is not invalidated, so releasing it again frees its id again, even
// if another caller has acquired that id in between. Releasing an invalid
// Ticket is a no-op.
func (a *ticketAllocator) release(t Ticket) {
	if !t.valid() {
		return
	}
	cell := t.id / 64
	bit := t.id % 64
	for {
		cur := a.bits[cell].LoadRelaxed()
		if a.bits[cell].CompareAndSwapAcqRel(cur, cur|(uint64(1)<<bit)) {
			return
		}
	}
}
