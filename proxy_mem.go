// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package lfproxy

import "code.hybscloud.com/atomix"

// MemoryBoundedProxy links segSeq segments addressed by recycled slot index
// rather than by pointer. A fixed pool of chunkFactor segments is owned by
// an epoch-based recycler: a drained segment is retired into the recycler
// instead of freed, and a producer that needs a new tail reclaims a slot
// from the recycler's Free bucket instead of allocating.
//
// Its head/tail are versionedIndex values packed into a single atomic
// uint64, so reusing a recycled slot index can never be confused (via CAS)
// with a previous occupant of that slot.
type MemoryBoundedProxy[T any] struct {
	_            pad
	tail         atomix.Uint64 // packed versionedIndex
	_            pad
	head         atomix.Uint64 // packed versionedIndex
	_            pad
	domain       versionedIndexDomain
	versionBits  uint
	recycler     *recycler
	pool         []*segSeq[T]
	segCapacity  int
	fullCapacity int
}

// NewMemoryBoundedProxy creates a proxy over chunkFactor segments of
// capacity/chunkFactor elements each, recycled through an epoch-based
// reclaimer rather than freed and reallocated. disableCache skips the
// recycler's fast-path free-list cache (RecyclerOpt::Disable_Cache).
func NewMemoryBoundedProxy[T any](capacity, chunkFactor, maxThreads int, disableCache bool) *MemoryBoundedProxy[T] {
	if chunkFactor <= 0 {
		panic("lfproxy: chunk factor must be > 0")
	}
	if capacity%chunkFactor != 0 {
		panic("lfproxy: capacity must be a multiple of the chunk factor")
	}
	segCapacity := capacity / chunkFactor
	if segCapacity <= 0 {
		panic("lfproxy: segment capacity underflow, capacity too small for chunk factor")
	}

	domain := newVersionedIndexDomain(uint64(chunkFactor))
	p := &MemoryBoundedProxy[T]{
		domain:       domain,
		versionBits:  64 - domain.indexBits,
		recycler:     newRecycler(chunkFactor, maxThreads, disableCache),
		pool:         make([]*segSeq[T], chunkFactor),
		segCapacity:  segCapacity,
		fullCapacity: capacity,
	}
	for i := range p.pool {
		p.pool[i] = newSegSeq[T](segCapacity, 0, true)
		// nextIdx zero-defaults to index 0, a valid slot — not "no next".
		// Every pool segment starts out unlinked, so stamp the domain's
		// actual null value before it can ever be read as a real link.
		p.pool[i].storeNextIdxRelease(domain.null().raw)
	}

	bootTicket, ok := p.recycler.registerThread()
	if !ok {
		panic("lfproxy: could not register bootstrap ticket")
	}
	sentinelIdx, ok := p.recycler.reclaim(bootTicket)
	if !ok {
		panic("lfproxy: no sentinel segment could be reclaimed")
	}
	sentinel := domain.pack(nextVersion(0, p.versionBits), sentinelIdx)
	p.head.StoreRelaxed(sentinel.raw)
	p.tail.StoreRelaxed(sentinel.raw)
	p.recycler.unregisterThread(bootTicket)

	return p
}

func (p *MemoryBoundedProxy[T]) Acquire() (Ticket, bool) {
	return p.recycler.registerThread()
}

func (p *MemoryBoundedProxy[T]) Release(t Ticket) {
	p.recycler.unregisterThread(t)
}

func (p *MemoryBoundedProxy[T]) decode(idx uint64) *segSeq[T] {
	return p.pool[idx]
}

func (p *MemoryBoundedProxy[T]) Enqueue(t Ticket, item T) bool {
	failedReclamation := false
	var lastSeen uint64
	p.recycler.protectEpoch(t)
	tailRaw := p.tail.LoadAcquire()
	tail := p.domain.fromRaw(tailRaw)

	for {
		tail2Raw := p.tail.LoadAcquire()
		if tailRaw != tail2Raw {
			p.recycler.protectEpoch(t)
			tailRaw = tail2Raw
			tail = p.domain.fromRaw(tailRaw)
			failedReclamation = false
			continue
		}

		seg := p.decode(tail.index())
		nextRaw := seg.getNextIdx()
		next := p.domain.fromRaw(nextRaw)
		if !next.isReserved() {
			p.recycler.protectEpoch(t)
			p.tail.CompareAndSwapAcqRel(tailRaw, nextRaw)
			failedReclamation = false
			continue
		}

		if failedReclamation && lastSeen == tailRaw {
			p.recycler.clearEpoch(t)
			return false
		}
		failedReclamation = false

		if seg.enqueue(item) {
			break
		}

		newIdx, ok := p.recycler.getFromCache()
		if !ok {
			newIdx, ok = p.recycler.reclaim(t)
			if !ok {
				failedReclamation = true
				lastSeen = tailRaw
				continue
			}
		}

		newSeg := p.decode(newIdx)
		newSeg.open(seg.nextStartIndex())
		newSeg.storeNextIdxRelease(p.domain.null().raw)
		_ = newSeg.enqueue(item)

		newTail := p.domain.pack(nextVersion(tail.version(), p.versionBits), newIdx)
		if seg.linkNextIdx(p.domain.null().raw, newTail.raw) {
			p.tail.CompareAndSwapAcqRel(tailRaw, newTail.raw)
			break
		}

		_, _ = newSeg.dequeue()
		if p.recycler.noCache {
			p.recycler.retire(newIdx, t)
		} else {
			p.recycler.putInCache(newIdx)
		}
		p.recycler.protectEpoch(t)
		tailRaw = p.tail.LoadAcquire()
		tail = p.domain.fromRaw(tailRaw)
	}

	p.recycler.clearEpoch(t)
	p.recycler.recordEnqueue(t)
	return true
}

func (p *MemoryBoundedProxy[T]) Dequeue(t Ticket) (T, bool) {
	for {
		headRaw := p.recycler.protectEpochAndLoadTail(t, func() versionedIndex {
			return p.domain.fromRaw(p.head.LoadAcquire())
		})
		head := p.decode(headRaw.index())

		elem, ok := head.dequeue()
		if ok {
			p.recycler.clearEpoch(t)
			p.recycler.recordDequeue(t)
			return elem, true
		}

		nextRaw := head.getNextIdx()
		next := p.domain.fromRaw(nextRaw)
		if next.isReserved() {
			p.recycler.clearEpoch(t)
			var zero T
			return zero, false
		}

		if elem, ok := head.dequeue(); ok {
			p.recycler.clearEpoch(t)
			p.recycler.recordDequeue(t)
			return elem, true
		}

		if p.head.CompareAndSwapAcqRel(headRaw.raw, nextRaw) {
			p.recycler.retire(headRaw.index(), t)
		}
		p.recycler.clearEpoch(t)
	}
}

func (p *MemoryBoundedProxy[T]) Capacity() int {
	return p.fullCapacity
}

// Size does not require the caller to hold a ticket.
func (p *MemoryBoundedProxy[T]) Size(Ticket) int {
	return p.recycler.approxSize()
}
