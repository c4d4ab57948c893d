// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package lfproxy

import "code.hybscloud.com/atomix"

// recyclerBucketState names the four rotating roles a bucket can play
// relative to the recycler's current epoch. Buckets are indexed by
// (epoch + state) mod 4, so as the epoch advances every bucket cycles
// through all four roles in turn.
type recyclerBucketState uint64

const (
	bucketCurrent recyclerBucketState = 0
	bucketNext    recyclerBucketState = 1
	bucketFree    recyclerBucketState = 2
	bucketGrace   recyclerBucketState = 3
)

const recyclerMaxAttempts = 3

// recycler is an epoch-based safe memory reclaimer for a fixed pool of
// `capacity` slot indices. Producers retire a slot into the bucket playing
// Current for the epoch they were protecting (that bucket plays Grace after
// one epoch advance and Free after two); consumers reclaim a slot from
// the bucket playing Free, advancing the global epoch when every tracked
// ticket has moved past the stale one.
//
// Each of the four buckets is itself a bounded CAS-sequenced queue of
// indices: the recycler needs the bucket to support safe concurrent
// enqueue/dequeue without another layer of reclamation, exactly the
// property a fixed-capacity sequenced-cell queue already provides, so this
// reuses MPMCSeq[uint64] rather than inventing a second ring algorithm.
type recycler struct {
	_          pad
	epoch      atomix.Uint64
	_          pad
	ticketing  *ticketAllocator
	cells      []epochCell
	buckets    [4]*MPMCSeq[uint64]
	cache      *MPMCSeq[uint64]
	noCache    bool
	opCounters []atomix.Int64 // per-ticket approximate size contribution
}

func newRecycler(capacity int, maxThreads int, noCache bool) *recycler {
	if capacity <= 0 {
		panic("lfproxy: recycler capacity must be > 0")
	}
	r := &recycler{
		ticketing:  newTicketAllocator(maxThreads),
		cells:      make([]epochCell, maxThreads),
		noCache:    noCache,
		opCounters: make([]atomix.Int64, maxThreads),
	}
	bucketCap := capacity
	if bucketCap < 2 {
		bucketCap = 2
	}
	for i := range r.buckets {
		r.buckets[i] = NewMPMCSeq[uint64](bucketCap)
	}
	if !noCache {
		r.cache = NewMPMCSeq[uint64](bucketCap)
	}

	free := r.bucket(0, bucketFree)
	for i := 0; i < capacity; i++ {
		idx := uint64(i)
		_ = free.Enqueue(&idx)
	}
	return r
}

func (r *recycler) bucket(epoch uint64, state recyclerBucketState) *MPMCSeq[uint64] {
	return r.buckets[(epoch+uint64(state))&3]
}

// registerThread acquires a ticket for the calling goroutine.
func (r *recycler) registerThread() (Ticket, bool) {
	return r.ticketing.acquire()
}

func (r *recycler) unregisterThread(t Ticket) {
	r.ticketing.release(t)
}

func (r *recycler) protectEpoch(t Ticket) {
	current := r.epoch.LoadAcquire()
	r.cells[t.id].protect(current)
}

func (r *recycler) clearEpoch(t Ticket) {
	r.cells[t.id].clear()
}

// protectEpochAndLoadTail spins protect-then-load until the loaded tail is
// stable across the protection, mirroring the recycler's
// protect_epoch_and_load helper.
func (r *recycler) protectEpochAndLoadTail(t Ticket, load func() versionedIndex) versionedIndex {
	for {
		current := r.epoch.LoadAcquire()
		r.cells[t.id].protect(current)
		val := load()
		if val == load() {
			return val
		}
	}
}

func (r *recycler) getFromCache() (uint64, bool) {
	if r.noCache {
		return 0, false
	}
	idx, err := r.cache.Dequeue()
	return idx, err == nil
}

func (r *recycler) putInCache(idx uint64) {
	if r.noCache {
		return
	}
	_ = r.cache.Enqueue(&idx)
}

// retire places idx into the Current bucket relative to the epoch the
// ticket is (or becomes) protecting; that bucket plays Free only after two
// epoch advances. The epoch cannot advance past this point more than once
// while the ticket remains protecting it, so a consumer's reclaim can never
// observe idx as free before every witness of the old epoch has moved on.
func (r *recycler) retire(idx uint64, t Ticket) {
	wasActive, current := r.cells[t.id].snapshot()
	if !wasActive {
		current = r.epoch.LoadAcquire()
		r.cells[t.id].protect(current)
	}
	_ = r.bucket(current, bucketCurrent).Enqueue(&idx)
	if !wasActive {
		r.cells[t.id].clear()
	}
}

// reclaim pulls a free slot index, advancing the epoch when possible.
func (r *recycler) reclaim(t Ticket) (uint64, bool) {
	wasActive, e := r.cells[t.id].snapshot()
	for i := 0; i < recyclerMaxAttempts; i++ {
		// A pass after an epoch advance moves to the new epoch's Free bucket.
		if !wasActive || i > 0 {
			e = r.epoch.LoadAcquire()
			r.cells[t.id].protect(e)
		}

		if idx, err := r.bucket(e, bucketFree).Dequeue(); err == nil {
			if !wasActive {
				r.cells[t.id].clear()
			}
			return idx, true
		}

		if r.canAdvanceEpoch(e) {
			r.epoch.CompareAndSwapAcqRel(e, e+1)
		}
		if r.epoch.LoadAcquire() == e {
			break
		}
	}
	if !wasActive {
		r.cells[t.id].clear()
	}
	return 0, false
}

// canAdvanceEpoch reports whether every registered ticket is either
// inactive or still only protecting the expected (current) epoch — i.e. no
// thread is stuck observing the epoch that is about to become Grace.
func (r *recycler) canAdvanceEpoch(expected uint64) bool {
	if r.epoch.LoadRelaxed() != expected {
		return false
	}
	for i := range r.cells {
		active, e := r.cells[i].snapshot()
		if active && e != expected {
			return false
		}
	}
	return true
}

func (r *recycler) recordEnqueue(t Ticket) {
	r.opCounters[t.id].AddAcqRel(1)
}

func (r *recycler) recordDequeue(t Ticket) {
	r.opCounters[t.id].AddAcqRel(-1)
}

// approxSize sums every ticket's signed op-counter. In debug builds
// (lfproxyDebug build tag) a negative sum panics, mirroring the
// assert(total >= 0) in the design this recycler is grounded on.
func (r *recycler) approxSize() int {
	var total int64
	for i := range r.opCounters {
		total += r.opCounters[i].LoadRelaxed()
	}
	assertNonNegativeSize(total)
	if total < 0 {
		return 0
	}
	return int(total)
}
