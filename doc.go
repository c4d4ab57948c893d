// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package lfproxy provides a lock-free, ticket-based FIFO built from linked
// segments instead of one fixed ring: a Proxy's overall capacity (or lack of
// one) is chosen independently of any single segment's size.
//
// # Quick Start
//
//	p := lfproxy.NewUnboundedProxy[Event](256, runtime.GOMAXPROCS(0))
//	ticket, ok := p.Acquire()
//	if !ok {
//	    // every ticket slot (maxThreads) is already in use
//	}
//	defer p.Release(ticket)
//
//	p.Enqueue(ticket, ev)
//	elem, ok := p.Dequeue(ticket)
//
// Go has no safe per-goroutine storage to hide a thread-local cache behind,
// so every Proxy method takes the [Ticket] explicitly rather than resolving
// it from the calling goroutine.
//
// # Capacity Policies
//
// Four capacity policies are available through five constructors, chosen
// by which constructor (or Build function over a [ProxyBuilder]) is used:
//
//	NewUnboundedProxy[T]       - never blocks on capacity, grows by linking
//	                             a fresh segment; reclaimed via hazard
//	                             pointers once every reader has moved past it
//	NewUnboundedFAAProxy[T]    - same capacity policy, FAA-array segments
//	                             instead of sequenced-cell ones: better
//	                             throughput under heavy contention, exactly
//	                             n (not rounded up to a power of two)
//	                             physical slots per segment
//	NewChunkBoundedProxy[T]    - bounded to a fixed number of linked segments
//	NewCounterBoundedProxy[T]  - bounded by a push/pop counter pair instead
//	                             of counting linked segments directly
//	NewMemoryBoundedProxy[T]   - bounded to a fixed pool of segments reused
//	                             through an epoch-based recycler instead of
//	                             hazard pointers — no unbounded allocation
//	                             even transiently
//
// [ProxyBuilder] offers a fluent alternative to calling a constructor
// directly; a Build function then creates the proxy from it:
//
//	b := lfproxy.NewProxy(4096).MaxThreads(runtime.GOMAXPROCS(0)).ChunkFactor(8)
//	p := lfproxy.BuildChunkBounded[Event](b)
//
// # Algorithm Selection
//
// Prefer NewUnboundedProxy or NewUnboundedFAAProxy when producers must never
// see backpressure and memory growth is acceptable. Prefer
// NewChunkBoundedProxy or NewCounterBoundedProxy when a hard cap on live
// elements is required and hazard-pointer reclamation overhead is
// acceptable. Prefer NewMemoryBoundedProxy when the segment pool itself must
// never grow — every segment is recycled from a fixed arena via epochs
// rather than freed and reallocated.
//
// # Thread Safety
//
// Every Proxy method requires a valid [Ticket] acquired from that same
// proxy. Passing a ticket to any proxy other than the one it was acquired
// from, or calling a method with a released ticket, is undefined behavior —
// there is no hazard protection to fall back on outside the ticket's own
// slot.
//
// # Race Detection
//
// Go's race detector is not designed for lock-free algorithm verification.
// The race detector tracks explicit synchronization primitives (mutex, channels,
// WaitGroup) but cannot observe happens-before relationships established through
// atomic memory orderings (acquire-release semantics).
//
// Segments use sequence numbers (or, for the FAA variant, explicit cell
// states) with acquire-release semantics to protect non-atomic data fields.
// These algorithms are correct, but the race detector may report false
// positives because it cannot track synchronization provided by atomic
// operations on separate variables. Tests incompatible with race detection
// skip themselves when [RaceEnabled] is true.
//
// # Dependencies
//
// This package uses [code.hybscloud.com/atomix] for atomic primitives with
// explicit memory ordering, [code.hybscloud.com/spin] for CPU pause
// instructions during bounded spin-waits, and [code.hybscloud.com/iox] for
// the semantic error ([ErrWouldBlock]) the internal recycler ring uses.
package lfproxy
