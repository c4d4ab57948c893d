// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package lfproxy

// Proxy is a ticket-based FIFO built from linked segments instead of one
// fixed ring. A Proxy has no implicit per-goroutine identity: callers must
// Acquire a Ticket before calling Enqueue/Dequeue/Size and Release it when
// done, since the proxy uses the ticket slot to protect whatever segment it
// is currently inspecting.
//
// Example:
//
//	p := lfproxy.NewUnboundedProxy[Event](256, runtime.GOMAXPROCS(0))
//	t, ok := p.Acquire()
//	if !ok {
//	    // every ticket slot is in use
//	}
//	defer p.Release(t)
//	p.Enqueue(t, ev)
//	elem, ok := p.Dequeue(t)
type Proxy[T any] interface {
	// Acquire books a ticket for the calling goroutine. ok is false if
	// every slot is already held (the proxy was constructed with too low a
	// maxThreads for the number of concurrent callers).
	Acquire() (Ticket, bool)
	// Release returns a ticket acquired from this proxy. It is not
	// idempotent: releasing the same Ticket value twice frees its id twice,
	// even if another caller has acquired that id in between.
	Release(Ticket)
	// Enqueue adds an element, returning false if the proxy's capacity
	// policy rejects it (always true for an unbounded proxy).
	Enqueue(Ticket, T) bool
	// Dequeue removes and returns an element, or (zero, false) if empty.
	Dequeue(Ticket) (T, bool)
	// Capacity reports the proxy's configured capacity. Its meaning is
	// policy-dependent: an unbounded proxy reports its per-segment size,
	// the bounded policies report the overall element bound.
	Capacity() int
	// Size returns an approximation of the live element count.
	Size(Ticket) int
}
