// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package lfproxy

import "sync/atomic"

// hazardArray is a per-ticket single-slot hazard pointer table plus a
// per-ticket retired list, guarding segment pointers against the
// classic lock-free unlink-then-free race.
//
// Pointer CAS/load here uses sync/atomic.Pointer rather than atomix: atomix's
// public surface covers only fixed-width scalar atomics, never a generic
// pointer wrapper.
type hazardArray[T any] struct {
	maxThreads int
	slots      []atomic.Pointer[T]
	retired    [][]*T
}

func newHazardArray[T any](maxThreads int) *hazardArray[T] {
	return &hazardArray[T]{
		maxThreads: maxThreads,
		slots:      make([]atomic.Pointer[T], maxThreads),
		retired:    make([][]*T, maxThreads),
	}
}

// protect publishes ptr as the value ticket is about to dereference.
func (h *hazardArray[T]) protect(ptr *T, ticket Ticket) *T {
	h.slots[ticket.id].Store(ptr)
	return ptr
}

// protectLoad loads atom and protects the result, retrying until the loaded
// value is still current once published — the classic hazard-pointer
// load-protect-reload pattern.
func (h *hazardArray[T]) protectLoad(atom *atomic.Pointer[T], ticket Ticket) *T {
	for {
		tmp := atom.Load()
		h.slots[ticket.id].Store(tmp)
		if atom.Load() == tmp {
			return tmp
		}
	}
}

func (h *hazardArray[T]) clear(ticket Ticket) {
	h.slots[ticket.id].Store(nil)
}

// isProtected reports whether any ticket other than the given one currently
// holds ptr in its hazard slot.
func (h *hazardArray[T]) isProtected(ptr *T, ticket Ticket) bool {
	for i := 0; i < h.maxThreads; i++ {
		if i == int(ticket.id) {
			continue
		}
		if h.slots[i].Load() == ptr {
			return true
		}
	}
	return false
}

func (h *hazardArray[T]) isProtectedByAny(ptr *T) bool {
	for i := 0; i < h.maxThreads; i++ {
		if h.slots[i].Load() == ptr {
			return true
		}
	}
	return false
}

// retire places ptr on the ticket's retired list and immediately attempts
// to collect everything on that list no longer hazard-protected. Go's GC
// reclaims the underlying memory once no live reference (including this
// retired-list entry) remains, so collect's job is only to drop the
// retired-list entry once it is safe to stop pinning ptr against reuse by
// a recycler-backed proxy.
func (h *hazardArray[T]) retire(ptr *T, ticket Ticket) int {
	if ptr == nil {
		return 0
	}
	h.retired[ticket.id] = append(h.retired[ticket.id], ptr)
	return h.collect(ticket)
}

func (h *hazardArray[T]) collect(ticket Ticket) int {
	list := h.retired[ticket.id]
	kept := list[:0]
	deleted := 0
	for _, obj := range list {
		if h.isProtectedByAny(obj) {
			kept = append(kept, obj)
		} else {
			deleted++
		}
	}
	h.retired[ticket.id] = kept
	return deleted
}
