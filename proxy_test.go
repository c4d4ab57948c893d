// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package lfproxy_test

import (
	"runtime"
	"sort"
	"sync"
	"testing"

	"code.hybscloud.com/lfproxy"
)

// =============================================================================
// Proxy - Basic Operations
// =============================================================================

func TestUnboundedProxyBasic(t *testing.T) {
	var _ lfproxy.Proxy[int] = lfproxy.NewUnboundedProxy[int](4, 4)

	p := lfproxy.NewUnboundedProxy[int](4, 4)
	ticket, ok := p.Acquire()
	if !ok {
		t.Fatal("Acquire: failed with free ticket slots available")
	}
	defer p.Release(ticket)

	for i := range 10 {
		if !p.Enqueue(ticket, i) {
			t.Fatalf("Enqueue(%d): rejected by an unbounded proxy", i)
		}
	}
	for i := range 10 {
		v, ok := p.Dequeue(ticket)
		if !ok {
			t.Fatalf("Dequeue(%d): got empty, want %d", i, i)
		}
		if v != i {
			t.Fatalf("Dequeue(%d): got %d, want %d", i, v, i)
		}
	}
	if _, ok := p.Dequeue(ticket); ok {
		t.Fatal("Dequeue on empty: got a value, want false")
	}
}

func TestUnboundedFAAProxyBasic(t *testing.T) {
	var _ lfproxy.Proxy[int] = lfproxy.NewUnboundedFAAProxy[int](4, 4)

	p := lfproxy.NewUnboundedFAAProxy[int](4, 4)
	ticket, ok := p.Acquire()
	if !ok {
		t.Fatal("Acquire: failed with free ticket slots available")
	}
	defer p.Release(ticket)

	for i := range 10 {
		if !p.Enqueue(ticket, i) {
			t.Fatalf("Enqueue(%d): rejected by an unbounded proxy", i)
		}
	}
	p.Drain(ticket)
	for i := range 10 {
		v, ok := p.Dequeue(ticket)
		if !ok {
			t.Fatalf("Dequeue(%d): got empty, want %d", i, i)
		}
		if v != i {
			t.Fatalf("Dequeue(%d): got %d, want %d", i, v, i)
		}
	}
	if _, ok := p.Dequeue(ticket); ok {
		t.Fatal("Dequeue on empty: got a value, want false")
	}
}

func TestChunkBoundedProxyBasic(t *testing.T) {
	var _ lfproxy.Proxy[int] = lfproxy.NewChunkBoundedProxy[int](8, 2, 4)

	p := lfproxy.NewChunkBoundedProxy[int](8, 2, 4)
	ticket, _ := p.Acquire()
	defer p.Release(ticket)

	if p.Capacity() != 8 {
		t.Fatalf("Capacity: got %d, want 8", p.Capacity())
	}

	for i := range 8 {
		if !p.Enqueue(ticket, i) {
			t.Fatalf("Enqueue(%d): rejected before reaching capacity", i)
		}
	}
	if p.Enqueue(ticket, 999) {
		t.Fatal("Enqueue beyond capacity: got accepted, want rejected")
	}

	for i := range 8 {
		v, ok := p.Dequeue(ticket)
		if !ok || v != i {
			t.Fatalf("Dequeue(%d): got (%d,%v), want (%d,true)", i, v, ok, i)
		}
	}
	if _, ok := p.Dequeue(ticket); ok {
		t.Fatal("Dequeue on empty: got a value, want false")
	}

	// Capacity freed by the drain above must be usable again.
	if !p.Enqueue(ticket, 42) {
		t.Fatal("Enqueue after drain: rejected though capacity was freed")
	}
}

func TestCounterBoundedProxyBasic(t *testing.T) {
	var _ lfproxy.Proxy[int] = lfproxy.NewCounterBoundedProxy[int](8, 2, 4)

	p := lfproxy.NewCounterBoundedProxy[int](8, 2, 4)
	ticket, _ := p.Acquire()
	defer p.Release(ticket)

	for i := range 8 {
		if !p.Enqueue(ticket, i) {
			t.Fatalf("Enqueue(%d): rejected before reaching capacity", i)
		}
	}
	if p.Enqueue(ticket, 999) {
		t.Fatal("Enqueue beyond capacity: got accepted, want rejected")
	}
	if got := p.Size(ticket); got != 8 {
		t.Fatalf("Size at capacity: got %d, want 8", got)
	}

	for i := range 8 {
		v, ok := p.Dequeue(ticket)
		if !ok || v != i {
			t.Fatalf("Dequeue(%d): got (%d,%v), want (%d,true)", i, v, ok, i)
		}
	}
	if got := p.Size(ticket); got != 0 {
		t.Fatalf("Size after drain: got %d, want 0", got)
	}
}

func TestMemoryBoundedProxyBasic(t *testing.T) {
	var _ lfproxy.Proxy[int] = lfproxy.NewMemoryBoundedProxy[int](8, 4, 4, false)

	p := lfproxy.NewMemoryBoundedProxy[int](8, 4, 4, false)
	ticket, ok := p.Acquire()
	if !ok {
		t.Fatal("Acquire: failed with free ticket slots available")
	}
	defer p.Release(ticket)

	for i := range 20 {
		if !p.Enqueue(ticket, i) {
			t.Fatalf("Enqueue(%d): rejected", i)
		}
		v, ok := p.Dequeue(ticket)
		if !ok || v != i {
			t.Fatalf("Dequeue(%d): got (%d,%v), want (%d,true)", i, v, ok, i)
		}
	}
	if _, ok := p.Dequeue(ticket); ok {
		t.Fatal("Dequeue on empty: got a value, want false")
	}
}

// TestMemoryBoundedProxyDisableCache exercises the recycler without its
// free-list fast path, forcing every segment reuse through retire/reclaim.
func TestMemoryBoundedProxyDisableCache(t *testing.T) {
	p := lfproxy.NewMemoryBoundedProxy[int](4, 2, 4, true)
	ticket, _ := p.Acquire()
	defer p.Release(ticket)

	for round := range 5 {
		for i := range 4 {
			if !p.Enqueue(ticket, round*10+i) {
				t.Fatalf("round %d: Enqueue(%d) rejected", round, i)
			}
		}
		for i := range 4 {
			v, ok := p.Dequeue(ticket)
			want := round*10 + i
			if !ok || v != want {
				t.Fatalf("round %d: Dequeue got (%d,%v), want (%d,true)", round, v, ok, want)
			}
		}
	}
}

// =============================================================================
// Proxy - Ticket Exhaustion
// =============================================================================

func TestProxyTicketExhaustion(t *testing.T) {
	p := lfproxy.NewUnboundedProxy[int](4, 2)

	t1, ok := p.Acquire()
	if !ok {
		t.Fatal("Acquire #1: failed")
	}
	t2, ok := p.Acquire()
	if !ok {
		t.Fatal("Acquire #2: failed")
	}
	if _, ok := p.Acquire(); ok {
		t.Fatal("Acquire #3: got a ticket, want exhaustion with maxThreads=2")
	}

	p.Release(t1)
	if _, ok := p.Acquire(); !ok {
		t.Fatal("Acquire after release: failed though a slot was freed")
	}
	p.Release(t2)
}

// =============================================================================
// Proxy - Concurrent Conservation
//
// Every produced element is dequeued exactly once: no loss, no duplication,
// no resurrection of an element from a recycled or reused segment.
// =============================================================================

func testProxyConservation(t *testing.T, name string, newProxy func(maxThreads int) lfproxy.Proxy[int]) {
	t.Helper()
	if lfproxy.RaceEnabled {
		t.Skip("skip: lock-free algorithm uses cross-variable memory ordering")
	}

	const producers = 4
	const perProducer = 2000
	const total = producers * perProducer
	maxThreads := producers + 2

	p := newProxy(maxThreads)

	var wg sync.WaitGroup
	wg.Add(producers)
	for pid := range producers {
		go func(pid int) {
			defer wg.Done()
			ticket, ok := p.Acquire()
			if !ok {
				t.Errorf("%s: producer %d could not acquire a ticket", name, pid)
				return
			}
			defer p.Release(ticket)
			for i := range perProducer {
				for !p.Enqueue(ticket, pid*perProducer+i) {
					runtime.Gosched()
				}
			}
		}(pid)
	}

	producersDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(producersDone)
	}()

	results := make(chan int, total)
	var consWg sync.WaitGroup
	consWg.Add(2)
	for c := 0; c < 2; c++ {
		go func() {
			defer consWg.Done()
			ticket, ok := p.Acquire()
			if !ok {
				t.Errorf("%s: consumer could not acquire a ticket", name)
				return
			}
			defer p.Release(ticket)
			for {
				v, ok := p.Dequeue(ticket)
				if ok {
					results <- v
					continue
				}
				select {
				case <-producersDone:
					// Producers are done, but one may have published between
					// our last failed Dequeue and Wait returning: drain
					// until genuinely empty before exiting.
					for {
						v, ok := p.Dequeue(ticket)
						if !ok {
							return
						}
						results <- v
					}
				default:
					runtime.Gosched()
				}
			}
		}()
	}

	consWg.Wait()
	close(results)

	seen := make([]bool, total)
	count := 0
	for v := range results {
		if v < 0 || v >= total {
			t.Fatalf("%s: value %d out of range", name, v)
		}
		if seen[v] {
			t.Fatalf("%s: value %d dequeued more than once", name, v)
		}
		seen[v] = true
		count++
	}
	if count != total {
		missing := make([]int, 0)
		for i, s := range seen {
			if !s {
				missing = append(missing, i)
			}
		}
		sort.Ints(missing)
		t.Fatalf("%s: got %d elements, want %d (missing %v)", name, count, total, firstN(missing, 10))
	}
}

func firstN(s []int, n int) []int {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func TestUnboundedProxyConservation(t *testing.T) {
	testProxyConservation(t, "UnboundedProxy", func(maxThreads int) lfproxy.Proxy[int] {
		return lfproxy.NewUnboundedProxy[int](64, maxThreads)
	})
}

func TestUnboundedFAAProxyConservation(t *testing.T) {
	testProxyConservation(t, "UnboundedFAAProxy", func(maxThreads int) lfproxy.Proxy[int] {
		return lfproxy.NewUnboundedFAAProxy[int](64, maxThreads)
	})
}

func TestChunkBoundedProxyConservation(t *testing.T) {
	testProxyConservation(t, "ChunkBoundedProxy", func(maxThreads int) lfproxy.Proxy[int] {
		return lfproxy.NewChunkBoundedProxy[int](1024, 16, maxThreads)
	})
}

func TestCounterBoundedProxyConservation(t *testing.T) {
	testProxyConservation(t, "CounterBoundedProxy", func(maxThreads int) lfproxy.Proxy[int] {
		return lfproxy.NewCounterBoundedProxy[int](1024, 16, maxThreads)
	})
}

func TestMemoryBoundedProxyConservation(t *testing.T) {
	testProxyConservation(t, "MemoryBoundedProxy", func(maxThreads int) lfproxy.Proxy[int] {
		return lfproxy.NewMemoryBoundedProxy[int](256, 16, maxThreads, false)
	})
}

// =============================================================================
// Proxy - Per-Producer FIFO
//
// Across any two elements enqueued by the same ticket, the one enqueued
// first must be dequeued first — even though elements from different
// producers may interleave arbitrarily.
// =============================================================================

func testProxyPerProducerFIFO(t *testing.T, name string, p lfproxy.Proxy[int]) {
	t.Helper()
	if lfproxy.RaceEnabled {
		t.Skip("skip: lock-free algorithm uses cross-variable memory ordering")
	}

	const producers = 4
	const perProducer = 500
	// Pack (producerID, sequence) into one int: producerID*perProducer+seq.
	const total = producers * perProducer

	var wg sync.WaitGroup
	wg.Add(producers)
	for pid := range producers {
		go func(pid int) {
			defer wg.Done()
			ticket, ok := p.Acquire()
			if !ok {
				t.Errorf("%s: producer %d could not acquire a ticket", name, pid)
				return
			}
			defer p.Release(ticket)
			for seq := range perProducer {
				for !p.Enqueue(ticket, pid*perProducer+seq) {
					runtime.Gosched()
				}
			}
		}(pid)
	}

	producersDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(producersDone)
	}()

	lastSeen := make([]int, producers)
	for i := range lastSeen {
		lastSeen[i] = -1
	}

	ticket, ok := p.Acquire()
	if !ok {
		t.Fatalf("%s: consumer could not acquire a ticket", name)
	}
	defer p.Release(ticket)

	count := 0
	for count < total {
		v, ok := p.Dequeue(ticket)
		if !ok {
			select {
			case <-producersDone:
			default:
			}
			runtime.Gosched()
			continue
		}
		pid, seq := v/perProducer, v%perProducer
		if seq <= lastSeen[pid] {
			t.Fatalf("%s: producer %d delivered out of order: saw seq %d after %d", name, pid, seq, lastSeen[pid])
		}
		lastSeen[pid] = seq
		count++
	}
}

func TestUnboundedProxyPerProducerFIFO(t *testing.T) {
	testProxyPerProducerFIFO(t, "UnboundedProxy", lfproxy.NewUnboundedProxy[int](64, 6))
}

func TestChunkBoundedProxyPerProducerFIFO(t *testing.T) {
	testProxyPerProducerFIFO(t, "ChunkBoundedProxy", lfproxy.NewChunkBoundedProxy[int](2048, 16, 6))
}

func TestMemoryBoundedProxyPerProducerFIFO(t *testing.T) {
	testProxyPerProducerFIFO(t, "MemoryBoundedProxy", lfproxy.NewMemoryBoundedProxy[int](512, 16, 6, false))
}

// =============================================================================
// Proxy - Ticket Uniqueness
//
// No two concurrently-registered tickets ever carry the same id.
// =============================================================================

func TestProxyTicketUniqueness(t *testing.T) {
	const maxThreads = 32
	p := lfproxy.NewUnboundedProxy[int](4, maxThreads)

	var mu sync.Mutex
	held := make(map[lfproxy.Ticket]bool)

	var wg sync.WaitGroup
	wg.Add(maxThreads)
	for range maxThreads {
		go func() {
			defer wg.Done()
			ticket, ok := p.Acquire()
			if !ok {
				t.Error("Acquire: failed though maxThreads slots were available")
				return
			}
			mu.Lock()
			if held[ticket] {
				mu.Unlock()
				t.Errorf("ticket %v handed out to two concurrent holders", ticket)
				return
			}
			held[ticket] = true
			mu.Unlock()

			// Hold briefly to maximize overlap with other acquirers.
			runtime.Gosched()

			mu.Lock()
			delete(held, ticket)
			mu.Unlock()
			p.Release(ticket)
		}()
	}
	wg.Wait()
}
