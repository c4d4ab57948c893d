// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package lfproxy

import "unsafe"

// ProxyOptions configures construction of a Proxy.
type ProxyOptions struct {
	capacity     int
	maxThreads   int
	chunkFactor  int
	disableCache bool
}

// ProxyBuilder creates Proxy instances with a fluent configuration chain.
//
// Example:
//
//	b := lfproxy.NewProxy(4096).MaxThreads(runtime.GOMAXPROCS(0)).ChunkFactor(8)
//	p := lfproxy.BuildChunkBounded[Event](b)
type ProxyBuilder struct {
	opts ProxyOptions
}

// NewProxy creates a proxy builder bounding the queue to capacity live
// elements (BuildUnbounded and BuildUnboundedFAA use it as the per-segment
// capacity instead). maxThreads defaults to 1 if never
// set via MaxThreads — callers with more than one concurrent goroutine must
// call MaxThreads explicitly.
func NewProxy(capacity int) *ProxyBuilder {
	if capacity < 1 {
		panic("lfproxy: capacity must be >= 1")
	}
	return &ProxyBuilder{opts: ProxyOptions{capacity: capacity, maxThreads: 1, chunkFactor: 1}}
}

// MaxThreads sets the number of concurrently registered tickets the proxy
// supports. Acquire fails once this many tickets are outstanding.
func (b *ProxyBuilder) MaxThreads(n int) *ProxyBuilder {
	if n < 1 {
		panic("lfproxy: maxThreads must be >= 1")
	}
	b.opts.maxThreads = n
	return b
}

// ChunkFactor sets the number of segments a bounded proxy's capacity is
// split across (default 1). Used by BuildChunkBounded, BuildCounterBounded,
// and BuildMemoryBounded; ignored by BuildUnbounded and BuildUnboundedFAA.
func (b *ProxyBuilder) ChunkFactor(n int) *ProxyBuilder {
	if n < 1 {
		panic("lfproxy: chunk factor must be >= 1")
	}
	b.opts.chunkFactor = n
	return b
}

// DisableCache turns off the memory-bounded proxy's recycler fast-path
// free-list cache, forcing every segment reuse through the epoch-protected
// retire/reclaim path. Ignored by the other capacity policies.
func (b *ProxyBuilder) DisableCache() *ProxyBuilder {
	b.opts.disableCache = true
	return b
}

// BuildUnbounded creates an UnboundedProxy whose segments hold capacity
// elements each; the queue itself has no overall bound.
func BuildUnbounded[T any](b *ProxyBuilder) *UnboundedProxy[T] {
	return NewUnboundedProxy[T](b.opts.capacity, b.opts.maxThreads)
}

// BuildUnboundedFAA creates an UnboundedFAAProxy: the FAA-array-segment
// sibling of BuildUnbounded, with exactly capacity physical slots per segment
// (no power-of-two rounding) and better throughput under heavy contention.
func BuildUnboundedFAA[T any](b *ProxyBuilder) *UnboundedFAAProxy[T] {
	return NewUnboundedFAAProxy[T](b.opts.capacity, b.opts.maxThreads)
}

// BuildChunkBounded creates a ChunkBoundedProxy capped at b's capacity,
// split across ChunkFactor segments.
func BuildChunkBounded[T any](b *ProxyBuilder) *ChunkBoundedProxy[T] {
	return NewChunkBoundedProxy[T](b.opts.capacity, b.opts.chunkFactor, b.opts.maxThreads)
}

// BuildCounterBounded creates a CounterBoundedProxy capped at b's capacity
// by a push/pop counter pair rather than a fixed segment count.
func BuildCounterBounded[T any](b *ProxyBuilder) *CounterBoundedProxy[T] {
	return NewCounterBoundedProxy[T](b.opts.capacity, b.opts.chunkFactor, b.opts.maxThreads)
}

// BuildMemoryBounded creates a MemoryBoundedProxy backed by an epoch-based
// recycler instead of hazard pointers, bounded to ChunkFactor segment slots.
func BuildMemoryBounded[T any](b *ProxyBuilder) *MemoryBoundedProxy[T] {
	return NewMemoryBoundedProxy[T](b.opts.capacity, b.opts.chunkFactor, b.opts.maxThreads, b.opts.disableCache)
}

// roundToPow2 rounds n up to the next power of 2.
func roundToPow2(n int) int {
	if n < 2 {
		return 2
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}

// ptrSize is the size of a pointer in bytes.
const ptrSize = int(unsafe.Sizeof(uintptr(0)))

// pad is cache line padding to prevent false sharing.
type pad [64]byte

// padShort is padding to fill cache line after 8-byte field.
type padShort [64 - 8]byte

// padPtr is padding to fill cache line after pointer-sized field.
type padPtr [64 - ptrSize]byte
