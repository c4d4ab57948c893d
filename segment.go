// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package lfproxy

// linkedSegment is the shape every segment algorithm offers a proxy:
// bounded enqueue/dequeue, a next-pointer for chaining, and open/close for
// segment reuse once recycled back into a pool.
//
// Segments close automatically once their tail is exhausted (AUTO_CLOSE in
// the design this is grounded on); segFAA closes by exhausting its fixed
// slot count instead, since it has no sequence cycle to detect a stale tail
// against.
type linkedSegment[T any] interface {
	enqueue(item T) bool
	dequeue() (T, bool)
	capacity() int
	isClosed() bool
	open(startIndex uint64)
	close()
	nextStartIndex() uint64
}
