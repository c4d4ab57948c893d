// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package lfproxy

import "code.hybscloud.com/iox"

// ErrWouldBlock indicates the operation cannot proceed immediately.
//
// Returned by MPMCSeq's Enqueue when the recycler's ring buckets are full,
// and by Dequeue when a bucket is empty. It is a control flow signal, not a
// failure: the recycler never propagates it (an empty Free bucket makes
// reclaim try to advance the epoch instead).
//
// This is an alias for [iox.ErrWouldBlock] for ecosystem consistency.
var ErrWouldBlock = iox.ErrWouldBlock
