// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build lfproxyDebug

package lfproxy

// assertNonNegativeSize panics on a torn/negative approximate-size read.
// Only compiled in with the lfproxyDebug build tag.
func assertNonNegativeSize(total int64) {
	if total < 0 {
		panic("lfproxy: negative size detected")
	}
}
