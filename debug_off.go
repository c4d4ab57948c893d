// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build !lfproxyDebug

package lfproxy

// assertNonNegativeSize is a no-op in release builds.
func assertNonNegativeSize(int64) {}
