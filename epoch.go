// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package lfproxy

import "code.hybscloud.com/atomix"

// epochCell is a single-writer, many-reader record of which epoch (if any)
// the owning ticket is currently protecting. Only the owning ticket ever
// writes; the recycler's can-advance scan only reads.
type epochCell struct {
	_      pad
	active atomix.Bool
	_      pad
	epoch  atomix.Uint64
	_      pad
}

func (c *epochCell) protect(e uint64) {
	c.epoch.StoreRelaxed(e)
	c.active.StoreRelease(true)
}

func (c *epochCell) clear() {
	c.active.StoreRelease(false)
}

// snapshot reads (active, epoch) consistently enough for the recycler's
// can-advance-epoch scan: active is read first with acquire ordering, so a
// clear() racing with this snapshot is never observed as still-active with
// a stale epoch value.
func (c *epochCell) snapshot() (active bool, epoch uint64) {
	active = c.active.LoadAcquire()
	epoch = c.epoch.LoadRelaxed()
	return active, epoch
}
