// Package swap implements the anonymous-page swap device: a bitmap of
// free/used slots over a simulated raw disk (vm/anon.c's swap_table
// and swap_disk, generalized from disk sectors to whole page-sized
// slots since this runtime has no separate sector size to model).
package swap

import (
	"errors"
	"sync"

	"github.com/bits-and-blooms/bitset"
)

// PageSize must match vm.PageSize; duplicated here rather than
// importing internal/vm, which would create a cycle (vm.Swapper is
// satisfied structurally by *Device instead).
const PageSize = 4096

var (
	// ErrFull is returned by Alloc when every slot is in use, mirroring
	// anon_swap_out's BITMAP_ERROR case.
	ErrFull = errors.New("swap: device is full")
	// ErrBadSlot is returned by ReadSlot/WriteSlot for an out-of-range
	// slot. Free ignores an out-of-range slot instead.
	ErrBadSlot = errors.New("swap: invalid slot")
)

// Device is a fixed-capacity swap area: slots worth of PageSize bytes
// each, tracked free/used by a bitset the way swap_table tracks
// sectors-per-page groups with bitmap_scan/bitmap_set.
type Device struct {
	mu    sync.Mutex
	slots *bitset.BitSet
	disk  []byte
}

// New creates a swap device with room for slots pages.
func New(slots uint) *Device {
	return &Device{
		slots: bitset.New(slots),
		disk:  make([]byte, uint64(slots)*PageSize),
	}
}

// Slots reports the device's total capacity.
func (d *Device) Slots() uint {
	return d.slots.Len()
}

// Alloc reserves and returns the index of a free slot (bitmap_scan(swap_table, 0, 1, false)).
func (d *Device) Alloc() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := uint(0); i < d.slots.Len(); i++ {
		if !d.slots.Test(i) {
			d.slots.Set(i)
			return int(i), nil
		}
	}
	return 0, ErrFull
}

// Free releases slot back to the pool (bitmap_set(swap_table, page_no, false)).
func (d *Device) Free(slot int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if slot < 0 || uint(slot) >= d.slots.Len() {
		return
	}
	d.slots.Clear(uint(slot))
}

// ReadSlot copies slot's page-sized contents into buf
// (the disk_read loop in anon_swap_in, collapsed to one slice copy
// since there's no per-sector addressing to simulate here).
func (d *Device) ReadSlot(slot int, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if slot < 0 || uint(slot) >= d.slots.Len() {
		return ErrBadSlot
	}
	off := slot * PageSize
	copy(buf, d.disk[off:off+PageSize])
	return nil
}

// WriteSlot copies buf's first PageSize bytes into slot
// (the disk_write loop in anon_swap_out).
func (d *Device) WriteSlot(slot int, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if slot < 0 || uint(slot) >= d.slots.Len() {
		return ErrBadSlot
	}
	off := slot * PageSize
	n := copy(d.disk[off:off+PageSize], buf)
	for i := off + n; i < off+PageSize; i++ {
		d.disk[i] = 0
	}
	return nil
}

// Used reports how many slots are currently occupied, for diagnostics.
func (d *Device) Used() uint {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.slots.Count()
}
