package vm

import "errors"

var (
	errNoFrames = errors.New("vm: frame table has zero capacity")
	errNoVictim = errors.New("vm: clock eviction found no victim")
)

// Swapper is the subset of the swap device vm needs: allocate/free a
// slot and move a page's worth of bytes in or out of it. Kept as an
// interface (implemented by internal/swap.Device) so vm does not
// import internal/swap.
type Swapper interface {
	Alloc() (int, error)
	Free(slot int)
	ReadSlot(slot int, buf []byte) error
	WriteSlot(slot int, buf []byte) error
}

// Frame is one slot of simulated physical memory.
type Frame struct {
	Bytes []byte
	page  *Page
}

// Page returns the page currently occupying the frame, or nil if free.
func (f *Frame) Page() *Page { return f.page }

// FrameTable is the global pool of physical frames, evicted by a
// clock-hand scan over frame_list exactly as vm_get_victim does.
type FrameTable struct {
	capacity int
	frames   []*Frame
	hand     int
	swap     Swapper
}

// NewFrameTable creates a table with room for capacity frames, backed
// by swap for eviction of ANON pages.
func NewFrameTable(capacity int, swap Swapper) *FrameTable {
	return &FrameTable{capacity: capacity, swap: swap}
}

// Len reports how many frames are currently allocated (not
// necessarily all in use).
func (ft *FrameTable) Len() int { return len(ft.frames) }

// Claim materializes page into a resident frame: an existing frame if
// already present, otherwise a fresh or evicted one whose bytes are
// populated from the page's backing store (vm_do_claim_page plus the
// swap_in dispatch that follows it in the source).
func (ft *FrameTable) Claim(page *Page) (*Frame, error) {
	if page.Present() {
		return page.frame, nil
	}

	frame, err := ft.getFrame()
	if err != nil {
		return nil, err
	}
	frame.page = page
	page.frame = frame
	page.accessed = true
	page.dirty = false

	if err := ft.populate(page, frame); err != nil {
		page.frame = nil
		frame.page = nil
		return nil, err
	}
	return frame, nil
}

func (ft *FrameTable) populate(page *Page, frame *Frame) error {
	switch page.Variant {
	case VariantUninit:
		variant := page.pendingVariant
		if page.init != nil {
			if err := page.init(page, frame.Bytes); err != nil {
				return err
			}
		}
		page.Variant = variant
		if variant == VariantAnon {
			page.swapIndex = -1
		}
		return nil
	case VariantAnon:
		if page.swapIndex >= 0 {
			if err := ft.swap.ReadSlot(page.swapIndex, frame.Bytes); err != nil {
				return err
			}
			ft.swap.Free(page.swapIndex)
			page.swapIndex = -1
			return nil
		}
		for i := range frame.Bytes {
			frame.Bytes[i] = 0
		}
		return nil
	case VariantFile:
		n, err := page.file.Handle.ReadAt(frame.Bytes[:page.file.ReadBytes], page.file.Offset)
		if err != nil {
			return err
		}
		for i := n; i < PageSize; i++ {
			frame.Bytes[i] = 0
		}
		return nil
	}
	return nil
}

// getFrame returns a fresh frame if under capacity, otherwise evicts
// the clock-hand victim and returns its now-empty frame
// (vm_get_frame's palloc-or-evict fallback).
func (ft *FrameTable) getFrame() (*Frame, error) {
	if len(ft.frames) < ft.capacity || ft.capacity == 0 {
		frame := &Frame{Bytes: make([]byte, PageSize)}
		ft.frames = append(ft.frames, frame)
		return frame, nil
	}
	return ft.evict()
}

// evict runs the clock algorithm: advance the hand clearing accessed
// bits until a frame with accessed==false is found, writing that
// page's contents out to its backing store first. Matches
// vm_get_victim's two-pass scan (a first pass that may clear every
// frame's bit, a second pass guaranteed to find one now that all are
// clear).
func (ft *FrameTable) evict() (*Frame, error) {
	if len(ft.frames) == 0 {
		return nil, errNoFrames
	}
	for pass := 0; pass < 2; pass++ {
		for i := 0; i < len(ft.frames); i++ {
			idx := ft.hand
			ft.hand = (ft.hand + 1) % len(ft.frames)
			victim := ft.frames[idx]
			if victim.page == nil {
				return victim, nil
			}
			if victim.page.accessed {
				victim.page.accessed = false
				continue
			}
			if err := ft.swapOut(victim); err != nil {
				return nil, err
			}
			return victim, nil
		}
	}
	return nil, errNoVictim
}

// swapOut writes a victim frame's page back to its backing store and
// detaches the mapping (vm_evict_frame -> swap_out dispatch).
func (ft *FrameTable) swapOut(frame *Frame) error {
	page := frame.page
	var err error
	switch page.Type() {
	case VariantAnon:
		slot, allocErr := ft.swap.Alloc()
		if allocErr != nil {
			err = allocErr
			break
		}
		if writeErr := ft.swap.WriteSlot(slot, frame.Bytes); writeErr != nil {
			err = writeErr
			break
		}
		page.swapIndex = slot
	case VariantFile:
		if page.dirty {
			if _, writeErr := page.file.Handle.WriteAt(frame.Bytes[:page.file.ReadBytes], page.file.Offset); writeErr != nil {
				err = writeErr
			}
		}
	}
	page.frame = nil
	page.accessed = false
	page.dirty = false
	frame.page = nil
	return err
}

// Free releases frame back to the pool without writing anything back,
// for callers (SupplementalPageTable Kill) that have already decided
// the contents don't need preserving.
func (ft *FrameTable) Free(frame *Frame) {
	if frame == nil {
		return
	}
	if frame.page != nil {
		frame.page.frame = nil
		frame.page = nil
	}
}
