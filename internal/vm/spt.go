package vm

import "go.uber.org/multierr"

// SupplementalPageTable is a thread's VA -> Page map (hash_find/
// hash_insert/hash_clear over spt->findTable in the source, backed
// here by a plain Go map since VA already hashes and compares for
// free).
type SupplementalPageTable struct {
	pages map[VA]*Page
}

// NewSupplementalPageTable returns an empty table.
func NewSupplementalPageTable() *SupplementalPageTable {
	return &SupplementalPageTable{pages: map[VA]*Page{}}
}

// Find looks up the page containing addr, or nil.
func (spt *SupplementalPageTable) Find(addr uintptr) *Page {
	return spt.pages[Round(addr)]
}

// Insert adds page, failing if its VA is already occupied
// (spt_insert_page's hash_insert-returns-non-NULL check).
func (spt *SupplementalPageTable) Insert(page *Page) bool {
	if _, exists := spt.pages[page.VA]; exists {
		return false
	}
	spt.pages[page.VA] = page
	return true
}

// Remove drops page from the table without touching its frame or
// backing store; callers that need cleanup call Kill or free the
// frame themselves first.
func (spt *SupplementalPageTable) Remove(page *Page) {
	delete(spt.pages, page.VA)
}

// AllocUninit registers a lazily-initialized page (vm_alloc_page_with_initializer
// with VM_UNINIT deferred to whatever variant init eventually installs).
func (spt *SupplementalPageTable) AllocUninit(va VA, writable bool, variant Variant, init Initializer) bool {
	p := newUninitPage(va, writable, variant, init, FileBacking{})
	p.Variant = VariantUninit
	p.pendingVariant = variant
	return spt.Insert(p)
}

// AllocFileBacked registers a page backed by a file region that stays
// UNINIT until its first claim runs init and turns it into a FILE page
// (do_mmap's per-page vm_alloc_page_with_initializer(VM_FILE, ...) call).
func (spt *SupplementalPageTable) AllocFileBacked(va VA, writable bool, backing FileBacking, init Initializer) bool {
	p := newUninitPage(va, writable, VariantFile, init, backing)
	p.Variant = VariantUninit
	p.pendingVariant = VariantFile
	return spt.Insert(p)
}

// AllocAnon registers an immediately-anonymous page (used for stack
// growth, which claims straight away rather than deferring to a fault).
func (spt *SupplementalPageTable) AllocAnon(va VA, writable bool) bool {
	p := newUninitPage(va, writable, VariantAnon, nil, FileBacking{})
	p.pendingVariant = VariantAnon
	return spt.Insert(p)
}

// Copy duplicates every page of src into dst for fork's address-space
// clone (supplemental_page_table_copy): UNINIT pages are re-registered
// lazily, already-resident ANON/FILE pages get a fresh claimed frame
// in dst with the source frame's bytes copied in.
func Copy(dst, src *SupplementalPageTable, frames *FrameTable) error {
	var errs error
	for _, p := range src.pages {
		switch {
		case p.Variant == VariantUninit:
			np := newUninitPage(p.VA, p.Writable, VariantUninit, p.init, p.file)
			np.pendingVariant = p.pendingVariant
			dst.Insert(np)
		case p.Present():
			np := newUninitPage(p.VA, p.Writable, p.Variant, nil, p.file)
			np.swapIndex = -1
			dst.Insert(np)
			frame, err := frames.Claim(np)
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			copy(frame.Bytes, p.frame.Bytes)
		default:
			// not present and not uninit: swapped-out ANON/FILE. A
			// swapped-out ANON page gets its own slot holding a copy of
			// the parent's data, so a future fault swaps the same data
			// back in for the child, independent of the parent.
			np := newUninitPage(p.VA, p.Writable, p.Variant, nil, p.file)
			if p.swapIndex >= 0 {
				buf := make([]byte, PageSize)
				slot, err := frames.swap.Alloc()
				if err == nil {
					if err = frames.swap.ReadSlot(p.swapIndex, buf); err == nil {
						err = frames.swap.WriteSlot(slot, buf)
					}
					if err != nil {
						frames.swap.Free(slot)
					}
				}
				if err != nil {
					errs = multierr.Append(errs, err)
					continue
				}
				np.swapIndex = slot
			}
			dst.Insert(np)
		}
	}
	return errs
}

// Kill frees every resident frame and writes back dirty FILE pages,
// aggregating any write-back failures (supplemental_page_table_kill's
// destroy-everything pass, generalized to report rather than ignore
// write-back errors since this runtime can actually observe them).
func Kill(spt *SupplementalPageTable, frames *FrameTable, swap Swapper) error {
	var errs error
	for _, p := range spt.pages {
		if p.Present() {
			if p.Variant == VariantFile && p.dirty {
				if _, err := p.file.Handle.WriteAt(p.frame.Bytes[:p.file.ReadBytes], p.file.Offset); err != nil {
					errs = multierr.Append(errs, err)
				}
			}
			frames.Free(p.frame)
		} else if p.Variant == VariantAnon && p.swapIndex >= 0 && swap != nil {
			swap.Free(p.swapIndex)
		}
	}
	spt.pages = map[VA]*Page{}
	return errs
}
