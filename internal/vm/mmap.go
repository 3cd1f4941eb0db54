package vm

// fileInitializer lazily loads a FILE-backed page's bytes on first
// claim (lazy_load_segment, generalized for both mmap and loader use).
func fileInitializer(page *Page, data []byte) error {
	n, err := page.file.Handle.ReadAt(data[:page.file.ReadBytes], page.file.Offset)
	if err != nil {
		return err
	}
	for i := n; i < len(data); i++ {
		data[i] = 0
	}
	return nil
}

// Mmap registers length bytes of file starting at offset as FILE-backed
// pages beginning at addr, and returns how many pages were mapped
// (do_mmap, generalized to report the mapping's page count so Munmap
// can bound itself to exactly this mapping instead of scanning until
// spt_find_page returns NULL, which breaks once two mappings are
// adjacent).
func Mmap(spt *SupplementalPageTable, addr VA, length int, writable bool, file FileHandle, fileLen int, offset int64) (VA, int, bool) {
	readTotal := length
	if readTotal > fileLen {
		readTotal = fileLen
	}

	pages := (length + PageSize - 1) / PageSize
	if pages == 0 {
		pages = 1
	}

	va := addr
	remaining := readTotal
	for i := 0; i < pages; i++ {
		readBytes := remaining
		if readBytes > PageSize {
			readBytes = PageSize
		}
		if readBytes < 0 {
			readBytes = 0
		}
		backing := FileBacking{Handle: file, Offset: offset, ReadBytes: readBytes}
		if !spt.AllocFileBacked(va, writable, backing, fileInitializer) {
			return 0, 0, false
		}
		remaining -= readBytes
		offset += int64(readBytes)
		va += VA(PageSize)
	}
	return addr, pages, true
}

// Munmap writes back any dirty pages of the pages-page mapping
// starting at addr and removes them from spt (do_munmap, bounded to
// the mapping's own page count rather than scanning until a hole).
func Munmap(spt *SupplementalPageTable, frames *FrameTable, addr VA, pages int) error {
	var firstErr error
	va := addr
	for i := 0; i < pages; i++ {
		page := spt.Find(uintptr(va))
		if page != nil {
			if page.Present() && page.dirty {
				if _, err := page.file.Handle.WriteAt(page.frame.Bytes[:page.file.ReadBytes], page.file.Offset); err != nil && firstErr == nil {
					firstErr = err
				}
			}
			if page.Present() {
				frames.Free(page.frame)
			}
			spt.Remove(page)
		}
		va += VA(PageSize)
	}
	return firstErr
}
