package vm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeSwap struct {
	slots [][]byte
	free  []bool
}

func newFakeSwap(n int) *fakeSwap {
	s := &fakeSwap{slots: make([][]byte, n), free: make([]bool, n)}
	for i := range s.slots {
		s.slots[i] = make([]byte, PageSize)
		s.free[i] = true
	}
	return s
}

func (s *fakeSwap) Alloc() (int, error) {
	for i, f := range s.free {
		if f {
			s.free[i] = false
			return i, nil
		}
	}
	return 0, errNoFrames
}

func (s *fakeSwap) Free(slot int)                     { s.free[slot] = true }
func (s *fakeSwap) ReadSlot(slot int, buf []byte) error  { copy(buf, s.slots[slot]); return nil }
func (s *fakeSwap) WriteSlot(slot int, buf []byte) error { copy(s.slots[slot], buf); return nil }

type fakeFile struct {
	data []byte
}

func (f *fakeFile) ReadAt(p []byte, off int64) (int, error) {
	n := copy(p, f.data[off:])
	return n, nil
}

func (f *fakeFile) WriteAt(p []byte, off int64) (int, error) {
	if int(off)+len(p) > len(f.data) {
		grown := make([]byte, int(off)+len(p))
		copy(grown, f.data)
		f.data = grown
	}
	return copy(f.data[off:], p), nil
}

func TestClaimAnonZeroFills(t *testing.T) {
	spt := NewSupplementalPageTable()
	require.True(t, spt.AllocAnon(0x1000, true))
	page := spt.Find(0x1000)
	ft := NewFrameTable(4, newFakeSwap(4))

	frame, err := ft.Claim(page)
	require.NoError(t, err)
	for _, b := range frame.Bytes {
		require.Zero(t, b)
	}
}

func TestEvictionWritesAnonToSwapAndRestoresOnFault(t *testing.T) {
	swap := newFakeSwap(4)
	ft := NewFrameTable(1, swap)
	spt := NewSupplementalPageTable()

	spt.AllocAnon(0x1000, true)
	spt.AllocAnon(0x2000, true)

	p1 := spt.Find(0x1000)
	f1, err := ft.Claim(p1)
	require.NoError(t, err)
	f1.Bytes[0] = 0xAB

	p2 := spt.Find(0x2000)
	_, err = ft.Claim(p2) // capacity 1: evicts p1 to swap
	require.NoError(t, err)

	require.False(t, p1.Present())
	require.GreaterOrEqual(t, p1.swapIndex, 0)

	f1Again, err := ft.Claim(p1)
	require.NoError(t, err)
	require.Equal(t, byte(0xAB), f1Again.Bytes[0])
}

func TestLazyFileBackedPageLoadsOnClaim(t *testing.T) {
	file := &fakeFile{data: []byte("hello world, more than a page of filler text")}
	spt := NewSupplementalPageTable()
	backing := FileBacking{Handle: file, Offset: 0, ReadBytes: 11}
	require.True(t, spt.AllocFileBacked(0x3000, false, backing, fileInitializer))

	ft := NewFrameTable(2, newFakeSwap(2))
	page := spt.Find(0x3000)
	frame, err := ft.Claim(page)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(frame.Bytes[:11]))
	require.Equal(t, VariantFile, page.Variant)
}

func TestHandleFaultRejectsKernelAndNull(t *testing.T) {
	spt := NewSupplementalPageTable()
	ft := NewFrameTable(2, newFakeSwap(2))

	res, err := HandleFault(spt, ft, 0, UserStackTop, UserStackTop, true)
	require.NoError(t, err)
	require.False(t, res.Handled)

	res, err = HandleFault(spt, ft, KernelBase+0x10, UserStackTop, UserStackTop, true)
	require.NoError(t, err)
	require.False(t, res.Handled)
}

func TestHandleFaultGrowsStackNearRSP(t *testing.T) {
	spt := NewSupplementalPageTable()
	ft := NewFrameTable(4, newFakeSwap(4))

	rsp := UserStackTop - 4
	res, err := HandleFault(spt, ft, UserStackTop-8, rsp, UserStackTop, true)
	require.NoError(t, err)
	require.True(t, res.Handled)
	require.True(t, res.StackGrew)
	require.Equal(t, UserStackTop-PageSize, res.NewBottom)
}

func TestHandleFaultBeyondStackLimitFails(t *testing.T) {
	spt := NewSupplementalPageTable()
	ft := NewFrameTable(4, newFakeSwap(4))

	tooFar := UserStackTop - stackGrowthLimit - PageSize
	res, err := HandleFault(spt, ft, tooFar, tooFar, UserStackTop, true)
	require.NoError(t, err)
	require.False(t, res.Handled)
}

func TestMmapThenMunmapWritesBackDirtyPages(t *testing.T) {
	file := &fakeFile{data: make([]byte, PageSize)}
	copy(file.data, []byte("original"))

	spt := NewSupplementalPageTable()
	addr, pages, ok := Mmap(spt, 0x5000, PageSize, true, file, len(file.data), 0)
	require.True(t, ok)
	require.Equal(t, 1, pages)

	ft := NewFrameTable(2, newFakeSwap(2))
	page := spt.Find(uintptr(addr))
	frame, err := ft.Claim(page)
	require.NoError(t, err)

	copy(frame.Bytes, []byte("modified"))
	page.MarkDirty()

	require.NoError(t, Munmap(spt, ft, addr, pages))
	require.Equal(t, "modified", string(file.data[:8]))
	require.Nil(t, spt.Find(uintptr(addr)))
}

func TestCopySupplementalPageTableDuplicatesResidentPages(t *testing.T) {
	src := NewSupplementalPageTable()
	src.AllocAnon(0x1000, true)
	ft := NewFrameTable(4, newFakeSwap(4))
	p := src.Find(0x1000)
	f, _ := ft.Claim(p)
	f.Bytes[0] = 0x42

	dst := NewSupplementalPageTable()
	require.NoError(t, Copy(dst, src, ft))

	dp := dst.Find(0x1000)
	require.NotNil(t, dp)
	require.True(t, dp.Present())
	require.Equal(t, byte(0x42), dp.Frame().Bytes[0])
	require.NotSame(t, p.Frame(), dp.Frame())
}
