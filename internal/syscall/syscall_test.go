package syscall

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hnjog/pintos-kaist/internal/process"
	"github.com/hnjog/pintos-kaist/internal/swap"
	"github.com/hnjog/pintos-kaist/internal/thread"
	"github.com/hnjog/pintos-kaist/internal/vfile"
	"github.com/hnjog/pintos-kaist/internal/vm"
)

func newTable() (*Table, *process.Process) {
	sched := thread.New(false)
	files := vfile.NewTable()
	dev := swap.New(4)
	frames := vm.NewFrameTable(4, dev)
	tbl := NewTable(files, frames, dev, sched)
	return tbl, process.Wrap(sched.Current())
}

func TestCreateOpenCloseRoundTrip(t *testing.T) {
	tbl, p := newTable()

	res := Dispatch(tbl, p, Registers{Number: Create, Str: "a.txt", Arg1: 0})
	require.Equal(t, int64(1), res.Value)

	res = Dispatch(tbl, p, Registers{Number: Open, Str: "a.txt"})
	require.GreaterOrEqual(t, res.Value, int64(2))
	fd := res.Value

	res = Dispatch(tbl, p, Registers{Number: Close, Arg0: uintptr(fd)})
	require.Equal(t, int64(0), res.Value)
	require.Nil(t, p.Thread.LookupFD(int(fd)))
}

func TestRemoveUnknownFileFails(t *testing.T) {
	tbl, p := newTable()
	res := Dispatch(tbl, p, Registers{Number: Remove, Str: "nope"})
	require.Equal(t, int64(0), res.Value)
}

func TestReadWriteConsoleFDsBypassFileTable(t *testing.T) {
	tbl, p := newTable()
	p.Thread.SPT().AllocAnon(0x1000, true)

	res := Dispatch(tbl, p, Registers{Number: Write, Arg0: 1, Arg1: 0x1000, Arg2: 10})
	require.Equal(t, int64(10), res.Value)

	res = Dispatch(tbl, p, Registers{Number: Write, Arg0: 0, Arg1: 0x1000, Arg2: 10})
	require.Equal(t, int64(-1), res.Value)

	res = Dispatch(tbl, p, Registers{Number: Read, Arg0: 1, Arg1: 0x1000, Arg2: 10})
	require.Equal(t, int64(-1), res.Value)
}

func TestWriteWithUnmappedBufferKillsProcess(t *testing.T) {
	tbl, p := newTable()
	res := Dispatch(tbl, p, Registers{Number: Write, Arg0: 1, Arg1: 0xdeadbeef, Arg2: 10})
	require.Equal(t, int64(-1), res.Value)
	require.True(t, res.Killed)
}

func TestExitTearsDownAddressSpace(t *testing.T) {
	tbl, p := newTable()
	p.Thread.SPT().AllocAnon(0x1000, true)
	tbl.Frames.Claim(p.Thread.SPT().Find(0x1000))

	res := Dispatch(tbl, p, Registers{Number: Exit, Arg0: uintptr(7)})
	require.Equal(t, int64(7), res.Value)
	require.True(t, res.Killed)
}

func TestForkReturnsChildTIDAndCopiesAddressSpace(t *testing.T) {
	tbl, p := newTable()
	p.Thread.SPT().AllocAnon(0x1000, true)
	frame, err := tbl.Frames.Claim(p.Thread.SPT().Find(0x1000))
	require.NoError(t, err)
	frame.Bytes[0] = 0x42

	res := Dispatch(tbl, p, Registers{Number: Fork, Str: "child"})
	require.Greater(t, res.Value, int64(0))

	var child *thread.Thread
	for _, c := range p.Thread.Children() {
		if c.ID() == thread.ID(res.Value) {
			child = c
		}
	}
	require.NotNil(t, child)
	childPage := child.SPT().Find(0x1000)
	require.NotNil(t, childPage)
	require.True(t, childPage.Present())
	require.Equal(t, byte(0x42), childPage.Frame().Bytes[0])
}

func TestExecReplacesAddressSpace(t *testing.T) {
	tbl, p := newTable()
	res := Dispatch(tbl, p, Registers{Number: Exec, Str: "prog arg1 arg2"})
	require.Equal(t, int64(0), res.Value)
	require.False(t, res.Killed)
	require.NotZero(t, p.Thread.SavedUserRSP())
}

func TestExecWithEmptyCommandLineKillsProcess(t *testing.T) {
	tbl, p := newTable()
	res := Dispatch(tbl, p, Registers{Number: Exec, Str: "   "})
	require.Equal(t, int64(-1), res.Value)
	require.True(t, res.Killed)
}

func TestMmapThenMunmapTearsDownEveryMappedPage(t *testing.T) {
	tbl, p := newTable()
	require.True(t, tbl.Files.Create("mapped.txt", 5000))
	f, err := tbl.Files.Open("mapped.txt")
	require.NoError(t, err)
	fd := p.Thread.AllocFD(f)

	res := Dispatch(tbl, p, Registers{Number: Mmap, Arg0: 0x2000, Arg1: uintptr(fd), Arg2: 5000, Arg3: 1})
	require.Equal(t, int64(0x2000), res.Value)
	require.NotNil(t, p.Thread.SPT().Find(0x2000))
	require.NotNil(t, p.Thread.SPT().Find(0x3000))
	pages, ok := p.Thread.MmapPages(0x2000)
	require.True(t, ok)
	require.Equal(t, 2, pages)

	Dispatch(tbl, p, Registers{Number: Munmap, Arg0: 0x2000})
	require.Nil(t, p.Thread.SPT().Find(0x2000))
	require.Nil(t, p.Thread.SPT().Find(0x3000))
	_, ok = p.Thread.MmapPages(0x2000)
	require.False(t, ok)
}

func TestMunmapOfUnknownAddressIsANoop(t *testing.T) {
	tbl, p := newTable()
	res := Dispatch(tbl, p, Registers{Number: Munmap, Arg0: 0x9000})
	require.Equal(t, int64(0), res.Value)
}
