package process

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hnjog/pintos-kaist/internal/thread"
	"github.com/hnjog/pintos-kaist/internal/vm"
)

func TestForkDuplicatesFileDescriptorsAndSignalsParent(t *testing.T) {
	sched := thread.New(false)
	frames := vm.NewFrameTable(4, nil)
	parentThread := sched.Current()
	parent := Wrap(parentThread)
	parent.Thread.AllocFD("stdin-ish")

	done := make(chan struct{})
	child, err := Fork(sched, frames, parent, "child", func(c *Process) {
		require.Equal(t, "stdin-ish", c.Thread.LookupFD(2))
		close(done)
	})
	require.NoError(t, err)
	require.NotNil(t, child)

	parent.Thread.ForkSem().Down()
	<-done
}

func TestForkCopiesAddressSpaceWithByteEqualityAndWriteIsolation(t *testing.T) {
	sched := thread.New(false)
	frames := vm.NewFrameTable(8, nil)
	parent := Wrap(sched.Current())

	require.True(t, parent.Thread.SPT().AllocAnon(0x1000, true))
	parentPage := parent.Thread.SPT().Find(0x1000)
	parentFrame, err := frames.Claim(parentPage)
	require.NoError(t, err)
	parentFrame.Bytes[0] = 0xAB

	done := make(chan struct{})
	child, err := Fork(sched, frames, parent, "child", func(c *Process) {
		close(done)
	})
	require.NoError(t, err)

	parent.Thread.ForkSem().Down()
	<-done

	childPage := child.Thread.SPT().Find(0x1000)
	require.NotNil(t, childPage)
	require.True(t, childPage.Present())
	require.Equal(t, parentFrame.Bytes[0], childPage.Frame().Bytes[0])

	childPage.Frame().Bytes[0] = 0xCD
	require.Equal(t, byte(0xAB), parentFrame.Bytes[0])
	require.Equal(t, byte(0xCD), childPage.Frame().Bytes[0])
}

func TestWaitReturnsChildExitStatus(t *testing.T) {
	sched := thread.New(false)
	parent := Wrap(sched.Current())

	childThread := sched.Spawn("child", thread.PriorityDefault+1, func(aux any) {
		sched.Exit(42)
	}, nil)
	childThread.SetParent(parent.Thread)
	parent.Thread.AddChild(childThread)

	status := Wait(parent, childThread.ID())
	require.Equal(t, 42, status)
	require.Empty(t, parent.Thread.Children())
}

func TestWaitOnUnknownChildReturnsNegativeOne(t *testing.T) {
	sched := thread.New(false)
	parent := Wrap(sched.Current())
	require.Equal(t, -1, Wait(parent, thread.ID(999)))
}

func TestExecResetsAddressSpaceAndComputesStackPointer(t *testing.T) {
	sched := thread.New(false)
	p := Wrap(sched.Current())
	frames := vm.NewFrameTable(4, nil)

	require.NoError(t, Exec(p, frames, nil, []string{"prog", "arg1", "arg2"}))
	require.NotZero(t, p.Thread.SavedUserRSP())
	require.Equal(t, uintptr(8), p.Thread.SavedUserRSP()%16)
	require.NotNil(t, p.Thread.SPT().Find(uintptr(vm.UserStackTop-vm.PageSize)))
}
