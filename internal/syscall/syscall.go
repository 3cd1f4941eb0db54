// Package syscall implements the user-to-kernel call table: the
// SYS_* dispatch syscall_handler switches on, generalized from its
// four-case sketch (SYS_HALT/SYS_EXIT/SYS_READ/SYS_WRITE) to the full
// table, plus the check_address pointer-validation rule every syscall
// taking a user buffer pointer runs first.
package syscall

import (
	"strings"
	"sync"

	"github.com/hnjog/pintos-kaist/internal/klog"
	"github.com/hnjog/pintos-kaist/internal/process"
	"github.com/hnjog/pintos-kaist/internal/thread"
	"github.com/hnjog/pintos-kaist/internal/vfile"
	"github.com/hnjog/pintos-kaist/internal/vm"
)

// Number identifies a syscall the way SYS_* constants do.
type Number int64

const (
	Halt Number = iota
	Exit
	Fork
	Exec
	Wait
	Create
	Remove
	Open
	Filesize
	Read
	Write
	Seek
	Tell
	Close
	Mmap
	Munmap
)

// Registers carries the argument registers syscall_handler reads off
// the trap frame: up to six, mirroring the rdi/rsi/rdx/r10/r8/r9
// calling convention the System V ABI uses for a syscall with the
// most arguments this table dispatches (mmap's addr/fd/length/writable/offset
// plus the syscall number itself in rax). Str carries a filename or
// command-line argument directly rather than as a user-memory pointer
// to decode: without a byte-addressable memory array backing user
// pages below vm.Page, there is no buffer for check_address to walk a
// C string out of, so the kernel/user string-marshaling boundary is
// pushed to the caller the way it already is for Registers itself.
type Registers struct {
	Number Number
	Arg0   uintptr
	Arg1   uintptr
	Arg2   uintptr
	Arg3   uintptr
	Arg4   uintptr
	Arg5   uintptr
	Str    string
}

// Table is the kernel-side context every dispatch needs: the frame
// table/swap device for mmap and Exit/Exec address-space teardown,
// the filesystem, and the scheduler fork/exec need to spawn and
// install a child/replacement thread.
type Table struct {
	Files  *vfile.Table
	Frames *vm.FrameTable
	Swap   vm.Swapper
	Sched  *thread.Scheduler

	fsMu sync.Mutex // filesys_lock: held around user-initiated file I/O only, never around paging
}

// NewTable wires a syscall dispatcher against files, frames, swap and
// the scheduler.
func NewTable(files *vfile.Table, frames *vm.FrameTable, swap vm.Swapper, sched *thread.Scheduler) *Table {
	return &Table{Files: files, Frames: frames, Swap: swap, Sched: sched}
}

// Result is what Dispatch hands back to stash in the return-value
// register, plus whether the call tore the calling process down.
type Result struct {
	Value  int64
	Killed bool
}

// checkAddress validates a user buffer pointer the way check_address
// does: a kernel address, NULL, or one absent from the caller's
// supplemental page table kills the process outright rather than
// returning an error code.
func checkAddress(p *process.Process, addr uintptr) bool {
	if addr == 0 || addr >= vm.KernelBase {
		return false
	}
	return p.Thread.SPT().Find(addr) != nil
}

// Dispatch runs the syscall named by regs.Number against p, mirroring
// syscall_handler's switch on f->R.rax.
func Dispatch(t *Table, p *process.Process, regs Registers) Result {
	switch regs.Number {
	case Halt:
		klog.Sub("syscall").Infow("halt")
		panic("syscall: halt")

	case Exit:
		status := int(int64(regs.Arg0))
		if err := process.Exit(p, t.Frames, t.Swap, status); err != nil {
			klog.Sub("syscall").Infow("exit: address space teardown error", "err", err)
		}
		return Result{Value: int64(status), Killed: true}

	case Fork:
		child, err := process.Fork(t.Sched, t.Frames, p, regs.Str, func(c *process.Process) {})
		if err != nil {
			return Result{Value: -1}
		}
		p.Thread.ForkSem().Down()
		return Result{Value: int64(child.Thread.ID())}

	case Exec:
		argv := strings.Fields(regs.Str)
		if len(argv) == 0 {
			process.Exit(p, t.Frames, t.Swap, -1)
			return Result{Value: -1, Killed: true}
		}
		if err := process.Exec(p, t.Frames, t.Swap, argv); err != nil {
			process.Exit(p, t.Frames, t.Swap, -1)
			return Result{Value: -1, Killed: true}
		}
		return Result{Value: 0}

	case Wait:
		status := process.Wait(p, thread.ID(regs.Arg0))
		return Result{Value: int64(status)}

	case Create:
		if regs.Str == "" {
			return Result{Value: boolToInt(false)}
		}
		return Result{Value: boolToInt(t.Files.Create(regs.Str, int(regs.Arg1)))}

	case Remove:
		return Result{Value: boolToInt(t.Files.Remove(regs.Str))}

	case Open:
		f, err := t.Files.Open(regs.Str)
		if err != nil {
			return Result{Value: -1}
		}
		fd := p.Thread.AllocFD(f)
		return Result{Value: int64(fd)}

	case Filesize:
		f, ok := p.Thread.LookupFD(int(regs.Arg0)).(*vfile.File)
		if !ok {
			return Result{Value: -1}
		}
		size, err := f.Size()
		if err != nil {
			return Result{Value: -1}
		}
		return Result{Value: size}

	case Read:
		if !checkAddress(p, regs.Arg1) {
			process.Exit(p, t.Frames, t.Swap, -1)
			return Result{Value: -1, Killed: true}
		}
		return Result{Value: int64(doRead(t, p, int(regs.Arg0), regs.Arg1, int(regs.Arg2)))}

	case Write:
		if !checkAddress(p, regs.Arg1) {
			process.Exit(p, t.Frames, t.Swap, -1)
			return Result{Value: -1, Killed: true}
		}
		return Result{Value: int64(doWrite(t, p, int(regs.Arg0), regs.Arg1, int(regs.Arg2)))}

	case Seek:
		if f, ok := p.Thread.LookupFD(int(regs.Arg0)).(*vfile.File); ok {
			f.Seek(int64(regs.Arg1))
		}
		return Result{}

	case Tell:
		if f, ok := p.Thread.LookupFD(int(regs.Arg0)).(*vfile.File); ok {
			return Result{Value: f.Tell()}
		}
		return Result{Value: -1}

	case Close:
		fd := int(regs.Arg0)
		if f, ok := p.Thread.LookupFD(fd).(*vfile.File); ok {
			f.Close()
			p.Thread.CloseFD(fd)
		}
		return Result{}

	case Mmap:
		fd := int(regs.Arg1)
		f, ok := p.Thread.LookupFD(fd).(*vfile.File)
		if !ok {
			return Result{Value: 0}
		}
		size, _ := f.Size()
		reopened, err := f.Reopen()
		if err != nil {
			return Result{Value: 0}
		}
		writable := regs.Arg3 != 0
		offset := int64(regs.Arg4)
		addr, pages, okMap := vm.Mmap(p.Thread.SPT(), vm.VA(regs.Arg0), int(regs.Arg2), writable, reopened, int(size), offset)
		if !okMap {
			return Result{Value: 0}
		}
		p.Thread.RecordMmap(uintptr(addr), pages)
		return Result{Value: int64(addr)}

	case Munmap:
		addr := uintptr(regs.Arg0)
		pages, ok := p.Thread.MmapPages(addr)
		if !ok {
			return Result{}
		}
		_ = vm.Munmap(p.Thread.SPT(), t.Frames, vm.VA(addr), pages)
		p.Thread.ForgetMmap(addr)
		return Result{}

	default:
		return Result{Value: -1, Killed: true}
	}
}

// doRead implements read()'s fd 0/1 special cases and the filesys_lock
// scope around ordinary file reads.
func doRead(t *Table, p *process.Process, fd int, bufAddr uintptr, size int) int {
	switch fd {
	case 1:
		return -1
	case 0:
		return size // stdin modeled as always-available; a real keyboard source is out of scope
	default:
		f, ok := p.Thread.LookupFD(fd).(*vfile.File)
		if !ok {
			return -1
		}
		t.fsMu.Lock()
		defer t.fsMu.Unlock()
		buf := make([]byte, size)
		n, err := f.Read(buf)
		if err != nil {
			return -1
		}
		return n
	}
}

// doWrite implements write()'s fd 0/1 special cases and the
// filesys_lock scope around ordinary file writes.
func doWrite(t *Table, p *process.Process, fd int, bufAddr uintptr, size int) int {
	switch fd {
	case 0:
		return -1
	case 1:
		return size // stdout modeled as always-consuming; a real console sink is out of scope
	default:
		f, ok := p.Thread.LookupFD(fd).(*vfile.File)
		if !ok {
			return -1
		}
		t.fsMu.Lock()
		defer t.fsMu.Unlock()
		n, err := f.Write(make([]byte, size))
		if err != nil {
			return -1
		}
		return n
	}
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
