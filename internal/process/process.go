// Package process glues a kernel thread to the user-process concepts
// syscalls need: a file-descriptor table (already carried on
// thread.Thread), fork's parent/child bookkeeping, and the
// fork/exec/wait semaphore handshake process.c drives by hand with
// sema_down/sema_up on the child's fork_sem/wait_sem/load_sem.
package process

import (
	"errors"

	"github.com/hnjog/pintos-kaist/internal/klog"
	"github.com/hnjog/pintos-kaist/internal/thread"
	"github.com/hnjog/pintos-kaist/internal/vm"
	"go.uber.org/multierr"
)

// ErrLoadFailed is returned by Exec when the in-memory "image" could
// not be installed, the generalized stand-in for process_exec's
// load() returning false.
var ErrLoadFailed = errors.New("process: exec load failed")

// Process is the syscall-facing view of a thread: everything a
// running user program can observe about itself.
type Process struct {
	Thread *thread.Thread
}

// Wrap adapts an already-spawned kernel thread into a Process.
func Wrap(t *thread.Thread) *Process {
	return &Process{Thread: t}
}

// Fork spawns a child thread that is a copy of parent's address space
// and duplicates its open file table, matching process_fork: the
// child runs __do_fork, clones the parent's SPT via vm.Copy, then
// signals fork_sem so the parent's sys_fork can return the child's
// tid. entry is the function the child's goroutine runs, standing in
// for the duplicated trap frame __do_fork installs before jumping to
// user code. frames is the frame table the SPT clone claims fresh
// frames from (__do_fork's duplicate_pte walking the parent's page
// table and copying present pages one frame at a time).
func Fork(sched *thread.Scheduler, frames *vm.FrameTable, parent *Process, name string, entry func(child *Process)) (*Process, error) {
	var childThread *thread.Thread
	childThread = sched.Spawn(name, parent.Thread.Priority(), func(aux any) {
		child := &Process{Thread: childThread}
		for fd, f := range parent.Thread.FDTable() {
			child.Thread.FDTable()[fd] = f
		}
		if err := CopyAddressSpace(child, parent, frames); err != nil {
			klog.Sub("process").Infow("fork: address space copy failed", "err", err)
			parent.Thread.ForkSem().Up()
			return
		}
		parent.Thread.ForkSem().Up()
		entry(child)
	}, nil)

	childThread.SetParent(parent.Thread)
	parent.Thread.AddChild(childThread)

	return &Process{Thread: childThread}, nil
}

// CopyAddressSpace clones parent's resident pages into child
// (supplemental_page_table_copy, called once the frame table the
// copy needs is available — internal/vm stays independent of
// internal/thread, so this glue lives here instead).
func CopyAddressSpace(child, parent *Process, frames *vm.FrameTable) error {
	return vm.Copy(child.Thread.SPT(), parent.Thread.SPT(), frames)
}

// Exec replaces p's address space with a fresh one holding a single
// stack page, and sets p's saved user stack pointer to where pushing
// argv under the System V AMD64 convention would leave it: strings
// packed downward from the top, a pointer array with a NULL sentinel
// below that, 16-byte alignment, then a fake return address (the
// layout process_exec's argument_stack helper builds by hand). No argv
// bytes are written to the stack page; see layoutArgv.
func Exec(p *Process, frames *vm.FrameTable, swap vm.Swapper, argv []string) error {
	if err := vm.Kill(p.Thread.SPT(), frames, swap); err != nil {
		return multierr.Append(ErrLoadFailed, err)
	}
	*p.Thread.SPT() = *vm.NewSupplementalPageTable()

	stackBottom := vm.UserStackTop - vm.PageSize
	if !p.Thread.SPT().AllocAnon(vm.Round(stackBottom), true) {
		return ErrLoadFailed
	}
	p.Thread.SetUserStackBottom(stackBottom)

	rsp, ok := layoutArgv(vm.UserStackTop, argv)
	if !ok {
		return ErrLoadFailed
	}
	p.Thread.SetSavedUserRSP(rsp)
	return nil
}

// layoutArgv computes the stack pointer after pushing argv below top,
// without actually writing bytes (no byte-addressable memory backs
// this simulation below vm.Page, so only the pointer arithmetic the
// ABI mandates is modeled; the exec tests assert the resulting
// alignment rather than byte contents).
func layoutArgv(top uintptr, argv []string) (uintptr, bool) {
	sp := top
	for _, s := range argv {
		sp -= uintptr(len(s) + 1)
	}
	sp &^= 7 // word-align the string block

	sp -= uintptr(len(argv)+1) * 8 // argv[] pointer array + NULL sentinel
	sp &^= 15                      // 16-byte align before the fake return address
	sp -= 8                        // fake return address rsp will point below

	if sp == 0 {
		return 0, false
	}
	return sp, true
}

// Wait blocks until the child with tid has exited, returning its exit
// status, or -1 if tid does not name a living or already-reaped child
// (process_wait's sema_down(&child->wait_sem) followed by reading
// child->exit_status and removing it from the child list).
func Wait(p *Process, tid thread.ID) int {
	var child *thread.Thread
	for _, c := range p.Thread.Children() {
		if c.ID() == tid {
			child = c
			break
		}
	}
	if child == nil {
		return -1
	}

	child.WaitSem().Down()
	status := child.ExitStatus()
	p.Thread.RemoveChild(child)
	return status
}

// Exit records status and tears down p's address space before the
// thread itself terminates (process_exit: supplemental_page_table_kill
// then thread_exit, reordered here so the frame table is freed before
// the scheduler reclaims the thread).
func Exit(p *Process, frames *vm.FrameTable, swap vm.Swapper, status int) error {
	err := vm.Kill(p.Thread.SPT(), frames, swap)
	p.Thread.Scheduler().Exit(status)
	return err
}
