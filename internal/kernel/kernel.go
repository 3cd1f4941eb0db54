// Package kernel wires the scheduler, the virtual-memory/swap
// subsystem, the syscall table and the timer pump together, playing
// the role of main()'s setup sequence (trap handler install, device
// attach, cpus_start) now that there is no bare-metal boot to perform.
package kernel

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hnjog/pintos-kaist/internal/klog"
	"github.com/hnjog/pintos-kaist/internal/process"
	"github.com/hnjog/pintos-kaist/internal/swap"
	"github.com/hnjog/pintos-kaist/internal/syscall"
	"github.com/hnjog/pintos-kaist/internal/thread"
	"github.com/hnjog/pintos-kaist/internal/timer"
	"github.com/hnjog/pintos-kaist/internal/vfile"
	"github.com/hnjog/pintos-kaist/internal/vm"
)

// BootConfig mirrors the single `-o mlfqs` command-line flag the
// source kernel parses, generalized with the frame-table and
// swap-device sizes this hosted runtime needs instead of real RAM and
// a real disk.
type BootConfig struct {
	MLFQS     bool
	Frames    int
	SwapSlots int
}

// Kernel owns every subsystem instance for one run: the scheduler,
// frame table, swap device, filesystem and syscall table, plus the
// timer pump goroutine that stands in for the timer interrupt.
type Kernel struct {
	Scheduler *thread.Scheduler
	Frames    *vm.FrameTable
	Swap      *swap.Device
	Files     *vfile.Table
	Syscalls  *syscall.Table
	Timer     *timer.Timer

	bootID string
}

// New constructs a Kernel from cfg without starting anything, the
// analogue of phys_init/dmap_init/perfsetup running before
// Install_traphandler and the device attach/cpu-start calls.
func New(cfg BootConfig) *Kernel {
	bootID := klog.Boot(cfg.MLFQS)

	sched := thread.New(cfg.MLFQS)
	dev := swap.New(uint(cfg.SwapSlots))
	frames := vm.NewFrameTable(cfg.Frames, dev)
	files := vfile.NewTable()
	syscalls := syscall.NewTable(files, frames, dev, sched)

	return &Kernel{
		Scheduler: sched,
		Frames:    frames,
		Swap:      dev,
		Files:     files,
		Syscalls:  syscalls,
		Timer:     timer.New(),
		bootID:    bootID.String(),
	}
}

// Run starts the timer pump (trap_disk/trap_cons's supervised-goroutine
// pattern, generalized to an errgroup so a panicking device brings the
// whole run down loudly instead of the original's bare `for {}` spin)
// and blocks until ctx is cancelled.
func (k *Kernel) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return k.pumpTimer(ctx)
	})

	<-ctx.Done()
	return g.Wait()
}

// pumpTimer advances the simulated timer once per period and feeds
// each tick to the scheduler (timer_interrupt calling thread_tick),
// the real-time analogue of the hardware PIT firing TIMER_FREQ times
// a second.
func (k *Kernel) pumpTimer(ctx context.Context) error {
	period := time.Second / timer.Frequency
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			ticks := k.Timer.Tick()
			k.Scheduler.OnTick(ticks, timer.Frequency)
		}
	}
}

// Spawn creates a top-level process (no parent), the hosted stand-in
// for sys_execv1 being called directly from main() for "bin/init"
// rather than via a fork/exec syscall pair. It yields once after
// spawning so a same-priority process actually gets a turn before
// Spawn returns: on real hardware the boot thread doesn't need to do
// this explicitly because thread_tick's timer-driven round robin
// eventually rotates to the new thread regardless of priority, but
// nothing in this simulation forces a goroutine to give up the CPU
// except a call that goes through the scheduler's own gate.
func (k *Kernel) Spawn(name string, entry func(p *process.Process)) *process.Process {
	var p *process.Process
	t := k.Scheduler.Spawn(name, thread.PriorityDefault, func(aux any) {
		entry(p)
	}, nil)
	p = process.Wrap(t)
	k.Scheduler.Yield()
	return p
}
