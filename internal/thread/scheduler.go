package thread

import (
	"math"
	"runtime"
	"sync"

	"go.uber.org/atomic"

	"github.com/hnjog/pintos-kaist/internal/interrupt"
	"github.com/hnjog/pintos-kaist/internal/klog"
	"github.com/hnjog/pintos-kaist/internal/vm"
)

// Scheduler owns the ready/sleep queues and the single "CPU" of this
// kernel. Every thread body runs on its own goroutine; the Scheduler's
// gate plus condition variable give the illusion of a single core by
// only ever letting the goroutine that matches Scheduler.current
// proceed past a wait point — the same "save current register file;
// restore another's; transfer control" primitive a real context switch
// performs, implemented with channels-of-control instead of register
// save areas.
type Scheduler struct {
	gate *interrupt.Gate
	cond *sync.Cond

	ready []*Thread // priority-desc, FIFO among equal priority
	sleep []*Thread

	current *Thread
	idle    *Thread

	mlfqs   bool
	loadAvg atomic.Int64 // fixedpoint.Fixed, stored as int64 for atomic reads outside the gate

	earliestWake atomic.Int64

	log interface {
		Infow(string, ...any)
	}
}

// New creates a Scheduler, installing the calling goroutine as the
// initial "main" thread (running) and an idle thread (the fallback
// next_thread_to_run() returns when the ready list is empty).
func New(mlfqs bool) *Scheduler {
	s := &Scheduler{
		gate: interrupt.New(),
	}
	s.cond = sync.NewCond(s.gate)
	s.earliestWake.Store(math.MaxInt64)
	s.mlfqs = mlfqs

	main := s.newThread("main", PriorityDefault, nil, nil)
	main.state = StateRunning
	s.current = main

	idle := s.newThread("idle", PriorityMin, nil, nil)
	idle.state = StateBlocked
	s.idle = idle

	return s
}

func (s *Scheduler) newThread(name string, priority int, fn func(aux any), aux any) *Thread {
	t := &Thread{
		id:           allocateTID(),
		name:         name,
		magic:        threadMagic,
		sched:        s,
		fn:           fn,
		aux:          aux,
		state:        StateBlocked,
		basePriority: priority,
		priority:     priority,
		fdTable:      map[int]any{},
		nextFD:       2,
		spt:          vm.NewSupplementalPageTable(),
		mmaps:        map[uintptr]int{},
	}
	t.forkSem = NewSemaphore(s, 0)
	t.waitSem = NewSemaphore(s, 0)
	t.loadSem = NewSemaphore(s, 0)
	t.exitSem = NewSemaphore(s, 0)
	return t
}

// currentLocked returns the currently running thread without locking,
// for callers that already hold the gate (e.g. synchronisation
// primitives implemented in this package).
func (s *Scheduler) currentLocked() *Thread { return s.current }

// Current returns the currently running thread.
func (s *Scheduler) Current() *Thread {
	s.gate.Lock()
	defer s.gate.Unlock()
	return s.current
}

// Spawn creates a new thread named name with base priority, running fn
// on its own goroutine, and makes it ready to run: the lifecycle is
// created -> BLOCKED -> immediately unblocked -> READY.
func (s *Scheduler) Spawn(name string, priority int, fn func(aux any), aux any) *Thread {
	if priority < PriorityMin || priority > PriorityMax {
		priority = PriorityDefault
	}
	t := s.newThread(name, priority, fn, aux)

	go func() {
		s.gate.Lock()
		s.waitForTurn(t)
		s.gate.Unlock()
		fn(aux)
		s.Exit(0)
	}()

	s.gate.Lock()
	s.unblockLocked(t)
	s.maybePreemptLocked(false)
	s.gate.Unlock()
	return t
}

// waitForTurn parks the calling goroutine on the condition variable
// until the scheduler has chosen t to run. Must be called with the
// gate held; returns with the gate held.
func (s *Scheduler) waitForTurn(t *Thread) {
	for s.current != t {
		s.cond.Wait()
	}
}

// insertReady inserts t into the ready list ordered by effective
// priority descending, FIFO among equal priorities (mirrors
// list_insert_ordered + cmp_priority in thread.c).
func (s *Scheduler) insertReady(t *Thread) {
	i := 0
	for i < len(s.ready) && s.ready[i].priority >= t.priority {
		i++
	}
	s.ready = append(s.ready, nil)
	copy(s.ready[i+1:], s.ready[i:])
	s.ready[i] = t
}

func (s *Scheduler) popReadyFront() *Thread {
	if len(s.ready) == 0 {
		return nil
	}
	t := s.ready[0]
	s.ready = s.ready[1:]
	return t
}

func (s *Scheduler) nextThreadToRun() *Thread {
	if t := s.popReadyFront(); t != nil {
		return t
	}
	return s.idle
}

// schedule performs the scheduling decision: the caller has already
// updated prev's state (Ready/Blocked/Dying); schedule picks the next
// thread, installs it as current, and wakes every parked goroutine.
// Unless the caller is the idle sentinel (which owns no goroutine of
// its own — nothing is actually "running" while the CPU is halted) or
// is dying, it then waits for its own next turn. Must be called with
// the gate held; returns with the gate held (except that a dying
// caller never returns meaningfully, since its goroutine exits next,
// and the idle case, which is always called from some other
// goroutine's context rather than a parked idle body).
func (s *Scheduler) schedule() {
	prev := s.current
	next := s.nextThreadToRun()
	next.state = StateRunning
	next.ticksSinceSwitch = 0
	s.current = next
	s.cond.Broadcast()
	if prev != next && prev != s.idle && prev.state != StateDying {
		s.waitForTurn(prev)
	}
}

// yieldLocked implements thread_yield with the gate already held.
func (s *Scheduler) yieldLocked() {
	curr := s.current
	if curr != s.idle {
		curr.state = StateReady
		s.insertReady(curr)
	}
	s.schedule()
}

// Yield gives up the CPU without sleeping; the thread remains ready
// and may run again immediately.
func (s *Scheduler) Yield() {
	s.gate.Lock()
	defer s.gate.Unlock()
	s.yieldLocked()
}

// blockLocked deschedules t (RUNNING -> BLOCKED) until some other
// thread calls Unblock on it. Must be called with the gate already
// held by the caller, matching thread_block's precondition that
// interrupts are already off; returns with the gate held.
func (s *Scheduler) blockLocked(t *Thread) {
	t.assertMagic()
	t.state = StateBlocked
	s.schedule()
}

func (s *Scheduler) unblockLocked(t *Thread) {
	t.assertMagic()
	t.state = StateReady
	s.insertReady(t)
}

// Unblock transitions a blocked thread to ready without preempting the
// caller; callers that need preemption call maybePreemptLocked or
// Yield themselves afterward, mirroring compare_Curr_ReadyList being a
// separate call in the source.
func (s *Scheduler) Unblock(t *Thread) {
	s.gate.Lock()
	defer s.gate.Unlock()
	s.unblockLocked(t)
}

// maybePreemptLocked implements compare_Curr_ReadyList: if the front
// of the ready list now outranks the running thread, yield. fromISR
// selects between yielding immediately (ordinary kernel code) and
// requesting a yield on return (interrupt context).
func (s *Scheduler) maybePreemptLocked(fromISR bool) {
	if s.current == s.idle {
		if len(s.ready) > 0 {
			s.schedule()
		}
		return
	}
	if len(s.ready) == 0 {
		return
	}
	if s.ready[0].priority <= s.current.priority {
		return
	}
	if fromISR {
		s.gate.RequestYieldOnReturn()
		return
	}
	s.yieldLocked()
}

// Exit terminates the current thread with the given status
// (RUNNING -> DYING). Its structure is reclaimed at the next
// scheduling decision, which schedule()'s never-return-to-prev path
// already guarantees since a dying thread is never reinserted
// anywhere.
func (s *Scheduler) Exit(status int) {
	s.gate.Lock()
	curr := s.current
	curr.exitStatus = status
	curr.state = StateDying
	klog.Sub("sched").Infow("thread exit", "name", curr.name, "status", status)
	curr.waitSem.upLocked()
	s.schedule()
	s.gate.Unlock()
	if curr.fn != nil {
		// A spawned thread's goroutine ends here, like thread_exit never
		// returning; only the initial "main" thread has no body to leave.
		runtime.Goexit()
	}
}

// SetPriority sets the current thread's base priority; a no-op under
// MLFQS, where niceness and recent CPU usage drive priority instead.
func (s *Scheduler) SetPriority(priority int) {
	s.gate.Lock()
	defer s.gate.Unlock()
	if s.mlfqs {
		return
	}
	curr := s.current
	curr.basePriority = priority
	refreshPriorityLocked(curr)
	donatePriorityLocked(curr)
	s.maybePreemptLocked(false)
}

// Priority returns the current thread's effective priority.
func (s *Scheduler) Priority() int {
	s.gate.Lock()
	defer s.gate.Unlock()
	return s.current.priority
}

// ReadyLen reports the ready list length, for tests asserting queue
// invariants.
func (s *Scheduler) ReadyLen() int {
	s.gate.Lock()
	defer s.gate.Unlock()
	return len(s.ready)
}

// ReadyFrontPriority reports the priority of the head of the ready
// queue, or -1 if empty.
func (s *Scheduler) ReadyFrontPriority() int {
	s.gate.Lock()
	defer s.gate.Unlock()
	if len(s.ready) == 0 {
		return -1
	}
	return s.ready[0].priority
}

// Gate exposes the interrupt gate for subsystems (timer, vm fault
// handling) that must serialize with scheduler queue mutation.
func (s *Scheduler) Gate() *interrupt.Gate { return s.gate }

// CooperatePoint is the Go-native stand-in for the asynchronous timer
// interrupt actually preempting a running thread mid-instruction: a
// thread body that might run longer than a time slice calls this
// periodically (e.g. once per loop iteration), and it yields if the
// timer has requested it. Real preemption exists only at the
// granularity of goroutine scheduling points in this simulation, the
// same substitution already made for "save/restore/transfer control"
// being an atomic primitive applied to "a trap can interrupt any
// instruction."
func (s *Scheduler) CooperatePoint() {
	if s.gate.ConsumeYieldOnReturn() {
		s.Yield()
	}
}
