package thread

// Cond is a Mesa-style condition variable: Wait releases lock, blocks
// the caller on a private one-shot semaphore, and reacquires lock
// before returning, exactly like the monitor pattern in synch.c built
// from a waiter list of private semaphores rather than a single shared
// one (so Signal wakes exactly one specific waiter instead of racing
// all of them for a shared count).
type Cond struct {
	sched   *Scheduler
	waiters []condWaiter
}

type condWaiter struct {
	thread *Thread
	sem    *Semaphore
}

// NewCond creates a condition variable used together with lock.
func NewCond(s *Scheduler) *Cond {
	return &Cond{sched: s}
}

// Wait atomically releases lock and blocks the calling thread until
// Signal or Broadcast wakes it, then reacquires lock before returning.
// Callers must hold lock. Mesa semantics: the waiter is not guaranteed
// the condition still holds on return and must recheck it in a loop.
func (c *Cond) Wait(lock *Lock) {
	s := c.sched
	mySem := NewSemaphore(s, 0)

	s.gate.Lock()
	w := condWaiter{thread: s.current, sem: mySem}
	c.waiters = insertWaiterByPriority(c.waiters, w)
	s.gate.Unlock()

	lock.Release()
	mySem.Down()
	lock.Acquire()
}

// Signal wakes the highest-priority waiter, if any. Callers must hold
// the same lock used with Wait.
func (c *Cond) Signal(lock *Lock) {
	s := c.sched
	s.gate.Lock()
	if len(c.waiters) == 0 {
		s.gate.Unlock()
		return
	}
	sortWaitersByPriorityDesc(c.waiters)
	w := c.waiters[0]
	c.waiters = c.waiters[1:]
	s.gate.Unlock()
	w.sem.Up()
}

// Broadcast wakes every waiter.
func (c *Cond) Broadcast(lock *Lock) {
	for {
		s := c.sched
		s.gate.Lock()
		empty := len(c.waiters) == 0
		s.gate.Unlock()
		if empty {
			return
		}
		c.Signal(lock)
	}
}

func insertWaiterByPriority(list []condWaiter, w condWaiter) []condWaiter {
	i := 0
	for i < len(list) && list[i].thread.priority >= w.thread.priority {
		i++
	}
	list = append(list, condWaiter{})
	copy(list[i+1:], list[i:])
	list[i] = w
	return list
}

func sortWaitersByPriorityDesc(list []condWaiter) {
	for i := 1; i < len(list); i++ {
		v := list[i]
		j := i - 1
		for j >= 0 && list[j].thread.priority < v.thread.priority {
			list[j+1] = list[j]
			j--
		}
		list[j+1] = v
	}
}
