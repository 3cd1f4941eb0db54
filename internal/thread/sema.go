package thread

// Semaphore is a classic counting semaphore: Down blocks while the
// count is zero, Up increments it and wakes the highest-priority
// waiter. Waiters are kept sorted so that a thread whose priority rose
// via donation while parked is still woken in the right order (the
// source re-sorts the waiter list on semaphore_up for exactly this
// reason rather than using a plain FIFO).
type Semaphore struct {
	sched *Scheduler
	value int
	waiters []*Thread
}

// NewSemaphore creates a semaphore with the given initial value.
func NewSemaphore(s *Scheduler, value int) *Semaphore {
	return &Semaphore{sched: s, value: value}
}

func insertByPriority(list []*Thread, t *Thread) []*Thread {
	i := 0
	for i < len(list) && list[i].priority >= t.priority {
		i++
	}
	list = append(list, nil)
	copy(list[i+1:], list[i:])
	list[i] = t
	return list
}

// Down decrements the semaphore, blocking the calling thread while the
// value is zero.
func (sem *Semaphore) Down() {
	s := sem.sched
	s.gate.Lock()
	for sem.value == 0 {
		curr := s.current
		sem.waiters = insertByPriority(sem.waiters, curr)
		s.blockLocked(curr)
	}
	sem.value--
	s.gate.Unlock()
}

// TryDown decrements the semaphore without blocking if the value is
// already positive, reporting whether it succeeded.
func (sem *Semaphore) TryDown() bool {
	s := sem.sched
	s.gate.Lock()
	defer s.gate.Unlock()
	if sem.value > 0 {
		sem.value--
		return true
	}
	return false
}

// Up increments the semaphore and wakes the highest-priority waiter,
// if any, then checks whether the waking thread should preempt the
// caller.
func (sem *Semaphore) Up() {
	s := sem.sched
	s.gate.Lock()
	sem.upLocked()
	s.maybePreemptLocked(false)
	s.gate.Unlock()
}

// upLocked is Up's body for callers that already hold the gate (e.g.
// Scheduler.Exit signalling waitSem).
func (sem *Semaphore) upLocked() {
	s := sem.sched
	if len(sem.waiters) > 0 {
		// The front waiter's priority may be stale if it was donated to
		// while parked; re-sort before popping, mirroring synch.c's
		// list_sort(&sema->waiters, cmp_priority, NULL) in sema_up.
		sortByPriorityDesc(sem.waiters)
		w := sem.waiters[0]
		sem.waiters = sem.waiters[1:]
		s.unblockLocked(w)
	}
	sem.value++
}

func sortByPriorityDesc(list []*Thread) {
	for i := 1; i < len(list); i++ {
		v := list[i]
		j := i - 1
		for j >= 0 && list[j].priority < v.priority {
			list[j+1] = list[j]
			j--
		}
		list[j+1] = v
	}
}
