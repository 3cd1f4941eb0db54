package thread

// Lock is a binary semaphore with an owner, supporting nested priority
// donation so a high-priority thread blocked on a lock held by a
// lower-priority thread temporarily lends its priority to the holder
// (and transitively, up the chain of locks the holder is itself
// waiting on).
type Lock struct {
	sched *Scheduler
	sem   *Semaphore
	holder *Thread
}

// NewLock creates an unheld lock.
func NewLock(s *Scheduler) *Lock {
	return &Lock{sched: s, sem: NewSemaphore(s, 1)}
}

// Holder returns the thread currently holding the lock, or nil.
func (l *Lock) Holder() *Thread {
	s := l.sched
	s.gate.Lock()
	defer s.gate.Unlock()
	return l.holder
}

// Acquire blocks until the lock is held by the calling thread. If the
// lock is currently held, the calling thread donates its priority to
// the chain of holders it is waiting behind before parking.
func (l *Lock) Acquire() {
	s := l.sched
	s.gate.Lock()
	curr := s.current

	if l.holder != nil && l.holder != curr {
		curr.waitingOn = l
		donatePriorityLocked(curr)
	}
	s.gate.Unlock()

	l.sem.Down()

	s.gate.Lock()
	curr.waitingOn = nil
	l.holder = curr
	s.gate.Unlock()
}

// TryAcquire acquires the lock only if it is free, without donation or
// blocking.
func (l *Lock) TryAcquire() bool {
	s := l.sched
	if !l.sem.TryDown() {
		return false
	}
	s.gate.Lock()
	l.holder = s.current
	s.gate.Unlock()
	return true
}

// Release gives up the lock, removes it from the donor bookkeeping of
// every thread that donated on account of it, and recomputes the
// releasing thread's own effective priority from what remains.
func (l *Lock) Release() {
	s := l.sched
	s.gate.Lock()
	curr := l.holder
	l.holder = nil
	if curr != nil {
		removeDonationsForLock(curr, l)
		refreshPriorityLocked(curr)
	}
	s.gate.Unlock()
	l.sem.Up()
}

// donatePriorityLocked walks the chain of locks curr is waiting on,
// raising each holder's effective priority to curr's and re-sorting
// that holder's position in whatever list it is itself parked in, up
// to NestedDonationDepth links (mirrors donate_priority's nested
// donation with its MAX depth guard against a donation cycle).
func donatePriorityLocked(curr *Thread) {
	donor := curr
	for depth := 0; depth < NestedDonationDepth; depth++ {
		lock := donor.waitingOn
		if lock == nil || lock.holder == nil {
			return
		}
		holder := lock.holder
		if donor.priority <= holder.priority {
			return
		}
		holder.donors = insertByPriority(removeThread(holder.donors, donor), donor)
		if holder.priority < donor.priority {
			holder.priority = donor.priority
		}
		switch {
		case holder.waitingOn != nil:
			resortWaiterList(holder)
		case holder.state == StateReady:
			resortReadyList(holder)
		}
		donor = holder
	}
}

// resortWaiterList re-sorts holder's position in the semaphore waiter
// list of the lock it's blocked on, since its priority may have just
// changed via donation.
func resortWaiterList(holder *Thread) {
	lock := holder.waitingOn
	if lock == nil {
		return
	}
	lock.sem.waiters = insertByPriority(removeThread(lock.sem.waiters, holder), holder)
}

// resortReadyList re-sorts holder's position in its scheduler's ready
// list, for a thread that was donated to while sitting ready rather
// than blocked on anything.
func resortReadyList(holder *Thread) {
	s := holder.sched
	s.ready = insertByPriority(removeThread(s.ready, holder), holder)
}

func removeThread(list []*Thread, t *Thread) []*Thread {
	for i, v := range list {
		if v == t {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// removeDonationsForLock drops every donor waiting specifically on
// lock from holder's donor list (mirrors remove_with_lock).
func removeDonationsForLock(holder *Thread, lock *Lock) {
	kept := holder.donors[:0]
	for _, d := range holder.donors {
		if d.waitingOn != lock {
			kept = append(kept, d)
		}
	}
	holder.donors = kept
}

// refreshPriorityLocked recomputes holder's effective priority as the
// max of its base priority and the highest remaining donor's priority
// (mirrors refresh_priority: look at the front of the now-current
// donor list rather than recursing back down donation chains).
func refreshPriorityLocked(holder *Thread) {
	p := holder.basePriority
	if len(holder.donors) > 0 {
		sortByPriorityDesc(holder.donors)
		if holder.donors[0].priority > p {
			p = holder.donors[0].priority
		}
	}
	holder.priority = p
}
