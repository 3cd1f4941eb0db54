package thread

import "github.com/hnjog/pintos-kaist/internal/fixedpoint"

// NiceMin, NiceMax and NiceDefault bound a thread's niceness under the
// multi-level feedback queue scheduler.
const (
	NiceMin     = -20
	NiceMax     = 20
	NiceDefault = 0
)

var (
	fp59of60 = fixedpoint.FromInt(59).Div(fixedpoint.FromInt(60))
	fp1of60  = fixedpoint.FromInt(1).Div(fixedpoint.FromInt(60))
)

// recalcPriorityLocked implements calc_priority:
// priority = PRI_MAX - (recent_cpu / 4) - (nice * 2), clamped to range.
func recalcPriorityLocked(t *Thread) {
	p := fixedpoint.FromInt(PriorityMax).
		Sub(t.recentCPU.DivInt(4)).
		Sub(fixedpoint.FromInt(t.nice * 2)).
		ToIntTrunc()
	if p > PriorityMax {
		p = PriorityMax
	}
	if p < PriorityMin {
		p = PriorityMin
	}
	t.priority = p
}

// recalcRecentCPULocked implements calc_recent_cpu:
// recent_cpu = (2*load_avg)/(2*load_avg + 1) * recent_cpu + nice.
func recalcRecentCPULocked(t *Thread, loadAvg fixedpoint.Fixed) {
	twoLoad := loadAvg.MulInt(2)
	coeff := twoLoad.Div(twoLoad.AddInt(1))
	t.recentCPU = coeff.Mul(t.recentCPU).AddInt(t.nice)
}

// readyThreadCountLocked counts threads eligible to run for load_avg's
// purposes: everything on the ready list plus the current thread,
// unless it is the idle thread (mirrors list_size(&ready_list) + (curr
// != idle_thread)).
func (s *Scheduler) readyThreadCountLocked() int {
	n := len(s.ready)
	if s.current != s.idle {
		n++
	}
	return n
}

func (s *Scheduler) loadAvgLocked() fixedpoint.Fixed {
	return fixedpoint.Fixed(s.loadAvg.Load())
}

func (s *Scheduler) setLoadAvgLocked(v fixedpoint.Fixed) {
	s.loadAvg.Store(int64(v))
}

// recalcLoadAvgLocked implements calc_load_avg:
// load_avg = (59/60)*load_avg + (1/60)*ready_threads.
func (s *Scheduler) recalcLoadAvgLocked() {
	ready := fixedpoint.FromInt(s.readyThreadCountLocked())
	next := fp59of60.Mul(s.loadAvgLocked()).Add(fp1of60.Mul(ready))
	s.setLoadAvgLocked(next)
}

// LoadAvg returns the system load average scaled by 100 and rounded,
// the conventional way Pintos' load-average test harness reports it.
func (s *Scheduler) LoadAvg() int {
	s.gate.Lock()
	defer s.gate.Unlock()
	return s.loadAvgLocked().MulInt(100).ToIntRounded()
}

// RecentCPU returns t's recent_cpu scaled by 100 and rounded.
func (s *Scheduler) RecentCPU(t *Thread) int {
	s.gate.Lock()
	defer s.gate.Unlock()
	return t.recentCPU.MulInt(100).ToIntRounded()
}

// SetNice sets the current thread's niceness, recomputes its priority,
// and yields if it is no longer the highest-priority ready thread.
func (s *Scheduler) SetNice(nice int) {
	if nice < NiceMin {
		nice = NiceMin
	}
	if nice > NiceMax {
		nice = NiceMax
	}
	s.gate.Lock()
	curr := s.current
	curr.nice = nice
	recalcPriorityLocked(curr)
	s.maybePreemptLocked(false)
	s.gate.Unlock()
}

// Nice returns the current thread's niceness.
func (s *Scheduler) Nice() int {
	s.gate.Lock()
	defer s.gate.Unlock()
	return s.current.nice
}

// allThreadsLocked returns the threads held in the scheduler's own
// lists: current, idle, ready and sleeping. MLFQS recalculation visits
// all of these, not just the ready list; a thread blocked on a
// semaphore, lock or condition variable is in none of these lists and
// is not visited.
func (s *Scheduler) allThreadsLocked() []*Thread {
	all := make([]*Thread, 0, len(s.ready)+len(s.sleep)+2)
	all = append(all, s.current, s.idle)
	all = append(all, s.ready...)
	all = append(all, s.sleep...)
	return all
}

// onTickMLFQSLocked applies the three periodic MLFQS recalculations on
// the cadence calc_priority/calc_recent_cpu/timer_interrupt use: every
// tick the running thread's recent_cpu gains one, every TIMER_FREQ
// ticks (one simulated second) load_avg and every thread's recent_cpu
// are recalculated, and every TIME_SLICE ticks every thread's priority
// is recalculated from its (possibly just-updated) recent_cpu.
func (s *Scheduler) onTickMLFQSLocked(ticks int64, frequency int64) {
	if s.current != s.idle {
		s.current.recentCPU = s.current.recentCPU.AddInt(1)
	}

	if ticks%frequency == 0 {
		s.recalcLoadAvgLocked()
		load := s.loadAvgLocked()
		for _, t := range s.allThreadsLocked() {
			recalcRecentCPULocked(t, load)
		}
	}

	if ticks%TimeSlice == 0 {
		for _, t := range s.allThreadsLocked() {
			recalcPriorityLocked(t)
		}
		sortByPriorityDesc(s.ready)
	}
}
