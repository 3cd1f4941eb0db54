package thread

// SleepUntil blocks the calling thread until the timer reaches
// wakeTick, mirroring timer_sleep's "busy-wait eliminated by blocking
// and recording a wake tick" design rather than literally spinning.
func (s *Scheduler) SleepUntil(wakeTick int64) {
	s.gate.Lock()
	curr := s.current
	curr.wakeTick = wakeTick
	s.sleep = append(s.sleep, curr)
	s.updateEarliestWakeLocked()
	s.blockLocked(curr)
	s.gate.Unlock()
}

func (s *Scheduler) updateEarliestWakeLocked() {
	var min int64 = -1
	for _, t := range s.sleep {
		if min == -1 || t.wakeTick < min {
			min = t.wakeTick
		}
	}
	if min == -1 {
		s.earliestWake.Store(1<<63 - 1)
	} else {
		s.earliestWake.Store(min)
	}
}

// wakeDueLocked moves every sleeping thread whose wakeTick has arrived
// back onto the ready list (mirrors thread_wakeup's scan of the sleep
// list done once per timer tick, kept a linear scan since this kernel
// never hosts enough threads for it to matter, same as the source).
func (s *Scheduler) wakeDueLocked(now int64) {
	if now < s.earliestWake.Load() {
		return
	}
	remaining := s.sleep[:0]
	for _, t := range s.sleep {
		if t.wakeTick <= now {
			s.unblockLocked(t)
		} else {
			remaining = append(remaining, t)
		}
	}
	s.sleep = remaining
	s.updateEarliestWakeLocked()
}

// OnTick is called by the timer pump once per simulated timer period.
// It wakes due sleepers, applies MLFQS bookkeeping when enabled, and
// requests a yield on return once the running thread has exhausted its
// time slice or a higher-priority thread just became ready.
func (s *Scheduler) OnTick(ticks int64, frequency int64) {
	s.gate.Lock()
	defer s.gate.Unlock()

	s.wakeDueLocked(ticks)

	if s.mlfqs {
		s.onTickMLFQSLocked(ticks, frequency)
	}

	if s.current != s.idle {
		s.current.ticksSinceSwitch++
		if s.current.ticksSinceSwitch >= TimeSlice {
			s.gate.RequestYieldOnReturn()
		}
	}
	s.maybePreemptLocked(true)
}
