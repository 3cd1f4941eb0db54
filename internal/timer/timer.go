// Package timer holds the monotonic tick counter that drives
// preemption and sleep.
package timer

import "go.uber.org/atomic"

// Frequency is the simulated timer interrupt rate in Hz, kept as a
// named constant so sleep_until(now + k*Frequency) callers read the
// same way the original TIMER_FREQ does.
const Frequency = 100

// Timer is a monotonically increasing tick counter.
type Timer struct {
	ticks atomic.Int64
}

// New returns a Timer starting at tick 0.
func New() *Timer {
	return &Timer{}
}

// Ticks returns the current tick count.
func (t *Timer) Ticks() int64 {
	return t.ticks.Load()
}

// Tick advances the clock by one and returns the new value. Called by
// the simulated timer ISR once per period.
func (t *Timer) Tick() int64 {
	return t.ticks.Inc()
}
