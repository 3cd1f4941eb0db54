// Package interrupt models the "enable/disable/restore" primitive and
// the "yield on return" request flag, without the real GDT/IDT/trap-stub
// machinery they would sit on in a freestanding kernel.
//
// On real hardware, intr_disable/intr_set_level toggle the CPU's
// interrupt flag; here a single mutex plays the role of the CPU's
// interrupt-disable bit, giving the rest of the kernel the same
// "at most one critical section runs at a time" guarantee on a single
// goroutine-CPU. Disable/SetLevel are stack-disciplined: callers save
// the level Disable returns and hand it back to SetLevel, exactly as
// threads/synch.c's "old_level = intr_disable(); ...; intr_set_level(old_level)"
// pattern does throughout the source this is modeled on. Gate also
// implements sync.Locker so the scheduler can drive a sync.Cond off
// the same mutex that guards its queues.
package interrupt

import (
	"sync"

	"go.uber.org/atomic"
)

// Level is the saved interrupt state returned by Disable.
type Level int

const (
	Enabled Level = iota
	Disabled
)

// Gate is the kernel's single big lock, standing in for cli/sti.
type Gate struct {
	mu    sync.Mutex
	yield atomic.Bool
}

// New returns a ready-to-use Gate.
func New() *Gate {
	return &Gate{}
}

// Lock and Unlock make Gate satisfy sync.Locker, so it can back a
// sync.Cond directly.
func (g *Gate) Lock()   { g.mu.Lock() }
func (g *Gate) Unlock() { g.mu.Unlock() }

// Disable acquires the gate and returns Enabled, the level callers
// should hand back to SetLevel to release it. Call sites in this
// kernel never nest Disable/SetLevel pairs from the same goroutine
// (matching the grounding source, which never calls intr_disable twice
// in a row without an intervening restore), so a plain non-reentrant
// mutex is sufficient to model the hardware flag.
func (g *Gate) Disable() Level {
	g.mu.Lock()
	return Enabled
}

// SetLevel restores a previously saved level.
func (g *Gate) SetLevel(l Level) {
	if l == Enabled {
		g.mu.Unlock()
	}
}

// RequestYieldOnReturn sets the "yield on return" flag: the preemption
// rule and the timer tick's time-slice enforcement both set this
// instead of yielding directly from interrupt context.
func (g *Gate) RequestYieldOnReturn() {
	g.yield.Store(true)
}

// ConsumeYieldOnReturn reports and clears the flag.
func (g *Gate) ConsumeYieldOnReturn() bool {
	return g.yield.Swap(false)
}
