package thread

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadyListOrderedByPriority(t *testing.T) {
	s := New(false)
	s.Spawn("low", 10, func(any) {}, nil)
	s.Spawn("high", 30, func(any) {}, nil)
	s.Spawn("mid", 20, func(any) {}, nil)

	require.Equal(t, 3, s.ReadyLen())
	require.Equal(t, 30, s.ReadyFrontPriority())
}

func TestSpawnHigherPriorityPreemptsImmediately(t *testing.T) {
	s := New(false)
	var ran bool
	done := NewSemaphore(s, 0)

	s.Spawn("urgent", PriorityDefault+10, func(any) {
		ran = true
		done.Up()
	}, nil)

	done.Down()
	require.True(t, ran, "higher-priority thread should have run before Spawn's caller resumed")
}

func TestNestedPriorityDonation(t *testing.T) {
	s := New(false)

	l1 := NewLock(s)
	l2 := NewLock(s)

	lowHolding := NewSemaphore(s, 0)
	medHolding := NewSemaphore(s, 0)
	finish := NewSemaphore(s, 0)

	var lowThread, medThread *Thread

	lowThread = s.Spawn("low", 10, func(any) {
		l1.Acquire()
		lowHolding.Up()
		finish.Down()
		l1.Release()
	}, nil)

	lowHolding.Down()

	medThread = s.Spawn("med", 20, func(any) {
		l2.Acquire()
		medHolding.Up()
		l1.Acquire() // blocks on low; high has already raised med to 50, so med donates 50 to low
		l1.Release()
		l2.Release()
	}, nil)

	medHolding.Down()

	highDone := NewSemaphore(s, 0)
	s.Spawn("high", 50, func(any) {
		l2.Acquire() // blocks on med, donates 50 to med, which passes it on to low when it blocks on l1
		l2.Release()
		highDone.Up()
	}, nil)

	require.Equal(t, 50, lowThread.priority, "low should have inherited the high thread's priority transitively")
	require.Equal(t, 50, medThread.priority, "med should have inherited the high thread's priority directly")

	finish.Up()
	highDone.Down()
}

func TestProducerConsumerBoundedBuffer(t *testing.T) {
	s := New(false)
	lock := NewLock(s)
	notEmpty := NewCond(s)
	notFull := NewCond(s)

	const capacity = 1
	const items = 5

	buf := 0
	produced := 0
	var consumed []int

	allDone := NewSemaphore(s, 0)

	s.Spawn("producer", PriorityDefault, func(any) {
		for i := 0; i < items; i++ {
			lock.Acquire()
			for buf >= capacity {
				notFull.Wait(lock)
			}
			buf++
			produced++
			notEmpty.Signal(lock)
			lock.Release()
		}
	}, nil)

	s.Spawn("consumer", PriorityDefault, func(any) {
		for i := 0; i < items; i++ {
			lock.Acquire()
			for buf == 0 {
				notEmpty.Wait(lock)
			}
			buf--
			consumed = append(consumed, i)
			notFull.Signal(lock)
			lock.Release()
		}
		allDone.Up()
	}, nil)

	allDone.Down()

	require.Equal(t, items, produced)
	require.Len(t, consumed, items)
	require.Equal(t, 0, buf)
}

func TestSleepWakesOnlyAfterTargetTick(t *testing.T) {
	s := New(false)
	woke := NewSemaphore(s, 0)

	s.Spawn("sleeper", PriorityDefault+1, func(any) {
		s.SleepUntil(10)
		woke.Up()
	}, nil)

	for tick := int64(1); tick < 10; tick++ {
		s.OnTick(tick, 100)
		require.False(t, woke.TryDown(), "must not wake before its target tick")
	}

	s.OnTick(10, 100)
	woke.Down()
}

func TestSetPriorityUpdatesEffectivePriority(t *testing.T) {
	s := New(false)
	s.Spawn("transient", PriorityDefault+5, func(any) {}, nil)

	s.SetPriority(PriorityDefault - 1)
	require.Equal(t, PriorityDefault-1, s.Priority())
}
