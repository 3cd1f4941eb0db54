package thread

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hnjog/pintos-kaist/internal/fixedpoint"
)

func TestMLFQSRecentCPUAccumulatesPerTick(t *testing.T) {
	s := New(true)
	curr := s.current
	for tick := int64(1); tick <= 3; tick++ {
		s.OnTick(tick, 100)
	}
	require.Equal(t, fixedpoint.FromInt(3), curr.recentCPU)
}

func TestMLFQSPriorityRecalculatedOnTimeSliceBoundary(t *testing.T) {
	s := New(true)
	curr := s.current
	curr.nice = 4
	curr.recentCPU = fixedpoint.FromInt(16)

	for tick := int64(1); tick <= TimeSlice; tick++ {
		s.OnTick(tick, 100)
	}

	// priority = 63 - (recentCPU/4) - (nice*2); recentCPU has accumulated
	// TimeSlice more ticks by the time the recalculation runs.
	want := PriorityMax - (16+TimeSlice)/4 - 2*4
	require.Equal(t, want, curr.priority)
}

func TestMLFQSIgnoredWhenDisabled(t *testing.T) {
	s := New(false)
	curr := s.current
	before := curr.recentCPU
	s.OnTick(1, 100)
	require.Equal(t, before, curr.recentCPU)
}

func TestSetNiceClampsToRange(t *testing.T) {
	s := New(false)
	s.SetNice(1000)
	require.Equal(t, NiceMax, s.Nice())
	s.SetNice(-1000)
	require.Equal(t, NiceMin, s.Nice())
}
