package fixedpoint

import "testing"

func TestRoundTrip(t *testing.T) {
	x := FromInt(5)
	if got := x.ToIntTrunc(); got != 5 {
		t.Fatalf("ToIntTrunc() = %d, want 5", got)
	}
}

func TestRoundedHalfAwayFromZero(t *testing.T) {
	cases := []struct {
		raw  Fixed
		want int
	}{
		{raw: FromInt(3).DivInt(2), want: 2},  // 1.5 -> 2
		{raw: FromInt(-3).DivInt(2), want: -2}, // -1.5 -> -2
		{raw: FromInt(2), want: 2},
	}
	for _, c := range cases {
		if got := c.raw.ToIntRounded(); got != c.want {
			t.Errorf("ToIntRounded(%d) = %d, want %d", c.raw, got, c.want)
		}
	}
}

func TestArithmetic(t *testing.T) {
	a := FromInt(10)
	b := FromInt(4)
	if got := a.Add(b).ToIntTrunc(); got != 14 {
		t.Errorf("Add: got %d want 14", got)
	}
	if got := a.Sub(b).ToIntTrunc(); got != 6 {
		t.Errorf("Sub: got %d want 6", got)
	}
	if got := a.Mul(b).ToIntTrunc(); got != 40 {
		t.Errorf("Mul: got %d want 40", got)
	}
	if got := a.Div(b).ToIntRounded(); got != 3 {
		t.Errorf("Div: got %d want 3 (10/4=2.5, rounds away from zero)", got)
	}
	if got := a.AddInt(1).ToIntTrunc(); got != 11 {
		t.Errorf("AddInt: got %d want 11", got)
	}
	if got := a.MulInt(2).ToIntTrunc(); got != 20 {
		t.Errorf("MulInt: got %d want 20", got)
	}
}

// calcPriority mirrors thread.c's calc_priority to confirm the fixed-point
// helpers compose the way the MLFQ formula needs them to.
func calcPriority(priMax int, recentCPU Fixed, nice int) int {
	return priMax - recentCPU.DivInt(4).ToIntTrunc() - nice*2
}

func TestMLFQPriorityFormula(t *testing.T) {
	got := calcPriority(63, FromInt(16), 2)
	// 63 - 16/4 - 2*2 = 63 - 4 - 4 = 55
	if got != 55 {
		t.Fatalf("calcPriority = %d, want 55", got)
	}
}
