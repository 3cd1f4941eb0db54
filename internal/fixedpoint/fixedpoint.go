// Package fixedpoint implements the 17.14 signed fixed-point arithmetic
// the MLFQ scheduler uses for load_avg and recent_cpu. The binary point
// position (14 bits) must stay bit-identical to threads/fpMath.h in the
// source this kernel is modeled on.
package fixedpoint

// F is 2^14, the fixed-point scaling factor for a 17.14 format.
const F = 1 << 14

// Fixed is a 17.14 signed fixed-point number stored as a plain int64
// so callers can't accidentally mix it up with an unscaled int.
type Fixed int64

// FromInt converts an integer to fixed-point.
func FromInt(n int) Fixed {
	return Fixed(n) * F
}

// ToIntTrunc truncates toward zero.
func (x Fixed) ToIntTrunc() int {
	return int(x / F)
}

// ToIntRounded rounds to the nearest integer, ties away from zero.
func (x Fixed) ToIntRounded() int {
	if x >= 0 {
		return int((x + F/2) / F)
	}
	return int((x - F/2) / F)
}

func (x Fixed) Add(y Fixed) Fixed { return x + y }
func (x Fixed) Sub(y Fixed) Fixed { return x - y }

func (x Fixed) AddInt(n int) Fixed { return x + Fixed(n)*F }
func (x Fixed) SubInt(n int) Fixed { return x - Fixed(n)*F }

func (x Fixed) Mul(y Fixed) Fixed { return Fixed((int64(x) * int64(y)) / F) }
func (x Fixed) Div(y Fixed) Fixed { return Fixed((int64(x) * F) / int64(y)) }

func (x Fixed) MulInt(n int) Fixed { return x * Fixed(n) }
func (x Fixed) DivInt(n int) Fixed { return x / Fixed(n) }
