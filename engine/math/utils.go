package math

import (
	m "math"

	"golang.org/x/exp/constraints"
)

// Clamp returns the value `f` clamped to the range [low, high].
// It works for any numeric type (integers and floats).
func Clamp[T constraints.Ordered](f, low, high T) T {
	if f < low {
		return low
	}
	if f > high {
		return high
	}
	return f
}

// NaN returns a float32 quiet NaN.
func NaN() float32 {
	return float32(m.NaN())
}

// IsNaN reports whether f is a NaN.
func IsNaN(f float32) bool {
	return f != f
}
