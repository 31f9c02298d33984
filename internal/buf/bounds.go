package buf

import "math"

// MulOverflow multiplies non-negative a and b, returning ok = false when the
// result would overflow int. Used for count * elementSize calculations when
// sizing element storage.
func MulOverflow(a, b int) (int, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if a < 0 || b < 0 {
		return 0, false
	}
	if a > math.MaxInt/b {
		return 0, false
	}
	return a * b, true
}
