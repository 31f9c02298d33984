package buf

import (
	"math"
	"testing"
)

func TestMulOverflow(t *testing.T) {
	if p, ok := MulOverflow(8, 16); !ok || p != 128 {
		t.Fatalf("MulOverflow(8,16)=%d,%v want 128,true", p, ok)
	}
	if p, ok := MulOverflow(0, math.MaxInt); !ok || p != 0 {
		t.Fatalf("MulOverflow(0,MaxInt)=%d,%v want 0,true", p, ok)
	}
	if _, ok := MulOverflow(math.MaxInt/2, 3); ok {
		t.Fatalf("expected overflow for MaxInt/2 * 3")
	}
	if _, ok := MulOverflow(-1, 2); ok {
		t.Fatalf("negative operands should be rejected")
	}
}
