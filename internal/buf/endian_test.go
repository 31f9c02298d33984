package buf

import "testing"

func TestEndianHelpers(t *testing.T) {
	data := []byte{0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef}

	if got := U16(data); got != 0x2301 {
		t.Fatalf("U16 = 0x%x, want 0x2301", got)
	}
	if got := U32(data); got != 0x67452301 {
		t.Fatalf("U32 = 0x%x, want 0x67452301", got)
	}
	if got := U64(data); got != 0xefcdab8967452301 {
		t.Fatalf("U64 = 0x%x, want 0xefcdab8967452301", got)
	}

	short := []byte{0xaa}
	if U16(short) != 0 || U32(short) != 0 || U64(short) != 0 {
		t.Fatalf("short reads should return 0")
	}
}

func TestPutRoundTrip(t *testing.T) {
	b := make([]byte, 8)

	PutU16(b, 0xbeef)
	if got := U16(b); got != 0xbeef {
		t.Fatalf("PutU16 round trip = 0x%x, want 0xbeef", got)
	}
	PutU32(b, 0xdeadbeef)
	if got := U32(b); got != 0xdeadbeef {
		t.Fatalf("PutU32 round trip = 0x%x, want 0xdeadbeef", got)
	}
	PutU64(b, 0x0123456789abcdef)
	if got := U64(b); got != 0x0123456789abcdef {
		t.Fatalf("PutU64 round trip = 0x%x, want 0x0123456789abcdef", got)
	}
}
