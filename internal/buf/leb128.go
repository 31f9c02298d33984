package buf

import "errors"

// ErrULEB128 indicates a truncated varint or one encoding more than 32 bits.
var ErrULEB128 = errors.New("buf: malformed uleb128")

// ULEB128 decodes an unsigned little-endian base-128 varint from the start
// of b. It returns the decoded value and the number of bytes consumed.
// At most five bytes are read; the fifth may contribute only four bits.
func ULEB128(b []byte) (uint32, int, error) {
	var v uint32
	for i := 0; i < 5; i++ {
		if i >= len(b) {
			return 0, 0, ErrULEB128
		}
		c := b[i]
		if i == 4 && c > 0x0f {
			return 0, 0, ErrULEB128
		}
		v |= uint32(c&0x7f) << (7 * i)
		if c&0x80 == 0 {
			return v, i + 1, nil
		}
	}
	return 0, 0, ErrULEB128
}

// AppendULEB128 appends the varint encoding of v to dst.
func AppendULEB128(dst []byte, v uint32) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}
