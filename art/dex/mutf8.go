package dex

import (
	"fmt"
	"unicode/utf16"
)

// Modified UTF-8 as used by dex string data items: U+0000 is encoded as the
// two-byte sequence C0 80, supplementary characters are encoded as CESU-8
// surrogate pairs (two three-byte sequences), and there are no four-byte
// sequences.

// DecodeMUTF8 decodes b into UTF-16 code units. Surrogate halves pass
// through untouched, matching the runtime's tolerance for unpaired
// surrogates in string data.
func DecodeMUTF8(b []byte) ([]uint16, error) {
	units := make([]uint16, 0, len(b))
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c&0x80 == 0: // one byte
			units = append(units, uint16(c))
			i++
		case c&0xe0 == 0xc0: // two bytes
			if i+1 >= len(b) || b[i+1]&0xc0 != 0x80 {
				return nil, fmt.Errorf("dex: truncated two-byte sequence at %d: %w", i, ErrBadStringData)
			}
			units = append(units, uint16(c&0x1f)<<6|uint16(b[i+1]&0x3f))
			i += 2
		case c&0xf0 == 0xe0: // three bytes
			if i+2 >= len(b) || b[i+1]&0xc0 != 0x80 || b[i+2]&0xc0 != 0x80 {
				return nil, fmt.Errorf("dex: truncated three-byte sequence at %d: %w", i, ErrBadStringData)
			}
			units = append(units, uint16(c&0x0f)<<12|uint16(b[i+1]&0x3f)<<6|uint16(b[i+2]&0x3f))
			i += 3
		default:
			return nil, fmt.Errorf("dex: invalid leading byte 0x%02x at %d: %w", c, i, ErrBadStringData)
		}
	}
	return units, nil
}

// AppendMUTF8 appends the modified-UTF-8 encoding of the UTF-16 code units
// to dst. Each unit is encoded independently, so surrogate pairs become
// CESU-8 pairs and U+0000 becomes C0 80.
func AppendMUTF8(dst []byte, units []uint16) []byte {
	for _, u := range units {
		switch {
		case u != 0 && u < 0x80:
			dst = append(dst, byte(u))
		case u < 0x800:
			dst = append(dst, 0xc0|byte(u>>6), 0x80|byte(u&0x3f))
		default:
			dst = append(dst, 0xe0|byte(u>>12), 0x80|byte(u>>6&0x3f), 0x80|byte(u&0x3f))
		}
	}
	return dst
}

// StringToUTF16 converts a Go string to UTF-16 code units.
func StringToUTF16(s string) []uint16 {
	return utf16.Encode([]rune(s))
}
