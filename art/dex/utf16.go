package dex

import (
	"unicode/utf16"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var utf16Decoder = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// UTF16ToString converts UTF-16 code units to a Go string for display and
// intern-table diagnostics. Unpaired surrogates are replaced; identity
// comparisons must use the raw code units, never this form.
func UTF16ToString(units []uint16) string {
	b := make([]byte, 2*len(units))
	for i, u := range units {
		b[2*i] = byte(u)
		b[2*i+1] = byte(u >> 8)
	}
	out, _, err := transform.Bytes(utf16Decoder.NewDecoder(), b)
	if err != nil {
		// The decoder substitutes rather than fails on bad input.
		return string(utf16.Decode(units))
	}
	return string(out)
}
