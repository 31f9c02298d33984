// Package buf contains helpers for decoding and encoding the fixed-width
// little-endian fields used by transaction log records and array element
// storage, plus the ULEB128 varint form used by dex string data items.
package buf

import "encoding/binary"

// U16 reads a little-endian uint16 from b. Returns 0 when b is too short.
func U16(b []byte) uint16 {
	if len(b) < 2 {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

// U32 reads a little-endian uint32 from b. Returns 0 when b is too short.
func U32(b []byte) uint32 {
	if len(b) < 4 {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// U64 reads a little-endian uint64 from b. Returns 0 when b is too short.
func U64(b []byte) uint64 {
	if len(b) < 8 {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

// PutU16 writes v to b in little-endian order. The caller guarantees len(b) >= 2.
func PutU16(b []byte, v uint16) {
	binary.LittleEndian.PutUint16(b, v)
}

// PutU32 writes v to b in little-endian order. The caller guarantees len(b) >= 4.
func PutU32(b []byte, v uint32) {
	binary.LittleEndian.PutUint32(b, v)
}

// PutU64 writes v to b in little-endian order. The caller guarantees len(b) >= 8.
func PutU64(b []byte, v uint64) {
	binary.LittleEndian.PutUint64(b, v)
}
