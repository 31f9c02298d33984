package tx

import "github.com/TheXPerienceProject/android-art/art/mirror"

// Kind tags a recorded pre-image with the width it must be written back
// at. Reference values carry an object instead of raw bits.
type Kind uint8

const (
	KindBoolean Kind = iota
	KindByte
	KindChar
	KindShort
	KindWord32
	KindWord64
	KindReference
)

func (k Kind) String() string {
	switch k {
	case KindBoolean:
		return "Boolean"
	case KindByte:
		return "Byte"
	case KindChar:
		return "Char"
	case KindShort:
		return "Short"
	case KindWord32:
		return "Word32"
	case KindWord64:
		return "Word64"
	case KindReference:
		return "Reference"
	default:
		return "Unknown"
	}
}

// Value is one recorded field pre-image: a kind plus either raw bits or
// a reference.
type Value struct {
	kind Kind
	raw  uint64
	ref  *mirror.Object
}

func BooleanValue(v uint8) Value { return Value{kind: KindBoolean, raw: uint64(v)} }
func ByteValue(v int8) Value     { return Value{kind: KindByte, raw: uint64(uint8(v))} }
func CharValue(v uint16) Value   { return Value{kind: KindChar, raw: uint64(v)} }
func ShortValue(v int16) Value   { return Value{kind: KindShort, raw: uint64(uint16(v))} }
func Word32Value(v uint32) Value { return Value{kind: KindWord32, raw: uint64(v)} }
func Word64Value(v uint64) Value { return Value{kind: KindWord64, raw: v} }
func ReferenceValue(o *mirror.Object) Value {
	return Value{kind: KindReference, ref: o}
}

func (v Value) Kind() Kind                { return v.kind }
func (v Value) Boolean() uint8            { return uint8(v.raw) }
func (v Value) Byte() int8                { return int8(v.raw) }
func (v Value) Char() uint16              { return uint16(v.raw) }
func (v Value) Short() int16              { return int16(v.raw) }
func (v Value) Word32() uint32            { return uint32(v.raw) }
func (v Value) Word64() uint64            { return v.raw }
func (v Value) Reference() *mirror.Object { return v.ref }

// apply writes the pre-image back to the field at off.
func (v Value) apply(obj *mirror.Object, off mirror.FieldOffset) {
	switch v.kind {
	case KindBoolean:
		obj.SetFieldBoolean(off, v.Boolean())
	case KindByte:
		obj.SetFieldByte(off, v.Byte())
	case KindChar:
		obj.SetFieldChar(off, v.Char())
	case KindShort:
		obj.SetFieldShort(off, v.Short())
	case KindWord32:
		obj.SetField32(off, v.Word32())
	case KindWord64:
		obj.SetField64(off, v.Word64())
	case KindReference:
		obj.SetFieldReference(off, v.ref)
	default:
		fatalf("undo of field at offset %d with unknown value kind %d", off, v.kind)
	}
}
