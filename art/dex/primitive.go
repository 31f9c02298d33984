package dex

// Primitive identifies the component type of a value or array. PrimNot
// marks reference types.
type Primitive uint8

const (
	PrimNot Primitive = iota
	PrimBoolean
	PrimByte
	PrimChar
	PrimShort
	PrimInt
	PrimLong
	PrimFloat
	PrimDouble
	PrimVoid
)

// ComponentSize returns the storage width in bytes of one value of this
// type. References occupy one 4-byte heap-reference slot.
func (p Primitive) ComponentSize() int {
	switch p {
	case PrimVoid:
		return 0
	case PrimBoolean, PrimByte:
		return 1
	case PrimChar, PrimShort:
		return 2
	case PrimInt, PrimFloat, PrimNot:
		return 4
	case PrimLong, PrimDouble:
		return 8
	default:
		return 0
	}
}

// Is64Bit reports whether values of this type occupy two 32-bit slots.
func (p Primitive) Is64Bit() bool {
	return p == PrimLong || p == PrimDouble
}

// Descriptor returns the single-character dex descriptor for the
// primitive, or "L" for reference types.
func (p Primitive) Descriptor() string {
	switch p {
	case PrimBoolean:
		return "Z"
	case PrimByte:
		return "B"
	case PrimChar:
		return "C"
	case PrimShort:
		return "S"
	case PrimInt:
		return "I"
	case PrimLong:
		return "J"
	case PrimFloat:
		return "F"
	case PrimDouble:
		return "D"
	case PrimVoid:
		return "V"
	default:
		return "L"
	}
}

func (p Primitive) String() string {
	switch p {
	case PrimNot:
		return "reference"
	case PrimBoolean:
		return "boolean"
	case PrimByte:
		return "byte"
	case PrimChar:
		return "char"
	case PrimShort:
		return "short"
	case PrimInt:
		return "int"
	case PrimLong:
		return "long"
	case PrimFloat:
		return "float"
	case PrimDouble:
		return "double"
	case PrimVoid:
		return "void"
	default:
		return "unknown"
	}
}

// PrimitiveForDescriptor maps a single-character descriptor to its
// primitive type.
func PrimitiveForDescriptor(c byte) (Primitive, bool) {
	switch c {
	case 'Z':
		return PrimBoolean, true
	case 'B':
		return PrimByte, true
	case 'C':
		return PrimChar, true
	case 'S':
		return PrimShort, true
	case 'I':
		return PrimInt, true
	case 'J':
		return PrimLong, true
	case 'F':
		return PrimFloat, true
	case 'D':
		return PrimDouble, true
	case 'V':
		return PrimVoid, true
	default:
		return PrimNot, false
	}
}
