package mirror

import (
	"github.com/TheXPerienceProject/android-art/art/dex"
	"github.com/TheXPerienceProject/android-art/internal/buf"
)

// Array is a fixed-length array object. Primitive elements live in a
// packed byte buffer indexed by element; reference elements reuse the
// object's reference slots, so reference stores go through the same
// offset-addressed path as reference fields.
type Array struct {
	Object

	length int
	prims  []byte
}

// NewArray allocates an array of the given array class.
func NewArray(klass *Class, length int) *Array {
	if !klass.IsArrayClass() {
		fatalf("NewArray with non-array class %s", klass.Descriptor())
	}
	if length < 0 {
		fatalf("NewArray with negative length %d", length)
	}
	a := &Array{length: length}
	comp := klass.ComponentType()
	if comp.IsPrimitive() {
		size, ok := buf.MulOverflow(length, comp.PrimitiveType().ComponentSize())
		if !ok {
			fatalf("array storage overflows: %d elements of %s", length, comp.Descriptor())
		}
		initObject(&a.Object, klass, 0, 0)
		a.prims = make([]byte, size)
	} else {
		initObject(&a.Object, klass, length, 0)
	}
	a.Object.sub = a
	return a
}

// Len returns the array length.
func (a *Array) Len() int { return a.length }

// ComponentType returns the primitive kind of the elements, dex.PrimNot
// for reference arrays.
func (a *Array) ComponentType() dex.Primitive {
	return a.klass.ComponentType().PrimitiveType()
}

// IsObjectArray reports whether the elements are references.
func (a *Array) IsObjectArray() bool { return a.ComponentType() == dex.PrimNot }

func (a *Array) checkIndex(i int) {
	if i < 0 || i >= a.length {
		fatalf("array index %d out of range [0, %d)", i, a.length)
	}
}

func (a *Array) elem(i, width int) []byte {
	a.checkIndex(i)
	return a.prims[i*width : i*width+width]
}

// ElementOffset returns the field offset addressing element i of a
// reference array. Reference-array stores are recorded as reference
// field writes at this offset.
func (a *Array) ElementOffset(i int) FieldOffset {
	a.checkIndex(i)
	return FieldOffset(HeaderSize + refSlotSize*i)
}

// GetElementRaw reads element i as a raw 64-bit value, whatever the
// primitive width. Fatal for reference arrays.
func (a *Array) GetElementRaw(i int) uint64 {
	switch a.ComponentType().ComponentSize() {
	case 1:
		return uint64(a.elem(i, 1)[0])
	case 2:
		return uint64(buf.U16(a.elem(i, 2)))
	case 4:
		if a.IsObjectArray() {
			fatalf("raw element access on reference array %d", a.id)
		}
		return uint64(buf.U32(a.elem(i, 4)))
	case 8:
		return buf.U64(a.elem(i, 8))
	default:
		fatalf("raw element access on array %d with component %s", a.id, a.ComponentType())
		return 0
	}
}

// SetElementRaw writes element i from a raw 64-bit value, truncating to
// the component width. Fatal for reference arrays.
func (a *Array) SetElementRaw(i int, v uint64) {
	switch a.ComponentType().ComponentSize() {
	case 1:
		a.elem(i, 1)[0] = byte(v)
	case 2:
		buf.PutU16(a.elem(i, 2), uint16(v))
	case 4:
		if a.IsObjectArray() {
			fatalf("raw element access on reference array %d", a.id)
		}
		buf.PutU32(a.elem(i, 4), uint32(v))
	case 8:
		buf.PutU64(a.elem(i, 8), v)
	default:
		fatalf("raw element access on array %d with component %s", a.id, a.ComponentType())
	}
}

// GetBoolean reads element i of a boolean array.
func (a *Array) GetBoolean(i int) uint8 { return a.elem(i, 1)[0] }

// SetBoolean writes element i of a boolean array.
func (a *Array) SetBoolean(i int, v uint8) { a.elem(i, 1)[0] = v }

// GetByte reads element i of a byte array.
func (a *Array) GetByte(i int) int8 { return int8(a.elem(i, 1)[0]) }

// SetByte writes element i of a byte array.
func (a *Array) SetByte(i int, v int8) { a.elem(i, 1)[0] = uint8(v) }

// GetChar reads element i of a char array.
func (a *Array) GetChar(i int) uint16 { return buf.U16(a.elem(i, 2)) }

// SetChar writes element i of a char array.
func (a *Array) SetChar(i int, v uint16) { buf.PutU16(a.elem(i, 2), v) }

// GetShort reads element i of a short array.
func (a *Array) GetShort(i int) int16 { return int16(buf.U16(a.elem(i, 2))) }

// SetShort writes element i of a short array.
func (a *Array) SetShort(i int, v int16) { buf.PutU16(a.elem(i, 2), uint16(v)) }

// Get32 reads element i of an int or float array as raw bits.
func (a *Array) Get32(i int) uint32 { return buf.U32(a.elem(i, 4)) }

// Set32 writes element i of an int or float array as raw bits.
func (a *Array) Set32(i int, v uint32) { buf.PutU32(a.elem(i, 4), v) }

// Get64 reads element i of a long or double array as raw bits.
func (a *Array) Get64(i int) uint64 { return buf.U64(a.elem(i, 8)) }

// Set64 writes element i of a long or double array as raw bits.
func (a *Array) Set64(i int, v uint64) { buf.PutU64(a.elem(i, 8), v) }

// GetReference reads element i of a reference array.
func (a *Array) GetReference(i int) *Object {
	a.checkIndex(i)
	return a.refs[i]
}

// SetReference writes element i of a reference array.
func (a *Array) SetReference(i int, v *Object) {
	a.checkIndex(i)
	a.refs[i] = v
}
