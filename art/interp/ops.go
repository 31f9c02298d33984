package interp

import (
	"errors"

	"github.com/TheXPerienceProject/android-art/art/dex"
	"github.com/TheXPerienceProject/android-art/art/gc"
	"github.com/TheXPerienceProject/android-art/art/mirror"
	"github.com/TheXPerienceProject/android-art/art/thr"
	"github.com/TheXPerienceProject/android-art/art/tx"
)

var (
	// ErrAborted reports that a constraint rejected the operation. The
	// abort error carrying the reason is pending on the thread.
	ErrAborted = errors.New("interp: transaction aborted")

	// ErrNullArray reports a bulk fill of a null array reference.
	ErrNullArray = errors.New("interp: null array in fill-array-data")

	// ErrFillOverflow reports a bulk fill longer than the array.
	ErrFillOverflow = errors.New("interp: fill-array-data exceeds array length")
)

// FieldPut stores value into an instance field of obj. The write
// constraint runs before the store and a rejected write leaves obj
// untouched; a permitted store records the pre-image first.
func FieldPut[C Checker](c C, self *thr.Thread, obj *mirror.Object, field *mirror.Field, value tx.Value) error {
	if c.WriteConstraint(self, obj) {
		return ErrAborted
	}
	if value.Kind() == tx.KindReference && value.Reference() != nil {
		if c.WriteValueConstraint(self, value.Reference()) {
			return ErrAborted
		}
	}
	if want := kindOf(field.Type()); value.Kind() != want {
		fatalf("storing %v value into %s field %s", value.Kind(), field.Type(), field.Name())
	}
	off := field.Offset()
	c.RecordWriteField(obj, off, readField(obj, field), field.IsVolatile())
	writeField(obj, off, value)
	return nil
}

// FieldGet reads an instance field of obj. Instance reads carry no
// constraint.
func FieldGet(obj *mirror.Object, field *mirror.Field) tx.Value {
	return readField(obj, field)
}

// StaticFieldPut stores value into a static field, which lives on the
// class object itself.
func StaticFieldPut[C Checker](c C, self *thr.Thread, klass *mirror.Class, field *mirror.Field, value tx.Value) error {
	return FieldPut(c, self, &klass.Object, field, value)
}

// StaticFieldGet reads a static field. The read constraint rejects
// reads of classes other than the one whose initializer is running.
func StaticFieldGet[C Checker](c C, self *thr.Thread, klass *mirror.Class, field *mirror.Field) (tx.Value, error) {
	if c.ReadConstraint(self, &klass.Object) {
		return tx.Value{}, ErrAborted
	}
	return readField(&klass.Object, field), nil
}

// ArrayPut stores value into element index of arr. Reference element
// stores are recorded as reference field writes at the element offset;
// primitive stores as raw element writes.
func ArrayPut[C Checker](c C, self *thr.Thread, arr *mirror.Array, index int, value tx.Value) error {
	if c.WriteConstraint(self, &arr.Object) {
		return ErrAborted
	}
	if arr.IsObjectArray() {
		if value.Kind() != tx.KindReference {
			fatalf("storing %v value into reference array", value.Kind())
		}
		v := value.Reference()
		if v != nil && c.WriteValueConstraint(self, v) {
			return ErrAborted
		}
		off := arr.ElementOffset(index)
		c.RecordWriteField(&arr.Object, off, tx.ReferenceValue(arr.GetReference(index)), false)
		arr.SetReference(index, v)
		return nil
	}
	if want := kindOf(arr.ComponentType()); value.Kind() != want {
		fatalf("storing %v value into %s array", value.Kind(), arr.ComponentType())
	}
	c.RecordWriteArray(arr, index, arr.GetElementRaw(index))
	arr.SetElementRaw(index, rawOf(value))
	return nil
}

// ArrayGet reads element index of arr.
func ArrayGet(arr *mirror.Array, index int) tx.Value {
	if arr.IsObjectArray() {
		return tx.ReferenceValue(arr.GetReference(index))
	}
	return valueOfRaw(arr.ComponentType(), arr.GetElementRaw(index))
}

// AllocObject allocates an instance of klass, rejecting finalizable
// classes inside a transaction. A permitted allocation is recorded so
// that later writes to the fresh object need no undo records.
func AllocObject[C Checker](c C, self *thr.Thread, heap *gc.Heap, klass *mirror.Class) (*mirror.Object, error) {
	if c.AllocationConstraint(self, klass) {
		return nil, ErrAborted
	}
	obj := heap.AllocObject(klass)
	c.RecordNewObject(obj)
	return obj, nil
}

// AllocArray allocates an array of the given array class. Arrays are
// never finalizable, so there is no allocation constraint.
func AllocArray[C Checker](c C, self *thr.Thread, heap *gc.Heap, klass *mirror.Class, length int) (*mirror.Array, error) {
	arr := heap.AllocArray(klass, length)
	c.RecordNewArray(arr)
	return arr, nil
}

// FillArrayData overwrites the leading elements of arr with data,
// recording the displaced values first.
func FillArrayData[C Checker](c C, self *thr.Thread, arr *mirror.Array, data []uint64) error {
	if arr == nil {
		return ErrNullArray
	}
	if len(data) > arr.Len() {
		return ErrFillOverflow
	}
	c.RecordArrayElementsInTransaction(arr, len(data))
	for i, v := range data {
		arr.SetElementRaw(i, v)
	}
	return nil
}

// kindOf maps a primitive field or component type to the undo-record
// value kind.
func kindOf(t dex.Primitive) tx.Kind {
	switch t {
	case dex.PrimBoolean:
		return tx.KindBoolean
	case dex.PrimByte:
		return tx.KindByte
	case dex.PrimChar:
		return tx.KindChar
	case dex.PrimShort:
		return tx.KindShort
	case dex.PrimInt, dex.PrimFloat:
		return tx.KindWord32
	case dex.PrimLong, dex.PrimDouble:
		return tx.KindWord64
	case dex.PrimNot:
		return tx.KindReference
	}
	fatalf("no value kind for %s", t)
	return 0
}

func readField(obj *mirror.Object, field *mirror.Field) tx.Value {
	off := field.Offset()
	switch field.Type() {
	case dex.PrimBoolean:
		return tx.BooleanValue(obj.GetFieldBoolean(off))
	case dex.PrimByte:
		return tx.ByteValue(obj.GetFieldByte(off))
	case dex.PrimChar:
		return tx.CharValue(obj.GetFieldChar(off))
	case dex.PrimShort:
		return tx.ShortValue(obj.GetFieldShort(off))
	case dex.PrimInt, dex.PrimFloat:
		return tx.Word32Value(obj.GetField32(off))
	case dex.PrimLong, dex.PrimDouble:
		return tx.Word64Value(obj.GetField64(off))
	case dex.PrimNot:
		return tx.ReferenceValue(obj.GetFieldReference(off))
	}
	fatalf("field %s has unsupported type %s", field.Name(), field.Type())
	return tx.Value{}
}

func writeField(obj *mirror.Object, off mirror.FieldOffset, v tx.Value) {
	switch v.Kind() {
	case tx.KindBoolean:
		obj.SetFieldBoolean(off, v.Boolean())
	case tx.KindByte:
		obj.SetFieldByte(off, v.Byte())
	case tx.KindChar:
		obj.SetFieldChar(off, v.Char())
	case tx.KindShort:
		obj.SetFieldShort(off, v.Short())
	case tx.KindWord32:
		obj.SetField32(off, v.Word32())
	case tx.KindWord64:
		obj.SetField64(off, v.Word64())
	case tx.KindReference:
		obj.SetFieldReference(off, v.Reference())
	default:
		fatalf("writing value of unknown kind %v", v.Kind())
	}
}

// rawOf widens a primitive value to the raw 64-bit form used for array
// elements.
func rawOf(v tx.Value) uint64 {
	switch v.Kind() {
	case tx.KindBoolean:
		return uint64(v.Boolean())
	case tx.KindByte:
		return uint64(uint8(v.Byte()))
	case tx.KindChar:
		return uint64(v.Char())
	case tx.KindShort:
		return uint64(uint16(v.Short()))
	case tx.KindWord32:
		return uint64(v.Word32())
	case tx.KindWord64:
		return v.Word64()
	}
	fatalf("no raw form for %v value", v.Kind())
	return 0
}

func valueOfRaw(t dex.Primitive, raw uint64) tx.Value {
	switch t {
	case dex.PrimBoolean:
		return tx.BooleanValue(uint8(raw))
	case dex.PrimByte:
		return tx.ByteValue(int8(raw))
	case dex.PrimChar:
		return tx.CharValue(uint16(raw))
	case dex.PrimShort:
		return tx.ShortValue(int16(raw))
	case dex.PrimInt, dex.PrimFloat:
		return tx.Word32Value(uint32(raw))
	case dex.PrimLong, dex.PrimDouble:
		return tx.Word64Value(raw)
	}
	fatalf("no raw form for %s array element", t)
	return tx.Value{}
}
