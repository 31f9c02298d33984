// Package mirror models the managed heap objects the compile-time runtime
// mutates and rolls back: plain objects, classes (whose own storage holds
// the class's static fields), arrays, strings, dex caches and method types.
//
// Layout follows the reference-fields-first discipline: an object's
// reference fields occupy 4-byte slots immediately after the 8-byte
// header, primitive fields follow, each aligned to its width. Field
// offsets are byte offsets from the start of the object, so the same
// offset value addresses the same storage before and after a rollback.
package mirror

import (
	"fmt"
	"sync/atomic"

	"github.com/TheXPerienceProject/android-art/internal/buf"
	"github.com/TheXPerienceProject/android-art/internal/desc"
)

// FieldOffset is a byte offset from the start of an object, header included.
type FieldOffset uint32

// HeaderSize is the size of the object header (class slot plus monitor word).
const HeaderSize = 8

// refSlotSize is the width of one heap reference slot.
const refSlotSize = 4

var nextObjectID atomic.Uint64

// Object is the universal heap reference. Classes, arrays, strings, dex
// caches and method types embed it as their first field; their *Object is
// the handle stored in reference slots and transaction logs.
type Object struct {
	klass *Class
	id    uint64

	// Reference fields, slot i addressed by offset HeaderSize + 4*i.
	// For reference-typed arrays these slots are the elements.
	refs []*Object
	// Primitive field storage, addressed relative to the end of the
	// reference region.
	data []byte

	// Back-pointer to the embedding subtype, nil for plain objects.
	sub any
}

func initObject(o *Object, klass *Class, numRefs, dataSize int) {
	o.klass = klass
	o.id = nextObjectID.Add(1)
	if numRefs > 0 {
		o.refs = make([]*Object, numRefs)
	}
	if dataSize > 0 {
		o.data = make([]byte, dataSize)
	}
}

// NewObject allocates a plain instance of klass using the class's
// instance field layout.
func NewObject(klass *Class) *Object {
	o := &Object{}
	initObject(o, klass, klass.numInstanceRefs, klass.instanceDataSize)
	return o
}

// Class returns the object's class, nil only during bootstrap of the
// class hierarchy itself.
func (o *Object) Class() *Class { return o.klass }

// SetClass installs the object's class; used while wiring well-known
// classes at runtime setup.
func (o *Object) SetClass(klass *Class) { o.klass = klass }

// ID returns the object's allocation id. Ids are assigned in allocation
// order and survive a moving collection, so they serve as the stable
// identity key for transaction log registries.
func (o *Object) ID() uint64 { return o.id }

// IsClass reports whether the object is a class.
func (o *Object) IsClass() bool {
	_, ok := o.sub.(*Class)
	return ok
}

// AsClass returns the object as a *Class; fatal if it is not one.
func (o *Object) AsClass() *Class {
	c, ok := o.sub.(*Class)
	if !ok {
		fatalf("object %d is not a class", o.id)
	}
	return c
}

// IsArray reports whether the object is an array.
func (o *Object) IsArray() bool {
	_, ok := o.sub.(*Array)
	return ok
}

// AsArray returns the object as an *Array; fatal if it is not one.
func (o *Object) AsArray() *Array {
	a, ok := o.sub.(*Array)
	if !ok {
		fatalf("object %d is not an array", o.id)
	}
	return a
}

// IsString reports whether the object is a string.
func (o *Object) IsString() bool {
	_, ok := o.sub.(*String)
	return ok
}

// AsString returns the object as a *String; fatal if it is not one.
func (o *Object) AsString() *String {
	s, ok := o.sub.(*String)
	if !ok {
		fatalf("object %d is not a string", o.id)
	}
	return s
}

// IsDexCache reports whether the object is a dex cache.
func (o *Object) IsDexCache() bool {
	_, ok := o.sub.(*DexCache)
	return ok
}

// AsDexCache returns the object as a *DexCache; fatal if it is not one.
func (o *Object) AsDexCache() *DexCache {
	d, ok := o.sub.(*DexCache)
	if !ok {
		fatalf("object %d is not a dex cache", o.id)
	}
	return d
}

// IsMethodType reports whether the object is a method type.
func (o *Object) IsMethodType() bool {
	_, ok := o.sub.(*MethodType)
	return ok
}

// IsThrowable reports whether the object is a throwable.
func (o *Object) IsThrowable() bool {
	_, ok := o.sub.(*Throwable)
	return ok
}

// AsThrowable returns the object as a *Throwable; fatal if it is not one.
func (o *Object) AsThrowable() *Throwable {
	t, ok := o.sub.(*Throwable)
	if !ok {
		fatalf("object %d is not a throwable", o.id)
	}
	return t
}

// PrettyTypeOf returns the human-readable type of the object for
// diagnostics, e.g. "java.lang.Class<com.Foo>" or "com.Foo".
func (o *Object) PrettyTypeOf() string {
	if o == nil {
		return "null"
	}
	if o.IsClass() {
		return "java.lang.Class<" + desc.Pretty(o.AsClass().Descriptor()) + ">"
	}
	if o.klass == nil {
		return "<unknown>"
	}
	return desc.Pretty(o.klass.Descriptor())
}

// refSlot maps a field offset into the reference region to its slot index.
func (o *Object) refSlot(off FieldOffset) int {
	slot := (int(off) - HeaderSize) / refSlotSize
	if int(off) < HeaderSize || (int(off)-HeaderSize)%refSlotSize != 0 || slot >= len(o.refs) {
		fatalf("reference offset %d out of range for object %d (%d slots)", off, o.id, len(o.refs))
	}
	return slot
}

// primBase returns the offset of the first primitive field byte.
func (o *Object) primBase() int {
	return HeaderSize + refSlotSize*len(o.refs)
}

func (o *Object) prim(off FieldOffset, width int) []byte {
	rel := int(off) - o.primBase()
	if rel < 0 || rel+width > len(o.data) {
		fatalf("primitive offset %d (width %d) out of range for object %d", off, width, o.id)
	}
	return o.data[rel : rel+width]
}

// GetFieldBoolean reads the boolean field at off.
func (o *Object) GetFieldBoolean(off FieldOffset) uint8 {
	return o.prim(off, 1)[0]
}

// SetFieldBoolean writes the boolean field at off.
func (o *Object) SetFieldBoolean(off FieldOffset, v uint8) {
	o.prim(off, 1)[0] = v
}

// GetFieldByte reads the byte field at off.
func (o *Object) GetFieldByte(off FieldOffset) int8 {
	return int8(o.prim(off, 1)[0])
}

// SetFieldByte writes the byte field at off.
func (o *Object) SetFieldByte(off FieldOffset, v int8) {
	o.prim(off, 1)[0] = uint8(v)
}

// GetFieldChar reads the char field at off.
func (o *Object) GetFieldChar(off FieldOffset) uint16 {
	return buf.U16(o.prim(off, 2))
}

// SetFieldChar writes the char field at off.
func (o *Object) SetFieldChar(off FieldOffset, v uint16) {
	buf.PutU16(o.prim(off, 2), v)
}

// GetFieldShort reads the short field at off.
func (o *Object) GetFieldShort(off FieldOffset) int16 {
	return int16(buf.U16(o.prim(off, 2)))
}

// SetFieldShort writes the short field at off.
func (o *Object) SetFieldShort(off FieldOffset, v int16) {
	buf.PutU16(o.prim(off, 2), uint16(v))
}

// GetField32 reads the 32-bit field at off (int and float share this form).
func (o *Object) GetField32(off FieldOffset) uint32 {
	return buf.U32(o.prim(off, 4))
}

// SetField32 writes the 32-bit field at off.
func (o *Object) SetField32(off FieldOffset, v uint32) {
	buf.PutU32(o.prim(off, 4), v)
}

// GetField64 reads the 64-bit field at off (long and double share this form).
func (o *Object) GetField64(off FieldOffset) uint64 {
	return buf.U64(o.prim(off, 8))
}

// SetField64 writes the 64-bit field at off.
func (o *Object) SetField64(off FieldOffset, v uint64) {
	buf.PutU64(o.prim(off, 8), v)
}

// GetFieldReference reads the reference field at off.
func (o *Object) GetFieldReference(off FieldOffset) *Object {
	return o.refs[o.refSlot(off)]
}

// SetFieldReference writes the reference field at off.
func (o *Object) SetFieldReference(off FieldOffset, v *Object) {
	o.refs[o.refSlot(off)] = v
}

func fatalf(format string, args ...any) {
	panic(fmt.Sprintf("mirror: "+format, args...))
}
