package mirror

import (
	"github.com/TheXPerienceProject/android-art/art/dex"
	"github.com/TheXPerienceProject/android-art/internal/desc"
)

// ClassStatus tracks a class through loading and initialization. Values
// are ordered so that later phases compare greater.
type ClassStatus uint8

const (
	StatusNotReady ClassStatus = iota
	StatusErroneous
	StatusResolved
	StatusVerified
	StatusInitializing
	StatusInitialized
	StatusVisiblyInitialized
)

func (s ClassStatus) String() string {
	switch s {
	case StatusNotReady:
		return "NotReady"
	case StatusErroneous:
		return "Erroneous"
	case StatusResolved:
		return "Resolved"
	case StatusVerified:
		return "Verified"
	case StatusInitializing:
		return "Initializing"
	case StatusInitialized:
		return "Initialized"
	case StatusVisiblyInitialized:
		return "VisiblyInitialized"
	default:
		return "Unknown"
	}
}

// Field describes one declared field. Offsets are assigned when the
// declaring class is constructed and are identical for every instance.
type Field struct {
	name     string
	typ      dex.Primitive
	volatile bool
	offset   FieldOffset
}

// NewField declares a field of the given primitive type; dex.PrimNot
// declares a reference field.
func NewField(name string, typ dex.Primitive) *Field {
	return &Field{name: name, typ: typ}
}

// AsVolatile marks the field volatile and returns it.
func (f *Field) AsVolatile() *Field {
	f.volatile = true
	return f
}

func (f *Field) Name() string        { return f.name }
func (f *Field) Type() dex.Primitive { return f.typ }
func (f *Field) IsVolatile() bool    { return f.volatile }

// Offset returns the field's byte offset within its owner.
func (f *Field) Offset() FieldOffset { return f.offset }

// ClinitFunc is a class's static initializer. It runs on the single
// compiler-driver thread; a non-nil error marks initialization as failed
// (the corresponding guest exception is already pending on the thread).
type ClinitFunc func() error

// Class describes a managed class. The embedded Object's own storage
// holds the class's static fields, preceded by a hidden 32-bit status
// slot, so status transitions and static writes recorded by a
// transaction both roll back through the ordinary field-undo path.
type Class struct {
	Object

	descriptor  string
	super       *Class
	component   *Class
	primitive   dex.Primitive
	iface       bool
	finalizable bool
	bootLoader  bool
	dexFile     *dex.File
	dexCache    *DexCache
	interfaces  []*Class
	clinit      ClinitFunc

	instanceFields   []*Field
	staticFields     []*Field
	numInstanceRefs  int
	instanceDataSize int

	statusOffset FieldOffset
}

func alignUp(n, a int) int {
	return (n + a - 1) &^ (a - 1)
}

// layoutFields assigns offsets: reference fields first in declaration
// order, then primitives grouped by descending width. startData reserves
// leading bytes of the primitive region.
func layoutFields(fields []*Field, startData int) (numRefs, dataSize int) {
	for _, f := range fields {
		if f.typ == dex.PrimNot {
			f.offset = FieldOffset(HeaderSize + refSlotSize*numRefs)
			numRefs++
		}
	}
	base := HeaderSize + refSlotSize*numRefs
	cur := base + startData
	for _, width := range []int{8, 4, 2, 1} {
		for _, f := range fields {
			if f.typ == dex.PrimNot || f.typ.ComponentSize() != width {
				continue
			}
			cur = alignUp(cur, width)
			f.offset = FieldOffset(cur)
			cur += width
		}
	}
	return numRefs, cur - base
}

// statusSlotSize reserves the hidden status word at the start of a
// class's primitive region.
const statusSlotSize = 4

// NewClass builds a class with the given instance and static field
// declarations, lays out both, and allocates the static storage. The
// class starts in StatusResolved.
func NewClass(descriptor string, super *Class, instanceFields, staticFields []*Field) *Class {
	c := &Class{
		descriptor:     descriptor,
		super:          super,
		primitive:      dex.PrimNot,
		instanceFields: instanceFields,
		staticFields:   staticFields,
	}
	c.numInstanceRefs, c.instanceDataSize = layoutFields(instanceFields, 0)

	staticRefs, staticData := layoutFields(staticFields, statusSlotSize)
	c.statusOffset = FieldOffset(HeaderSize + refSlotSize*staticRefs)
	initObject(&c.Object, nil, staticRefs, staticData)
	c.Object.sub = c
	c.SetStatusRaw(StatusResolved)
	return c
}

// NewPrimitiveClass builds the class of a primitive type. Primitive
// classes are boot classes and are born visibly initialized.
func NewPrimitiveClass(p dex.Primitive) *Class {
	c := &Class{descriptor: p.Descriptor(), primitive: p, bootLoader: true}
	c.statusOffset = HeaderSize
	initObject(&c.Object, nil, 0, statusSlotSize)
	c.Object.sub = c
	c.SetStatusRaw(StatusVisiblyInitialized)
	return c
}

// NewArrayClass builds the array class with the given component class.
// Array classes need no initialization.
func NewArrayClass(component *Class) *Class {
	c := &Class{
		descriptor: "[" + component.descriptor,
		component:  component,
		primitive:  dex.PrimNot,
		bootLoader: component.bootLoader,
	}
	c.statusOffset = HeaderSize
	initObject(&c.Object, nil, 0, statusSlotSize)
	c.Object.sub = c
	c.SetStatusRaw(StatusVisiblyInitialized)
	return c
}

// Descriptor returns the class's type descriptor, e.g. "Lcom/Foo;".
func (c *Class) Descriptor() string { return c.descriptor }

// PrettyDescriptor returns the dotted human form of the descriptor,
// e.g. "com.Foo".
func (c *Class) PrettyDescriptor() string { return desc.Pretty(c.descriptor) }

// StatusOffset returns the offset of the hidden status word in the class
// object's storage.
func (c *Class) StatusOffset() FieldOffset { return c.statusOffset }

// Status reads the class status from the hidden status word.
func (c *Class) Status() ClassStatus {
	return ClassStatus(c.GetField32(c.statusOffset))
}

// SetStatusRaw stores the status without transaction bookkeeping. The
// class linker performs recorded status writes itself.
func (c *Class) SetStatusRaw(s ClassStatus) {
	c.SetField32(c.statusOffset, uint32(s))
}

func (c *Class) IsPrimitive() bool  { return c.primitive != dex.PrimNot }
func (c *Class) IsArrayClass() bool { return c.component != nil }
func (c *Class) IsInterface() bool  { return c.iface }

// PrimitiveType returns the primitive kind of a primitive class, or
// dex.PrimNot for reference classes.
func (c *Class) PrimitiveType() dex.Primitive { return c.primitive }

// ComponentType returns the component class of an array class, nil
// otherwise.
func (c *Class) ComponentType() *Class { return c.component }

func (c *Class) Super() *Class       { return c.super }
func (c *Class) HasSuperClass() bool { return c.super != nil }

// Interfaces returns the flattened interface table: every interface the
// class implements, directly or transitively.
func (c *Class) Interfaces() []*Class { return c.interfaces }

// SetInterfaces installs the flattened interface table.
func (c *Class) SetInterfaces(ifaces []*Class) { c.interfaces = ifaces }

// MarkInterface flags the class as an interface type.
func (c *Class) MarkInterface() *Class {
	c.iface = true
	return c
}

func (c *Class) IsFinalizable() bool { return c.finalizable }

// MarkFinalizable flags instances as requiring finalization.
func (c *Class) MarkFinalizable() *Class {
	c.finalizable = true
	return c
}

// IsBootStrapClassLoaded reports whether the class was loaded by the
// bootstrap loader.
func (c *Class) IsBootStrapClassLoaded() bool { return c.bootLoader }

// MarkBootClassLoaded flags the class as bootstrap-loaded.
func (c *Class) MarkBootClassLoaded() *Class {
	c.bootLoader = true
	return c
}

func (c *Class) DexFile() *dex.File { return c.dexFile }

// SetDexFile records the dex file defining this class.
func (c *Class) SetDexFile(f *dex.File) { c.dexFile = f }

// DexCache returns the dex cache of the defining dex file; nil for
// primitive and array classes.
func (c *Class) DexCache() *DexCache { return c.dexCache }

// SetDexCache installs the class's dex cache.
func (c *Class) SetDexCache(dc *DexCache) { c.dexCache = dc }

func (c *Class) Clinit() ClinitFunc { return c.clinit }

// SetClinit installs the static initializer.
func (c *Class) SetClinit(fn ClinitFunc) { c.clinit = fn }

// Status predicates follow the phase ordering.

func (c *Class) IsErroneous() bool { return c.Status() == StatusErroneous }

// IsInitializing includes every phase from Initializing on.
func (c *Class) IsInitializing() bool { return c.Status() >= StatusInitializing }

// IsInitialized includes VisiblyInitialized.
func (c *Class) IsInitialized() bool { return c.Status() >= StatusInitialized }

func (c *Class) IsVisiblyInitialized() bool { return c.Status() == StatusVisiblyInitialized }

// InstanceFields returns the declared instance fields with offsets
// assigned.
func (c *Class) InstanceFields() []*Field { return c.instanceFields }

// StaticFields returns the declared static fields with offsets assigned.
func (c *Class) StaticFields() []*Field { return c.staticFields }

// InstanceFieldByName finds a declared instance field, nil if absent.
func (c *Class) InstanceFieldByName(name string) *Field {
	for _, f := range c.instanceFields {
		if f.name == name {
			return f
		}
	}
	return nil
}

// StaticFieldByName finds a declared static field, nil if absent.
func (c *Class) StaticFieldByName(name string) *Field {
	for _, f := range c.staticFields {
		if f.name == name {
			return f
		}
	}
	return nil
}
