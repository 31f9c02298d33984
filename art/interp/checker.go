// Package interp provides the heap-access helpers used to execute
// static initializers at compile time. The helpers are generic over a
// transaction checker so that the same code path compiles once with
// every check elided and once with full transaction bookkeeping.
package interp

import (
	"fmt"

	"github.com/TheXPerienceProject/android-art/art/linker"
	"github.com/TheXPerienceProject/android-art/art/mirror"
	"github.com/TheXPerienceProject/android-art/art/thr"
	"github.com/TheXPerienceProject/android-art/art/tx"
)

// Checker is the transaction surface consulted around every guest heap
// access. Constraint methods return true when the operation was
// rejected, in which case the abort error is already pending on the
// thread.
type Checker interface {
	WriteConstraint(self *thr.Thread, obj *mirror.Object) bool
	WriteValueConstraint(self *thr.Thread, value *mirror.Object) bool
	ReadConstraint(self *thr.Thread, obj *mirror.Object) bool
	AllocationConstraint(self *thr.Thread, klass *mirror.Class) bool
	IsTransactionAborted() bool
	RecordArrayElementsInTransaction(arr *mirror.Array, count int)
	RecordNewObject(obj *mirror.Object)
	RecordNewArray(arr *mirror.Array)
	RecordWriteField(obj *mirror.Object, off mirror.FieldOffset, old tx.Value, isVolatile bool)
	RecordWriteArray(arr *mirror.Array, index int, old uint64)
}

// InactiveChecker compiles the helpers for execution outside any
// transaction: every check passes and nothing is recorded.
type InactiveChecker struct{}

func (InactiveChecker) WriteConstraint(*thr.Thread, *mirror.Object) bool      { return false }
func (InactiveChecker) WriteValueConstraint(*thr.Thread, *mirror.Object) bool { return false }
func (InactiveChecker) ReadConstraint(*thr.Thread, *mirror.Object) bool       { return false }
func (InactiveChecker) AllocationConstraint(*thr.Thread, *mirror.Class) bool  { return false }
func (InactiveChecker) IsTransactionAborted() bool                            { return false }
func (InactiveChecker) RecordArrayElementsInTransaction(*mirror.Array, int)   {}
func (InactiveChecker) RecordNewObject(*mirror.Object)                        {}
func (InactiveChecker) RecordNewArray(*mirror.Array)                          {}
func (InactiveChecker) RecordWriteField(*mirror.Object, mirror.FieldOffset, tx.Value, bool) {
}
func (InactiveChecker) RecordWriteArray(*mirror.Array, int, uint64) {}

// ActiveChecker routes every check and record through the AOT linker's
// innermost transaction.
type ActiveChecker struct {
	Linker *linker.AotClassLinker
}

func (c ActiveChecker) WriteConstraint(self *thr.Thread, obj *mirror.Object) bool {
	return c.Linker.TransactionWriteConstraint(self, obj)
}

func (c ActiveChecker) WriteValueConstraint(self *thr.Thread, value *mirror.Object) bool {
	return c.Linker.TransactionWriteValueConstraint(self, value)
}

func (c ActiveChecker) ReadConstraint(self *thr.Thread, obj *mirror.Object) bool {
	return c.Linker.TransactionReadConstraint(self, obj)
}

func (c ActiveChecker) AllocationConstraint(self *thr.Thread, klass *mirror.Class) bool {
	return c.Linker.TransactionAllocationConstraint(self, klass)
}

func (c ActiveChecker) IsTransactionAborted() bool {
	return c.Linker.IsTransactionAborted()
}

// RecordArrayElementsInTransaction records the current value of the
// first count elements before a bulk fill overwrites them. A nil array
// is left for the caller's null check.
func (c ActiveChecker) RecordArrayElementsInTransaction(arr *mirror.Array, count int) {
	if arr == nil {
		return
	}
	if count > arr.Len() {
		fatalf("recording %d elements of a length-%d array", count, arr.Len())
	}
	for i := 0; i < count; i++ {
		c.Linker.RecordWriteArray(arr, i, arr.GetElementRaw(i))
	}
}

func (c ActiveChecker) RecordNewObject(obj *mirror.Object) {
	c.Linker.RecordNewObject(obj)
}

func (c ActiveChecker) RecordNewArray(arr *mirror.Array) {
	c.Linker.RecordNewArray(arr)
}

func (c ActiveChecker) RecordWriteField(obj *mirror.Object, off mirror.FieldOffset, old tx.Value, isVolatile bool) {
	switch old.Kind() {
	case tx.KindBoolean:
		c.Linker.RecordWriteFieldBoolean(obj, off, old.Boolean(), isVolatile)
	case tx.KindByte:
		c.Linker.RecordWriteFieldByte(obj, off, old.Byte(), isVolatile)
	case tx.KindChar:
		c.Linker.RecordWriteFieldChar(obj, off, old.Char(), isVolatile)
	case tx.KindShort:
		c.Linker.RecordWriteFieldShort(obj, off, old.Short(), isVolatile)
	case tx.KindWord32:
		c.Linker.RecordWriteField32(obj, off, old.Word32(), isVolatile)
	case tx.KindWord64:
		c.Linker.RecordWriteField64(obj, off, old.Word64(), isVolatile)
	case tx.KindReference:
		c.Linker.RecordWriteFieldReference(obj, off, old.Reference(), isVolatile)
	default:
		fatalf("recording field write with unknown value kind %v", old.Kind())
	}
}

func (c ActiveChecker) RecordWriteArray(arr *mirror.Array, index int, old uint64) {
	c.Linker.RecordWriteArray(arr, index, old)
}

var (
	_ Checker = InactiveChecker{}
	_ Checker = ActiveChecker{}
)

func fatalf(format string, args ...any) {
	panic(fmt.Sprintf("interp: "+format, args...))
}
