// Package tx implements the rollback log for speculative class
// initialization. A transaction records the pre-image of every heap
// mutation a static initializer performs, so the whole run can be
// undone if it turns out to violate compilation constraints. Records
// live in an arena owned by the outermost transaction; nested
// transactions borrow it.
package tx

import (
	"fmt"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"

	"github.com/TheXPerienceProject/android-art/art/arena"
	"github.com/TheXPerienceProject/android-art/art/dex"
	"github.com/TheXPerienceProject/android-art/art/gc"
	"github.com/TheXPerienceProject/android-art/art/mirror"
)

func fatalf(format string, args ...any) {
	panic("tx: " + fmt.Sprintf(format, args...))
}

// Interner is the slice of the intern table used to invert recorded
// intern operations during rollback.
type Interner interface {
	InsertStrongFromRollback(s *mirror.String)
	RemoveStrongFromRollback(s *mirror.String)
	InsertWeakFromRollback(s *mirror.String)
	RemoveWeakFromRollback(s *mirror.String)
}

// Env carries the runtime collaborators a transaction consults: the
// heap for boot image membership, the intern table for rollback, and
// the class linker's image-reference predicate for value constraints.
// A nil CanReferenceInImage accepts every class.
type Env struct {
	Heap                *gc.Heap
	Interner            Interner
	CanReferenceInImage func(klass *mirror.Class) bool
}

// Transaction is the rollback log for one nesting level of speculative
// class initialization. Not safe for concurrent use.
type Transaction struct {
	strict       bool
	aborted      bool
	rollingBack  bool
	abortMessage string

	root *mirror.Object
	env  Env

	stack     *arena.Stack
	ownsStack bool

	objectLogs            *treemap.Map
	arrayLogs             *treemap.Map
	internStringLogs      []*internStringLog
	resolveStringLogs     []*resolveStringLog
	resolveMethodTypeLogs []*resolveMethodTypeLog

	lastAllocatedObject *mirror.Object
	noNewRecordsReason  string
}

// NewTransaction creates a transaction. Exactly one of stack and pool
// must be non-nil: a pool makes this the outermost transaction owning a
// fresh arena stack, an arena stack is borrowed from the enclosing
// transaction. root is the class whose initializer runs under this
// transaction; it must be non-nil in strict mode.
func NewTransaction(strict bool, root *mirror.Class, stack *arena.Stack, pool *arena.Pool, env Env) *Transaction {
	if (stack == nil) == (pool == nil) {
		fatalf("exactly one of arena stack and arena pool must be given")
	}
	if env.Heap == nil {
		fatalf("transaction without a heap")
	}
	if strict && root == nil {
		fatalf("strict transaction without a root class")
	}
	t := &Transaction{
		strict:     strict,
		env:        env,
		objectLogs: treemap.NewWith(utils.UInt64Comparator),
		arrayLogs:  treemap.NewWith(utils.UInt64Comparator),
	}
	if root != nil {
		t.root = &root.Object
	}
	if pool != nil {
		t.stack = arena.NewStack(pool)
		t.ownsStack = true
	} else {
		t.stack = stack
	}
	return t
}

// IsStrict reports whether cross-class constraints apply.
func (t *Transaction) IsStrict() bool { return t.strict }

// Root returns the class whose initializer opened this transaction,
// nil for non-strict transactions entered without one.
func (t *Transaction) Root() *mirror.Class {
	if t.root == nil {
		return nil
	}
	return t.root.AsClass()
}

// ArenaStack returns the arena backing this transaction's records, for
// handing down to a nested transaction.
func (t *Transaction) ArenaStack() *arena.Stack { return t.stack }

// Release returns the arena to its pool when this transaction owns it.
// Must only be called after the transaction has been popped.
func (t *Transaction) Release() {
	if t.ownsStack {
		t.stack.Release()
	}
}

// Abort records the abort message and marks the transaction aborted.
// Only the first message is kept.
func (t *Transaction) Abort(message string) {
	if !t.aborted {
		t.aborted = true
		t.abortMessage = message
	}
}

// IsAborted reports whether a constraint violation aborted this
// transaction.
func (t *Transaction) IsAborted() bool { return t.aborted }

// AbortMessage returns the first recorded abort message.
func (t *Transaction) AbortMessage() string { return t.abortMessage }

// IsRollingBack reports whether Rollback is in progress or finished.
func (t *Transaction) IsRollingBack() bool { return t.rollingBack }

func (t *Transaction) assertRecordsAllowed() {
	if t.noNewRecordsReason != "" {
		fatalf("new transaction records forbidden: %s", t.noNewRecordsReason)
	}
}

func (t *Transaction) getOrCreateObjectLog(obj *mirror.Object) *objectLog {
	if v, ok := t.objectLogs.Get(obj.ID()); ok {
		return v.(*objectLog)
	}
	l := &objectLog{obj: obj}
	t.objectLogs.Put(obj.ID(), l)
	return l
}

func (t *Transaction) getOrCreateArrayLog(arr *mirror.Array) *arrayLog {
	if v, ok := t.arrayLogs.Get(arr.ID()); ok {
		return v.(*arrayLog)
	}
	l := &arrayLog{arr: &arr.Object}
	t.arrayLogs.Put(arr.ID(), l)
	return l
}

func (t *Transaction) recordField(obj *mirror.Object, kind Kind, off mirror.FieldOffset, raw uint64, ref *mirror.Object, isVolatile bool) {
	if obj == nil {
		fatalf("field write record for nil object")
	}
	t.assertRecordsAllowed()
	l := t.getOrCreateObjectLog(obj)
	if l.isNew {
		return
	}
	l.logField(t.stack, kind, off, raw, ref, isVolatile)
}

// RecordWriteFieldBoolean records the prior value of a boolean field
// about to be overwritten.
func (t *Transaction) RecordWriteFieldBoolean(obj *mirror.Object, off mirror.FieldOffset, value uint8, isVolatile bool) {
	t.recordField(obj, KindBoolean, off, uint64(value), nil, isVolatile)
}

// RecordWriteFieldByte records the prior value of a byte field.
func (t *Transaction) RecordWriteFieldByte(obj *mirror.Object, off mirror.FieldOffset, value int8, isVolatile bool) {
	t.recordField(obj, KindByte, off, uint64(uint8(value)), nil, isVolatile)
}

// RecordWriteFieldChar records the prior value of a char field.
func (t *Transaction) RecordWriteFieldChar(obj *mirror.Object, off mirror.FieldOffset, value uint16, isVolatile bool) {
	t.recordField(obj, KindChar, off, uint64(value), nil, isVolatile)
}

// RecordWriteFieldShort records the prior value of a short field.
func (t *Transaction) RecordWriteFieldShort(obj *mirror.Object, off mirror.FieldOffset, value int16, isVolatile bool) {
	t.recordField(obj, KindShort, off, uint64(uint16(value)), nil, isVolatile)
}

// RecordWriteField32 records the prior value of an int or float field.
func (t *Transaction) RecordWriteField32(obj *mirror.Object, off mirror.FieldOffset, value uint32, isVolatile bool) {
	t.recordField(obj, KindWord32, off, uint64(value), nil, isVolatile)
}

// RecordWriteField64 records the prior value of a long or double field.
func (t *Transaction) RecordWriteField64(obj *mirror.Object, off mirror.FieldOffset, value uint64, isVolatile bool) {
	t.recordField(obj, KindWord64, off, value, nil, isVolatile)
}

// RecordWriteFieldReference records the prior referent of a reference
// field. Reference-array stores are recorded through here as well,
// addressed by element offset.
func (t *Transaction) RecordWriteFieldReference(obj *mirror.Object, off mirror.FieldOffset, value *mirror.Object, isVolatile bool) {
	t.recordField(obj, KindReference, off, 0, value, isVolatile)
}

// RecordWriteArray records the prior value of a primitive array
// element, widened to 64 bits.
func (t *Transaction) RecordWriteArray(array *mirror.Array, index int, value uint64) {
	if array == nil {
		fatalf("array write record for nil array")
	}
	if array.IsObjectArray() {
		fatalf("array write record for reference array %d", array.ID())
	}
	t.assertRecordsAllowed()
	l := t.getOrCreateArrayLog(array)
	if l.isNew {
		return
	}
	l.logWrite(t.stack, index, value)
}

// RecordNewObject marks obj as allocated inside this transaction. No
// field history is kept for it: the object is unreachable after
// rollback. The object must have no recorded writes yet.
func (t *Transaction) RecordNewObject(obj *mirror.Object) {
	if obj == nil {
		fatalf("new-object record for nil object")
	}
	t.assertRecordsAllowed()
	l := t.getOrCreateObjectLog(obj)
	if l.size() != 0 {
		fatalf("object %d already has %d recorded writes", obj.ID(), l.size())
	}
	l.isNew = true
	t.lastAllocatedObject = obj
}

// RecordNewArray marks arr as allocated inside this transaction, with
// the same exemption as RecordNewObject.
func (t *Transaction) RecordNewArray(arr *mirror.Array) {
	if arr == nil {
		fatalf("new-array record for nil array")
	}
	t.assertRecordsAllowed()
	l := t.getOrCreateArrayLog(arr)
	if l.size() != 0 {
		fatalf("array %d already has %d recorded writes", arr.ID(), l.size())
	}
	l.isNew = true
	t.lastAllocatedObject = &arr.Object
}

// ObjectNeedsTransactionRecords reports whether field writes to obj
// must be recorded, i.e. whether it predates this transaction.
func (t *Transaction) ObjectNeedsTransactionRecords(obj *mirror.Object) bool {
	if obj == t.lastAllocatedObject {
		return false
	}
	if v, ok := t.objectLogs.Get(obj.ID()); ok {
		return !v.(*objectLog).isNew
	}
	return true
}

// ArrayNeedsTransactionRecords is the array analog of
// ObjectNeedsTransactionRecords.
func (t *Transaction) ArrayNeedsTransactionRecords(arr *mirror.Array) bool {
	if &arr.Object == t.lastAllocatedObject {
		return false
	}
	if v, ok := t.arrayLogs.Get(arr.ID()); ok {
		return !v.(*arrayLog).isNew
	}
	return true
}

func (t *Transaction) logInternedString(l *internStringLog) {
	if l.str == nil {
		fatalf("intern record for nil string")
	}
	t.assertRecordsAllowed()
	t.internStringLogs = append(t.internStringLogs, l)
}

// RecordStrongStringInsertion records an insertion into the strong
// intern table.
func (t *Transaction) RecordStrongStringInsertion(s *mirror.String) {
	t.logInternedString(&internStringLog{str: &s.Object, kind: strongString, op: internInsert})
}

// RecordStrongStringRemoval records a removal from the strong intern
// table.
func (t *Transaction) RecordStrongStringRemoval(s *mirror.String) {
	t.logInternedString(&internStringLog{str: &s.Object, kind: strongString, op: internRemove})
}

// RecordWeakStringInsertion records an insertion into the weak intern
// table.
func (t *Transaction) RecordWeakStringInsertion(s *mirror.String) {
	t.logInternedString(&internStringLog{str: &s.Object, kind: weakString, op: internInsert})
}

// RecordWeakStringRemoval records a removal from the weak intern table.
func (t *Transaction) RecordWeakStringRemoval(s *mirror.String) {
	t.logInternedString(&internStringLog{str: &s.Object, kind: weakString, op: internRemove})
}

// RecordResolveString records that the transaction filled a dex-cache
// string slot.
func (t *Transaction) RecordResolveString(dexCache *mirror.DexCache, idx dex.StringIndex) {
	if dexCache == nil {
		fatalf("string resolution record for nil dex cache")
	}
	if int(idx) >= dexCache.DexFile().NumStrings() {
		fatalf("string index %d out of range for %s", idx, dexCache.DexFile().Location())
	}
	t.assertRecordsAllowed()
	t.resolveStringLogs = append(t.resolveStringLogs, &resolveStringLog{dexCache: &dexCache.Object, idx: idx})
}

// RecordResolveMethodType records that the transaction filled a
// dex-cache method-type slot.
func (t *Transaction) RecordResolveMethodType(dexCache *mirror.DexCache, idx dex.ProtoIndex) {
	if dexCache == nil {
		fatalf("method-type resolution record for nil dex cache")
	}
	if int(idx) >= dexCache.DexFile().NumProtos() {
		fatalf("proto index %d out of range for %s", idx, dexCache.DexFile().Location())
	}
	t.assertRecordsAllowed()
	t.resolveMethodTypeLogs = append(t.resolveMethodTypeLogs, &resolveMethodTypeLog{dexCache: &dexCache.Object, idx: idx})
}

// Rollback drains every log, restoring pre-transaction state: array
// elements first, then object fields, then intern-table operations,
// then string and method-type resolutions. Within each array and
// object, entries are undone newest first. Must be the last operation
// on the transaction before it is discarded.
func (t *Transaction) Rollback() {
	if t.rollingBack {
		fatalf("transaction already rolled back")
	}
	t.rollingBack = true
	t.undoArrayModifications()
	t.undoObjectModifications()
	t.undoInternStringTableModifications()
	t.undoResolveStringModifications()
	t.undoResolveMethodTypeModifications()
}

func (t *Transaction) undoObjectModifications() {
	t.objectLogs.Each(func(_ any, v any) {
		if l := v.(*objectLog); !l.isNew {
			l.undo()
		}
	})
	t.objectLogs.Clear()
}

func (t *Transaction) undoArrayModifications() {
	t.arrayLogs.Each(func(_ any, v any) {
		if l := v.(*arrayLog); !l.isNew {
			l.undo()
		}
	})
	t.arrayLogs.Clear()
}

func (t *Transaction) undoInternStringTableModifications() {
	if len(t.internStringLogs) == 0 {
		return
	}
	if t.env.Interner == nil {
		fatalf("intern log rollback without an intern table")
	}
	for i := len(t.internStringLogs) - 1; i >= 0; i-- {
		t.internStringLogs[i].undo(t.env.Interner)
	}
	t.internStringLogs = nil
}

func (t *Transaction) undoResolveStringModifications() {
	for i := len(t.resolveStringLogs) - 1; i >= 0; i-- {
		t.resolveStringLogs[i].undo()
	}
	t.resolveStringLogs = nil
}

func (t *Transaction) undoResolveMethodTypeModifications() {
	for i := len(t.resolveMethodTypeLogs) - 1; i >= 0; i-- {
		t.resolveMethodTypeLogs[i].undo()
	}
	t.resolveMethodTypeLogs = nil
}

// VisitRoots offers every heap reference held by the logs to the
// collector, and rekeys entity logs whose object was moved.
func (t *Transaction) VisitRoots(visitor gc.RootVisitor) {
	if t.root != nil {
		visitor.VisitRoot(&t.root)
	}
	if t.lastAllocatedObject != nil {
		visitor.VisitRoot(&t.lastAllocatedObject)
	}
	t.visitObjectLogs(visitor)
	t.visitArrayLogs(visitor)
	for _, l := range t.internStringLogs {
		l.visitRoots(visitor)
	}
	for _, l := range t.resolveStringLogs {
		visitor.VisitRoot(&l.dexCache)
	}
	for _, l := range t.resolveMethodTypeLogs {
		visitor.VisitRoot(&l.dexCache)
	}
}

func (t *Transaction) visitObjectLogs(visitor gc.RootVisitor) {
	type movedLog struct {
		oldID uint64
		log   *objectLog
	}
	var moved []movedLog
	t.objectLogs.Each(func(k any, v any) {
		l := v.(*objectLog)
		l.visitRoots(visitor)
		if id := l.obj.ID(); id != k.(uint64) {
			moved = append(moved, movedLog{k.(uint64), l})
		}
	})
	for _, m := range moved {
		t.objectLogs.Remove(m.oldID)
		t.objectLogs.Put(m.log.obj.ID(), m.log)
	}
}

func (t *Transaction) visitArrayLogs(visitor gc.RootVisitor) {
	type movedLog struct {
		oldID uint64
		log   *arrayLog
	}
	var moved []movedLog
	t.arrayLogs.Each(func(k any, v any) {
		l := v.(*arrayLog)
		l.visitRoots(visitor)
		if id := l.arr.ID(); id != k.(uint64) {
			moved = append(moved, movedLog{k.(uint64), l})
		}
	})
	for _, m := range moved {
		t.arrayLogs.Remove(m.oldID)
		t.arrayLogs.Put(m.log.arr.ID(), m.log)
	}
}

// WriteConstraint reports whether a field write to obj must be
// rejected: boot image objects are immutable, and in strict mode only
// the root class's own statics may change.
func (t *Transaction) WriteConstraint(obj *mirror.Object) bool {
	if obj == nil {
		fatalf("write constraint for nil object")
	}
	if t.env.Heap.ObjectIsInBootImageSpace(obj) {
		return true
	}
	return t.strict && obj.IsClass() && obj.AsClass() != t.Root()
}

// WriteValueConstraint reports whether storing a reference to value
// must be rejected because its class cannot be referenced from the
// image under construction. Null is always storable, strict mode
// stores anything, and without boot image spaces there is no image
// being extended to protect.
func (t *Transaction) WriteValueConstraint(value *mirror.Object) bool {
	if value == nil {
		return false
	}
	if t.strict {
		return false
	}
	if !t.env.Heap.HasBootImageSpaces() {
		return false
	}
	klass := value.Class()
	if value.IsClass() {
		klass = value.AsClass()
	}
	if klass == nil || t.env.CanReferenceInImage == nil {
		return false
	}
	return !t.env.CanReferenceInImage(klass)
}

// ReadConstraint reports whether a static read from obj must be
// rejected: in strict mode an initializer may read only its own class's
// statics, or those of classes already independently initialized.
func (t *Transaction) ReadConstraint(obj *mirror.Object) bool {
	if obj == nil {
		fatalf("read constraint for nil object")
	}
	if !t.strict || !obj.IsClass() {
		return false
	}
	klass := obj.AsClass()
	return klass != t.Root() && !klass.IsInitialized()
}

// AllocationConstraint reports whether allocating an instance of klass
// must be rejected: finalizer side effects cannot be rolled back.
func (t *Transaction) AllocationConstraint(klass *mirror.Class) bool {
	if klass == nil {
		fatalf("allocation constraint for nil class")
	}
	return klass.IsFinalizable()
}
