package linker

import (
	"fmt"

	"github.com/TheXPerienceProject/android-art/art/arena"
	"github.com/TheXPerienceProject/android-art/art/dex"
	"github.com/TheXPerienceProject/android-art/art/gc"
	"github.com/TheXPerienceProject/android-art/art/intern"
	"github.com/TheXPerienceProject/android-art/art/mirror"
	"github.com/TheXPerienceProject/android-art/art/thr"
	"github.com/TheXPerienceProject/android-art/art/tx"
)

// AotClassLinker adds compile-time transaction support to the class
// linker: a stack of nested transactions, constraint checks that abort
// the innermost one, and an InitializeClass wrapper that runs each
// class's initializer inside its own strict transaction when compiling
// an app image.
//
// Transactions are handled under a stack discipline; the stack is kept
// as a slice with the innermost transaction last, so the GC can still
// walk all of them.
type AotClassLinker struct {
	ClassLinker

	pool *arena.Pool

	transactions []*tx.Transaction
	active       bool

	abortErrorClass *mirror.Class

	// Dex files whose classes may be referenced from the app image
	// being compiled; nil when not compiling an app image.
	appImageDexFiles map[*dex.File]struct{}
}

// NewAotClassLinker creates an AOT linker drawing transaction log
// arenas from pool. The intern table's recorder is wired to the
// innermost active transaction.
func NewAotClassLinker(heap *gc.Heap, table *intern.Table, pool *arena.Pool) *AotClassLinker {
	l := &AotClassLinker{pool: pool}
	l.ClassLinker = *NewClassLinker(heap, table)
	l.aot = l
	table.SetRecorderSource(func() intern.Recorder {
		if !l.IsActiveTransaction() {
			return nil
		}
		return l.Transaction()
	})
	return l
}

// PrepareForAborts resolves the transaction abort error class. Aborts
// assume the exception class is already resolved, since class loading
// does not work under a transaction.
func (l *AotClassLinker) PrepareForAborts(self *thr.Thread) error {
	if l.abortErrorClass != nil {
		return nil
	}
	klass, err := l.FindClass(self, TransactionAbortErrorDescriptor)
	if err != nil {
		return fmt.Errorf("linker: preparing for aborts: %w", err)
	}
	if !l.EnsureInitialized(self, klass, true, true) {
		err := ErrorFromPending(self)
		self.ClearException()
		return fmt.Errorf("linker: preparing for aborts: %w", err)
	}
	l.abortErrorClass = klass
	return nil
}

// SetAppImageDexFiles registers the dex files whose classes belong to
// the app image under compilation; nil clears the partition.
func (l *AotClassLinker) SetAppImageDexFiles(files []*dex.File) {
	if files == nil {
		l.appImageDexFiles = nil
		return
	}
	m := make(map[*dex.File]struct{}, len(files))
	for _, f := range files {
		m[f] = struct{}{}
	}
	l.appImageDexFiles = m
}

// CanReferenceInBootImageExtensionOrAppImage reports whether klass may
// be referenced from the image under compilation. Referencing a class
// defined in a dex file of the boot image we compile against, but not
// itself in that boot image, could yield duplicate class objects from
// multiple images, so it is refused; likewise classes of dex files
// outside the registered app image partition.
func (l *AotClassLinker) CanReferenceInBootImageExtensionOrAppImage(klass *mirror.Class) bool {
	heap := l.heap
	if heap.ObjectIsInBootImageSpace(&klass.Object) {
		return true
	}

	// Arrays have no dex cache; they are tied to the dex file of their
	// non-array component type.
	if klass.IsArrayClass() {
		for klass.IsArrayClass() {
			klass = klass.ComponentType()
		}
		// A primitive array class that is not itself in the boot image
		// cannot be referenced, and neither can arrays of erroneous
		// classes.
		if klass.IsPrimitive() {
			return false
		}
		if klass.IsErroneous() {
			return false
		}
	}

	if !l.canReferenceDexCache(klass.DexCache()) {
		return false
	}
	for super := klass.Super(); super != nil && !heap.ObjectIsInBootImageSpace(&super.Object); super = super.Super() {
		if !l.canReferenceDexCache(super.DexCache()) {
			return false
		}
	}
	for _, iface := range klass.Interfaces() {
		if !heap.ObjectIsInBootImageSpace(&iface.Object) && !l.canReferenceDexCache(iface.DexCache()) {
			return false
		}
	}
	return true
}

func (l *AotClassLinker) canReferenceDexCache(dexCache *mirror.DexCache) bool {
	// Classes without a defining dex file (runtime-internal ones) carry
	// no image conflict.
	if dexCache == nil {
		return true
	}
	// A boot image dex cache for a class that was not itself in the
	// boot image means the class is a re-definition; refuse it.
	if l.heap.ObjectIsInBootImageSpace(&dexCache.Object) {
		return false
	}
	// App image compilation can pull in dex files from parent or
	// library class loaders; their classes are not in this app image.
	if l.appImageDexFiles != nil {
		if _, ok := l.appImageDexFiles[dexCache.DexFile()]; !ok {
			return false
		}
	}
	return true
}

// CanAllocClass reports whether a class object may be created now.
// Class allocation does not work under a transaction, so it aborts.
func (l *AotClassLinker) CanAllocClass(self *thr.Thread) bool {
	if l.IsActiveTransaction() {
		l.AbortTransaction(self, "Can't resolve type within transaction.")
		return false
	}
	return true
}

// InitializeClass wraps the base implementation with strict-mode
// preconditions and, in strict mode, a fresh transaction per class.
func (l *AotClassLinker) InitializeClass(self *thr.Thread, klass *mirror.Class, canInitStatics, canInitParents bool) bool {
	strictMode := l.IsActiveStrictTransactionMode()

	if klass.IsInitializing() {
		return l.ClassLinker.InitializeClass(self, klass, canInitStatics, canInitParents)
	}

	// When compiling a boot image extension, do not initialize a class
	// defined in a dex file belonging to the boot image we compile
	// against. Throwable classes still initialize outside a transaction
	// so that aborts can be thrown.
	if !strictMode && l.heap.ObjectIsInBootImageSpace(dexCacheObject(klass)) {
		if l.IsActiveTransaction() {
			l.AbortTransaction(self,
				"Can't initialize %s because it is defined in a boot image dex file.",
				klass.PrettyTypeOf())
			return false
		}
		if !l.isThrowableClass(klass) {
			fatalf("initializing boot image dex file class %s outside a transaction", klass.PrettyDescriptor())
		}
	}

	if strictMode && klass.IsBootStrapClassLoaded() {
		l.AbortTransaction(self,
			"Can't resolve %s because it is an uninitialized boot class.",
			klass.PrettyTypeOf())
		return false
	}

	// A superclass mid-initialization could abort later and roll back
	// after this class's changes were committed.
	if strictMode && !klass.IsInterface() && klass.HasSuperClass() &&
		klass.Super().Status() == mirror.StatusInitializing {
		l.AbortTransaction(self,
			"Can't resolve %s because it's superclass is not initialized.",
			klass.PrettyTypeOf())
		return false
	}

	if strictMode {
		l.EnterTransactionMode(self, true, klass)
	}
	success := l.ClassLinker.InitializeClass(self, klass, canInitStatics, canInitParents)

	if strictMode {
		if success {
			l.ExitTransactionMode()
		} else if !self.IsExceptionPending() {
			fatalf("strict initialization of %s failed without a pending exception", klass.Descriptor())
		}
		// On failure the transaction stays on the stack: the driver
		// still needs the abort message and the exception before it
		// rolls everything back.
	}
	return success
}

func dexCacheObject(klass *mirror.Class) *mirror.Object {
	dc := klass.DexCache()
	if dc == nil {
		return nil
	}
	return &dc.Object
}

// IsActiveTransaction reports whether records and constraint checks
// apply right now. The cached flag is cross-checked against the stack.
func (l *AotClassLinker) IsActiveTransaction() bool {
	expected := len(l.transactions) > 0 && !l.front().IsRollingBack()
	if l.active != expected {
		fatalf("transaction flag out of sync: flag %v, depth %d", l.active, len(l.transactions))
	}
	return l.active
}

// IsActiveStrictTransactionMode reports whether the innermost active
// transaction applies the cross-class strict constraints.
func (l *AotClassLinker) IsActiveStrictTransactionMode() bool {
	return l.IsActiveTransaction() && l.Transaction().IsStrict()
}

// Transaction returns the innermost transaction; fatal when no
// transaction was entered.
func (l *AotClassLinker) Transaction() *tx.Transaction {
	if len(l.transactions) == 0 {
		fatalf("no transaction on the stack")
	}
	return l.front()
}

func (l *AotClassLinker) front() *tx.Transaction {
	if len(l.transactions) == 0 {
		return nil
	}
	return l.transactions[len(l.transactions)-1]
}

// EnterTransactionMode pushes a transaction. The top-level transaction
// owns a fresh arena from the pool; nested ones borrow the outermost
// arena stack and must match the enclosing strictness.
func (l *AotClassLinker) EnterTransactionMode(self *thr.Thread, strict bool, root *mirror.Class) {
	env := tx.Env{
		Heap:                l.heap,
		Interner:            l.intern,
		CanReferenceInImage: l.CanReferenceInBootImageExtensionOrAppImage,
	}
	var txn *tx.Transaction
	if len(l.transactions) == 0 {
		// Make initialized classes visibly initialized now. If that
		// happened during the transaction and the transaction was then
		// rolled back, the status update would be undone while the
		// linker's queue kept believing it took place, and the classes
		// would never become visibly initialized.
		l.MakeInitializedClassesVisiblyInitialized(self)
		txn = tx.NewTransaction(strict, root, nil, l.pool, env)
	} else {
		front := l.front()
		if front.IsStrict() != strict {
			fatalf("nesting a strict=%v transaction inside strict=%v", strict, front.IsStrict())
		}
		txn = tx.NewTransaction(strict, root, front.ArenaStack(), nil, env)
	}
	l.transactions = append(l.transactions, txn)
	l.active = true
}

// ExitTransactionMode pops the innermost transaction, keeping its
// changes.
func (l *AotClassLinker) ExitTransactionMode() {
	if !l.IsActiveTransaction() {
		fatalf("exiting transaction mode with no active transaction")
	}
	txn := l.front()
	l.transactions = l.transactions[:len(l.transactions)-1]
	txn.Release()
	if len(l.transactions) == 0 {
		l.active = false
	}
}

// RollbackAndExitTransactionMode undoes the innermost transaction's
// changes and pops it. Rollback and exit are always done together.
func (l *AotClassLinker) RollbackAndExitTransactionMode() {
	if !l.IsActiveTransaction() {
		fatalf("rolling back with no active transaction")
	}
	// Clear the flag first: the undo writes below must not be recorded
	// or constraint-checked.
	l.active = false
	txn := l.front()
	txn.Rollback()
	l.transactions = l.transactions[:len(l.transactions)-1]
	txn.Release()
	if len(l.transactions) > 0 {
		l.active = true
	}
}

// RollbackAllTransactions unwinds the whole stack. After an aborted
// strict initialization every nesting level is still on the stack;
// roll back and exit all of them.
func (l *AotClassLinker) RollbackAllTransactions() {
	for l.IsActiveTransaction() {
		l.RollbackAndExitTransactionMode()
	}
}

// TransactionWriteConstraint checks a field write target; on refusal
// the transaction is aborted and the abort error thrown.
func (l *AotClassLinker) TransactionWriteConstraint(self *thr.Thread, obj *mirror.Object) bool {
	if !l.Transaction().WriteConstraint(obj) {
		return false
	}
	extra := ""
	if l.heap.ObjectIsInBootImageSpace(obj) {
		extra = "boot image "
	}
	l.AbortTransaction(self, "Can't set fields of %s%s", extra, obj.PrettyTypeOf())
	return true
}

// TransactionWriteValueConstraint checks a reference value being
// stored; on refusal the transaction is aborted.
func (l *AotClassLinker) TransactionWriteValueConstraint(self *thr.Thread, value *mirror.Object) bool {
	if !l.Transaction().WriteValueConstraint(value) {
		return false
	}
	description := "instance of"
	klass := value.Class()
	if value.IsClass() {
		description = "class"
		klass = value.AsClass()
	}
	l.AbortTransaction(self, "Can't store reference to %s %s", description, klass.PrettyDescriptor())
	return true
}

// TransactionReadConstraint checks a static field read of a class; on
// refusal the transaction is aborted. Only class objects carry the
// read constraint.
func (l *AotClassLinker) TransactionReadConstraint(self *thr.Thread, obj *mirror.Object) bool {
	if !obj.IsClass() {
		fatalf("read constraint on non-class object %s", obj.PrettyTypeOf())
	}
	if !l.Transaction().ReadConstraint(obj) {
		return false
	}
	l.AbortTransaction(self,
		"Can't read static fields of %s since it does not belong to clinit's class.",
		obj.PrettyTypeOf())
	return true
}

// TransactionAllocationConstraint checks an allocation; on refusal the
// transaction is aborted.
func (l *AotClassLinker) TransactionAllocationConstraint(self *thr.Thread, klass *mirror.Class) bool {
	if !l.Transaction().AllocationConstraint(klass) {
		return false
	}
	l.AbortTransaction(self, "Allocating finalizable object in transaction: %s", klass.PrettyDescriptor())
	return true
}

func (l *AotClassLinker) assertActive() {
	if !l.IsActiveTransaction() {
		fatalf("transaction record with no active transaction")
	}
}

// Record forwarders to the innermost transaction. Each is fatal when
// no transaction is active.

func (l *AotClassLinker) RecordWriteFieldBoolean(obj *mirror.Object, off mirror.FieldOffset, value uint8, isVolatile bool) {
	l.assertActive()
	l.Transaction().RecordWriteFieldBoolean(obj, off, value, isVolatile)
}

func (l *AotClassLinker) RecordWriteFieldByte(obj *mirror.Object, off mirror.FieldOffset, value int8, isVolatile bool) {
	l.assertActive()
	l.Transaction().RecordWriteFieldByte(obj, off, value, isVolatile)
}

func (l *AotClassLinker) RecordWriteFieldChar(obj *mirror.Object, off mirror.FieldOffset, value uint16, isVolatile bool) {
	l.assertActive()
	l.Transaction().RecordWriteFieldChar(obj, off, value, isVolatile)
}

func (l *AotClassLinker) RecordWriteFieldShort(obj *mirror.Object, off mirror.FieldOffset, value int16, isVolatile bool) {
	l.assertActive()
	l.Transaction().RecordWriteFieldShort(obj, off, value, isVolatile)
}

func (l *AotClassLinker) RecordWriteField32(obj *mirror.Object, off mirror.FieldOffset, value uint32, isVolatile bool) {
	l.assertActive()
	l.Transaction().RecordWriteField32(obj, off, value, isVolatile)
}

func (l *AotClassLinker) RecordWriteField64(obj *mirror.Object, off mirror.FieldOffset, value uint64, isVolatile bool) {
	l.assertActive()
	l.Transaction().RecordWriteField64(obj, off, value, isVolatile)
}

func (l *AotClassLinker) RecordWriteFieldReference(obj *mirror.Object, off mirror.FieldOffset, value *mirror.Object, isVolatile bool) {
	l.assertActive()
	l.Transaction().RecordWriteFieldReference(obj, off, value, isVolatile)
}

func (l *AotClassLinker) RecordWriteArray(array *mirror.Array, index int, value uint64) {
	l.assertActive()
	l.Transaction().RecordWriteArray(array, index, value)
}

func (l *AotClassLinker) RecordNewObject(obj *mirror.Object) {
	l.assertActive()
	l.Transaction().RecordNewObject(obj)
}

func (l *AotClassLinker) RecordNewArray(arr *mirror.Array) {
	l.assertActive()
	l.Transaction().RecordNewArray(arr)
}

func (l *AotClassLinker) RecordStrongStringInsertion(s *mirror.String) {
	l.assertActive()
	l.Transaction().RecordStrongStringInsertion(s)
}

func (l *AotClassLinker) RecordWeakStringInsertion(s *mirror.String) {
	l.assertActive()
	l.Transaction().RecordWeakStringInsertion(s)
}

func (l *AotClassLinker) RecordStrongStringRemoval(s *mirror.String) {
	l.assertActive()
	l.Transaction().RecordStrongStringRemoval(s)
}

func (l *AotClassLinker) RecordWeakStringRemoval(s *mirror.String) {
	l.assertActive()
	l.Transaction().RecordWeakStringRemoval(s)
}

func (l *AotClassLinker) RecordResolveString(dexCache *mirror.DexCache, idx dex.StringIndex) {
	l.assertActive()
	l.Transaction().RecordResolveString(dexCache, idx)
}

func (l *AotClassLinker) RecordResolveMethodType(dexCache *mirror.DexCache, idx dex.ProtoIndex) {
	l.assertActive()
	l.Transaction().RecordResolveMethodType(dexCache, idx)
}

// AbortTransaction marks the innermost transaction aborted with a
// formatted message and throws the abort error on the thread. The
// transaction is marked before throwing so that nested levels see the
// aborted state while the throwable is constructed.
func (l *AotClassLinker) AbortTransaction(self *thr.Thread, format string, args ...any) {
	if !l.IsActiveTransaction() {
		fatalf("aborting with no active transaction")
	}
	message := fmt.Sprintf(format, args...)
	l.Transaction().Abort(message)
	l.throwAbortError(self, message)
}

// ThrowTransactionAbortError rethrows the abort error using the
// message stored by an earlier abort.
func (l *AotClassLinker) ThrowTransactionAbortError(self *thr.Thread) {
	if !l.IsActiveTransaction() {
		fatalf("rethrowing abort error with no active transaction")
	}
	if !l.Transaction().IsAborted() {
		fatalf("rethrowing abort error on a transaction that was not aborted")
	}
	l.throwAbortError(self, l.Transaction().AbortMessage())
}

func (l *AotClassLinker) throwAbortError(self *thr.Thread, message string) {
	klass := l.abortErrorClass
	if klass == nil {
		fatalf("abort error class not resolved; PrepareForAborts must run before entering transaction mode")
	}
	e := l.heap.AllocThrowable(klass)
	e.SetDetailMessage(l.heap.AllocStringFromGo(l.stringClass, message))
	// Wrap a pending exception as the cause, like rethrowing an abort
	// over the failure that triggered it.
	if cause := self.Exception(); cause != nil {
		e.SetCause(cause)
		self.ClearException()
	}
	self.SetException(&e.Object)
}

// IsTransactionAborted reports whether the innermost transaction was
// aborted; false when no transaction is active.
func (l *AotClassLinker) IsTransactionAborted() bool {
	if !l.IsActiveTransaction() {
		return false
	}
	return l.Transaction().IsAborted()
}

// VisitTransactionRoots visits the roots of every stacked transaction.
func (l *AotClassLinker) VisitTransactionRoots(visitor gc.RootVisitor) {
	for _, txn := range l.transactions {
		txn.VisitRoots(visitor)
	}
}
