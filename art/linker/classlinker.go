// Package linker loads classes, resolves dex-cache entries and drives
// class initialization. For ahead-of-time compilation the AotClassLinker
// wraps initialization in nested transactions so that everything a
// static initializer did can be rolled back when a constraint is
// violated.
package linker

import (
	"fmt"

	"github.com/TheXPerienceProject/android-art/art/dex"
	"github.com/TheXPerienceProject/android-art/art/gc"
	"github.com/TheXPerienceProject/android-art/art/intern"
	"github.com/TheXPerienceProject/android-art/art/mirror"
	"github.com/TheXPerienceProject/android-art/art/thr"
	"github.com/TheXPerienceProject/android-art/art/tx"
)

// ClassLinker owns the class table and the dex caches and implements
// the plain (non-transactional) initialization machinery. Superclass
// initialization and status writes route through the AOT linker when
// one wraps this base, so nested strict transactions open exactly where
// the recursion does.
type ClassLinker struct {
	heap   *gc.Heap
	intern *intern.Table

	classes    map[string]*mirror.Class
	dexCaches  map[*dex.File]*mirror.DexCache
	primitives map[dex.Primitive]*mirror.Class

	objectClass     *mirror.Class
	classClass      *mirror.Class
	stringClass     *mirror.Class
	throwableClass  *mirror.Class
	dexCacheClass   *mirror.Class
	methodTypeClass *mirror.Class

	// Classes that reached Initialized but have not been promoted to
	// VisiblyInitialized yet.
	pendingVisiblyInitialized []*mirror.Class

	// Set when this linker is the base of an AotClassLinker.
	aot *AotClassLinker
}

// NewClassLinker creates a linker with the core class hierarchy
// registered: Object, Class, String, Throwable, the dex-cache and
// method-type classes, the transaction abort error class and the
// primitive classes. Core classes are bootstrap-loaded and born
// visibly initialized.
func NewClassLinker(heap *gc.Heap, table *intern.Table) *ClassLinker {
	l := &ClassLinker{
		heap:       heap,
		intern:     table,
		classes:    make(map[string]*mirror.Class),
		dexCaches:  make(map[*dex.File]*mirror.DexCache),
		primitives: make(map[dex.Primitive]*mirror.Class),
	}
	l.bootstrapCoreClasses()
	return l
}

// Heap returns the heap this linker allocates from.
func (l *ClassLinker) Heap() *gc.Heap { return l.heap }

// InternTable returns the string intern table.
func (l *ClassLinker) InternTable() *intern.Table { return l.intern }

func (l *ClassLinker) bootstrapCoreClasses() {
	coreClass := func(descriptor string, super *mirror.Class, instanceFields []*mirror.Field) *mirror.Class {
		c := mirror.NewClass(descriptor, super, instanceFields, nil).MarkBootClassLoaded()
		c.SetStatusRaw(mirror.StatusVisiblyInitialized)
		l.classes[descriptor] = c
		return c
	}

	l.objectClass = coreClass("Ljava/lang/Object;", nil, nil)
	l.classClass = coreClass("Ljava/lang/Class;", l.objectClass, nil)
	l.stringClass = coreClass("Ljava/lang/String;", l.objectClass, nil)
	throwableFields := []*mirror.Field{
		mirror.NewField("detailMessage", dex.PrimNot),
		mirror.NewField("cause", dex.PrimNot),
	}
	l.throwableClass = coreClass("Ljava/lang/Throwable;", l.objectClass, throwableFields)
	l.dexCacheClass = coreClass("Ljava/lang/DexCache;", l.objectClass, nil)
	l.methodTypeClass = coreClass("Ljava/lang/invoke/MethodType;", l.objectClass, nil)

	// Field layout is declared per class, so the abort error class
	// redeclares the throwable fields it relies on.
	abortFields := []*mirror.Field{
		mirror.NewField("detailMessage", dex.PrimNot),
		mirror.NewField("cause", dex.PrimNot),
	}
	coreClass(TransactionAbortErrorDescriptor, l.throwableClass, abortFields)

	for _, p := range []dex.Primitive{
		dex.PrimBoolean, dex.PrimByte, dex.PrimChar, dex.PrimShort,
		dex.PrimInt, dex.PrimLong, dex.PrimFloat, dex.PrimDouble, dex.PrimVoid,
	} {
		c := mirror.NewPrimitiveClass(p)
		l.primitives[p] = c
		l.classes[c.Descriptor()] = c
	}

	for _, c := range l.classes {
		c.SetClass(l.classClass)
	}
}

// ObjectClass returns the root of the class hierarchy.
func (l *ClassLinker) ObjectClass() *mirror.Class { return l.objectClass }

// StringClass returns the class of interned and allocated strings.
func (l *ClassLinker) StringClass() *mirror.Class { return l.stringClass }

// ThrowableClass returns the base class of guest errors.
func (l *ClassLinker) ThrowableClass() *mirror.Class { return l.throwableClass }

// GetPrimitiveClass returns the class of a primitive type.
func (l *ClassLinker) GetPrimitiveClass(p dex.Primitive) *mirror.Class {
	c, ok := l.primitives[p]
	if !ok {
		fatalf("no class for primitive type %v", p)
	}
	return c
}

// RegisterClass adds a class to the class table. The class keeps the
// status its constructor assigned; classes defined by a dex file should
// have their dex cache registered first via RegisterDexFile.
func (l *ClassLinker) RegisterClass(klass *mirror.Class) error {
	d := klass.Descriptor()
	if _, ok := l.classes[d]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateClass, d)
	}
	if klass.Class() == nil {
		klass.SetClass(l.classClass)
	}
	if f := klass.DexFile(); f != nil && klass.DexCache() == nil {
		klass.SetDexCache(l.RegisterDexFile(f))
	}
	l.classes[d] = klass
	return nil
}

// RegisterDexFile returns the dex cache for a dex file, creating it on
// first registration.
func (l *ClassLinker) RegisterDexFile(file *dex.File) *mirror.DexCache {
	if dc, ok := l.dexCaches[file]; ok {
		return dc
	}
	dc := l.heap.AllocDexCache(l.dexCacheClass, file)
	l.dexCaches[file] = dc
	return dc
}

// FindDexCache returns the registered dex cache for a file, nil if the
// file was never registered.
func (l *ClassLinker) FindDexCache(file *dex.File) *mirror.DexCache {
	return l.dexCaches[file]
}

// LookupClass returns the registered class for a descriptor without
// creating anything, nil if absent.
func (l *ClassLinker) LookupClass(descriptor string) *mirror.Class {
	return l.classes[descriptor]
}

// FindClass resolves a descriptor to a class. Array classes are created
// on demand from their component class; creating a class is refused
// inside an active transaction.
func (l *ClassLinker) FindClass(self *thr.Thread, descriptor string) (*mirror.Class, error) {
	if c, ok := l.classes[descriptor]; ok {
		return c, nil
	}
	if len(descriptor) > 1 && descriptor[0] == '[' {
		component, err := l.FindClass(self, descriptor[1:])
		if err != nil {
			return nil, err
		}
		if !l.canAllocClass(self) {
			return nil, ErrorFromPending(self)
		}
		c := mirror.NewArrayClass(component)
		c.SetClass(l.classClass)
		l.classes[descriptor] = c
		return c, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrClassNotFound, descriptor)
}

func (l *ClassLinker) canAllocClass(self *thr.Thread) bool {
	if l.aot != nil {
		return l.aot.CanAllocClass(self)
	}
	return true
}

// setClassStatus writes a class status transition, recording the old
// status when a transaction is active so rollback restores it.
func (l *ClassLinker) setClassStatus(klass *mirror.Class, status mirror.ClassStatus) {
	if l.aot != nil && l.aot.IsActiveTransaction() {
		txn := l.aot.Transaction()
		if txn.ObjectNeedsTransactionRecords(&klass.Object) {
			txn.RecordWriteField32(&klass.Object, klass.StatusOffset(), uint32(klass.Status()), false)
		}
	}
	klass.SetStatusRaw(status)
}

// dispatchInitialize routes initialization through the AOT wrapper when
// one is present, so recursive superclass initialization gets the same
// transaction treatment as the outer call.
func (l *ClassLinker) dispatchInitialize(self *thr.Thread, klass *mirror.Class, canInitStatics, canInitParents bool) bool {
	if l.aot != nil {
		return l.aot.InitializeClass(self, klass, canInitStatics, canInitParents)
	}
	return l.InitializeClass(self, klass, canInitStatics, canInitParents)
}

// EnsureInitialized initializes a class unless it already is. Returns
// false with a pending exception on failure, except when the flags
// forbade the work that was needed.
func (l *ClassLinker) EnsureInitialized(self *thr.Thread, klass *mirror.Class, canInitStatics, canInitParents bool) bool {
	if klass.IsInitialized() {
		return true
	}
	return l.dispatchInitialize(self, klass, canInitStatics, canInitParents)
}

// InitializeClass runs the initialization state machine: mark the class
// Initializing, initialize the superclass, run the static initializer,
// then mark Initialized or Erroneous. Status writes are recorded when a
// transaction is active, so an abort rolls the class back to Resolved.
func (l *ClassLinker) InitializeClass(self *thr.Thread, klass *mirror.Class, canInitStatics, canInitParents bool) bool {
	if klass.IsInitialized() {
		return true
	}
	if klass.IsErroneous() {
		l.throwEarlierClassFailure(self, klass)
		return false
	}
	if klass.Status() < mirror.StatusResolved {
		fatalf("initializing unresolved class %s (status %v)", klass.Descriptor(), klass.Status())
	}
	// Reentrant initialization from the same thread: the class is being
	// initialized further up the stack.
	if klass.Status() == mirror.StatusInitializing {
		return true
	}

	// Quiet early outs when the caller forbids the work required.
	if !canInitStatics && klass.Clinit() != nil {
		return false
	}
	if super := klass.Super(); super != nil && !super.IsInitialized() && !canInitParents {
		return false
	}

	l.setClassStatus(klass, mirror.StatusInitializing)

	if super := klass.Super(); super != nil && !super.IsInitialized() {
		if !l.dispatchInitialize(self, super, canInitStatics, true) {
			l.setClassStatus(klass, mirror.StatusErroneous)
			return false
		}
	}

	if clinit := klass.Clinit(); clinit != nil {
		if err := clinit(); err != nil {
			if !self.IsExceptionPending() {
				self.SetException(l.newThrowable(err.Error()))
			}
			l.setClassStatus(klass, mirror.StatusErroneous)
			return false
		}
	}

	l.setClassStatus(klass, mirror.StatusInitialized)
	l.pendingVisiblyInitialized = append(l.pendingVisiblyInitialized, klass)
	return true
}

func (l *ClassLinker) throwEarlierClassFailure(self *thr.Thread, klass *mirror.Class) {
	self.SetException(l.newThrowable(
		fmt.Sprintf("rejecting re-initialization of erroneous class %s", klass.PrettyDescriptor())))
}

// newThrowable builds a plain guest throwable carrying a message.
func (l *ClassLinker) newThrowable(message string) *mirror.Object {
	e := l.heap.AllocThrowable(l.throwableClass)
	e.SetDetailMessage(l.heap.AllocStringFromGo(l.stringClass, message))
	return &e.Object
}

// MakeInitializedClassesVisiblyInitialized promotes every class that
// completed initialization to VisiblyInitialized. The promotion is not
// recorded: it must never run for classes initialized under a still
// active transaction, or an abort would roll the status back while the
// linker's queue kept believing the promotion happened.
func (l *ClassLinker) MakeInitializedClassesVisiblyInitialized(self *thr.Thread) {
	var txn *tx.Transaction
	if l.aot != nil && l.aot.IsActiveTransaction() {
		txn = l.aot.Transaction()
	}
	scope := tx.AssertNoNewRecords(txn, "MakeInitializedClassesVisiblyInitialized")
	defer scope.Remove()

	for _, klass := range l.pendingVisiblyInitialized {
		// A rolled-back class is no longer Initialized; leave it alone.
		if klass.Status() == mirror.StatusInitialized {
			klass.SetStatusRaw(mirror.StatusVisiblyInitialized)
		}
	}
	l.pendingVisiblyInitialized = l.pendingVisiblyInitialized[:0]
}

// isThrowableClass reports whether klass descends from Throwable.
func (l *ClassLinker) isThrowableClass(klass *mirror.Class) bool {
	for c := klass; c != nil; c = c.Super() {
		if c == l.throwableClass {
			return true
		}
	}
	return false
}

// ResolveString returns the interned string for a dex string index,
// filling the dex-cache slot on first resolution. The slot fill is
// recorded when a transaction is active so rollback clears it again.
func (l *ClassLinker) ResolveString(dexCache *mirror.DexCache, idx dex.StringIndex) (*mirror.String, error) {
	if s := dexCache.ResolvedString(idx); s != nil {
		return s, nil
	}
	units, err := dexCache.DexFile().StringAt(idx)
	if err != nil {
		return nil, fmt.Errorf("linker: resolving string %d in %s: %w", idx, dexCache.DexFile().Location(), err)
	}
	s := l.intern.InternStrong(l.heap.AllocString(l.stringClass, units))
	l.recordResolveString(dexCache, idx)
	dexCache.SetResolvedString(idx, s)
	return s, nil
}

// ResolveMethodType returns the method type for a dex proto index,
// filling the dex-cache slot on first resolution.
func (l *ClassLinker) ResolveMethodType(dexCache *mirror.DexCache, idx dex.ProtoIndex) (*mirror.MethodType, error) {
	if mt := dexCache.ResolvedMethodType(idx); mt != nil {
		return mt, nil
	}
	descriptor, err := dexCache.DexFile().ProtoAt(idx)
	if err != nil {
		return nil, fmt.Errorf("linker: resolving proto %d in %s: %w", idx, dexCache.DexFile().Location(), err)
	}
	mt := l.heap.AllocMethodType(l.methodTypeClass, descriptor)
	l.recordResolveMethodType(dexCache, idx)
	dexCache.SetResolvedMethodType(idx, mt)
	return mt, nil
}

func (l *ClassLinker) recordResolveString(dexCache *mirror.DexCache, idx dex.StringIndex) {
	if l.aot != nil && l.aot.IsActiveTransaction() {
		l.aot.Transaction().RecordResolveString(dexCache, idx)
	}
}

func (l *ClassLinker) recordResolveMethodType(dexCache *mirror.DexCache, idx dex.ProtoIndex) {
	if l.aot != nil && l.aot.IsActiveTransaction() {
		l.aot.Transaction().RecordResolveMethodType(dexCache, idx)
	}
}

// VisitRoots offers every class-table entry, dex cache and well-known
// class slot to the visitor, updating the slots a moving collector
// relocated. Map keys (descriptors, dex files) are stable across moves.
func (l *ClassLinker) VisitRoots(visitor gc.RootVisitor) {
	visitClass := func(slot **mirror.Class) {
		obj := &(*slot).Object
		visitor.VisitRoot(&obj)
		if obj != &(*slot).Object {
			*slot = obj.AsClass()
		}
	}

	for d, c := range l.classes {
		visitClass(&c)
		l.classes[d] = c
	}
	for f, dc := range l.dexCaches {
		obj := &dc.Object
		visitor.VisitRoot(&obj)
		if obj != &dc.Object {
			l.dexCaches[f] = obj.AsDexCache()
		}
	}
	for i := range l.pendingVisiblyInitialized {
		visitClass(&l.pendingVisiblyInitialized[i])
	}
	for p, c := range l.primitives {
		visitClass(&c)
		l.primitives[p] = c
	}
	visitClass(&l.objectClass)
	visitClass(&l.classClass)
	visitClass(&l.stringClass)
	visitClass(&l.throwableClass)
	visitClass(&l.dexCacheClass)
	visitClass(&l.methodTypeClass)
}
