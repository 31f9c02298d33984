package linker

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TheXPerienceProject/android-art/art/arena"
	"github.com/TheXPerienceProject/android-art/art/dex"
	"github.com/TheXPerienceProject/android-art/art/gc"
	"github.com/TheXPerienceProject/android-art/art/intern"
	"github.com/TheXPerienceProject/android-art/art/mirror"
	"github.com/TheXPerienceProject/android-art/art/thr"
)

func TestEnterAndExitTransactionMode(t *testing.T) {
	l, self := newTestLinker(t)
	require.False(t, l.IsActiveTransaction())
	require.False(t, l.IsTransactionAborted())

	l.EnterTransactionMode(self, false, nil)
	require.True(t, l.IsActiveTransaction())
	require.False(t, l.IsActiveStrictTransactionMode())
	require.False(t, l.Transaction().IsStrict())

	l.ExitTransactionMode()
	require.False(t, l.IsActiveTransaction())

	a := defineClass(t, l, "LA;", nil)
	l.EnterTransactionMode(self, true, a)
	require.True(t, l.IsActiveStrictTransactionMode())
	require.Same(t, a, l.Transaction().Root())
	l.ExitTransactionMode()
	require.False(t, l.IsActiveTransaction())
}

func TestNestedTransactionsBorrowTheOuterArena(t *testing.T) {
	l, self := newTestLinker(t)
	l.EnterTransactionMode(self, false, nil)
	outer := l.Transaction()

	l.EnterTransactionMode(self, false, nil)
	inner := l.Transaction()
	require.NotSame(t, outer, inner)
	require.Same(t, outer.ArenaStack(), inner.ArenaStack())

	l.ExitTransactionMode()
	require.True(t, l.IsActiveTransaction())
	require.Same(t, outer, l.Transaction())
	l.ExitTransactionMode()
	require.False(t, l.IsActiveTransaction())
}

func TestNestedStrictnessMismatchPanics(t *testing.T) {
	l, self := newTestLinker(t)
	a := defineClass(t, l, "LA;", nil)
	l.EnterTransactionMode(self, true, a)
	defer l.ExitTransactionMode()

	require.Panics(t, func() { l.EnterTransactionMode(self, false, nil) })
}

func TestRollbackAndExitUndoesInnerOnly(t *testing.T) {
	l, self := newTestLinker(t)
	a := defineClass(t, l, "LA;", nil)
	b := defineClass(t, l, "LB;", nil)
	a.Object.SetField32(staticOffset(a), 1)
	b.Object.SetField32(staticOffset(b), 2)

	l.EnterTransactionMode(self, false, nil)
	l.RecordWriteField32(&a.Object, staticOffset(a), a.Object.GetField32(staticOffset(a)), false)
	a.Object.SetField32(staticOffset(a), 10)

	l.EnterTransactionMode(self, false, nil)
	l.RecordWriteField32(&b.Object, staticOffset(b), b.Object.GetField32(staticOffset(b)), false)
	b.Object.SetField32(staticOffset(b), 20)

	l.RollbackAndExitTransactionMode()
	require.True(t, l.IsActiveTransaction())
	require.Equal(t, uint32(2), b.Object.GetField32(staticOffset(b)))
	require.Equal(t, uint32(10), a.Object.GetField32(staticOffset(a)))

	l.RollbackAndExitTransactionMode()
	require.False(t, l.IsActiveTransaction())
	require.Equal(t, uint32(1), a.Object.GetField32(staticOffset(a)))

	// Both levels shared one arena, released exactly once.
	require.Equal(t, 1, l.pool.FreeChunks())
}

func TestRollbackAllTransactions(t *testing.T) {
	l, self := newTestLinker(t)
	a := defineClass(t, l, "LA;", nil)

	l.EnterTransactionMode(self, false, nil)
	l.EnterTransactionMode(self, false, nil)
	l.RecordWriteField32(&a.Object, staticOffset(a), a.Object.GetField32(staticOffset(a)), false)
	a.Object.SetField32(staticOffset(a), 5)

	l.RollbackAllTransactions()
	require.False(t, l.IsActiveTransaction())
	require.Zero(t, a.Object.GetField32(staticOffset(a)))

	// Safe with an empty stack.
	l.RollbackAllTransactions()
}

func TestAbortTransactionThrowsAndRethrows(t *testing.T) {
	l, self := newTestLinker(t)
	l.EnterTransactionMode(self, false, nil)

	l.AbortTransaction(self, "Can't resolve type within transaction.")
	require.True(t, l.IsTransactionAborted())
	require.True(t, self.IsExceptionPending())
	require.Equal(t, "Can't resolve type within transaction.", pendingAbortMessage(t, self))

	// A rethrow uses the stored message.
	l.ThrowTransactionAbortError(self)
	require.Equal(t, "Can't resolve type within transaction.", pendingAbortMessage(t, self))

	l.ExitTransactionMode()
	require.False(t, l.IsTransactionAborted())
}

func TestAbortErrorWrapsPendingExceptionAsCause(t *testing.T) {
	l, self := newTestLinker(t)
	l.EnterTransactionMode(self, false, nil)

	inner := l.newThrowable("original failure")
	self.SetException(inner)
	l.AbortTransaction(self, "Can't resolve type within transaction.")

	e := self.Exception()
	require.Same(t, l.LookupClass(TransactionAbortErrorDescriptor), e.Class())
	require.True(t, e.IsThrowable())
	require.Same(t, inner, e.AsThrowable().Cause())
	require.Equal(t, "Can't resolve type within transaction.", e.AsThrowable().DetailMessage().ToGoString())
	self.ClearException()

	l.RollbackAndExitTransactionMode()
}

func TestIsTransactionAbortedWithoutTransaction(t *testing.T) {
	l, _ := newTestLinker(t)
	require.False(t, l.IsTransactionAborted())
}

func TestAbortWithoutPrepareForAbortsPanics(t *testing.T) {
	l := NewAotClassLinker(gc.NewHeap(), intern.NewTable(), arena.NewPool())
	self := thr.New("driver")
	l.EnterTransactionMode(self, false, nil)
	defer l.RollbackAndExitTransactionMode()

	require.Panics(t, func() { l.AbortTransaction(self, "too early") })
}

func TestWriteConstraintRejectsBootImageObjects(t *testing.T) {
	l, self := newTestLinker(t)
	foo := defineClass(t, l, "LFoo;", nil)
	obj := l.Heap().AllocObject(foo)
	l.Heap().AddBootImageSpace(obj)

	l.EnterTransactionMode(self, false, nil)
	defer l.RollbackAndExitTransactionMode()

	require.True(t, l.TransactionWriteConstraint(self, obj))
	require.True(t, l.IsTransactionAborted())
	require.Equal(t, "Can't set fields of boot image Foo", pendingAbortMessage(t, self))
}

func TestStrictWriteConstraintProtectsOtherClassStatics(t *testing.T) {
	l, self := newTestLinker(t)
	a := defineClass(t, l, "LA;", nil)
	b := defineClass(t, l, "LB;", nil)

	l.EnterTransactionMode(self, true, a)
	defer l.RollbackAndExitTransactionMode()

	require.False(t, l.TransactionWriteConstraint(self, &a.Object))
	require.False(t, self.IsExceptionPending())

	require.True(t, l.TransactionWriteConstraint(self, &b.Object))
	require.Equal(t, "Can't set fields of java.lang.Class<B>", pendingAbortMessage(t, self))
}

func TestStrictReadConstraint(t *testing.T) {
	l, self := newTestLinker(t)
	a := defineClass(t, l, "LA;", nil)
	b := defineClass(t, l, "LB;", nil)
	c := defineClass(t, l, "LC;", nil)
	require.True(t, l.EnsureInitialized(self, c, true, true))

	l.EnterTransactionMode(self, true, a)
	defer l.RollbackAndExitTransactionMode()

	// The initializing class reads its own statics.
	require.False(t, l.TransactionReadConstraint(self, &a.Object))
	// An independently initialized class is fine too.
	require.False(t, l.TransactionReadConstraint(self, &c.Object))

	require.True(t, l.TransactionReadConstraint(self, &b.Object))
	require.Equal(t,
		"Can't read static fields of java.lang.Class<B> since it does not belong to clinit's class.",
		pendingAbortMessage(t, self))
}

func TestWriteValueConstraintFollowsAppImagePartition(t *testing.T) {
	l, self := newTestLinker(t)
	l.Heap().AddBootImageSpace()
	fileIn := dex.NewBuilder("in.dex").Build()
	fileOut := dex.NewBuilder("out.dex").Build()
	l.SetAppImageDexFiles([]*dex.File{fileIn})

	in := mirror.NewClass("LIn;", l.ObjectClass(), nil, nil)
	in.SetDexFile(fileIn)
	require.NoError(t, l.RegisterClass(in))
	out := mirror.NewClass("LOut;", l.ObjectClass(), nil, nil)
	out.SetDexFile(fileOut)
	require.NoError(t, l.RegisterClass(out))

	l.EnterTransactionMode(self, false, nil)
	defer l.RollbackAndExitTransactionMode()

	require.False(t, l.TransactionWriteValueConstraint(self, l.Heap().AllocObject(in)))
	require.False(t, self.IsExceptionPending())

	require.True(t, l.TransactionWriteValueConstraint(self, l.Heap().AllocObject(out)))
	require.Equal(t, "Can't store reference to instance of Out", pendingAbortMessage(t, self))

	require.True(t, l.TransactionWriteValueConstraint(self, &out.Object))
	require.Equal(t, "Can't store reference to class Out", pendingAbortMessage(t, self))
}

func TestAllocationConstraintRejectsFinalizableClasses(t *testing.T) {
	l, self := newTestLinker(t)
	fin := mirror.NewClass("LFin;", l.ObjectClass(), nil, nil).MarkFinalizable()
	require.NoError(t, l.RegisterClass(fin))
	plain := defineClass(t, l, "LPlain;", nil)

	l.EnterTransactionMode(self, false, nil)
	defer l.RollbackAndExitTransactionMode()

	require.False(t, l.TransactionAllocationConstraint(self, plain))
	require.True(t, l.TransactionAllocationConstraint(self, fin))
	require.Equal(t, "Allocating finalizable object in transaction: Fin", pendingAbortMessage(t, self))
}

func TestCanAllocClassAbortsDuringTransaction(t *testing.T) {
	l, self := newTestLinker(t)
	defineClass(t, l, "LFoo;", nil)

	require.True(t, l.CanAllocClass(self))

	l.EnterTransactionMode(self, false, nil)
	require.False(t, l.CanAllocClass(self))
	require.Equal(t, "Can't resolve type within transaction.", pendingAbortMessage(t, self))

	// Creating an array class needs a new class object, so resolution
	// fails the same way under a transaction.
	_, err := l.FindClass(self, "[LFoo;")
	var abort *AbortError
	require.ErrorAs(t, err, &abort)
	require.Equal(t, "Can't resolve type within transaction.", abort.Msg)
	self.ClearException()
	l.RollbackAndExitTransactionMode()

	arr, err := l.FindClass(self, "[LFoo;")
	require.NoError(t, err)
	require.True(t, arr.IsArrayClass())
}

func TestStrictInitializationCommitsOwnStatics(t *testing.T) {
	l, self := newTestLinker(t)
	a := defineClass(t, l, "LA;", nil)
	a.SetClinit(func() error {
		off := staticOffset(a)
		l.RecordWriteField32(&a.Object, off, a.Object.GetField32(off), false)
		a.Object.SetField32(off, 42)
		return nil
	})

	l.EnterTransactionMode(self, true, a)
	require.True(t, l.InitializeClass(self, a, true, true))

	// The wrapper exited the class's own transaction; the outer one is
	// still running.
	require.True(t, l.IsActiveTransaction())
	l.ExitTransactionMode()
	require.False(t, l.IsActiveTransaction())

	require.True(t, a.IsInitialized())
	require.Equal(t, uint32(42), a.Object.GetField32(staticOffset(a)))

	l.MakeInitializedClassesVisiblyInitialized(self)
	require.True(t, a.IsVisiblyInitialized())
}

func TestStrictInitializationAbortsWritingAnotherClass(t *testing.T) {
	l, self := newTestLinker(t)
	a := defineClass(t, l, "LA;", nil)
	b := defineClass(t, l, "LB;", nil)
	b.Object.SetField32(staticOffset(b), 7)
	a.SetClinit(func() error {
		if l.TransactionWriteConstraint(self, &b.Object) {
			return ErrorFromPending(self)
		}
		off := staticOffset(b)
		l.RecordWriteField32(&b.Object, off, b.Object.GetField32(off), false)
		b.Object.SetField32(off, 99)
		return nil
	})

	l.EnterTransactionMode(self, true, a)
	require.False(t, l.InitializeClass(self, a, true, true))

	// Failure leaves the class's transaction on the stack with the
	// abort error pending, for the driver to inspect and unwind.
	require.True(t, l.IsTransactionAborted())
	var abort *AbortError
	require.ErrorAs(t, ErrorFromPending(self), &abort)
	require.Equal(t, "Can't set fields of java.lang.Class<B>", abort.Msg)

	l.RollbackAllTransactions()
	self.ClearException()

	require.False(t, l.IsActiveTransaction())
	require.Equal(t, mirror.StatusResolved, a.Status())
	require.Equal(t, uint32(7), b.Object.GetField32(staticOffset(b)))
}

func TestStrictInitializationAbortsOnInitializingSuper(t *testing.T) {
	l, self := newTestLinker(t)
	super := defineClass(t, l, "LSuper;", nil)
	a := defineClass(t, l, "LA;", super)
	super.SetStatusRaw(mirror.StatusInitializing)

	l.EnterTransactionMode(self, true, a)
	require.False(t, l.InitializeClass(self, a, true, true))
	require.Equal(t,
		"Can't resolve java.lang.Class<A> because it's superclass is not initialized.",
		pendingAbortMessage(t, self))
	require.Equal(t, mirror.StatusResolved, a.Status())
	l.RollbackAllTransactions()
}

func TestStrictInitializationAbortsOnUninitializedBootClass(t *testing.T) {
	l, self := newTestLinker(t)
	a := defineClass(t, l, "LA;", nil)
	boot := mirror.NewClass("LBoot;", l.ObjectClass(), nil, nil).MarkBootClassLoaded()
	require.NoError(t, l.RegisterClass(boot))

	l.EnterTransactionMode(self, true, a)
	require.False(t, l.InitializeClass(self, boot, true, true))
	require.Equal(t,
		"Can't resolve java.lang.Class<Boot> because it is an uninitialized boot class.",
		pendingAbortMessage(t, self))
	l.RollbackAllTransactions()
}

func TestBootImageDexFileClassRefusesInitialization(t *testing.T) {
	l, self := newTestLinker(t)
	file := dex.NewBuilder("boot.dex").MarkBootImage().Build()
	d := mirror.NewClass("LD;", l.ObjectClass(), nil, nil)
	d.SetDexFile(file)
	require.NoError(t, l.RegisterClass(d))
	l.Heap().AddBootImageSpace(&d.DexCache().Object)

	l.EnterTransactionMode(self, false, nil)
	require.False(t, l.InitializeClass(self, d, true, true))
	require.Equal(t,
		"Can't initialize java.lang.Class<D> because it is defined in a boot image dex file.",
		pendingAbortMessage(t, self))
	l.RollbackAndExitTransactionMode()
	require.Equal(t, mirror.StatusResolved, d.Status())

	// Outside a transaction only throwable classes may take this path.
	require.Panics(t, func() { l.InitializeClass(self, d, true, true) })

	e := mirror.NewClass("LMyError;", l.ThrowableClass(), nil, nil)
	e.SetDexFile(file)
	require.NoError(t, l.RegisterClass(e))
	require.True(t, l.InitializeClass(self, e, true, true))
	require.True(t, e.IsInitialized())
}

func TestClinitFailureRollsBackStatusAndStatics(t *testing.T) {
	l, self := newTestLinker(t)
	a := defineClass(t, l, "LA;", nil)
	a.SetClinit(func() error {
		off := staticOffset(a)
		l.RecordWriteField32(&a.Object, off, a.Object.GetField32(off), false)
		a.Object.SetField32(off, 13)
		return errors.New("boom")
	})

	l.EnterTransactionMode(self, false, nil)
	require.False(t, l.InitializeClass(self, a, true, true))
	require.Equal(t, mirror.StatusErroneous, a.Status())
	require.Equal(t, uint32(13), a.Object.GetField32(staticOffset(a)))

	var initErr *InitError
	require.ErrorAs(t, ErrorFromPending(self), &initErr)
	require.Equal(t, "boom", initErr.Msg)
	self.ClearException()

	l.RollbackAndExitTransactionMode()
	require.Equal(t, mirror.StatusResolved, a.Status())
	require.Zero(t, a.Object.GetField32(staticOffset(a)))
	require.Equal(t, 1, l.pool.FreeChunks())
}

func TestResolveStringRollsBack(t *testing.T) {
	l, self := newTestLinker(t)
	b := dex.NewBuilder("app.dex")
	idx := b.AddString("foo")
	dc := l.RegisterDexFile(b.Build())

	l.EnterTransactionMode(self, false, nil)
	s, err := l.ResolveString(dc, idx)
	require.NoError(t, err)
	require.Equal(t, "foo", s.ToGoString())
	require.Same(t, s, dc.ResolvedString(idx))
	require.Equal(t, 1, l.InternTable().StrongCount())

	l.RollbackAndExitTransactionMode()
	require.Nil(t, dc.ResolvedString(idx))
	require.Zero(t, l.InternTable().StrongCount())

	// Resolution works again outside the transaction.
	again, err := l.ResolveString(dc, idx)
	require.NoError(t, err)
	require.Equal(t, "foo", again.ToGoString())
	require.Same(t, again, dc.ResolvedString(idx))
}

func TestResolveMethodTypeRollsBack(t *testing.T) {
	l, self := newTestLinker(t)
	b := dex.NewBuilder("app.dex")
	idx := b.AddProto("(II)I")
	dc := l.RegisterDexFile(b.Build())

	l.EnterTransactionMode(self, false, nil)
	mt, err := l.ResolveMethodType(dc, idx)
	require.NoError(t, err)
	require.Same(t, mt, dc.ResolvedMethodType(idx))

	l.RollbackAndExitTransactionMode()
	require.Nil(t, dc.ResolvedMethodType(idx))
}

func TestVisiblyInitializedPromotionSkipsRolledBackClasses(t *testing.T) {
	l, self := newTestLinker(t)
	a := defineClass(t, l, "LA;", nil)

	l.EnterTransactionMode(self, false, nil)
	require.True(t, l.InitializeClass(self, a, true, true))
	require.Equal(t, mirror.StatusInitialized, a.Status())
	l.RollbackAndExitTransactionMode()
	require.Equal(t, mirror.StatusResolved, a.Status())

	l.MakeInitializedClassesVisiblyInitialized(self)
	require.Equal(t, mirror.StatusResolved, a.Status())
}

func TestCanReferenceInBootImageExtensionOrAppImage(t *testing.T) {
	l, self := newTestLinker(t)
	fileIn := dex.NewBuilder("in.dex").Build()
	fileOut := dex.NewBuilder("out.dex").Build()
	fileRedef := dex.NewBuilder("redef.dex").Build()
	l.SetAppImageDexFiles([]*dex.File{fileIn, fileRedef})

	register := func(descriptor string, file *dex.File, super *mirror.Class) *mirror.Class {
		if super == nil {
			super = l.ObjectClass()
		}
		c := mirror.NewClass(descriptor, super, nil, nil)
		if file != nil {
			c.SetDexFile(file)
		}
		require.NoError(t, l.RegisterClass(c))
		return c
	}

	in := register("LIn;", fileIn, nil)
	out := register("LOut;", fileOut, nil)
	local := register("LLocal;", nil, nil)

	require.True(t, l.CanReferenceInBootImageExtensionOrAppImage(in))
	require.False(t, l.CanReferenceInBootImageExtensionOrAppImage(out))
	require.True(t, l.CanReferenceInBootImageExtensionOrAppImage(local))

	// Boot image classes can always be referenced.
	bootKlass := register("LBootRes;", fileOut, nil)
	l.Heap().AddBootImageSpace(&bootKlass.Object)
	require.True(t, l.CanReferenceInBootImageExtensionOrAppImage(bootKlass))

	// A class whose dex cache lives in the boot image is a redefinition
	// of a boot class and cannot be referenced, partition or not.
	redefined := register("LRedefined;", fileRedef, nil)
	l.Heap().AddBootImageSpace(&redefined.DexCache().Object)
	require.False(t, l.CanReferenceInBootImageExtensionOrAppImage(redefined))

	// The whole superclass chain and interface table must qualify.
	derived := register("LDerived;", fileIn, out)
	require.False(t, l.CanReferenceInBootImageExtensionOrAppImage(derived))
	withIface := register("LWithIface;", fileIn, nil)
	iface := register("LIface;", fileOut, nil).MarkInterface()
	withIface.SetInterfaces([]*mirror.Class{iface})
	require.False(t, l.CanReferenceInBootImageExtensionOrAppImage(withIface))

	// Arrays follow their non-array component; primitive arrays outside
	// the boot image cannot be referenced.
	inArr, err := l.FindClass(self, "[LIn;")
	require.NoError(t, err)
	require.True(t, l.CanReferenceInBootImageExtensionOrAppImage(inArr))
	outArr, err := l.FindClass(self, "[[LOut;")
	require.NoError(t, err)
	require.False(t, l.CanReferenceInBootImageExtensionOrAppImage(outArr))
	intArr, err := l.FindClass(self, "[I")
	require.NoError(t, err)
	require.False(t, l.CanReferenceInBootImageExtensionOrAppImage(intArr))
}

func TestVisitTransactionRootsCoversAllLevels(t *testing.T) {
	l, self := newTestLinker(t)
	a := defineClass(t, l, "LA;", nil)
	b := defineClass(t, l, "LB;", nil)

	l.EnterTransactionMode(self, true, a)
	l.EnterTransactionMode(self, true, b)
	l.RecordWriteField32(&b.Object, staticOffset(b), 0, false)

	seen := make(map[uint64]bool)
	l.VisitTransactionRoots(gc.RootVisitorFunc(func(root **mirror.Object) {
		seen[(*root).ID()] = true
	}))
	require.True(t, seen[a.Object.ID()])
	require.True(t, seen[b.Object.ID()])

	l.ExitTransactionMode()
	l.ExitTransactionMode()
}
