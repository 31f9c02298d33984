// Package testutil provides shared fixtures for tests that drive a
// full compile-time runtime. It imports the root art package, so it is
// usable only from external _test packages.
package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TheXPerienceProject/android-art/art"
	"github.com/TheXPerienceProject/android-art/art/dex"
	"github.com/TheXPerienceProject/android-art/art/mirror"
)

// SetupRuntime returns a minimal runtime prepared for aborts: no boot
// image, no app image, non-strict transactions.
//
// Example:
//
//	rt := testutil.SetupRuntime(t)
//	klass := testutil.DefineClass(t, rt, "LFoo;", nil)
//	require.NoError(t, rt.EnsureInitialized(klass))
func SetupRuntime(t *testing.T) *art.Runtime {
	t.Helper()
	rt, err := art.NewRuntime(art.Options{PrepareForAborts: true})
	require.NoError(t, err)
	return rt
}

// SetupAppImageRuntime returns a strict-mode runtime compiling an app
// image from a single dex file, plus that file. Classes registered with
// the file via DefineClassInDex belong to the app image partition.
func SetupAppImageRuntime(t *testing.T) (*art.Runtime, *dex.File) {
	t.Helper()
	file := dex.NewBuilder("app.dex").Build()
	rt, err := art.NewRuntime(art.Options{
		PrepareForAborts: true,
		AppImageDexFiles: []*dex.File{file},
	})
	require.NoError(t, err)
	return rt, file
}

// SetupBootImageRuntime returns a non-strict runtime extending a boot
// image: one boot class defined by a boot-image dex file, both promoted
// into a boot image space. Further classes defined by the returned file
// refuse initialization under a transaction.
func SetupBootImageRuntime(t *testing.T) (*art.Runtime, *dex.File, *mirror.Class) {
	t.Helper()
	file := dex.NewBuilder("boot.dex").
		AddClassDef("Lboot/Precompiled;").
		MarkBootImage().
		Build()
	boot := mirror.NewClass("Lboot/Precompiled;", nil, nil, nil)
	boot.SetDexFile(file)
	boot.SetStatusRaw(mirror.StatusVisiblyInitialized)

	rt, err := art.NewRuntime(art.Options{
		PrepareForAborts: true,
		BootImage:        []*mirror.Class{boot},
	})
	require.NoError(t, err)
	return rt, file, boot
}

// DefineClass registers a class with one int static field named
// "value", defaulting the superclass to Object.
func DefineClass(t *testing.T, rt *art.Runtime, descriptor string, super *mirror.Class) *mirror.Class {
	t.Helper()
	l := rt.Linker()
	if super == nil {
		super = l.ObjectClass()
	}
	klass := mirror.NewClass(descriptor, super,
		nil, []*mirror.Field{mirror.NewField("value", dex.PrimInt)})
	require.NoError(t, l.RegisterClass(klass))
	return klass
}

// DefineClassInDex is DefineClass for a class defined by a dex file;
// registration creates and attaches the file's dex cache.
func DefineClassInDex(t *testing.T, rt *art.Runtime, descriptor string, file *dex.File) *mirror.Class {
	t.Helper()
	klass := mirror.NewClass(descriptor, rt.Linker().ObjectClass(),
		nil, []*mirror.Field{mirror.NewField("value", dex.PrimInt)})
	klass.SetDexFile(file)
	require.NoError(t, rt.Linker().RegisterClass(klass))
	return klass
}

// StaticValueOffset returns the offset of the "value" static the
// Define helpers declare.
func StaticValueOffset(t *testing.T, klass *mirror.Class) mirror.FieldOffset {
	t.Helper()
	f := klass.StaticFieldByName("value")
	require.NotNil(t, f, "class %s has no static named value", klass.Descriptor())
	return f.Offset()
}
