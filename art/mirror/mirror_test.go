package mirror

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TheXPerienceProject/android-art/art/dex"
)

func TestFieldLayoutRefsFirstThenByWidth(t *testing.T) {
	ref1 := NewField("ref1", dex.PrimNot)
	lng := NewField("lng", dex.PrimLong)
	i32 := NewField("i32", dex.PrimInt)
	sh := NewField("sh", dex.PrimShort)
	bl := NewField("bl", dex.PrimBoolean)
	ref2 := NewField("ref2", dex.PrimNot)

	klass := NewClass("LFoo;", nil, []*Field{ref1, lng, i32, sh, bl, ref2}, nil)

	require.Equal(t, FieldOffset(HeaderSize), ref1.Offset())
	require.Equal(t, FieldOffset(HeaderSize+4), ref2.Offset())
	require.Equal(t, FieldOffset(HeaderSize+8), lng.Offset())
	require.Equal(t, FieldOffset(HeaderSize+16), i32.Offset())
	require.Equal(t, FieldOffset(HeaderSize+20), sh.Offset())
	require.Equal(t, FieldOffset(HeaderSize+22), bl.Offset())

	require.Same(t, i32, klass.InstanceFieldByName("i32"))
	require.Nil(t, klass.InstanceFieldByName("nope"))
}

func TestObjectFieldRoundTrip(t *testing.T) {
	fields := []*Field{
		NewField("ref", dex.PrimNot),
		NewField("z", dex.PrimBoolean),
		NewField("b", dex.PrimByte),
		NewField("c", dex.PrimChar),
		NewField("s", dex.PrimShort),
		NewField("i", dex.PrimInt),
		NewField("j", dex.PrimLong),
	}
	klass := NewClass("LFoo;", nil, fields, nil)
	obj := NewObject(klass)
	other := NewObject(klass)

	obj.SetFieldBoolean(klass.InstanceFieldByName("z").Offset(), 1)
	obj.SetFieldByte(klass.InstanceFieldByName("b").Offset(), -7)
	obj.SetFieldChar(klass.InstanceFieldByName("c").Offset(), 0xBEEF)
	obj.SetFieldShort(klass.InstanceFieldByName("s").Offset(), -1234)
	obj.SetField32(klass.InstanceFieldByName("i").Offset(), 0xCAFEBABE)
	obj.SetField64(klass.InstanceFieldByName("j").Offset(), 0x1122334455667788)
	obj.SetFieldReference(klass.InstanceFieldByName("ref").Offset(), other)

	require.Equal(t, uint8(1), obj.GetFieldBoolean(klass.InstanceFieldByName("z").Offset()))
	require.Equal(t, int8(-7), obj.GetFieldByte(klass.InstanceFieldByName("b").Offset()))
	require.Equal(t, uint16(0xBEEF), obj.GetFieldChar(klass.InstanceFieldByName("c").Offset()))
	require.Equal(t, int16(-1234), obj.GetFieldShort(klass.InstanceFieldByName("s").Offset()))
	require.Equal(t, uint32(0xCAFEBABE), obj.GetField32(klass.InstanceFieldByName("i").Offset()))
	require.Equal(t, uint64(0x1122334455667788), obj.GetField64(klass.InstanceFieldByName("j").Offset()))
	require.Same(t, other, obj.GetFieldReference(klass.InstanceFieldByName("ref").Offset()))

	obj.SetFieldReference(klass.InstanceFieldByName("ref").Offset(), nil)
	require.Nil(t, obj.GetFieldReference(klass.InstanceFieldByName("ref").Offset()))
}

func TestClassStatusLivesInStaticStorage(t *testing.T) {
	statics := []*Field{
		NewField("sRef", dex.PrimNot),
		NewField("sInt", dex.PrimInt),
	}
	klass := NewClass("LFoo;", nil, nil, statics)

	require.Equal(t, FieldOffset(HeaderSize+4), klass.StatusOffset())
	require.Equal(t, StatusResolved, klass.Status())
	require.Equal(t, uint32(StatusResolved), klass.GetField32(klass.StatusOffset()))

	klass.SetField32(klass.StatusOffset(), uint32(StatusInitializing))
	require.Equal(t, StatusInitializing, klass.Status())
	require.True(t, klass.IsInitializing())
	require.False(t, klass.IsInitialized())

	klass.SetStatusRaw(StatusVisiblyInitialized)
	require.True(t, klass.IsInitialized())
	require.True(t, klass.IsVisiblyInitialized())

	sInt := klass.StaticFieldByName("sInt")
	require.Equal(t, FieldOffset(HeaderSize+8), sInt.Offset())
	klass.SetField32(sInt.Offset(), 42)
	require.Equal(t, uint32(42), klass.GetField32(sInt.Offset()))
	require.Equal(t, StatusVisiblyInitialized, klass.Status())
}

func TestStatusOrdering(t *testing.T) {
	require.True(t, StatusInitializing > StatusVerified)
	require.True(t, StatusVisiblyInitialized > StatusInitialized)
	require.Equal(t, "Initializing", StatusInitializing.String())
}

func TestPrettyTypeOf(t *testing.T) {
	klass := NewClass("Lcom/example/Foo;", nil, nil, nil)
	obj := NewObject(klass)

	require.Equal(t, "null", (*Object)(nil).PrettyTypeOf())
	require.Equal(t, "com.example.Foo", obj.PrettyTypeOf())
	require.Equal(t, "java.lang.Class<com.example.Foo>", klass.PrettyTypeOf())
}

func TestCasts(t *testing.T) {
	klass := NewClass("LFoo;", nil, nil, nil)
	require.True(t, klass.IsClass())
	require.Same(t, klass, klass.AsClass())
	require.False(t, klass.IsArray())

	intClass := NewPrimitiveClass(dex.PrimInt)
	arr := NewArray(NewArrayClass(intClass), 3)
	require.True(t, arr.IsArray())
	require.Same(t, arr, arr.AsArray())
	require.False(t, arr.IsClass())

	str := NewStringFromGo(nil, "abc")
	require.True(t, str.IsString())
	require.Same(t, str, str.AsString())

	mt := NewMethodType(nil, "()V")
	require.True(t, mt.IsMethodType())
}

func TestPrimitiveArrayElements(t *testing.T) {
	intClass := NewPrimitiveClass(dex.PrimInt)
	arr := NewArray(NewArrayClass(intClass), 4)
	require.Equal(t, 4, arr.Len())
	require.Equal(t, dex.PrimInt, arr.ComponentType())
	require.False(t, arr.IsObjectArray())

	arr.Set32(2, 0xDEADBEEF)
	require.Equal(t, uint32(0xDEADBEEF), arr.Get32(2))
	require.Equal(t, uint64(0xDEADBEEF), arr.GetElementRaw(2))

	arr.SetElementRaw(0, 0x1_0000_0001)
	require.Equal(t, uint32(1), arr.Get32(0))

	longArr := NewArray(NewArrayClass(NewPrimitiveClass(dex.PrimLong)), 2)
	longArr.Set64(1, 0xFFFF_FFFF_0000_0001)
	require.Equal(t, uint64(0xFFFF_FFFF_0000_0001), longArr.GetElementRaw(1))

	byteArr := NewArray(NewArrayClass(NewPrimitiveClass(dex.PrimByte)), 3)
	byteArr.SetByte(1, -2)
	require.Equal(t, int8(-2), byteArr.GetByte(1))
	require.Equal(t, uint64(0xFE), byteArr.GetElementRaw(1))

	charArr := NewArray(NewArrayClass(NewPrimitiveClass(dex.PrimChar)), 2)
	charArr.SetChar(0, 'Z')
	require.Equal(t, uint16('Z'), charArr.GetChar(0))
}

func TestReferenceArrayElements(t *testing.T) {
	fooClass := NewClass("LFoo;", nil, nil, nil)
	arr := NewArray(NewArrayClass(fooClass), 3)
	require.True(t, arr.IsObjectArray())

	obj := NewObject(fooClass)
	arr.SetReference(1, obj)
	require.Same(t, obj, arr.GetReference(1))
	require.Nil(t, arr.GetReference(0))

	require.Equal(t, FieldOffset(HeaderSize+4), arr.ElementOffset(1))

	other := NewObject(fooClass)
	arr.SetFieldReference(arr.ElementOffset(2), other)
	require.Same(t, other, arr.GetReference(2))
	require.Same(t, obj, arr.GetFieldReference(arr.ElementOffset(1)))
}

func TestStringHashAndEquality(t *testing.T) {
	require.Equal(t, uint32(0), HashUTF16(nil))
	require.Equal(t, uint32(97), HashUTF16(dex.StringToUTF16("a")))
	require.Equal(t, uint32(99162322), HashUTF16(dex.StringToUTF16("hello")))

	s := NewStringFromGo(nil, "hello")
	require.Equal(t, uint32(99162322), s.HashCode())
	require.Equal(t, 5, s.Len())
	require.Equal(t, "hello", s.ToGoString())
	require.True(t, s.EqualsUnits(dex.StringToUTF16("hello")))
	require.False(t, s.EqualsUnits(dex.StringToUTF16("hellO")))
	require.False(t, s.EqualsUnits(dex.StringToUTF16("hell")))

	musical := NewStringFromGo(nil, "a\U0001D11Eb")
	require.Equal(t, 4, musical.Len())
	require.Equal(t, "a\U0001D11Eb", musical.ToGoString())
}

func TestThrowableMessageAndCause(t *testing.T) {
	fields := []*Field{
		NewField("detailMessage", dex.PrimNot),
		NewField("cause", dex.PrimNot),
	}
	klass := NewClass("Ljava/lang/Throwable;", nil, nil, nil)
	errKlass := NewClass("Ljava/lang/Error;", klass, fields, nil)

	e := NewThrowable(errKlass)
	require.True(t, e.IsThrowable())
	require.Same(t, e, e.Object.AsThrowable())
	require.Nil(t, e.DetailMessage())
	require.Nil(t, e.Cause())

	msg := NewStringFromGo(nil, "boom")
	e.SetDetailMessage(msg)
	require.Same(t, msg, e.DetailMessage())
	// The message lives in an ordinary field slot.
	require.Same(t, &msg.Object, e.GetFieldReference(errKlass.InstanceFieldByName("detailMessage").Offset()))

	cause := NewThrowable(errKlass)
	e.SetCause(&cause.Object)
	require.Same(t, &cause.Object, e.Cause())

	e.SetDetailMessage(nil)
	require.Nil(t, e.DetailMessage())

	require.Panics(t, func() { NewThrowable(NewClass("LBare;", nil, nil, nil)) })
}

func TestDexCacheSlots(t *testing.T) {
	b := dex.NewBuilder("core.dex")
	one := b.AddString("one")
	two := b.AddString("two")
	sig := b.AddProto("()V")
	file := b.Build()

	dc := NewDexCache(nil, file)
	require.Same(t, file, dc.DexFile())
	require.Nil(t, dc.ResolvedString(one))

	s := NewStringFromGo(nil, "one")
	dc.SetResolvedString(one, s)
	require.Same(t, s, dc.ResolvedString(one))
	require.Nil(t, dc.ResolvedString(two))

	dc.ClearString(one)
	require.Nil(t, dc.ResolvedString(one))

	mt := NewMethodType(nil, "()V")
	dc.SetResolvedMethodType(sig, mt)
	require.Same(t, mt, dc.ResolvedMethodType(sig))
	dc.ClearMethodType(sig)
	require.Nil(t, dc.ResolvedMethodType(sig))
}

func TestUniqueIDs(t *testing.T) {
	klass := NewClass("LFoo;", nil, nil, nil)
	a := NewObject(klass)
	b := NewObject(klass)
	require.NotEqual(t, a.ID(), b.ID())
}
