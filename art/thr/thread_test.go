package thr

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TheXPerienceProject/android-art/art/gc"
	"github.com/TheXPerienceProject/android-art/art/mirror"
)

func TestExceptionState(t *testing.T) {
	th := New("main")
	require.Equal(t, "main", th.Name())
	require.False(t, th.IsExceptionPending())
	require.Nil(t, th.Exception())

	klass := mirror.NewClass("Ljava/lang/Error;", nil, nil, nil)
	e := mirror.NewObject(klass)
	th.SetException(e)
	require.True(t, th.IsExceptionPending())
	require.Same(t, e, th.Exception())

	th.ClearException()
	require.False(t, th.IsExceptionPending())

	require.Panics(t, func() { th.SetException(nil) })
}

func TestVisitRootsCoversException(t *testing.T) {
	th := New("main")
	var visited int
	countRoots := gc.RootVisitorFunc(func(root **mirror.Object) { visited++ })

	th.VisitRoots(countRoots)
	require.Zero(t, visited)

	klass := mirror.NewClass("Ljava/lang/Error;", nil, nil, nil)
	old := mirror.NewObject(klass)
	moved := mirror.NewObject(klass)
	th.SetException(old)
	th.VisitRoots(countRoots)
	require.Equal(t, 1, visited)

	th.VisitRoots(gc.RootVisitorFunc(func(root **mirror.Object) { *root = moved }))
	require.Same(t, moved, th.Exception())
}
