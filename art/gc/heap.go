package gc

import (
	"sync"
	"sync/atomic"

	"github.com/TheXPerienceProject/android-art/art/dex"
	"github.com/TheXPerienceProject/android-art/art/mirror"
)

// Heap allocates objects and tracks which of them live in boot image
// spaces. Heap-resident objects are identified by allocation id, so
// membership survives a moving collection.
type Heap struct {
	mu         sync.RWMutex
	bootSpaces int
	bootImage  map[uint64]struct{}

	allocated atomic.Uint64
}

// NewHeap returns an empty heap with no boot image spaces.
func NewHeap() *Heap {
	return &Heap{bootImage: make(map[uint64]struct{})}
}

// AddBootImageSpace promotes objs into a new boot image space. Writes
// to these objects are rejected inside transactions from then on.
func (h *Heap) AddBootImageSpace(objs ...*mirror.Object) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bootSpaces++
	for _, obj := range objs {
		if obj != nil {
			h.bootImage[obj.ID()] = struct{}{}
		}
	}
}

// HasBootImageSpaces reports whether any boot image space exists, i.e.
// whether this compilation extends a boot image.
func (h *Heap) HasBootImageSpaces() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.bootSpaces > 0
}

// ObjectIsInBootImageSpace reports whether obj resides in a boot image
// space. A nil object does not.
func (h *Heap) ObjectIsInBootImageSpace(obj *mirror.Object) bool {
	if obj == nil {
		return false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.bootImage[obj.ID()]
	return ok
}

// ObjectsAllocated returns the number of objects allocated through the
// heap since construction.
func (h *Heap) ObjectsAllocated() uint64 { return h.allocated.Load() }

// AllocObject allocates an instance of klass with zeroed fields.
func (h *Heap) AllocObject(klass *mirror.Class) *mirror.Object {
	h.allocated.Add(1)
	return mirror.NewObject(klass)
}

// AllocArray allocates a zeroed array of the given array class.
func (h *Heap) AllocArray(klass *mirror.Class, length int) *mirror.Array {
	h.allocated.Add(1)
	return mirror.NewArray(klass, length)
}

// AllocString allocates a string from UTF-16 units.
func (h *Heap) AllocString(klass *mirror.Class, units []uint16) *mirror.String {
	h.allocated.Add(1)
	return mirror.NewString(klass, units)
}

// AllocStringFromGo allocates a string from a Go string.
func (h *Heap) AllocStringFromGo(klass *mirror.Class, s string) *mirror.String {
	h.allocated.Add(1)
	return mirror.NewStringFromGo(klass, s)
}

// AllocThrowable allocates a guest error instance of klass.
func (h *Heap) AllocThrowable(klass *mirror.Class) *mirror.Throwable {
	h.allocated.Add(1)
	return mirror.NewThrowable(klass)
}

// AllocDexCache allocates a resolution cache for file.
func (h *Heap) AllocDexCache(klass *mirror.Class, file *dex.File) *mirror.DexCache {
	h.allocated.Add(1)
	return mirror.NewDexCache(klass, file)
}

// AllocMethodType allocates a method type for a proto descriptor.
func (h *Heap) AllocMethodType(klass *mirror.Class, descriptor string) *mirror.MethodType {
	h.allocated.Add(1)
	return mirror.NewMethodType(klass, descriptor)
}
