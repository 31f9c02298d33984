package mirror

import "github.com/TheXPerienceProject/android-art/art/dex"

// DexCache caches resolutions made against one dex file. Transactions
// record string and method-type resolutions against the owning cache so
// rollback can clear the exact slots that were filled.
type DexCache struct {
	Object

	file                *dex.File
	resolvedStrings     []*String
	resolvedMethodTypes []*MethodType
}

// NewDexCache allocates a cache sized to the dex file's tables.
func NewDexCache(klass *Class, file *dex.File) *DexCache {
	dc := &DexCache{
		file:                file,
		resolvedStrings:     make([]*String, file.NumStrings()),
		resolvedMethodTypes: make([]*MethodType, file.NumProtos()),
	}
	initObject(&dc.Object, klass, 0, 0)
	dc.Object.sub = dc
	return dc
}

// DexFile returns the dex file this cache resolves against.
func (dc *DexCache) DexFile() *dex.File { return dc.file }

func (dc *DexCache) checkStringIndex(idx dex.StringIndex) {
	if int(idx) >= len(dc.resolvedStrings) {
		fatalf("string index %d out of range for %s", idx, dc.file.Location())
	}
}

func (dc *DexCache) checkProtoIndex(idx dex.ProtoIndex) {
	if int(idx) >= len(dc.resolvedMethodTypes) {
		fatalf("proto index %d out of range for %s", idx, dc.file.Location())
	}
}

// ResolvedString returns the cached string for idx, nil when unresolved.
func (dc *DexCache) ResolvedString(idx dex.StringIndex) *String {
	dc.checkStringIndex(idx)
	return dc.resolvedStrings[idx]
}

// SetResolvedString fills the string slot for idx.
func (dc *DexCache) SetResolvedString(idx dex.StringIndex, s *String) {
	dc.checkStringIndex(idx)
	dc.resolvedStrings[idx] = s
}

// ClearString empties the string slot for idx.
func (dc *DexCache) ClearString(idx dex.StringIndex) {
	dc.checkStringIndex(idx)
	dc.resolvedStrings[idx] = nil
}

// ResolvedMethodType returns the cached method type for idx, nil when
// unresolved.
func (dc *DexCache) ResolvedMethodType(idx dex.ProtoIndex) *MethodType {
	dc.checkProtoIndex(idx)
	return dc.resolvedMethodTypes[idx]
}

// SetResolvedMethodType fills the method-type slot for idx.
func (dc *DexCache) SetResolvedMethodType(idx dex.ProtoIndex, mt *MethodType) {
	dc.checkProtoIndex(idx)
	dc.resolvedMethodTypes[idx] = mt
}

// ClearMethodType empties the method-type slot for idx.
func (dc *DexCache) ClearMethodType(idx dex.ProtoIndex) {
	dc.checkProtoIndex(idx)
	dc.resolvedMethodTypes[idx] = nil
}
