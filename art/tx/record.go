package tx

import (
	"github.com/TheXPerienceProject/android-art/art/arena"
	"github.com/TheXPerienceProject/android-art/art/dex"
	"github.com/TheXPerienceProject/android-art/art/gc"
	"github.com/TheXPerienceProject/android-art/art/mirror"
	"github.com/TheXPerienceProject/android-art/internal/buf"
)

// Every field and array entry is encoded into a fixed 16-byte arena
// record so that appending during execution and decoding during
// rollback never allocate:
//
//	[0]     kind
//	[1]     flags (bit 0: volatile)
//	[2:4]   unused
//	[4:8]   field offset, or array index
//	[8:16]  raw payload; for references, an index into the log's roots
const recordSize = 16

const flagVolatile = 0x01

func encodeRecord(st *arena.Stack, kind Kind, slot uint32, raw uint64, isVolatile bool) []byte {
	rec := st.Alloc(recordSize)
	rec[0] = byte(kind)
	if isVolatile {
		rec[1] = flagVolatile
	}
	buf.PutU32(rec[4:8], slot)
	buf.PutU64(rec[8:16], raw)
	return rec
}

// objectLog accumulates field pre-images for one object, in write
// order. A log flagged new never accumulates entries: the whole object
// is unreachable after rollback.
type objectLog struct {
	obj     *mirror.Object
	entries [][]byte
	roots   []*mirror.Object
	isNew   bool
}

func (l *objectLog) logField(st *arena.Stack, kind Kind, off mirror.FieldOffset, raw uint64, ref *mirror.Object, isVolatile bool) {
	if kind == KindReference {
		raw = uint64(len(l.roots))
		l.roots = append(l.roots, ref)
	}
	l.entries = append(l.entries, encodeRecord(st, kind, uint32(off), raw, isVolatile))
}

func (l *objectLog) size() int { return len(l.entries) }

func (l *objectLog) decode(rec []byte) (mirror.FieldOffset, Value) {
	kind := Kind(rec[0])
	off := mirror.FieldOffset(buf.U32(rec[4:8]))
	raw := buf.U64(rec[8:16])
	if kind == KindReference {
		return off, ReferenceValue(l.roots[raw])
	}
	return off, Value{kind: kind, raw: raw}
}

// undo restores the object's fields newest entry first, so repeated
// writes to one offset land back on the pre-transaction value.
func (l *objectLog) undo() {
	for i := len(l.entries) - 1; i >= 0; i-- {
		off, v := l.decode(l.entries[i])
		v.apply(l.obj, off)
	}
}

func (l *objectLog) visitRoots(visitor gc.RootVisitor) {
	visitor.VisitRoot(&l.obj)
	for i := range l.roots {
		if l.roots[i] != nil {
			visitor.VisitRoot(&l.roots[i])
		}
	}
}

// arrayLog accumulates element pre-images for one primitive array.
// Reference arrays never get an arrayLog; their stores are recorded as
// reference field writes.
type arrayLog struct {
	arr     *mirror.Object
	entries [][]byte
	isNew   bool
}

func (l *arrayLog) logWrite(st *arena.Stack, index int, raw uint64) {
	l.entries = append(l.entries, encodeRecord(st, KindWord64, uint32(index), raw, false))
}

func (l *arrayLog) size() int { return len(l.entries) }

// undo restores elements newest entry first; the element width comes
// from the array's component type.
func (l *arrayLog) undo() {
	arr := l.arr.AsArray()
	for i := len(l.entries) - 1; i >= 0; i-- {
		rec := l.entries[i]
		arr.SetElementRaw(int(buf.U32(rec[4:8])), buf.U64(rec[8:16]))
	}
}

func (l *arrayLog) visitRoots(visitor gc.RootVisitor) {
	visitor.VisitRoot(&l.arr)
}

type internStringKind uint8

const (
	strongString internStringKind = iota
	weakString
)

type internStringOp uint8

const (
	internInsert internStringOp = iota
	internRemove
)

// internStringLog is one intern-table operation; undo performs the
// inverse operation on the same section of the table.
type internStringLog struct {
	str  *mirror.Object
	kind internStringKind
	op   internStringOp
}

func (l *internStringLog) undo(interner Interner) {
	s := l.str.AsString()
	switch {
	case l.kind == strongString && l.op == internInsert:
		interner.RemoveStrongFromRollback(s)
	case l.kind == strongString && l.op == internRemove:
		interner.InsertStrongFromRollback(s)
	case l.kind == weakString && l.op == internInsert:
		interner.RemoveWeakFromRollback(s)
	case l.kind == weakString && l.op == internRemove:
		interner.InsertWeakFromRollback(s)
	}
}

func (l *internStringLog) visitRoots(visitor gc.RootVisitor) {
	visitor.VisitRoot(&l.str)
}

// resolveStringLog marks one dex-cache string slot filled during the
// transaction; undo clears the slot back to unresolved.
type resolveStringLog struct {
	dexCache *mirror.Object
	idx      dex.StringIndex
}

func (l *resolveStringLog) undo() {
	l.dexCache.AsDexCache().ClearString(l.idx)
}

// resolveMethodTypeLog is the method-type analog of resolveStringLog.
type resolveMethodTypeLog struct {
	dexCache *mirror.Object
	idx      dex.ProtoIndex
}

func (l *resolveMethodTypeLog) undo() {
	l.dexCache.AsDexCache().ClearMethodType(l.idx)
}
