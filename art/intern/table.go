// Package intern implements the string intern table: strong and weak
// sections keyed by UTF-16 content, bucketed on the string's cached
// hash. Mutations made while a transaction is active are reported to a
// recorder so they can be undone on rollback.
package intern

import (
	"fmt"

	"github.com/TheXPerienceProject/android-art/art/gc"
	"github.com/TheXPerienceProject/android-art/art/mirror"
)

func fatalf(format string, args ...any) {
	panic("intern: " + fmt.Sprintf(format, args...))
}

// Recorder receives intern-table operations performed while a
// transaction is active.
type Recorder interface {
	RecordStrongStringInsertion(s *mirror.String)
	RecordStrongStringRemoval(s *mirror.String)
	RecordWeakStringInsertion(s *mirror.String)
	RecordWeakStringRemoval(s *mirror.String)
}

// RecorderSource returns the recorder of the innermost active
// transaction, or nil when no transaction is active.
type RecorderSource func() Recorder

// section is one hash-bucketed set of interned strings.
type section struct {
	buckets map[uint32][]*mirror.Object
	count   int
}

func newSection() *section {
	return &section{buckets: make(map[uint32][]*mirror.Object)}
}

func (s *section) find(units []uint16, hash uint32) *mirror.String {
	for _, e := range s.buckets[hash] {
		if str := e.AsString(); str.EqualsUnits(units) {
			return str
		}
	}
	return nil
}

func (s *section) insert(str *mirror.String) {
	h := str.HashCode()
	s.buckets[h] = append(s.buckets[h], &str.Object)
	s.count++
}

func (s *section) remove(str *mirror.String) bool {
	h := str.HashCode()
	bucket := s.buckets[h]
	for i, e := range bucket {
		if e == &str.Object {
			s.buckets[h] = append(bucket[:i], bucket[i+1:]...)
			s.count--
			return true
		}
	}
	return false
}

func (s *section) visitRoots(visitor gc.RootVisitor) {
	for _, bucket := range s.buckets {
		for i := range bucket {
			visitor.VisitRoot(&bucket[i])
		}
	}
}

// Table is the intern table. Not safe for concurrent use; interning
// happens on the compiler-driver thread.
type Table struct {
	strong *section
	weak   *section

	recorderSource RecorderSource
}

// NewTable returns an empty intern table.
func NewTable() *Table {
	return &Table{strong: newSection(), weak: newSection()}
}

// SetRecorderSource wires the transaction lookup consulted on every
// mutation. A nil source disables recording.
func (t *Table) SetRecorderSource(source RecorderSource) {
	t.recorderSource = source
}

func (t *Table) recorder() Recorder {
	if t.recorderSource == nil {
		return nil
	}
	return t.recorderSource()
}

// StrongCount returns the number of strongly interned strings.
func (t *Table) StrongCount() int { return t.strong.count }

// WeakCount returns the number of weakly interned strings.
func (t *Table) WeakCount() int { return t.weak.count }

// LookupStrong returns the strongly interned string with the given
// UTF-16 content, nil if absent.
func (t *Table) LookupStrong(units []uint16) *mirror.String {
	return t.strong.find(units, mirror.HashUTF16(units))
}

// LookupWeak returns the weakly interned string with the given UTF-16
// content, nil if absent.
func (t *Table) LookupWeak(units []uint16) *mirror.String {
	return t.weak.find(units, mirror.HashUTF16(units))
}

// InternStrong interns s strongly and returns the canonical string: an
// existing strong intern with equal content wins, a weak intern is
// promoted, otherwise s itself is inserted.
func (t *Table) InternStrong(s *mirror.String) *mirror.String {
	if s == nil {
		fatalf("interning nil string")
	}
	if found := t.strong.find(s.Value(), s.HashCode()); found != nil {
		return found
	}
	if found := t.weak.find(s.Value(), s.HashCode()); found != nil {
		t.removeWeak(found)
		t.insertStrong(found)
		return found
	}
	t.insertStrong(s)
	return s
}

// InternWeak interns s weakly and returns the canonical string. A
// strong intern with equal content takes precedence.
func (t *Table) InternWeak(s *mirror.String) *mirror.String {
	if s == nil {
		fatalf("interning nil string")
	}
	if found := t.strong.find(s.Value(), s.HashCode()); found != nil {
		return found
	}
	if found := t.weak.find(s.Value(), s.HashCode()); found != nil {
		return found
	}
	t.insertWeak(s)
	return s
}

// Remove removes s by identity from whichever section holds it.
func (t *Table) Remove(s *mirror.String) bool {
	if t.strong.remove(s) {
		if r := t.recorder(); r != nil {
			r.RecordStrongStringRemoval(s)
		}
		return true
	}
	if t.weak.remove(s) {
		if r := t.recorder(); r != nil {
			r.RecordWeakStringRemoval(s)
		}
		return true
	}
	return false
}

func (t *Table) insertStrong(s *mirror.String) {
	if r := t.recorder(); r != nil {
		r.RecordStrongStringInsertion(s)
	}
	t.strong.insert(s)
}

func (t *Table) insertWeak(s *mirror.String) {
	if r := t.recorder(); r != nil {
		r.RecordWeakStringInsertion(s)
	}
	t.weak.insert(s)
}

func (t *Table) removeWeak(s *mirror.String) {
	if r := t.recorder(); r != nil {
		r.RecordWeakStringRemoval(s)
	}
	if !t.weak.remove(s) {
		fatalf("weak intern %q missing on removal", s.ToGoString())
	}
}

// InsertStrongFromRollback reinstates a strong intern without
// recording; rollback is the only caller.
func (t *Table) InsertStrongFromRollback(s *mirror.String) {
	t.strong.insert(s)
}

// RemoveStrongFromRollback drops a strong intern without recording.
func (t *Table) RemoveStrongFromRollback(s *mirror.String) {
	if !t.strong.remove(s) {
		fatalf("strong intern %q missing on rollback", s.ToGoString())
	}
}

// InsertWeakFromRollback reinstates a weak intern without recording.
func (t *Table) InsertWeakFromRollback(s *mirror.String) {
	t.weak.insert(s)
}

// RemoveWeakFromRollback drops a weak intern without recording.
func (t *Table) RemoveWeakFromRollback(s *mirror.String) {
	if !t.weak.remove(s) {
		fatalf("weak intern %q missing on rollback", s.ToGoString())
	}
}

// VisitRoots offers every strong intern to the collector. Weak interns
// are swept, not rooted.
func (t *Table) VisitRoots(visitor gc.RootVisitor) {
	t.strong.visitRoots(visitor)
}

// SweepWeak drops weak interns whose string the collector no longer
// considers alive.
func (t *Table) SweepWeak(alive func(*mirror.Object) bool) {
	for h, bucket := range t.weak.buckets {
		kept := bucket[:0]
		for _, e := range bucket {
			if alive(e) {
				kept = append(kept, e)
			} else {
				t.weak.count--
			}
		}
		if len(kept) == 0 {
			delete(t.weak.buckets, h)
		} else {
			t.weak.buckets[h] = kept
		}
	}
}
