// Package dex models the slice of a dex file the compile-time runtime
// needs: the string table, method prototype table and class definitions,
// addressed through typed indices.
package dex

import (
	"fmt"

	"github.com/TheXPerienceProject/android-art/internal/buf"
)

// StringIndex addresses an entry in a dex file's string table.
type StringIndex uint32

// ProtoIndex addresses an entry in a dex file's method prototype table.
type ProtoIndex uint32

// File is an immutable dex file view. String entries are stored as raw
// string data items (ULEB128 UTF-16 length followed by modified-UTF-8
// bytes) and decoded on access.
type File struct {
	location    string
	stringData  [][]byte
	protos      []string
	classDefs   []string
	inBootImage bool
}

// Location returns the path-like identity of the file.
func (f *File) Location() string { return f.location }

// NumStrings returns the size of the string table.
func (f *File) NumStrings() int { return len(f.stringData) }

// NumProtos returns the size of the prototype table.
func (f *File) NumProtos() int { return len(f.protos) }

// ClassDefs returns the descriptors of the classes defined by this file.
func (f *File) ClassDefs() []string { return f.classDefs }

// InBootImage reports whether the file backs classes of the boot image the
// compilation runs against.
func (f *File) InBootImage() bool { return f.inBootImage }

// StringAt decodes the string data item at idx into UTF-16 code units.
func (f *File) StringAt(idx StringIndex) ([]uint16, error) {
	if int(idx) >= len(f.stringData) {
		return nil, fmt.Errorf("dex: string index %d of %d in %s: %w",
			idx, len(f.stringData), f.location, ErrIndexRange)
	}
	item := f.stringData[idx]
	utf16Len, n, err := buf.ULEB128(item)
	if err != nil {
		return nil, fmt.Errorf("dex: string %d in %s: %w", idx, f.location, err)
	}
	units, err := DecodeMUTF8(item[n:])
	if err != nil {
		return nil, err
	}
	if len(units) != int(utf16Len) {
		return nil, fmt.Errorf("dex: string %d in %s declares %d units, has %d: %w",
			idx, f.location, utf16Len, len(units), ErrBadStringData)
	}
	return units, nil
}

// ProtoAt returns the prototype descriptor at idx, e.g. "(ILjava/lang/String;)V".
func (f *File) ProtoAt(idx ProtoIndex) (string, error) {
	if int(idx) >= len(f.protos) {
		return "", fmt.Errorf("dex: proto index %d of %d in %s: %w",
			idx, len(f.protos), f.location, ErrIndexRange)
	}
	return f.protos[idx], nil
}

// Builder assembles a File. Intended for the compile-time runtime setup
// and for tests; it is not a dex writer.
type Builder struct {
	f File
}

// NewBuilder starts a file with the given location.
func NewBuilder(location string) *Builder {
	return &Builder{f: File{location: location}}
}

// AddString encodes s as a string data item and returns its index.
func (b *Builder) AddString(s string) StringIndex {
	units := StringToUTF16(s)
	item := buf.AppendULEB128(nil, uint32(len(units)))
	item = AppendMUTF8(item, units)
	b.f.stringData = append(b.f.stringData, item)
	return StringIndex(len(b.f.stringData) - 1)
}

// AddProto records a prototype descriptor and returns its index.
func (b *Builder) AddProto(descriptor string) ProtoIndex {
	b.f.protos = append(b.f.protos, descriptor)
	return ProtoIndex(len(b.f.protos) - 1)
}

// AddClassDef records a class definition descriptor.
func (b *Builder) AddClassDef(descriptor string) *Builder {
	b.f.classDefs = append(b.f.classDefs, descriptor)
	return b
}

// MarkBootImage tags the file as part of the boot classpath image.
func (b *Builder) MarkBootImage() *Builder {
	b.f.inBootImage = true
	return b
}

// Build finalizes the file. The builder must not be reused.
func (b *Builder) Build() *File {
	return &b.f
}
