package mirror

import "github.com/TheXPerienceProject/android-art/art/dex"

// String is an immutable UTF-16 string object. The hash is computed
// once at allocation with the Java polynomial so intern-table lookups
// never rehash.
type String struct {
	Object

	units []uint16
	hash  uint32
}

// NewString allocates a string from UTF-16 units. The unit slice is
// retained, not copied.
func NewString(klass *Class, units []uint16) *String {
	s := &String{units: units, hash: HashUTF16(units)}
	initObject(&s.Object, klass, 0, 0)
	s.Object.sub = s
	return s
}

// NewStringFromGo allocates a string from a Go string.
func NewStringFromGo(klass *Class, str string) *String {
	return NewString(klass, dex.StringToUTF16(str))
}

// Len returns the number of UTF-16 units.
func (s *String) Len() int { return len(s.units) }

// Value returns the backing UTF-16 units. Callers must not modify them.
func (s *String) Value() []uint16 { return s.units }

// HashCode returns the cached Java string hash.
func (s *String) HashCode() uint32 { return s.hash }

// ToGoString decodes the units into a Go string.
func (s *String) ToGoString() string { return dex.UTF16ToString(s.units) }

// EqualsUnits reports whether the string has exactly the given units.
func (s *String) EqualsUnits(units []uint16) bool {
	if len(s.units) != len(units) {
		return false
	}
	for i, u := range s.units {
		if u != units[i] {
			return false
		}
	}
	return true
}

// HashUTF16 computes the Java string hash of UTF-16 units,
// h = sum(units[i] * 31^(n-1-i)) in 32-bit arithmetic.
func HashUTF16(units []uint16) uint32 {
	var h uint32
	for _, u := range units {
		h = h*31 + uint32(u)
	}
	return h
}
