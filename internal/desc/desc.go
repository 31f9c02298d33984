// Package desc converts dex type descriptors to the human-readable Java
// forms used in diagnostics ("Ljava/lang/String;" -> "java.lang.String").
package desc

import "strings"

var primitiveNames = map[byte]string{
	'Z': "boolean",
	'B': "byte",
	'C': "char",
	'S': "short",
	'I': "int",
	'J': "long",
	'F': "float",
	'D': "double",
	'V': "void",
}

// Pretty returns the Java-source form of a type descriptor. Array
// descriptors gain one "[]" suffix per dimension; reference descriptors
// lose the L...; wrapping and use dots; primitive descriptors map to
// keyword names. Unrecognized input is returned unchanged.
func Pretty(descriptor string) string {
	dims := 0
	d := descriptor
	for len(d) > 0 && d[0] == '[' {
		dims++
		d = d[1:]
	}

	var base string
	switch {
	case len(d) >= 2 && d[0] == 'L' && d[len(d)-1] == ';':
		base = strings.ReplaceAll(d[1:len(d)-1], "/", ".")
	case len(d) == 1:
		name, ok := primitiveNames[d[0]]
		if !ok {
			return descriptor
		}
		base = name
	default:
		return descriptor
	}

	if dims == 0 {
		return base
	}
	var sb strings.Builder
	sb.WriteString(base)
	for i := 0; i < dims; i++ {
		sb.WriteString("[]")
	}
	return sb.String()
}

// DotToDescriptor converts a dotted class name to its descriptor form
// ("java.lang.String" -> "Ljava/lang/String;"). Names already carrying
// array or descriptor syntax only have their dots converted.
func DotToDescriptor(name string) string {
	converted := strings.ReplaceAll(name, ".", "/")
	if len(name) > 0 && (name[0] == '[' || name[len(name)-1] == ';') {
		return converted
	}
	return "L" + converted + ";"
}
