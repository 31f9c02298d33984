package mirror

// MethodType is a resolved method-handle signature. The runtime only
// needs its identity and descriptor, so the object carries no fields.
type MethodType struct {
	Object

	descriptor string
}

// NewMethodType allocates a method type for a proto descriptor such as
// "(ILjava/lang/String;)V".
func NewMethodType(klass *Class, descriptor string) *MethodType {
	mt := &MethodType{descriptor: descriptor}
	initObject(&mt.Object, klass, 0, 0)
	mt.Object.sub = mt
	return mt
}

// Descriptor returns the proto descriptor.
func (mt *MethodType) Descriptor() string { return mt.descriptor }
