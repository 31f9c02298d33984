package mirror

// Throwable is a guest error object. Its message and cause live in
// ordinary reference fields declared by the throwable class, so stores
// to them are recorded and rolled back like any other field write.
type Throwable struct {
	Object

	messageOffset FieldOffset
	causeOffset   FieldOffset
}

// NewThrowable allocates an instance of a throwable class. The class
// must declare "detailMessage" and "cause" reference fields.
func NewThrowable(klass *Class) *Throwable {
	msg := klass.InstanceFieldByName("detailMessage")
	cause := klass.InstanceFieldByName("cause")
	if msg == nil || cause == nil {
		fatalf("throwable class %s lacks detailMessage/cause fields", klass.Descriptor())
	}
	t := &Throwable{messageOffset: msg.Offset(), causeOffset: cause.Offset()}
	initObject(&t.Object, klass, klass.numInstanceRefs, klass.instanceDataSize)
	t.Object.sub = t
	return t
}

// DetailMessage returns the message string, nil when unset.
func (t *Throwable) DetailMessage() *String {
	msg := t.GetFieldReference(t.messageOffset)
	if msg == nil {
		return nil
	}
	return msg.AsString()
}

// SetDetailMessage stores the message string.
func (t *Throwable) SetDetailMessage(msg *String) {
	var obj *Object
	if msg != nil {
		obj = &msg.Object
	}
	t.SetFieldReference(t.messageOffset, obj)
}

// Cause returns the wrapped error object, nil when unset.
func (t *Throwable) Cause() *Object {
	return t.GetFieldReference(t.causeOffset)
}

// SetCause stores the wrapped error object.
func (t *Throwable) SetCause(cause *Object) {
	t.SetFieldReference(t.causeOffset, cause)
}
