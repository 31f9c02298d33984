package linker

import (
	"errors"
	"fmt"

	"github.com/TheXPerienceProject/android-art/art/mirror"
	"github.com/TheXPerienceProject/android-art/art/thr"
)

// TransactionAbortErrorDescriptor names the guest error class thrown
// when a transaction aborts. The class must be resolved before the
// first transaction is entered, since class loading does not work
// under a transaction.
const TransactionAbortErrorDescriptor = "Ldalvik/system/TransactionAbortError;"

var (
	// ErrClassNotFound reports a descriptor with no registered class.
	ErrClassNotFound = errors.New("linker: class not found")

	// ErrDuplicateClass reports a second registration of a descriptor.
	ErrDuplicateClass = errors.New("linker: class already registered")
)

// AbortError is the Go-side form of a transaction abort: the guest
// throwable pending on the thread carries the same message.
type AbortError struct {
	Msg string
}

func (e *AbortError) Error() string {
	return "transaction aborted: " + e.Msg
}

// InitError reports a class initialization failure that was not a
// transaction abort, such as a static initializer throwing.
type InitError struct {
	Descriptor string
	Msg        string
}

func (e *InitError) Error() string {
	return fmt.Sprintf("initialization of %s failed: %s", e.Descriptor, e.Msg)
}

// exceptionMessage extracts the detailMessage of a guest throwable,
// empty if it is unset or the object is not a throwable at all.
func exceptionMessage(e *mirror.Object) string {
	if !e.IsThrowable() {
		return ""
	}
	msg := e.AsThrowable().DetailMessage()
	if msg == nil {
		return ""
	}
	return msg.ToGoString()
}

// ErrorFromPending converts the thread's pending exception into a typed
// Go error: *AbortError for the transaction abort class, *InitError for
// anything else. Returns nil when no exception is pending. The pending
// exception is left in place.
func ErrorFromPending(self *thr.Thread) error {
	e := self.Exception()
	if e == nil {
		return nil
	}
	msg := exceptionMessage(e)
	if klass := e.Class(); klass != nil && klass.Descriptor() == TransactionAbortErrorDescriptor {
		return &AbortError{Msg: msg}
	}
	descriptor := "<unknown>"
	if klass := e.Class(); klass != nil {
		descriptor = klass.Descriptor()
	}
	return &InitError{Descriptor: descriptor, Msg: msg}
}

func fatalf(format string, args ...any) {
	panic(fmt.Sprintf("linker: "+format, args...))
}
