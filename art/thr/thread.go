// Package thr carries per-thread runtime state. Static initializers run
// on the single compiler-driver thread; the pending exception models
// the guest exception raised while simulating one.
package thr

import (
	"github.com/TheXPerienceProject/android-art/art/gc"
	"github.com/TheXPerienceProject/android-art/art/mirror"
)

// Thread is one execution context.
type Thread struct {
	name      string
	exception *mirror.Object
}

// New returns a thread with no pending exception.
func New(name string) *Thread {
	return &Thread{name: name}
}

// Name returns the thread name.
func (t *Thread) Name() string { return t.name }

// IsExceptionPending reports whether a guest exception is pending.
func (t *Thread) IsExceptionPending() bool { return t.exception != nil }

// Exception returns the pending exception, nil when none.
func (t *Thread) Exception() *mirror.Object { return t.exception }

// SetException makes e the pending exception, replacing any previous
// one. e must not be nil.
func (t *Thread) SetException(e *mirror.Object) {
	if e == nil {
		panic("thr: SetException with nil exception")
	}
	t.exception = e
}

// ClearException drops the pending exception.
func (t *Thread) ClearException() { t.exception = nil }

// VisitRoots reports the pending exception to the collector.
func (t *Thread) VisitRoots(visitor gc.RootVisitor) {
	if t.exception != nil {
		visitor.VisitRoot(&t.exception)
	}
}
