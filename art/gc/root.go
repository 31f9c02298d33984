// Package gc models the heap side of the runtime: allocation, boot
// image membership, and the root visitation contract a moving collector
// uses to relocate references held outside the heap.
package gc

import "github.com/TheXPerienceProject/android-art/art/mirror"

// RootVisitor is implemented by collectors. VisitRoot receives the
// address of a reference slot so the visitor can update it in place
// when the referent moves.
type RootVisitor interface {
	VisitRoot(root **mirror.Object)
}

// RootVisitorFunc adapts a function to RootVisitor.
type RootVisitorFunc func(root **mirror.Object)

func (f RootVisitorFunc) VisitRoot(root **mirror.Object) { f(root) }

// VisitRoots visits every slot holding a non-nil reference.
func VisitRoots(visitor RootVisitor, roots ...**mirror.Object) {
	for _, root := range roots {
		if root != nil && *root != nil {
			visitor.VisitRoot(root)
		}
	}
}
