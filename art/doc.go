// Package art assembles the compile-time Android runtime used while
// ahead-of-time compiling dex code to an image.
//
// # Overview
//
// When the AOT compiler initializes application classes at compile time,
// every side effect of a static initializer is speculative: if the class
// turns out not to be safely initializable, all of its heap mutations,
// intern-table changes and dex-cache resolutions must be undone before
// the image is written. This package wires the pieces that make that
// possible:
//
//   - Runtime: the aggregate owning heap, intern table, class linker,
//     arena pool and the compiler-driver thread
//   - gc.Heap: allocation and boot-image space membership
//   - intern.Table: strong/weak string interning with rollback hooks
//   - linker.AotClassLinker: the transaction stack, constraint checks
//     and the class initialization driver
//   - tx.Transaction: the per-nesting-level rollback log
//   - interp: constraint checker strategies for the interpreter glue
//
// # Usage
//
// A typical compile-one-class loop builds a runtime, registers classes
// and initializes them one by one:
//
//	rt, err := art.NewRuntime(art.Options{PrepareForAborts: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	l := rt.Linker()
//	// ... register dex files and classes ...
//	if err := rt.EnsureInitialized(klass); err != nil {
//	    var abort *linker.AbortError
//	    if errors.As(err, &abort) {
//	        // class stays uninitialized, runtime state was rolled back
//	    }
//	}
//	rt.MakeVisiblyInitialized()
//
// On failure everything the initializer did is rolled back and the
// runtime remains usable for the next class.
//
// # Transactions
//
// Transactions nest: compiling an app image runs each class initializer
// in its own strict transaction, where reading or writing another
// class's statics aborts. Aborts surface as *linker.AbortError; plain
// initializer failures as *linker.InitError. See the tx and linker
// packages for the log and stack mechanics.
//
// # Thread Safety
//
// The runtime models the single-threaded compiler driver. Nothing in
// this package is safe for concurrent mutation; a garbage collector may
// only interleave at the VisitRoots entry point.
package art
