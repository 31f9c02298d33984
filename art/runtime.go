package art

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/TheXPerienceProject/android-art/art/arena"
	"github.com/TheXPerienceProject/android-art/art/dex"
	"github.com/TheXPerienceProject/android-art/art/gc"
	"github.com/TheXPerienceProject/android-art/art/intern"
	"github.com/TheXPerienceProject/android-art/art/linker"
	"github.com/TheXPerienceProject/android-art/art/mirror"
	"github.com/TheXPerienceProject/android-art/art/thr"
)

// Options configure a Runtime. The zero value is a usable minimal
// configuration: no boot image, no app image, silent logger.
type Options struct {
	// BootImage lists classes that belong to the boot image this
	// compilation extends. They are registered and promoted into a boot
	// image space; the dex caches of their defining dex files marked
	// with MarkBootImage move into the space with them.
	BootImage []*mirror.Class

	// AppImageDexFiles are the dex files whose classes belong to the
	// app image under compilation. A non-empty list selects strict
	// transaction mode for class initialization.
	AppImageDexFiles []*dex.File

	// PrepareForAborts resolves the transaction abort error class at
	// construction. Required before the first transaction is entered;
	// callers that enter transactions themselves may do it later via
	// Linker().PrepareForAborts.
	PrepareForAborts bool

	// Logger receives per-class initialization outcomes at Debug and
	// rollback causes at Warn. Nil discards everything.
	Logger *slog.Logger

	// ArenaChunkSize overrides the transaction log arena's chunk size
	// in bytes. Zero selects the default.
	ArenaChunkSize int
}

// Runtime aggregates the compile-time runtime: the heap, the intern
// table, the AOT class linker with its transaction stack, the arena
// pool backing transaction logs, and the single compiler-driver thread.
// Not safe for concurrent use.
type Runtime struct {
	heap   *gc.Heap
	intern *intern.Table
	linker *linker.AotClassLinker
	pool   *arena.Pool
	thread *thr.Thread
	logger *slog.Logger

	// Strict mode initializes each class under its own transaction with
	// cross-class read/write constraints; selected by app image
	// compilation.
	strict bool
}

// NewRuntime wires a runtime from options.
func NewRuntime(opts Options) (*Runtime, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	pool := arena.NewPoolWithChunkSize(opts.ArenaChunkSize)
	heap := gc.NewHeap()
	table := intern.NewTable()
	l := linker.NewAotClassLinker(heap, table, pool)

	r := &Runtime{
		heap:   heap,
		intern: table,
		linker: l,
		pool:   pool,
		thread: thr.New("compiler-driver"),
		logger: logger,
		strict: len(opts.AppImageDexFiles) > 0,
	}

	if len(opts.BootImage) > 0 {
		residents := make([]*mirror.Object, 0, 2*len(opts.BootImage))
		for _, klass := range opts.BootImage {
			if err := l.RegisterClass(klass); err != nil {
				return nil, fmt.Errorf("art: registering boot image class: %w", err)
			}
			residents = append(residents, &klass.Object)
			if f := klass.DexFile(); f != nil && f.InBootImage() {
				if dc := klass.DexCache(); dc != nil {
					residents = append(residents, &dc.Object)
				}
			}
		}
		heap.AddBootImageSpace(residents...)
	}
	l.SetAppImageDexFiles(opts.AppImageDexFiles)

	if opts.PrepareForAborts {
		if err := l.PrepareForAborts(r.thread); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Heap returns the runtime's heap.
func (r *Runtime) Heap() *gc.Heap { return r.heap }

// InternTable returns the string intern table.
func (r *Runtime) InternTable() *intern.Table { return r.intern }

// Linker returns the AOT class linker.
func (r *Runtime) Linker() *linker.AotClassLinker { return r.linker }

// ArenaPool returns the pool backing transaction log arenas.
func (r *Runtime) ArenaPool() *arena.Pool { return r.pool }

// Thread returns the compiler-driver thread.
func (r *Runtime) Thread() *thr.Thread { return r.thread }

// IsStrictMode reports whether class initialization runs under strict
// per-class transactions.
func (r *Runtime) IsStrictMode() bool { return r.strict }

// EnsureInitialized initializes klass under a transaction, the way the
// compilation driver initializes each class it compiles. On success the
// transaction is exited and the changes stick. On failure or abort the
// whole transaction stack is rolled back, the pending guest exception
// is converted to a *linker.AbortError or *linker.InitError, and the
// runtime stays reusable.
func (r *Runtime) EnsureInitialized(klass *mirror.Class) error {
	if klass.IsInitialized() {
		return nil
	}
	self := r.thread

	var root *mirror.Class
	if r.strict {
		root = klass
	}
	r.linker.EnterTransactionMode(self, r.strict, root)

	success := r.linker.EnsureInitialized(self, klass, true, true)
	if success && !r.linker.IsTransactionAborted() {
		r.linker.ExitTransactionMode()
		r.logger.Debug("class initialized",
			"class", klass.PrettyDescriptor(), "strict", r.strict)
		return nil
	}

	err := linker.ErrorFromPending(self)
	if err == nil {
		r.logger.Error("initialization failed without a pending exception", "class", klass.Descriptor())
		fatalf("initialization of %s failed without a pending exception", klass.Descriptor())
	}
	self.ClearException()
	r.linker.RollbackAllTransactions()
	r.logger.Warn("class initialization rolled back",
		"class", klass.PrettyDescriptor(), "error", err)
	return err
}

// MakeVisiblyInitialized promotes every class that completed
// initialization to the visibly initialized state. The driver calls
// this once at the end of a compilation pass, outside any transaction.
func (r *Runtime) MakeVisiblyInitialized() {
	r.linker.MakeInitializedClassesVisiblyInitialized(r.thread)
}

// VisitRoots offers every runtime root to the visitor: the class table
// and dex caches, strongly interned strings, references held by stacked
// transaction logs, and the thread's pending exception.
func (r *Runtime) VisitRoots(visitor gc.RootVisitor) {
	r.linker.VisitRoots(visitor)
	r.intern.VisitRoots(visitor)
	r.linker.VisitTransactionRoots(visitor)
	r.thread.VisitRoots(visitor)
}

func fatalf(format string, args ...any) {
	panic(fmt.Sprintf("art: "+format, args...))
}
