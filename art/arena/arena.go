// Package arena provides the chunked bump allocator backing transaction
// logs. A process-wide Pool recycles large chunks; each top-level
// transaction owns a Stack that bump-allocates records from them and
// returns every chunk on release, so rollback bookkeeping itself never
// allocates.
package arena

import (
	"os"
	"sync"
)

const (
	// defaultChunkSize is the first chunk acquired by a fresh stack.
	defaultChunkSize = 128 << 10
	// maxChunkSize caps the doubling growth of follow-up chunks.
	maxChunkSize = 4 << 20
	// alignment applies to every allocation.
	alignment = 8
)

// Chunk is one contiguous region handed out by a Pool.
type Chunk struct {
	buf    []byte
	mapped bool
}

// Size returns the chunk capacity in bytes.
func (c *Chunk) Size() int { return len(c.buf) }

// Pool hands out chunks and recycles released ones. Safe for
// concurrent use.
type Pool struct {
	mu        sync.Mutex
	free      []*Chunk
	chunkSize int
}

// NewPool returns an empty pool using the default chunk size.
func NewPool() *Pool { return NewPoolWithChunkSize(defaultChunkSize) }

// NewPoolWithChunkSize returns an empty pool whose fresh chunks hold at
// least size bytes, rounded up to a whole page. A size of zero or less
// selects the default.
func NewPoolWithChunkSize(size int) *Pool {
	if size <= 0 {
		size = defaultChunkSize
	}
	return &Pool{chunkSize: roundUpToPage(size)}
}

// ChunkSize returns the minimum size of freshly mapped chunks.
func (p *Pool) ChunkSize() int { return p.chunkSize }

func roundUpToPage(n int) int {
	page := os.Getpagesize()
	return (n + page - 1) &^ (page - 1)
}

// Acquire returns a chunk of at least minSize bytes, recycling a free
// one when possible.
func (p *Pool) Acquire(minSize int) *Chunk {
	p.mu.Lock()
	for i, c := range p.free {
		if len(c.buf) >= minSize {
			p.free = append(p.free[:i], p.free[i+1:]...)
			p.mu.Unlock()
			return c
		}
	}
	p.mu.Unlock()

	size := roundUpToPage(max(minSize, p.chunkSize))
	buf, mapped := mapChunk(size)
	return &Chunk{buf: buf, mapped: mapped}
}

// Release returns a chunk to the free list.
func (p *Pool) Release(c *Chunk) {
	p.mu.Lock()
	p.free = append(p.free, c)
	p.mu.Unlock()
}

// FreeChunks returns the number of chunks on the free list.
func (p *Pool) FreeChunks() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Trim releases all free chunks back to the OS.
func (p *Pool) Trim() {
	p.mu.Lock()
	free := p.free
	p.free = nil
	p.mu.Unlock()
	for _, c := range free {
		if c.mapped {
			unmapChunk(c.buf)
		}
	}
}

// Stack bump-allocates from pool chunks. Not safe for concurrent use;
// a stack must not be used after Release.
type Stack struct {
	pool      *Pool
	chunks    []*Chunk
	cur       []byte
	nextSize  int
	allocated int
	released  bool
}

// NewStack returns a stack drawing from pool. The first chunk uses the
// pool's chunk size; follow-up chunks double up to a cap.
func NewStack(pool *Pool) *Stack {
	return &Stack{pool: pool, nextSize: pool.ChunkSize()}
}

// Alloc returns a zeroed, 8-byte-aligned slice of n bytes valid until
// the stack is released.
func (s *Stack) Alloc(n int) []byte {
	if s.released {
		panic("arena: Alloc on released stack")
	}
	if n < 0 {
		panic("arena: negative allocation")
	}
	need := (n + alignment - 1) &^ (alignment - 1)
	if need > len(s.cur) {
		s.grow(need)
	}
	b := s.cur[:n:n]
	s.cur = s.cur[need:]
	s.allocated += need
	clear(b)
	return b
}

func (s *Stack) grow(need int) {
	size := s.nextSize
	if size < need {
		size = need
	}
	c := s.pool.Acquire(size)
	s.chunks = append(s.chunks, c)
	s.cur = c.buf
	if s.nextSize < maxChunkSize {
		s.nextSize *= 2
	}
}

// AllocedBytes returns the total bytes handed out, including alignment
// padding.
func (s *Stack) AllocedBytes() int { return s.allocated }

// Release returns every chunk to the pool. The stack is unusable
// afterwards.
func (s *Stack) Release() {
	if s.released {
		return
	}
	s.released = true
	s.cur = nil
	for _, c := range s.chunks {
		s.pool.Release(c)
	}
	s.chunks = nil
}
