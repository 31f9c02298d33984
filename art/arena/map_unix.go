//go:build unix

package arena

import "golang.org/x/sys/unix"

// mapChunk obtains size bytes of zeroed, page-aligned memory from an
// anonymous mapping, falling back to the Go heap if the mapping fails.
func mapChunk(size int) ([]byte, bool) {
	buf, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return make([]byte, size), false
	}
	return buf, true
}

func unmapChunk(buf []byte) {
	_ = unix.Munmap(buf)
}
