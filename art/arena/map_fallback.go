//go:build !unix

package arena

func mapChunk(size int) ([]byte, bool) {
	return make([]byte, size), false
}

func unmapChunk(buf []byte) {}
