//go:build !linux && !darwin

package framearena

// acquirePageBytes is the portable fallback: a plain GC-managed allocation.
// Platforms with golang.org/x/sys/unix support get an mmap-backed version;
// see heap_unix.go.
func acquirePageBytes(n uintptr) []byte {
	return make([]byte, n)
}

// releasePageBytes is a no-op on the portable fallback; the slice is
// reclaimed by the garbage collector once unreferenced.
func releasePageBytes(b []byte) {}
