//go:build linux || darwin

package framearena

import (
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// mmapedPages tracks which page base addresses came from unix.Mmap, so
// releasePageBytes knows whether it is safe to Munmap (doing so on a
// Go-heap-backed slice would unmap memory the runtime still owns).
var mmapedPages sync.Map // map[uintptr]int (length)

// acquirePageBytes backs large slab pages with an anonymous mmap region on
// platforms where golang.org/x/sys/unix is available, keeping big pool
// pages off the Go heap (and so off the GC's scan list) the way the
// teacher's platform-specific poller files split epoll/kqueue backends
// behind a single portable entry point.
func acquirePageBytes(n uintptr) []byte {
	b, err := unix.Mmap(-1, 0, int(n), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		// Fall back to a GC-managed allocation; slab pages are an
		// optimization, not a correctness requirement.
		return make([]byte, n)
	}
	mmapedPages.Store(uintptr(unsafe.Pointer(unsafe.SliceData(b))), len(b))
	return b
}

// releasePageBytes unmaps a page obtained from acquirePageBytes via mmap,
// and simply drops a page that came from the make() fallback (the GC will
// reclaim it).
func releasePageBytes(b []byte) {
	if len(b) == 0 {
		return
	}
	addr := uintptr(unsafe.Pointer(unsafe.SliceData(b)))
	if _, ok := mmapedPages.LoadAndDelete(addr); ok {
		_ = unix.Munmap(b)
	}
}
