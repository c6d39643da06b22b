package framearena

import (
	"sync"
	"sync/atomic"
	"unsafe"
)

// systemHeap is the C1 system heap adapter: size-aware allocate/free from
// the platform allocator, with live-byte tracking under a mutex. Page
// acquisition for the slab registry (C2) also funnels through here.
type systemHeap struct {
	mu        sync.Mutex
	liveBytes uint64
	liveCount uint64
	blocks    map[uintptr]*heapBlock

	peakBytes atomic.Uint64
}

// heapBlock is a live heap allocation tracked for accounting; in debug/leak
// detection contexts this would also carry a tag path, omitted here to keep
// the hot path allocation-free.
type heapBlock struct {
	data []byte
}

func newSystemHeap() *systemHeap {
	return &systemHeap{blocks: map[uintptr]*heapBlock{}}
}

// zeroSizeHeapSentinel is the address returned for every zero-size heap
// allocation: non-null and stable, consuming no live-byte budget, matching
// the frame and pool backends (both of which bottom out at a real, non-null
// address for a zero-size request via their minimum chunk/size-class size).
var zeroSizeHeapSentinel = new(byte)

// allocate returns a zeroed block of at least layout.Size bytes, aligned to
// layout.Align (Go's runtime already aligns slice backing arrays to at
// least 8 bytes; larger alignments over-allocate and return an aligned
// interior pointer).
//
// The block is retained in h.blocks, keyed by the returned address, until
// free is called: a uintptr alone does not keep its referent alive across a
// GC cycle, so without this the backing slice could be collected out from
// under a live allocation.
func (h *systemHeap) allocate(layout Layout) (*heapBlock, uintptr, error) {
	if layout.Size == 0 {
		return nil, uintptr(unsafe.Pointer(zeroSizeHeapSentinel)), nil
	}
	size := layout.Size
	if layout.Align > 8 {
		size += layout.Align
	}
	raw := make([]byte, size)
	addr := uintptr(unsafe.Pointer(unsafe.SliceData(raw)))
	aligned := alignUp(addr, layout.Align)
	block := &heapBlock{data: raw}

	h.mu.Lock()
	h.liveBytes += uint64(layout.Size)
	h.liveCount++
	if h.liveBytes > h.peakBytes.Load() {
		h.peakBytes.Store(h.liveBytes)
	}
	h.blocks[aligned] = block
	h.mu.Unlock()

	return block, aligned, nil
}

// free releases a previously allocated block addressed by addr, decrementing
// live-byte accounting by exactly layout.Size.
func (h *systemHeap) free(addr uintptr, layout Layout) {
	if layout.Size == 0 {
		return
	}
	h.mu.Lock()
	h.liveBytes -= uint64(layout.Size)
	h.liveCount--
	delete(h.blocks, addr)
	h.mu.Unlock()
}

func (h *systemHeap) snapshot() (live, peak, count uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.liveBytes, h.peakBytes.Load(), h.liveCount
}

// acquirePage obtains a raw, slab-registry-owned page of n bytes from the
// heap. Kept as a distinct entry point (rather than reusing allocate) so a
// platform-specific backend (see heap_unix.go) can back large slab pages
// with mmap instead of a Go-GC-managed slice, without touching live-byte
// accounting twice.
func (h *systemHeap) acquirePage(n uintptr) []byte {
	return acquirePageBytes(n)
}

func (h *systemHeap) releasePage(b []byte) {
	releasePageBytes(b)
}
