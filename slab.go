package framearena

import "sync"

// slabPageSize is the page size the slab registry requests from the system
// heap when a size class runs dry.
const slabPageSize = 64 * 1024

// slabClass is the C2 slab registry's per-size-class state: a mutex-guarded
// free list refilled from the system heap in pages, amortizing C1 access
// over pool_batch_size-sized batches.
type slabClass struct {
	mu    sync.Mutex
	free  []uintptr // addresses of free slots
	pages [][]byte  // owned pages, kept referenced so the GC can't reclaim them
	size  uintptr   // slot size for this class
}

// slabRegistry holds one slabClass per size class. It serves only requests
// that fit a size class; oversize pool requests are sent to the heap by the
// router (allocatePool), not by the registry.
type slabRegistry struct {
	classes [sizeClassCount]*slabClass
	heap    *systemHeap
}

func newSlabRegistry(heap *systemHeap) *slabRegistry {
	r := &slabRegistry{heap: heap}
	for i, size := range sizeClasses {
		r.classes[i] = &slabClass{size: size}
	}
	return r
}

// refill services a batch refill request for classIdx, growing the class's
// page set if its free list is empty. Returns up to count addresses,
// fewer only if growth itself fails (never expected for the make()-backed
// generic page source).
func (r *slabRegistry) refill(classIdx int, count int) []uintptr {
	c := r.classes[classIdx]
	c.mu.Lock()
	defer c.mu.Unlock()

	for len(c.free) < count {
		page := r.heap.acquirePage(slabPageSize)
		c.pages = append(c.pages, page)
		slots := uintptr(len(page)) / c.size
		base := uintptrOfSlice(page)
		for i := uintptr(0); i < slots; i++ {
			c.free = append(c.free, base+i*c.size)
		}
	}

	n := count
	if n > len(c.free) {
		n = len(c.free)
	}
	out := make([]uintptr, n)
	copy(out, c.free[len(c.free)-n:])
	c.free = c.free[:len(c.free)-n]
	return out
}

// returnBatch accepts reclaimed nodes back into classIdx's free list.
func (r *slabRegistry) returnBatch(classIdx int, nodes []uintptr) {
	c := r.classes[classIdx]
	c.mu.Lock()
	c.free = append(c.free, nodes...)
	c.mu.Unlock()
}

// classByteFootprint returns a rough accounting figure: total bytes held across
// all pages for classIdx, used only by diagnostics (not the hot path).
func (r *slabRegistry) classByteFootprint(classIdx int) uint64 {
	c := r.classes[classIdx]
	c.mu.Lock()
	defer c.mu.Unlock()
	var total uint64
	for _, p := range c.pages {
		total += uint64(len(p))
	}
	return total
}
