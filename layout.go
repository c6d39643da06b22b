package framearena

import (
	"fmt"
	"unsafe"
)

// Layout describes the size and alignment of an allocation, mirroring a
// Rust-style `Layout` in spirit: everything the backends need to place and
// later free a block.
type Layout struct {
	Size  uintptr
	Align uintptr
}

// NewLayout constructs a Layout, defaulting Align to 8 if zero.
func NewLayout(size, align uintptr) Layout {
	if align == 0 {
		align = 8
	}
	return Layout{Size: size, Align: align}
}

// String implements fmt.Stringer for diagnostics and logs.
func (l Layout) String() string {
	return fmt.Sprintf("Layout{size=%d,align=%d}", l.Size, l.Align)
}

// alignUp rounds p up to the next multiple of align (align must be a power
// of two).
func alignUp(p, align uintptr) uintptr {
	return (p + align - 1) &^ (align - 1)
}

// uintptrOfSlice returns the address of b's backing array, used by the slab
// registry and frame arena to hand out raw offsets into pages they own.
func uintptrOfSlice(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(unsafe.SliceData(b)))
}

// Intent selects which backend an allocation is routed to.
type Intent int

const (
	// IntentFrame routes to the caller's frame arena.
	IntentFrame Intent = iota
	// IntentPool routes to the caller's local pool cache.
	IntentPool
	// IntentHeap routes to the system heap adapter.
	IntentHeap
)

// String returns a human-readable name for the intent.
func (i Intent) String() string {
	switch i {
	case IntentFrame:
		return "frame"
	case IntentPool:
		return "pool"
	case IntentHeap:
		return "heap"
	default:
		return fmt.Sprintf("Intent(%d)", int(i))
	}
}

// Backend identifies the concrete backend an allocation actually landed on,
// which may differ from the requested Intent (e.g. pool allocations above
// heap_threshold spill to the heap).
type Backend uint8

const (
	BackendFrame Backend = iota
	BackendPool
	BackendHeap
	BackendScratch
)

func (b Backend) String() string {
	switch b {
	case BackendFrame:
		return "frame"
	case BackendPool:
		return "pool"
	case BackendHeap:
		return "heap"
	case BackendScratch:
		return "scratch"
	default:
		return fmt.Sprintf("Backend(%d)", int(b))
	}
}

// sizeClasses are powers of two from 8B to 4KiB, 10 classes total, matching
// the default pool_size_classes configuration.
var sizeClasses = [sizeClassCount]uintptr{8, 16, 32, 64, 128, 256, 512, 1024, 2048, 4096}

// sizeClassFor returns the index of the smallest size class that fits size,
// and ok=false if size exceeds the largest class (the caller should spill to
// the heap).
func sizeClassFor(size uintptr) (class int, ok bool) {
	for i, c := range sizeClasses {
		if size <= c {
			return i, true
		}
	}
	return 0, false
}
