package framearena

// chunkGrowthFactor is the multiplier applied on each chunk-exhaustion
// growth step, until frame_max_chunk is reached.
const chunkGrowthFactor = 2

// chunk is a contiguous byte range obtained from C1/C2, with its own bump
// cursor. Chunks are singly chained in allocation order.
type chunk struct {
	data   []byte
	base   uintptr
	cursor uintptr // offset into data, next free byte
}

func newChunk(data []byte) *chunk {
	return &chunk{data: data, base: uintptrOfSlice(data)}
}

func (c *chunk) len() uintptr { return uintptr(len(c.data)) }

// bumpCheckpoint captures enough state to roll an arena back to a prior
// point: which chunk was current, and its cursor at that instant.
type bumpCheckpoint struct {
	chunkIndex int
	cursor     uintptr
}

// frameArena is the C3 per-thread bump allocator: chunked growth, O(1)
// allocation, O(chunks) reset, and nestable checkpoints.
type frameArena struct {
	slabs *slabRegistry // unused directly; chunks come from the heap, not size classes
	heap  *systemHeap

	initialSize  uintptr
	maxSize      uintptr
	retainChunks int

	chunks      []*chunk
	chunkIndex  int // index of the current (bump-target) chunk
	checkpoints []bumpCheckpoint

	highWater uintptr
	used      uintptr
}

func newFrameArena(heap *systemHeap, initialSize, maxSize uintptr, retainChunks int) *frameArena {
	a := &frameArena{
		heap:         heap,
		initialSize:  initialSize,
		maxSize:      maxSize,
		retainChunks: retainChunks,
	}
	a.chunks = append(a.chunks, newChunk(heap.acquirePage(initialSize)))
	return a
}

// allocate bump-allocates layout.Size bytes aligned to layout.Align from the
// current chunk, growing (or chaining a new chunk) on overflow. Returns
// ErrArenaExhausted if no achievable chunk size can satisfy the request.
func (a *frameArena) allocate(layout Layout) (uintptr, error) {
	cur := a.chunks[a.chunkIndex]
	start := alignUp(cur.base+cur.cursor, layout.Align) - cur.base
	if start+layout.Size <= cur.len() {
		cur.cursor = start + layout.Size
		a.used += layout.Size
		if a.used > a.highWater {
			a.highWater = a.used
		}
		return cur.base + start, nil
	}
	if err := a.growAndAdvance(layout); err != nil {
		return 0, err
	}
	return a.allocate(layout)
}

// growAndAdvance appends a new chunk sized to satisfy layout (or the next
// growth step, whichever is larger), capped at maxSize, and makes it
// current. If even a maxSize chunk cannot fit layout, returns
// ErrArenaExhausted.
func (a *frameArena) growAndAdvance(layout Layout) error {
	next := a.chunks[len(a.chunks)-1].len() * chunkGrowthFactor
	if next > a.maxSize {
		next = a.maxSize
	}
	need := layout.Size + layout.Align
	if need > next {
		next = need
	}
	if next > a.maxSize && layout.Size+layout.Align > a.maxSize {
		return ErrArenaExhausted
	}
	page := a.heap.acquirePage(next)
	a.chunks = append(a.chunks, newChunk(page))
	a.chunkIndex = len(a.chunks) - 1
	return nil
}

// checkpoint captures the current position, pushing it onto the checkpoint
// stack (C3 checkpoints nest).
func (a *frameArena) checkpoint() bumpCheckpoint {
	cp := bumpCheckpoint{chunkIndex: a.chunkIndex, cursor: a.chunks[a.chunkIndex].cursor}
	a.checkpoints = append(a.checkpoints, cp)
	return cp
}

// rollbackTo restores the arena to cp, releasing any chunks allocated after
// it back to the heap, and truncates the checkpoint stack above cp.
func (a *frameArena) rollbackTo(cp bumpCheckpoint) {
	for i := len(a.chunks) - 1; i > cp.chunkIndex; i-- {
		a.used -= a.chunks[i].cursor
		a.heap.releasePage(a.chunks[i].data)
	}
	a.chunks = a.chunks[:cp.chunkIndex+1]
	a.used -= a.chunks[cp.chunkIndex].cursor - cp.cursor
	a.chunks[cp.chunkIndex].cursor = cp.cursor
	a.chunkIndex = cp.chunkIndex

	for i := len(a.checkpoints) - 1; i >= 0; i-- {
		if a.checkpoints[i] == cp {
			a.checkpoints = a.checkpoints[:i]
			break
		}
	}
}

// reset invalidates every outstanding pointer: the cursor returns to the
// start of the first chunk, and chunks beyond retainChunks are released to
// the heap. Peak high-water is recorded by the caller before this runs.
func (a *frameArena) reset() {
	keep := a.retainChunks
	if keep < 1 {
		keep = 1
	}
	if keep > len(a.chunks) {
		keep = len(a.chunks)
	}
	for i := keep; i < len(a.chunks); i++ {
		a.heap.releasePage(a.chunks[i].data)
	}
	a.chunks = a.chunks[:keep]
	for _, c := range a.chunks {
		c.cursor = 0
	}
	a.chunkIndex = 0
	a.checkpoints = a.checkpoints[:0]
	a.used = 0
}

func (a *frameArena) stats() (used, highWater uintptr, chunkCount int) {
	return a.used, a.highWater, len(a.chunks)
}
