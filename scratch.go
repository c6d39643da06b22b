package framearena

import "sync"

// scratchPool is a named, process-global arena that persists across frame
// resets: its own chunk chain, reset only on explicit Reset, destroyed only
// with its registry.
type scratchPool struct {
	name  string
	arena *frameArena

	mu          sync.Mutex
	outstanding int
}

// Reset clears the pool's arena, requiring no outstanding live allocations
// (ScratchPoolBusy otherwise) rather than silently invalidating references
// held by callers who forgot to drop them.
func (p *scratchPool) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.outstanding != 0 {
		return ErrScratchPoolBusy
	}
	p.arena.reset()
	return nil
}

func (p *scratchPool) allocate(layout Layout) (uintptr, error) {
	addr, err := p.arena.allocate(layout)
	if err != nil {
		return 0, ErrScratchPoolFull
	}
	p.mu.Lock()
	p.outstanding++
	p.mu.Unlock()
	return addr, nil
}

// release decrements the pool's live-allocation counter, permitting Reset
// once it reaches zero. Callers track this via whatever handle type wraps
// a scratch allocation.
func (p *scratchPool) release() {
	p.mu.Lock()
	if p.outstanding > 0 {
		p.outstanding--
	}
	p.mu.Unlock()
}

// ScratchRegistry is the process-global, name-keyed map of scratch pools
// (C6 companion). Pools are created on first reference and live until the
// registry itself is destroyed.
type ScratchRegistry struct {
	heap *systemHeap
	cap  int // scratch_pool_cap: initial chunk size per pool

	mu    sync.Mutex
	pools map[string]*scratchPool
}

func newScratchRegistry(heap *systemHeap, capBytes int) *ScratchRegistry {
	return &ScratchRegistry{heap: heap, cap: capBytes, pools: map[string]*scratchPool{}}
}

// get returns the named pool, creating it on first reference.
func (r *ScratchRegistry) get(name string) (*scratchPool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pools[name]; ok {
		return p, nil
	}
	initial := uintptr(r.cap)
	if initial == 0 {
		initial = 64 * 1024
	}
	p := &scratchPool{name: name, arena: newFrameArena(r.heap, initial, initial*16, 1)}
	r.pools[name] = p
	return p, nil
}

// Destroy releases every pool's chunks back to the heap and clears the
// registry. Not safe to call while pools have outstanding allocations.
func (r *ScratchRegistry) Destroy() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.pools {
		for _, c := range p.arena.chunks {
			r.heap.releasePage(c.data)
		}
	}
	r.pools = map[string]*scratchPool{}
}
