package framearena

// AllocHandle is the owned result of pool_alloc/heap_alloc/alloc_for_transfer:
// an address plus enough bookkeeping to free it, whether Free is called by
// the owning thread or, after being sent elsewhere, by another.
type AllocHandle struct {
	addr     uintptr
	layout   Layout
	backend  Backend
	classIdx int
	owner    *Local
	freed    bool
}

// Addr returns the raw address for constructing a typed pointer via
// unsafe.Pointer, e.g. (*MyType)(unsafe.Pointer(h.Addr())).
func (h *AllocHandle) Addr() uintptr { return h.addr }

// allocateRaw performs the actual backend dispatch for pool/heap intents,
// shared by PoolAlloc, HeapAlloc, and CreateTransfer.
func (l *Local) allocateRaw(intent Intent, layout Layout) (uintptr, Backend, int, error) {
	l.assertOwnerGoroutine()
	l.maybeDrainDeferred()

	switch intent {
	case IntentPool:
		if layout.Size > l.heapThreshold {
			addr, err := l.allocateHeapRaw(layout)
			return addr, BackendHeap, -1, err
		}
		return l.allocatePool(layout)
	case IntentHeap:
		addr, err := l.allocateHeapRaw(layout)
		return addr, BackendHeap, -1, err
	default:
		return 0, 0, -1, newErr(KindPrecondition, CodeConfigInvalid, "allocateRaw does not accept IntentFrame", nil)
	}
}

// allocatePool services a pool-intent request against the thread's local
// cache, applying the budget manager and C13 counters under the current
// tag path. Pool allocations are charged only to the global counter, not
// the thread's frame scope (frame, pool, and heap are distinct budget
// scopes; SetThreadFrameBudget must not constrain pool allocations).
func (l *Local) allocatePool(layout Layout) (uintptr, int, error) {
	classIdx, ok := sizeClassFor(layout.Size)
	if !ok {
		addr, err := l.allocateHeapRaw(layout)
		return addr, -1, err
	}
	size := sizeClasses[classIdx]
	if _, err := l.global.budget.reserve(nil, uint64(size), l.threadID, l.life.currentFrame(), l.tags.currentPath()); err != nil {
		return 0, classIdx, err
	}
	addr, err := l.pool.pop(classIdx)
	if err != nil {
		l.global.budget.release(nil, uint64(size))
		return 0, classIdx, err
	}
	if l.statisticsMode == StatisticsFull {
		l.stats.recordAlloc(BackendPool, l.tags.currentPath(), uint64(size))
	}
	return addr, classIdx, nil
}

func (l *Local) allocateHeapRaw(layout Layout) (uintptr, error) {
	if _, err := l.global.budget.reserve(nil, uint64(layout.Size), l.threadID, l.life.currentFrame(), l.tags.currentPath()); err != nil {
		return 0, err
	}
	_, addr, err := l.global.heap.allocate(layout)
	if err != nil {
		l.global.budget.release(nil, uint64(layout.Size))
		return 0, err
	}
	if l.statisticsMode == StatisticsFull {
		l.stats.recordAlloc(BackendHeap, l.tags.currentPath(), uint64(layout.Size))
	}
	return addr, nil
}

// promotedAlloc records a FrameAlloc request that was promoted to the heap
// under BudgetPolicy=Promote, so it can be freed at the matching EndFrame
// instead of leaking until the thread is dropped: callers only ever see
// FrameAlloc's normal "valid until EndFrame" contract, regardless of which
// backend actually served the request.
type promotedAlloc struct {
	addr   uintptr
	layout Layout
}

// FrameAlloc bump-allocates layout from the thread's frame arena. Requires
// an active frame; the returned address is invalid after the current
// end_frame. Under BudgetPolicy=Promote, a request that exceeds the
// thread's frame budget (while the global budget still has room) is
// transparently served from the heap instead of failing, and freed
// automatically at the next EndFrame/EndFrameWithPromotions.
func (l *Local) FrameAlloc(layout Layout) (uintptr, error) {
	l.assertOwnerGoroutine()
	if err := l.life.requireInFrame(); err != nil {
		return 0, l.strictCheck(err)
	}
	promote, err := l.global.budget.reserve(&l.frame, uint64(layout.Size), l.threadID, l.life.currentFrame(), l.tags.currentPath())
	if err != nil {
		if !promote {
			return 0, err
		}
		addr, herr := l.allocateHeapRaw(layout)
		if herr != nil {
			return 0, herr
		}
		l.framePromoted = append(l.framePromoted, promotedAlloc{addr: addr, layout: layout})
		return addr, nil
	}
	addr, err := l.arena.allocate(layout)
	if err != nil {
		l.global.budget.release(&l.frame, uint64(layout.Size))
		return 0, err
	}
	if l.statisticsMode == StatisticsFull {
		l.stats.recordAlloc(BackendFrame, l.tags.currentPath(), uint64(layout.Size))
	}
	l.maybeDrainDeferred()
	return addr, nil
}

// freeFramePromoted releases every frame allocation this frame served from
// the heap under BudgetPolicy=Promote, mirroring the bump arena's own reset.
func (l *Local) freeFramePromoted() {
	for _, p := range l.framePromoted {
		l.global.heap.free(p.addr, p.layout)
		l.global.budget.release(nil, uint64(p.layout.Size))
		if l.statisticsMode == StatisticsFull {
			l.stats.recordFree(BackendHeap, l.tags.currentPath(), uint64(p.layout.Size))
		}
	}
	l.framePromoted = l.framePromoted[:0]
}

// FrameAllocBatch allocates n contiguous slots of layout from the frame
// arena as a single compound allocation (chosen resolution of the "array
// of independent slots vs. one compound allocation" ambiguity: accounting
// treats the batch as one allocation of n*layout.Size bytes, and callers
// index into it by stride).
func (l *Local) FrameAllocBatch(layout Layout, n int) (uintptr, error) {
	if n <= 0 {
		return 0, newErr(KindPrecondition, CodeConfigInvalid, "frame_alloc_batch count must be >= 1", nil)
	}
	stride := alignUp(layout.Size, layout.Align)
	return l.FrameAlloc(Layout{Size: stride * uintptr(n), Align: layout.Align})
}

// FrameRetained allocates layout from the frame arena and registers it for
// end-of-frame disposition per policy, returning a handle the caller must
// eventually Drop exactly once.
func (l *Local) FrameRetained(layout Layout, typeName string, drop DropFunc, policy RetainPolicy) (*RetainedHandle, error) {
	addr, err := l.FrameAlloc(layout)
	if err != nil {
		return nil, err
	}
	result := &retainedResult{drop: drop}
	l.retained.retain(retainedEntry{
		addr: addr, layout: layout, typeName: typeName,
		tagPath: l.tags.currentPath(), policy: policy, result: result,
	})
	return &RetainedHandle{local: l, result: result}, nil
}

// PoolAlloc allocates layout from the thread's pool cache (spilling to the
// heap above heap_threshold), returning an owned handle.
func (l *Local) PoolAlloc(layout Layout) (*AllocHandle, error) {
	addr, backend, classIdx, err := l.allocateRaw(IntentPool, layout)
	if err != nil {
		return nil, err
	}
	return &AllocHandle{addr: addr, layout: layout, backend: backend, classIdx: classIdx, owner: l}, nil
}

// HeapAlloc allocates layout directly from the system heap, returning an
// owned handle.
func (l *Local) HeapAlloc(layout Layout) (*AllocHandle, error) {
	addr, backend, classIdx, err := l.allocateRaw(IntentHeap, layout)
	if err != nil {
		return nil, err
	}
	return &AllocHandle{addr: addr, layout: layout, backend: backend, classIdx: classIdx, owner: l}, nil
}

// Free releases h. If the calling Local is h's owner, the free happens
// immediately (pool push or heap free); otherwise it is routed through the
// owner's deferred-free queue (C5), since only the owner may touch its own
// pool cache.
func (l *Local) Free(h *AllocHandle) error {
	if h.freed {
		return nil
	}
	h.freed = true
	if h.owner.threadID == l.threadID {
		l.assertOwnerGoroutine()
		return l.freeLocal(h.backend, h.classIdx, h.addr, h.layout)
	}
	return h.owner.enqueueCrossThreadFree(deferredRecord{
		addr: h.addr, layout: h.layout, backend: h.backend, classIdx: h.classIdx,
	})
}

func (l *Local) freeLocal(backend Backend, classIdx int, addr uintptr, layout Layout) error {
	switch backend {
	case BackendPool:
		l.pool.push(classIdx, addr)
		l.global.budget.release(nil, uint64(sizeClasses[classIdx]))
		if l.statisticsMode == StatisticsFull {
			l.stats.recordFree(BackendPool, l.tags.currentPath(), uint64(sizeClasses[classIdx]))
		}
	case BackendHeap:
		l.global.heap.free(addr, layout)
		l.global.budget.release(nil, uint64(layout.Size))
		if l.statisticsMode == StatisticsFull {
			l.stats.recordFree(BackendHeap, l.tags.currentPath(), uint64(layout.Size))
		}
	default:
		return newErr(KindPrecondition, CodeInvalidHandle, "free called with an unsupported backend", nil)
	}
	return nil
}

// maybeDrainDeferred implements deferred_mode: Automatic drains up to
// deferredIncrement entries on every allocation, Incremental(K) drains up
// to K, Explicit does nothing here (caller must call DrainDeferred).
func (l *Local) maybeDrainDeferred() {
	switch l.deferredMode {
	case DeferredAutomatic, DeferredIncremental:
		n := l.DrainDeferred(l.deferredIncr)
		l.stats.deferredProcessedThisFrame += n
	case DeferredExplicit:
	}
}

// BeginFrame transitions Idle -> InFrame, clearing the retention list and
// phase/checkpoint stacks.
func (l *Local) BeginFrame() (uint64, error) {
	l.assertOwnerGoroutine()
	n, err := l.life.beginFrame()
	if err != nil {
		return 0, err
	}
	l.retained.clear()
	return n, nil
}

// EndFrame drains C5 up to deferredIncrement, discards all retained
// entries (no promotion processing), resets the arena, publishes
// statistics, and transitions to Idle.
func (l *Local) EndFrame() error {
	l.assertOwnerGoroutine()
	if l.life.phaseDepth() != 0 {
		return l.strictCheck(ErrUnbalancedPhase)
	}
	l.DrainDeferred(l.deferredIncr)
	for _, e := range l.retained.entries {
		e.result.outcome = outcomeDiscarded
		l.retained.runDrop(e)
	}
	l.retained.clear()
	l.arena.reset()
	l.freeFramePromoted()
	l.publishStats()
	return l.life.endFrame()
}

// EndFrameWithPromotions is EndFrame, but processes the retention list per
// each entry's policy (§4.6) instead of discarding everything, returning
// the resulting PromotionSummary.
func (l *Local) EndFrameWithPromotions() (PromotionSummary, error) {
	l.assertOwnerGoroutine()
	if l.life.phaseDepth() != 0 {
		return PromotionSummary{}, l.strictCheck(ErrUnbalancedPhase)
	}
	l.DrainDeferred(l.deferredIncr)
	summary := l.retained.process(l)
	l.stats.lastPromotions = summary
	l.arena.reset()
	l.freeFramePromoted()
	l.publishStats()
	return summary, l.life.endFrame()
}

// BeginPhase pushes name onto the frame's phase stack.
func (l *Local) BeginPhase(name Tag) error {
	l.assertOwnerGoroutine()
	return l.strictCheck(l.life.beginPhase(name))
}

// EndPhase pops the most recently begun phase.
func (l *Local) EndPhase() error {
	l.assertOwnerGoroutine()
	return l.strictCheck(l.life.endPhase())
}

// Checkpoint captures the arena's current position for a later RollbackTo.
func (l *Local) Checkpoint() (bumpCheckpoint, error) {
	l.assertOwnerGoroutine()
	if err := l.life.requireInFrame(); err != nil {
		return bumpCheckpoint{}, l.strictCheck(err)
	}
	return l.arena.checkpoint(), nil
}

// RollbackTo restores the arena to a previously captured checkpoint,
// invalidating every allocation made since.
func (l *Local) RollbackTo(cp bumpCheckpoint) error {
	l.assertOwnerGoroutine()
	if err := l.life.requireInFrame(); err != nil {
		return l.strictCheck(err)
	}
	l.arena.rollbackTo(cp)
	return nil
}

// ScratchPool returns the named, process-global scratch pool, creating it
// on first reference.
func (l *Local) ScratchPool(name string) (*scratchPool, error) {
	return l.global.scratch.get(name)
}

// SetThreadFrameBudget overrides this thread's frame budget limit in
// bytes; zero means unlimited.
func (l *Local) SetThreadFrameBudget(bytes uint64) {
	l.frame.limit = bytes
}

// ConfigureDeferred changes this thread's deferred-free drain mode at
// runtime.
func (l *Local) ConfigureDeferred(mode DeferredMode, increment int) {
	l.deferredMode = mode
	if mode == DeferredIncremental && increment > 0 {
		l.deferredIncr = increment
	}
}
