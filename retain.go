package framearena

import "unsafe"

// PromotionKind selects what happens to a retained frame allocation at
// frame end.
type PromotionKind int

const (
	// Discard lets the arena reset invalidate the memory; no action taken.
	Discard PromotionKind = iota
	// PromoteToPool bitwise-moves the value into a new pool block.
	PromoteToPool
	// PromoteToHeap bitwise-moves the value into a new heap block.
	PromoteToHeap
	// PromoteToScratch bitwise-moves the value into a named scratch pool.
	PromoteToScratch
)

func (k PromotionKind) String() string {
	switch k {
	case Discard:
		return "discard"
	case PromoteToPool:
		return "promote-to-pool"
	case PromoteToHeap:
		return "promote-to-heap"
	case PromoteToScratch:
		return "promote-to-scratch"
	default:
		return "unknown"
	}
}

// RetainPolicy pairs a PromotionKind with the scratch-pool name it needs
// when Kind is PromoteToScratch.
type RetainPolicy struct {
	Kind        PromotionKind
	ScratchName string
}

// DropFunc runs at most once per retained value. On Discard or on promotion
// failure it is invoked during end-of-frame processing so the value can
// release any resources it owns; on successful promotion it is not invoked
// then (ownership moved) and instead runs against the promoted copy when
// the RetainedHandle is dropped.
type DropFunc func(ptr unsafe.Pointer)

// retentionOutcome classifies where a retainedResult ended up after
// end_frame_with_promotions processed it.
type retentionOutcome int

const (
	outcomePending retentionOutcome = iota
	outcomeDiscarded
	outcomePromoted
	outcomeFailed
)

// retainedResult is the mutable cell shared between a retentionStore entry
// and the RetainedHandle the caller holds. process() fills in the final
// address/backend once promotion (or discard/failure) runs; Drop reads it
// back to know what, if anything, needs freeing.
type retainedResult struct {
	addr        uintptr
	layout      Layout
	backend     Backend
	classIdx    int
	scratchPool *scratchPool
	drop        DropFunc
	outcome     retentionOutcome
	dropped     bool
}

// retainedEntry is one frame_retained record awaiting end-of-frame
// disposition.
type retainedEntry struct {
	addr     uintptr
	layout   Layout
	typeName string
	tagPath  string
	policy   RetainPolicy
	result   *retainedResult
}

// RetainedHandle is returned by frame_retained. Before
// end_frame_with_promotions runs, it refers to frame memory (do not read
// through it). After, it refers to whatever backend the entry was promoted
// to (or nothing, if discarded/failed). Drop must be called exactly once
// by the caller; it is safe to call even if the entry was discarded or
// failed, since this handle's own drop invocation is idempotent.
type RetainedHandle struct {
	local  *Local
	result *retainedResult
}

// Drop runs the value's DropFunc if it has not already run (discard and
// failure paths run it during end_frame_with_promotions itself), and
// releases any backing memory a successful promotion allocated.
func (h *RetainedHandle) Drop() {
	r := h.result
	if r.outcome == outcomePromoted && !r.dropped {
		r.dropped = true
		func() {
			defer func() { recover() }()
			if r.drop != nil {
				r.drop(unsafe.Pointer(r.addr))
			}
		}()
		switch r.backend {
		case BackendPool:
			h.local.pool.push(r.classIdx, r.addr)
		case BackendHeap:
			h.local.global.heap.free(r.addr, r.layout)
		case BackendScratch:
			if r.scratchPool != nil {
				r.scratchPool.release()
			}
		}
	}
}

// Outcome reports how the retained entry was ultimately disposed of.
func (h *RetainedHandle) Outcome() string {
	switch h.result.outcome {
	case outcomeDiscarded:
		return "discarded"
	case outcomePromoted:
		return "promoted"
	case outcomeFailed:
		return "failed"
	default:
		return "pending"
	}
}

// PromotionSummary reports the outcome of processing a thread's retention
// list at end_frame_with_promotions.
type PromotionSummary struct {
	DiscardedCount int
	DiscardedBytes uint64

	PromotedPoolCount int
	PromotedPoolBytes uint64

	PromotedHeapCount int
	PromotedHeapBytes uint64

	PromotedScratchCount int
	PromotedScratchBytes uint64

	Failed      int
	FailedBytes uint64
	FailuresByReason map[RetentionFailureReason]int
}

// retentionStore accumulates retainedEntry records for the current frame.
// Cleared at begin_frame.
type retentionStore struct {
	entries []retainedEntry
}

func newRetentionStore() *retentionStore {
	return &retentionStore{}
}

func (s *retentionStore) retain(e retainedEntry) {
	s.entries = append(s.entries, e)
}

func (s *retentionStore) clear() {
	s.entries = s.entries[:0]
}

// process disposes of every retained entry per its policy, moving bytes
// via memmove into the destination backend or invoking drop on discard and
// on failure. Call only while the frame's arena memory is still valid
// (i.e. before frameArena.reset).
func (s *retentionStore) process(l *Local) PromotionSummary {
	summary := PromotionSummary{FailuresByReason: map[RetentionFailureReason]int{}}

	for _, e := range s.entries {
		switch e.policy.Kind {
		case Discard:
			e.result.outcome = outcomeDiscarded
			s.runDrop(e)
			summary.DiscardedCount++
			summary.DiscardedBytes += uint64(e.layout.Size)

		case PromoteToPool:
			if dst, classIdx, err := l.allocatePool(e.layout); err == nil {
				memmove(dst, e.addr, e.layout.Size)
				e.result.addr, e.result.layout, e.result.backend, e.result.classIdx = dst, e.layout, BackendPool, classIdx
				e.result.outcome = outcomePromoted
				summary.PromotedPoolCount++
				summary.PromotedPoolBytes += uint64(e.layout.Size)
			} else {
				s.fail(l, &summary, e, ReasonBudgetExceeded)
			}

		case PromoteToHeap:
			addr, err := l.allocateHeapRaw(e.layout)
			if err == nil {
				memmove(addr, e.addr, e.layout.Size)
				e.result.addr, e.result.layout, e.result.backend = addr, e.layout, BackendHeap
				e.result.outcome = outcomePromoted
				summary.PromotedHeapCount++
				summary.PromotedHeapBytes += uint64(e.layout.Size)
			} else {
				s.fail(l, &summary, e, ReasonAllocatorUnavailable)
			}

		case PromoteToScratch:
			pool, err := l.global.scratch.get(e.policy.ScratchName)
			if err != nil {
				s.fail(l, &summary, e, ReasonScratchPoolFull)
				continue
			}
			addr, err := pool.allocate(e.layout)
			if err != nil {
				s.fail(l, &summary, e, ReasonScratchPoolFull)
				continue
			}
			memmove(addr, e.addr, e.layout.Size)
			e.result.addr, e.result.layout, e.result.backend = addr, e.layout, BackendScratch
			e.result.scratchPool = pool
			e.result.outcome = outcomePromoted
			summary.PromotedScratchCount++
			summary.PromotedScratchBytes += uint64(e.layout.Size)
		}
	}

	s.clear()
	return summary
}

// fail records a per-entry promotion failure, running its DropFunc (the
// caller never gets a handle to a live promoted address on this path), and
// emits a diagnostic carrying the same message retentionFailure would
// attach to an *AllocError for the same reason.
func (s *retentionStore) fail(l *Local, summary *PromotionSummary, e retainedEntry, reason RetentionFailureReason) {
	e.result.outcome = outcomeFailed
	s.runDrop(e)
	summary.Failed++
	summary.FailedBytes += uint64(e.layout.Size)
	summary.FailuresByReason[reason]++

	l.global.diag.emit(Diagnostic{
		Code: CodeRetentionFailed, Severity: SeverityWarning, TagPath: e.tagPath,
		FrameNumber: l.life.currentFrame(), ThreadID: l.threadID,
		Message: retentionFailure(reason, e.typeName).Error(),
	})
}

func (s *retentionStore) runDrop(e retainedEntry) {
	e.result.dropped = true
	if e.result.drop == nil {
		return
	}
	defer func() { recover() }()
	e.result.drop(unsafe.Pointer(e.addr))
}

// memmove copies n bytes from src to dst. Both addresses must point to
// live, non-overlapping allocations of at least n bytes.
func memmove(dst, src uintptr, n uintptr) {
	d := unsafe.Slice((*byte)(unsafe.Pointer(dst)), n)
	s := unsafe.Slice((*byte)(unsafe.Pointer(src)), n)
	copy(d, s)
}
