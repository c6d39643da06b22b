package framearena

import (
	"sync"
	"sync/atomic"

	"github.com/joeycumines/goroutineid"
)

// GlobalState is the process-wide state shared by every Local bound to an
// Allocator: the system heap, the slab registry, the scratch registry, the
// budget manager, and the diagnostic hub. Every field here is either
// immutable after New or internally synchronized; Local never touches it
// without going through one of these owners.
type GlobalState struct {
	cfg *config

	heap    *systemHeap
	slabs   *slabRegistry
	scratch *ScratchRegistry
	budget  *budgetManager
	diag    *diagnosticHub

	nextThreadID atomic.Uint64

	statsMu     sync.Mutex
	threadStats map[uint64]*threadStatsSnapshot
}

// Allocator is the handle applications construct once per process (or per
// independently-budgeted subsystem) and share across threads; per-thread
// fast-path state lives in a [Local] obtained via Bind.
type Allocator struct {
	global *GlobalState
}

// New constructs an Allocator, validating and resolving opts over the
// documented defaults.
func New(opts ...Option) (*Allocator, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	if cfg.frameInitialChunk > cfg.frameMaxChunk {
		return nil, newErr(KindPrecondition, CodeConfigInvalid, "frame_initial_chunk must be <= frame_max_chunk", nil)
	}

	heap := newSystemHeap()
	g := &GlobalState{
		cfg:         cfg,
		heap:        heap,
		slabs:       newSlabRegistry(heap),
		scratch:     newScratchRegistry(heap, int(cfg.scratchPoolCap)),
		diag:        newDiagnosticHub(cfg.logger),
		threadStats: map[uint64]*threadStatsSnapshot{},
	}
	g.budget = newBudgetManager(cfg.budgetGlobalHard, cfg.budgetPolicy, cfg.budgetWarningPct, g.diag)
	return &Allocator{global: g}, nil
}

// OnDiagnostic registers fn to receive every Diagnostic the allocator
// emits, after rate limiting.
func (a *Allocator) OnDiagnostic(fn func(Diagnostic)) {
	a.global.diag.subscribe(fn)
}

// Bind creates a new Local bound to the calling goroutine. In StrictMode,
// the allocation, free, frame-lifecycle, phase and checkpoint methods of the
// returned Local assert it is still running on that same goroutine (via
// goroutineid.Get), panicking on mismatch instead of racing thread-confined
// state.
func (a *Allocator) Bind() *Local {
	g := a.global
	threadID := g.nextThreadID.Add(1)

	l := &Local{
		global:   g,
		threadID: threadID,
		arena:    newFrameArena(g.heap, g.cfg.frameInitialChunk, g.cfg.frameMaxChunk, g.cfg.frameRetainedChunks),
		pool:     newLocalPoolCache(g.slabs, g.cfg.poolBatchSize, g.cfg.poolCacheHighWater),
		inbound:  newDeferredQueue(g.cfg.deferredCap, g.cfg.deferredFullPolicy),
		tags:     newTagStack(g.cfg.tagStackMax),
		retained: newRetentionStore(),
		life:     newLifecycle(),
		frame:    budgetCounter{limit: g.cfg.budgetThreadFrame},
		stats:    newLocalStats(),

		statisticsMode: g.cfg.statistics,
		heapThreshold:  g.cfg.heapThreshold,
		deferredMode:   g.cfg.deferredMode,
		deferredIncr:   g.cfg.deferredIncrement,
	}
	if g.cfg.strictMode {
		l.ownerGoroutine = goroutineid.Get()
	}

	g.statsMu.Lock()
	g.threadStats[threadID] = &threadStatsSnapshot{}
	g.statsMu.Unlock()

	return l
}

// Local is per-thread allocator state: the frame arena, pool cache,
// inbound deferred-free queue, tag stack, retention list, and lifecycle
// state machine. A Local must only ever be used from the goroutine that
// called Bind (Go has no OS-level thread-local storage, so this is an
// explicit discipline rather than a language guarantee; StrictMode turns a
// violation into an immediate panic instead of silent data races).
type Local struct {
	global   *GlobalState
	threadID uint64

	arena    *frameArena
	pool     *localPoolCache
	inbound  *deferredQueue
	tags     *tagStack
	retained *retentionStore
	life     *lifecycle

	frame         budgetCounter
	framePromoted []promotedAlloc

	ownerGoroutine int64 // 0 if StrictMode is off
	stats          *localStats

	statisticsMode StatisticsMode
	heapThreshold  uintptr
	deferredMode   DeferredMode
	deferredIncr   int
}

// assertOwnerGoroutine panics if StrictMode is enabled and the calling
// goroutine differs from the one that called Bind.
func (l *Local) assertOwnerGoroutine() {
	if l.ownerGoroutine == 0 {
		return
	}
	if current := goroutineid.Get(); current != l.ownerGoroutine {
		panic(ErrWrongThreadAccess)
	}
}

// strictCheck returns err unchanged unless StrictMode is enabled and err is
// one of the designated precondition sentinels, in which case it panics
// instead of returning, trading a checked error for a fail-fast crash
// suited to CI (spec.md §7).
func (l *Local) strictCheck(err error) error {
	if err == nil || !l.global.cfg.strictMode {
		return err
	}
	switch err {
	case ErrNoActiveFrame, ErrDoubleReceive, ErrWrongThreadReceive, ErrUnbalancedPhase:
		panic(err)
	}
	return err
}

// ThreadID returns the identifier this Local was assigned at Bind, used to
// attribute diagnostics, statistics, and transfer-handle origin checks.
func (l *Local) ThreadID() uint64 { return l.threadID }

// enqueueCrossThreadFree is called by another thread's Local (or a
// TransferHandle's Drop) to route a free back to l, the owning thread. It
// is the only operation on Local safe to call from a non-owning goroutine;
// the deferred queue (C5) is the lock-free MPSC structure that makes that
// safe.
func (l *Local) enqueueCrossThreadFree(rec deferredRecord) error {
	return l.inbound.enqueue(rec)
}

// DrainDeferred processes up to maxCount queued cross-thread frees,
// dispatching each to the pool cache or system heap per its backend
// discriminator and releasing its budget and statistics exactly as a local
// Free does. maxCount <= 0 drains everything currently queued.
func (l *Local) DrainDeferred(maxCount int) int {
	return l.inbound.drain(maxCount, func(rec deferredRecord) {
		_ = l.freeLocal(rec.backend, rec.classIdx, rec.addr, rec.layout)
	})
}
