// Package framearena provides an intent-driven memory allocator for
// soft-real-time applications (game engines, simulations, renderers).
//
// Every allocation request is routed to one of three backends chosen by the
// caller's declared intent:
//
//   - Frame: a per-thread bump arena, reset at frame boundaries.
//   - Pool: a per-thread size-classed free-list cache, refilled in batches
//     from a global slab registry.
//   - Heap: the system allocator, with live-byte bookkeeping.
//
// These backends are coordinated by a frame lifecycle (begin/end, phases,
// checkpoints, retention/promotion across reset), per-thread budgets, a
// lock-free cross-thread deferred-free queue, explicit cross-thread transfer
// handles, and a multi-thread frame barrier.
//
// # Architecture
//
// [Allocator] is the shared handle; [Local] is the per-thread state obtained
// via [Allocator.Bind]. The hot paths ([Local.FrameAlloc], [Local.PoolAlloc])
// never take a process-wide lock: the frame arena is exclusive to its owning
// [Local], and the pool cache only touches the slab registry's mutex on a
// batch refill miss. [Local] must not be used concurrently from more than one
// goroutine; see "Thread Safety" below.
//
// # Frame Lifecycle
//
//	local.BeginFrame()
//	p, _ := local.FrameAlloc(layout)        // valid only until EndFrame
//	h, _ := local.FrameRetained(layout, "Particle", dropParticle, RetainPolicy{Kind: PromoteToPool})
//	summary, _ := local.EndFrameWithPromotions() // h now refers to pool memory
//
// # Thread Safety
//
// Go has no goroutine-local storage, so confinement is by convention and
// caller discipline: a [Local] is created by [Allocator.Bind] on the
// goroutine that will use it, and must never be shared across goroutines
// without an explicit [TransferHandle]. In [WithStrictMode], the
// allocation, free, frame-lifecycle, phase and checkpoint methods of [Local]
// assert the calling goroutine's ID has not changed since Bind, turning an
// accidental cross-goroutine use into a panic with [ErrWrongThreadAccess]
// instead of silent data corruption. Other methods (e.g. [Local.WithTag],
// [Local.DrainDeferred]) do not check the goroutine.
//
// Pool and heap allocations are ordinary owned pointers: they remain valid
// until freed or transferred. Frame allocations are invalid the instant
// EndFrame returns.
//
// # Diagnostics and statistics
//
// Budget events (new peak, soft threshold, hard limit) and retention
// failures emit a [Diagnostic] with a stable code ([Diagnostic.Code]),
// routed through the package's [Logger] (see [SetStructuredLogger]); other
// failures are reported only through the returned error. Point-in-time
// [Snapshot]s are assembled at frame end on request.
package framearena
