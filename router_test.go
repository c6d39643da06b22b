package framearena

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func newTestAllocator(t *testing.T, opts ...Option) *Allocator {
	t.Helper()
	a, err := New(opts...)
	require.NoError(t, err)
	return a
}

func TestFrameAllocLifecycle(t *testing.T) {
	a := newTestAllocator(t, WithFrameChunkSizes(256, 1024))
	l := a.Bind()

	_, err := l.FrameAlloc(NewLayout(8, 8))
	require.ErrorIs(t, err, ErrNoActiveFrame)

	frame, err := l.BeginFrame()
	require.NoError(t, err)
	require.Equal(t, uint64(1), frame)

	p1, err := l.FrameAlloc(NewLayout(16, 8))
	require.NoError(t, err)
	require.NotZero(t, p1)

	p2, err := l.FrameAlloc(NewLayout(16, 8))
	require.NoError(t, err)
	require.Greater(t, p2, p1)

	require.NoError(t, l.EndFrame())

	_, err = l.Checkpoint()
	require.ErrorIs(t, err, ErrNoActiveFrame)

	frame2, err := l.BeginFrame()
	require.NoError(t, err)
	require.Equal(t, uint64(2), frame2)
}

func TestFrameAllocGrowsAcrossChunks(t *testing.T) {
	a := newTestAllocator(t, WithFrameChunkSizes(64, 4096))
	l := a.Bind()
	_, err := l.BeginFrame()
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		_, err := l.FrameAlloc(NewLayout(32, 8))
		require.NoError(t, err)
	}
	used, high, chunks := l.arena.stats()
	require.Greater(t, chunks, 1)
	require.GreaterOrEqual(t, high, used)
}

func TestFrameAllocExhaustedBeyondMaxChunk(t *testing.T) {
	a := newTestAllocator(t, WithFrameChunkSizes(64, 128))
	l := a.Bind()
	_, err := l.BeginFrame()
	require.NoError(t, err)

	_, err = l.FrameAlloc(NewLayout(4096, 8))
	require.ErrorIs(t, err, ErrArenaExhausted)
}

func TestCheckpointRollback(t *testing.T) {
	a := newTestAllocator(t, WithFrameChunkSizes(4096, 4096))
	l := a.Bind()
	_, err := l.BeginFrame()
	require.NoError(t, err)

	_, err = l.FrameAlloc(NewLayout(64, 8))
	require.NoError(t, err)
	cp, err := l.Checkpoint()
	require.NoError(t, err)

	before, _, _ := l.arena.stats()
	_, err = l.FrameAlloc(NewLayout(128, 8))
	require.NoError(t, err)

	require.NoError(t, l.RollbackTo(cp))
	after, _, _ := l.arena.stats()
	require.Equal(t, before, after)
}

func TestPoolAllocFreeRoundTrip(t *testing.T) {
	a := newTestAllocator(t, WithPoolBatchSize(4), WithPoolCacheHighWater(8))
	l := a.Bind()

	h, err := l.PoolAlloc(NewLayout(32, 8))
	require.NoError(t, err)
	require.Equal(t, BackendPool, h.backend)

	require.NoError(t, l.Free(h))
	require.NoError(t, l.Free(h)) // idempotent double-free is a no-op
}

func TestPoolAllocSpillsToHeapAboveThreshold(t *testing.T) {
	a := newTestAllocator(t, WithHeapThreshold(64))
	l := a.Bind()

	h, err := l.PoolAlloc(NewLayout(128, 8))
	require.NoError(t, err)
	require.Equal(t, BackendHeap, h.backend)
	require.NoError(t, l.Free(h))
}

func TestFrameAllocBatchIsOneCompoundAllocation(t *testing.T) {
	a := newTestAllocator(t, WithFrameChunkSizes(4096, 4096))
	l := a.Bind()
	_, err := l.BeginFrame()
	require.NoError(t, err)

	before, _, _ := l.arena.stats()
	_, err = l.FrameAllocBatch(NewLayout(16, 8), 10)
	require.NoError(t, err)
	after, _, _ := l.arena.stats()
	require.Equal(t, uintptr(160), after-before)
}

func TestCrossThreadFreeIsDeferred(t *testing.T) {
	a := newTestAllocator(t)
	owner := a.Bind()
	other := a.Bind()

	h, err := owner.PoolAlloc(NewLayout(16, 8))
	require.NoError(t, err)

	require.NoError(t, other.Free(h))
	require.Equal(t, 1, owner.inbound.length())

	n := owner.DrainDeferred(0)
	require.Equal(t, 1, n)
	require.Equal(t, 0, owner.inbound.length())
}

func TestFrameRetainedDiscardByDefault(t *testing.T) {
	a := newTestAllocator(t)
	l := a.Bind()
	_, err := l.BeginFrame()
	require.NoError(t, err)

	var dropped bool
	_, err = l.FrameRetained(NewLayout(8, 8), "Counter", func(unsafe.Pointer) { dropped = true }, RetainPolicy{Kind: Discard})
	require.NoError(t, err)

	require.NoError(t, l.EndFrame())
	require.True(t, dropped)
}

func TestFrameRetainedPromoteToPool(t *testing.T) {
	a := newTestAllocator(t)
	l := a.Bind()
	_, err := l.BeginFrame()
	require.NoError(t, err)

	type particle struct{ x, y float32 }
	layout := NewLayout(unsafe.Sizeof(particle{}), unsafe.Alignof(particle{}))

	h, err := l.FrameRetained(layout, "Particle", nil, RetainPolicy{Kind: PromoteToPool})
	require.NoError(t, err)

	summary, err := l.EndFrameWithPromotions()
	require.NoError(t, err)
	require.Equal(t, 1, summary.PromotedPoolCount)
	require.Equal(t, "promoted", h.Outcome())

	h.Drop()
	h.Drop() // idempotent
}

func TestEndFrameRejectsUnbalancedPhase(t *testing.T) {
	a := newTestAllocator(t)
	l := a.Bind()
	_, err := l.BeginFrame()
	require.NoError(t, err)
	require.NoError(t, l.BeginPhase("update"))

	err = l.EndFrame()
	require.ErrorIs(t, err, ErrUnbalancedPhase)

	require.NoError(t, l.EndPhase())
	require.NoError(t, l.EndFrame())
}

func TestSetThreadFrameBudgetDoesNotConstrainPoolAlloc(t *testing.T) {
	a := newTestAllocator(t)
	l := a.Bind()
	l.SetThreadFrameBudget(1)

	h, err := l.PoolAlloc(NewLayout(32, 8))
	require.NoError(t, err)
	require.Equal(t, BackendPool, h.backend)
	require.NoError(t, l.Free(h))
}

func TestFrameAllocPromotesToHeapUnderFrameBudgetPressure(t *testing.T) {
	a := newTestAllocator(t, WithBudgetPolicy(BudgetPromote), WithFrameChunkSizes(4096, 4096))
	l := a.Bind()
	l.SetThreadFrameBudget(16)
	_, err := l.BeginFrame()
	require.NoError(t, err)

	p, err := l.FrameAlloc(NewLayout(64, 8))
	require.NoError(t, err)
	require.NotZero(t, p)
	require.Len(t, l.framePromoted, 1)

	liveBefore, _, _ := l.global.heap.snapshot()
	require.Greater(t, liveBefore, uint64(0))

	require.NoError(t, l.EndFrame())
	liveAfter, _, _ := l.global.heap.snapshot()
	require.Zero(t, liveAfter, "the promoted heap block must be freed at EndFrame")
}

func TestFrameAllocFailsWhenGlobalBudgetAlsoOverUnderPromote(t *testing.T) {
	a := newTestAllocator(t, WithBudgetPolicy(BudgetPromote), WithGlobalHardBudget(8), WithFrameChunkSizes(4096, 4096))
	l := a.Bind()
	l.SetThreadFrameBudget(1)
	_, err := l.BeginFrame()
	require.NoError(t, err)

	_, err = l.FrameAlloc(NewLayout(64, 8))
	require.ErrorIs(t, err, ErrHardLimitExceeded)
}

func TestFrameRetainedPromoteToScratchReleasesOnDrop(t *testing.T) {
	a := newTestAllocator(t)
	l := a.Bind()
	_, err := l.BeginFrame()
	require.NoError(t, err)

	layout := NewLayout(16, 8)
	h, err := l.FrameRetained(layout, "Effect", nil, RetainPolicy{Kind: PromoteToScratch, ScratchName: "fx"})
	require.NoError(t, err)

	summary, err := l.EndFrameWithPromotions()
	require.NoError(t, err)
	require.Equal(t, 1, summary.PromotedScratchCount)
	require.Equal(t, "promoted", h.Outcome())

	pool, err := l.ScratchPool("fx")
	require.NoError(t, err)
	require.ErrorIs(t, pool.Reset(), ErrScratchPoolBusy)

	h.Drop()
	require.NoError(t, pool.Reset(), "Drop must release the scratch pool's outstanding count")
}

func TestHeapAllocZeroSizeReturnsNonNullSentinel(t *testing.T) {
	a := newTestAllocator(t)
	l := a.Bind()

	h, err := l.HeapAlloc(NewLayout(0, 8))
	require.NoError(t, err)
	require.NotZero(t, h.Addr())

	live, _, _ := l.global.heap.snapshot()
	require.Zero(t, live, "a zero-size allocation must not consume live-byte budget")

	require.NoError(t, l.Free(h))
}

func TestScratchPoolResetRequiresNoOutstanding(t *testing.T) {
	a := newTestAllocator(t)
	l := a.Bind()

	pool, err := l.ScratchPool("level1")
	require.NoError(t, err)

	_, err = pool.allocate(NewLayout(16, 8))
	require.NoError(t, err)

	require.ErrorIs(t, pool.Reset(), ErrScratchPoolBusy)

	pool.release()
	require.NoError(t, pool.Reset())
}
