package framearena

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSystemHeapAllocateFreeRoundTrip(t *testing.T) {
	h := newSystemHeap()
	layout := NewLayout(64, 8)

	block, addr, err := h.allocate(layout)
	require.NoError(t, err)
	require.NotNil(t, block)
	require.NotZero(t, addr)

	live, peak, count := h.snapshot()
	require.Equal(t, uint64(64), live)
	require.Equal(t, uint64(64), peak)
	require.Equal(t, uint64(1), count)

	// the block must still be retained internally, or a GC between
	// allocate and free could reclaim its backing array out from under a
	// live allocation.
	h.mu.Lock()
	_, retained := h.blocks[addr]
	h.mu.Unlock()
	require.True(t, retained)

	h.free(addr, layout)
	live, _, count = h.snapshot()
	require.Zero(t, live)
	require.Zero(t, count)

	h.mu.Lock()
	_, retained = h.blocks[addr]
	h.mu.Unlock()
	require.False(t, retained)
}

func TestSystemHeapPeakTracksMax(t *testing.T) {
	h := newSystemHeap()
	_, addr1, err := h.allocate(NewLayout(128, 8))
	require.NoError(t, err)
	_, _, err = h.allocate(NewLayout(64, 8))
	require.NoError(t, err)

	_, peak, _ := h.snapshot()
	require.Equal(t, uint64(192), peak)

	h.free(addr1, NewLayout(128, 8))
	_, peak, _ = h.snapshot()
	require.Equal(t, uint64(192), peak, "peak must not decrease on free")
}

func TestSystemHeapZeroSizeReturnsNonNullSentinel(t *testing.T) {
	h := newSystemHeap()
	block, addr, err := h.allocate(NewLayout(0, 8))
	require.NoError(t, err)
	require.Nil(t, block)
	require.NotZero(t, addr, "a zero-size allocation must return a non-null sentinel")

	live, _, count := h.snapshot()
	require.Zero(t, live)
	require.Zero(t, count)

	h.free(addr, NewLayout(0, 8))
	live, _, count = h.snapshot()
	require.Zero(t, live)
	require.Zero(t, count)
}

func TestSystemHeapAcquireReleasePage(t *testing.T) {
	h := newSystemHeap()
	page := h.acquirePage(4096)
	require.Len(t, page, 4096)
	h.releasePage(page)
}
