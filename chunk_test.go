package framearena

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrameArenaGrowAndAdvanceDoublesChunkSize(t *testing.T) {
	h := newSystemHeap()
	a := newFrameArena(h, 64, 4096, 1)

	// first chunk is 64 bytes; allocate past it to force growth.
	_, err := a.allocate(NewLayout(32, 8))
	require.NoError(t, err)
	_, err = a.allocate(NewLayout(40, 8))
	require.NoError(t, err)

	require.Len(t, a.chunks, 2)
	require.Equal(t, uintptr(128), a.chunks[1].len())
}

func TestFrameArenaRollbackReleasesGrownChunks(t *testing.T) {
	h := newSystemHeap()
	a := newFrameArena(h, 64, 4096, 1)

	cp := a.checkpoint()
	_, err := a.allocate(NewLayout(32, 8))
	require.NoError(t, err)
	_, err = a.allocate(NewLayout(60, 8)) // forces a second chunk
	require.NoError(t, err)
	require.Len(t, a.chunks, 2)

	a.rollbackTo(cp)
	require.Len(t, a.chunks, 1)
	used, _, chunkCount := a.stats()
	require.Zero(t, used)
	require.Equal(t, 1, chunkCount)
}

func TestFrameArenaResetRetainsConfiguredChunks(t *testing.T) {
	h := newSystemHeap()
	a := newFrameArena(h, 64, 4096, 2)

	_, err := a.allocate(NewLayout(32, 8))
	require.NoError(t, err)
	_, err = a.allocate(NewLayout(60, 8))
	require.NoError(t, err)
	_, err = a.allocate(NewLayout(200, 8))
	require.NoError(t, err)
	require.Len(t, a.chunks, 3)

	a.reset()
	require.Len(t, a.chunks, 2, "retainChunks=2 should keep the first two chunks")
	for _, c := range a.chunks {
		require.Zero(t, c.cursor)
	}
	used, _, _ := a.stats()
	require.Zero(t, used)
}

func TestFrameArenaExhaustedWhenLayoutExceedsMaxChunk(t *testing.T) {
	h := newSystemHeap()
	a := newFrameArena(h, 64, 128, 1)

	_, err := a.allocate(NewLayout(256, 8))
	require.ErrorIs(t, err, ErrArenaExhausted)
}

func TestFrameArenaHighWaterTracksPeakUsage(t *testing.T) {
	h := newSystemHeap()
	a := newFrameArena(h, 256, 4096, 1)

	_, err := a.allocate(NewLayout(100, 8))
	require.NoError(t, err)
	cp := a.checkpoint()
	_, err = a.allocate(NewLayout(50, 8))
	require.NoError(t, err)
	a.rollbackTo(cp)

	_, highWater, _ := a.stats()
	require.Equal(t, uintptr(150), highWater)
}
