package framearena

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalPoolCachePopRefillsFromSlabRegistry(t *testing.T) {
	h := newSystemHeap()
	slabs := newSlabRegistry(h)
	p := newLocalPoolCache(slabs, 8, 0)

	addr, err := p.pop(0)
	require.NoError(t, err)
	require.NotZero(t, addr)
	// the batch refill (8) minus the one popped leaves 7 cached.
	require.Equal(t, 7, p.cachedCount(0))
}

func TestLocalPoolCachePushReturnsSurplusAboveHighWater(t *testing.T) {
	h := newSystemHeap()
	slabs := newSlabRegistry(h)
	p := newLocalPoolCache(slabs, 8, 4)

	var addrs []uintptr
	for i := 0; i < 4; i++ {
		addr, err := p.pop(0)
		require.NoError(t, err)
		addrs = append(addrs, addr)
	}
	for _, addr := range addrs {
		p.push(0, addr)
	}
	require.LessOrEqual(t, p.cachedCount(0), 4)

	// pushing well past highWater triggers surplus eviction back to the
	// registry rather than unbounded per-thread growth.
	for i := 0; i < 10; i++ {
		p.push(0, uintptr(1000+i*8))
	}
	require.LessOrEqual(t, p.cachedCount(0), 4)
}

func TestLocalPoolCachePopFreshClassGetsDistinctAddresses(t *testing.T) {
	h := newSystemHeap()
	slabs := newSlabRegistry(h)
	p := newLocalPoolCache(slabs, 4, 0)

	seen := map[uintptr]bool{}
	for i := 0; i < 4; i++ {
		addr, err := p.pop(2)
		require.NoError(t, err)
		require.False(t, seen[addr], "addresses from one batch must be distinct")
		seen[addr] = true
	}
}
