package framearena

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type node struct {
	value int
	next  IndexTableHandle
}

func TestIndexTableInsertGetRemove(t *testing.T) {
	a := newTestAllocator(t)
	l := a.Bind()
	tbl := NewIndexTable[node](l)

	h1, n1, err := tbl.Insert(IntentPool)
	require.NoError(t, err)
	n1.value = 10

	h2, n2, err := tbl.Insert(IntentPool)
	require.NoError(t, err)
	n2.value = 20
	n1.next = h2

	require.Equal(t, 2, tbl.Len())
	require.Equal(t, 10, tbl.Get(h1).value)
	require.Equal(t, h2.index, tbl.Get(h1).next.index)
	require.Equal(t, 20, tbl.Get(h2).value)
}

func TestIndexTableHandlesCycle(t *testing.T) {
	a := newTestAllocator(t)
	l := a.Bind()
	tbl := NewIndexTable[node](l)

	h1, n1, err := tbl.Insert(IntentPool)
	require.NoError(t, err)
	h2, n2, err := tbl.Insert(IntentPool)
	require.NoError(t, err)

	n1.value, n1.next = 1, h2
	n2.value, n2.next = 2, h1

	require.Equal(t, h2.index, tbl.Get(h1).next.index)
	require.Equal(t, h1.index, tbl.Get(h2).next.index)
}

func TestIndexTableRemoveInvalidatesStaleHandle(t *testing.T) {
	a := newTestAllocator(t)
	l := a.Bind()
	tbl := NewIndexTable[node](l)

	h, n, err := tbl.Insert(IntentPool)
	require.NoError(t, err)
	n.value = 5

	require.NoError(t, tbl.Remove(h))
	require.Nil(t, tbl.Get(h))
	require.Zero(t, tbl.Len())

	require.ErrorIs(t, tbl.Remove(h), ErrInvalidHandle)
}

func TestIndexTableRecyclesSlotWithNewGeneration(t *testing.T) {
	a := newTestAllocator(t)
	l := a.Bind()
	tbl := NewIndexTable[node](l)

	h1, _, err := tbl.Insert(IntentPool)
	require.NoError(t, err)
	require.NoError(t, tbl.Remove(h1))

	h2, n2, err := tbl.Insert(IntentPool)
	require.NoError(t, err)
	n2.value = 99

	require.Equal(t, h1.index, h2.index, "the freed slot should be reused")
	require.NotEqual(t, h1.generation, h2.generation)
	require.Nil(t, tbl.Get(h1), "the stale handle must not resolve to the new occupant")
	require.Equal(t, 99, tbl.Get(h2).value)
}
