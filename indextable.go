package framearena

import "unsafe"

// IndexTableHandle is a generational index into an IndexTable. A handle
// issued for one occupant never resolves to a different occupant that
// later reuses its slot, since Remove bumps the slot's generation.
type IndexTableHandle struct {
	index      uint32
	generation uint32
}

type indexSlot[T any] struct {
	ptr        *T
	addr       uintptr
	layout     Layout
	backend    Backend
	classIdx   int
	generation uint32
	occupied   bool
}

// IndexTable is a handle-indexed store for values that need a stable
// integer handle instead of a raw pointer -- the encoding spec.md §9
// recommends for cyclic structures ("callers encode it with indices into a
// separate table"). Each live entry is allocated on the owning Local's pool
// or heap backend, never the frame arena, since entries are expected to
// outlive a single frame.
type IndexTable[T any] struct {
	owner *Local
	slots []indexSlot[T]
	free  []uint32
}

// NewIndexTable constructs an empty table whose entries are allocated
// through owner.
func NewIndexTable[T any](owner *Local) *IndexTable[T] {
	return &IndexTable[T]{owner: owner}
}

// Insert allocates a new zero-valued T under intent (IntentPool or
// IntentHeap) and returns a handle plus a pointer to it for the caller to
// initialize in place.
func (t *IndexTable[T]) Insert(intent Intent) (IndexTableHandle, *T, error) {
	var zero T
	layout := NewLayout(unsafe.Sizeof(zero), unsafe.Alignof(zero))
	addr, backend, classIdx, err := t.owner.allocateRaw(intent, layout)
	if err != nil {
		return IndexTableHandle{}, nil, err
	}
	ptr := (*T)(unsafe.Pointer(addr))
	*ptr = zero

	if n := len(t.free); n > 0 {
		idx := t.free[n-1]
		t.free = t.free[:n-1]
		slot := &t.slots[idx]
		slot.ptr, slot.addr, slot.layout, slot.backend, slot.classIdx, slot.occupied = ptr, addr, layout, backend, classIdx, true
		return IndexTableHandle{index: idx, generation: slot.generation}, ptr, nil
	}

	idx := uint32(len(t.slots))
	t.slots = append(t.slots, indexSlot[T]{
		ptr: ptr, addr: addr, layout: layout, backend: backend, classIdx: classIdx, occupied: true,
	})
	return IndexTableHandle{index: idx, generation: 0}, ptr, nil
}

// Get returns the live value for h, or nil if h is stale: its slot was
// removed and possibly reused by a later Insert.
func (t *IndexTable[T]) Get(h IndexTableHandle) *T {
	if int(h.index) >= len(t.slots) {
		return nil
	}
	slot := &t.slots[h.index]
	if !slot.occupied || slot.generation != h.generation {
		return nil
	}
	return slot.ptr
}

// Remove frees the value addressed by h and recycles its slot under a
// bumped generation, invalidating every other handle that referenced it.
func (t *IndexTable[T]) Remove(h IndexTableHandle) error {
	if int(h.index) >= len(t.slots) {
		return ErrInvalidHandle
	}
	slot := &t.slots[h.index]
	if !slot.occupied || slot.generation != h.generation {
		return ErrInvalidHandle
	}
	if err := t.owner.freeLocal(slot.backend, slot.classIdx, slot.addr, slot.layout); err != nil {
		return err
	}
	slot.occupied = false
	slot.ptr = nil
	slot.generation++
	t.free = append(t.free, h.index)
	return nil
}

// Len returns the number of currently live entries.
func (t *IndexTable[T]) Len() int {
	n := 0
	for _, s := range t.slots {
		if s.occupied {
			n++
		}
	}
	return n
}
