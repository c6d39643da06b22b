package framearena

import (
	"sync/atomic"
	"unsafe"
)

// TransferState is the lifecycle of a TransferHandle.
type TransferState uint32

const (
	TransferPending TransferState = iota
	TransferReceived
	TransferDropped
)

func (s TransferState) String() string {
	switch s {
	case TransferPending:
		return "pending"
	case TransferReceived:
		return "received"
	case TransferDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// TransferHandle is the C10 one-hop cross-thread ownership transfer: the
// value is allocated on the producer's pool or heap backend (never the
// frame arena, which would be invalid past the producer's next reset), and
// the handle itself is safe to hand to another goroutine.
type TransferHandle[T any] struct {
	addr     uintptr
	layout   Layout
	backend  Backend
	classIdx int

	state          atomic.Uint32
	originThreadID uint64
	producer       *Local
}

// CreateTransfer allocates a T-sized block on l's pool (or heap, if intent
// is IntentHeap or the value exceeds heap_threshold or the largest size
// class) and returns a Pending handle. intent must be IntentPool or IntentHeap.
func CreateTransfer[T any](l *Local, intent Intent) (*TransferHandle[T], *T, error) {
	if intent == IntentFrame {
		return nil, nil, newErr(KindPrecondition, CodeConfigInvalid, "transfer handles cannot be backed by the frame arena", nil)
	}
	var zero T
	layout := NewLayout(unsafe.Sizeof(zero), unsafe.Alignof(zero))

	addr, backend, classIdx, err := l.allocateRaw(intent, layout)
	if err != nil {
		return nil, nil, err
	}

	h := &TransferHandle[T]{
		addr: addr, layout: layout, backend: backend, classIdx: classIdx,
		originThreadID: l.threadID, producer: l,
	}
	h.state.Store(uint32(TransferPending))
	l.stats.transfersPending.Add(1)
	return h, (*T)(unsafe.Pointer(addr)), nil
}

// Receive completes the transfer on consumer's goroutine, returning a
// pointer to the transferred value. Fails with ErrWrongThreadReceive if
// called by the producer thread, or ErrDoubleReceive if already received.
func (h *TransferHandle[T]) Receive(consumer *Local) (*T, error) {
	if consumer.threadID == h.originThreadID {
		return nil, consumer.strictCheck(ErrWrongThreadReceive)
	}
	if !h.state.CompareAndSwap(uint32(TransferPending), uint32(TransferReceived)) {
		return nil, consumer.strictCheck(ErrDoubleReceive)
	}
	h.producer.stats.transfersPending.Add(-1)
	h.producer.stats.transfersCompleted.Add(1)
	return (*T)(unsafe.Pointer(h.addr)), nil
}

// Drop releases the handle. If it is still Pending (never received), the
// free is routed back to the producer thread's deferred-free queue (C5),
// since the calling goroutine does not own the producer's pool cache or
// heap accounting. If already Received, the consumer is expected to have
// freed the value through the normal C12 free path instead; Drop on a
// Received or already-Dropped handle is a no-op.
func (h *TransferHandle[T]) Drop() {
	if !h.state.CompareAndSwap(uint32(TransferPending), uint32(TransferDropped)) {
		return
	}
	h.producer.stats.transfersPending.Add(-1)
	h.producer.enqueueCrossThreadFree(deferredRecord{
		addr: h.addr, layout: h.layout, backend: h.backend, classIdx: h.classIdx,
	})
}

func (h *TransferHandle[T]) State() TransferState { return TransferState(h.state.Load()) }
