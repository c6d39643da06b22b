package framearena

import (
	"sync"
	"time"
)

// FrameBarrier is the C9 deterministic rendezvous for N threads crossing a
// frame boundary together: every participant signals, then waits; once all
// N have signaled, every waiter is released and the barrier auto-resets
// for the next round.
type FrameBarrier struct {
	mu           sync.Mutex
	cond         *sync.Cond
	participants int
	signaled     int
	round        uint64
	registered   map[uint64]bool
}

// NewFrameBarrier constructs a barrier for participantCount threads.
func NewFrameBarrier(participantCount int) *FrameBarrier {
	b := &FrameBarrier{participants: participantCount, registered: map[uint64]bool{}}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Register admits threadID as a participant able to call
// SignalFrameComplete. Barriers constructed with an explicit participant
// list should call this once per thread before first use.
func (b *FrameBarrier) Register(threadID uint64) {
	b.mu.Lock()
	b.registered[threadID] = true
	b.mu.Unlock()
}

// SignalFrameComplete records one participant's arrival at the barrier. Once
// any participant has been Register-ed, a threadID that was never
// Register-ed returns ErrBarrierMisuse; a barrier with no registrations
// accepts a signal from any threadID. When the Nth
// signal of the round arrives, every blocked WaitAll is released and the
// barrier resets for the next round.
func (b *FrameBarrier) SignalFrameComplete(threadID uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.registered) > 0 && !b.registered[threadID] {
		return ErrBarrierMisuse
	}
	b.signaled++
	if b.signaled >= b.participants {
		b.signaled = 0
		b.round++
		b.cond.Broadcast()
	}
	return nil
}

// WaitAll blocks until the round this call observed completes (i.e. every
// participant has signaled since the caller started waiting).
func (b *FrameBarrier) WaitAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	start := b.round
	for b.round == start {
		b.cond.Wait()
	}
}

// WaitAllContext blocks until the round completes or deadline elapses,
// returning ErrBarrierTimeout in the latter case. Implemented by polling
// under the lock at a fixed interval since sync.Cond has no native
// deadline support.
func (b *FrameBarrier) WaitAllContext(deadline time.Time) error {
	const pollInterval = 500 * time.Microsecond
	b.mu.Lock()
	start := b.round
	for b.round == start {
		if time.Now().After(deadline) {
			b.mu.Unlock()
			return ErrBarrierTimeout
		}
		b.mu.Unlock()
		time.Sleep(pollInterval)
		b.mu.Lock()
	}
	b.mu.Unlock()
	return nil
}

// Reset explicitly ends the current round with nobody signaled (advancing
// the round counter), releasing any current waiters without requiring a
// full signal count.
func (b *FrameBarrier) Reset() {
	b.mu.Lock()
	b.signaled = 0
	b.round++
	b.cond.Broadcast()
	b.mu.Unlock()
}
