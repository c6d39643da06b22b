package framearena

import "sync/atomic"

// backendCounters tracks allocation/deallocation counts and live/peak bytes
// for one backend, from the perspective of a single thread (no atomics
// needed; only the owning goroutine writes these during normal operation).
type backendCounters struct {
	liveBytes uint64
	peakBytes uint64
	allocs    uint64
	deallocs  uint64
}

func (b *backendCounters) credit(n uint64) {
	b.liveBytes += n
	b.allocs++
	if b.liveBytes > b.peakBytes {
		b.peakBytes = b.liveBytes
	}
}

func (b *backendCounters) debit(n uint64) {
	if n > b.liveBytes {
		b.liveBytes = 0
	} else {
		b.liveBytes -= n
	}
	b.deallocs++
}

// tagCounters tracks attribution for one "::"-joined tag path.
type tagCounters struct {
	liveBytes  uint64
	allocs     uint64
	promotions uint64
}

// localStats is the C13 per-thread counter block. In [StatisticsMinimal]
// mode the router skips the per-backend and per-tag writes here (byBackend,
// byTag), so the allocation and free paths pay nothing beyond the mode
// branch; the transfer, deferred-drain and promotion fields are still
// written.
type localStats struct {
	byBackend [4]backendCounters // indexed by Backend
	byTag     map[string]*tagCounters

	// transfersPending/transfersCompleted are touched from both the
	// producer thread (CreateTransfer, Drop) and the consumer thread
	// (Receive), unlike every other counter here, so they use relaxed
	// atomics rather than plain fields.
	transfersPending   atomic.Int64
	transfersCompleted atomic.Int64

	deferredProcessedThisFrame int

	lastPromotions PromotionSummary
}

func newLocalStats() *localStats {
	return &localStats{byTag: map[string]*tagCounters{}}
}

func (s *localStats) tag(path string) *tagCounters {
	t, ok := s.byTag[path]
	if !ok {
		t = &tagCounters{}
		s.byTag[path] = t
	}
	return t
}

func (s *localStats) recordAlloc(backend Backend, tagPath string, bytes uint64) {
	s.byBackend[backend].credit(bytes)
	t := s.tag(tagPath)
	t.liveBytes += bytes
	t.allocs++
}

func (s *localStats) recordFree(backend Backend, tagPath string, bytes uint64) {
	s.byBackend[backend].debit(bytes)
	if t, ok := s.byTag[tagPath]; ok {
		if bytes > t.liveBytes {
			t.liveBytes = 0
		} else {
			t.liveBytes -= bytes
		}
	}
}

// threadStatsSnapshot is the immutable, published view of one thread's
// counters, refreshed at every end_frame so a snapshot requested from any
// thread sees a recent (not necessarily perfectly current) view without
// taking the owning thread's non-existent lock.
type threadStatsSnapshot struct {
	threadID           uint64
	frame              uint64
	byBackend          [4]backendCounters
	byTag              map[string]tagCounters
	transfersPending   int64
	transfersCompleted int64
	deferredProcessed  int
	deferredQueueDepth int
	promotions         PromotionSummary
}

// publishStats copies l's live counters into the GlobalState's published view
// for this thread, called at the end of end_frame[_with_promotions].
func (l *Local) publishStats() {
	snap := &threadStatsSnapshot{
		threadID:           l.threadID,
		frame:               l.life.currentFrame(),
		byBackend:           l.stats.byBackend,
		byTag:               make(map[string]tagCounters, len(l.stats.byTag)),
		transfersPending:    l.stats.transfersPending.Load(),
		transfersCompleted:  l.stats.transfersCompleted.Load(),
		deferredProcessed:   l.stats.deferredProcessedThisFrame,
		deferredQueueDepth:  l.inbound.length(),
		promotions:          l.stats.lastPromotions,
	}
	for k, v := range l.stats.byTag {
		snap.byTag[k] = *v
	}
	l.global.statsMu.Lock()
	l.global.threadStats[l.threadID] = snap
	l.global.statsMu.Unlock()
	l.stats.deferredProcessedThisFrame = 0
}
