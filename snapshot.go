package framearena

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/joeycumines/go-catrate"
)

// Snapshot is the version-1 schema described for external tooling: a
// versioned, point-in-time record assembled only at frame end.
type Snapshot struct {
	Version int    `json:"version"`
	Frame   uint64 `json:"frame"`

	Summary SnapshotSummary  `json:"summary"`
	Threads []ThreadSnapshot `json:"threads,omitempty"`
	Tags    []TagSnapshot    `json:"tags,omitempty"`

	Promotions PromotionSnapshot `json:"promotions"`
	Transfers  TransferSnapshot  `json:"transfers"`
	Deferred   DeferredSnapshot  `json:"deferred"`

	Diagnostics []DiagnosticSnapshot `json:"diagnostics,omitempty"`
}

type SnapshotSummary struct {
	FrameBytes uint64 `json:"frame_bytes"`
	PoolBytes  uint64 `json:"pool_bytes"`
	HeapBytes  uint64 `json:"heap_bytes"`
	PeakBytes  uint64 `json:"peak_bytes"`
}

type ThreadSnapshot struct {
	ID         uint64 `json:"id"`
	FrameBytes uint64 `json:"frame_bytes"`
	PoolBytes  uint64 `json:"pool_bytes"`
	HeapBytes  uint64 `json:"heap_bytes"`
	PeakBytes  uint64 `json:"peak_bytes"`
}

type TagSnapshot struct {
	Path       string `json:"path"`
	LiveBytes  uint64 `json:"live_bytes"`
	Allocs     uint64 `json:"allocs"`
	Promotions uint64 `json:"promotions"`
}

type PromotionFailureBreakdown struct {
	BudgetExceeded int `json:"budget_exceeded"`
	ScratchFull    int `json:"scratch_full"`
	Other          int `json:"other"`
}

type PromotionSnapshot struct {
	ToPool   int                       `json:"to_pool"`
	ToHeap   int                       `json:"to_heap"`
	ToScratch int                      `json:"to_scratch"`
	Failed   PromotionFailureBreakdown `json:"failed"`
}

type TransferSnapshot struct {
	Pending            int64 `json:"pending"`
	CompletedThisFrame int64 `json:"completed_this_frame"`
}

type DeferredSnapshot struct {
	QueueDepth        int `json:"queue_depth"`
	ProcessedThisFrame int `json:"processed_this_frame"`
}

type DiagnosticSnapshot struct {
	Code     string `json:"code"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Location string `json:"location,omitempty"`
}

// Snapshot assembles the version-1 snapshot from every thread's last
// published statistics. Cost is proportional to the number of threads and
// distinct tags observed, as the contract requires.
func (a *Allocator) Snapshot(frame uint64) Snapshot {
	g := a.global
	g.statsMu.Lock()
	defer g.statsMu.Unlock()

	snap := Snapshot{Version: 1, Frame: frame}
	tagAgg := map[string]*TagSnapshot{}

	threadIDs := make([]uint64, 0, len(g.threadStats))
	for id := range g.threadStats {
		threadIDs = append(threadIDs, id)
	}
	sort.Slice(threadIDs, func(i, j int) bool { return threadIDs[i] < threadIDs[j] })

	for _, id := range threadIDs {
		ts := g.threadStats[id]
		frameB := ts.byBackend[BackendFrame]
		poolB := ts.byBackend[BackendPool]
		heapB := ts.byBackend[BackendHeap]

		snap.Summary.FrameBytes += frameB.liveBytes
		snap.Summary.PoolBytes += poolB.liveBytes
		snap.Summary.HeapBytes += heapB.liveBytes
		peak := frameB.peakBytes + poolB.peakBytes + heapB.peakBytes
		if peak > snap.Summary.PeakBytes {
			snap.Summary.PeakBytes = peak
		}

		snap.Threads = append(snap.Threads, ThreadSnapshot{
			ID: id, FrameBytes: frameB.liveBytes, PoolBytes: poolB.liveBytes,
			HeapBytes: heapB.liveBytes, PeakBytes: peak,
		})

		for path, tc := range ts.byTag {
			agg, ok := tagAgg[path]
			if !ok {
				agg = &TagSnapshot{Path: path}
				tagAgg[path] = agg
			}
			agg.LiveBytes += tc.liveBytes
			agg.Allocs += tc.allocs
			agg.Promotions += tc.promotions
		}

		snap.Promotions.ToPool += ts.promotions.PromotedPoolCount
		snap.Promotions.ToHeap += ts.promotions.PromotedHeapCount
		snap.Promotions.ToScratch += ts.promotions.PromotedScratchCount
		snap.Promotions.Failed.BudgetExceeded += ts.promotions.FailuresByReason[ReasonBudgetExceeded]
		snap.Promotions.Failed.ScratchFull += ts.promotions.FailuresByReason[ReasonScratchPoolFull]
		for reason, count := range ts.promotions.FailuresByReason {
			if reason != ReasonBudgetExceeded && reason != ReasonScratchPoolFull {
				snap.Promotions.Failed.Other += count
			}
		}

		snap.Transfers.Pending += ts.transfersPending
		snap.Transfers.CompletedThisFrame += ts.transfersCompleted
		snap.Deferred.ProcessedThisFrame += ts.deferredProcessed
		snap.Deferred.QueueDepth += ts.deferredQueueDepth
	}

	tagPaths := make([]string, 0, len(tagAgg))
	for path := range tagAgg {
		tagPaths = append(tagPaths, path)
	}
	sort.Strings(tagPaths)
	for _, path := range tagPaths {
		snap.Tags = append(snap.Tags, *tagAgg[path])
	}

	return snap
}

// SnapshotWriter emits Snapshot values as rotating JSON files
// (snapshot-<n>.json), rate-limited to one write per minInterval, matching
// the "min 500ms between snapshots, file-based with rotation" contract.
type SnapshotWriter struct {
	dir       string
	maxFiles  int
	limiter   *catrate.Limiter
	minInterval time.Duration

	mu    sync.Mutex
	index uint64
}

// NewSnapshotWriter constructs a writer rooted at dir, retaining at most
// maxFiles rotated snapshot files and refusing to write more often than
// minInterval (the caller is expected to pass >= 500ms per the contract).
func NewSnapshotWriter(dir string, maxFiles int, minInterval time.Duration) *SnapshotWriter {
	if minInterval <= 0 {
		minInterval = 500 * time.Millisecond
	}
	return &SnapshotWriter{
		dir:      dir,
		maxFiles: maxFiles,
		limiter:  catrate.NewLimiter(map[time.Duration]int{minInterval: 1}),
		minInterval: minInterval,
	}
}

// Write serializes snap to the next rotated file, skipping the write
// (returning ok=false) if minInterval has not elapsed since the last one.
func (w *SnapshotWriter) Write(snap Snapshot) (ok bool, err error) {
	if _, allowed := w.limiter.Allow("snapshot"); !allowed {
		return false, nil
	}

	w.mu.Lock()
	idx := w.index
	w.index++
	w.mu.Unlock()

	data, err := json.Marshal(snap)
	if err != nil {
		return false, err
	}
	path := filepath.Join(w.dir, fmt.Sprintf("snapshot-%d.json", idx))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return false, err
	}
	w.rotate()
	return true, nil
}

func (w *SnapshotWriter) rotate() {
	if w.maxFiles <= 0 {
		return
	}
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for len(names) > w.maxFiles {
		_ = os.Remove(filepath.Join(w.dir, names[0]))
		names = names[1:]
	}
}
