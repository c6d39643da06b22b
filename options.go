// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package framearena

import "github.com/pbnjay/memory"

// DeferredMode selects when the deferred-free queue is drained by its
// owning thread.
type DeferredMode int

const (
	// DeferredAutomatic drains up to a configured count at every allocation.
	DeferredAutomatic DeferredMode = iota
	// DeferredIncremental drains up to K entries at every allocation.
	DeferredIncremental
	// DeferredExplicit never drains implicitly; the caller must call
	// Local.DrainDeferred.
	DeferredExplicit
)

// DeferredFullPolicy selects behavior when a bounded deferred-free queue is
// at capacity.
type DeferredFullPolicy int

const (
	// DeferredProcessImmediately behaves as DeferredFail: an enqueuer on
	// another goroutine has no synchronous drain of the owner's queue
	// available, so a full queue returns ErrDeferredQueueFull.
	DeferredProcessImmediately DeferredFullPolicy = iota
	// DeferredDropOldest evicts the oldest queued record to make room.
	DeferredDropOldest
	// DeferredFail returns ErrDeferredQueueFull to the enqueuer.
	DeferredFail
	// DeferredGrow grows the queue's overflow buffer instead of failing.
	DeferredGrow
)

// BudgetPolicy selects what happens when a reservation would cross a hard
// budget limit.
type BudgetPolicy int

const (
	// BudgetAllow never fails a reservation; counters may exceed limits.
	BudgetAllow BudgetPolicy = iota
	// BudgetWarn emits a diagnostic but allows the reservation.
	BudgetWarn
	// BudgetFail returns ErrHardLimitExceeded.
	BudgetFail
	// BudgetPromote lets the router retry a reservation that exceeded a
	// scope-specific limit (e.g. a thread's frame budget) against the heap,
	// which is bound only by the global limit, before failing.
	BudgetPromote
)

// StatisticsMode selects the cost of the counters in C13.
type StatisticsMode int

const (
	// StatisticsFull records every counter on every allocation/free.
	StatisticsFull StatisticsMode = iota
	// StatisticsMinimal compiles the counter-writes out of the hot path.
	StatisticsMinimal
)

// sizeClassCount is the number of pool size classes: powers of two from 8B
// to 4KiB inclusive (8,16,32,...,4096).
const sizeClassCount = 10

// config holds the resolved configuration for an [Allocator].
type config struct { //nolint:govet // betteralign:ignore
	logger Logger

	frameInitialChunk   uintptr
	frameMaxChunk       uintptr
	frameRetainedChunks int

	poolBatchSize      int
	poolCacheHighWater int

	heapThreshold uintptr

	budgetGlobalHard  uint64
	budgetThreadFrame uint64
	budgetPolicy      BudgetPolicy
	budgetWarningPct  int

	deferredMode       DeferredMode
	deferredIncrement  int
	deferredCap        int // 0 means unbounded
	deferredFullPolicy DeferredFullPolicy

	lifecycleEvents bool
	statistics      StatisticsMode
	tagStackMax     int
	scratchPoolCap  uintptr

	strictMode bool
}

// Option configures an [Allocator] at construction time.
type Option interface {
	apply(*config) error
}

type optionFunc func(*config) error

func (f optionFunc) apply(c *config) error { return f(c) }

// WithLogger installs the [Logger] used for diagnostic events. Without it,
// diagnostics go to the logger installed by [SetStructuredLogger], which
// defaults to a no-op logger.
func WithLogger(l Logger) Option {
	return optionFunc(func(c *config) error {
		if l != nil {
			c.logger = l
		}
		return nil
	})
}

// WithFrameChunkSizes sets the arena's initial chunk size and cap. Defaults
// to 64 KiB and 1 MiB respectively (frame_initial_chunk, frame_max_chunk).
func WithFrameChunkSizes(initial, max uintptr) Option {
	return optionFunc(func(c *config) error {
		if initial == 0 || max == 0 || initial > max {
			return newErr(KindPrecondition, CodeConfigInvalid, "frame chunk sizes must be non-zero and initial <= max", nil)
		}
		c.frameInitialChunk = initial
		c.frameMaxChunk = max
		return nil
	})
}

// WithFrameRetainedChunks sets how many chunks survive a frame reset
// (frame_retained_chunks, default 1).
func WithFrameRetainedChunks(n int) Option {
	return optionFunc(func(c *config) error {
		if n < 1 {
			return newErr(KindPrecondition, CodeConfigInvalid, "frame_retained_chunks must be >= 1", nil)
		}
		c.frameRetainedChunks = n
		return nil
	})
}

// WithPoolBatchSize sets the slab registry refill batch count
// (pool_batch_size, default 64).
func WithPoolBatchSize(n int) Option {
	return optionFunc(func(c *config) error {
		if n < 1 {
			return newErr(KindPrecondition, CodeConfigInvalid, "pool_batch_size must be >= 1", nil)
		}
		c.poolBatchSize = n
		return nil
	})
}

// WithPoolCacheHighWater sets the per-thread per-class cache cap
// (pool_cache_high_water).
func WithPoolCacheHighWater(n int) Option {
	return optionFunc(func(c *config) error {
		if n < 1 {
			return newErr(KindPrecondition, CodeConfigInvalid, "pool_cache_high_water must be >= 1", nil)
		}
		c.poolCacheHighWater = n
		return nil
	})
}

// WithHeapThreshold sets the pool->heap spillover size (heap_threshold,
// default 4 KiB). Allocations larger than this use the heap backend even
// under pool intent.
func WithHeapThreshold(n uintptr) Option {
	return optionFunc(func(c *config) error {
		if n == 0 {
			return newErr(KindPrecondition, CodeConfigInvalid, "heap_threshold must be > 0", nil)
		}
		c.heapThreshold = n
		return nil
	})
}

// WithGlobalHardBudget sets the process-wide hard limit in bytes
// (budget_global_hard). If never set, New derives a default from a fraction
// of physical memory via [memory.TotalMemory].
func WithGlobalHardBudget(bytes uint64) Option {
	return optionFunc(func(c *config) error {
		c.budgetGlobalHard = bytes
		return nil
	})
}

// WithThreadFrameBudget sets the default per-thread frame budget in bytes
// (budget_thread_frame). Zero means unlimited.
func WithThreadFrameBudget(bytes uint64) Option {
	return optionFunc(func(c *config) error {
		c.budgetThreadFrame = bytes
		return nil
	})
}

// WithBudgetPolicy sets the policy applied when a reservation would exceed
// a hard limit (budget_policy, default BudgetFail).
func WithBudgetPolicy(p BudgetPolicy) Option {
	return optionFunc(func(c *config) error {
		c.budgetPolicy = p
		return nil
	})
}

// WithBudgetWarningPercent sets the soft-threshold percent
// (budget_warning_pct, default 80).
func WithBudgetWarningPercent(pct int) Option {
	return optionFunc(func(c *config) error {
		if pct < 0 || pct > 100 {
			return newErr(KindPrecondition, CodeConfigInvalid, "budget_warning_pct must be within [0,100]", nil)
		}
		c.budgetWarningPct = pct
		return nil
	})
}

// WithDeferredMode sets the deferred-free drain mode (deferred_mode,
// default DeferredAutomatic). increment is only meaningful for
// DeferredIncremental.
func WithDeferredMode(mode DeferredMode, increment int) Option {
	return optionFunc(func(c *config) error {
		c.deferredMode = mode
		if mode == DeferredIncremental && increment < 1 {
			return newErr(KindPrecondition, CodeConfigInvalid, "deferred increment must be >= 1", nil)
		}
		c.deferredIncrement = increment
		return nil
	})
}

// WithDeferredCapacity sets the deferred-free queue's bounded capacity
// (deferred_cap); 0 means Unbounded.
func WithDeferredCapacity(cap int, policy DeferredFullPolicy) Option {
	return optionFunc(func(c *config) error {
		if cap < 0 {
			return newErr(KindPrecondition, CodeConfigInvalid, "deferred_cap must be >= 0", nil)
		}
		c.deferredCap = cap
		c.deferredFullPolicy = policy
		return nil
	})
}

// WithLifecycleEvents records the lifecycle_events setting (default off).
// The allocator emits no lifecycle diagnostics in either state.
func WithLifecycleEvents(enabled bool) Option {
	return optionFunc(func(c *config) error {
		c.lifecycleEvents = enabled
		return nil
	})
}

// WithStatistics selects the statistics collection mode (statistics,
// default StatisticsFull).
func WithStatistics(mode StatisticsMode) Option {
	return optionFunc(func(c *config) error {
		c.statistics = mode
		return nil
	})
}

// WithTagStackMax sets the maximum tag-stack nesting depth (tag_stack_max,
// default 32).
func WithTagStackMax(n int) Option {
	return optionFunc(func(c *config) error {
		if n < 1 {
			return newErr(KindPrecondition, CodeConfigInvalid, "tag_stack_max must be >= 1", nil)
		}
		c.tagStackMax = n
		return nil
	})
}

// WithScratchPoolCap sets the initial chunk size, in bytes, of every
// scratch pool's arena (scratch_pool_cap). A pool's chunks grow to at most
// 16 times that size, so a single allocation that does not fit such a chunk
// fails with ErrScratchPoolFull; the total bytes a pool holds across its
// chunks are not bounded. Zero selects a 64 KiB initial chunk.
func WithScratchPoolCap(bytes uintptr) Option {
	return optionFunc(func(c *config) error {
		c.scratchPoolCap = bytes
		return nil
	})
}

// WithStrictMode enables panics (instead of returned errors) on precondition
// violations and goroutine-confinement violations, intended for CI.
func WithStrictMode(enabled bool) Option {
	return optionFunc(func(c *config) error {
		c.strictMode = enabled
		return nil
	})
}

// resolveOptions applies Option values over a defaulted config.
func resolveOptions(opts []Option) (*config, error) {
	c := &config{
		logger: noopLogger{},

		frameInitialChunk:   64 * 1024,
		frameMaxChunk:       1024 * 1024,
		frameRetainedChunks: 1,

		poolBatchSize:      64,
		poolCacheHighWater: 4 * 64,

		heapThreshold: 4096,

		budgetPolicy:     BudgetFail,
		budgetWarningPct: 80,

		deferredMode:       DeferredAutomatic,
		deferredIncrement:  16,
		deferredFullPolicy: DeferredProcessImmediately,

		statistics:     StatisticsFull,
		tagStackMax:    32,
		scratchPoolCap: 0,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.apply(c); err != nil {
			return nil, err
		}
	}
	if c.budgetGlobalHard == 0 {
		// Default to an eighth of physical memory, matching a soft-real-time
		// application leaving headroom for everything else on the machine.
		if total := memory.TotalMemory(); total > 0 {
			c.budgetGlobalHard = total / 8
		}
	}
	return c, nil
}
