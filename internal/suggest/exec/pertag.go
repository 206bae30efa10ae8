// Package exec provides the two bespoke schedulers the aggregator runs on:
// PerTagExecutor (bounded per-tag concurrency with an overwrite-pending
// queue) and DelayedExecutor (single-threaded delayed/at-time posting)
package exec

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"suggestfed/internal/platform/logger"
)

// PerTagExecutor runs runnables on a worker pool subject to: at most K
// runnables with the same tag may execute concurrently. A submission beyond K
// does not run immediately; exactly one pending runnable is retained per tag,
// and a newer submission silently overwrites the older pending one
type PerTagExecutor struct {
	limit   int
	limiter *rate.Limiter // optional burst shaping across all tags combined

	mu      sync.Mutex
	running map[string]int
	pending map[string]func()
}

// NewPerTagExecutor builds an executor capping concurrent runs per tag at limit.
// burst <= 0 disables the rate limiter
func NewPerTagExecutor(limit int, burst rate.Limit) *PerTagExecutor {
	if limit < 1 {
		limit = 1
	}
	e := &PerTagExecutor{
		limit:   limit,
		running: map[string]int{},
		pending: map[string]func(){},
	}
	if burst > 0 {
		e.limiter = rate.NewLimiter(burst, limit)
	}
	return e
}

// Execute submits runnable under tag. Returns true iff the submission was
// queued as the tag's pending slot rather than dispatched immediately
func (e *PerTagExecutor) Execute(tag string, runnable func()) bool {
	e.mu.Lock()
	if e.running[tag] < e.limit {
		e.running[tag]++
		e.mu.Unlock()
		e.run(tag, runnable)
		return false
	}
	// overwrite any previously pending runnable for this tag; it is dropped silently
	e.pending[tag] = runnable
	e.mu.Unlock()
	return true
}

// run executes runnable and, on completion, promotes any pending runnable for tag
func (e *PerTagExecutor) run(tag string, runnable func()) {
	go func() {
		if e.limiter != nil {
			_ = e.limiter.Wait(context.Background())
		}
		defer e.finish(tag)
		defer func() {
			if r := recover(); r != nil {
				logger.Named("pertag").Error().Interface("panic", r).Str("tag", tag).Msg("runnable panicked")
			}
		}()
		runnable()
	}()
}

// finish decrements the running count for tag and promotes a pending runnable if any
func (e *PerTagExecutor) finish(tag string) {
	e.mu.Lock()
	e.running[tag]--
	if e.running[tag] <= 0 {
		delete(e.running, tag)
	}
	next, ok := e.pending[tag]
	if ok {
		delete(e.pending, tag)
		e.running[tag]++
	}
	e.mu.Unlock()

	if ok {
		e.run(tag, next)
	}
}

// InFlight returns the number of currently-running tasks for tag, for tests
func (e *PerTagExecutor) InFlight(tag string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running[tag]
}

// HasPending reports whether tag has a queued pending runnable, for tests
func (e *PerTagExecutor) HasPending(tag string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.pending[tag]
	return ok
}
