package concurrency

import (
	"context"

	"github.com/sourcegraph/conc/pool"
)

// DefaultMaxGoroutines bounds a pool when the caller passes a non-positive limit.
const DefaultMaxGoroutines = 20

// NewPool returns a new pool where each task respects context cancellation.
// The first failing task cancels the rest and Wait() returns that error.
func NewPool(ctx context.Context, maxGoroutines int) *pool.ContextPool {
	return pool.New().
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError().
		WithMaxGoroutines(limit(maxGoroutines))
}

// NewBestEffortPool returns a pool that runs every task to completion even
// after one fails. Wait() returns the first error seen.
func NewBestEffortPool(ctx context.Context, maxGoroutines int) *pool.ContextPool {
	return pool.New().
		WithContext(ctx).
		WithFirstError().
		WithMaxGoroutines(limit(maxGoroutines))
}

func limit(n int) int {
	if n <= 0 {
		return DefaultMaxGoroutines
	}
	return n
}
