// Package workerpool provides the bounded goroutine pool described in
// SPEC_FULL.md §5. File hashing on the upload and enrich paths runs through it,
// so a traffic spike can't open an unbounded number of files at once; stat and
// store calls do not go through the pool.
package workerpool

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Pool is a semaphore-gated task runner.
type Pool struct {
	sem *semaphore.Weighted
}

// New builds a Pool allowing at most size concurrent tasks.
func New(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size))}
}

// Do runs fn synchronously once a slot is free, blocking the caller until fn
// returns (or ctx is cancelled while waiting for a slot). Callers on the
// upload and enrich paths use this to bound concurrent hashing without
// detaching the work onto its own goroutine.
func (p *Pool) Do(ctx context.Context, fn func() error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn()
}
