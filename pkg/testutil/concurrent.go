package testutil

import (
	"errors"
	"sync"
	"sync/atomic"

	"openbadges/pkg/platform/sentinel"
)

// ConcurrentResult tracks outcomes of concurrent test operations.
type ConcurrentResult struct {
	Successes int32
	Errors    int32
	Conflicts int32
	NotFounds int32
}

// Total returns the total number of operations executed.
func (r *ConcurrentResult) Total() int32 {
	return r.Successes + r.Errors + r.Conflicts + r.NotFounds
}

// RunConcurrent executes fn in parallel goroutines and buckets each outcome as
// success, conflict, not_found or generic error. All goroutines are released
// together so first-call races actually overlap.
func RunConcurrent(goroutines int, fn func(idx int) error) *ConcurrentResult {
	var successes, errs, conflicts, notFounds atomic.Int32
	_ = Collect(goroutines, func(idx int) (struct{}, error) {
		err := fn(idx)
		switch {
		case err == nil:
			successes.Add(1)
		case errors.Is(err, sentinel.ErrConflict):
			conflicts.Add(1)
		case errors.Is(err, sentinel.ErrNotFound):
			notFounds.Add(1)
		default:
			errs.Add(1)
		}
		return struct{}{}, err
	})

	return &ConcurrentResult{
		Successes: successes.Load(),
		Errors:    errs.Load(),
		Conflicts: conflicts.Load(),
		NotFounds: notFounds.Load(),
	}
}

// Outcome is one goroutine's return from Collect.
type Outcome[T any] struct {
	Value T
	Err   error
}

// Collect runs fn in parallel and returns every outcome indexed by goroutine.
// Use it when a test must compare the values concurrent callers observed.
func Collect[T any](goroutines int, fn func(idx int) (T, error)) []Outcome[T] {
	var wg sync.WaitGroup
	start := make(chan struct{})
	out := make([]Outcome[T], goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			<-start
			v, err := fn(idx)
			out[idx] = Outcome[T]{Value: v, Err: err}
		}(i)
	}

	close(start)
	wg.Wait()
	return out
}
