package magicrows

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Runner schedules the row tasks of one batch. The default runner caps
// concurrency with a semaphore; callers may substitute their own to
// integrate with an external scheduler.
type Runner interface {
	Go(f func() error)
	Wait() error
}

// RunnerFactory builds a fresh Runner per batch.
type RunnerFactory func(ctx context.Context) Runner

// groupRunner bounds concurrent tasks with a buffered-channel semaphore on
// top of errgroup. A nil or zero limit means unbounded.
type groupRunner struct {
	g   *errgroup.Group
	sem chan struct{}
}

func newGroupRunner(ctx context.Context, limit int) *groupRunner {
	g, _ := errgroup.WithContext(ctx)
	r := &groupRunner{g: g}
	if limit > 0 {
		r.sem = make(chan struct{}, limit)
	}
	return r
}

func (r *groupRunner) Go(f func() error) {
	r.g.Go(func() error {
		if r.sem != nil {
			r.sem <- struct{}{}
			defer func() { <-r.sem }()
		}
		return f()
	})
}

func (r *groupRunner) Wait() error { return r.g.Wait() }
