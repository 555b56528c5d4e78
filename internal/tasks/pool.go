package tasks

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// runPool applies fn to every index in [0, n) with at most Concurrency units in flight, each paced by the limiter.
//
// Units report failure through the returned slice and never through the group, so one failure does not cancel its
// siblings. A unit that cannot start because ctx ended records the context error.
func (e *MigrationEngine) runPool(ctx context.Context, n int, fn func(ctx context.Context, i int) error) []error {
	errs := make([]error, n)

	var g errgroup.Group
	g.SetLimit(e.opts.Concurrency)

	for i := range n {
		g.Go(func() error {
			if err := e.limiter.Wait(ctx); err != nil {
				errs[i] = err
				return nil
			}
			errs[i] = fn(ctx, i)
			return nil
		})
	}

	_ = g.Wait()
	return errs
}
