package request

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// RunGroupConcurrencyLimit is the default limit of requests sent at once by a RunGroup.
const RunGroupConcurrencyLimit = 32

// RunGroup collects requests by Add and sends them concurrently when RunAndWait is called.
// The first error cancels the remaining requests and it is returned by RunAndWait.
//
// Use WaitGroup to send requests immediately and to collect all errors.
type RunGroup struct {
	ctx     context.Context
	group   *errgroup.Group
	sem     *semaphore.Weighted
	running chan struct{}
}

func NewRunGroup(ctx context.Context) *RunGroup {
	return NewRunGroupWithLimit(ctx, RunGroupConcurrencyLimit)
}

func NewRunGroupWithLimit(ctx context.Context, limit int64) *RunGroup {
	g := &RunGroup{sem: semaphore.NewWeighted(limit), running: make(chan struct{})}
	g.group, g.ctx = errgroup.WithContext(ctx)
	return g
}

// Add schedules the request.
// It can also be called from a listener of another request, while RunAndWait is in progress.
func (g *RunGroup) Add(request Sendable) {
	g.group.Go(func() error {
		if err := g.waitForRun(); err != nil {
			return err
		}
		if err := g.sem.Acquire(g.ctx, 1); err != nil {
			return err
		}
		defer g.sem.Release(1)
		return request.SendOrErr(g.ctx)
	})
}

// RunAndWait sends all scheduled requests and blocks until they are done or the first one fails.
func (g *RunGroup) RunAndWait() error {
	close(g.running)
	return g.group.Wait()
}

func (g *RunGroup) waitForRun() error {
	select {
	case <-g.running:
		return nil
	case <-g.ctx.Done():
		return g.ctx.Err()
	}
}
