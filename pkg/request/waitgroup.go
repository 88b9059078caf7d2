package request

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/semaphore"
)

// WaitGroupConcurrencyLimit is the default limit of requests sent at once by a WaitGroup.
const WaitGroupConcurrencyLimit = 8

// ParallelAPIRequests are sent concurrently, see Parallel.
type ParallelAPIRequests []Sendable

// Parallel groups requests to one Sendable, they are sent concurrently and all errors are collected.
func Parallel(requests ...Sendable) ParallelAPIRequests {
	return requests
}

func (v ParallelAPIRequests) SendOrErr(ctx context.Context) error {
	wg := NewWaitGroup(ctx)
	for _, r := range v {
		wg.Send(r)
	}
	return wg.Wait()
}

// WaitGroup sends each request as soon as Send is called, up to the limit at once.
// A failed request does not stop the others, Wait returns all errors.
//
// Use RunGroup to start requests later or to stop at the first error.
type WaitGroup struct {
	ctx     context.Context
	pending sync.WaitGroup
	sem     *semaphore.Weighted

	errsLock sync.Mutex
	errs     []error
}

func NewWaitGroup(ctx context.Context) *WaitGroup {
	return NewWaitGroupWithLimit(ctx, WaitGroupConcurrencyLimit)
}

func NewWaitGroupWithLimit(ctx context.Context, limit int64) *WaitGroup {
	return &WaitGroup{ctx: ctx, sem: semaphore.NewWeighted(limit)}
}

// Send starts the request in a new goroutine.
// It can be called from a listener of another request of the group.
func (g *WaitGroup) Send(request Sendable) {
	g.pending.Add(1)
	go func() {
		defer g.pending.Done()
		g.addErr(g.send(request))
	}()
}

// Wait blocks until all requests are done.
// A single error is returned as is, more errors are joined by multierror.
func (g *WaitGroup) Wait() error {
	g.pending.Wait()

	g.errsLock.Lock()
	defer g.errsLock.Unlock()
	switch len(g.errs) {
	case 0:
		return nil
	case 1:
		return g.errs[0]
	default:
		return multierror.Append(nil, g.errs...)
	}
}

func (g *WaitGroup) send(request Sendable) error {
	if err := g.sem.Acquire(g.ctx, 1); err != nil {
		return err
	}
	defer g.sem.Release(1)
	return request.SendOrErr(g.ctx)
}

func (g *WaitGroup) addErr(err error) {
	if err == nil {
		return
	}
	g.errsLock.Lock()
	g.errs = append(g.errs, err)
	g.errsLock.Unlock()
}
