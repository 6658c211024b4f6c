package engine

import (
	"context"
	"sync"

	"github.com/campaignforge/forge/pkg/schema"
)

// DispatchPool bounds the number of concurrently executing runs. Runs on
// distinct generator nodes may proceed in parallel up to the pool size;
// per-node exclusivity is enforced separately by the run registry.
type DispatchPool struct {
	sem chan struct{}
	wg  sync.WaitGroup
}

// NewDispatchPool creates a pool that admits at most size concurrent runs.
func NewDispatchPool(size int) *DispatchPool {
	if size <= 0 {
		size = 4
	}
	return &DispatchPool{sem: make(chan struct{}, size)}
}

// Go acquires a pool slot and runs fn on its own goroutine, releasing the
// slot when fn returns. It blocks only while waiting for a slot; if ctx is
// cancelled before a slot frees up, fn never runs and a CANCELLED error is
// returned.
func (p *DispatchPool) Go(ctx context.Context, fn func()) error {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return schema.NewError(schema.ErrCodeCancelled, "dispatch cancelled while waiting for a pool slot").
			WithCause(ctx.Err())
	}

	p.wg.Add(1)
	go func() {
		defer func() {
			<-p.sem
			p.wg.Done()
		}()
		fn()
	}()
	return nil
}

// Wait blocks until all dispatched runs have finished.
func (p *DispatchPool) Wait() {
	p.wg.Wait()
}
