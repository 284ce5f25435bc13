package portal

import (
	"context"

	"github.com/NeatooDotNet/RemoteFactory-sub015/pkg/operation"
)

// Pending is an in-flight invocation started with InvokeAsync. The
// invocation runs on its own goroutine; Await collects its outcome.
type Pending struct {
	done chan invokeOutcome
}

type invokeOutcome struct {
	val any
	err error
}

// InvokeAsync starts an invocation without blocking the caller.
// Abandoning the returned Pending leaks nothing: the result channel is
// buffered, so the worker goroutine always completes its send.
func (r *Router) InvokeAsync(ctx context.Context, target string, kind operation.Kind, args ...any) *Pending {
	p := &Pending{done: make(chan invokeOutcome, 1)}
	go func() {
		val, err := r.Invoke(ctx, target, kind, args...)
		p.done <- invokeOutcome{val: val, err: err}
	}()
	return p
}

// Await blocks until the invocation completes or ctx is cancelled. On
// cancellation the invocation keeps running to completion in the
// background but its outcome is discarded.
func (p *Pending) Await(ctx context.Context) (any, error) {
	select {
	case out := <-p.done:
		return out.val, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
