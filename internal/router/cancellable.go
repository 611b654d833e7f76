// Package router implements the three-layer command dispatch sitting
// between the Bash Tool and the persistent shell session: classification
// into BUILTIN_VERB / EXTENSION / NATIVE, the Handler Registry those first
// two layers dispatch through, the write-guard that protects NATIVE
// commands from reinventing the write/edit verbs, and sandbox admission.
package router

import (
	"context"
	"sync"
)

// Future is a cancellable, single-result handle returned by Router.Route.
// Cancelling it aborts the in-flight handler call cooperatively (handlers
// observe ctx.Done()); it does not forcibly kill anything already running
// in the shell, mirroring the session's own "Restart to hard-stop" story.
type Future struct {
	resultCh chan Result
	cancel   context.CancelFunc
	once     sync.Once
}

func newFuture(cancel context.CancelFunc) *Future {
	return &Future{
		resultCh: make(chan Result, 1),
		cancel:   cancel,
	}
}

func (f *Future) settle(r Result) {
	f.once.Do(func() {
		f.resultCh <- r
	})
}

// Cancel aborts the in-flight route call. Safe to call multiple times or
// after the result has already settled.
func (f *Future) Cancel() {
	if f.cancel != nil {
		f.cancel()
	}
}

// Wait blocks until the route call settles, or ctx is done first.
func (f *Future) Wait(ctx context.Context) (Result, error) {
	select {
	case r := <-f.resultCh:
		return r, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}
