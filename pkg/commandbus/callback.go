package commandbus

import (
	"context"
	"sync"
)

// CommandCallback receives the outcome of a dispatched command. Exactly one of
// OnSuccess or OnFailure is invoked, off the publisher goroutine.
type CommandCallback interface {
	OnSuccess(result any)
	OnFailure(cause error)
}

// CallbackFunc adapts a single function to CommandCallback.
type CallbackFunc func(result any, err error)

// OnSuccess calls f(result, nil).
func (f CallbackFunc) OnSuccess(result any) { f(result, nil) }

// OnFailure calls f(nil, cause).
func (f CallbackFunc) OnFailure(cause error) { f(nil, cause) }

// FutureCallback is a CommandCallback a caller can block on.
type FutureCallback struct {
	once   sync.Once
	done   chan struct{}
	result any
	err    error
}

// NewFutureCallback creates an unresolved future.
func NewFutureCallback() *FutureCallback {
	return &FutureCallback{done: make(chan struct{})}
}

// OnSuccess resolves the future with result. Later calls are ignored.
func (f *FutureCallback) OnSuccess(result any) {
	f.once.Do(func() {
		f.result = result
		close(f.done)
	})
}

// OnFailure resolves the future with cause. Later calls are ignored.
func (f *FutureCallback) OnFailure(cause error) {
	f.once.Do(func() {
		f.err = cause
		close(f.done)
	})
}

// Done is closed once the future is resolved.
func (f *FutureCallback) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future resolves or ctx is done.
func (f *FutureCallback) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
