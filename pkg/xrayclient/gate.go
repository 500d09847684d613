package xrayclient

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// gate admits one critical section at a time per Client. Waiters are
// served in FIFO order. It is not reentrant: code running under the gate
// must only call *Locked helpers.
type gate struct {
	sem *semaphore.Weighted
}

func newGate() *gate {
	return &gate{sem: semaphore.NewWeighted(1)}
}

// do runs fn with the gate held and releases it on every exit path.
// Waiting for the gate honours ctx; once admitted, fn runs to completion.
func (g *gate) do(ctx context.Context, fn func() error) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer g.sem.Release(1)

	return fn()
}

// withGate is do for critical sections that produce a value
func withGate[T any](ctx context.Context, g *gate, fn func() (T, error)) (T, error) {
	var result T
	err := g.do(ctx, func() error {
		var err error
		result, err = fn()
		return err
	})
	return result, err
}
