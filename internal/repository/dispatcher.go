package repository

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// DefaultIOSlots is the number of store and network calls that may run at once
const DefaultIOSlots = 64

// Dispatcher bounds the number of concurrent I/O calls. Callers block until
// a slot is free and then run the call on their own goroutine.
type Dispatcher struct {
	sem *semaphore.Weighted
}

// NewDispatcher creates a dispatcher with the given number of slots
func NewDispatcher(slots int64) *Dispatcher {
	if slots <= 0 {
		slots = DefaultIOSlots
	}
	return &Dispatcher{sem: semaphore.NewWeighted(slots)}
}

// Do runs fn once a slot is available
func (d *Dispatcher) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("waiting for I/O slot: %w", err)
	}
	defer d.sem.Release(1)
	return fn(ctx)
}

// dispatch is Do for calls that return a value
func dispatch[T any](ctx context.Context, d *Dispatcher, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := d.Do(ctx, func(ctx context.Context) error {
		var err error
		result, err = fn(ctx)
		return err
	})
	return result, err
}
