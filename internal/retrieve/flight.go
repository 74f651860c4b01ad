package retrieve

import (
	"context"
	"errors"
	"sync"
)

// Flight tracks the asynchronous fetches started by one retrieval.
// Deliveries happen through callbacks; Wait reports the fetches that failed.
type Flight struct {
	ctx context.Context
	wg  sync.WaitGroup

	mu   sync.Mutex
	errs []error
}

// NewFlight starts an empty flight. Fetches run on a context detached from
// ctx's cancellation: once issued they are not aborted.
func NewFlight(ctx context.Context) *Flight {
	return &Flight{ctx: context.WithoutCancel(ctx)}
}

// Go runs fn in the background as part of the flight.
func (f *Flight) Go(fn func(ctx context.Context) error) {
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		if err := fn(f.ctx); err != nil {
			f.mu.Lock()
			f.errs = append(f.errs, err)
			f.mu.Unlock()
		}
	}()
}

// Wait blocks until all background work, including work started by
// callbacks, is done.
func (f *Flight) Wait() error {
	f.wg.Wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	return errors.Join(f.errs...)
}
