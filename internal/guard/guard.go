// Package guard serializes ingestion runs on one host: a non-blocking
// exclusive file lock plus a wall-clock deadline around the run body.
package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/flock"
)

// ErrLocked means another run currently holds the lock. Callers treat it
// as a successful no-op, not a failure.
var ErrLocked = errors.New("another ingestion run is active")

// ErrTimeout means the run body exceeded its wall-clock deadline.
var ErrTimeout = errors.New("ingestion run exceeded deadline")

// Run executes fn under the host-local exclusive lock at lockPath with
// the given deadline. The lock is released on every exit path. The body
// receives a context that expires at the deadline; a body that ignores
// its context is still abandoned once the deadline passes, so Run never
// hangs past it.
func Run(ctx context.Context, lockPath string, timeout time.Duration, fn func(context.Context) error) error {
	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", lockPath, err)
	}
	if !locked {
		return ErrLocked
	}
	defer func() { _ = lock.Unlock() }()

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(runCtx) }()

	select {
	case err := <-done:
		if err != nil && runCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return err
	case <-runCtx.Done():
		if runCtx.Err() == context.DeadlineExceeded {
			return ErrTimeout
		}
		return runCtx.Err()
	}
}
