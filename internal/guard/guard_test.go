package guard

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lockPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "run.lock")
}

func TestRunExecutesBody(t *testing.T) {
	ran := false
	err := Run(context.Background(), lockPath(t), time.Minute, func(context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestRunPropagatesBodyError(t *testing.T) {
	boom := errors.New("boom")
	err := Run(context.Background(), lockPath(t), time.Minute, func(context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestMutualExclusion(t *testing.T) {
	path := lockPath(t)
	firstEntered := make(chan struct{})
	release := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = Run(context.Background(), path, time.Minute, func(context.Context) error {
			close(firstEntered)
			<-release
			return nil
		})
	}()

	<-firstEntered
	secondRan := false
	err := Run(context.Background(), path, time.Minute, func(context.Context) error {
		secondRan = true
		return nil
	})
	assert.ErrorIs(t, err, ErrLocked)
	assert.False(t, secondRan)

	close(release)
	wg.Wait()
}

func TestTimeoutReturnsDistinctErrorAndReleasesLock(t *testing.T) {
	path := lockPath(t)

	err := Run(context.Background(), path, 20*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(time.Hour) // body keeps running past its context
		return nil
	})
	assert.ErrorIs(t, err, ErrTimeout)

	// lock must be free again immediately
	err = Run(context.Background(), path, time.Minute, func(context.Context) error {
		return nil
	})
	assert.NoError(t, err)
}

func TestBodyObservingDeadlineStillReportsTimeout(t *testing.T) {
	err := Run(context.Background(), lockPath(t), 20*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestLockReleasedAfterBodyError(t *testing.T) {
	path := lockPath(t)
	_ = Run(context.Background(), path, time.Minute, func(context.Context) error {
		return errors.New("failed run")
	})
	err := Run(context.Background(), path, time.Minute, func(context.Context) error {
		return nil
	})
	assert.NoError(t, err)
}
