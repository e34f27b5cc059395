package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getpactd/pactd/pkg/logging"
)

func newTestScheduler(t *testing.T, cfg Config) *Scheduler {
	t.Helper()
	cfg.Logger = logging.Nop()
	s := NewScheduler(cfg)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s
}

func TestRunBlocksUntilResult(t *testing.T) {
	s := newTestScheduler(t, Config{Workers: 2})

	ran := false
	err := s.Run(context.Background(), func(ctx context.Context) error {
		time.Sleep(10 * time.Millisecond)
		ran = true
		return nil
	})
	require.NoError(t, err)
	// Run returned, so the task must have finished first.
	assert.True(t, ran)
}

func TestRunReturnsTaskError(t *testing.T) {
	s := newTestScheduler(t, Config{Workers: 1})

	want := errors.New("boom")
	err := s.Run(context.Background(), func(ctx context.Context) error {
		return want
	})
	assert.ErrorIs(t, err, want)
}

func TestRunConvertsPanicToError(t *testing.T) {
	s := newTestScheduler(t, Config{Workers: 1})

	err := s.Run(context.Background(), func(ctx context.Context) error {
		panic("worker went sideways")
	})
	require.Error(t, err)

	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "worker went sideways", pe.Value)
	assert.NotEmpty(t, pe.Stack)

	// The pool survives a panicking task.
	assert.NoError(t, s.Run(context.Background(), func(ctx context.Context) error {
		return nil
	}))
}

func TestConcurrentRunsKeepTheirOwnResults(t *testing.T) {
	s := newTestScheduler(t, Config{Workers: 4})

	errs := []error{errors.New("a"), errors.New("b"), errors.New("c"), nil}
	var wg sync.WaitGroup
	got := make([]error, len(errs))
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = s.Run(context.Background(), func(ctx context.Context) error {
				time.Sleep(time.Millisecond)
				return errs[i]
			})
		}(i)
	}
	wg.Wait()

	for i := range errs {
		assert.Equal(t, errs[i], got[i], "result %d belongs to submission %d", i, i)
	}
}

func TestShutdownDrainsAndRejects(t *testing.T) {
	s := NewScheduler(Config{Workers: 1, Logger: logging.Nop()})

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.Run(context.Background(), func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	shutdownDone := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdownDone <- s.Shutdown(ctx)
	}()

	// New submissions are rejected once draining has begun.
	assert.Eventually(t, func() bool {
		err := s.Run(context.Background(), func(ctx context.Context) error { return nil })
		return errors.Is(err, ErrShutDown)
	}, time.Second, 5*time.Millisecond)

	// The in-flight task still completes normally.
	close(release)
	require.NoError(t, <-done)
	require.NoError(t, <-shutdownDone)
}

func TestShutdownTwiceIsANoOp(t *testing.T) {
	s := NewScheduler(Config{Workers: 1, Logger: logging.Nop()})
	require.NoError(t, s.Shutdown(context.Background()))
	require.NoError(t, s.Shutdown(context.Background()))
}

func TestSharedSchedulerRebuildsAfterShutdown(t *testing.T) {
	t.Cleanup(func() { _ = Shutdown(context.Background()) })
	require.NoError(t, Configure(Config{Workers: 1, Logger: logging.Nop()}))

	require.NoError(t, Run(context.Background(), func(ctx context.Context) error { return nil }))
	require.NoError(t, Shutdown(context.Background()))

	// A fresh scheduler comes up transparently.
	require.NoError(t, Run(context.Background(), func(ctx context.Context) error { return nil }))
}

func TestConfigureRejectedWhileRunning(t *testing.T) {
	t.Cleanup(func() { _ = Shutdown(context.Background()) })
	_ = Shared()
	assert.Error(t, Configure(Config{Workers: 2}))
}
