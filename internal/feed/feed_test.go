package feed

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingRunner struct {
	runs      atomic.Int32
	failUntil int32
}

func (r *countingRunner) Run(ctx context.Context) error {
	n := r.runs.Add(1)
	if n <= r.failUntil {
		return nil // exits immediately, triggering a supervised restart
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestHandlerRestartsExitedTask(t *testing.T) {
	h := New(nil)
	runner := &countingRunner{failUntil: 2}
	h.AddFeed(runner)

	ctx, cancel := context.WithCancel(context.Background())
	h.Run(ctx)

	// restarts wait 1s then 2s, so the third run starts after about 3s.
	require.Eventually(t, func() bool {
		return runner.runs.Load() >= 3
	}, 5*time.Second, 5*time.Millisecond)

	cancel()
	h.Stop()
}

func TestHandlerStopAwaitsDrain(t *testing.T) {
	h := New(nil)
	runner := &countingRunner{failUntil: 0}
	h.AddFeed(runner)

	ctx := context.Background()
	h.Run(ctx)
	require.Eventually(t, func() bool { return runner.runs.Load() >= 1 }, time.Second, 5*time.Millisecond)

	h.Stop()
	require.GreaterOrEqual(t, runner.runs.Load(), int32(1))
}

type panickingRunner struct {
	runs       atomic.Int32
	panicUntil int32
}

func (r *panickingRunner) Run(ctx context.Context) error {
	n := r.runs.Add(1)
	if n <= r.panicUntil {
		panic("boom")
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestHandlerRecoversPanickingTask(t *testing.T) {
	h := New(nil)
	runner := &panickingRunner{panicUntil: 2}
	h.AddFeed(runner)

	ctx, cancel := context.WithCancel(context.Background())
	h.Run(ctx)

	require.Eventually(t, func() bool {
		return runner.runs.Load() >= 3
	}, 5*time.Second, 5*time.Millisecond)

	cancel()
	h.Stop()
}

func TestAddFeedWhileRunningStartsImmediately(t *testing.T) {
	h := New(nil)
	h.Run(context.Background())

	runner := &countingRunner{failUntil: 0}
	h.AddFeed(runner)

	require.Eventually(t, func() bool { return runner.runs.Load() >= 1 }, time.Second, 5*time.Millisecond)
	h.Stop()
}
