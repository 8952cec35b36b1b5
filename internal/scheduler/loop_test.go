package scheduler

import (
	"context"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/parrot-tester/internal/logger"
)

func startLoop(t *testing.T) (*Loop, context.CancelFunc, <-chan struct{}) {
	t.Helper()
	loop := NewLoop(8, logger.NewDiscard())
	ctx, cancel := context.WithCancel(t.Context())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		_ = loop.Run(ctx)
	}()
	return loop, cancel, stopped
}

func TestLoop_RunsTasksInOrder(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		loop, cancel, stopped := startLoop(t)

		var got []int
		for i := range 5 {
			require.NoError(t, loop.Post(t.Context(), func() { got = append(got, i) }))
		}
		require.NoError(t, loop.Do(t.Context(), func() {}))
		assert.Equal(t, []int{0, 1, 2, 3, 4}, got)

		cancel()
		<-stopped
	})
}

func TestLoop_TimerFiresOnLoop(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		loop, cancel, stopped := startLoop(t)

		fired := make(chan time.Duration, 1)
		start := time.Now()
		require.NoError(t, loop.Do(t.Context(), func() {
			loop.After(350*time.Millisecond, func() { fired <- time.Since(start) })
		}))

		elapsed := <-fired
		assert.Equal(t, 350*time.Millisecond, elapsed)

		cancel()
		<-stopped
	})
}

func TestLoop_CancelPreventsCallback(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		loop, cancel, stopped := startLoop(t)

		calls := 0
		var timer *Timer
		require.NoError(t, loop.Do(t.Context(), func() {
			timer = loop.After(100*time.Millisecond, func() { calls++ })
		}))
		require.NoError(t, loop.Do(t.Context(), func() { loop.Cancel(timer) }))

		time.Sleep(time.Second)
		synctest.Wait()
		require.NoError(t, loop.Do(t.Context(), func() {}))

		assert.Zero(t, calls)
		assert.True(t, timer.Cancelled())
		assert.False(t, timer.Fired())
		loop.Cancel(timer)
		loop.Cancel(nil)

		cancel()
		<-stopped
	})
}

func TestLoop_RecoversFromPanic(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		loop, cancel, stopped := startLoop(t)

		require.NoError(t, loop.Post(t.Context(), func() { panic("boom") }))
		ran := false
		require.NoError(t, loop.Do(t.Context(), func() { ran = true }))
		assert.True(t, ran)

		cancel()
		<-stopped
	})
}

func TestLoop_PostAfterStop(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		loop, cancel, stopped := startLoop(t)
		cancel()
		<-stopped

		assert.ErrorIs(t, loop.Post(t.Context(), func() {}), ErrLoopStopped)
		assert.ErrorIs(t, loop.Do(t.Context(), func() {}), ErrLoopStopped)
	})
}
