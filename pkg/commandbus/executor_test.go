package commandbus

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPool_RunsTasks(t *testing.T) {
	pool := NewWorkerPool(4, 16)
	var ran atomic.Int32
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		require.NoError(t, pool.Execute(func() {
			defer wg.Done()
			ran.Add(1)
		}))
	}
	wg.Wait()
	require.NoError(t, pool.Close())
	assert.Equal(t, int32(10), ran.Load())
}

func TestWorkerPool_RejectsWhenSaturated(t *testing.T) {
	pool := NewWorkerPool(1, 1)
	block := make(chan struct{})
	started := make(chan struct{})

	require.NoError(t, pool.Execute(func() {
		close(started)
		<-block
	}))
	<-started
	require.NoError(t, pool.Execute(func() { <-block }))

	assert.ErrorIs(t, pool.Execute(func() {}), ErrExecutorSaturated)

	close(block)
	require.NoError(t, pool.Close())
}

func TestWorkerPool_AdmitsAgainOnceTasksFinish(t *testing.T) {
	pool := NewWorkerPool(1, 0)
	done := make(chan struct{})

	require.NoError(t, pool.Execute(func() { close(done) }))
	<-done

	assert.Eventually(t, func() bool {
		return pool.Execute(func() {}) == nil
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, pool.Close())
}

func TestWorkerPool_CloseWaitsForRunningTasks(t *testing.T) {
	pool := NewWorkerPool(2, 0)
	var finished atomic.Bool

	require.NoError(t, pool.Execute(func() {
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
	}))
	require.NoError(t, pool.Close())
	assert.True(t, finished.Load())
}

func TestWorkerPool_RejectsAfterClose(t *testing.T) {
	pool := NewWorkerPool(2, 2)
	require.NoError(t, pool.Close())
	require.NoError(t, pool.Close())

	assert.ErrorIs(t, pool.Execute(func() {}), ErrExecutorClosed)
}

func TestReportResult(t *testing.T) {
	t.Run("invokes exactly one notification", func(t *testing.T) {
		cb := &recordingCallback{}
		require.NoError(t, report(&inlineExecutor{}, nopLogger(), cb, "value", nil))
		assert.Equal(t, []any{"value"}, cb.successes)
		assert.Empty(t, cb.failures)

		cb = &recordingCallback{}
		require.NoError(t, report(&inlineExecutor{}, nopLogger(), cb, "ignored", assert.AnError))
		assert.Empty(t, cb.successes)
		assert.Equal(t, []error{assert.AnError}, cb.failures)
	})

	t.Run("nil callback is tolerated", func(t *testing.T) {
		assert.NoError(t, report(&inlineExecutor{}, nopLogger(), nil, nil, assert.AnError))
	})

	t.Run("rejection is returned", func(t *testing.T) {
		rejecting := ExecutorFunc(func(func()) error { return ErrExecutorSaturated })
		err := report(rejecting, nopLogger(), &recordingCallback{}, nil, nil)
		assert.ErrorIs(t, err, ErrExecutorSaturated)
	})
}
