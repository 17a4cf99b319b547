package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaneisley/snatch/pkg/scheduler"
)

func TestPool_LaunchBeforeStart(t *testing.T) {
	pool := NewPool(1, func(ctx context.Context, job scheduler.Job) {}, nil)

	err := pool.Launch(scheduler.Job{ID: "a"})

	assert.ErrorIs(t, err, ErrPoolStopped)
}

func TestPool_RunsLaunchedJob(t *testing.T) {
	// Given a started pool
	ran := make(chan string, 1)
	pool := NewPool(1, func(ctx context.Context, job scheduler.Job) { ran <- job.ID }, nil)
	pool.Start()
	defer pool.Stop()

	// When a job is launched
	require.NoError(t, pool.Launch(scheduler.Job{ID: "a"}))

	// Then it runs on a worker goroutine
	select {
	case id := <-ran:
		assert.Equal(t, "a", id)
	case <-time.After(time.Second):
		t.Fatal("job did not run")
	}
	assert.Equal(t, 1, pool.Stats()["launched"])
}

func TestPool_BusyWhenQueueFull(t *testing.T) {
	// Given a single worker blocked on a job and one queued behind it
	release := make(chan struct{})
	started := make(chan struct{}, 2)
	pool := NewPool(1, func(ctx context.Context, job scheduler.Job) {
		started <- struct{}{}
		<-release
	}, nil)
	pool.Start()
	defer func() {
		close(release)
		pool.Stop()
	}()

	require.NoError(t, pool.Launch(scheduler.Job{ID: "a"}))
	<-started
	require.NoError(t, pool.Launch(scheduler.Job{ID: "b"}))

	// When a third job is launched
	err := pool.Launch(scheduler.Job{ID: "c"})

	// Then it is rejected without blocking
	assert.ErrorIs(t, err, ErrPoolBusy)
}

func TestPool_StopCancelsRunningJob(t *testing.T) {
	// Given a job that waits for cancellation
	var mu sync.Mutex
	var cancelled bool
	started := make(chan struct{})
	pool := NewPool(1, func(ctx context.Context, job scheduler.Job) {
		close(started)
		<-ctx.Done()
		mu.Lock()
		cancelled = true
		mu.Unlock()
	}, nil)
	pool.Start()
	require.NoError(t, pool.Launch(scheduler.Job{ID: "a"}))
	<-started

	// When the pool stops
	pool.Stop()

	// Then the job observed cancellation before Stop returned
	mu.Lock()
	assert.True(t, cancelled)
	mu.Unlock()

	// And further launches fail
	assert.ErrorIs(t, pool.Launch(scheduler.Job{ID: "b"}), ErrPoolStopped)
	assert.Equal(t, true, pool.Stats()["stopped"])
}

func TestPool_StopIsIdempotent(t *testing.T) {
	pool := NewPool(0, func(ctx context.Context, job scheduler.Job) {}, nil)
	pool.Start()

	pool.Stop()
	pool.Stop()

	assert.Equal(t, 1, pool.Stats()["workers"])
}
