package core

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func blockingTask(release <-chan struct{}, done *atomic.Int32) Task {
	return func(context.Context) {
		<-release
		done.Add(1)
	}
}

func TestPoolGrowsThenRejects(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := NewPool(PoolConfig{CoreWorkers: 1, MaxWorkers: 2, QueueCapacity: 1, IdleTimeout: time.Minute}, quietLogger())
	release := make(chan struct{})
	var done atomic.Int32

	require.NoError(t, p.Submit(blockingTask(release, &done)))
	require.NoError(t, p.Submit(blockingTask(release, &done)))
	assert.Equal(t, 1, p.Workers())
	assert.Equal(t, 1, p.QueueLen())

	require.NoError(t, p.Submit(blockingTask(release, &done)))
	assert.Equal(t, 2, p.Workers())

	require.ErrorIs(t, p.Submit(blockingTask(release, &done)), ErrQueueFull)

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, p.Shutdown(ctx))
	assert.EqualValues(t, 3, done.Load())
	assert.Equal(t, 0, p.Workers())
}

func TestPoolRetiresIdleWorkers(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := NewPool(PoolConfig{CoreWorkers: 1, MaxWorkers: 3, QueueCapacity: 1, IdleTimeout: 30 * time.Millisecond}, quietLogger())
	release := make(chan struct{})
	var done atomic.Int32

	for i := 0; i < 4; i++ {
		require.NoError(t, p.Submit(blockingTask(release, &done)))
	}
	assert.Equal(t, 3, p.Workers())

	close(release)
	require.Eventually(t, func() bool {
		return done.Load() == 4 && p.Workers() == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, p.Shutdown(context.Background()))
}

func TestPoolShutdownDrainsQueue(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := NewPool(PoolConfig{CoreWorkers: 1, MaxWorkers: 1, QueueCapacity: 10}, quietLogger())
	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		require.NoError(t, p.Submit(func(context.Context) {
			time.Sleep(time.Millisecond)
			ran.Add(1)
		}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, p.Shutdown(ctx))
	assert.EqualValues(t, 10, ran.Load())

	require.ErrorIs(t, p.Submit(func(context.Context) {}), ErrPoolClosed)
	require.NoError(t, p.Shutdown(ctx))
}

func TestPoolForcedShutdownCancelsTasks(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := NewPool(PoolConfig{CoreWorkers: 1, MaxWorkers: 1, QueueCapacity: 1}, quietLogger())
	started := make(chan struct{})
	finished := make(chan struct{})
	require.NoError(t, p.Submit(func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(finished)
	}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, p.Shutdown(ctx), context.DeadlineExceeded)

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("task context was not cancelled")
	}
}

func TestPoolSurvivesPanics(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := NewPool(PoolConfig{CoreWorkers: 1, MaxWorkers: 1, QueueCapacity: 4}, quietLogger())
	require.NoError(t, p.Submit(func(context.Context) { panic("bad task") }))

	ran := make(chan struct{})
	require.NoError(t, p.Submit(func(context.Context) { close(ran) }))
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("worker died after a panic")
	}
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestDefaultPoolConfig(t *testing.T) {
	cfg := DefaultPoolConfig()
	assert.Positive(t, cfg.CoreWorkers)
	assert.Equal(t, 2*cfg.CoreWorkers, cfg.MaxWorkers)
	assert.Equal(t, 1000, cfg.QueueCapacity)

	norm := PoolConfig{CoreWorkers: 4, MaxWorkers: 1}.normalize()
	assert.Equal(t, 4, norm.MaxWorkers)
	assert.Equal(t, 1000, norm.QueueCapacity)
}
