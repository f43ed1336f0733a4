package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPool_RunsTasks(t *testing.T) {
	p := New(Config{Workers: 4, QueueSize: 16}, zap.NewNop())

	var n atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		require.NoError(t, p.TrySubmit(context.Background(), func(context.Context) error {
			defer wg.Done()
			n.Add(1)
			return nil
		}))
	}
	wg.Wait()
	p.Close()

	assert.Equal(t, int32(10), n.Load())
	stats := p.Stats()
	assert.Equal(t, int64(10), stats.Submitted)
	assert.Equal(t, int64(10), stats.Completed)
	assert.Equal(t, 4, stats.Workers)
}

func TestPool_RejectsWhenFull(t *testing.T) {
	p := New(Config{Workers: 1, QueueSize: 1}, zap.NewNop())
	defer p.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, p.TrySubmit(context.Background(), func(context.Context) error {
		close(started)
		<-release
		return nil
	}))
	<-started

	// worker 忙，队列剩一个位置
	require.NoError(t, p.TrySubmit(context.Background(), func(context.Context) error { return nil }))
	err := p.TrySubmit(context.Background(), func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrPoolFull)
	assert.Equal(t, int64(1), p.Stats().Rejected)

	close(release)
}

func TestPool_CloseDrainsQueue(t *testing.T) {
	p := New(Config{Workers: 1, QueueSize: 8}, zap.NewNop())

	var n atomic.Int32
	for i := 0; i < 5; i++ {
		require.NoError(t, p.TrySubmit(context.Background(), func(context.Context) error {
			time.Sleep(time.Millisecond)
			n.Add(1)
			return nil
		}))
	}
	p.Close()
	assert.Equal(t, int32(5), n.Load())

	assert.ErrorIs(t, p.TrySubmit(context.Background(), func(context.Context) error { return nil }), ErrPoolClosed)
	// 重复关闭无副作用
	p.Close()
}

func TestPool_CountsFailuresAndPanics(t *testing.T) {
	p := New(Config{Workers: 2, QueueSize: 4}, zap.NewNop())

	require.NoError(t, p.TrySubmit(context.Background(), func(context.Context) error { return errors.New("boom") }))
	require.NoError(t, p.TrySubmit(context.Background(), func(context.Context) error { panic("kaboom") }))
	require.NoError(t, p.TrySubmit(context.Background(), func(context.Context) error { return nil }))
	p.Close()

	stats := p.Stats()
	assert.Equal(t, int64(2), stats.Failed)
	assert.Equal(t, int64(1), stats.Completed)
	assert.Zero(t, stats.Active)
}

func TestPool_PassesContext(t *testing.T) {
	p := New(Config{Workers: 1}, nil)
	defer p.Close()

	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "v")
	got := make(chan any, 1)
	require.Eventually(t, func() bool {
		return p.TrySubmit(ctx, func(ctx context.Context) error {
			got <- ctx.Value(key{})
			return nil
		}) == nil
	}, time.Second, time.Millisecond)
	assert.Equal(t, "v", <-got)
}

func TestNew_Defaults(t *testing.T) {
	p := New(Config{Workers: 0, QueueSize: -1}, nil)
	defer p.Close()

	assert.Equal(t, DefaultConfig().Workers, p.Stats().Workers)
	assert.Equal(t, DefaultConfig().QueueSize, cap(p.queue))
}
