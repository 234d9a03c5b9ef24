package pool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	options "github.com/kart-io/megaservice/pkg/options/pool"
)

func TestPool_Submit(t *testing.T) {
	opts := options.NewOptions()
	opts.Capacity = 10
	opts.Nonblocking = false
	opts.MaxBlockingTasks = 0

	p, err := NewPool("test", opts)
	require.NoError(t, err)
	defer func() { _ = p.Release() }()
	assert.Equal(t, "test", p.Name())

	var counter atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		err := p.Submit(func() {
			defer wg.Done()
			counter.Add(1)
		})
		if !assert.NoError(t, err) {
			wg.Done()
		}
	}
	wg.Wait()

	assert.EqualValues(t, 100, counter.Load())
	assert.EqualValues(t, 100, p.Stats().Submitted)
}

func TestPool_Overload(t *testing.T) {
	opts := options.NewOptions()
	opts.Capacity = 1

	p, err := NewPool("overload", opts)
	require.NoError(t, err)
	defer func() { _ = p.Release() }()

	block := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.Submit(func() {
		close(started)
		<-block
	}))
	<-started

	// 非阻塞模式下池满直接拒绝
	assert.ErrorIs(t, p.Submit(func() {}), ErrPoolOverload)
	assert.EqualValues(t, 1, p.Stats().Rejected)
	close(block)
}

func TestPool_PanicRecovered(t *testing.T) {
	p, err := NewPool("panic", options.NewOptions())
	require.NoError(t, err)
	defer func() { _ = p.Release() }()

	require.NoError(t, p.Submit(func() { panic("boom") }))
	assert.Eventually(t, func() bool { return p.Stats().Panics == 1 }, time.Second, 10*time.Millisecond)
	assert.Zero(t, p.Stats().Completed)
}

func TestPool_ReleaseWaitsAndRejects(t *testing.T) {
	p, err := NewPool("release", options.NewOptions())
	require.NoError(t, err)

	var done atomic.Bool
	require.NoError(t, p.Submit(func() {
		time.Sleep(50 * time.Millisecond)
		done.Store(true)
	}))

	require.NoError(t, p.Release())
	assert.True(t, done.Load())
	assert.ErrorIs(t, p.Submit(func() {}), ErrPoolClosed)
	assert.NoError(t, p.Release())
}
