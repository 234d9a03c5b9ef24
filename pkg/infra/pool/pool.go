// Package pool wraps ants goroutine pools for background work such as
// persisting streamed conversation turns after the response is flushed.
package pool

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kart-io/logger"
	"github.com/panjf2000/ants/v2"

	options "github.com/kart-io/megaservice/pkg/options/pool"
)

var (
	// ErrPoolClosed 池已关闭或正在排空。
	ErrPoolClosed = errors.New("pool is closed")
	// ErrPoolOverload 非阻塞模式下池已满。
	ErrPoolOverload = errors.New("pool is overloaded")
)

// Pool represents a named worker pool.
type Pool struct {
	name   string
	pool   *ants.Pool
	drain  time.Duration
	closed atomic.Bool
	mu     sync.Mutex

	submitted atomic.Int64
	completed atomic.Int64
	rejected  atomic.Int64
	panics    atomic.Int64
}

// Stats 池统计信息快照
type Stats struct {
	Running   int   `json:"running"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Rejected  int64 `json:"rejected"`
	Panics    int64 `json:"panics"`
}

// NewPool creates a new worker pool with the given configuration.
func NewPool(name string, opts *options.Options) (*Pool, error) {
	if opts == nil {
		opts = options.NewOptions()
	}

	p := &Pool{name: name, drain: opts.DrainTimeout}
	pool, err := ants.NewPool(opts.Capacity,
		ants.WithExpiryDuration(opts.ExpiryDuration),
		ants.WithNonblocking(opts.Nonblocking),
		ants.WithMaxBlockingTasks(opts.MaxBlockingTasks),
		ants.WithPanicHandler(func(r any) {
			p.panics.Add(1)
			logger.Errorw("Worker panic recovered", "pool", name, "panic", r)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("创建 ants 池失败: %w", err)
	}
	p.pool = pool

	logger.Infow("Worker pool created", "name", name, "capacity", opts.Capacity)
	return p, nil
}

// Name 返回池名称
func (p *Pool) Name() string {
	return p.name
}

// Submit 提交任务到池中执行
func (p *Pool) Submit(task func()) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}

	err := p.pool.Submit(func() {
		task()
		p.completed.Add(1)
	})
	if err != nil {
		if errors.Is(err, ants.ErrPoolOverload) {
			p.rejected.Add(1)
			return ErrPoolOverload
		}
		if errors.Is(err, ants.ErrPoolClosed) {
			return ErrPoolClosed
		}
		return err
	}
	p.submitted.Add(1)
	return nil
}

// Stats 返回池统计信息快照
func (p *Pool) Stats() Stats {
	return Stats{
		Running:   p.pool.Running(),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Rejected:  p.rejected.Load(),
		Panics:    p.panics.Load(),
	}
}

// Release 关闭池，等待运行中的任务直到超时
func (p *Pool) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed.Swap(true) {
		return nil
	}
	err := p.pool.ReleaseTimeout(p.drain)
	logger.Infow("Worker pool released", "name", p.name, "completed", p.completed.Load())
	return err
}
