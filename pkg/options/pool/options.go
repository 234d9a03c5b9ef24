// Package pool provides options for the background worker pool.
package pool

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/megaservice/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options 后台任务池配置（会话持久化等）。
type Options struct {
	// Capacity 池容量（最大并发 goroutine 数）
	Capacity int `json:"capacity" mapstructure:"capacity"`
	// ExpiryDuration goroutine 空闲过期时间
	ExpiryDuration time.Duration `json:"expiry-duration" mapstructure:"expiry-duration"`
	// Nonblocking 池满时直接拒绝任务
	Nonblocking bool `json:"nonblocking" mapstructure:"nonblocking"`
	// MaxBlockingTasks 阻塞模式下的最大等待任务数（0 表示无限制）
	MaxBlockingTasks int `json:"max-blocking-tasks" mapstructure:"max-blocking-tasks"`
	// DrainTimeout 关闭时等待任务完成的最长时间
	DrainTimeout time.Duration `json:"drain-timeout" mapstructure:"drain-timeout"`
}

// NewOptions 返回后台池默认配置。
func NewOptions() *Options {
	return &Options{
		Capacity:         50,
		ExpiryDuration:   60 * time.Second,
		Nonblocking:      true,
		MaxBlockingTasks: 100,
		DrainTimeout:     10 * time.Second,
	}
}

// AddFlags adds flags for pool options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "pool."
	fs.IntVar(&o.Capacity, p+"capacity", o.Capacity, "Maximum concurrent background tasks.")
	fs.DurationVar(&o.ExpiryDuration, p+"expiry-duration", o.ExpiryDuration, "Idle worker expiry duration.")
	fs.BoolVar(&o.Nonblocking, p+"nonblocking", o.Nonblocking, "Reject tasks instead of blocking when the pool is full.")
	fs.IntVar(&o.MaxBlockingTasks, p+"max-blocking-tasks", o.MaxBlockingTasks, "Maximum waiting tasks in blocking mode (0 = unlimited).")
	fs.DurationVar(&o.DrainTimeout, p+"drain-timeout", o.DrainTimeout, "Time to wait for running tasks on shutdown.")
}

// Validate validates the pool options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}
	var errs []error
	if o.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("pool.capacity must be positive"))
	}
	if o.ExpiryDuration <= 0 {
		errs = append(errs, fmt.Errorf("pool.expiry-duration must be positive"))
	}
	return errs
}

// Complete completes the pool options.
func (o *Options) Complete() error {
	return nil
}
