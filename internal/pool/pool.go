// Package pool 提供固定大小的 goroutine 池，限制并发执行的管线任务数。
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

var (
	ErrPoolClosed = errors.New("pool is closed")
	ErrPoolFull   = errors.New("pool is full")
)

// Task 一个工作单元。ctx 为提交时传入的 context。
type Task func(ctx context.Context) error

// Config 池配置
type Config struct {
	Workers   int `yaml:"workers" json:"workers"`
	QueueSize int `yaml:"queue_size" json:"queue_size"`
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		Workers:   16,
		QueueSize: 256,
	}
}

// Stats 运行统计
type Stats struct {
	Workers   int   `json:"workers"`
	Active    int32 `json:"active"`
	Queued    int   `json:"queued"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Rejected  int64 `json:"rejected"`
}

type job struct {
	ctx  context.Context
	task Task
}

// Pool 固定数量的 worker 从有界队列取任务执行。
// 队列满时 TrySubmit 立即返回 ErrPoolFull，不阻塞调用方。
type Pool struct {
	workers int
	queue   chan job
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	active    atomic.Int32
	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64
}

// New 创建并启动池
func New(cfg Config, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = def.QueueSize
	}

	p := &Pool{
		workers: cfg.Workers,
		queue:   make(chan job, cfg.QueueSize),
		logger:  logger.With(zap.String("component", "worker_pool")),
	}
	p.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go p.worker()
	}
	return p
}

// TrySubmit 非阻塞提交。已提交的任务即使 ctx 已取消也会被执行，由任务自行检查 ctx。
func (p *Pool) TrySubmit(ctx context.Context, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.queue <- job{ctx: ctx, task: task}:
		p.submitted.Add(1)
		return nil
	default:
		p.rejected.Add(1)
		return ErrPoolFull
	}
}

// Close 停止接收新任务，等待已排队任务执行完毕
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}

// Stats 返回运行统计
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:   p.workers,
		Active:    p.active.Load(),
		Queued:    len(p.queue),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Rejected:  p.rejected.Load(),
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for j := range p.queue {
		p.active.Add(1)
		err := p.execute(j)
		p.active.Add(-1)

		if err != nil {
			p.failed.Add(1)
			p.logger.Debug("task failed", zap.Error(err))
		} else {
			p.completed.Add(1)
		}
	}
}

func (p *Pool) execute(j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panicked", zap.Any("panic", r), zap.Stack("stack"))
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return j.task(j.ctx)
}
