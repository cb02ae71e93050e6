package core

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"time"
)

// Task is a unit of work executed by the Pool. The context is cancelled when
// the pool is forced to stop.
type Task func(ctx context.Context)

// PoolConfig sizes a Pool.
type PoolConfig struct {
	// CoreWorkers are started on demand and never retired
	CoreWorkers int

	// MaxWorkers caps the number of workers, core ones included
	MaxWorkers int

	// QueueCapacity is the size of the shared task queue
	QueueCapacity int

	// IdleTimeout retires non-core workers that found no work for this long
	IdleTimeout time.Duration
}

// DefaultPoolConfig sizes the pool to the available parallelism.
func DefaultPoolConfig() PoolConfig {
	n := runtime.NumCPU()
	return PoolConfig{
		CoreWorkers:   n,
		MaxWorkers:    2 * n,
		QueueCapacity: 1000,
		IdleTimeout:   60 * time.Second,
	}
}

func (c PoolConfig) normalize() PoolConfig {
	def := DefaultPoolConfig()
	if c.CoreWorkers <= 0 {
		c.CoreWorkers = def.CoreWorkers
	}
	if c.MaxWorkers < c.CoreWorkers {
		c.MaxWorkers = c.CoreWorkers
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = def.QueueCapacity
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = def.IdleTimeout
	}
	return c
}

// Pool is a bounded worker pool.
//
// Submission follows the classic executor rules: below CoreWorkers a new
// worker is started for the task; otherwise the task is queued; when the
// queue is full a non-core worker is started up to MaxWorkers; past that
// the task is rejected with ErrQueueFull.
type Pool struct {
	cfg    PoolConfig
	tasks  chan Task
	logger *slog.Logger

	mu      sync.Mutex
	workers int
	closed  bool
	drain   chan struct{}

	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool creates a pool. Workers are started lazily.
func NewPool(cfg PoolConfig, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.normalize()
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		cfg:    cfg,
		tasks:  make(chan Task, cfg.QueueCapacity),
		logger: logger,
		drain:  make(chan struct{}),
		runCtx: ctx,
		cancel: cancel,
	}
}

// Config returns the effective pool configuration.
func (p *Pool) Config() PoolConfig {
	return p.cfg
}

// Context returns the context handed to tasks. It is cancelled when the pool
// is forced to stop.
func (p *Pool) Context() context.Context {
	return p.runCtx
}

// Workers returns the number of live workers.
func (p *Pool) Workers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.workers
}

// QueueLen returns the number of queued tasks.
func (p *Pool) QueueLen() int {
	return len(p.tasks)
}

// Submit schedules a task without blocking.
func (p *Pool) Submit(task Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}
	if p.workers < p.cfg.CoreWorkers {
		p.spawnLocked(task, true)
		return nil
	}

	select {
	case p.tasks <- task:
		return nil
	default:
	}

	if p.workers < p.cfg.MaxWorkers {
		p.spawnLocked(task, false)
		return nil
	}
	return ErrQueueFull
}

func (p *Pool) spawnLocked(first Task, core bool) {
	p.workers++
	p.wg.Add(1)
	go p.worker(first, core)
}

func (p *Pool) worker(first Task, core bool) {
	defer p.wg.Done()

	if first != nil {
		p.run(first)
	}

	var idle <-chan time.Time
	var timer *time.Timer
	if !core {
		timer = time.NewTimer(p.cfg.IdleTimeout)
		defer timer.Stop()
		idle = timer.C
	}

	for {
		select {
		case task := <-p.tasks:
			p.run(task)
			if timer != nil {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(p.cfg.IdleTimeout)
			}

		case <-idle:
			p.mu.Lock()
			p.workers--
			p.mu.Unlock()
			return

		case <-p.drain:
			for {
				select {
				case task := <-p.tasks:
					p.run(task)
				default:
					p.mu.Lock()
					p.workers--
					p.mu.Unlock()
					return
				}
			}
		}
	}
}

func (p *Pool) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("pool task panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	task(p.runCtx)
}

// Shutdown stops accepting tasks and waits for queued and running tasks to
// finish. When ctx expires first the task context is cancelled and Shutdown
// returns without waiting further.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.drain)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		p.logger.Warn("pool drain deadline exceeded, cancelling outstanding work",
			"workers", p.Workers(),
			"queued", p.QueueLen())
		return fmt.Errorf("pool shutdown: %w", ctx.Err())
	}
}
