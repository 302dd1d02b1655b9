// Package task runs fire-and-forget work on a small worker pool.
//
// Manual "run now" requests go through here so they never block the
// scheduler's poll loop. Callers don't wait for completion, but every submit
// returns a Handle so tests (and shutdown paths) can join deterministically.
package task

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"leadsweep/pkg/logx"
)

type Config struct {
	Workers   int // default 2
	QueueSize int // default 16
}

// Handle tracks one submitted unit of work.
type Handle struct {
	name string
	done chan struct{}
}

// Done is closed when the work finishes (success, failure, or panic).
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the work finishes or ctx is cancelled.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type item struct {
	name string
	fn   func(ctx context.Context)
	h    *Handle
}

type Pool struct {
	cfg   Config
	log   logx.Logger
	queue chan item

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

var ErrQueueFull = errors.New("task queue full")

func New(cfg Config, log logx.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Pool{
		cfg:    cfg,
		log:    log,
		queue:  make(chan item, cfg.QueueSize),
		stopCh: make(chan struct{}),
	}
}

// Start launches the workers. ctx cancellation stops them after the current
// task finishes; queued-but-unstarted tasks are abandoned.
func (p *Pool) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		for i := 0; i < p.cfg.Workers; i++ {
			p.wg.Add(1)
			go func() {
				defer p.wg.Done()
				p.worker(ctx)
			}()
		}
	})
}

// Stop signals the workers and waits for in-flight tasks to finish.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
}

// Submit enqueues work without blocking. A full queue is reported to the
// caller rather than waited on: manual runs are best-effort by contract.
func (p *Pool) Submit(name string, fn func(ctx context.Context)) (*Handle, error) {
	if fn == nil {
		return nil, errors.New("fn required")
	}
	h := &Handle{name: name, done: make(chan struct{})}
	select {
	case p.queue <- item{name: name, fn: fn, h: h}:
		return h, nil
	default:
		return nil, fmt.Errorf("%w (cap %d)", ErrQueueFull, cap(p.queue))
	}
}

func (p *Pool) worker(ctx context.Context) {
	for {
		// Fast-exit check so a closed stopCh wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case it := <-p.queue:
			p.execOne(ctx, it)
		}
	}
}

func (p *Pool) execOne(ctx context.Context, it item) {
	defer close(it.h.done)
	start := time.Now()
	// Panic guard: one bad task must not kill the worker.
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("task panicked",
				logx.String("task", it.name),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())))
		}
	}()
	p.log.Debug("task started", logx.String("task", it.name))
	it.fn(ctx)
	p.log.Debug("task finished", logx.String("task", it.name), logx.Duration("took", time.Since(start)))
}
