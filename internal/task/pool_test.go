package task

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"leadsweep/pkg/logx"
)

func TestSubmitRunsAndSignalsHandle(t *testing.T) {
	t.Parallel()
	p := New(Config{Workers: 1}, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	var ran atomic.Bool
	h, err := p.Submit("job", func(context.Context) { ran.Store(true) })
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	if err := h.Wait(waitCtx); err != nil {
		t.Fatalf("Wait error: %v", err)
	}
	if !ran.Load() {
		t.Fatal("task did not run")
	}
}

func TestSubmitRejectsWhenQueueFull(t *testing.T) {
	t.Parallel()
	// Pool never started: everything queues.
	p := New(Config{Workers: 1, QueueSize: 1}, logx.Nop())

	if _, err := p.Submit("first", func(context.Context) {}); err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	if _, err := p.Submit("second", func(context.Context) {}); err == nil {
		t.Fatal("expected ErrQueueFull")
	}
}

func TestPanicDoesNotKillWorker(t *testing.T) {
	t.Parallel()
	p := New(Config{Workers: 1}, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	h1, err := p.Submit("boom", func(context.Context) { panic("boom") })
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	h2, err := p.Submit("after", func(context.Context) {})
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	if err := h1.Wait(waitCtx); err != nil {
		t.Fatalf("panicking task never finished: %v", err)
	}
	if err := h2.Wait(waitCtx); err != nil {
		t.Fatalf("worker died after a panic: %v", err)
	}
}

func TestSubmitRequiresFn(t *testing.T) {
	t.Parallel()
	p := New(Config{}, logx.Nop())
	if _, err := p.Submit("nil", nil); err == nil {
		t.Fatal("expected error for nil fn")
	}
}
