package workers

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestPool_BoundsConcurrency(t *testing.T) {
	p := NewPool(2, zap.NewNop())

	var inFlight, peak atomic.Int32
	for i := 0; i < 10; i++ {
		err := p.Submit(context.Background(), "t", func() {
			n := inFlight.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
		})
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	p.Close()

	if peak.Load() > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak.Load())
	}
}

func TestPool_RecoversPanic(t *testing.T) {
	p := NewPool(1, zap.NewNop())
	if err := p.Submit(context.Background(), "boom", func() { panic("boom") }); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	var ran atomic.Bool
	if err := p.Submit(context.Background(), "after", func() { ran.Store(true) }); err != nil {
		t.Fatalf("Submit after panic: %v", err)
	}
	p.Close()

	if !ran.Load() {
		t.Error("pool should keep working after a task panics")
	}
}

func TestPool_SubmitAfterClose(t *testing.T) {
	p := NewPool(1, zap.NewNop())
	p.Close()
	if err := p.Submit(context.Background(), "late", func() {}); err == nil {
		t.Error("expected error submitting to a closed pool")
	}
}

func TestPool_SubmitHonorsContext(t *testing.T) {
	p := NewPool(1, zap.NewNop())
	release := make(chan struct{})
	_ = p.Submit(context.Background(), "hold", func() { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := p.Submit(ctx, "blocked", func() {}); err == nil {
		t.Error("expected context error while pool is full")
	}
	close(release)
	p.Close()
}
