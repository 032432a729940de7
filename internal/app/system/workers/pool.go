// internal/app/system/workers/pool.go
package workers

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Pool runs submitted tasks concurrently with at most size in flight.
// Each chat update is one task; updates from the same user may run in
// parallel, so per-user ordering is the caller's concern.
type Pool struct {
	log  *zap.Logger
	sem  chan struct{}
	wg   sync.WaitGroup
	mu   sync.Mutex
	done bool
}

// NewPool creates a pool that allows size concurrent tasks (minimum 1).
func NewPool(size int, logger *zap.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{log: logger, sem: make(chan struct{}, size)}
}

// Submit blocks until a slot is free (or ctx is done), then runs fn in a
// new goroutine. Panics inside fn are recovered and logged so one bad
// update cannot take the process down.
func (p *Pool) Submit(ctx context.Context, name string, fn func()) error {
	p.mu.Lock()
	if p.done {
		p.mu.Unlock()
		return fmt.Errorf("workers: pool closed")
	}
	p.wg.Add(1)
	p.mu.Unlock()

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		p.wg.Done()
		return ctx.Err()
	}

	go func() {
		defer p.wg.Done()
		defer func() { <-p.sem }()
		defer func() {
			if r := recover(); r != nil {
				p.log.Error("task panicked", zap.String("task", name), zap.Any("panic", r))
			}
		}()
		fn()
	}()
	return nil
}

// Close refuses new tasks and waits for in-flight ones to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	p.done = true
	p.mu.Unlock()
	p.wg.Wait()
}
