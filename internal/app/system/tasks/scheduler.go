// internal/app/system/tasks/scheduler.go
package tasks

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is a named unit of periodic background work.
type Job struct {
	Name     string
	Interval time.Duration
	// Timeout bounds a single run; zero means Interval.
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// Scheduler runs each registered Job on its own ticker until stopped.
type Scheduler struct {
	log    *zap.Logger
	jobs   []Job
	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// NewScheduler creates a scheduler for the given jobs.
func NewScheduler(logger *zap.Logger, jobs ...Job) *Scheduler {
	return &Scheduler{
		log:    logger,
		jobs:   jobs,
		stopCh: make(chan struct{}),
	}
}

// Start launches one goroutine per job. Jobs with a non-positive interval
// are skipped.
func (s *Scheduler) Start() {
	for _, j := range s.jobs {
		if j.Interval <= 0 || j.Run == nil {
			s.log.Info("background job disabled", zap.String("job", j.Name))
			continue
		}
		s.wg.Add(1)
		go s.loop(j)
		s.log.Info("background job started",
			zap.String("job", j.Name),
			zap.Duration("interval", j.Interval))
	}
}

// Stop signals all jobs to stop and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.stopCh) })
	s.wg.Wait()
	s.log.Info("background jobs stopped")
}

func (s *Scheduler) loop(j Job) {
	defer s.wg.Done()

	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.runOnce(j)
		}
	}
}

func (s *Scheduler) runOnce(j Job) {
	timeout := j.Timeout
	if timeout <= 0 {
		timeout = j.Interval
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Stop cancels an in-flight run instead of waiting out its timeout.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-s.stopCh:
			cancel()
		case <-done:
		}
	}()

	start := time.Now()
	if err := j.Run(ctx); err != nil {
		s.log.Error("background job failed",
			zap.String("job", j.Name),
			zap.Duration("took", time.Since(start)),
			zap.Error(err))
	}
}
