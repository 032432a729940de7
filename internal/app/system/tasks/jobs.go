// internal/app/system/tasks/jobs.go
package tasks

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// WorkflowSweeper removes idle upload workflows.
type WorkflowSweeper interface {
	SweepExpired(now time.Time) int
}

// TombstoneReconciler retries external deletion for stale tombstones.
type TombstoneReconciler interface {
	Sweep(ctx context.Context) (finalized, failed int, err error)
}

// WorkflowSweepJob creates a job that garbage-collects expired upload workflows.
// Expiry is also enforced lazily on the next touch; this only bounds memory.
func WorkflowSweepJob(sweeper WorkflowSweeper, logger *zap.Logger, interval time.Duration) Job {
	return Job{
		Name:     "upload-workflow-sweep",
		Interval: interval,
		Run: func(ctx context.Context) error {
			if n := sweeper.SweepExpired(time.Now()); n > 0 {
				logger.Info("expired upload workflows removed", zap.Int("count", n))
			}
			return nil
		},
	}
}

// ReconcileJob creates a job that resumes phases two and three of deletion
// for Resources left tombstoned by a failed external delete.
func ReconcileJob(rec TombstoneReconciler, logger *zap.Logger, interval, timeout time.Duration) Job {
	return Job{
		Name:     "tombstone-reconcile",
		Interval: interval,
		Timeout:  timeout,
		Run: func(ctx context.Context) error {
			finalized, failed, err := rec.Sweep(ctx)
			if err != nil {
				return err
			}
			if finalized > 0 || failed > 0 {
				logger.Info("tombstone reconcile pass",
					zap.Int("finalized", finalized),
					zap.Int("failed", failed))
			}
			return nil
		},
	}
}
