// internal/app/delivery/reconciler.go
package delivery

import (
	"context"
	"errors"
	"sync"
	"time"

	resourcestore "github.com/dalemusser/groupvault/internal/app/store/resources"
	"github.com/dalemusser/groupvault/internal/domain/errs"
	"go.uber.org/zap"
)

// ReconcileConfig bounds one sweep.
type ReconcileConfig struct {
	// Grace skips tombstones younger than this so a sweep does not race the
	// delete that created them.
	Grace time.Duration
	// Batch is the most tombstones handled per sweep.
	Batch int64
	// MaxAttempts stops retrying a tombstone after this many failed
	// external deletes. Operators can reset the counter. Zero means no cap.
	MaxAttempts int
}

// Defaults used when a ReconcileConfig field is zero.
const (
	DefaultGrace       = 2 * time.Minute
	DefaultBatch       = 50
	DefaultMaxAttempts = 10
)

// Reconciler resumes phases two and three for resources left tombstoned by
// a failed external delete.
type Reconciler struct {
	c   *Coordinator
	cfg ReconcileConfig
	mu  sync.Mutex
}

func NewReconciler(c *Coordinator, cfg ReconcileConfig) *Reconciler {
	if cfg.Grace <= 0 {
		cfg.Grace = DefaultGrace
	}
	if cfg.Batch <= 0 {
		cfg.Batch = DefaultBatch
	}
	if cfg.MaxAttempts < 0 {
		cfg.MaxAttempts = 0
	}
	return &Reconciler{c: c, cfg: cfg}
}

// Sweep makes one pass over stale tombstones, oldest first. It returns how
// many were finalized and how many failed again. Sweeps are serialized.
func (r *Reconciler) Sweep(ctx context.Context) (finalized, failed int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.c.resources.ListTombstones(ctx, resourcestore.TombstoneFilter{
		OlderThan:   r.c.now().Add(-r.cfg.Grace),
		MaxAttempts: r.cfg.MaxAttempts,
		Limit:       r.cfg.Batch,
	})
	if err != nil {
		return 0, 0, err
	}

	for _, row := range rows {
		if ctx.Err() != nil {
			return finalized, failed, ctx.Err()
		}
		err := r.c.finish(ctx, row, 0)
		r.c.metrics.ReconcileOutcome(errs.Kind(err))
		var pf *errs.PartialFailure
		switch {
		case err == nil:
			finalized++
		case errors.As(err, &pf):
			failed++
		default:
			failed++
			r.c.log.Error("reconcile tombstone", zap.Int64("resource_id", row.ID), zap.Error(err))
		}
	}
	return finalized, failed, nil
}

// Retry resumes deletion of one tombstone regardless of its age. It is the
// handler for partial-failure events. Live or missing resources are a no-op,
// as are tombstones that have hit MaxAttempts.
func (r *Reconciler) Retry(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, err := r.c.resources.GetAnyGroup(ctx, id)
	if errors.Is(err, errs.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !row.Deleted {
		return nil
	}
	if r.cfg.MaxAttempts > 0 && row.DeleteAttempts >= r.cfg.MaxAttempts {
		return nil
	}
	err = r.c.finish(ctx, row, 0)
	r.c.metrics.ReconcileOutcome(errs.Kind(err))
	return err
}

// HandleEvent adapts Retry to the bus subscriber.
func (r *Reconciler) HandleEvent(ctx context.Context, ev Event) error {
	return r.Retry(ctx, ev.ResourceID)
}
