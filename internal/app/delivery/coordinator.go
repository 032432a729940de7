// internal/app/delivery/coordinator.go
package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	resourcestore "github.com/dalemusser/groupvault/internal/app/store/resources"
	"github.com/dalemusser/groupvault/internal/app/system/auditlog"
	"github.com/dalemusser/groupvault/internal/app/system/metrics"
	"github.com/dalemusser/groupvault/internal/app/system/txn"
	"github.com/dalemusser/groupvault/internal/app/transport"
	"github.com/dalemusser/groupvault/internal/domain/errs"
	"github.com/dalemusser/groupvault/internal/domain/models"
	"go.uber.org/zap"
)

// ResourceStore is the resource persistence deletion needs.
type ResourceStore interface {
	GetByID(ctx context.Context, groupID, id int64) (models.Resource, error)
	GetAnyGroup(ctx context.Context, id int64) (models.Resource, error)
	GetLive(ctx context.Context, groupID, id int64) (models.Resource, error)
	Tombstone(ctx context.Context, groupID, id, by int64) (models.Resource, error)
	HardDelete(ctx context.Context, id int64) (int64, error)
	RecordDeleteFailure(ctx context.Context, id int64, reason string) error
	ListTombstones(ctx context.Context, f resourcestore.TombstoneFilter) ([]models.Resource, error)
}

// EditStore appends to the resource edit log.
type EditStore interface {
	Append(ctx context.Context, e models.ResourceEdit) (models.ResourceEdit, error)
}

// RoleReader answers role lookups for authorization.
type RoleReader interface {
	GetRole(ctx context.Context, groupID, userID int64) (models.Role, error)
}

// Deps groups the coordinator's collaborators.
type Deps struct {
	Resources ResourceStore
	Edits     EditStore
	Roles     RoleReader
	Transport transport.Transport
	Tx        txn.Runner
	Publisher Publisher
	Metrics   *metrics.Metrics
	Audit     *auditlog.Logger
	Log       *zap.Logger
}

// Coordinator re-delivers artifacts and runs the three-phase delete:
// tombstone the row, remove the external message, then hard-delete the row.
// No store transaction is held while the transport call is in flight.
type Coordinator struct {
	resources ResourceStore
	edits     EditStore
	roles     RoleReader
	transport transport.Transport
	tx        txn.Runner
	publisher Publisher
	metrics   *metrics.Metrics
	audit     *auditlog.Logger
	log       *zap.Logger
	now       func() time.Time
}

func NewCoordinator(d Deps) *Coordinator {
	if d.Tx == nil {
		d.Tx = txn.Direct
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Publisher == nil {
		d.Publisher = LogPublisher{Log: d.Log}
	}
	return &Coordinator{
		resources: d.Resources,
		edits:     d.Edits,
		roles:     d.Roles,
		transport: d.Transport,
		tx:        d.Tx,
		publisher: d.Publisher,
		metrics:   d.Metrics,
		audit:     d.Audit,
		log:       d.Log,
		now:       time.Now,
	}
}

// SetClock replaces the time source used for event timestamps and the
// reconciler's grace window.
func (c *Coordinator) SetClock(now func() time.Time) { c.now = now }

// Deliver sends a copy of a live resource's artifact to the target chat.
// Absent and tombstoned resources are ErrNotFound; transport errors wrap
// ErrUpstreamTransient.
func (c *Coordinator) Deliver(ctx context.Context, groupID, id, requesterID int64, to transport.Target) (ref models.ArtifactRef, err error) {
	defer func() { c.metrics.DeliveryOutcome(errs.Kind(err)) }()

	r, err := c.resources.GetLive(ctx, groupID, id)
	if err != nil {
		return models.ArtifactRef{}, err
	}
	if err := c.transport.SendArtifact(ctx, to, r.Artifact); err != nil {
		c.log.Warn("artifact delivery failed",
			zap.Int64("resource_id", id),
			zap.Int64("requester_id", requesterID),
			zap.Error(err))
		return models.ArtifactRef{}, fmt.Errorf("%w: send resource %d: %v", errs.ErrUpstreamTransient, id, err)
	}
	return r.Artifact, nil
}

// Delete removes a resource on behalf of requesterID, who must be the
// uploader or at least an admin.
//
// A nil error means the artifact and the row are both gone. When the
// external delete fails the row stays tombstoned, invisible to every read,
// and Delete returns *errs.PartialFailure. Calling Delete again on a
// tombstoned resource resumes from the external delete.
func (c *Coordinator) Delete(ctx context.Context, groupID, id, requesterID int64) (err error) {
	defer func() { c.metrics.DeleteOutcome(errs.Kind(err)) }()

	r, err := c.resources.GetByID(ctx, groupID, id)
	if err != nil {
		return err
	}
	if err := c.authorize(ctx, r, requesterID); err != nil {
		c.audit.DeleteForbidden(ctx, groupID, requesterID, id)
		return err
	}

	if !r.Deleted {
		r, err = c.resources.Tombstone(ctx, groupID, id, requesterID)
		if err != nil && !errors.Is(err, resourcestore.ErrAlreadyTombstoned) {
			return err
		}
	}

	return c.finish(ctx, r, requesterID)
}

func (c *Coordinator) authorize(ctx context.Context, r models.Resource, userID int64) error {
	if r.UploaderID == userID {
		return nil
	}
	role, err := c.roles.GetRole(ctx, r.GroupID, userID)
	if err != nil {
		return err
	}
	if !role.AtLeast(models.RoleAdmin) {
		return fmt.Errorf("%w: only the uploader or an admin can delete", errs.ErrUnauthorized)
	}
	return nil
}

// finish runs phases two and three for a tombstoned row. actorID is zero
// when the reconciler is acting; reconciler failures are not republished.
func (c *Coordinator) finish(ctx context.Context, r models.Resource, actorID int64) error {
	res, terr := c.transport.DeleteArtifact(ctx, r.Artifact)
	if !res.Done() {
		return c.recordFailure(ctx, r, actorID, terr)
	}

	var removed int64
	err := c.tx(ctx, func(ctx context.Context) error {
		var err error
		removed, err = c.resources.HardDelete(ctx, r.ID)
		if err != nil || removed == 0 {
			return err
		}
		_, err = c.edits.Append(ctx, models.ResourceEdit{
			ResourceID: r.ID,
			GroupID:    r.GroupID,
			EditorID:   editor(r, actorID),
			Field:      models.EditFieldDeleted,
			OldValue:   r.Artifact.FileName,
		})
		return err
	})
	if err != nil {
		c.log.Error("hard delete failed; tombstone left for reconciliation",
			zap.Int64("resource_id", r.ID),
			zap.Error(err))
		return fmt.Errorf("finalize delete of resource %d: %w", r.ID, err)
	}
	if removed == 0 {
		// A concurrent delete or sweep finalized it first.
		return nil
	}

	if actorID == 0 {
		c.audit.ResourceReconciled(ctx, r.GroupID, r.ID)
	} else {
		c.audit.ResourceDeleted(ctx, r.GroupID, actorID, r.ID)
	}
	c.log.Info("resource deleted",
		zap.Int64("group_id", r.GroupID),
		zap.Int64("resource_id", r.ID),
		zap.String("upstream", string(res)))
	return nil
}

func (c *Coordinator) recordFailure(ctx context.Context, r models.Resource, actorID int64, cause error) error {
	if cause == nil {
		cause = errors.New("external delete failed")
	}
	reason := cause.Error()

	if err := c.resources.RecordDeleteFailure(ctx, r.ID, reason); err != nil {
		c.log.Error("record delete failure", zap.Int64("resource_id", r.ID), zap.Error(err))
	}
	if actorID != 0 {
		ev := newEvent(r.GroupID, r.ID, r.DeleteAttempts+1, reason, c.now())
		if err := c.publisher.PublishPartialFailure(ctx, ev); err != nil {
			c.log.Warn("publish partial failure", zap.Int64("resource_id", r.ID), zap.Error(err))
		}
		c.audit.ResourceTombstoned(ctx, r.GroupID, actorID, r.ID, reason)
	}
	c.log.Warn("external delete failed; resource tombstoned",
		zap.Int64("group_id", r.GroupID),
		zap.Int64("resource_id", r.ID),
		zap.Error(cause))
	return &errs.PartialFailure{ResourceID: r.ID, Cause: cause}
}

func editor(r models.Resource, actorID int64) int64 {
	if actorID != 0 {
		return actorID
	}
	if r.DeletedBy != nil {
		return *r.DeletedBy
	}
	return 0
}
