// internal/app/roles/service.go
package roles

import (
	"context"
	"fmt"

	"github.com/dalemusser/groupvault/internal/app/system/auditlog"
	"github.com/dalemusser/groupvault/internal/domain/errs"
	"github.com/dalemusser/groupvault/internal/domain/models"
	"go.uber.org/zap"
)

// Store is the subset of the role store the service needs.
type Store interface {
	GetRole(ctx context.Context, groupID, userID int64) (models.Role, error)
	Set(ctx context.Context, groupID, userID int64, role models.Role, grantedBy *int64) (models.Role, error)
	ListByGroup(ctx context.Context, groupID int64) ([]models.RoleEntry, error)
}

// Service answers authorization questions and applies role changes.
type Service struct {
	store Store
	audit *auditlog.Logger
	log   *zap.Logger
}

func New(store Store, audit *auditlog.Logger, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, audit: audit, log: log}
}

// GetRole returns the user's role in the group, RoleNone when none is stored.
func (s *Service) GetRole(ctx context.Context, groupID, userID int64) (models.Role, error) {
	return s.store.GetRole(ctx, groupID, userID)
}

// Require returns the user's role, or ErrUnauthorized when it ranks below min.
func (s *Service) Require(ctx context.Context, groupID, userID int64, min models.Role) (models.Role, error) {
	role, err := s.store.GetRole(ctx, groupID, userID)
	if err != nil {
		return models.RoleNone, err
	}
	if !role.AtLeast(min) {
		return role, fmt.Errorf("%w: requires %s", errs.ErrUnauthorized, min)
	}
	return role, nil
}

// SetRole gives userID the role newRole in the group on behalf of actorID.
//
// The actor must be at least admin, may not grant above their own role,
// and may not change a user who currently outranks them.
func (s *Service) SetRole(ctx context.Context, actorID, groupID, userID int64, newRole models.Role) error {
	if !newRole.Valid() {
		return fmt.Errorf("%w: role %s cannot be assigned", errs.ErrInvalidInput, newRole)
	}

	actorRole, err := s.store.GetRole(ctx, groupID, actorID)
	if err != nil {
		return err
	}
	targetRole, err := s.store.GetRole(ctx, groupID, userID)
	if err != nil {
		return err
	}

	if !actorRole.AtLeast(models.RoleAdmin) || newRole > actorRole || targetRole > actorRole {
		s.audit.RoleSetForbidden(ctx, groupID, actorID, userID, newRole.String())
		s.log.Info("role change refused",
			zap.Int64("group_id", groupID),
			zap.Int64("actor_id", actorID),
			zap.Int64("user_id", userID),
			zap.String("actor_role", actorRole.String()),
			zap.String("target_role", targetRole.String()),
			zap.String("new_role", newRole.String()))
		return fmt.Errorf("%w: cannot set %s as %s", errs.ErrUnauthorized, newRole, actorRole)
	}

	prev, err := s.store.Set(ctx, groupID, userID, newRole, &actorID)
	if err != nil {
		return err
	}
	s.audit.RoleSet(ctx, groupID, actorID, userID, prev.String(), newRole.String())
	return nil
}

// List returns the group's stored role entries.
func (s *Service) List(ctx context.Context, groupID int64) ([]models.RoleEntry, error) {
	return s.store.ListByGroup(ctx, groupID)
}
