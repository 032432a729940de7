package catalog

import (
	"context"
	"fmt"

	"github.com/dalemusser/groupvault/internal/app/store/audit"
	"github.com/dalemusser/groupvault/internal/domain/errs"
	"github.com/dalemusser/groupvault/internal/domain/models"
	"go.uber.org/zap"
)

// CreateTag adds a tag to the group. Any participant may create tags.
func (s *Service) CreateTag(ctx context.Context, groupID, actorID int64, name string) (models.Tag, error) {
	name, err := cleanName(name)
	if err != nil {
		return models.Tag{}, err
	}
	tg, err := s.tags.Create(ctx, models.Tag{GroupID: groupID, Name: name, CreatedBy: actorID})
	if err != nil {
		return models.Tag{}, err
	}
	s.audit.CatalogChanged(ctx, groupID, actorID, audit.EventTagCreated, tg.ID, tg.Name)
	return tg, nil
}

// ListTags returns the group's tags ordered by name.
func (s *Service) ListTags(ctx context.Context, groupID int64) ([]models.Tag, error) {
	return s.tags.List(ctx, groupID)
}

// GetTag returns one of the group's tags.
func (s *Service) GetTag(ctx context.Context, groupID, id int64) (models.Tag, error) {
	return s.tags.GetByID(ctx, groupID, id)
}

// FindTag looks a tag up by name, ignoring case and a leading '#'.
func (s *Service) FindTag(ctx context.Context, groupID int64, name string) (models.Tag, error) {
	clean, err := cleanName(name)
	if err != nil {
		return models.Tag{}, err
	}
	return s.tags.GetByName(ctx, groupID, clean)
}

// RenameTag changes a tag's name. Admins only.
func (s *Service) RenameTag(ctx context.Context, groupID, actorID, id int64, name string) error {
	if err := s.requireAdmin(ctx, groupID, actorID); err != nil {
		return err
	}
	name, err := cleanName(name)
	if err != nil {
		return err
	}
	if err := s.tags.Rename(ctx, groupID, id, name); err != nil {
		return err
	}
	s.audit.CatalogChanged(ctx, groupID, actorID, audit.EventTagRenamed, id, name)
	return nil
}

// DeleteTag removes a tag and detaches it from every resource in the same
// unit of work. Admins only.
func (s *Service) DeleteTag(ctx context.Context, groupID, actorID, id int64) error {
	if err := s.requireAdmin(ctx, groupID, actorID); err != nil {
		return err
	}

	var name string
	var detached int64
	err := s.tx(ctx, func(ctx context.Context) (err error) {
		tg, err := s.tags.GetByID(ctx, groupID, id)
		if err != nil {
			return err
		}
		name = tg.Name

		// Mark first so no resource picks the tag up after the detach.
		if err := s.tags.SetRetiring(ctx, groupID, id, true); err != nil {
			return err
		}
		defer func() {
			if err != nil {
				if rerr := s.tags.SetRetiring(ctx, groupID, id, false); rerr != nil {
					s.log.Error("clear retiring mark", zap.Int64("tag_id", id), zap.Error(rerr))
				}
			}
		}()

		// Detach before the delete: if the delete fails afterwards, the tag
		// still exists and no resource points at a missing tag.
		detached, err = s.resources.DetachTagEverywhere(ctx, groupID, id)
		if err != nil {
			return err
		}
		n, err := s.tags.Delete(ctx, groupID, id)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: tag", errs.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.audit.CatalogChanged(ctx, groupID, actorID, audit.EventTagDeleted, id, name)
	s.log.Info("tag deleted",
		zap.Int64("group_id", groupID),
		zap.Int64("tag_id", id),
		zap.Int64("detached_from", detached))
	return nil
}
