package catalog

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/dalemusser/groupvault/internal/app/store/audit"
	"github.com/dalemusser/groupvault/internal/app/system/htmlsanitize"
	"github.com/dalemusser/groupvault/internal/app/system/limits"
	"github.com/dalemusser/groupvault/internal/domain/errs"
	"github.com/dalemusser/groupvault/internal/domain/models"
	"go.uber.org/zap"
)

// CreateCategory adds a category to the group. Admins only.
func (s *Service) CreateCategory(ctx context.Context, groupID, actorID int64, name, description string) (models.Category, error) {
	if err := s.requireAdmin(ctx, groupID, actorID); err != nil {
		return models.Category{}, err
	}
	name, err := cleanName(name)
	if err != nil {
		return models.Category{}, err
	}
	description = htmlsanitize.CleanText(description)
	if utf8.RuneCountInString(description) > limits.CategoryDescriptionMax {
		return models.Category{}, fmt.Errorf("%w: category description longer than %d characters", errs.ErrInvalidInput, limits.CategoryDescriptionMax)
	}

	c, err := s.categories.Create(ctx, models.Category{
		GroupID:     groupID,
		Name:        name,
		Description: description,
		CreatedBy:   actorID,
	})
	if err != nil {
		return models.Category{}, err
	}
	s.audit.CatalogChanged(ctx, groupID, actorID, audit.EventCategoryCreated, c.ID, c.Name)
	return c, nil
}

// ListCategories returns the group's categories ordered by name.
func (s *Service) ListCategories(ctx context.Context, groupID int64) ([]models.Category, error) {
	return s.categories.List(ctx, groupID)
}

// GetCategory returns one of the group's categories.
func (s *Service) GetCategory(ctx context.Context, groupID, id int64) (models.Category, error) {
	return s.categories.GetByID(ctx, groupID, id)
}

// FindCategory looks a category up by name, ignoring case.
func (s *Service) FindCategory(ctx context.Context, groupID int64, name string) (models.Category, error) {
	return s.categories.GetByName(ctx, groupID, htmlsanitize.CleanName(name))
}

// RenameCategory changes a category's name. Admins only. Resources refer to
// the category by id, so no ResourceEdit rows are written.
func (s *Service) RenameCategory(ctx context.Context, groupID, actorID, id int64, name string) error {
	if err := s.requireAdmin(ctx, groupID, actorID); err != nil {
		return err
	}
	name, err := cleanName(name)
	if err != nil {
		return err
	}
	if err := s.categories.Rename(ctx, groupID, id, name); err != nil {
		return err
	}
	s.audit.CatalogChanged(ctx, groupID, actorID, audit.EventCategoryRenamed, id, name)
	return nil
}

// DeleteCategory removes a category that no resource references, counting
// tombstoned resources that still await their hard delete. Admins only.
func (s *Service) DeleteCategory(ctx context.Context, groupID, actorID, id int64) error {
	if err := s.requireAdmin(ctx, groupID, actorID); err != nil {
		return err
	}

	var name string
	err := s.tx(ctx, func(ctx context.Context) (err error) {
		c, err := s.categories.GetByID(ctx, groupID, id)
		if err != nil {
			return err
		}
		name = c.Name

		// Mark first: from here on no new resource may take this category,
		// so the count below cannot go stale.
		if err := s.categories.SetRetiring(ctx, groupID, id, true); err != nil {
			return err
		}
		defer func() {
			if err != nil {
				if rerr := s.categories.SetRetiring(ctx, groupID, id, false); rerr != nil {
					s.log.Error("clear retiring mark", zap.Int64("category_id", id), zap.Error(rerr))
				}
			}
		}()

		n, err := s.resources.CountByCategory(ctx, groupID, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: category %q is used by %d resource(s)", errs.ErrIntegrityViolation, c.Name, n)
		}

		deleted, err := s.categories.Delete(ctx, groupID, id)
		if err != nil {
			return err
		}
		if deleted == 0 {
			return fmt.Errorf("%w: category", errs.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.audit.CatalogChanged(ctx, groupID, actorID, audit.EventCategoryDeleted, id, name)
	s.log.Info("category deleted",
		zap.Int64("group_id", groupID),
		zap.Int64("category_id", id),
		zap.Int64("actor_id", actorID))
	return nil
}
