package catalog

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/dalemusser/groupvault/internal/domain/errs"
	"github.com/dalemusser/groupvault/internal/domain/models"
	"go.uber.org/zap"
)

// NewResource is the input for CreateResource.
type NewResource struct {
	GroupID      int64
	Artifact     models.ArtifactRef
	CategoryID   *int64
	TagIDs       []int64
	UploaderID   int64
	UploaderName string
	Description  string
}

// CreateResource checks that the category and every tag exist and inserts
// the resource with its tag rows as one unit, followed by a "created" edit
// row. Either all of it is written or none of it is. A category or tag
// deleted concurrently makes it fail with ErrNotFound.
func (s *Service) CreateResource(ctx context.Context, in NewResource) (models.Resource, error) {
	desc, err := CleanDescription(in.Description)
	if err != nil {
		return models.Resource{}, err
	}
	if in.Artifact.FileID == "" {
		return models.Resource{}, fmt.Errorf("%w: artifact has no file id", errs.ErrInvalidInput)
	}
	tagIDs := uniqueIDs(in.TagIDs)

	var created models.Resource
	err = s.tx(ctx, func(ctx context.Context) error {
		if in.CategoryID != nil {
			if err := s.categories.Use(ctx, in.GroupID, *in.CategoryID); err != nil {
				return err
			}
		}
		if err := s.tags.Use(ctx, in.GroupID, tagIDs); err != nil {
			return err
		}

		now := time.Now().UTC()
		rows := make([]models.ResourceTag, 0, len(tagIDs))
		for _, id := range tagIDs {
			rows = append(rows, models.ResourceTag{TagID: id, AddedBy: in.UploaderID, AddedAt: now})
		}

		r, err := s.resources.Insert(ctx, models.Resource{
			GroupID:      in.GroupID,
			Artifact:     in.Artifact,
			CategoryID:   in.CategoryID,
			Tags:         rows,
			UploaderID:   in.UploaderID,
			UploaderName: in.UploaderName,
			Description:  desc,
		})
		if err != nil {
			return err
		}
		if err := s.checkUsable(ctx, in.GroupID, in.CategoryID, tagIDs); err != nil {
			if derr := s.resources.Discard(ctx, r.GroupID, r.ID); derr != nil {
				s.log.Error("discard resource after lost reference",
					zap.Int64("resource_id", r.ID), zap.Error(derr))
			}
			return err
		}
		if _, err := s.edits.Append(ctx, models.ResourceEdit{
			ResourceID: r.ID,
			GroupID:    r.GroupID,
			EditorID:   in.UploaderID,
			Field:      models.EditFieldCreated,
			NewValue:   r.Artifact.FileName,
		}); err != nil {
			return err
		}
		created = r
		return nil
	})
	if err != nil {
		return models.Resource{}, err
	}

	s.audit.ResourceCreated(ctx, created.GroupID, created.UploaderID, created.ID)
	s.log.Info("resource created",
		zap.Int64("group_id", created.GroupID),
		zap.Int64("resource_id", created.ID),
		zap.Int64("uploader_id", created.UploaderID),
		zap.Int("tags", len(created.Tags)))
	return created, nil
}

// editable loads a live resource and checks that userID may edit it.
func (s *Service) editable(ctx context.Context, groupID, id, userID int64) (models.Resource, error) {
	r, err := s.resources.GetLive(ctx, groupID, id)
	if err != nil {
		return models.Resource{}, err
	}
	if err := s.canEdit(ctx, r, userID); err != nil {
		return models.Resource{}, err
	}
	return r, nil
}

func (s *Service) appendEdit(ctx context.Context, r models.Resource, editorID int64, field, oldValue, newValue string) error {
	_, err := s.edits.Append(ctx, models.ResourceEdit{
		ResourceID: r.ID,
		GroupID:    r.GroupID,
		EditorID:   editorID,
		Field:      field,
		OldValue:   oldValue,
		NewValue:   newValue,
	})
	return err
}

// SetResourceCategory moves a resource to categoryID, or clears its category
// when categoryID is nil. Allowed for the uploader and admins.
func (s *Service) SetResourceCategory(ctx context.Context, groupID, editorID, id int64, categoryID *int64) error {
	r, err := s.editable(ctx, groupID, id, editorID)
	if err != nil {
		return err
	}
	if sameID(r.CategoryID, categoryID) {
		return nil
	}

	err = s.tx(ctx, func(ctx context.Context) error {
		if categoryID != nil {
			if err := s.categories.Use(ctx, groupID, *categoryID); err != nil {
				return err
			}
		}
		old, err := s.resources.SetCategory(ctx, groupID, id, categoryID)
		if err != nil {
			return err
		}
		if err := s.checkUsable(ctx, groupID, categoryID, nil); err != nil {
			s.restoreCategory(ctx, groupID, id, old)
			return err
		}
		return s.appendEdit(ctx, r, editorID, models.EditFieldCategory, idString(old), idString(categoryID))
	})
	if err != nil {
		return err
	}
	s.audit.ResourceEdited(ctx, groupID, editorID, id, models.EditFieldCategory)
	return nil
}

// AddResourceTag attaches an existing tag. Allowed for the uploader and admins.
func (s *Service) AddResourceTag(ctx context.Context, groupID, editorID, id, tagID int64) error {
	r, err := s.editable(ctx, groupID, id, editorID)
	if err != nil {
		return err
	}

	err = s.tx(ctx, func(ctx context.Context) error {
		tg, err := s.tags.GetByID(ctx, groupID, tagID)
		if err != nil {
			return err
		}
		if err := s.tags.Use(ctx, groupID, []int64{tagID}); err != nil {
			return err
		}
		if err := s.resources.AddTag(ctx, groupID, id, models.ResourceTag{
			TagID:   tagID,
			AddedBy: editorID,
			AddedAt: time.Now().UTC(),
		}); err != nil {
			return err
		}
		if err := s.checkUsable(ctx, groupID, nil, []int64{tagID}); err != nil {
			if rerr := s.resources.RemoveTag(ctx, groupID, id, tagID); rerr != nil {
				s.log.Error("detach tag after lost reference",
					zap.Int64("resource_id", id), zap.Int64("tag_id", tagID), zap.Error(rerr))
			}
			return err
		}
		return s.appendEdit(ctx, r, editorID, models.EditFieldTagAdd, "", tg.Name)
	})
	if err != nil {
		return err
	}
	s.audit.ResourceEdited(ctx, groupID, editorID, id, models.EditFieldTagAdd)
	return nil
}

// RemoveResourceTag detaches a tag. Allowed for the uploader and admins.
func (s *Service) RemoveResourceTag(ctx context.Context, groupID, editorID, id, tagID int64) error {
	r, err := s.editable(ctx, groupID, id, editorID)
	if err != nil {
		return err
	}

	err = s.tx(ctx, func(ctx context.Context) error {
		label := strconv.FormatInt(tagID, 10)
		if tg, err := s.tags.GetByID(ctx, groupID, tagID); err == nil {
			label = tg.Name
		}
		if err := s.resources.RemoveTag(ctx, groupID, id, tagID); err != nil {
			return err
		}
		return s.appendEdit(ctx, r, editorID, models.EditFieldTagRemove, label, "")
	})
	if err != nil {
		return err
	}
	s.audit.ResourceEdited(ctx, groupID, editorID, id, models.EditFieldTagRemove)
	return nil
}

// EditDescription replaces the description. Allowed for the uploader and admins.
func (s *Service) EditDescription(ctx context.Context, groupID, editorID, id int64, text string) error {
	desc, err := CleanDescription(text)
	if err != nil {
		return err
	}
	r, err := s.editable(ctx, groupID, id, editorID)
	if err != nil {
		return err
	}
	if r.Description == desc {
		return nil
	}

	err = s.tx(ctx, func(ctx context.Context) error {
		old, err := s.resources.SetDescription(ctx, groupID, id, desc)
		if err != nil {
			return err
		}
		return s.appendEdit(ctx, r, editorID, models.EditFieldDescription, old, desc)
	})
	if err != nil {
		return err
	}
	s.audit.ResourceEdited(ctx, groupID, editorID, id, models.EditFieldDescription)
	return nil
}

// History returns the edit trail of a live resource, newest first.
func (s *Service) History(ctx context.Context, groupID, id int64, limit int64) ([]models.ResourceEdit, error) {
	if _, err := s.resources.GetLive(ctx, groupID, id); err != nil {
		return nil, err
	}
	return s.edits.ListByResource(ctx, id, limit)
}

// checkUsable runs after a write that added references. Without
// transactions a delete may have marked the category or a tag retiring in
// between; the caller then undoes its write.
func (s *Service) checkUsable(ctx context.Context, groupID int64, categoryID *int64, tagIDs []int64) error {
	if categoryID != nil {
		ok, err := s.categories.Usable(ctx, groupID, *categoryID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: category was deleted", errs.ErrNotFound)
		}
	}
	if len(tagIDs) > 0 {
		n, err := s.tags.CountUsable(ctx, groupID, tagIDs)
		if err != nil {
			return err
		}
		if n != int64(len(tagIDs)) {
			return fmt.Errorf("%w: one or more tags were deleted", errs.ErrNotFound)
		}
	}
	return nil
}

// restoreCategory puts back the previous category, or clears it when that
// one is being deleted too.
func (s *Service) restoreCategory(ctx context.Context, groupID, id int64, old *int64) {
	if old != nil && s.categories.Use(ctx, groupID, *old) == nil {
		if _, err := s.resources.SetCategory(ctx, groupID, id, old); err == nil {
			if ok, _ := s.categories.Usable(ctx, groupID, *old); ok {
				return
			}
		}
	}
	if _, err := s.resources.SetCategory(ctx, groupID, id, nil); err != nil {
		s.log.Error("clear category after lost reference",
			zap.Int64("resource_id", id), zap.Error(err))
	}
}

func uniqueIDs(in []int64) []int64 {
	out := make([]int64, 0, len(in))
	seen := make(map[int64]bool, len(in))
	for _, id := range in {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func sameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func idString(id *int64) string {
	if id == nil {
		return ""
	}
	return strconv.FormatInt(*id, 10)
}
