package memstore

import (
	"context"
	"sort"

	resourcestore "github.com/dalemusser/groupvault/internal/app/store/resources"
	"github.com/dalemusser/groupvault/internal/app/system/paging"
	"github.com/dalemusser/groupvault/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
)

type Resources struct{ d *DB }

func (s *Resources) Insert(_ context.Context, r models.Resource) (models.Resource, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if err := s.d.fail("resources.Insert"); err != nil {
		return models.Resource{}, err
	}
	r.ID = s.d.next("resources")
	r.CreatedAt = paging.TruncateMS(s.d.now())
	r.DescriptionCI = text.Fold(r.Description)
	r.FileNameCI = text.Fold(r.Artifact.FileName)
	r.Deleted, r.DeletedAt, r.DeletedBy = false, nil, nil
	r.DeleteAttempts, r.LastDeleteError = 0, ""

	seen := map[int64]bool{}
	tags := make([]models.ResourceTag, 0, len(r.Tags))
	for _, t := range r.Tags {
		if !seen[t.TagID] {
			seen[t.TagID] = true
			tags = append(tags, t)
		}
	}
	r.Tags = tags
	s.d.resources[r.ID] = copyResource(r)
	return r, nil
}

func (s *Resources) get(groupID, id int64, liveOnly bool) (models.Resource, error) {
	r, ok := s.d.resources[id]
	if !ok || r.GroupID != groupID || (liveOnly && r.Deleted) {
		return models.Resource{}, resourcestore.ErrNotFound
	}
	return copyResource(r), nil
}

func (s *Resources) GetByID(_ context.Context, groupID, id int64) (models.Resource, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	return s.get(groupID, id, false)
}

func (s *Resources) GetAnyGroup(_ context.Context, id int64) (models.Resource, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	r, ok := s.d.resources[id]
	if !ok {
		return models.Resource{}, resourcestore.ErrNotFound
	}
	return copyResource(r), nil
}

func (s *Resources) GetLive(_ context.Context, groupID, id int64) (models.Resource, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	return s.get(groupID, id, true)
}

func (s *Resources) Search(_ context.Context, f resourcestore.SearchFilter, after *paging.Cursor, limit int64) ([]models.Resource, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if err := s.d.fail("resources.Search"); err != nil {
		return nil, err
	}
	cats, tags := idSet(f.MatchCategoryIDs), idSet(f.MatchTagIDs)

	var out []models.Resource
	for _, r := range s.d.resources {
		if r.GroupID != f.GroupID || r.Deleted {
			continue
		}
		if f.CategoryID != nil && (r.CategoryID == nil || *r.CategoryID != *f.CategoryID) {
			continue
		}
		if f.TagID != nil && !r.HasTag(*f.TagID) {
			continue
		}
		if f.UploaderID != nil && r.UploaderID != *f.UploaderID {
			continue
		}
		if f.Pattern != "" {
			hit := matches(f.Pattern, r.DescriptionCI) || matches(f.Pattern, r.FileNameCI)
			if !hit && r.CategoryID != nil && cats[*r.CategoryID] {
				hit = true
			}
			for _, t := range r.Tags {
				if tags[t.TagID] {
					hit = true
				}
			}
			if !hit {
				continue
			}
		}
		if after != nil {
			at := paging.TruncateMS(after.CreatedAt)
			if r.CreatedAt.After(at) || (r.CreatedAt.Equal(at) && r.ID >= after.ID) {
				continue
			}
		}
		out = append(out, copyResource(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Resources) CountByCategory(_ context.Context, groupID, categoryID int64) (int64, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	var n int64
	for _, r := range s.d.resources {
		if r.GroupID == groupID && r.CategoryID != nil && *r.CategoryID == categoryID {
			n++
		}
	}
	return n, nil
}

func (s *Resources) CountLive(_ context.Context, groupID int64) (int64, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	var n int64
	for _, r := range s.d.resources {
		if r.GroupID == groupID && !r.Deleted {
			n++
		}
	}
	return n, nil
}

func (s *Resources) update(groupID, id int64, fn func(r *models.Resource) error) error {
	r, err := s.get(groupID, id, true)
	if err != nil {
		return err
	}
	if err := fn(&r); err != nil {
		return err
	}
	now := s.d.now()
	r.UpdatedAt = &now
	s.d.resources[id] = r
	return nil
}

func (s *Resources) SetCategory(_ context.Context, groupID, id int64, categoryID *int64) (*int64, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	var old *int64
	err := s.update(groupID, id, func(r *models.Resource) error {
		old = r.CategoryID
		r.CategoryID = categoryID
		return nil
	})
	return old, err
}

func (s *Resources) AddTag(_ context.Context, groupID, id int64, rt models.ResourceTag) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	return s.update(groupID, id, func(r *models.Resource) error {
		if r.HasTag(rt.TagID) {
			return resourcestore.ErrTagAttached
		}
		r.Tags = append(r.Tags, rt)
		return nil
	})
}

func (s *Resources) RemoveTag(_ context.Context, groupID, id, tagID int64) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	return s.update(groupID, id, func(r *models.Resource) error {
		if !r.HasTag(tagID) {
			return resourcestore.ErrTagNotAttached
		}
		r.Tags = withoutTag(r.Tags, tagID)
		return nil
	})
}

func (s *Resources) DetachTagEverywhere(_ context.Context, groupID, tagID int64) (int64, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if err := s.d.fail("resources.DetachTagEverywhere"); err != nil {
		return 0, err
	}
	var n int64
	for id, r := range s.d.resources {
		if r.GroupID == groupID && r.HasTag(tagID) {
			r.Tags = withoutTag(r.Tags, tagID)
			s.d.resources[id] = r
			n++
		}
	}
	return n, nil
}

func (s *Resources) SetDescription(_ context.Context, groupID, id int64, desc string) (string, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	var old string
	err := s.update(groupID, id, func(r *models.Resource) error {
		old = r.Description
		r.Description = desc
		r.DescriptionCI = text.Fold(desc)
		return nil
	})
	return old, err
}

func (s *Resources) Tombstone(_ context.Context, groupID, id, by int64) (models.Resource, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if err := s.d.fail("resources.Tombstone"); err != nil {
		return models.Resource{}, err
	}
	r, ok := s.d.resources[id]
	if !ok || r.GroupID != groupID {
		return models.Resource{}, resourcestore.ErrNotFound
	}
	if r.Deleted {
		return copyResource(r), resourcestore.ErrAlreadyTombstoned
	}
	now := s.d.now()
	r.Deleted, r.DeletedAt, r.DeletedBy = true, &now, &by
	s.d.resources[id] = r
	return copyResource(r), nil
}

func (s *Resources) HardDelete(_ context.Context, id int64) (int64, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if err := s.d.fail("resources.HardDelete"); err != nil {
		return 0, err
	}
	r, ok := s.d.resources[id]
	if !ok || !r.Deleted {
		return 0, nil
	}
	delete(s.d.resources, id)
	return 1, nil
}

func (s *Resources) Discard(_ context.Context, groupID, id int64) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if r, ok := s.d.resources[id]; ok && r.GroupID == groupID && !r.Deleted {
		delete(s.d.resources, id)
	}
	return nil
}

func (s *Resources) RecordDeleteFailure(_ context.Context, id int64, reason string) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	r, ok := s.d.resources[id]
	if !ok || !r.Deleted {
		return nil
	}
	r.DeleteAttempts++
	r.LastDeleteError = reason
	s.d.resources[id] = r
	return nil
}

func (s *Resources) ResetDeleteAttempts(_ context.Context, id int64) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	r, ok := s.d.resources[id]
	if !ok || !r.Deleted {
		return resourcestore.ErrNotFound
	}
	r.DeleteAttempts = 0
	s.d.resources[id] = r
	return nil
}

func (s *Resources) ListTombstones(_ context.Context, f resourcestore.TombstoneFilter) ([]models.Resource, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if err := s.d.fail("resources.ListTombstones"); err != nil {
		return nil, err
	}
	var out []models.Resource
	for _, r := range s.d.resources {
		if !r.Deleted {
			continue
		}
		if f.GroupID != nil && r.GroupID != *f.GroupID {
			continue
		}
		if !f.OlderThan.IsZero() && r.DeletedAt.After(f.OlderThan) {
			continue
		}
		if f.MaxAttempts > 0 && r.DeleteAttempts >= f.MaxAttempts {
			continue
		}
		out = append(out, copyResource(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DeletedAt.Equal(*out[j].DeletedAt) {
			return out[i].DeletedAt.Before(*out[j].DeletedAt)
		}
		return out[i].ID < out[j].ID
	})
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	if int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func withoutTag(tags []models.ResourceTag, tagID int64) []models.ResourceTag {
	out := make([]models.ResourceTag, 0, len(tags))
	for _, t := range tags {
		if t.TagID != tagID {
			out = append(out, t)
		}
	}
	return out
}
