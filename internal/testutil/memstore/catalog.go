package memstore

import (
	"context"
	"fmt"

	categorystore "github.com/dalemusser/groupvault/internal/app/store/categories"
	tagstore "github.com/dalemusser/groupvault/internal/app/store/tags"
	"github.com/dalemusser/groupvault/internal/domain/errs"
	"github.com/dalemusser/groupvault/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
)

type Categories struct{ d *DB }

func (s *Categories) Create(_ context.Context, c models.Category) (models.Category, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if err := s.d.fail("categories.Create"); err != nil {
		return models.Category{}, err
	}
	c.NameCI = text.Fold(c.Name)
	for _, other := range s.d.categories {
		if other.GroupID == c.GroupID && other.NameCI == c.NameCI {
			return models.Category{}, categorystore.ErrDuplicateName
		}
	}
	c.ID = s.d.next("categories")
	c.CreatedAt = s.d.now()
	c.UpdatedAt = c.CreatedAt
	s.d.categories[c.ID] = c
	return c, nil
}

func (s *Categories) GetByID(_ context.Context, groupID, id int64) (models.Category, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	c, ok := s.d.categories[id]
	if !ok || c.GroupID != groupID {
		return models.Category{}, categorystore.ErrNotFound
	}
	return c, nil
}

func (s *Categories) GetByName(_ context.Context, groupID int64, name string) (models.Category, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	ci := text.Fold(name)
	for _, c := range s.d.categories {
		if c.GroupID == groupID && c.NameCI == ci {
			return c, nil
		}
	}
	return models.Category{}, categorystore.ErrNotFound
}

func (s *Categories) List(_ context.Context, groupID int64) ([]models.Category, error) {
	return s.filter(func(c models.Category) bool { return c.GroupID == groupID }), nil
}

func (s *Categories) GetByIDs(_ context.Context, groupID int64, ids []int64) ([]models.Category, error) {
	want := idSet(ids)
	return s.filter(func(c models.Category) bool { return c.GroupID == groupID && want[c.ID] }), nil
}

func (s *Categories) IDsMatching(_ context.Context, groupID int64, pattern string) ([]int64, error) {
	var out []int64
	for _, c := range s.filter(func(c models.Category) bool { return c.GroupID == groupID && matches(pattern, c.NameCI) }) {
		out = append(out, c.ID)
	}
	return out, nil
}

func (s *Categories) filter(keep func(models.Category) bool) []models.Category {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	var out []models.Category
	for _, c := range s.d.categories {
		if keep(c) {
			out = append(out, c)
		}
	}
	sortByNameCI(out, func(c models.Category) (string, int64) { return c.NameCI, c.ID })
	return out
}

func (s *Categories) Rename(_ context.Context, groupID, id int64, name string) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	c, ok := s.d.categories[id]
	if !ok || c.GroupID != groupID {
		return categorystore.ErrNotFound
	}
	ci := text.Fold(name)
	for _, other := range s.d.categories {
		if other.ID != id && other.GroupID == groupID && other.NameCI == ci {
			return categorystore.ErrDuplicateName
		}
	}
	c.Name, c.NameCI, c.UpdatedAt = name, ci, s.d.now()
	s.d.categories[id] = c
	return nil
}

func (s *Categories) SetDescription(_ context.Context, groupID, id int64, desc string) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	c, ok := s.d.categories[id]
	if !ok || c.GroupID != groupID {
		return categorystore.ErrNotFound
	}
	c.Description = desc
	s.d.categories[id] = c
	return nil
}

func (s *Categories) Delete(_ context.Context, groupID, id int64) (int64, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if err := s.d.fail("categories.Delete"); err != nil {
		return 0, err
	}
	c, ok := s.d.categories[id]
	if !ok || c.GroupID != groupID {
		return 0, nil
	}
	delete(s.d.categories, id)
	return 1, nil
}

func (s *Categories) Use(_ context.Context, groupID, id int64) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	c, ok := s.d.categories[id]
	if !ok || c.GroupID != groupID || c.Retiring {
		return categorystore.ErrNotFound
	}
	now := s.d.now()
	c.LastUsedAt = &now
	s.d.categories[id] = c
	return nil
}

func (s *Categories) Usable(_ context.Context, groupID, id int64) (bool, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	c, ok := s.d.categories[id]
	return ok && c.GroupID == groupID && !c.Retiring, nil
}

func (s *Categories) SetRetiring(_ context.Context, groupID, id int64, retiring bool) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	c, ok := s.d.categories[id]
	if !ok || c.GroupID != groupID {
		return categorystore.ErrNotFound
	}
	c.Retiring = retiring
	s.d.categories[id] = c
	return nil
}

type Tags struct{ d *DB }

func (s *Tags) Create(_ context.Context, tg models.Tag) (models.Tag, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if err := s.d.fail("tags.Create"); err != nil {
		return models.Tag{}, err
	}
	tg.NameCI = text.Fold(tg.Name)
	for _, other := range s.d.tags {
		if other.GroupID == tg.GroupID && other.NameCI == tg.NameCI {
			return models.Tag{}, tagstore.ErrDuplicateName
		}
	}
	tg.ID = s.d.next("tags")
	tg.CreatedAt = s.d.now()
	s.d.tags[tg.ID] = tg
	return tg, nil
}

func (s *Tags) GetByID(_ context.Context, groupID, id int64) (models.Tag, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	tg, ok := s.d.tags[id]
	if !ok || tg.GroupID != groupID {
		return models.Tag{}, tagstore.ErrNotFound
	}
	return tg, nil
}

func (s *Tags) GetByName(_ context.Context, groupID int64, name string) (models.Tag, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	ci := text.Fold(name)
	for _, tg := range s.d.tags {
		if tg.GroupID == groupID && tg.NameCI == ci {
			return tg, nil
		}
	}
	return models.Tag{}, tagstore.ErrNotFound
}

func (s *Tags) List(_ context.Context, groupID int64) ([]models.Tag, error) {
	return s.filter(func(tg models.Tag) bool { return tg.GroupID == groupID }), nil
}

func (s *Tags) GetByIDs(_ context.Context, groupID int64, ids []int64) ([]models.Tag, error) {
	want := idSet(ids)
	return s.filter(func(tg models.Tag) bool { return tg.GroupID == groupID && want[tg.ID] }), nil
}

func (s *Tags) Use(_ context.Context, groupID int64, ids []int64) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	want := idSet(ids)
	now := s.d.now()
	matched := 0
	for id := range want {
		tg, ok := s.d.tags[id]
		if !ok || tg.GroupID != groupID || tg.Retiring {
			continue
		}
		tg.LastUsedAt = &now
		s.d.tags[id] = tg
		matched++
	}
	if matched != len(want) {
		return fmt.Errorf("%w: one or more tags no longer exist", errs.ErrNotFound)
	}
	return nil
}

func (s *Tags) CountUsable(_ context.Context, groupID int64, ids []int64) (int64, error) {
	want := idSet(ids)
	rows := s.filter(func(tg models.Tag) bool { return tg.GroupID == groupID && want[tg.ID] && !tg.Retiring })
	return int64(len(rows)), nil
}

func (s *Tags) SetRetiring(_ context.Context, groupID, id int64, retiring bool) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	tg, ok := s.d.tags[id]
	if !ok || tg.GroupID != groupID {
		return tagstore.ErrNotFound
	}
	tg.Retiring = retiring
	s.d.tags[id] = tg
	return nil
}

func (s *Tags) IDsMatching(_ context.Context, groupID int64, pattern string) ([]int64, error) {
	var out []int64
	for _, tg := range s.filter(func(tg models.Tag) bool { return tg.GroupID == groupID && matches(pattern, tg.NameCI) }) {
		out = append(out, tg.ID)
	}
	return out, nil
}

func (s *Tags) filter(keep func(models.Tag) bool) []models.Tag {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	var out []models.Tag
	for _, tg := range s.d.tags {
		if keep(tg) {
			out = append(out, tg)
		}
	}
	sortByNameCI(out, func(tg models.Tag) (string, int64) { return tg.NameCI, tg.ID })
	return out
}

func (s *Tags) Rename(_ context.Context, groupID, id int64, name string) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	tg, ok := s.d.tags[id]
	if !ok || tg.GroupID != groupID {
		return tagstore.ErrNotFound
	}
	ci := text.Fold(name)
	for _, other := range s.d.tags {
		if other.ID != id && other.GroupID == groupID && other.NameCI == ci {
			return tagstore.ErrDuplicateName
		}
	}
	tg.Name, tg.NameCI = name, ci
	s.d.tags[id] = tg
	return nil
}

func (s *Tags) Delete(_ context.Context, groupID, id int64) (int64, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if err := s.d.fail("tags.Delete"); err != nil {
		return 0, err
	}
	tg, ok := s.d.tags[id]
	if !ok || tg.GroupID != groupID {
		return 0, nil
	}
	delete(s.d.tags, id)
	return 1, nil
}

func idSet(ids []int64) map[int64]bool {
	m := make(map[int64]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}
