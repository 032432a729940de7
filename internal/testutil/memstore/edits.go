package memstore

import (
	"context"
	"sort"

	"github.com/dalemusser/groupvault/internal/domain/models"
)

type Edits struct{ d *DB }

func (s *Edits) Append(_ context.Context, e models.ResourceEdit) (models.ResourceEdit, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if err := s.d.fail("edits.Append"); err != nil {
		return models.ResourceEdit{}, err
	}
	e.ID = s.d.next("resource_edits")
	e.EditedAt = s.d.now()
	s.d.edits = append(s.d.edits, e)
	return e, nil
}

func (s *Edits) ListByResource(_ context.Context, resourceID int64, limit int64) ([]models.ResourceEdit, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	var out []models.ResourceEdit
	for _, e := range s.d.edits {
		if e.ResourceID == resourceID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

type Roles struct{ d *DB }

// Seed stores a role without a grantor.
func (s *Roles) Seed(groupID, userID int64, role models.Role) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.d.roles[[2]int64{groupID, userID}] = models.RoleEntry{GroupID: groupID, UserID: userID, Role: role}
}

func (s *Roles) GetRole(_ context.Context, groupID, userID int64) (models.Role, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	return s.d.roles[[2]int64{groupID, userID}].Role, nil
}

func (s *Roles) Set(_ context.Context, groupID, userID int64, role models.Role, grantedBy *int64) (models.Role, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	key := [2]int64{groupID, userID}
	prev := s.d.roles[key].Role
	s.d.roles[key] = models.RoleEntry{GroupID: groupID, UserID: userID, Role: role, GrantedBy: grantedBy, UpdatedAt: s.d.now()}
	return prev, nil
}

func (s *Roles) HasAnyWithRole(_ context.Context, groupID int64, role models.Role) (bool, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	for _, e := range s.d.roles {
		if e.GroupID == groupID && e.Role == role {
			return true, nil
		}
	}
	return false, nil
}

func (s *Roles) ListByGroup(_ context.Context, groupID int64) ([]models.RoleEntry, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	var out []models.RoleEntry
	for _, e := range s.d.roles {
		if e.GroupID == groupID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}
