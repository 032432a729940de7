// internal/app/catalog/service.go
package catalog

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dalemusser/groupvault/internal/app/system/auditlog"
	"github.com/dalemusser/groupvault/internal/app/system/htmlsanitize"
	"github.com/dalemusser/groupvault/internal/app/system/limits"
	"github.com/dalemusser/groupvault/internal/app/system/txn"
	"github.com/dalemusser/groupvault/internal/domain/errs"
	"github.com/dalemusser/groupvault/internal/domain/models"
	"go.uber.org/zap"
)

// CategoryStore is the category persistence the service uses.
type CategoryStore interface {
	Create(ctx context.Context, c models.Category) (models.Category, error)
	GetByID(ctx context.Context, groupID, id int64) (models.Category, error)
	GetByName(ctx context.Context, groupID int64, name string) (models.Category, error)
	List(ctx context.Context, groupID int64) ([]models.Category, error)
	Rename(ctx context.Context, groupID, id int64, name string) error
	SetDescription(ctx context.Context, groupID, id int64, desc string) error
	Delete(ctx context.Context, groupID, id int64) (int64, error)

	Use(ctx context.Context, groupID, id int64) error
	Usable(ctx context.Context, groupID, id int64) (bool, error)
	SetRetiring(ctx context.Context, groupID, id int64, retiring bool) error
}

// TagStore is the tag persistence the service uses.
type TagStore interface {
	Create(ctx context.Context, tg models.Tag) (models.Tag, error)
	GetByID(ctx context.Context, groupID, id int64) (models.Tag, error)
	GetByName(ctx context.Context, groupID int64, name string) (models.Tag, error)
	List(ctx context.Context, groupID int64) ([]models.Tag, error)
	Rename(ctx context.Context, groupID, id int64, name string) error
	Delete(ctx context.Context, groupID, id int64) (int64, error)

	Use(ctx context.Context, groupID int64, ids []int64) error
	CountUsable(ctx context.Context, groupID int64, ids []int64) (int64, error)
	SetRetiring(ctx context.Context, groupID, id int64, retiring bool) error
}

// ResourceStore is the resource persistence the service uses.
type ResourceStore interface {
	Insert(ctx context.Context, r models.Resource) (models.Resource, error)
	Discard(ctx context.Context, groupID, id int64) error
	GetLive(ctx context.Context, groupID, id int64) (models.Resource, error)
	CountByCategory(ctx context.Context, groupID, categoryID int64) (int64, error)
	SetCategory(ctx context.Context, groupID, id int64, categoryID *int64) (*int64, error)
	AddTag(ctx context.Context, groupID, id int64, rt models.ResourceTag) error
	RemoveTag(ctx context.Context, groupID, id, tagID int64) error
	DetachTagEverywhere(ctx context.Context, groupID, tagID int64) (int64, error)
	SetDescription(ctx context.Context, groupID, id int64, desc string) (string, error)
}

// EditStore is the append-only resource edit log.
type EditStore interface {
	Append(ctx context.Context, e models.ResourceEdit) (models.ResourceEdit, error)
	ListByResource(ctx context.Context, resourceID int64, limit int64) ([]models.ResourceEdit, error)
}

// RoleReader answers role lookups for authorization.
type RoleReader interface {
	GetRole(ctx context.Context, groupID, userID int64) (models.Role, error)
}

// Deps groups the service's collaborators.
type Deps struct {
	Categories CategoryStore
	Tags       TagStore
	Resources  ResourceStore
	Edits      EditStore
	Roles      RoleReader
	Tx         txn.Runner
	Audit      *auditlog.Logger
	Log        *zap.Logger
}

// Service owns category, tag and resource mutations and their
// authorization rules.
//
// A category or tag delete and a write that references it must not both
// succeed. Deletes mark the row retiring before they count or detach;
// referencing writes stamp the row with Use (a write conflict under
// transactions) and check it is still usable after their own write,
// undoing that write when it is not.
type Service struct {
	categories CategoryStore
	tags       TagStore
	resources  ResourceStore
	edits      EditStore
	roles      RoleReader
	tx         txn.Runner
	audit      *auditlog.Logger
	log        *zap.Logger
}

func New(d Deps) *Service {
	if d.Tx == nil {
		d.Tx = txn.Direct
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return &Service{
		categories: d.Categories,
		tags:       d.Tags,
		resources:  d.Resources,
		edits:      d.Edits,
		roles:      d.Roles,
		tx:         d.Tx,
		audit:      d.Audit,
		log:        d.Log,
	}
}

func (s *Service) requireAdmin(ctx context.Context, groupID, userID int64) error {
	role, err := s.roles.GetRole(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if !role.AtLeast(models.RoleAdmin) {
		return fmt.Errorf("%w: admin role required", errs.ErrUnauthorized)
	}
	return nil
}

// canEdit allows the uploader or any admin.
func (s *Service) canEdit(ctx context.Context, r models.Resource, userID int64) error {
	if r.UploaderID == userID {
		return nil
	}
	return s.requireAdmin(ctx, r.GroupID, userID)
}

// cleanName strips markup and a leading '#', then enforces the name limits.
func cleanName(raw string) (string, error) {
	name := htmlsanitize.CleanName(strings.TrimLeft(strings.TrimSpace(raw), "#"))
	if name == "" {
		return "", fmt.Errorf("%w: name is empty", errs.ErrInvalidInput)
	}
	if utf8.RuneCountInString(name) > limits.NameMax {
		return "", fmt.Errorf("%w: name longer than %d characters", errs.ErrInvalidInput, limits.NameMax)
	}
	return name, nil
}

// CleanDescription strips markup and enforces the description limit.
// An empty result is allowed.
func CleanDescription(raw string) (string, error) {
	desc := htmlsanitize.CleanText(raw)
	if utf8.RuneCountInString(desc) > limits.DescriptionMax {
		return "", fmt.Errorf("%w: description longer than %d characters", errs.ErrInvalidInput, limits.DescriptionMax)
	}
	return desc, nil
}
