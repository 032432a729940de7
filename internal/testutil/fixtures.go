package testutil

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	categorystore "github.com/dalemusser/groupvault/internal/app/store/categories"
	resourcestore "github.com/dalemusser/groupvault/internal/app/store/resources"
	rolestore "github.com/dalemusser/groupvault/internal/app/store/roles"
	tagstore "github.com/dalemusser/groupvault/internal/app/store/tags"
	"github.com/dalemusser/groupvault/internal/domain/models"
	"go.mongodb.org/mongo-driver/mongo"
)

// Fixtures provides helper methods for creating test data through the
// real stores, so generated ids and folded fields match production writes.
type Fixtures struct {
	db  *mongo.Database
	t   *testing.T
	msg atomic.Int64
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	f := &Fixtures{db: db, t: t}
	f.msg.Store(1000)
	return f
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

// SetRole stores a role for (group, user) with no granting user.
func (f *Fixtures) SetRole(ctx context.Context, groupID, userID int64, role models.Role) {
	f.t.Helper()
	if _, err := rolestore.New(f.db).Set(ctx, groupID, userID, role, nil); err != nil {
		f.t.Fatalf("failed to set role: %v", err)
	}
}

// CreateCategory creates a category in the group.
func (f *Fixtures) CreateCategory(ctx context.Context, groupID int64, name string) models.Category {
	f.t.Helper()
	c, err := categorystore.New(f.db).Create(ctx, models.Category{GroupID: groupID, Name: name, CreatedBy: 1})
	if err != nil {
		f.t.Fatalf("failed to create test category: %v", err)
	}
	return c
}

// CreateTag creates a tag in the group.
func (f *Fixtures) CreateTag(ctx context.Context, groupID int64, name string) models.Tag {
	f.t.Helper()
	tg, err := tagstore.New(f.db).Create(ctx, models.Tag{GroupID: groupID, Name: name, CreatedBy: 1})
	if err != nil {
		f.t.Fatalf("failed to create test tag: %v", err)
	}
	return tg
}

// ResourceOpts customizes CreateResource.
type ResourceOpts struct {
	CategoryID  *int64
	TagIDs      []int64
	UploaderID  int64
	FileName    string
	Description string
}

// CreateResource inserts a live document resource with a unique message id.
func (f *Fixtures) CreateResource(ctx context.Context, groupID int64, opts ResourceOpts) models.Resource {
	f.t.Helper()

	msgID := f.msg.Add(1)
	uploader := opts.UploaderID
	if uploader == 0 {
		uploader = 1
	}
	fileName := opts.FileName
	if fileName == "" {
		fileName = fmt.Sprintf("file-%d.pdf", msgID)
	}

	tags := make([]models.ResourceTag, 0, len(opts.TagIDs))
	for _, id := range opts.TagIDs {
		tags = append(tags, models.ResourceTag{TagID: id, AddedBy: uploader})
	}

	r, err := resourcestore.New(f.db).Insert(ctx, models.Resource{
		GroupID: groupID,
		Artifact: models.ArtifactRef{
			ChatID:    groupID,
			MessageID: int(msgID),
			FileID:    fmt.Sprintf("file-id-%d", msgID),
			FileType:  models.FileTypeDocument,
			FileName:  fileName,
		},
		CategoryID:  opts.CategoryID,
		Tags:        tags,
		UploaderID:  uploader,
		Description: opts.Description,
	})
	if err != nil {
		f.t.Fatalf("failed to create test resource: %v", err)
	}
	return r
}
