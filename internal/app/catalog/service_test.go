package catalog_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dalemusser/groupvault/internal/app/catalog"
	"github.com/dalemusser/groupvault/internal/domain/errs"
	"github.com/dalemusser/groupvault/internal/domain/models"
	"github.com/dalemusser/groupvault/internal/testutil/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	group    = int64(-1006666666666)
	admin    = int64(1)
	uploader = int64(2)
	member   = int64(3)
)

func setup(t *testing.T) (*catalog.Service, *memstore.DB) {
	t.Helper()
	db := memstore.New()
	db.Roles().Seed(group, admin, models.RoleAdmin)
	db.Roles().Seed(group, uploader, models.RoleMember)
	db.Roles().Seed(group, member, models.RoleMember)

	svc := catalog.New(catalog.Deps{
		Categories: db.Categories(),
		Tags:       db.Tags(),
		Resources:  db.Resources(),
		Edits:      db.Edits(),
		Roles:      db.Roles(),
		Tx:         db.Tx,
	})
	return svc, db
}

func artifact(name string) models.ArtifactRef {
	return models.ArtifactRef{ChatID: group, MessageID: 10, FileID: "file-" + name, FileType: models.FileTypeDocument, FileName: name}
}

func TestCreateCategory_AdminOnly(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	_, err := svc.CreateCategory(ctx, group, member, "Docs", "")
	require.ErrorIs(t, err, errs.ErrUnauthorized)

	c, err := svc.CreateCategory(ctx, group, admin, "  <b>Docs</b>  ", "shared <i>files</i>")
	require.NoError(t, err)
	assert.Equal(t, "Docs", c.Name)
	assert.Equal(t, "shared files", c.Description)

	_, err = svc.CreateCategory(ctx, group, admin, "docs", "")
	assert.ErrorIs(t, err, errs.ErrConflict)
}

func TestCreateCategory_InvalidNames(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	for _, name := range []string{"", "   ", "<script>x</script>", strings.Repeat("n", 51)} {
		_, err := svc.CreateCategory(ctx, group, admin, name, "")
		assert.ErrorIs(t, err, errs.ErrInvalidInput, "name %q", name)
	}
}

func TestDeleteCategory_ReferentialGuard(t *testing.T) {
	svc, db := setup(t)
	ctx := context.Background()

	c, err := svc.CreateCategory(ctx, group, admin, "docs", "")
	require.NoError(t, err)

	r, err := svc.CreateResource(ctx, catalog.NewResource{
		GroupID: group, Artifact: artifact("a.pdf"), CategoryID: &c.ID, UploaderID: uploader,
	})
	require.NoError(t, err)

	// Live reference blocks the delete.
	err = svc.DeleteCategory(ctx, group, admin, c.ID)
	require.ErrorIs(t, err, errs.ErrIntegrityViolation)

	// A tombstone still references it until hard-deleted.
	_, err = db.Resources().Tombstone(ctx, group, r.ID, uploader)
	require.NoError(t, err)
	err = svc.DeleteCategory(ctx, group, admin, c.ID)
	require.ErrorIs(t, err, errs.ErrIntegrityViolation)

	// Removing the last resource does not remove the category.
	_, err = db.Resources().HardDelete(ctx, r.ID)
	require.NoError(t, err)
	_, err = svc.GetCategory(ctx, group, c.ID)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteCategory(ctx, group, admin, c.ID))
	_, err = svc.GetCategory(ctx, group, c.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestDeleteCategory_NonAdmin(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	c, err := svc.CreateCategory(ctx, group, admin, "docs", "")
	require.NoError(t, err)
	assert.ErrorIs(t, svc.DeleteCategory(ctx, group, uploader, c.ID), errs.ErrUnauthorized)
	assert.ErrorIs(t, svc.RenameCategory(ctx, group, uploader, c.ID, "x"), errs.ErrUnauthorized)
}

func TestRenameCategory(t *testing.T) {
	svc, db := setup(t)
	ctx := context.Background()

	c, _ := svc.CreateCategory(ctx, group, admin, "docs", "")
	_, _ = svc.CreateCategory(ctx, group, admin, "slides", "")

	require.NoError(t, svc.RenameCategory(ctx, group, admin, c.ID, "Documents"))
	got, err := svc.FindCategory(ctx, group, "documents")
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)
	assert.Zero(t, db.EditCount(), "renaming writes no resource edits")

	assert.ErrorIs(t, svc.RenameCategory(ctx, group, admin, c.ID, "SLIDES"), errs.ErrConflict)
}

func TestTags_CreateByMemberDeleteByAdmin(t *testing.T) {
	svc, db := setup(t)
	ctx := context.Background()

	exam, err := svc.CreateTag(ctx, group, member, "#exam")
	require.NoError(t, err)
	assert.Equal(t, "exam", exam.Name)
	keep, err := svc.CreateTag(ctx, group, member, "2024")
	require.NoError(t, err)

	r, err := svc.CreateResource(ctx, catalog.NewResource{
		GroupID: group, Artifact: artifact("a.pdf"), TagIDs: []int64{exam.ID, keep.ID}, UploaderID: uploader,
	})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.DeleteTag(ctx, group, member, exam.ID), errs.ErrUnauthorized)
	require.NoError(t, svc.DeleteTag(ctx, group, admin, exam.ID))

	got, ok := db.Resource(r.ID)
	require.True(t, ok)
	assert.Equal(t, []int64{keep.ID}, got.TagIDs(), "deleted tag must be detached")

	_, err = svc.GetTag(ctx, group, exam.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestDeleteTag_FailureKeepsTagRows(t *testing.T) {
	svc, db := setup(t)
	ctx := context.Background()

	tg, _ := svc.CreateTag(ctx, group, member, "exam")
	r, err := svc.CreateResource(ctx, catalog.NewResource{
		GroupID: group, Artifact: artifact("a.pdf"), TagIDs: []int64{tg.ID}, UploaderID: uploader,
	})
	require.NoError(t, err)

	db.FailNext("tags.Delete", errors.New("write conflict"))
	require.Error(t, svc.DeleteTag(ctx, group, admin, tg.ID))

	got, _ := db.Resource(r.ID)
	assert.True(t, got.HasTag(tg.ID), "failed delete must roll the detach back")
}

func TestCreateResource_Atomic(t *testing.T) {
	svc, db := setup(t)
	ctx := context.Background()

	c, _ := svc.CreateCategory(ctx, group, admin, "docs", "")
	tg, _ := svc.CreateTag(ctx, group, member, "exam")

	_, err := svc.CreateResource(ctx, catalog.NewResource{
		GroupID: group, Artifact: artifact("a.pdf"), CategoryID: &c.ID, TagIDs: []int64{tg.ID, 999}, UploaderID: uploader,
	})
	require.ErrorIs(t, err, errs.ErrNotFound)

	missing := int64(12345)
	_, err = svc.CreateResource(ctx, catalog.NewResource{
		GroupID: group, Artifact: artifact("a.pdf"), CategoryID: &missing, UploaderID: uploader,
	})
	require.ErrorIs(t, err, errs.ErrNotFound)

	db.FailNext("edits.Append", errors.New("disk full"))
	_, err = svc.CreateResource(ctx, catalog.NewResource{
		GroupID: group, Artifact: artifact("a.pdf"), CategoryID: &c.ID, UploaderID: uploader,
	})
	require.Error(t, err)

	n, _ := db.Resources().CountLive(ctx, group)
	assert.Zero(t, n, "no partial resource may remain")
	assert.Zero(t, db.EditCount())

	r, err := svc.CreateResource(ctx, catalog.NewResource{
		GroupID: group, Artifact: artifact("a.pdf"), CategoryID: &c.ID, TagIDs: []int64{tg.ID, tg.ID}, UploaderID: uploader,
		Description: "midterm <b>notes</b>",
	})
	require.NoError(t, err)
	assert.Equal(t, "midterm notes", r.Description)
	assert.Equal(t, []int64{tg.ID}, r.TagIDs())

	hist, err := svc.History(ctx, group, r.ID, 0)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, models.EditFieldCreated, hist[0].Field)
}

func TestResourceEdits_Authorization(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	r, err := svc.CreateResource(ctx, catalog.NewResource{GroupID: group, Artifact: artifact("a.pdf"), UploaderID: uploader})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.EditDescription(ctx, group, member, r.ID, "hijack"), errs.ErrUnauthorized)
	assert.NoError(t, svc.EditDescription(ctx, group, uploader, r.ID, "by uploader"))
	assert.NoError(t, svc.EditDescription(ctx, group, admin, r.ID, "by admin"))
}

func TestResourceEdits_AppendHistory(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	c, _ := svc.CreateCategory(ctx, group, admin, "docs", "")
	tg, _ := svc.CreateTag(ctx, group, member, "exam")
	r, err := svc.CreateResource(ctx, catalog.NewResource{GroupID: group, Artifact: artifact("a.pdf"), UploaderID: uploader, Description: "old"})
	require.NoError(t, err)

	require.NoError(t, svc.SetResourceCategory(ctx, group, uploader, r.ID, &c.ID))
	require.NoError(t, svc.AddResourceTag(ctx, group, uploader, r.ID, tg.ID))
	assert.ErrorIs(t, svc.AddResourceTag(ctx, group, uploader, r.ID, tg.ID), errs.ErrConflict)
	require.NoError(t, svc.EditDescription(ctx, group, uploader, r.ID, "new"))
	require.NoError(t, svc.RemoveResourceTag(ctx, group, uploader, r.ID, tg.ID))
	require.NoError(t, svc.SetResourceCategory(ctx, group, uploader, r.ID, nil))

	// Unchanged values write nothing.
	require.NoError(t, svc.EditDescription(ctx, group, uploader, r.ID, "new"))

	hist, err := svc.History(ctx, group, r.ID, 0)
	require.NoError(t, err)
	fields := make([]string, len(hist))
	for i, e := range hist {
		fields[i] = e.Field
	}
	assert.Equal(t, []string{
		models.EditFieldCategory,
		models.EditFieldTagRemove,
		models.EditFieldDescription,
		models.EditFieldTagAdd,
		models.EditFieldCategory,
		models.EditFieldCreated,
	}, fields)

	desc := hist[2]
	assert.Equal(t, "old", desc.OldValue)
	assert.Equal(t, "new", desc.NewValue)
	assert.Equal(t, "exam", hist[1].OldValue)
}

func TestResourceEdits_TombstonedIsNotFound(t *testing.T) {
	svc, db := setup(t)
	ctx := context.Background()

	r, err := svc.CreateResource(ctx, catalog.NewResource{GroupID: group, Artifact: artifact("a.pdf"), UploaderID: uploader})
	require.NoError(t, err)
	_, err = db.Resources().Tombstone(ctx, group, r.ID, uploader)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.EditDescription(ctx, group, uploader, r.ID, "late"), errs.ErrNotFound)
	_, err = svc.History(ctx, group, r.ID, 0)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}
