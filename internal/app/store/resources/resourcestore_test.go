package resourcestore_test

import (
	"errors"
	"testing"
	"time"

	resourcestore "github.com/dalemusser/groupvault/internal/app/store/resources"
	"github.com/dalemusser/groupvault/internal/app/system/paging"
	"github.com/dalemusser/groupvault/internal/domain/errs"
	"github.com/dalemusser/groupvault/internal/domain/models"
	"github.com/dalemusser/groupvault/internal/testutil"
)

const group = int64(-1003333333333)

func TestStore_Insert(t *testing.T) {
	db := testutil.SetupTestDBWithSchema(t)
	store := resourcestore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	r, err := store.Insert(ctx, models.Resource{
		GroupID: group,
		Artifact: models.ArtifactRef{
			ChatID: group, MessageID: 12, FileID: "BQAC", FileType: models.FileTypeDocument, FileName: "Syllabus.PDF",
		},
		Tags: []models.ResourceTag{
			{TagID: 3, AddedBy: 9},
			{TagID: 3, AddedBy: 9},
			{TagID: 4, AddedBy: 9},
		},
		UploaderID:  9,
		Description: "Week ONE",
		Deleted:     true,
	})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if r.ID == 0 {
		t.Error("expected an assigned id")
	}
	if r.Deleted {
		t.Error("Insert must never create a tombstone")
	}
	if len(r.Tags) != 2 {
		t.Errorf("expected duplicate tag ids collapsed to 2, got %d", len(r.Tags))
	}

	got, err := store.GetLive(ctx, group, r.ID)
	if err != nil {
		t.Fatalf("GetLive failed: %v", err)
	}
	if got.DescriptionCI != "week one" || got.FileNameCI != "syllabus.pdf" {
		t.Errorf("folded fields = %q, %q", got.DescriptionCI, got.FileNameCI)
	}
	if !got.HasTag(4) {
		t.Error("expected tag 4 attached")
	}
}

func TestStore_Search_ExcludesTombstones(t *testing.T) {
	db := testutil.SetupTestDBWithSchema(t)
	store := resourcestore.New(db)
	fx := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	keep := fx.CreateResource(ctx, group, testutil.ResourceOpts{Description: "algebra notes"})
	gone := fx.CreateResource(ctx, group, testutil.ResourceOpts{Description: "algebra quiz"})
	fx.CreateResource(ctx, group-1, testutil.ResourceOpts{Description: "algebra elsewhere"})

	if _, err := store.Tombstone(ctx, group, gone.ID, 1); err != nil {
		t.Fatalf("Tombstone failed: %v", err)
	}

	rows, err := store.Search(ctx, resourcestore.SearchFilter{GroupID: group, Pattern: "algebra"}, nil, 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != keep.ID {
		t.Errorf("Search = %v, want only %d", ids(rows), keep.ID)
	}

	n, err := store.CountLive(ctx, group)
	if err != nil || n != 1 {
		t.Errorf("CountLive = %d, %v; want 1", n, err)
	}
}

func TestStore_Search_MatchesCategoryAndTagIDs(t *testing.T) {
	db := testutil.SetupTestDBWithSchema(t)
	store := resourcestore.New(db)
	fx := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	cat := fx.CreateCategory(ctx, group, "Physics")
	tg := fx.CreateTag(ctx, group, "midterm")

	byCat := fx.CreateResource(ctx, group, testutil.ResourceOpts{CategoryID: &cat.ID, Description: "unrelated"})
	byTag := fx.CreateResource(ctx, group, testutil.ResourceOpts{TagIDs: []int64{tg.ID}, Description: "unrelated"})
	fx.CreateResource(ctx, group, testutil.ResourceOpts{Description: "unrelated"})

	rows, err := store.Search(ctx, resourcestore.SearchFilter{
		GroupID:          group,
		Pattern:          "zzz-no-text-match",
		MatchCategoryIDs: []int64{cat.ID},
		MatchTagIDs:      []int64{tg.ID},
	}, nil, 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	got := ids(rows)
	if len(got) != 2 || got[0] != byTag.ID || got[1] != byCat.ID {
		t.Errorf("Search = %v, want [%d %d]", got, byTag.ID, byCat.ID)
	}

	rows, err = store.Search(ctx, resourcestore.SearchFilter{GroupID: group, CategoryID: &cat.ID}, nil, 10)
	if err != nil {
		t.Fatalf("Search by category failed: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != byCat.ID {
		t.Errorf("Search by category = %v", ids(rows))
	}
}

func TestStore_Search_CursorPaging(t *testing.T) {
	db := testutil.SetupTestDBWithSchema(t)
	store := resourcestore.New(db)
	fx := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	const total = 7
	for i := 0; i < total; i++ {
		fx.CreateResource(ctx, group, testutil.ResourceOpts{})
	}

	seen := map[int64]bool{}
	var after *paging.Cursor
	pages := 0
	for {
		rows, err := store.Search(ctx, resourcestore.SearchFilter{GroupID: group}, after, 3)
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		if len(rows) == 0 {
			break
		}
		pages++
		for i, r := range rows {
			if seen[r.ID] {
				t.Fatalf("resource %d returned twice", r.ID)
			}
			seen[r.ID] = true
			if i > 0 && rows[i-1].ID < r.ID && rows[i-1].CreatedAt.Equal(r.CreatedAt) {
				t.Errorf("ties must be ordered by id descending")
			}
		}
		last := rows[len(rows)-1]
		after = &paging.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
	if len(seen) != total {
		t.Errorf("paged through %d rows, want %d", len(seen), total)
	}
	if pages != 3 {
		t.Errorf("pages = %d, want 3", pages)
	}
}

func TestStore_Tombstone_OneWay(t *testing.T) {
	db := testutil.SetupTestDBWithSchema(t)
	store := resourcestore.New(db)
	fx := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	r := fx.CreateResource(ctx, group, testutil.ResourceOpts{})

	ts, err := store.Tombstone(ctx, group, r.ID, 77)
	if err != nil {
		t.Fatalf("Tombstone failed: %v", err)
	}
	if !ts.Deleted || ts.DeletedBy == nil || *ts.DeletedBy != 77 || ts.DeletedAt == nil {
		t.Errorf("tombstone fields not set: %+v", ts)
	}

	again, err := store.Tombstone(ctx, group, r.ID, 78)
	if err != resourcestore.ErrAlreadyTombstoned {
		t.Fatalf("expected ErrAlreadyTombstoned, got %v", err)
	}
	if *again.DeletedBy != 77 {
		t.Error("second tombstone must not overwrite deleted_by")
	}

	if _, err := store.GetLive(ctx, group, r.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("GetLive on tombstone: got %v", err)
	}
	if _, err := store.SetDescription(ctx, group, r.ID, "edit"); err != resourcestore.ErrNotFound {
		t.Errorf("edit on tombstone: got %v", err)
	}
	if _, err := store.Tombstone(ctx, group, 99999, 1); err != resourcestore.ErrNotFound {
		t.Errorf("tombstone missing row: got %v", err)
	}
}

func TestStore_HardDelete_OnlyTombstoned(t *testing.T) {
	db := testutil.SetupTestDBWithSchema(t)
	store := resourcestore.New(db)
	fx := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	r := fx.CreateResource(ctx, group, testutil.ResourceOpts{TagIDs: []int64{5}})

	n, err := store.HardDelete(ctx, r.ID)
	if err != nil || n != 0 {
		t.Fatalf("HardDelete on live row = %d, %v; want 0", n, err)
	}

	if _, err := store.Tombstone(ctx, group, r.ID, 1); err != nil {
		t.Fatalf("Tombstone failed: %v", err)
	}
	n, err = store.HardDelete(ctx, r.ID)
	if err != nil || n != 1 {
		t.Fatalf("HardDelete = %d, %v; want 1", n, err)
	}
	if _, err := store.GetByID(ctx, group, r.ID); err != resourcestore.ErrNotFound {
		t.Errorf("expected row gone, got %v", err)
	}
}

func TestStore_TagEdits(t *testing.T) {
	db := testutil.SetupTestDBWithSchema(t)
	store := resourcestore.New(db)
	fx := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	a := fx.CreateResource(ctx, group, testutil.ResourceOpts{TagIDs: []int64{8}})
	b := fx.CreateResource(ctx, group, testutil.ResourceOpts{TagIDs: []int64{8, 9}})

	if err := store.AddTag(ctx, group, a.ID, models.ResourceTag{TagID: 8, AddedBy: 1}); err != resourcestore.ErrTagAttached {
		t.Errorf("AddTag duplicate: got %v", err)
	}
	if err := store.AddTag(ctx, group, a.ID, models.ResourceTag{TagID: 9, AddedBy: 1, AddedAt: time.Now()}); err != nil {
		t.Fatalf("AddTag failed: %v", err)
	}
	if err := store.RemoveTag(ctx, group, a.ID, 10); err != resourcestore.ErrTagNotAttached {
		t.Errorf("RemoveTag absent: got %v", err)
	}

	n, err := store.DetachTagEverywhere(ctx, group, 8)
	if err != nil || n != 2 {
		t.Fatalf("DetachTagEverywhere = %d, %v; want 2", n, err)
	}
	got, _ := store.GetLive(ctx, group, b.ID)
	if got.HasTag(8) || !got.HasTag(9) {
		t.Errorf("tags after detach = %v", got.TagIDs())
	}
}

func TestStore_SetCategory(t *testing.T) {
	db := testutil.SetupTestDBWithSchema(t)
	store := resourcestore.New(db)
	fx := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	cat := fx.CreateCategory(ctx, group, "Old")
	r := fx.CreateResource(ctx, group, testutil.ResourceOpts{CategoryID: &cat.ID})

	old, err := store.SetCategory(ctx, group, r.ID, nil)
	if err != nil {
		t.Fatalf("SetCategory failed: %v", err)
	}
	if old == nil || *old != cat.ID {
		t.Errorf("old category = %v, want %d", old, cat.ID)
	}
	got, _ := store.GetLive(ctx, group, r.ID)
	if got.CategoryID != nil {
		t.Errorf("category should be cleared, got %d", *got.CategoryID)
	}

	n, err := store.CountByCategory(ctx, group, cat.ID)
	if err != nil || n != 0 {
		t.Errorf("CountByCategory = %d, %v; want 0", n, err)
	}
}

func TestStore_ListTombstones(t *testing.T) {
	db := testutil.SetupTestDBWithSchema(t)
	store := resourcestore.New(db)
	fx := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	a := fx.CreateResource(ctx, group, testutil.ResourceOpts{})
	b := fx.CreateResource(ctx, group, testutil.ResourceOpts{})
	fx.CreateResource(ctx, group, testutil.ResourceOpts{})

	store.Tombstone(ctx, group, a.ID, 1)
	store.Tombstone(ctx, group, b.ID, 1)
	for i := 0; i < 3; i++ {
		if err := store.RecordDeleteFailure(ctx, b.ID, "upstream timeout"); err != nil {
			t.Fatalf("RecordDeleteFailure failed: %v", err)
		}
	}

	all, err := store.ListTombstones(ctx, resourcestore.TombstoneFilter{GroupID: ptr(group)})
	if err != nil {
		t.Fatalf("ListTombstones failed: %v", err)
	}
	if len(all) != 2 || all[0].ID != a.ID {
		t.Errorf("ListTombstones = %v, want [%d %d]", ids(all), a.ID, b.ID)
	}

	capped, err := store.ListTombstones(ctx, resourcestore.TombstoneFilter{MaxAttempts: 3})
	if err != nil {
		t.Fatalf("ListTombstones capped failed: %v", err)
	}
	if len(capped) != 1 || capped[0].ID != a.ID {
		t.Errorf("capped = %v, want [%d]", ids(capped), a.ID)
	}

	if err := store.ResetDeleteAttempts(ctx, b.ID); err != nil {
		t.Fatalf("ResetDeleteAttempts failed: %v", err)
	}
	capped, _ = store.ListTombstones(ctx, resourcestore.TombstoneFilter{MaxAttempts: 3})
	if len(capped) != 2 {
		t.Errorf("after reset expected 2 eligible tombstones, got %d", len(capped))
	}

	fresh, _ := store.ListTombstones(ctx, resourcestore.TombstoneFilter{OlderThan: time.Now().Add(-time.Hour)})
	if len(fresh) != 0 {
		t.Errorf("no tombstone is an hour old, got %d", len(fresh))
	}
}

func ids(rows []models.Resource) []int64 {
	out := make([]int64, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	return out
}

func ptr(v int64) *int64 { return &v }
