package query_test

import (
	"context"
	"testing"
	"time"

	"github.com/dalemusser/groupvault/internal/app/query"
	"github.com/dalemusser/groupvault/internal/domain/errs"
	"github.com/dalemusser/groupvault/internal/domain/models"
	"github.com/dalemusser/groupvault/internal/testutil/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const group = int64(-1008888888888)

type fixture struct {
	db     *memstore.DB
	engine *query.Engine
	clock  time.Time
}

func setup(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{db: memstore.New(), clock: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	f.db.Now = func() time.Time { return f.clock }
	f.engine = query.NewEngine(f.db.Resources(), f.db.Categories(), f.db.Tags(), 3, nil, nil)
	return f
}

func (f *fixture) insert(t *testing.T, r models.Resource) models.Resource {
	t.Helper()
	if r.GroupID == 0 {
		r.GroupID = group
	}
	if r.Artifact.FileID == "" {
		r.Artifact = models.ArtifactRef{ChatID: r.GroupID, MessageID: 1, FileID: "f", FileType: models.FileTypeDocument, FileName: r.Artifact.FileName}
	}
	out, err := f.db.Resources().Insert(context.Background(), r)
	require.NoError(t, err)
	f.clock = f.clock.Add(time.Second)
	return out
}

func ids(p query.Page) []int64 {
	out := make([]int64, len(p.Items))
	for i, s := range p.Items {
		out[i] = s.ID
	}
	return out
}

func TestSearch_KeywordMatchesTextAndNames(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	physics, _ := f.db.Categories().Create(ctx, models.Category{GroupID: group, Name: "Physics"})
	midterm, _ := f.db.Tags().Create(ctx, models.Tag{GroupID: group, Name: "Midterm"})

	byDesc := f.insert(t, models.Resource{Description: "MIDTERM notes"})
	byFile := f.insert(t, models.Resource{Artifact: models.ArtifactRef{FileName: "midterm-2024.pdf"}})
	byTag := f.insert(t, models.Resource{Tags: []models.ResourceTag{{TagID: midterm.ID}}})
	f.insert(t, models.Resource{CategoryID: &physics.ID, Description: "lab report"})
	f.insert(t, models.Resource{Description: "unrelated"})

	page, err := f.engine.Search(ctx, query.Params{GroupID: group, Keyword: "  Midterm ", PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, []int64{byTag.ID, byFile.ID, byDesc.ID}, ids(page))
	assert.Empty(t, page.NextCursor)
	assert.Equal(t, []string{"Midterm"}, page.Items[0].TagNames)

	page, err = f.engine.Search(ctx, query.Params{GroupID: group, Keyword: "phys"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Physics", page.Items[0].CategoryName)
}

func TestSearch_KeywordIsLiteral(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	hit := f.insert(t, models.Resource{Description: "c++ (intro)"})
	f.insert(t, models.Resource{Description: "cpp intro"})

	page, err := f.engine.Search(ctx, query.Params{GroupID: group, Keyword: "C++ (INTRO"})
	require.NoError(t, err)
	assert.Equal(t, []int64{hit.ID}, ids(page))

	page, err = f.engine.Search(ctx, query.Params{GroupID: group, Keyword: ".*"})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}

func TestSearch_NoMatchIsEmptyPage(t *testing.T) {
	f := setup(t)
	page, err := f.engine.Search(context.Background(), query.Params{GroupID: group, Keyword: "nothing"})
	require.NoError(t, err)
	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)
	assert.Empty(t, page.NextCursor)
}

func TestSearch_ExcludesTombstones(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	keep := f.insert(t, models.Resource{Description: "midterm a"})
	gone := f.insert(t, models.Resource{Description: "midterm b"})
	_, err := f.db.Resources().Tombstone(ctx, group, gone.ID, 1)
	require.NoError(t, err)

	page, err := f.engine.Search(ctx, query.Params{GroupID: group, Keyword: "midterm"})
	require.NoError(t, err)
	assert.Equal(t, []int64{keep.ID}, ids(page))

	_, err = f.engine.Get(ctx, group, gone.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestSearch_CursorIsStableUnderInserts(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	var all []int64
	for i := 0; i < 7; i++ {
		all = append([]int64{f.insert(t, models.Resource{}).ID}, all...)
	}

	first, err := f.engine.Search(ctx, query.Params{GroupID: group})
	require.NoError(t, err)
	assert.Equal(t, all[:3], ids(first))
	require.NotEmpty(t, first.NextCursor)

	// New uploads between pages must not shift what page two returns.
	f.insert(t, models.Resource{})
	f.insert(t, models.Resource{})

	second, err := f.engine.Search(ctx, query.Params{GroupID: group, Cursor: first.NextCursor})
	require.NoError(t, err)
	assert.Equal(t, all[3:6], ids(second))

	third, err := f.engine.Search(ctx, query.Params{GroupID: group, Cursor: second.NextCursor})
	require.NoError(t, err)
	assert.Equal(t, all[6:], ids(third))
	assert.Empty(t, third.NextCursor)
}

func TestSearch_SameMillisecondTiebreak(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	// Inserting directly leaves the clock still, so every row shares created_at.

	var want []int64
	for i := 0; i < 5; i++ {
		r, err := f.db.Resources().Insert(ctx, models.Resource{GroupID: group, Artifact: models.ArtifactRef{FileID: "f", FileType: models.FileTypeDocument}})
		require.NoError(t, err)
		want = append([]int64{r.ID}, want...)
	}

	var got []int64
	cursor := ""
	for {
		page, err := f.engine.Search(ctx, query.Params{GroupID: group, Cursor: cursor, PageSize: 2})
		require.NoError(t, err)
		got = append(got, ids(page)...)
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	assert.Equal(t, want, got)
}

func TestSearch_Filters(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	docs, _ := f.db.Categories().Create(ctx, models.Category{GroupID: group, Name: "docs"})
	exam, _ := f.db.Tags().Create(ctx, models.Tag{GroupID: group, Name: "exam"})

	both := f.insert(t, models.Resource{CategoryID: &docs.ID, Tags: []models.ResourceTag{{TagID: exam.ID}}, Description: "final"})
	f.insert(t, models.Resource{CategoryID: &docs.ID, Description: "final"})
	f.insert(t, models.Resource{Tags: []models.ResourceTag{{TagID: exam.ID}}, Description: "final"})

	page, err := f.engine.Search(ctx, query.Params{GroupID: group, Keyword: "final", CategoryID: &docs.ID, TagID: &exam.ID})
	require.NoError(t, err)
	assert.Equal(t, []int64{both.ID}, ids(page))

	page, err = f.engine.Search(ctx, query.Params{GroupID: group, CategoryID: &docs.ID, PageSize: 10})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
}

func TestSearch_OtherGroupInvisible(t *testing.T) {
	f := setup(t)
	f.insert(t, models.Resource{GroupID: group - 1, Description: "secret"})

	page, err := f.engine.Search(context.Background(), query.Params{GroupID: group, Keyword: "secret"})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}

func TestSearch_BadCursor(t *testing.T) {
	f := setup(t)
	_, err := f.engine.Search(context.Background(), query.Params{GroupID: group, Cursor: "!!not-a-cursor"})
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestGet_ResolvesNamesAndPreview(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	docs, _ := f.db.Categories().Create(ctx, models.Category{GroupID: group, Name: "docs"})
	a, _ := f.db.Tags().Create(ctx, models.Tag{GroupID: group, Name: "a"})
	b, _ := f.db.Tags().Create(ctx, models.Tag{GroupID: group, Name: "b"})

	long := ""
	for i := 0; i < 80; i++ {
		long += "x"
	}
	r := f.insert(t, models.Resource{
		CategoryID:  &docs.ID,
		Tags:        []models.ResourceTag{{TagID: b.ID}, {TagID: a.ID}},
		Description: long,
	})

	s, err := f.engine.Get(ctx, group, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "docs", s.CategoryName)
	assert.Equal(t, []string{"b", "a"}, s.TagNames, "tags keep their attach order")
	assert.Equal(t, long, s.Description)
	assert.Len(t, []rune(s.Preview), 51)
}
