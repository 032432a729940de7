package upload_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dalemusser/groupvault/internal/app/catalog"
	"github.com/dalemusser/groupvault/internal/app/system/metrics"
	"github.com/dalemusser/groupvault/internal/app/upload"
	"github.com/dalemusser/groupvault/internal/domain/errs"
	"github.com/dalemusser/groupvault/internal/domain/models"
	"github.com/dalemusser/groupvault/internal/testutil/memstore"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	group  = int64(-1007777777777)
	admin  = int64(1)
	member = int64(2)
)

type fixture struct {
	db    *memstore.DB
	cat   *catalog.Service
	mgr   *upload.Manager
	clock *fakeClock
	m     *metrics.Metrics
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := memstore.New()
	db.Roles().Seed(group, admin, models.RoleAdmin)
	db.Roles().Seed(group, member, models.RoleMember)

	cat := catalog.New(catalog.Deps{
		Categories: db.Categories(),
		Tags:       db.Tags(),
		Resources:  db.Resources(),
		Edits:      db.Edits(),
		Roles:      db.Roles(),
		Tx:         db.Tx,
	})
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	m := metrics.New()
	mgr := upload.NewManager(cat, 5*time.Minute, m, nil)
	mgr.SetClock(clock.Now)
	return &fixture{db: db, cat: cat, mgr: mgr, clock: clock, m: m}
}

func doc(msgID int) models.ArtifactRef {
	return models.ArtifactRef{ChatID: group, MessageID: msgID, FileID: "file", FileType: models.FileTypeDocument, FileName: "notes.pdf"}
}

func TestWorkflow_HappyPath(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	key := upload.Key{ChatID: group, UserID: member}

	docs, err := f.cat.CreateCategory(ctx, group, admin, "docs", "")
	require.NoError(t, err)
	exam, err := f.cat.CreateTag(ctx, group, admin, "exam")
	require.NoError(t, err)

	wf, err := f.mgr.Start(key, group, doc(10), "Uploader")
	require.NoError(t, err)
	assert.Equal(t, upload.StateAwaitingCategory, wf.State)
	assert.NotEmpty(t, wf.ID)

	wf, err = f.mgr.SelectCategory(ctx, key, docs.ID)
	require.NoError(t, err)
	assert.Equal(t, upload.StateAwaitingTags, wf.State)

	_, err = f.mgr.ToggleTag(ctx, key, exam.ID)
	require.NoError(t, err)
	wf, err = f.mgr.CreateTag(ctx, key, "2024")
	require.NoError(t, err)
	assert.Len(t, wf.TagIDs, 2)

	// Creating an existing name selects it instead of failing.
	wf, err = f.mgr.CreateTag(ctx, key, "EXAM")
	require.NoError(t, err)
	assert.Len(t, wf.TagIDs, 2)

	wf, err = f.mgr.FinishTags(key)
	require.NoError(t, err)
	assert.Equal(t, upload.StateAwaitingDescription, wf.State)

	n, _ := f.db.Resources().CountLive(ctx, group)
	assert.Zero(t, n, "nothing is written before confirm")

	wf, err = f.mgr.SetDescription(key, "midterm notes")
	require.NoError(t, err)
	assert.Equal(t, upload.StateConfirm, wf.State)

	wf, r, err := f.mgr.Confirm(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, upload.StateCommitted, wf.State)
	assert.Equal(t, r.ID, wf.ResourceID)
	assert.Equal(t, "midterm notes", r.Description)
	require.NotNil(t, r.CategoryID)
	assert.Equal(t, docs.ID, *r.CategoryID)
	assert.Len(t, r.Tags, 2)
	assert.Equal(t, member, r.UploaderID)

	_, err = f.mgr.Current(key)
	assert.ErrorIs(t, err, upload.ErrNoWorkflow)
	assert.Zero(t, f.mgr.Active())

	series, err := promtest.GatherAndCount(f.m.Registry(), "groupvault_upload_workflows_total")
	require.NoError(t, err)
	assert.Equal(t, 1, series, "one outcome label (committed) recorded")
}

func TestStart_RejectsWhileActive(t *testing.T) {
	f := setup(t)
	key := upload.Key{ChatID: group, UserID: member}

	first, err := f.mgr.Start(key, group, doc(10), "")
	require.NoError(t, err)

	snap, err := f.mgr.Start(key, group, doc(11), "")
	require.ErrorIs(t, err, upload.ErrWorkflowActive)
	assert.Equal(t, first.ID, snap.ID, "caller gets the active workflow back")
	assert.Equal(t, 10, snap.Artifact.MessageID, "active workflow is left untouched")
	assert.Equal(t, 1, f.mgr.Active())

	// Another user, or the same user in another chat, is independent.
	_, err = f.mgr.Start(upload.Key{ChatID: group, UserID: admin}, group, doc(12), "")
	require.NoError(t, err)
	_, err = f.mgr.Start(upload.Key{ChatID: group - 1, UserID: member}, group-1, doc(13), "")
	require.NoError(t, err)
	assert.Equal(t, 3, f.mgr.Active())
}

func TestStart_ConcurrentOnlyOne(t *testing.T) {
	f := setup(t)
	key := upload.Key{ChatID: group, UserID: member}

	var started atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := f.mgr.Start(key, group, doc(100+i), ""); err == nil {
				started.Add(1)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), started.Load())
	assert.Equal(t, 1, f.mgr.Active())
}

func TestStart_RequiresFile(t *testing.T) {
	f := setup(t)
	_, err := f.mgr.Start(upload.Key{ChatID: group, UserID: member}, group, models.ArtifactRef{}, "")
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestWrongStateTransitions(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	key := upload.Key{ChatID: group, UserID: member}

	_, err := f.mgr.FinishTags(key)
	require.ErrorIs(t, err, upload.ErrNoWorkflow)

	_, err = f.mgr.Start(key, group, doc(10), "")
	require.NoError(t, err)

	_, err = f.mgr.FinishTags(key)
	assert.ErrorIs(t, err, upload.ErrWrongState)
	_, err = f.mgr.SetDescription(key, "too early")
	assert.ErrorIs(t, err, upload.ErrWrongState)
	_, _, err = f.mgr.Confirm(ctx, key)
	assert.ErrorIs(t, err, upload.ErrWrongState)

	wf, err := f.mgr.Current(key)
	require.NoError(t, err)
	assert.Equal(t, upload.StateAwaitingCategory, wf.State)
}

func TestSelectCategory_Validation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	key := upload.Key{ChatID: group, UserID: member}
	_, err := f.mgr.Start(key, group, doc(10), "")
	require.NoError(t, err)

	_, err = f.mgr.SelectCategory(ctx, key, 404)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	// Members cannot create categories from the workflow.
	_, err = f.mgr.CreateCategory(ctx, key, "new")
	assert.ErrorIs(t, err, errs.ErrUnauthorized)

	wf, _ := f.mgr.Current(key)
	assert.Equal(t, upload.StateAwaitingCategory, wf.State)

	adminKey := upload.Key{ChatID: group, UserID: admin}
	_, err = f.mgr.Start(adminKey, group, doc(11), "")
	require.NoError(t, err)
	wf, err = f.mgr.CreateCategory(ctx, adminKey, "slides")
	require.NoError(t, err)
	assert.Equal(t, upload.StateAwaitingTags, wf.State)
	require.NotNil(t, wf.CategoryID)
}

func TestToggleTag_Deselects(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	key := upload.Key{ChatID: group, UserID: member}

	c, _ := f.cat.CreateCategory(ctx, group, admin, "docs", "")
	tg, _ := f.cat.CreateTag(ctx, group, member, "exam")

	_, _ = f.mgr.Start(key, group, doc(10), "")
	_, _ = f.mgr.SelectCategory(ctx, key, c.ID)

	wf, err := f.mgr.ToggleTag(ctx, key, tg.ID)
	require.NoError(t, err)
	assert.True(t, wf.HasTag(tg.ID))
	wf, err = f.mgr.ToggleTag(ctx, key, tg.ID)
	require.NoError(t, err)
	assert.False(t, wf.HasTag(tg.ID))

	_, err = f.mgr.ToggleTag(ctx, key, 999)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestCancel(t *testing.T) {
	f := setup(t)
	key := upload.Key{ChatID: group, UserID: member}

	_, _ = f.mgr.Start(key, group, doc(10), "")
	wf, err := f.mgr.Cancel(key)
	require.NoError(t, err)
	assert.Equal(t, upload.StateCancelled, wf.State)

	_, err = f.mgr.Current(key)
	assert.ErrorIs(t, err, upload.ErrNoWorkflow)

	_, err = f.mgr.Start(key, group, doc(11), "")
	assert.NoError(t, err, "a cancelled workflow frees the key")
}

func TestIdleWorkflowExpiresOnTouch(t *testing.T) {
	f := setup(t)
	key := upload.Key{ChatID: group, UserID: member}

	first, _ := f.mgr.Start(key, group, doc(10), "")
	f.clock.Advance(6 * time.Minute)

	_, err := f.mgr.Current(key)
	require.ErrorIs(t, err, upload.ErrExpired)
	_, err = f.mgr.Current(key)
	require.ErrorIs(t, err, upload.ErrNoWorkflow)

	second, err := f.mgr.Start(key, group, doc(11), "")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestStart_ReplacesExpired(t *testing.T) {
	f := setup(t)
	key := upload.Key{ChatID: group, UserID: member}

	_, _ = f.mgr.Start(key, group, doc(10), "")
	f.clock.Advance(6 * time.Minute)

	wf, err := f.mgr.Start(key, group, doc(11), "")
	require.NoError(t, err)
	assert.Equal(t, 11, wf.Artifact.MessageID)
	assert.Equal(t, 1, f.mgr.Active())
}

func TestActivityKeepsWorkflowAlive(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	key := upload.Key{ChatID: group, UserID: member}
	c, _ := f.cat.CreateCategory(ctx, group, admin, "docs", "")

	_, _ = f.mgr.Start(key, group, doc(10), "")
	f.clock.Advance(4 * time.Minute)
	_, err := f.mgr.SelectCategory(ctx, key, c.ID)
	require.NoError(t, err)
	f.clock.Advance(4 * time.Minute)

	wf, err := f.mgr.FinishTags(key)
	require.NoError(t, err)
	assert.Equal(t, upload.StateAwaitingDescription, wf.State)
}

func TestSweepExpired(t *testing.T) {
	f := setup(t)

	_, _ = f.mgr.Start(upload.Key{ChatID: group, UserID: 10}, group, doc(10), "")
	f.clock.Advance(3 * time.Minute)
	_, _ = f.mgr.Start(upload.Key{ChatID: group, UserID: 11}, group, doc(11), "")
	f.clock.Advance(3 * time.Minute)

	removed := f.mgr.SweepExpired(f.clock.Now())
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, f.mgr.Active())

	_, err := f.mgr.Current(upload.Key{ChatID: group, UserID: 10})
	assert.ErrorIs(t, err, upload.ErrNoWorkflow)
}

func TestConfirm_FailureKeepsWorkflow(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	key := upload.Key{ChatID: group, UserID: member}
	c, _ := f.cat.CreateCategory(ctx, group, admin, "docs", "")

	_, _ = f.mgr.Start(key, group, doc(10), "")
	_, _ = f.mgr.SelectCategory(ctx, key, c.ID)
	_, _ = f.mgr.FinishTags(key)
	_, _ = f.mgr.SetDescription(key, "")

	f.db.FailNext("resources.Insert", errors.New("primary stepped down"))
	wf, _, err := f.mgr.Confirm(ctx, key)
	require.Error(t, err)
	assert.Equal(t, upload.StateConfirm, wf.State)
	n, _ := f.db.Resources().CountLive(ctx, group)
	assert.Zero(t, n)

	_, r, err := f.mgr.Confirm(ctx, key)
	require.NoError(t, err)
	assert.NotZero(t, r.ID)
}

func TestConfirm_CategoryDeletedMidway(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	key := upload.Key{ChatID: group, UserID: member}
	c, _ := f.cat.CreateCategory(ctx, group, admin, "docs", "")

	_, _ = f.mgr.Start(key, group, doc(10), "")
	_, _ = f.mgr.SelectCategory(ctx, key, c.ID)
	_, _ = f.mgr.FinishTags(key)
	_, _ = f.mgr.SetDescription(key, "x")

	require.NoError(t, f.cat.DeleteCategory(ctx, group, admin, c.ID))

	_, _, err := f.mgr.Confirm(ctx, key)
	assert.ErrorIs(t, err, errs.ErrNotFound)
	n, _ := f.db.Resources().CountLive(ctx, group)
	assert.Zero(t, n)
}

func TestConcurrentStepsSerialize(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	key := upload.Key{ChatID: group, UserID: member}
	c, _ := f.cat.CreateCategory(ctx, group, admin, "docs", "")

	_, _ = f.mgr.Start(key, group, doc(10), "")

	var ok atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.mgr.SelectCategory(ctx, key, c.ID); err == nil {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), ok.Load(), "only one message may advance the step")
}
