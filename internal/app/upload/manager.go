// internal/app/upload/manager.go
package upload

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dalemusser/groupvault/internal/app/catalog"
	"github.com/dalemusser/groupvault/internal/app/system/metrics"
	"github.com/dalemusser/groupvault/internal/domain/errs"
	"github.com/dalemusser/groupvault/internal/domain/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultIdleTimeout is used when the configured timeout is not positive.
const DefaultIdleTimeout = 10 * time.Minute

// Catalog is what the workflow needs to validate selections and commit.
type Catalog interface {
	GetCategory(ctx context.Context, groupID, id int64) (models.Category, error)
	CreateCategory(ctx context.Context, groupID, actorID int64, name, description string) (models.Category, error)
	GetTag(ctx context.Context, groupID, id int64) (models.Tag, error)
	FindTag(ctx context.Context, groupID int64, name string) (models.Tag, error)
	CreateTag(ctx context.Context, groupID, actorID int64, name string) (models.Tag, error)
	CreateResource(ctx context.Context, in catalog.NewResource) (models.Resource, error)
}

type entry struct {
	mu   sync.Mutex
	wf   Workflow
	gone bool
}

// Manager keeps upload workflows in memory, at most one per Key.
//
// Each key has its own lock, held for the whole of a step, so two messages
// from the same user are applied one after the other. Workflows are not
// persisted; a restart drops them.
type Manager struct {
	mu      sync.Mutex
	entries map[Key]*entry

	catalog Catalog
	ttl     time.Duration
	now     func() time.Time
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewManager(cat Catalog, idleTimeout time.Duration, m *metrics.Metrics, log *zap.Logger) *Manager {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		entries: make(map[Key]*entry),
		catalog: cat,
		ttl:     idleTimeout,
		now:     time.Now,
		metrics: m,
		log:     log,
	}
}

// SetClock replaces the time source. Tests only.
func (m *Manager) SetClock(now func() time.Time) { m.now = now }

func (m *Manager) idle(e *entry) bool {
	return m.now().Sub(e.wf.TouchedAt) > m.ttl
}

// finish moves e to a terminal state and drops it from the map.
// Caller holds e.mu.
func (m *Manager) finish(e *entry, state State) {
	e.wf.State = state
	e.gone = true

	m.mu.Lock()
	if m.entries[e.wf.Key] == e {
		delete(m.entries, e.wf.Key)
	}
	n := len(m.entries)
	m.mu.Unlock()

	m.metrics.UploadFinished(string(state))
	m.metrics.SetActiveWorkflows(n)
	m.log.Debug("upload workflow finished",
		zap.String("workflow_id", e.wf.ID),
		zap.Int64("chat_id", e.wf.Key.ChatID),
		zap.Int64("user_id", e.wf.Key.UserID),
		zap.String("state", string(state)))
}

// lock returns the key's live entry with its lock held. An idle entry is
// expired on the way and reported as ErrExpired.
func (m *Manager) lock(key Key) (*entry, error) {
	m.mu.Lock()
	e := m.entries[key]
	m.mu.Unlock()
	if e == nil {
		return nil, ErrNoWorkflow
	}

	e.mu.Lock()
	if e.gone {
		e.mu.Unlock()
		return nil, ErrNoWorkflow
	}
	if m.idle(e) {
		m.finish(e, StateExpired)
		e.mu.Unlock()
		return nil, ErrExpired
	}
	return e, nil
}

// step runs fn on the key's workflow if it is in one of the allowed states.
func (m *Manager) step(key Key, allowed []State, fn func(e *entry) error) (Workflow, error) {
	e, err := m.lock(key)
	if err != nil {
		return Workflow{}, err
	}
	defer e.mu.Unlock()

	ok := false
	for _, s := range allowed {
		if e.wf.State == s {
			ok = true
			break
		}
	}
	if !ok {
		return e.wf.clone(), fmt.Errorf("%w (at %s)", ErrWrongState, e.wf.State)
	}
	if err := fn(e); err != nil {
		return e.wf.clone(), err
	}
	if !e.gone {
		e.wf.TouchedAt = m.now()
	}
	return e.wf.clone(), nil
}

// Start opens a workflow for the artifact. If the key already has an active
// workflow, Start leaves it untouched and returns its snapshot with
// ErrWorkflowActive.
func (m *Manager) Start(key Key, groupID int64, artifact models.ArtifactRef, uploaderName string) (Workflow, error) {
	if artifact.FileID == "" {
		return Workflow{}, fmt.Errorf("%w: message carries no file", errs.ErrInvalidInput)
	}

	for {
		m.mu.Lock()
		e := m.entries[key]
		if e == nil {
			now := m.now()
			e = &entry{wf: Workflow{
				ID:           uuid.NewString(),
				Key:          key,
				GroupID:      groupID,
				State:        StateAwaitingCategory,
				Artifact:     artifact,
				UploaderName: uploaderName,
				StartedAt:    now,
				TouchedAt:    now,
			}}
			m.entries[key] = e
			n := len(m.entries)
			m.mu.Unlock()

			m.metrics.SetActiveWorkflows(n)
			m.log.Debug("upload workflow started",
				zap.String("workflow_id", e.wf.ID),
				zap.Int64("chat_id", key.ChatID),
				zap.Int64("user_id", key.UserID))
			return e.wf.clone(), nil
		}
		m.mu.Unlock()

		e.mu.Lock()
		switch {
		case e.gone:
			// Finished between the map read and the lock; look again.
		case m.idle(e):
			m.finish(e, StateExpired)
		default:
			snap := e.wf.clone()
			e.mu.Unlock()
			return snap, ErrWorkflowActive
		}
		e.mu.Unlock()
	}
}

// SelectCategory picks an existing category and moves on to tags.
func (m *Manager) SelectCategory(ctx context.Context, key Key, categoryID int64) (Workflow, error) {
	return m.step(key, []State{StateAwaitingCategory}, func(e *entry) error {
		c, err := m.catalog.GetCategory(ctx, e.wf.GroupID, categoryID)
		if err != nil {
			return err
		}
		e.wf.CategoryID = &c.ID
		e.wf.State = StateAwaitingTags
		return nil
	})
}

// CreateCategory creates a category (admins only, enforced by the catalog),
// selects it and moves on to tags.
func (m *Manager) CreateCategory(ctx context.Context, key Key, name string) (Workflow, error) {
	return m.step(key, []State{StateAwaitingCategory}, func(e *entry) error {
		c, err := m.catalog.CreateCategory(ctx, e.wf.GroupID, key.UserID, name, "")
		if err != nil {
			return err
		}
		e.wf.CategoryID = &c.ID
		e.wf.State = StateAwaitingTags
		return nil
	})
}

// ToggleTag selects or deselects an existing tag.
func (m *Manager) ToggleTag(ctx context.Context, key Key, tagID int64) (Workflow, error) {
	return m.step(key, []State{StateAwaitingTags}, func(e *entry) error {
		if e.wf.HasTag(tagID) {
			e.wf.TagIDs = removeID(e.wf.TagIDs, tagID)
			return nil
		}
		tg, err := m.catalog.GetTag(ctx, e.wf.GroupID, tagID)
		if err != nil {
			return err
		}
		e.wf.TagIDs = append(e.wf.TagIDs, tg.ID)
		return nil
	})
}

// CreateTag creates a tag and selects it. A name that already exists
// selects the existing tag.
func (m *Manager) CreateTag(ctx context.Context, key Key, name string) (Workflow, error) {
	return m.step(key, []State{StateAwaitingTags}, func(e *entry) error {
		tg, err := m.catalog.CreateTag(ctx, e.wf.GroupID, key.UserID, name)
		if errors.Is(err, errs.ErrConflict) {
			tg, err = m.catalog.FindTag(ctx, e.wf.GroupID, name)
		}
		if err != nil {
			return err
		}
		if !e.wf.HasTag(tg.ID) {
			e.wf.TagIDs = append(e.wf.TagIDs, tg.ID)
		}
		return nil
	})
}

// FinishTags ends tag selection; zero tags is fine.
func (m *Manager) FinishTags(key Key) (Workflow, error) {
	return m.step(key, []State{StateAwaitingTags}, func(e *entry) error {
		e.wf.State = StateAwaitingDescription
		return nil
	})
}

// SetDescription records the description (empty skips it) and moves to
// confirmation.
func (m *Manager) SetDescription(key Key, text string) (Workflow, error) {
	return m.step(key, []State{StateAwaitingDescription}, func(e *entry) error {
		desc, err := catalog.CleanDescription(text)
		if err != nil {
			return err
		}
		e.wf.Description = desc
		e.wf.State = StateConfirm
		return nil
	})
}

// Confirm writes the resource. On failure the workflow stays at confirm so
// the user can retry or cancel; nothing is written until this succeeds.
func (m *Manager) Confirm(ctx context.Context, key Key) (Workflow, models.Resource, error) {
	var created models.Resource
	wf, err := m.step(key, []State{StateConfirm}, func(e *entry) error {
		r, err := m.catalog.CreateResource(ctx, catalog.NewResource{
			GroupID:      e.wf.GroupID,
			Artifact:     e.wf.Artifact,
			CategoryID:   e.wf.CategoryID,
			TagIDs:       e.wf.TagIDs,
			UploaderID:   key.UserID,
			UploaderName: e.wf.UploaderName,
			Description:  e.wf.Description,
		})
		if err != nil {
			return err
		}
		created = r
		e.wf.ResourceID = r.ID
		m.finish(e, StateCommitted)
		return nil
	})
	if err != nil {
		m.log.Warn("upload commit failed",
			zap.Int64("chat_id", key.ChatID),
			zap.Int64("user_id", key.UserID),
			zap.Error(err))
	}
	return wf, created, err
}

// Cancel ends the key's workflow from any non-terminal state.
func (m *Manager) Cancel(key Key) (Workflow, error) {
	return m.step(key, []State{StateAwaitingCategory, StateAwaitingTags, StateAwaitingDescription, StateConfirm}, func(e *entry) error {
		m.finish(e, StateCancelled)
		return nil
	})
}

// Current returns the key's active workflow.
func (m *Manager) Current(key Key) (Workflow, error) {
	e, err := m.lock(key)
	if err != nil {
		return Workflow{}, err
	}
	defer e.mu.Unlock()
	return e.wf.clone(), nil
}

// Active returns the number of workflows held in memory.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// SweepExpired expires and drops every workflow idle at now. It returns how
// many it removed.
func (m *Manager) SweepExpired(now time.Time) int {
	m.mu.Lock()
	all := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		all = append(all, e)
	}
	m.mu.Unlock()

	removed := 0
	for _, e := range all {
		e.mu.Lock()
		if !e.gone && now.Sub(e.wf.TouchedAt) > m.ttl {
			m.finish(e, StateExpired)
			removed++
		}
		e.mu.Unlock()
	}
	if removed > 0 {
		m.log.Info("expired idle upload workflows", zap.Int("count", removed))
	}
	return removed
}

func removeID(ids []int64, id int64) []int64 {
	out := ids[:0:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
