// internal/app/upload/workflow.go
package upload

import (
	"errors"
	"time"

	"github.com/dalemusser/groupvault/internal/domain/models"
)

// State is the step an upload conversation is at.
type State string

const (
	StateAwaitingCategory    State = "awaiting_category"
	StateAwaitingTags        State = "awaiting_tags"
	StateAwaitingDescription State = "awaiting_description"
	StateConfirm             State = "confirm"
	StateCommitted           State = "committed"
	StateCancelled           State = "cancelled"
	StateExpired             State = "expired"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCommitted || s == StateCancelled || s == StateExpired
}

var (
	// ErrWorkflowActive is returned by Start when the key already has an
	// active workflow. The active workflow's snapshot is returned with it.
	ErrWorkflowActive = errors.New("an upload is already in progress")

	// ErrNoWorkflow means the key has no active workflow.
	ErrNoWorkflow = errors.New("no upload in progress")

	// ErrExpired means the workflow sat idle past the timeout and is gone.
	ErrExpired = errors.New("upload expired")

	// ErrWrongState means the step does not apply to the current state.
	ErrWrongState = errors.New("not expected at this step")
)

// Key identifies a workflow: one per user per chat.
type Key struct {
	ChatID int64
	UserID int64
}

// Workflow is a snapshot of one upload conversation. Values returned by the
// Manager are copies; changing them has no effect.
type Workflow struct {
	ID           string
	Key          Key
	GroupID      int64
	State        State
	Artifact     models.ArtifactRef
	UploaderName string
	CategoryID   *int64
	TagIDs       []int64
	Description  string
	StartedAt    time.Time
	TouchedAt    time.Time

	// ResourceID is set once the workflow is committed.
	ResourceID int64
}

// HasTag reports whether tagID is selected.
func (w Workflow) HasTag(tagID int64) bool {
	for _, id := range w.TagIDs {
		if id == tagID {
			return true
		}
	}
	return false
}

func (w Workflow) clone() Workflow {
	w.TagIDs = append([]int64(nil), w.TagIDs...)
	if w.CategoryID != nil {
		v := *w.CategoryID
		w.CategoryID = &v
	}
	return w
}
