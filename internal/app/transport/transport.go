// Package transport is the boundary to the chat platform that hosts the
// actual files. The catalog only keeps ArtifactRefs; sending a copy or
// removing the original always goes through a Transport.
package transport

import (
	"context"

	"github.com/dalemusser/groupvault/internal/domain/models"
)

// DeleteResult is the outcome of removing an artifact upstream.
type DeleteResult string

const (
	DeleteOK       DeleteResult = "ok"
	DeleteFailed   DeleteResult = "failed"
	DeleteNotFound DeleteResult = "not_found_upstream"
)

// Done reports whether the artifact is gone upstream, either because this
// call removed it or because it was already missing.
func (r DeleteResult) Done() bool { return r == DeleteOK || r == DeleteNotFound }

// Target is where a re-delivered copy is sent. ThreadID selects a forum
// topic; zero means the chat's main thread.
type Target struct {
	ChatID   int64
	ThreadID int
}

// Transport sends and deletes hosted artifacts.
//
// DeleteArtifact returns DeleteFailed together with a non-nil error for
// anything that may succeed on retry. A nil error always accompanies
// DeleteOK and DeleteNotFound.
type Transport interface {
	SendArtifact(ctx context.Context, to Target, ref models.ArtifactRef) error
	DeleteArtifact(ctx context.Context, ref models.ArtifactRef) (DeleteResult, error)
}
