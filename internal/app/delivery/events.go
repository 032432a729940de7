// internal/app/delivery/events.go
package delivery

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event is published when a delete stops after the tombstone.
type Event struct {
	ID         string    `json:"id"`
	GroupID    int64     `json:"group_id"`
	ResourceID int64     `json:"resource_id"`
	Attempt    int       `json:"attempt"`
	Reason     string    `json:"reason"`
	At         time.Time `json:"at"`
}

func newEvent(groupID, resourceID int64, attempt int, reason string, at time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		GroupID:    groupID,
		ResourceID: resourceID,
		Attempt:    attempt,
		Reason:     reason,
		At:         at.UTC(),
	}
}

// Publisher announces partial deletion failures so a reconciler can retry
// them before the next periodic sweep. Publishing is best effort; the
// tombstone is the durable record.
type Publisher interface {
	PublishPartialFailure(ctx context.Context, ev Event) error
}

// LogPublisher only logs events. It is used when no message bus is configured.
type LogPublisher struct{ Log *zap.Logger }

func (p LogPublisher) PublishPartialFailure(_ context.Context, ev Event) error {
	if p.Log != nil {
		p.Log.Info("delete pending reconciliation",
			zap.String("event_id", ev.ID),
			zap.Int64("group_id", ev.GroupID),
			zap.Int64("resource_id", ev.ResourceID),
			zap.Int("attempt", ev.Attempt),
			zap.String("reason", ev.Reason))
	}
	return nil
}
