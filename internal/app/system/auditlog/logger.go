// internal/app/system/auditlog/logger.go
package auditlog

import (
	"context"
	"strconv"

	"github.com/dalemusser/groupvault/internal/app/store/audit"
	"go.uber.org/zap"
)

// Config holds audit logging configuration.
type Config struct {
	// Init controls logging for group initialization events (secret issue, /init attempts).
	// Values: "all" (MongoDB + zap), "db" (MongoDB only), "log" (zap only), "off" (disabled)
	Init string
	// Admin controls logging for role changes, catalog edits and deletions.
	// Values: "all" (MongoDB + zap), "db" (MongoDB only), "log" (zap only), "off" (disabled)
	Admin string
}

// Logger provides convenience methods for logging audit events.
// It logs to both MongoDB (via audit.Store) and structured logs (via zap).
type Logger struct {
	store  *audit.Store
	zapLog *zap.Logger
	config Config
}

// New creates a new audit Logger.
func New(store *audit.Store, zapLog *zap.Logger, config Config) *Logger {
	return &Logger{store: store, zapLog: zapLog, config: config}
}

func (l *Logger) logToZap(event audit.Event) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("category", event.Category),
		zap.String("event_type", event.EventType),
		zap.Bool("success", event.Success),
	}
	if event.GroupID != nil {
		fields = append(fields, zap.Int64("group_id", *event.GroupID))
	}
	if event.UserID != nil {
		fields = append(fields, zap.Int64("user_id", *event.UserID))
	}
	if event.ActorID != nil {
		fields = append(fields, zap.Int64("actor_id", *event.ActorID))
	}
	if event.ResourceID != nil {
		fields = append(fields, zap.Int64("resource_id", *event.ResourceID))
	}
	if event.FailureReason != "" {
		fields = append(fields, zap.String("failure_reason", event.FailureReason))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}

	if event.Success {
		l.zapLog.Info("audit event", fields...)
	} else {
		l.zapLog.Warn("audit event", fields...)
	}
}

// Log records an audit event based on configuration.
// If the logger is nil, this is a no-op (allows tests to use nil audit logger).
func (l *Logger) Log(ctx context.Context, event audit.Event) {
	if l == nil {
		return
	}

	var setting string
	switch event.Category {
	case audit.CategoryInit:
		setting = l.config.Init
	case audit.CategoryRoles, audit.CategoryCatalog, audit.CategoryDelete:
		setting = l.config.Admin
	default:
		setting = "all"
	}
	if setting == "" {
		setting = "all"
	}
	if setting == "off" {
		return
	}

	if setting == "all" || setting == "log" {
		l.logToZap(event)
	}
	if (setting == "all" || setting == "db") && l.store != nil {
		if err := l.store.Log(ctx, event); err != nil {
			l.zapLog.Error("failed to store audit event",
				zap.Error(err),
				zap.String("event_type", event.EventType),
			)
		}
	}
}

func i64(v int64) *int64 { return &v }

// --- Group initialization ---

// SecretIssued logs that a new bootstrap secret was generated. The secret
// itself is never part of the event.
func (l *Logger) SecretIssued(ctx context.Context) {
	l.Log(ctx, audit.Event{Category: audit.CategoryInit, EventType: audit.EventSecretIssued, Success: true})
}

// GroupInitialized logs a successful /init.
func (l *Logger) GroupInitialized(ctx context.Context, groupID, userID int64) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryInit,
		EventType: audit.EventGroupInitialized,
		GroupID:   i64(groupID),
		UserID:    i64(userID),
		Success:   true,
	})
}

// InitRejected logs a failed /init. eventType is one of the EventInit* constants.
func (l *Logger) InitRejected(ctx context.Context, groupID, userID int64, eventType, reason string) {
	l.Log(ctx, audit.Event{
		Category:      audit.CategoryInit,
		EventType:     eventType,
		GroupID:       i64(groupID),
		UserID:        i64(userID),
		Success:       false,
		FailureReason: reason,
	})
}

// --- Roles ---

// RoleSet logs a role assignment.
func (l *Logger) RoleSet(ctx context.Context, groupID, actorID, userID int64, oldRole, newRole string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryRoles,
		EventType: audit.EventRoleSet,
		GroupID:   i64(groupID),
		ActorID:   i64(actorID),
		UserID:    i64(userID),
		Success:   true,
		Details:   map[string]string{"old_role": oldRole, "new_role": newRole},
	})
}

// RoleSetForbidden logs a refused role assignment.
func (l *Logger) RoleSetForbidden(ctx context.Context, groupID, actorID, userID int64, newRole string) {
	l.Log(ctx, audit.Event{
		Category:      audit.CategoryRoles,
		EventType:     audit.EventRoleForbidden,
		GroupID:       i64(groupID),
		ActorID:       i64(actorID),
		UserID:        i64(userID),
		Success:       false,
		FailureReason: "insufficient role",
		Details:       map[string]string{"new_role": newRole},
	})
}

// --- Catalog ---

// CatalogChanged logs a category or tag mutation. eventType is one of the
// EventCategory*/EventTag* constants.
func (l *Logger) CatalogChanged(ctx context.Context, groupID, actorID int64, eventType string, id int64, name string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryCatalog,
		EventType: eventType,
		GroupID:   i64(groupID),
		ActorID:   i64(actorID),
		Success:   true,
		Details:   map[string]string{"id": strconv.FormatInt(id, 10), "name": name},
	})
}

// ResourceCreated logs a committed upload.
func (l *Logger) ResourceCreated(ctx context.Context, groupID, uploaderID, resourceID int64) {
	l.Log(ctx, audit.Event{
		Category:   audit.CategoryCatalog,
		EventType:  audit.EventResourceCreated,
		GroupID:    i64(groupID),
		ActorID:    i64(uploaderID),
		ResourceID: i64(resourceID),
		Success:    true,
	})
}

// ResourceEdited logs a metadata edit on a Resource.
func (l *Logger) ResourceEdited(ctx context.Context, groupID, editorID, resourceID int64, field string) {
	l.Log(ctx, audit.Event{
		Category:   audit.CategoryCatalog,
		EventType:  audit.EventResourceEdited,
		GroupID:    i64(groupID),
		ActorID:    i64(editorID),
		ResourceID: i64(resourceID),
		Success:    true,
		Details:    map[string]string{"field": field},
	})
}

// --- Deletion ---

// ResourceDeleted logs a fully completed delete (artifact and row gone).
func (l *Logger) ResourceDeleted(ctx context.Context, groupID, actorID, resourceID int64) {
	l.Log(ctx, audit.Event{
		Category:   audit.CategoryDelete,
		EventType:  audit.EventResourceDeleted,
		GroupID:    i64(groupID),
		ActorID:    i64(actorID),
		ResourceID: i64(resourceID),
		Success:    true,
	})
}

// ResourceTombstoned logs a delete that stopped after the tombstone because
// the external removal failed.
func (l *Logger) ResourceTombstoned(ctx context.Context, groupID, actorID, resourceID int64, reason string) {
	l.Log(ctx, audit.Event{
		Category:      audit.CategoryDelete,
		EventType:     audit.EventResourceTombstoned,
		GroupID:       i64(groupID),
		ActorID:       i64(actorID),
		ResourceID:    i64(resourceID),
		Success:       false,
		FailureReason: reason,
	})
}

// DeleteForbidden logs a refused delete.
func (l *Logger) DeleteForbidden(ctx context.Context, groupID, actorID, resourceID int64) {
	l.Log(ctx, audit.Event{
		Category:      audit.CategoryDelete,
		EventType:     audit.EventDeleteForbidden,
		GroupID:       i64(groupID),
		ActorID:       i64(actorID),
		ResourceID:    i64(resourceID),
		Success:       false,
		FailureReason: "not uploader or admin",
	})
}

// ResourceReconciled logs a tombstone finalized by the background sweep.
func (l *Logger) ResourceReconciled(ctx context.Context, groupID, resourceID int64) {
	l.Log(ctx, audit.Event{
		Category:   audit.CategoryDelete,
		EventType:  audit.EventResourceReconciled,
		GroupID:    i64(groupID),
		ResourceID: i64(resourceID),
		Success:    true,
	})
}
