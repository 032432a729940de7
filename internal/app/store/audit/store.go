// internal/app/store/audit/store.go
package audit

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Event categories
const (
	CategoryInit    = "init"
	CategoryRoles   = "roles"
	CategoryCatalog = "catalog"
	CategoryDelete  = "delete"
)

// Init event types
const (
	EventSecretIssued     = "secret_issued"
	EventGroupInitialized = "group_initialized"
	EventInitInvalidToken = "init_invalid_token"
	EventInitAlreadyDone  = "init_already_initialized"
	EventInitRateLimited  = "init_rate_limited"
)

// Role event types
const (
	EventRoleSet       = "role_set"
	EventRoleForbidden = "role_set_forbidden"
)

// Catalog event types
const (
	EventCategoryCreated = "category_created"
	EventCategoryRenamed = "category_renamed"
	EventCategoryDeleted = "category_deleted"
	EventTagCreated      = "tag_created"
	EventTagRenamed      = "tag_renamed"
	EventTagDeleted      = "tag_deleted"
	EventResourceCreated = "resource_created"
	EventResourceEdited  = "resource_edited"
)

// Delete event types
const (
	EventResourceDeleted    = "resource_deleted"
	EventResourceTombstoned = "resource_tombstoned"
	EventDeleteForbidden    = "resource_delete_forbidden"
	EventResourceReconciled = "resource_reconciled"
)

// Event represents an audit event.
type Event struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Timestamp time.Time          `bson:"timestamp"`
	GroupID   *int64             `bson:"group_id,omitempty"`

	Category  string `bson:"category"`
	EventType string `bson:"event_type"`

	// Who
	UserID  *int64 `bson:"user_id,omitempty"`  // affected user
	ActorID *int64 `bson:"actor_id,omitempty"` // who performed the action

	// What
	ResourceID *int64 `bson:"resource_id,omitempty"`

	Success       bool   `bson:"success"`
	FailureReason string `bson:"failure_reason,omitempty"`

	Details map[string]string `bson:"details,omitempty"`
}

// QueryFilter defines filters for querying audit events.
type QueryFilter struct {
	GroupID    *int64
	UserID     *int64
	ResourceID *int64
	Category   string
	EventType  string
	StartTime  *time.Time
	EndTime    *time.Time
	Limit      int64
	Offset     int64
}

// Store manages audit event records.
type Store struct {
	c *mongo.Collection
}

// New creates a new audit Store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("audit_events")}
}

// Log records an audit event.
func (s *Store) Log(ctx context.Context, event Event) error {
	if event.ID.IsZero() {
		event.ID = primitive.NewObjectID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	_, err := s.c.InsertOne(ctx, event)
	return err
}

func (f QueryFilter) toBSON() bson.M {
	query := bson.M{}
	if f.GroupID != nil {
		query["group_id"] = *f.GroupID
	}
	if f.UserID != nil {
		query["user_id"] = *f.UserID
	}
	if f.ResourceID != nil {
		query["resource_id"] = *f.ResourceID
	}
	if f.Category != "" {
		query["category"] = f.Category
	}
	if f.EventType != "" {
		query["event_type"] = f.EventType
	}
	if f.StartTime != nil || f.EndTime != nil {
		tq := bson.M{}
		if f.StartTime != nil {
			tq["$gte"] = *f.StartTime
		}
		if f.EndTime != nil {
			tq["$lte"] = *f.EndTime
		}
		query["timestamp"] = tq
	}
	return query
}

// Query retrieves audit events matching the given filter, newest first.
func (s *Store) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(limit).
		SetSkip(filter.Offset)

	cur, err := s.c.Find(ctx, filter.toBSON(), opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var events []Event
	if err := cur.All(ctx, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// CountByFilter returns the count of events matching the filter.
func (s *Store) CountByFilter(ctx context.Context, filter QueryFilter) (int64, error) {
	return s.c.CountDocuments(ctx, filter.toBSON())
}

// GetByGroup retrieves recent audit events for one chat group.
func (s *Store) GetByGroup(ctx context.Context, groupID int64, limit int64) ([]Event, error) {
	return s.Query(ctx, QueryFilter{GroupID: &groupID, Limit: limit})
}

// GetRecent retrieves the most recent audit events.
func (s *Store) GetRecent(ctx context.Context, limit int64) ([]Event, error) {
	return s.Query(ctx, QueryFilter{Limit: limit})
}
