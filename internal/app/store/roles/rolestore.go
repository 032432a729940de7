// internal/app/store/roles/rolestore.go
package rolestore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/groupvault/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrInvalidRole is returned when asked to store RoleNone or an unknown role.
var ErrInvalidRole = errors.New("role must be member, admin or super_admin")

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("roles")}
}

// Get returns the role entry for (groupID, userID) or mongo.ErrNoDocuments.
func (s *Store) Get(ctx context.Context, groupID, userID int64) (models.RoleEntry, error) {
	var e models.RoleEntry
	err := s.c.FindOne(ctx, bson.M{"group_id": groupID, "user_id": userID}).Decode(&e)
	if err != nil {
		return models.RoleEntry{}, err
	}
	return e, nil
}

// GetRole returns the user's role in the group, RoleNone when absent.
func (s *Store) GetRole(ctx context.Context, groupID, userID int64) (models.Role, error) {
	e, err := s.Get(ctx, groupID, userID)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.RoleNone, nil
	}
	if err != nil {
		return models.RoleNone, err
	}
	return e.Role, nil
}

// Set creates or overwrites the (groupID, userID) entry and returns the
// role it replaced (RoleNone for a new entry). Entries are never deleted.
func (s *Store) Set(ctx context.Context, groupID, userID int64, role models.Role, grantedBy *int64) (models.Role, error) {
	if !role.Valid() {
		return models.RoleNone, ErrInvalidRole
	}
	now := time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"role":       role,
			"granted_by": grantedBy,
			"updated_at": now,
		},
		"$setOnInsert": bson.M{
			"group_id":   groupID,
			"user_id":    userID,
			"created_at": now,
		},
	}
	if grantedBy == nil {
		update["$set"] = bson.M{"role": role, "updated_at": now}
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.Before)

	var prev models.RoleEntry
	err := s.c.FindOneAndUpdate(ctx, bson.M{"group_id": groupID, "user_id": userID}, update, opts).Decode(&prev)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return models.RoleNone, nil
	case err != nil && wafflemongo.IsDup(err):
		// Two concurrent upserts raced on insert; the loser retries as an update.
		err = s.c.FindOneAndUpdate(ctx, bson.M{"group_id": groupID, "user_id": userID}, update, opts).Decode(&prev)
		if err != nil {
			return models.RoleNone, err
		}
		return prev.Role, nil
	case err != nil:
		return models.RoleNone, err
	}
	return prev.Role, nil
}

// HasAnyWithRole reports whether any user in the group holds role.
func (s *Store) HasAnyWithRole(ctx context.Context, groupID int64, role models.Role) (bool, error) {
	n, err := s.c.CountDocuments(ctx,
		bson.M{"group_id": groupID, "role": role},
		options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CountGroup returns how many role entries exist for the group.
func (s *Store) CountGroup(ctx context.Context, groupID int64) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"group_id": groupID})
}

// ListByGroup returns all entries for the group ordered by user id.
func (s *Store) ListByGroup(ctx context.Context, groupID int64) ([]models.RoleEntry, error) {
	cur, err := s.c.Find(ctx, bson.M{"group_id": groupID},
		options.Find().SetSort(bson.D{{Key: "user_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.RoleEntry
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
