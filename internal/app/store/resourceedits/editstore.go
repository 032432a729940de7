// internal/app/store/resourceedits/editstore.go
package editstore

import (
	"context"
	"time"

	sequencestore "github.com/dalemusser/groupvault/internal/app/store/sequences"
	"github.com/dalemusser/groupvault/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store is append-only: it has no update or delete methods, and edit rows
// survive the hard delete of the Resource they describe.
type Store struct {
	c   *mongo.Collection
	seq *sequencestore.Store
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("resource_edits"), seq: sequencestore.New(db)}
}

// Append records one edit row, assigning its id and timestamp.
func (s *Store) Append(ctx context.Context, e models.ResourceEdit) (models.ResourceEdit, error) {
	id, err := s.seq.Next(ctx, sequencestore.ResourceEdits)
	if err != nil {
		return models.ResourceEdit{}, err
	}
	e.ID = id
	e.EditedAt = time.Now().UTC()
	if _, err := s.c.InsertOne(ctx, e); err != nil {
		return models.ResourceEdit{}, err
	}
	return e, nil
}

// ListByResource returns up to limit edits for the resource, newest first.
func (s *Store) ListByResource(ctx context.Context, resourceID int64, limit int64) ([]models.ResourceEdit, error) {
	if limit <= 0 {
		limit = 50
	}
	cur, err := s.c.Find(ctx,
		bson.M{"resource_id": resourceID},
		options.Find().
			SetSort(bson.D{{Key: "edited_at", Value: -1}, {Key: "_id", Value: -1}}).
			SetLimit(limit))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.ResourceEdit
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CountByResource returns the number of edits recorded for the resource.
func (s *Store) CountByResource(ctx context.Context, resourceID int64) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"resource_id": resourceID})
}
