// internal/app/store/categories/categorystore.go
package categorystore

import (
	"context"
	"errors"
	"fmt"
	"time"

	sequencestore "github.com/dalemusser/groupvault/internal/app/store/sequences"
	"github.com/dalemusser/groupvault/internal/domain/errs"
	"github.com/dalemusser/groupvault/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	ErrDuplicateName = fmt.Errorf("%w: a category with this name already exists", errs.ErrConflict)
	ErrNotFound      = fmt.Errorf("%w: category", errs.ErrNotFound)
)

type Store struct {
	c   *mongo.Collection
	seq *sequencestore.Store
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("categories"), seq: sequencestore.New(db)}
}

// Create assigns an id, folds the name and inserts the category.
func (s *Store) Create(ctx context.Context, c models.Category) (models.Category, error) {
	id, err := s.seq.Next(ctx, sequencestore.Categories)
	if err != nil {
		return models.Category{}, err
	}
	now := time.Now().UTC()
	c.ID = id
	c.NameCI = text.Fold(c.Name)
	c.CreatedAt = now
	c.UpdatedAt = now

	if _, err := s.c.InsertOne(ctx, c); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Category{}, ErrDuplicateName
		}
		return models.Category{}, err
	}
	return c, nil
}

// GetByID returns the category if it belongs to groupID.
func (s *Store) GetByID(ctx context.Context, groupID, id int64) (models.Category, error) {
	var c models.Category
	err := s.c.FindOne(ctx, bson.M{"_id": id, "group_id": groupID}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Category{}, ErrNotFound
	}
	if err != nil {
		return models.Category{}, err
	}
	return c, nil
}

// GetByName looks up a category by folded name.
func (s *Store) GetByName(ctx context.Context, groupID int64, name string) (models.Category, error) {
	var c models.Category
	err := s.c.FindOne(ctx, bson.M{"group_id": groupID, "name_ci": text.Fold(name)}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Category{}, ErrNotFound
	}
	if err != nil {
		return models.Category{}, err
	}
	return c, nil
}

// List returns the group's categories sorted by folded name.
func (s *Store) List(ctx context.Context, groupID int64) ([]models.Category, error) {
	return s.find(ctx, bson.M{"group_id": groupID})
}

// GetByIDs returns the group's categories with the given ids.
func (s *Store) GetByIDs(ctx context.Context, groupID int64, ids []int64) ([]models.Category, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.find(ctx, bson.M{"group_id": groupID, "_id": bson.M{"$in": ids}})
}

// IDsMatching returns ids of the group's categories whose folded name
// contains the regex pattern.
func (s *Store) IDsMatching(ctx context.Context, groupID int64, pattern string) ([]int64, error) {
	cur, err := s.c.Find(ctx,
		bson.M{"group_id": groupID, "name_ci": bson.M{"$regex": pattern}},
		options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var rows []struct {
		ID int64 `bson:"_id"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}
	ids := make([]int64, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	return ids, nil
}

func (s *Store) find(ctx context.Context, filter bson.M) ([]models.Category, error) {
	cur, err := s.c.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "name_ci", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Category
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Rename changes the display name and its folded form.
func (s *Store) Rename(ctx context.Context, groupID, id int64, name string) error {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "group_id": groupID},
		bson.M{"$set": bson.M{
			"name":       name,
			"name_ci":    text.Fold(name),
			"updated_at": time.Now().UTC(),
		}})
	if err != nil {
		if wafflemongo.IsDup(err) {
			return ErrDuplicateName
		}
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// SetDescription replaces the optional description.
func (s *Store) SetDescription(ctx context.Context, groupID, id int64, desc string) error {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "group_id": groupID},
		bson.M{"$set": bson.M{"description": desc, "updated_at": time.Now().UTC()}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the category. Callers enforce the reference guard.
// Returns the number of documents deleted (0 or 1).
func (s *Store) Delete(ctx context.Context, groupID, id int64) (int64, error) {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id, "group_id": groupID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// Use stamps last_used_at on a category that is not retiring. Callers that
// are about to reference the category call it inside their unit of work so
// a concurrent delete touching the same document conflicts with them.
func (s *Store) Use(ctx context.Context, groupID, id int64) error {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "group_id": groupID, "retiring": bson.M{"$ne": true}},
		bson.M{"$set": bson.M{"last_used_at": time.Now().UTC()}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Usable reports whether the category exists and is not retiring.
func (s *Store) Usable(ctx context.Context, groupID, id int64) (bool, error) {
	n, err := s.c.CountDocuments(ctx,
		bson.M{"_id": id, "group_id": groupID, "retiring": bson.M{"$ne": true}})
	return n > 0, err
}

// SetRetiring marks or clears a pending delete.
func (s *Store) SetRetiring(ctx context.Context, groupID, id int64, retiring bool) error {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "group_id": groupID},
		bson.M{"$set": bson.M{"retiring": retiring, "updated_at": time.Now().UTC()}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
