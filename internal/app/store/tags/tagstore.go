// internal/app/store/tags/tagstore.go
package tagstore

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
	ErrDuplicateName = fmt.Errorf("%w: a tag with this name already exists", errs.ErrConflict)
	ErrNotFound      = fmt.Errorf("%w: tag", errs.ErrNotFound)
)

type Store struct {
	c   *mongo.Collection
	seq *sequencestore.Store
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("tags"), seq: sequencestore.New(db)}
}

// Create assigns an id, folds the name and inserts the tag.
func (s *Store) Create(ctx context.Context, tg models.Tag) (models.Tag, error) {
	id, err := s.seq.Next(ctx, sequencestore.Tags)
	if err != nil {
		return models.Tag{}, err
	}
	tg.ID = id
	tg.NameCI = text.Fold(tg.Name)
	tg.CreatedAt = time.Now().UTC()

	if _, err := s.c.InsertOne(ctx, tg); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Tag{}, ErrDuplicateName
		}
		return models.Tag{}, err
	}
	return tg, nil
}

// GetByID returns the tag if it belongs to groupID.
func (s *Store) GetByID(ctx context.Context, groupID, id int64) (models.Tag, error) {
	var tg models.Tag
	err := s.c.FindOne(ctx, bson.M{"_id": id, "group_id": groupID}).Decode(&tg)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Tag{}, ErrNotFound
	}
	if err != nil {
		return models.Tag{}, err
	}
	return tg, nil
}

// GetByName looks up a tag by folded name.
func (s *Store) GetByName(ctx context.Context, groupID int64, name string) (models.Tag, error) {
	var tg models.Tag
	err := s.c.FindOne(ctx, bson.M{"group_id": groupID, "name_ci": text.Fold(name)}).Decode(&tg)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Tag{}, ErrNotFound
	}
	if err != nil {
		return models.Tag{}, err
	}
	return tg, nil
}

// List returns the group's tags sorted by folded name.
func (s *Store) List(ctx context.Context, groupID int64) ([]models.Tag, error) {
	return s.find(ctx, bson.M{"group_id": groupID})
}

// GetByIDs returns the group's tags with the given ids.
func (s *Store) GetByIDs(ctx context.Context, groupID int64, ids []int64) ([]models.Tag, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.find(ctx, bson.M{"group_id": groupID, "_id": bson.M{"$in": ids}})
}

// IDsMatching returns ids of the group's tags whose folded name matches
// the regex pattern.
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

func (s *Store) find(ctx context.Context, filter bson.M) ([]models.Tag, error) {
	cur, err := s.c.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "name_ci", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Tag
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Rename changes the display name and its folded form.
func (s *Store) Rename(ctx context.Context, groupID, id int64, name string) error {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "group_id": groupID},
		bson.M{"$set": bson.M{"name": name, "name_ci": text.Fold(name)}})
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

// Delete removes the tag. Callers detach it from Resources in the same unit.
func (s *Store) Delete(ctx context.Context, groupID, id int64) (int64, error) {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id, "group_id": groupID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// Use stamps last_used_at on every tag in ids. It fails with ErrNotFound
// unless all of them exist and none is retiring.
func (s *Store) Use(ctx context.Context, groupID int64, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	res, err := s.c.UpdateMany(ctx,
		bson.M{"group_id": groupID, "_id": bson.M{"$in": ids}, "retiring": bson.M{"$ne": true}},
		bson.M{"$set": bson.M{"last_used_at": time.Now().UTC()}})
	if err != nil {
		return err
	}
	if res.MatchedCount != int64(len(ids)) {
		return fmt.Errorf("%w: one or more tags no longer exist", errs.ErrNotFound)
	}
	return nil
}

// CountUsable returns how many of ids exist in the group and are not
// retiring.
func (s *Store) CountUsable(ctx context.Context, groupID int64, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return s.c.CountDocuments(ctx,
		bson.M{"group_id": groupID, "_id": bson.M{"$in": ids}, "retiring": bson.M{"$ne": true}})
}

// SetRetiring marks or clears a pending delete.
func (s *Store) SetRetiring(ctx context.Context, groupID, id int64, retiring bool) error {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "group_id": groupID},
		bson.M{"$set": bson.M{"retiring": retiring}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
