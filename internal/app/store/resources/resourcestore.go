// internal/app/store/resources/resourcestore.go
package resourcestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	sequencestore "github.com/dalemusser/groupvault/internal/app/store/sequences"
	"github.com/dalemusser/groupvault/internal/app/system/paging"
	"github.com/dalemusser/groupvault/internal/domain/errs"
	"github.com/dalemusser/groupvault/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	ErrNotFound = fmt.Errorf("%w: resource", errs.ErrNotFound)
	// ErrAlreadyTombstoned is returned by Tombstone when the row is already
	// marked deleted; the caller may resume the external delete.
	ErrAlreadyTombstoned = errors.New("resource already tombstoned")
	ErrTagAttached       = fmt.Errorf("%w: tag already attached", errs.ErrConflict)
	ErrTagNotAttached    = fmt.Errorf("%w: tag not attached", errs.ErrNotFound)
)

// live matches rows that are not tombstoned. Every read and edit path that
// is visible to chat users includes it.
var live = bson.M{"$ne": true}

type Store struct {
	c   *mongo.Collection
	seq *sequencestore.Store
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("resources"), seq: sequencestore.New(db)}
}

// Insert stores a Resource together with its tag rows in one document write,
// so either all of it is visible or none of it is. Duplicate tag ids are
// collapsed.
func (s *Store) Insert(ctx context.Context, r models.Resource) (models.Resource, error) {
	id, err := s.seq.Next(ctx, sequencestore.Resources)
	if err != nil {
		return models.Resource{}, err
	}
	r.ID = id
	r.CreatedAt = paging.TruncateMS(time.Now())
	r.UpdatedAt = nil
	r.DescriptionCI = text.Fold(r.Description)
	r.FileNameCI = text.Fold(r.Artifact.FileName)
	r.Deleted = false
	r.DeletedAt = nil
	r.DeletedBy = nil
	r.DeleteAttempts = 0
	r.LastDeleteError = ""
	r.Tags = dedupeTags(r.Tags)

	if _, err := s.c.InsertOne(ctx, r); err != nil {
		return models.Resource{}, err
	}
	return r, nil
}

func dedupeTags(in []models.ResourceTag) []models.ResourceTag {
	out := make([]models.ResourceTag, 0, len(in))
	seen := make(map[int64]bool, len(in))
	for _, t := range in {
		if seen[t.TagID] {
			continue
		}
		seen[t.TagID] = true
		out = append(out, t)
	}
	return out
}

// GetByID returns the row whether or not it is tombstoned. Only the
// deletion path and operator tooling should need this.
func (s *Store) GetByID(ctx context.Context, groupID, id int64) (models.Resource, error) {
	return s.findOne(ctx, bson.M{"_id": id, "group_id": groupID})
}

// GetAnyGroup returns a row by id regardless of group (reconciler, ops).
func (s *Store) GetAnyGroup(ctx context.Context, id int64) (models.Resource, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

// GetLive returns the row only if it is not tombstoned.
func (s *Store) GetLive(ctx context.Context, groupID, id int64) (models.Resource, error) {
	return s.findOne(ctx, bson.M{"_id": id, "group_id": groupID, "deleted": live})
}

func (s *Store) findOne(ctx context.Context, filter bson.M) (models.Resource, error) {
	var r models.Resource
	err := s.c.FindOne(ctx, filter).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Resource{}, ErrNotFound
	}
	if err != nil {
		return models.Resource{}, err
	}
	return r, nil
}

// SearchFilter selects live Resources in one group.
//
// Pattern is a regex over folded text; a row matches when the pattern
// matches its description or file name, or the row carries one of
// MatchCategoryIDs or MatchTagIDs (ids whose names matched). CategoryID and
// TagID are exact filters applied on top.
type SearchFilter struct {
	GroupID          int64
	Pattern          string
	MatchCategoryIDs []int64
	MatchTagIDs      []int64
	CategoryID       *int64
	TagID            *int64
	UploaderID       *int64
}

// BSON builds the Mongo filter. Tombstoned rows are always excluded.
func (f SearchFilter) BSON(after *paging.Cursor) bson.M {
	and := bson.A{bson.M{"group_id": f.GroupID, "deleted": live}}
	if f.CategoryID != nil {
		and = append(and, bson.M{"category_id": *f.CategoryID})
	}
	if f.TagID != nil {
		and = append(and, bson.M{"tags.tag_id": *f.TagID})
	}
	if f.UploaderID != nil {
		and = append(and, bson.M{"uploader_id": *f.UploaderID})
	}
	if f.Pattern != "" {
		or := bson.A{
			bson.M{"description_ci": bson.M{"$regex": f.Pattern}},
			bson.M{"file_name_ci": bson.M{"$regex": f.Pattern}},
		}
		if len(f.MatchCategoryIDs) > 0 {
			or = append(or, bson.M{"category_id": bson.M{"$in": f.MatchCategoryIDs}})
		}
		if len(f.MatchTagIDs) > 0 {
			or = append(or, bson.M{"tags.tag_id": bson.M{"$in": f.MatchTagIDs}})
		}
		and = append(and, bson.M{"$or": or})
	}
	if after != nil {
		and = append(and, paging.AfterDesc(*after))
	}
	return bson.M{"$and": and}
}

// Search returns up to limit live rows matching f, newest first, strictly
// after the cursor when one is given.
func (s *Store) Search(ctx context.Context, f SearchFilter, after *paging.Cursor, limit int64) ([]models.Resource, error) {
	opts := options.Find().SetSort(paging.NewestFirst()).SetLimit(limit)
	cur, err := s.c.Find(ctx, f.BSON(after), opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Resource
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CountByCategory counts rows referencing the category, tombstoned rows
// included: a tombstone still points at its category until hard-deleted.
func (s *Store) CountByCategory(ctx context.Context, groupID, categoryID int64) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"group_id": groupID, "category_id": categoryID})
}

// CountLive counts the group's live rows.
func (s *Store) CountLive(ctx context.Context, groupID int64) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"group_id": groupID, "deleted": live})
}

// SetCategory changes the category of a live row and returns the old one.
func (s *Store) SetCategory(ctx context.Context, groupID, id int64, categoryID *int64) (*int64, error) {
	now := time.Now().UTC()
	update := bson.M{"$set": bson.M{"category_id": categoryID, "updated_at": now}}
	if categoryID == nil {
		update = bson.M{"$unset": bson.M{"category_id": ""}, "$set": bson.M{"updated_at": now}}
	}
	var before models.Resource
	err := s.c.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "group_id": groupID, "deleted": live},
		update,
		options.FindOneAndUpdate().SetReturnDocument(options.Before),
	).Decode(&before)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return before.CategoryID, nil
}

// AddTag attaches a tag row to a live Resource.
func (s *Store) AddTag(ctx context.Context, groupID, id int64, rt models.ResourceTag) error {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "group_id": groupID, "deleted": live, "tags.tag_id": bson.M{"$ne": rt.TagID}},
		bson.M{
			"$push": bson.M{"tags": rt},
			"$set":  bson.M{"updated_at": time.Now().UTC()},
		})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		if _, err := s.GetLive(ctx, groupID, id); err != nil {
			return err
		}
		return ErrTagAttached
	}
	return nil
}

// RemoveTag detaches a tag row from a live Resource.
func (s *Store) RemoveTag(ctx context.Context, groupID, id, tagID int64) error {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "group_id": groupID, "deleted": live, "tags.tag_id": tagID},
		bson.M{
			"$pull": bson.M{"tags": bson.M{"tag_id": tagID}},
			"$set":  bson.M{"updated_at": time.Now().UTC()},
		})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		if _, err := s.GetLive(ctx, groupID, id); err != nil {
			return err
		}
		return ErrTagNotAttached
	}
	return nil
}

// DetachTagEverywhere removes a tag from every row in the group, tombstones
// included, so no tag row outlives its Tag.
func (s *Store) DetachTagEverywhere(ctx context.Context, groupID, tagID int64) (int64, error) {
	res, err := s.c.UpdateMany(ctx,
		bson.M{"group_id": groupID, "tags.tag_id": tagID},
		bson.M{"$pull": bson.M{"tags": bson.M{"tag_id": tagID}}})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// SetDescription replaces the description of a live row and returns the old text.
func (s *Store) SetDescription(ctx context.Context, groupID, id int64, desc string) (string, error) {
	var before models.Resource
	err := s.c.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "group_id": groupID, "deleted": live},
		bson.M{"$set": bson.M{
			"description":    desc,
			"description_ci": text.Fold(desc),
			"updated_at":     time.Now().UTC(),
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.Before),
	).Decode(&before)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return before.Description, nil
}

// Tombstone is phase one of deletion: deleted false -> true. There is no
// method that moves it back. Returns the tombstoned row.
func (s *Store) Tombstone(ctx context.Context, groupID, id, by int64) (models.Resource, error) {
	now := time.Now().UTC()
	var r models.Resource
	err := s.c.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "group_id": groupID, "deleted": live},
		bson.M{"$set": bson.M{"deleted": true, "deleted_at": now, "deleted_by": by}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if existing, gerr := s.GetByID(ctx, groupID, id); gerr == nil && existing.Deleted {
			return existing, ErrAlreadyTombstoned
		}
		return models.Resource{}, ErrNotFound
	}
	if err != nil {
		return models.Resource{}, err
	}
	return r, nil
}

// HardDelete is phase three: remove a tombstoned row and with it every tag
// row it carries. Live rows are never matched.
func (s *Store) HardDelete(ctx context.Context, id int64) (int64, error) {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id, "deleted": true})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// Discard removes a live row. It undoes an insert by hand when the
// deployment has no transactions.
func (s *Store) Discard(ctx context.Context, groupID, id int64) error {
	_, err := s.c.DeleteOne(ctx, bson.M{"_id": id, "group_id": groupID, "deleted": live})
	return err
}

// RecordDeleteFailure notes a failed external delete on a tombstone.
func (s *Store) RecordDeleteFailure(ctx context.Context, id int64, reason string) error {
	_, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "deleted": true},
		bson.M{
			"$inc": bson.M{"delete_attempts": 1},
			"$set": bson.M{"last_delete_error": reason},
		})
	return err
}

// ResetDeleteAttempts lets the sweep pick up a tombstone that hit the cap.
func (s *Store) ResetDeleteAttempts(ctx context.Context, id int64) error {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "deleted": true},
		bson.M{"$set": bson.M{"delete_attempts": 0}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// TombstoneFilter selects tombstones for reconciliation or inspection.
type TombstoneFilter struct {
	GroupID     *int64
	OlderThan   time.Time // zero means no age bound
	MaxAttempts int       // rows with attempts >= MaxAttempts are skipped; 0 means no cap
	Limit       int64
}

// ListTombstones returns tombstones oldest first.
func (s *Store) ListTombstones(ctx context.Context, f TombstoneFilter) ([]models.Resource, error) {
	filter := bson.M{"deleted": true}
	if f.GroupID != nil {
		filter["group_id"] = *f.GroupID
	}
	if !f.OlderThan.IsZero() {
		filter["deleted_at"] = bson.M{"$lte": f.OlderThan}
	}
	if f.MaxAttempts > 0 {
		filter["delete_attempts"] = bson.M{"$not": bson.M{"$gte": f.MaxAttempts}}
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "deleted_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(limit)

	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Resource
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
