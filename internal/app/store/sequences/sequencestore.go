// internal/app/store/sequences/sequencestore.go
package sequencestore

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Sequence names. Each names one document in the counters collection.
const (
	Categories    = "categories"
	Tags          = "tags"
	Resources     = "resources"
	ResourceEdits = "resource_edits"
)

// Store hands out monotonically increasing int64 ids so chat commands can
// refer to entities with short numbers (/get_42).
type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("counters")}
}

type counter struct {
	Seq int64 `bson:"seq"`
}

// Next atomically increments and returns the named sequence. The first
// value of a new sequence is 1.
func (s *Store) Next(ctx context.Context, name string) (int64, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var c counter
	err := s.c.FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		opts,
	).Decode(&c)
	if err != nil {
		return 0, err
	}
	return c.Seq, nil
}

// Peek returns the last value handed out for name, or 0 if none.
func (s *Store) Peek(ctx context.Context, name string) (int64, error) {
	var c counter
	err := s.c.FindOne(ctx, bson.M{"_id": name}).Decode(&c)
	if err == mongo.ErrNoDocuments {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return c.Seq, nil
}
