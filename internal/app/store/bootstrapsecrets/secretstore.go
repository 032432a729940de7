// internal/app/store/bootstrapsecrets/secretstore.go
package secretstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/groupvault/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	// ErrNoActiveSecret is returned when no unconsumed, unsuperseded secret exists.
	ErrNoActiveSecret = errors.New("no active bootstrap secret")
	// ErrNotClaimable is returned when a compare-and-set on a secret loses:
	// it was consumed or superseded since it was read.
	ErrNotClaimable = errors.New("bootstrap secret already consumed or superseded")
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("bootstrap_secrets")}
}

func activeFilter(scope string) bson.M {
	return bson.M{"scope": scope, "consumed": false, "superseded": false}
}

// Issue supersedes every active secret in scope and stores a new one with
// the given hash. Only the hash is persisted.
func (s *Store) Issue(ctx context.Context, scope string, hash []byte) (models.BootstrapSecret, error) {
	if _, err := s.c.UpdateMany(ctx, activeFilter(scope), bson.M{"$set": bson.M{"superseded": true}}); err != nil {
		return models.BootstrapSecret{}, err
	}
	sec := models.BootstrapSecret{
		ID:         primitive.NewObjectID(),
		Scope:      scope,
		SecretHash: hash,
		IssuedAt:   time.Now().UTC(),
	}
	if _, err := s.c.InsertOne(ctx, sec); err != nil {
		return models.BootstrapSecret{}, err
	}
	return sec, nil
}

// Active returns the newest active secret in scope.
func (s *Store) Active(ctx context.Context, scope string) (models.BootstrapSecret, error) {
	var sec models.BootstrapSecret
	err := s.c.FindOne(ctx, activeFilter(scope),
		options.FindOne().SetSort(bson.D{{Key: "issued_at", Value: -1}})).Decode(&sec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.BootstrapSecret{}, ErrNoActiveSecret
	}
	if err != nil {
		return models.BootstrapSecret{}, err
	}
	return sec, nil
}

// MarkConsumed is the single compare-and-set consumed=false -> true.
// Exactly one concurrent caller succeeds; the rest get ErrNotClaimable.
func (s *Store) MarkConsumed(ctx context.Context, id primitive.ObjectID, groupID, userID int64) error {
	now := time.Now().UTC()
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "consumed": false, "superseded": false},
		bson.M{"$set": bson.M{
			"consumed":          true,
			"consumed_at":       now,
			"consumed_by_group": groupID,
			"consumed_by_user":  userID,
		}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotClaimable
	}
	return nil
}

// Unconsume reverts MarkConsumed. Used only to compensate when the role
// grant that follows consumption fails on deployments without transactions.
func (s *Store) Unconsume(ctx context.Context, id primitive.ObjectID) error {
	_, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "consumed": true},
		bson.M{
			"$set":   bson.M{"consumed": false},
			"$unset": bson.M{"consumed_at": "", "consumed_by_group": "", "consumed_by_user": ""},
		})
	return err
}

// GetByID returns a secret by id.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.BootstrapSecret, error) {
	var sec models.BootstrapSecret
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&sec); err != nil {
		return models.BootstrapSecret{}, err
	}
	return sec, nil
}
