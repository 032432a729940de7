package txn_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dalemusser/groupvault/internal/app/system/txn"
	"github.com/dalemusser/groupvault/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

func TestRun_RollsBackOnError(t *testing.T) {
	db := testutil.SetupTestDB(t)
	if !testutil.SupportsTransactions(t, db) {
		t.Skip("deployment does not run transactions")
	}
	ctx, cancel := testutil.TestContext()
	defer cancel()
	coll := db.Collection("txn_probe")
	if err := db.CreateCollection(ctx, "txn_probe"); err != nil {
		t.Fatalf("create collection: %v", err)
	}

	boom := errors.New("boom")
	err := txn.Run(ctx, db, zap.NewNop(), func(ctx context.Context) error {
		if _, err := coll.InsertOne(ctx, bson.M{"_id": 1}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Run = %v, want boom", err)
	}
	n, err := coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("insert survived the aborted transaction: %d docs", n)
	}
}

func TestRun_Commits(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	coll := db.Collection("txn_probe")

	err := txn.For(db, zap.NewNop())(ctx, func(ctx context.Context) error {
		_, err := coll.InsertOne(ctx, bson.M{"_id": 2})
		return err
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	n, _ := coll.CountDocuments(ctx, bson.M{"_id": 2})
	if n != 1 {
		t.Errorf("committed insert missing")
	}
}
