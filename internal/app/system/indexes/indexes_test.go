package indexes_test

import (
	"context"
	"testing"

	"github.com/dalemusser/groupvault/internal/app/system/indexes"
	"github.com/dalemusser/groupvault/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func indexNames(t *testing.T, ctx context.Context, db *mongo.Database, coll string) map[string]bool {
	t.Helper()
	cur, err := db.Collection(coll).Indexes().List(ctx)
	if err != nil {
		t.Fatalf("List indexes on %s failed: %v", coll, err)
	}
	defer cur.Close(ctx)

	names := make(map[string]bool)
	for cur.Next(ctx) {
		var idx bson.M
		if err := cur.Decode(&idx); err != nil {
			continue
		}
		if name, ok := idx["name"].(string); ok {
			names[name] = true
		}
	}
	return names
}

func TestEnsureAll(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}
}

func TestEnsureAll_Idempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("First EnsureAll failed: %v", err)
	}
	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("Second EnsureAll failed: %v", err)
	}
}

func TestEnsureAll_CreatesIndexes(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}

	tests := []struct {
		coll string
		want []string
	}{
		{"roles", []string{"uniq_roles_group_user", "idx_roles_group_role"}},
		{"bootstrap_secrets", []string{"idx_bootstrap_scope_state_issued"}},
		{"categories", []string{"uniq_categories_group_nameci"}},
		{"tags", []string{"uniq_tags_group_nameci"}},
		{"resources", []string{
			"idx_resources_group_deleted_created_id",
			"idx_resources_group_category",
			"idx_resources_group_tagid",
			"idx_resources_deleted_deletedat",
			"idx_resources_chat_message",
		}},
		{"resource_edits", []string{"idx_edits_resource_editedat", "idx_edits_group_editedat"}},
		{"audit_events", []string{"idx_audit_timestamp", "idx_audit_group_timestamp"}},
	}

	for _, tt := range tests {
		t.Run(tt.coll, func(t *testing.T) {
			names := indexNames(t, ctx, db, tt.coll)
			for _, n := range tt.want {
				if !names[n] {
					t.Errorf("expected index %q on %s, have %v", n, tt.coll, names)
				}
			}
		})
	}
}

func TestEnsureAll_RenamesMismatchedIndex(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	// Same keys as uniq_tags_group_nameci but a legacy name.
	_, err := db.Collection("tags").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "group_id", Value: 1}, {Key: "name_ci", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("legacy_tags_name"),
	})
	if err != nil {
		t.Fatalf("create legacy index: %v", err)
	}

	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}

	names := indexNames(t, ctx, db, "tags")
	if names["legacy_tags_name"] {
		t.Error("legacy index should have been replaced")
	}
	if !names["uniq_tags_group_nameci"] {
		t.Error("expected uniq_tags_group_nameci after rename")
	}
}

func TestEnsureAll_UniqueIndexEnforced(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}

	_, err := db.Collection("categories").InsertOne(ctx, bson.M{"_id": int64(1), "group_id": int64(-100), "name": "Notes", "name_ci": "notes"})
	if err != nil {
		t.Fatalf("insert category: %v", err)
	}
	_, err = db.Collection("categories").InsertOne(ctx, bson.M{"_id": int64(2), "group_id": int64(-100), "name": "NOTES", "name_ci": "notes"})
	if !mongo.IsDuplicateKeyError(err) {
		t.Errorf("expected duplicate key error, got %v", err)
	}

	// Same folded name in another group is fine.
	_, err = db.Collection("categories").InsertOne(ctx, bson.M{"_id": int64(3), "group_id": int64(-200), "name": "Notes", "name_ci": "notes"})
	if err != nil {
		t.Errorf("insert in other group: %v", err)
	}
}
