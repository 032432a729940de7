// internal/app/system/indexes/indexes.go
package indexes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

/*
EnsureAll is called at startup. Each ensure* function is idempotent.
We aggregate errors so any problem is visible and startup can fail fast.
*/
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	var problems []string

	sets := []struct {
		name string
		fn   func(context.Context, *mongo.Database) error
	}{
		{"roles", ensureRoles},
		{"bootstrap_secrets", ensureBootstrapSecrets},
		{"categories", ensureCategories},
		{"tags", ensureTags},
		{"resources", ensureResources},
		{"resource_edits", ensureResourceEdits},
		{"audit_events", ensureAuditEvents},
	}
	for _, s := range sets {
		if err := s.fn(ctx, db); err != nil {
			problems = append(problems, s.name+": "+err.Error())
		}
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

/* -------------------------------------------------------------------------- */
/* Core helper: reconcile a set of desired indexes for one collection         */
/* -------------------------------------------------------------------------- */

type existingIndex struct {
	Name   string `bson:"name"`
	Key    bson.D `bson:"key"`
	Unique *bool  `bson:"unique,omitempty"`
}

func keySig(keys bson.D) string {
	parts := make([]string, 0, len(keys))
	for _, kv := range keys {
		parts = append(parts, fmt.Sprintf("%s:%v", kv.Key, kv.Value))
	}
	return strings.Join(parts, ", ")
}

func boolVal(p *bool) bool {
	return p != nil && *p
}

func isDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	if mongo.IsDuplicateKeyError(err) {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "E11000") || strings.Contains(strings.ToLower(s), "duplicate key")
}

// Mongo/DocDB return IndexOptionsConflict when an index with the same keys
// already exists under a different name or with different options.
func isOptionsConflictErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "IndexOptionsConflict")
}

// listBySig loads the collection's indexes keyed by key signature.
func listBySig(ctx context.Context, coll *mongo.Collection) map[string]existingIndex {
	out := map[string]existingIndex{}
	cur, err := coll.Indexes().List(ctx)
	if err != nil {
		return out
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var idx existingIndex
		if err := cur.Decode(&idx); err != nil {
			zap.L().Warn("failed to decode existing index",
				zap.String("collection", coll.Name()),
				zap.Error(err))
			continue
		}
		out[keySig(idx.Key)] = idx
	}
	return out
}

// recreate drops the index called oldName and creates m in its place.
func recreate(ctx context.Context, coll *mongo.Collection, oldName string, m mongo.IndexModel) error {
	if _, err := coll.Indexes().DropOne(ctx, oldName); err != nil {
		return fmt.Errorf("drop %s: %w", oldName, err)
	}
	if _, err := coll.Indexes().CreateOne(ctx, m); err != nil {
		if isDuplicateKeyErr(err) {
			return fmt.Errorf("cannot create unique index (duplicates present): %w", err)
		}
		return err
	}
	return nil
}

func ensureIndexSet(ctx context.Context, coll *mongo.Collection, models []mongo.IndexModel) error {
	var errs []string

	for _, m := range models {
		var name string
		var unique *bool
		if m.Options != nil {
			if m.Options.Name != nil {
				name = *m.Options.Name
			}
			unique = m.Options.Unique
		}
		sig := keySig(m.Keys.(bson.D))
		start := time.Now()
		log := zap.L().With(
			zap.String("collection", coll.Name()),
			zap.String("name", name),
			zap.String("keys", sig),
			zap.Bool("unique", boolVal(unique)))

		ex, found := listBySig(ctx, coll)[sig]
		if !found {
			_, err := coll.Indexes().CreateOne(ctx, m)
			if err == nil {
				log.Info("index ensured", zap.Duration("took", time.Since(start)))
				continue
			}
			if !isOptionsConflictErr(err) {
				log.Warn("index ensure failed", zap.Error(err))
				errs = append(errs, fmt.Sprintf("%s(%s): %v", coll.Name(), name, err))
				continue
			}
			// Raced with another creator or a stale listing; look again.
			ex, found = listBySig(ctx, coll)[sig]
			if !found {
				log.Warn("index ensure failed", zap.Error(err))
				errs = append(errs, fmt.Sprintf("%s(%s): %v", coll.Name(), name, err))
				continue
			}
		}

		switch {
		case boolVal(unique) == boolVal(ex.Unique) && (name == "" || ex.Name == name):
			log.Debug("reusing existing index", zap.String("existing", ex.Name))
		default:
			// Name or uniqueness differs: align with the desired definition.
			if err := recreate(ctx, coll, ex.Name, m); err != nil {
				log.Warn("index recreate failed", zap.String("existing", ex.Name), zap.Error(err))
				errs = append(errs, fmt.Sprintf("%s(%s): %v", coll.Name(), name, err))
				continue
			}
			log.Info("index dropped and recreated",
				zap.String("from", ex.Name),
				zap.Duration("took", time.Since(start)))
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

/* -------------------------------------------------------------------------- */
/* Collection-specific index sets                                              */
/* -------------------------------------------------------------------------- */

func ensureRoles(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("roles"), []mongo.IndexModel{
		// One role per (group, user).
		{
			Keys:    bson.D{{Key: "group_id", Value: 1}, {Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_roles_group_user"),
		},
		// Super-admin lookup during group init.
		{
			Keys:    bson.D{{Key: "group_id", Value: 1}, {Key: "role", Value: 1}},
			Options: options.Index().SetName("idx_roles_group_role"),
		},
	})
}

func ensureBootstrapSecrets(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("bootstrap_secrets"), []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "scope", Value: 1},
				{Key: "consumed", Value: 1},
				{Key: "superseded", Value: 1},
				{Key: "issued_at", Value: -1},
			},
			Options: options.Index().SetName("idx_bootstrap_scope_state_issued"),
		},
	})
}

func ensureCategories(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("categories"), []mongo.IndexModel{
		// Names are unique per group after folding; also serves sorted lists.
		{
			Keys:    bson.D{{Key: "group_id", Value: 1}, {Key: "name_ci", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_categories_group_nameci"),
		},
	})
}

func ensureTags(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("tags"), []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "group_id", Value: 1}, {Key: "name_ci", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_tags_group_nameci"),
		},
	})
}

func ensureResources(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("resources"), []mongo.IndexModel{
		// Search and browse: newest first with stable _id tiebreak.
		{
			Keys: bson.D{
				{Key: "group_id", Value: 1},
				{Key: "deleted", Value: 1},
				{Key: "created_at", Value: -1},
				{Key: "_id", Value: -1},
			},
			Options: options.Index().SetName("idx_resources_group_deleted_created_id"),
		},
		// Category reference checks and category filters.
		{
			Keys:    bson.D{{Key: "group_id", Value: 1}, {Key: "category_id", Value: 1}},
			Options: options.Index().SetName("idx_resources_group_category"),
		},
		// Tag reference checks, tag filters and tag removal on tag delete.
		{
			Keys:    bson.D{{Key: "group_id", Value: 1}, {Key: "tags.tag_id", Value: 1}},
			Options: options.Index().SetName("idx_resources_group_tagid"),
		},
		// Reconciliation sweep over stale tombstones.
		{
			Keys:    bson.D{{Key: "deleted", Value: 1}, {Key: "deleted_at", Value: 1}},
			Options: options.Index().SetName("idx_resources_deleted_deletedat"),
		},
		// Tracking one message back to its resource.
		{
			Keys: bson.D{
				{Key: "artifact.chat_id", Value: 1},
				{Key: "artifact.message_id", Value: 1},
			},
			Options: options.Index().SetName("idx_resources_chat_message"),
		},
	})
}

func ensureResourceEdits(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("resource_edits"), []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "resource_id", Value: 1}, {Key: "edited_at", Value: 1}, {Key: "_id", Value: 1}},
			Options: options.Index().SetName("idx_edits_resource_editedat"),
		},
		{
			Keys:    bson.D{{Key: "group_id", Value: 1}, {Key: "edited_at", Value: -1}},
			Options: options.Index().SetName("idx_edits_group_editedat"),
		},
	})
}

func ensureAuditEvents(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("audit_events"), []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("idx_audit_timestamp"),
		},
		{
			Keys:    bson.D{{Key: "group_id", Value: 1}, {Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("idx_audit_group_timestamp"),
		},
		{
			Keys: bson.D{
				{Key: "category", Value: 1},
				{Key: "event_type", Value: 1},
				{Key: "timestamp", Value: -1},
			},
			Options: options.Index().SetName("idx_audit_category_type_timestamp"),
		},
	})
}
