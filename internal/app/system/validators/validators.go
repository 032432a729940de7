// internal/app/system/validators/validators.go
package validators

import (
	"context"
	"errors"
	"strings"

	"github.com/dalemusser/groupvault/internal/app/system/limits"
	"github.com/dalemusser/groupvault/internal/domain/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// EnsureAll creates collections (if missing) and tries to attach JSON-Schema
// validators. On servers that don't support collMod/validators (e.g. some
// DocumentDB versions), we log and skip gracefully.
//
// Identifier fields are pinned to 64-bit integers ("long") so a value that
// arrives as a narrower or floating type is refused at the database.
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	var problems []string

	ensure := func(coll string, schema bson.M) {
		if _, err := ensureCollection(ctx, db, coll); err != nil {
			problems = append(problems, coll+": "+err.Error())
			return
		}
		if schema == nil {
			return
		}
		if err := setValidator(ctx, db, coll, schema); err != nil {
			if isNoSuchCommand(err) || isNotImplemented(err) {
				zap.L().Info("validator skipped (unsupported)", zap.String("collection", coll))
				return
			}
			problems = append(problems, coll+": "+err.Error())
		}
	}

	ensure("roles", rolesSchema())
	ensure("bootstrap_secrets", bootstrapSecretsSchema())
	ensure("categories", categoriesSchema())
	ensure("tags", tagsSchema())
	ensure("resources", resourcesSchema())
	ensure("resource_edits", resourceEditsSchema())

	// No validators; collections must still exist before transactions touch them.
	ensure("counters", nil)
	ensure("audit_events", nil)

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

/* ---------------------- collection helpers & logging ---------------------- */

// collectionExists returns true when <name> already exists.
// Uses ListCollectionNames to avoid "created collection" log when it didn't.
func collectionExists(ctx context.Context, db *mongo.Database, name string) (bool, error) {
	names, err := db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

// ensureCollection idempotently makes sure <name> exists.
// Returns created==true only if we actually created it.
func ensureCollection(ctx context.Context, db *mongo.Database, name string) (created bool, err error) {
	exists, listErr := collectionExists(ctx, db, name)
	if listErr == nil && exists {
		zap.L().Info("collection exists", zap.String("collection", name))
		return false, nil
	}
	// If listing failed, fall back to create-and-handle-race.
	if err := db.CreateCollection(ctx, name); err != nil {
		// NamespaceExists / already exists is fine (race or prior run).
		if isNamespaceExistsErr(err) {
			zap.L().Info("collection exists", zap.String("collection", name))
			return false, nil
		}
		zap.L().Warn("createCollection failed", zap.String("collection", name), zap.Error(err))
		return false, err
	}
	zap.L().Info("created collection", zap.String("collection", name))
	return true, nil
}

/* ------------------------------ validators ------------------------------- */

func setValidator(ctx context.Context, db *mongo.Database, name string, validator bson.M) error {
	cmd := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
		{Key: "validationLevel", Value: "moderate"},
		{Key: "validationAction", Value: "error"},
	}
	var out bson.M
	if err := db.RunCommand(ctx, cmd).Decode(&out); err != nil {
		return err
	}
	zap.L().Info("validator ensured", zap.String("collection", name))
	return nil
}

/* ------------------------- error helpers ------------------------- */

func isNamespaceExistsErr(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 48 || strings.Contains(strings.ToLower(ce.Message), "already exists")) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "already exists") || strings.Contains(s, "namespace exists")
}

func isNoSuchCommand(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 59 || strings.Contains(strings.ToLower(ce.Message), "no such command")) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "no such command")
}

func isNotImplemented(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 115 ||
		strings.Contains(strings.ToLower(ce.Message), "not implemented") ||
		strings.Contains(strings.ToLower(ce.Message), "not supported")) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "not implemented") || strings.Contains(s, "not supported")
}

/* ------------------------- JSON-Schema docs ---------------------- */

var (
	long      = bson.M{"bsonType": "long"}
	date      = bson.M{"bsonType": "date"}
	nonBlank  = bson.M{"bsonType": "string", "minLength": 1, "pattern": ".*\\S.*"}
	plainText = bson.M{"bsonType": "string"}
)

func nameField() bson.M {
	return bson.M{"bsonType": "string", "minLength": 1, "maxLength": limits.NameMax, "pattern": ".*\\S.*"}
}

func rolesSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"group_id", "user_id", "role", "updated_at"},
			"properties": bson.M{
				"group_id":   long,
				"user_id":    long,
				"role":       bson.M{"enum": bson.A{models.RoleMember.String(), models.RoleAdmin.String(), models.RoleSuperAdmin.String()}},
				"granted_by": long,
				"created_at": date,
				"updated_at": date,
			},
		},
	}
}

func bootstrapSecretsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"scope", "secret_hash", "consumed", "issued_at"},
			"properties": bson.M{
				"scope":             nonBlank,
				"secret_hash":       bson.M{"bsonType": "binData"},
				"consumed":          bson.M{"bsonType": "bool"},
				"superseded":        bson.M{"bsonType": "bool"},
				"issued_at":         date,
				"consumed_at":       date,
				"consumed_by_group": long,
				"consumed_by_user":  long,
			},
		},
	}
}

func categoriesSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"_id", "group_id", "name", "name_ci", "created_by"},
			"properties": bson.M{
				"_id":          long,
				"group_id":     long,
				"name":         nameField(),
				"name_ci":      nameField(),
				"description":  plainText,
				"created_by":   long,
				"created_at":   date,
				"last_used_at": date,
				"retiring":     bson.M{"bsonType": "bool"},
			},
		},
	}
}

func tagsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"_id", "group_id", "name", "name_ci", "created_by"},
			"properties": bson.M{
				"_id":          long,
				"group_id":     long,
				"name":         nameField(),
				"name_ci":      nameField(),
				"created_by":   long,
				"created_at":   date,
				"last_used_at": date,
				"retiring":     bson.M{"bsonType": "bool"},
			},
		},
	}
}

func resourcesSchema() bson.M {
	fileTypes := bson.A{}
	for _, ft := range models.FileTypes {
		fileTypes = append(fileTypes, ft)
	}

	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"_id", "group_id", "artifact", "uploader_id", "deleted", "created_at"},
			"properties": bson.M{
				"_id":      long,
				"group_id": long,
				"artifact": bson.M{
					"bsonType": "object",
					"required": bson.A{"chat_id", "message_id", "file_id", "file_type"},
					"properties": bson.M{
						"chat_id":    long,
						"message_id": bson.M{"bsonType": bson.A{"int", "long"}},
						"file_id":    nonBlank,
						"file_type":  bson.M{"enum": fileTypes},
					},
				},
				"category_id": long,
				"tags": bson.M{
					"bsonType": "array",
					"items": bson.M{
						"bsonType": "object",
						"required": bson.A{"tag_id"},
						"properties": bson.M{
							"tag_id":   long,
							"added_by": long,
						},
					},
				},
				"uploader_id": long,
				"description": bson.M{"bsonType": "string", "maxLength": limits.DescriptionMax},
				"deleted":     bson.M{"bsonType": "bool"},
				"deleted_at":  date,
				"deleted_by":  long,
				"created_at":  date,
			},
		},
	}
}

func resourceEditsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"_id", "resource_id", "editor_id", "field", "edited_at"},
			"properties": bson.M{
				"_id":         long,
				"resource_id": long,
				"group_id":    long,
				"editor_id":   long,
				"field": bson.M{"enum": bson.A{
					models.EditFieldCategory,
					models.EditFieldTagAdd,
					models.EditFieldTagRemove,
					models.EditFieldDescription,
					models.EditFieldCreated,
					models.EditFieldDeleted,
				}},
				"edited_at": date,
			},
		},
	}
}
