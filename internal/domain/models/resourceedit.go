package models

import "time"

// Edit fields recorded in the resource_edits audit trail.
const (
	EditFieldCategory    = "category"
	EditFieldTagAdd      = "tag_add"
	EditFieldTagRemove   = "tag_remove"
	EditFieldDescription = "description"
	EditFieldCreated     = "created"
	EditFieldDeleted     = "deleted"
)

// ResourceEdit is one append-only audit row. Rows are never updated or
// deleted, including when the Resource itself is hard-deleted.
type ResourceEdit struct {
	ID         int64     `bson:"_id" json:"id"`
	ResourceID int64     `bson:"resource_id" json:"resource_id"`
	GroupID    int64     `bson:"group_id" json:"group_id"`
	EditorID   int64     `bson:"editor_id" json:"editor_id"`
	Field      string    `bson:"field" json:"field"`
	OldValue   string    `bson:"old_value,omitempty" json:"old_value,omitempty"`
	NewValue   string    `bson:"new_value,omitempty" json:"new_value,omitempty"`
	EditedAt   time.Time `bson:"edited_at" json:"edited_at"`
}
