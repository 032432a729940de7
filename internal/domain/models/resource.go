// internal/domain/models/resource.go
package models

import "time"

// File types captured from chat messages.
const (
	FileTypeDocument = "document"
	FileTypePhoto    = "photo"
	FileTypeVideo    = "video"
	FileTypeAudio    = "audio"
	FileTypeVoice    = "voice"
)

// FileTypes lists every accepted file type.
var FileTypes = []string{FileTypeDocument, FileTypePhoto, FileTypeVideo, FileTypeAudio, FileTypeVoice}

// ArtifactRef locates the file as the messaging platform hosts it.
// The core never stores file bytes, only enough to re-deliver or delete.
type ArtifactRef struct {
	ChatID       int64  `bson:"chat_id" json:"chat_id"`
	MessageID    int    `bson:"message_id" json:"message_id"`
	ThreadID     int    `bson:"thread_id,omitempty" json:"thread_id,omitempty"`
	FileID       string `bson:"file_id" json:"file_id"`
	FileUniqueID string `bson:"file_unique_id,omitempty" json:"file_unique_id,omitempty"`
	FileType     string `bson:"file_type" json:"file_type"`
	FileName     string `bson:"file_name,omitempty" json:"file_name,omitempty"`
	FileSize     int64  `bson:"file_size,omitempty" json:"file_size,omitempty"`
}

// ResourceTag links a Resource to a Tag. Rows live inside the owning
// Resource document so a Resource and its tags are written and removed
// together; resource_id is the parent document's _id.
type ResourceTag struct {
	TagID   int64     `bson:"tag_id" json:"tag_id"`
	AddedBy int64     `bson:"added_by" json:"added_by"`
	AddedAt time.Time `bson:"added_at" json:"added_at"`
}

// Resource is one cataloged file.
//
// Deleted is the tombstone flag used by two-phase deletion. It only ever
// moves false -> true; a tombstoned row is either hard-deleted once the
// external message is gone or left for the reconciliation sweep.
type Resource struct {
	ID       int64       `bson:"_id" json:"id"`
	GroupID  int64       `bson:"group_id" json:"group_id"`
	Artifact ArtifactRef `bson:"artifact" json:"artifact"`

	CategoryID *int64        `bson:"category_id,omitempty" json:"category_id,omitempty"`
	Tags       []ResourceTag `bson:"tags" json:"tags"`

	UploaderID   int64  `bson:"uploader_id" json:"uploader_id"`
	UploaderName string `bson:"uploader_name,omitempty" json:"uploader_name,omitempty"`

	Description   string `bson:"description" json:"description"`
	DescriptionCI string `bson:"description_ci" json:"-"`
	FileNameCI    string `bson:"file_name_ci" json:"-"`

	CreatedAt time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt *time.Time `bson:"updated_at,omitempty" json:"updated_at,omitempty"`

	Deleted         bool       `bson:"deleted" json:"deleted"`
	DeletedAt       *time.Time `bson:"deleted_at,omitempty" json:"deleted_at,omitempty"`
	DeletedBy       *int64     `bson:"deleted_by,omitempty" json:"deleted_by,omitempty"`
	DeleteAttempts  int        `bson:"delete_attempts,omitempty" json:"delete_attempts,omitempty"`
	LastDeleteError string     `bson:"last_delete_error,omitempty" json:"last_delete_error,omitempty"`
}

// TagIDs returns the ids of the attached tags in stored order.
func (r Resource) TagIDs() []int64 {
	out := make([]int64, 0, len(r.Tags))
	for _, t := range r.Tags {
		out = append(out, t.TagID)
	}
	return out
}

// HasTag reports whether tagID is attached.
func (r Resource) HasTag(tagID int64) bool {
	for _, t := range r.Tags {
		if t.TagID == tagID {
			return true
		}
	}
	return false
}
