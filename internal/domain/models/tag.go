package models

import "time"

// Tag is a free-form label; (group_id, name_ci) is unique.
// Retiring and LastUsedAt work as on Category.
type Tag struct {
	ID        int64     `bson:"_id" json:"id"`
	GroupID   int64     `bson:"group_id" json:"group_id"`
	Name      string    `bson:"name" json:"name"`
	NameCI    string    `bson:"name_ci" json:"name_ci"`
	CreatedBy int64     `bson:"created_by" json:"created_by"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`

	LastUsedAt *time.Time `bson:"last_used_at,omitempty" json:"last_used_at,omitempty"`
	Retiring   bool       `bson:"retiring,omitempty" json:"-"`
}
