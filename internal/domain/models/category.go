package models

import "time"

// Category groups Resources inside one chat group.
// NameCI is the folded name; (group_id, name_ci) is unique.
//
// Retiring is set while a delete is in progress; no new reference may be
// made to a retiring category. Writers that add a reference stamp
// LastUsedAt so they conflict with a concurrent delete.
type Category struct {
	ID          int64     `bson:"_id" json:"id"`
	GroupID     int64     `bson:"group_id" json:"group_id"`
	Name        string    `bson:"name" json:"name"`
	NameCI      string    `bson:"name_ci" json:"name_ci"`
	Description string    `bson:"description,omitempty" json:"description,omitempty"`
	CreatedBy   int64     `bson:"created_by" json:"created_by"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at" json:"updated_at"`

	LastUsedAt *time.Time `bson:"last_used_at,omitempty" json:"last_used_at,omitempty"`
	Retiring   bool       `bson:"retiring,omitempty" json:"-"`
}
