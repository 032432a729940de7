// internal/domain/models/roleentry.go
package models

import "time"

// RoleEntry is the authoritative (group, user) -> role mapping.
// Exactly one document per (group_id, user_id); entries are overwritten, never deleted.
type RoleEntry struct {
	GroupID   int64     `bson:"group_id" json:"group_id"`
	UserID    int64     `bson:"user_id" json:"user_id"`
	Role      Role      `bson:"role" json:"role"`
	GrantedBy *int64    `bson:"granted_by,omitempty" json:"granted_by,omitempty"` // nil when seeded by group init
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
