// internal/domain/models/role.go
package models

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// Role is a member's standing inside one group. Roles are ordered, so
// authorization checks compare with AtLeast instead of matching strings.
type Role uint8

const (
	RoleNone Role = iota
	RoleMember
	RoleAdmin
	RoleSuperAdmin
)

// String returns the stored form of the role.
func (r Role) String() string {
	switch r {
	case RoleMember:
		return "member"
	case RoleAdmin:
		return "admin"
	case RoleSuperAdmin:
		return "super_admin"
	default:
		return "none"
	}
}

// AtLeast reports whether r ranks at or above min.
func (r Role) AtLeast(min Role) bool { return r >= min }

// Valid reports whether r is one of the assignable roles.
func (r Role) Valid() bool { return r >= RoleMember && r <= RoleSuperAdmin }

// ParseRole accepts the stored form plus a few spellings admins type in chat.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "member":
		return RoleMember, nil
	case "admin":
		return RoleAdmin, nil
	case "super_admin", "superadmin", "super-admin":
		return RoleSuperAdmin, nil
	case "", "none":
		return RoleNone, nil
	}
	return RoleNone, fmt.Errorf("unknown role %q", s)
}

// MarshalBSONValue stores the role as its string form.
func (r Role) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bson.MarshalValue(r.String())
}

// UnmarshalBSONValue reads the string form written by MarshalBSONValue.
func (r *Role) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	var s string
	if err := (bson.RawValue{Type: t, Value: data}).Unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
