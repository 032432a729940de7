// internal/domain/models/bootstrapsecret.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// BootstrapScopeGlobal is the only scope issued today: one secret per
// process, claimable by whichever uninitialized group presents it first.
const BootstrapScopeGlobal = "global"

// BootstrapSecret is the one-time group initialization secret.
// Only the bcrypt hash is stored; the plaintext exists in the issuing
// process's log line and nowhere else.
type BootstrapSecret struct {
	ID         primitive.ObjectID `bson:"_id" json:"id"`
	Scope      string             `bson:"scope" json:"scope"`
	SecretHash []byte             `bson:"secret_hash" json:"-"`
	Consumed   bool               `bson:"consumed" json:"consumed"`
	Superseded bool               `bson:"superseded" json:"superseded"`
	IssuedAt   time.Time          `bson:"issued_at" json:"issued_at"`

	ConsumedAt      *time.Time `bson:"consumed_at,omitempty" json:"consumed_at,omitempty"`
	ConsumedByGroup *int64     `bson:"consumed_by_group,omitempty" json:"consumed_by_group,omitempty"`
	ConsumedByUser  *int64     `bson:"consumed_by_user,omitempty" json:"consumed_by_user,omitempty"`
}
