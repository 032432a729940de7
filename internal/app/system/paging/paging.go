// internal/app/system/paging/paging.go
package paging

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

// DefaultPageSize is the number of results shown per chat message.
const DefaultPageSize = 10

// MaxPageSize bounds caller-supplied page sizes.
const MaxPageSize = 50

// ErrBadCursor is returned when a cursor string cannot be decoded.
var ErrBadCursor = errors.New("paging: malformed cursor")

// ClampSize normalizes a requested page size into [1, MaxPageSize],
// substituting DefaultPageSize for zero or negative values.
func ClampSize(n int) int {
	switch {
	case n <= 0:
		return DefaultPageSize
	case n > MaxPageSize:
		return MaxPageSize
	default:
		return n
	}
}

// LimitPlusOne returns size+1 as int64 for look-ahead pagination
// (fetch one extra document to detect hasNext).
func LimitPlusOne(size int) int64 { return int64(size + 1) }

// TrimPage trims a slice fetched with LimitPlusOne back to size and reports
// whether another page exists.
func TrimPage[T any](rows *[]T, size int) (hasNext bool) {
	if len(*rows) > size {
		*rows = (*rows)[:size]
		return true
	}
	return false
}

// Cursor is a keyset position in a (created_at desc, _id desc) ordering.
// CreatedAt carries millisecond precision, matching what BSON dates store.
type Cursor struct {
	CreatedAt time.Time
	ID        int64
}

// TruncateMS drops sub-millisecond precision so in-memory timestamps compare
// equal to their stored BSON form.
func TruncateMS(t time.Time) time.Time {
	return time.UnixMilli(t.UnixMilli()).UTC()
}

// Encode returns the opaque, URL-safe form of c.
func (c Cursor) Encode() string {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(c.CreatedAt.UnixMilli()))
	binary.BigEndian.PutUint64(buf[8:], uint64(c.ID))
	return base64.RawURLEncoding.EncodeToString(buf[:])
}

// DecodeCursor parses a string produced by Cursor.Encode.
func DecodeCursor(s string) (Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil || len(raw) != 16 {
		return Cursor{}, ErrBadCursor
	}
	ms := int64(binary.BigEndian.Uint64(raw[:8]))
	id := int64(binary.BigEndian.Uint64(raw[8:]))
	return Cursor{CreatedAt: time.UnixMilli(ms).UTC(), ID: id}, nil
}

// NewestFirst is the sort matching Cursor: newest first, _id as tiebreak.
func NewestFirst() bson.D {
	return bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}
}

// AfterDesc returns the filter selecting rows strictly after c in
// NewestFirst order.
func AfterDesc(c Cursor) bson.M {
	return bson.M{"$or": bson.A{
		bson.M{"created_at": bson.M{"$lt": c.CreatedAt}},
		bson.M{"created_at": c.CreatedAt, "_id": bson.M{"$lt": c.ID}},
	}}
}
