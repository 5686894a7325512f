package mirage

import (
	"time"

	"github.com/google/uuid"
)

// NewID generates a globally unique, time-sortable UUIDv7 (RFC 9562).
// Used for request IDs when the caller supplies none.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NowISO returns the current time in RFC 3339 form, the format stored in
// SchemaSnapshot.UpdatedAt.
func NowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}
