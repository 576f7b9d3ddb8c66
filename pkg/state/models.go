package state

import (
	"time"

	"github.com/google/uuid"
)

// UserID is the opaque, stable identifier of an authenticated user.
type UserID string

// Transport is the push surface of a live connection. TrySend must never
// block: it enqueues the frame or reports failure immediately. Close must
// be safe to call more than once.
type Transport interface {
	ID() uuid.UUID
	TrySend(message []byte) bool
	Close(err error)
}

// Connection is the registry's record of a single live connection.
type Connection struct {
	ID           uuid.UUID
	Transport    Transport
	User         *User // owning user, set by the registry
	RegisteredAt time.Time
}

// User aggregates all live connections of one user. Connections is kept in
// registration order (oldest first) so delivery is deterministic. A User
// with zero connections is never held in the registry.
type User struct {
	ID          UserID
	Connections []*Connection
}
