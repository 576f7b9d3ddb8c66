package state

import "github.com/google/uuid"

// Registry maps user identity to the set of currently open connections.
// It is the only shared mutable resource of the real-time layer; all
// methods are safe for concurrent use and readers always observe a
// consistent snapshot.
//
// Invariant: a user appears in OnlineUserIDs exactly when ConnectionsFor
// returns a non-empty slice for them. Entries are deleted the moment the
// last connection goes away.
type Registry interface {
	// Register adds the connection under userID, creating the entry if
	// absent. Registering the same connection twice is idempotent and
	// reports cameOnline=false the second time. cameOnline is true only
	// when this call created the user's entry.
	Register(userID UserID, t Transport) (rec *Connection, cameOnline bool)

	// Deregister removes the connection from whichever user holds it.
	// Unknown connections are a safe no-op (found=false). wentOffline is
	// true when the removal deleted the user's entry.
	Deregister(connID uuid.UUID) (userID UserID, wentOffline bool, found bool)

	// ConnectionsFor returns the user's live connections in registration
	// order; empty when the user is offline.
	ConnectionsFor(userID UserID) []*Connection

	// OnlineUserIDs returns the sorted set of users with at least one
	// live connection.
	OnlineUserIDs() []UserID

	IsOnline(userID UserID) bool

	// AllConnections returns every live connection across all users.
	AllConnections() []*Connection

	ConnectionCount(userID UserID) int

	// TotalConnections counts live connections across all users without
	// copying them.
	TotalConnections() int

	// OldestConnection returns the user's longest-lived connection, used
	// by the connection limiter in cycle mode.
	OldestConnection(userID UserID) (*Connection, bool)
}
