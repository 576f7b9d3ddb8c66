// Package registry provides the in-memory implementation of state.Registry.
package registry

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/25kamalesh/YapOps/pkg/state"
	"github.com/google/uuid"
)

// InMemory tracks live connections for a single server process. A single
// RWMutex guards both indexes so every reader sees the user map and the
// connection map agree with each other.
type InMemory struct {
	mu    sync.RWMutex
	conns map[uuid.UUID]*state.Connection
	users map[state.UserID]*state.User

	logger *slog.Logger
}

func NewInMemory(logger *slog.Logger) *InMemory {
	return &InMemory{
		conns:  make(map[uuid.UUID]*state.Connection),
		users:  make(map[state.UserID]*state.User),
		logger: logger.With(slog.String("component", "registry")),
	}
}

// compile-time check to ensure InMemory implements state.Registry.
var _ state.Registry = (*InMemory)(nil)

func (r *InMemory) Register(userID state.UserID, t state.Transport) (*state.Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	connID := t.ID()
	if existing, ok := r.conns[connID]; ok {
		// Idempotent: the connection stays exactly once under its
		// original user, whatever was asked for.
		if existing.User.ID != userID {
			r.logger.Warn("Connection already registered to another user; ignoring",
				slog.String("connID", connID.String()),
				slog.String("owner", string(existing.User.ID)),
				slog.String("requested", string(userID)))
		}
		return existing, false
	}

	user, online := r.users[userID]
	if !online {
		user = &state.User{ID: userID}
		r.users[userID] = user
	}

	rec := &state.Connection{
		ID:           connID,
		Transport:    t,
		User:         user,
		RegisteredAt: time.Now(),
	}
	r.conns[connID] = rec
	user.Connections = append(user.Connections, rec)

	r.logger.Debug("Connection registered",
		slog.String("connID", connID.String()),
		slog.String("userID", string(userID)),
		slog.Int("userConns", len(user.Connections)))
	return rec, !online
}

func (r *InMemory) Deregister(connID uuid.UUID) (state.UserID, bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.conns[connID]
	if !ok {
		// Already gone, or never registered. Safe no-op.
		return "", false, false
	}
	delete(r.conns, connID)

	user := rec.User
	for i, c := range user.Connections {
		if c.ID == connID {
			user.Connections = append(user.Connections[:i], user.Connections[i+1:]...)
			break
		}
	}

	wentOffline := false
	if len(user.Connections) == 0 {
		delete(r.users, user.ID)
		wentOffline = true
	}

	r.logger.Debug("Connection deregistered",
		slog.String("connID", connID.String()),
		slog.String("userID", string(user.ID)),
		slog.Bool("wentOffline", wentOffline))
	return user.ID, wentOffline, true
}

func (r *InMemory) ConnectionsFor(userID state.UserID) []*state.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[userID]
	if !ok {
		return nil
	}
	out := make([]*state.Connection, len(user.Connections))
	copy(out, user.Connections)
	return out
}

func (r *InMemory) OnlineUserIDs() []state.UserID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]state.UserID, 0, len(r.users))
	for id := range r.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (r *InMemory) IsOnline(userID state.UserID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.users[userID]
	return ok
}

func (r *InMemory) AllConnections() []*state.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*state.Connection, 0, len(r.conns))
	for _, rec := range r.conns {
		out = append(out, rec)
	}
	return out
}

func (r *InMemory) ConnectionCount(userID state.UserID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[userID]
	if !ok {
		return 0
	}
	return len(user.Connections)
}

func (r *InMemory) TotalConnections() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func (r *InMemory) OldestConnection(userID state.UserID) (*state.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[userID]
	if !ok || len(user.Connections) == 0 {
		return nil, false
	}
	// Connections are kept in registration order, so the oldest is first.
	return user.Connections[0], true
}
