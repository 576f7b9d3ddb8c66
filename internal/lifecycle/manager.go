// Package lifecycle drives a connection through its states and is the
// only component allowed to mutate the connection registry.
package lifecycle

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/25kamalesh/YapOps/internal/metrics"
	"github.com/25kamalesh/YapOps/internal/presence"
	"github.com/25kamalesh/YapOps/pkg/state"
	"github.com/25kamalesh/YapOps/pkg/transport"
)

// SessionState is the per-connection state machine:
// Connecting -> Authenticated -> Active -> Closed. Closed is terminal.
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateAuthenticated
	StateActive
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var (
	ErrAuthenticationFailed = errors.New("lifecycle: connection identity missing")
	ErrInvalidTransition    = errors.New("lifecycle: invalid session state transition")
)

// Session is one connection's passage through the state machine.
type Session struct {
	userID state.UserID
	st     atomic.Int32
	conn   state.Transport
}

func (s *Session) State() SessionState { return SessionState(s.st.Load()) }
func (s *Session) UserID() state.UserID {
	return s.userID
}

// transport.Connection is the production Transport.
var _ state.Transport = (*transport.Connection)(nil)

// Manager owns registry mutation. Register/deregister and the presence
// broadcast each triggers happen under one mutex, so announcements for
// sequential transitions of the same user are observed in order. Nothing
// under the mutex waits on network I/O: broadcasts only enqueue frames.
type Manager struct {
	mu        sync.Mutex
	registry  state.Registry
	broadcast *presence.Broadcaster
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewManager(registry state.Registry, broadcast *presence.Broadcaster, m *metrics.Metrics, logger *slog.Logger) *Manager {
	return &Manager{
		registry:  registry,
		broadcast: broadcast,
		metrics:   m,
		logger:    logger.With(slog.String("component", "lifecycle")),
	}
}

// Begin starts a session for a freshly upgraded connection.
func (m *Manager) Begin() *Session {
	return &Session{}
}

// Authenticate records the connection's verified identity. An empty
// identity closes the session without ever touching the registry.
func (m *Manager) Authenticate(s *Session, userID state.UserID) error {
	if s.State() != StateConnecting {
		return ErrInvalidTransition
	}
	if userID == "" {
		s.st.Store(int32(StateClosed))
		return ErrAuthenticationFailed
	}
	s.userID = userID
	s.st.Store(int32(StateAuthenticated))
	return nil
}

// Activate registers the connection and announces presence if the user
// just came online. The caller must wire the transport's close handler to
// Close before activating, so a connection can never die unnoticed.
func (m *Manager) Activate(s *Session, conn state.Transport) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.State() != StateAuthenticated {
		// Covers a close that raced the activation.
		return ErrInvalidTransition
	}
	s.conn = conn
	_, cameOnline := m.registry.Register(s.userID, conn)
	s.st.Store(int32(StateActive))
	m.metrics.SetActiveConnections(m.registry.TotalConnections())

	m.logger.Info("Connection active",
		slog.String("connID", conn.ID().String()),
		slog.String("userID", string(s.userID)),
		slog.Bool("cameOnline", cameOnline))

	if cameOnline {
		m.broadcast.Announce()
	}
	return nil
}

// Close moves the session to its terminal state, deregisters the
// connection exactly once, and announces presence if the user went
// offline. Duplicate close signals are no-ops.
func (m *Manager) Close(s *Session, cause error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := SessionState(s.st.Swap(int32(StateClosed)))
	if prev == StateClosed {
		return
	}
	if prev != StateActive || s.conn == nil {
		// Never registered; nothing to undo.
		return
	}

	userID, wentOffline, found := m.registry.Deregister(s.conn.ID())
	if !found {
		// Registry consistency violations are safe no-ops.
		return
	}
	m.metrics.SetActiveConnections(m.registry.TotalConnections())

	m.logger.Info("Connection closed",
		slog.String("connID", s.conn.ID().String()),
		slog.String("userID", string(userID)),
		slog.Bool("wentOffline", wentOffline),
		slog.Any("cause", cause))

	if wentOffline {
		m.broadcast.Announce()
	}
}

// Shutdown closes every live connection, e.g. during server teardown.
func (m *Manager) Shutdown(cause error) {
	for _, c := range m.registry.AllConnections() {
		c.Transport.Close(cause)
	}
}
