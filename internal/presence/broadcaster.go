// Package presence pushes online-user snapshots to connected clients.
package presence

import (
	"encoding/json"
	"log/slog"

	"github.com/25kamalesh/YapOps/internal/metrics"
	"github.com/25kamalesh/YapOps/pkg/state"
	"github.com/25kamalesh/YapOps/pkg/transport"
)

// Event is the wire format of a presence snapshot.
type Event struct {
	Type          string         `json:"type"`
	OnlineUserIDs []state.UserID `json:"onlineUserIds"`
}

const eventType = "presence"

// Broadcaster computes the current online set and fans it out to every
// registered connection. It only reads the registry; the lifecycle manager
// decides when a broadcast is due.
//
// A connection that has just been deregistered is gone from the registry
// by the time Announce snapshots it, so a closing connection never
// receives the snapshot announcing its own departure.
type Broadcaster struct {
	registry state.Registry
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewBroadcaster(registry state.Registry, m *metrics.Metrics, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		metrics:  m,
		logger:   logger.With(slog.String("component", "presence")),
	}
}

// Announce pushes the current online set to all connections. Every receiver
// gets the same snapshot. Sends are non-blocking; a connection that cannot
// accept the frame is closed and will deregister itself.
func (b *Broadcaster) Announce() {
	online := b.registry.OnlineUserIDs()
	conns := b.registry.AllConnections()

	payload, err := json.Marshal(Event{Type: eventType, OnlineUserIDs: online})
	if err != nil {
		b.logger.Error("Failed to marshal presence snapshot", slog.Any("error", err))
		return
	}

	for _, c := range conns {
		if !c.Transport.TrySend(payload) {
			b.logger.Warn("Presence push failed; closing connection",
				slog.String("connID", c.ID.String()),
				slog.String("userID", string(c.User.ID)))
			// Announce runs while the lifecycle manager holds its
			// transition lock; closing re-enters it, so do it off
			// this goroutine.
			go c.Transport.Close(transport.ErrSendBufferFull)
		}
	}

	b.metrics.SetOnlineUsers(len(online))
	b.logger.Debug("Presence announced",
		slog.Int("onlineUsers", len(online)),
		slog.Int("connections", len(conns)))
}
