// Package delivery routes persisted message events to the recipient's
// live connections.
package delivery

import (
	"encoding/json"
	"log/slog"

	"github.com/25kamalesh/YapOps/internal/metrics"
	"github.com/25kamalesh/YapOps/pkg/chat"
	"github.com/25kamalesh/YapOps/pkg/state"
	"github.com/25kamalesh/YapOps/pkg/transport"
)

// wireMessage is the push frame sent to recipients.
type wireMessage struct {
	Type string `json:"type"`
	chat.MessageEvent
}

const eventType = "message"

// Router consumes message events after the store has accepted them and
// pushes the payload to every live connection of the recipient, oldest
// connection first. Delivery is best-effort and at-most-once: an offline
// recipient is a successful no-op (they will see the message on the next
// history fetch), and a connection that will not drain is closed rather
// than retried.
type Router struct {
	registry state.Registry
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewRouter(registry state.Registry, m *metrics.Metrics, logger *slog.Logger) *Router {
	return &Router{
		registry: registry,
		metrics:  m,
		logger:   logger.With(slog.String("component", "delivery")),
	}
}

// Notify is the inbound trigger from the persistence layer. It never
// blocks on network I/O: frames are enqueued to per-connection buffers
// and push failures are resolved by closing the offending connection.
func (r *Router) Notify(ev chat.MessageEvent) {
	conns := r.registry.ConnectionsFor(ev.RecipientID)
	if len(conns) == 0 {
		r.metrics.IncOfflineRoute()
		r.logger.Debug("Recipient offline; message stays in history",
			slog.String("recipientID", string(ev.RecipientID)))
		return
	}

	payload, err := json.Marshal(wireMessage{Type: eventType, MessageEvent: ev})
	if err != nil {
		r.logger.Error("Failed to marshal message event", slog.Any("error", err))
		return
	}

	for _, c := range conns {
		if c.Transport.TrySend(payload) {
			r.metrics.IncDelivered()
			continue
		}
		// A stalled push channel is indistinguishable from a dead
		// client: close the connection and let the lifecycle manager
		// deregister it. The message is not retried.
		r.metrics.IncDropped()
		r.logger.Warn("Message push failed; closing connection",
			slog.String("connID", c.ID.String()),
			slog.String("recipientID", string(ev.RecipientID)))
		c.Transport.Close(transport.ErrSendBufferFull)
	}
}
