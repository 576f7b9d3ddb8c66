// Package router dispatches events arriving on a client's WebSocket.
package router

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/25kamalesh/YapOps/internal/delivery"
	"github.com/25kamalesh/YapOps/internal/store"
	"github.com/25kamalesh/YapOps/pkg/chat"
	"github.com/25kamalesh/YapOps/pkg/state"
)

// ClientMessage is the envelope clients send over the socket.
type ClientMessage struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

const eventMessageSend = "message.send"

// EventRouter handles client-originated events. Sending over the socket is
// equivalent to the REST send: the message is persisted first, then handed
// to the delivery router. Malformed or unknown events are logged and
// dropped; a bad frame never affects other connections.
type EventRouter struct {
	store    store.Store
	delivery *delivery.Router
	logger   *slog.Logger
}

func NewEventRouter(st store.Store, d *delivery.Router, logger *slog.Logger) *EventRouter {
	return &EventRouter{
		store:    st,
		delivery: d,
		logger:   logger.With(slog.String("component", "event_router")),
	}
}

// Handle processes one raw frame from the connection identified by connID,
// already attributed to its authenticated user.
func (r *EventRouter) Handle(ctx context.Context, from state.UserID, connID uuid.UUID, msg []byte) {
	var clientMsg ClientMessage
	if err := json.Unmarshal(msg, &clientMsg); err != nil {
		r.logger.Warn("Failed to unmarshal client message",
			slog.String("connID", connID.String()), slog.Any("error", err))
		return
	}

	switch clientMsg.Event {
	case eventMessageSend:
		r.handleSend(ctx, from, connID, clientMsg.Payload)
	default:
		r.logger.Warn("Received unknown event",
			slog.String("event", clientMsg.Event),
			slog.String("connID", connID.String()))
	}
}

func (r *EventRouter) handleSend(ctx context.Context, from state.UserID, connID uuid.UUID, payload json.RawMessage) {
	to := gjson.GetBytes(payload, "to").String()
	body := gjson.GetBytes(payload, "body").String()
	if to == "" || body == "" {
		r.logger.Warn("message.send missing 'to' or 'body'",
			slog.String("connID", connID.String()))
		return
	}

	ev := chat.NewMessageEvent(from, state.UserID(to), body)
	if err := r.store.Append(ctx, ev); err != nil {
		r.logger.Error("Failed to persist message; not routing",
			slog.String("connID", connID.String()), slog.Any("error", err))
		return
	}
	r.delivery.Notify(ev)
}
