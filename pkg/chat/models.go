// Package chat defines the message event shared between the REST layer,
// the store, and the real-time delivery router.
package chat

import (
	"time"

	"github.com/25kamalesh/YapOps/pkg/state"
	"github.com/google/uuid"
)

// MessageEvent is the immutable record of a sent message. It is produced
// by the persistence layer after a successful write and consumed read-only
// for routing.
type MessageEvent struct {
	ID          uuid.UUID    `json:"id"`
	SenderID    state.UserID `json:"senderId"`
	RecipientID state.UserID `json:"recipientId"`
	Payload     string       `json:"payload"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// NewMessageEvent stamps a fresh event with an ID and creation time.
func NewMessageEvent(sender, recipient state.UserID, payload string) MessageEvent {
	return MessageEvent{
		ID:          uuid.New(),
		SenderID:    sender,
		RecipientID: recipient,
		Payload:     payload,
		CreatedAt:   time.Now().UTC(),
	}
}
