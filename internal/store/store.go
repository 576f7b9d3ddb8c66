// Package store persists message events and serves conversation history.
// The real-time layer only hands events to the store before routing; it
// never reads them back, so any backend that can append and list a
// conversation is sufficient.
package store

import (
	"context"
	"strings"

	"github.com/25kamalesh/YapOps/pkg/chat"
	"github.com/25kamalesh/YapOps/pkg/state"
)

type Store interface {
	// Append durably records the event. Routing must only happen after
	// Append returns nil.
	Append(ctx context.Context, ev chat.MessageEvent) error

	// Conversation returns the messages exchanged between the two users
	// in creation order, capped to the most recent limit entries.
	// Argument order does not matter.
	Conversation(ctx context.Context, a, b state.UserID, limit int) ([]chat.MessageEvent, error)

	Close() error
}

// conversationKey is direction-agnostic: both participants map to the
// same conversation.
func conversationKey(a, b state.UserID) string {
	if b < a {
		a, b = b, a
	}
	return strings.Join([]string{string(a), string(b)}, "|")
}
