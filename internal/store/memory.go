package store

import (
	"context"
	"log/slog"
	"sync"

	"github.com/25kamalesh/YapOps/pkg/chat"
	"github.com/25kamalesh/YapOps/pkg/state"
)

// Memory is the default single-process store.
type Memory struct {
	mu            sync.RWMutex
	conversations map[string][]chat.MessageEvent

	logger *slog.Logger
}

func NewMemory(logger *slog.Logger) *Memory {
	return &Memory{
		conversations: make(map[string][]chat.MessageEvent),
		logger:        logger.With(slog.String("component", "store_memory")),
	}
}

var _ Store = (*Memory)(nil)

func (s *Memory) Append(_ context.Context, ev chat.MessageEvent) error {
	key := conversationKey(ev.SenderID, ev.RecipientID)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[key] = append(s.conversations[key], ev)

	s.logger.Debug("Message stored",
		slog.String("id", ev.ID.String()),
		slog.String("conversation", key))
	return nil
}

func (s *Memory) Conversation(_ context.Context, a, b state.UserID, limit int) ([]chat.MessageEvent, error) {
	key := conversationKey(a, b)

	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.conversations[key]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]chat.MessageEvent, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *Memory) Close() error { return nil }
