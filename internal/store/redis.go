package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/25kamalesh/YapOps/pkg/chat"
	"github.com/25kamalesh/YapOps/pkg/state"
)

const redisKeyPrefix = "yapops:conversation:"

// Redis keeps each conversation as a list of JSON-encoded events, newest
// at the tail. It lets history survive a server restart without changing
// anything about the real-time layer.
type Redis struct {
	client *redis.Client
	logger *slog.Logger
}

func NewRedis(ctx context.Context, addr string, logger *slog.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("store: redis ping failed: %w", err)
	}
	return &Redis{
		client: client,
		logger: logger.With(slog.String("component", "store_redis")),
	}, nil
}

var _ Store = (*Redis)(nil)

func (s *Redis) Append(ctx context.Context, ev chat.MessageEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("store: marshal event: %w", err)
	}
	key := redisKeyPrefix + conversationKey(ev.SenderID, ev.RecipientID)
	if err := s.client.RPush(ctx, key, payload).Err(); err != nil {
		return fmt.Errorf("store: append to %s: %w", key, err)
	}
	return nil
}

func (s *Redis) Conversation(ctx context.Context, a, b state.UserID, limit int) ([]chat.MessageEvent, error) {
	key := redisKeyPrefix + conversationKey(a, b)

	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}
	raw, err := s.client.LRange(ctx, key, start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %w", key, err)
	}

	out := make([]chat.MessageEvent, 0, len(raw))
	for _, item := range raw {
		var ev chat.MessageEvent
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			s.logger.Warn("Skipping undecodable history entry",
				slog.String("key", key), slog.Any("error", err))
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (s *Redis) Close() error {
	return s.client.Close()
}
