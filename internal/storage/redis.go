package storage

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog/log"

	"github.com/tensorplex-labs/council/internal/council"
	"github.com/tensorplex-labs/council/internal/utils/redis"
)

// RedisStore keeps each conversation as one JSON document and the ids in a
// list, newest at the head.
type RedisStore struct {
	redis redis.RedisInterface
	locks keyedMutex
}

func NewRedisStore(r redis.RedisInterface) *RedisStore {
	return &RedisStore{redis: r}
}

func (s *RedisStore) conversationKey(id string) string {
	return s.redis.Key("conversation", id)
}

func (s *RedisStore) indexKey() string {
	return s.redis.Key("conversations")
}

func (s *RedisStore) Close() error {
	s.redis.Close()
	return nil
}

func (s *RedisStore) Create(ctx context.Context) (*Conversation, error) {
	conv := newConversation()
	if err := s.save(ctx, conv); err != nil {
		return nil, err
	}
	if err := s.redis.LPush(ctx, s.indexKey(), conv.ID); err != nil {
		return nil, fmt.Errorf("index conversation: %w", err)
	}
	return conv, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Conversation, error) {
	raw, err := s.redis.Get(ctx, s.conversationKey(id))
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	if raw == "" {
		return nil, ErrNotFound
	}
	return decodeConversation(raw)
}

func (s *RedisStore) List(ctx context.Context) ([]ConversationSummary, error) {
	ids, err := s.redis.LRange(ctx, s.indexKey(), 0, -1)
	if err != nil {
		return nil, fmt.Errorf("list conversation ids: %w", err)
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.conversationKey(id)
	}
	docs, err := s.redis.GetMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("get conversations: %w", err)
	}

	out := make([]ConversationSummary, 0, len(ids))
	for i, key := range keys {
		raw := docs[key]
		if raw == "" {
			log.Warn().Str("id", ids[i]).Msg("indexed conversation has no document")
			continue
		}
		conv, err := decodeConversation(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, ConversationSummary{
			ID:           conv.ID,
			CreatedAt:    conv.CreatedAt,
			Title:        conv.Title,
			MessageCount: len(conv.Messages),
		})
	}
	return out, nil
}

func (s *RedisStore) AddUserMessage(ctx context.Context, id, content string) error {
	return s.update(ctx, id, func(c *Conversation) {
		c.Messages = append(c.Messages, userTurn(content))
	})
}

func (s *RedisStore) AddAssistantMessage(
	ctx context.Context,
	id string,
	stage1 []council.ModelResponse,
	stage2 []council.RankingSubmission,
	stage3 council.ModelResponse,
) error {
	return s.update(ctx, id, func(c *Conversation) {
		c.Messages = append(c.Messages, deliberationTurn(stage1, stage2, stage3))
	})
}

func (s *RedisStore) AddFollowUpMessage(ctx context.Context, id string, response council.ModelResponse) error {
	return s.update(ctx, id, func(c *Conversation) {
		c.Messages = append(c.Messages, followUpTurn(response))
	})
}

func (s *RedisStore) UpdateTitle(ctx context.Context, id, title string) error {
	return s.update(ctx, id, func(c *Conversation) {
		c.Title = title
	})
}

func (s *RedisStore) update(ctx context.Context, id string, fn func(*Conversation)) error {
	unlock := s.locks.lock(id)
	defer unlock()

	conv, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	fn(conv)
	return s.save(ctx, conv)
}

func (s *RedisStore) save(ctx context.Context, conv *Conversation) error {
	raw, err := sonic.MarshalString(conv)
	if err != nil {
		return fmt.Errorf("encode conversation: %w", err)
	}
	if err := s.redis.Set(ctx, s.conversationKey(conv.ID), raw, 0); err != nil {
		return fmt.Errorf("set conversation: %w", err)
	}
	return nil
}

func decodeConversation(raw string) (*Conversation, error) {
	var conv Conversation
	if err := sonic.UnmarshalString(raw, &conv); err != nil {
		return nil, fmt.Errorf("decode conversation: %w", err)
	}
	if conv.Messages == nil {
		conv.Messages = []council.Turn{}
	}
	return &conv, nil
}
