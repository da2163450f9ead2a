// Package storage persists conversations and their council turns.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tensorplex-labs/council/internal/config"
	"github.com/tensorplex-labs/council/internal/council"
	"github.com/tensorplex-labs/council/internal/utils/redis"
)

var ErrNotFound = errors.New("conversation not found")

const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

type Conversation struct {
	ID        string         `json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	Title     string         `json:"title"`
	Messages  []council.Turn `json:"messages"`
}

type ConversationSummary struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
}

type StoreInterface interface {
	Create(ctx context.Context) (*Conversation, error)
	Get(ctx context.Context, id string) (*Conversation, error)
	// List returns every conversation, newest first.
	List(ctx context.Context) ([]ConversationSummary, error)
	AddUserMessage(ctx context.Context, id, content string) error
	AddAssistantMessage(ctx context.Context, id string, stage1 []council.ModelResponse, stage2 []council.RankingSubmission, stage3 council.ModelResponse) error
	AddFollowUpMessage(ctx context.Context, id string, response council.ModelResponse) error
	UpdateTitle(ctx context.Context, id, title string) error
	Close() error
}

// Open builds the backend named by cfg.StoreBackend.
func Open(ctx context.Context, cfg *config.AppConfig) (StoreInterface, error) {
	switch strings.ToLower(cfg.StoreBackend) {
	case "", BackendSQLite:
		return NewSQLiteStore(cfg.SQLitePath)
	case BackendRedis:
		r, err := redis.NewRedis(&cfg.RedisEnvConfig)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		if err := r.Ping(ctx); err != nil {
			r.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		return NewRedisStore(r), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

func newConversation() *Conversation {
	return &Conversation{
		ID:        uuid.New().String(),
		CreatedAt: time.Now().UTC(),
		Title:     council.DefaultTitle,
		Messages:  []council.Turn{},
	}
}

func userTurn(content string) council.Turn {
	return council.Turn{Role: council.RoleUser, Content: content}
}

func deliberationTurn(stage1 []council.ModelResponse, stage2 []council.RankingSubmission, stage3 council.ModelResponse) council.Turn {
	return council.Turn{Role: council.RoleAssistant, Stage1: stage1, Stage2: stage2, Stage3: &stage3}
}

func followUpTurn(response council.ModelResponse) council.Turn {
	return council.Turn{Role: council.RoleAssistant, Type: council.TypeFollowUp, Response: &response}
}

// DeliberationRecorder stores the question, the finished deliberation and
// its title, in that order, into conversation id.
func DeliberationRecorder(store StoreInterface, id string) council.Recorder {
	return council.RecorderFunc(func(ctx context.Context, d *council.Deliberation) error {
		if err := store.AddUserMessage(ctx, id, d.Query); err != nil {
			return err
		}
		if err := store.AddAssistantMessage(ctx, id, d.Stage1, d.Stage2, d.Stage3); err != nil {
			return err
		}
		if d.Title != "" {
			return store.UpdateTitle(ctx, id, d.Title)
		}
		return nil
	})
}

// keyedMutex serializes read-modify-write cycles per conversation.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
