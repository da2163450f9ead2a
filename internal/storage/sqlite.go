package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/tensorplex-labs/council/internal/council"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL DEFAULT 'New Conversation',
	created_at  TEXT NOT NULL,
	messages    TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_conversations_created_at ON conversations(created_at);
`

// Fixed width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore keeps one row per conversation with its turns as a JSON array.
type SQLiteStore struct {
	db    *sql.DB
	locks keyedMutex
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dbPath != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("pragma: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info().Str("path", dbPath).Msg("sqlite conversation store ready")
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Create(ctx context.Context) (*Conversation, error) {
	conv := newConversation()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, title, created_at, messages) VALUES (?, ?, ?, '[]')`,
		conv.ID, conv.Title, conv.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}
	return conv, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, created_at, messages FROM conversations WHERE id = ?`, id)

	var (
		conv      Conversation
		createdAt string
		messages  string
	)
	if err := row.Scan(&conv.ID, &conv.Title, &createdAt, &messages); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select conversation: %w", err)
	}

	var err error
	if conv.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if err := sonic.UnmarshalString(messages, &conv.Messages); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	if conv.Messages == nil {
		conv.Messages = []council.Turn{}
	}
	return &conv, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]ConversationSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, created_at, json_array_length(messages)
		 FROM conversations ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	out := []ConversationSummary{}
	for rows.Next() {
		var (
			summary   ConversationSummary
			createdAt string
		)
		if err := rows.Scan(&summary.ID, &summary.Title, &createdAt, &summary.MessageCount); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		if summary.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		out = append(out, summary)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AddUserMessage(ctx context.Context, id, content string) error {
	return s.appendTurn(ctx, id, userTurn(content))
}

func (s *SQLiteStore) AddAssistantMessage(
	ctx context.Context,
	id string,
	stage1 []council.ModelResponse,
	stage2 []council.RankingSubmission,
	stage3 council.ModelResponse,
) error {
	return s.appendTurn(ctx, id, deliberationTurn(stage1, stage2, stage3))
}

func (s *SQLiteStore) AddFollowUpMessage(ctx context.Context, id string, response council.ModelResponse) error {
	return s.appendTurn(ctx, id, followUpTurn(response))
}

func (s *SQLiteStore) UpdateTitle(ctx context.Context, id, title string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE conversations SET title = ? WHERE id = ?`, title, id)
	if err != nil {
		return fmt.Errorf("update title: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) appendTurn(ctx context.Context, id string, turn council.Turn) error {
	unlock := s.locks.lock(id)
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx, `SELECT messages FROM conversations WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("select messages: %w", err)
	}

	var messages []council.Turn
	if err := sonic.UnmarshalString(raw, &messages); err != nil {
		return fmt.Errorf("decode messages: %w", err)
	}
	encoded, err := sonic.MarshalString(append(messages, turn))
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE conversations SET messages = ? WHERE id = ?`, encoded, id); err != nil {
		return fmt.Errorf("update messages: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
