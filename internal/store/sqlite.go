package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/jira-pulse/internal/domain"
	_ "modernc.org/sqlite"
)

// MemoryPath selects a process-local database that disappears on exit.
const MemoryPath = ":memory:"

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex // serializes writes to avoid SQLITE_BUSY
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	return newSQLite(dbPath)
}

func newSQLite(dbPath string) (*SQLiteStore, error) {
	inMemory := dbPath == MemoryPath || strings.HasPrefix(dbPath, "file::memory:")

	dsn := dbPath
	if !inMemory {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		dsn = "file:" + dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if inMemory {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS conversations (
		conversation_key TEXT PRIMARY KEY,
		username TEXT NOT NULL DEFAULT '',
		full_name TEXT NOT NULL DEFAULT '',
		turns INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(updated_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// GetConversation retrieves a conversation by key.
func (s *SQLiteStore) GetConversation(ctx context.Context, key string) (*domain.Conversation, error) {
	query := `
		SELECT conversation_key, username, full_name, turns, created_at, updated_at
		FROM conversations WHERE conversation_key = ?`

	var conv domain.Conversation
	var createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx, query, key).Scan(
		&conv.Key, &conv.Subject.Username, &conv.Subject.FullName,
		&conv.Turns, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}

	conv.CreatedAt = time.Unix(createdAt, 0)
	conv.UpdatedAt = time.Unix(updatedAt, 0)
	return &conv, nil
}

// UpsertConversation creates or updates a conversation.
func (s *SQLiteStore) UpsertConversation(ctx context.Context, conv *domain.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO conversations (conversation_key, username, full_name, turns, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_key) DO UPDATE SET
			username = excluded.username,
			full_name = excluded.full_name,
			turns = excluded.turns,
			updated_at = excluded.updated_at`

	createdAt := conv.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	updatedAt := conv.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, query,
		conv.Key, conv.Subject.Username, conv.Subject.FullName, conv.Turns,
		createdAt.Unix(), updatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert conversation: %w", err)
	}
	return nil
}

// DeleteConversation removes a conversation.
// Retries with exponential backoff on SQLite lock contention.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, key string) error {
	maxRetries := 3
	baseDelay := 100 * time.Millisecond

	for i := 0; i < maxRetries; i++ {
		err := s.deleteConversationOnce(ctx, key)
		if err == nil {
			return nil
		}

		if IsConflictError(err) && i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i) // 100ms, 200ms
			slog.Debug("DeleteConversation hit SQLITE_BUSY, retrying",
				"conversation_key", key,
				"attempt", i+1,
				"delay", delay)
			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				return fmt.Errorf("delete conversation %s: %w", key, ctx.Err())
			}
		}

		return fmt.Errorf("delete conversation %s after %d attempts: %w", key, i+1, err)
	}

	return nil
}

func (s *SQLiteStore) deleteConversationOnce(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE conversation_key = ?`, key); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}

// ListExpiredConversations returns keys of conversations not updated within ttl.
func (s *SQLiteStore) ListExpiredConversations(ctx context.Context, ttl time.Duration) ([]string, error) {
	threshold := time.Now().Add(-ttl).Unix()
	rows, err := s.db.QueryContext(ctx,
		`SELECT conversation_key FROM conversations WHERE updated_at < ? ORDER BY updated_at`, threshold)
	if err != nil {
		return nil, fmt.Errorf("query expired conversations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan expired conversation: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired conversations: %w", err)
	}
	return keys, nil
}
