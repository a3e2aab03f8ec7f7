// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/jira-pulse/internal/domain"
)

// Repository persists per-conversation dialogue context.
type Repository interface {
	// GetConversation retrieves a conversation by key. It returns nil, nil
	// when the conversation does not exist.
	GetConversation(ctx context.Context, key string) (*domain.Conversation, error)

	// UpsertConversation creates or updates a conversation.
	UpsertConversation(ctx context.Context, conv *domain.Conversation) error

	// DeleteConversation removes a conversation. Deleting a missing one is not an error.
	DeleteConversation(ctx context.Context, key string) error

	// ListExpiredConversations returns the keys of conversations idle for longer than ttl.
	ListExpiredConversations(ctx context.Context, ttl time.Duration) ([]string, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
