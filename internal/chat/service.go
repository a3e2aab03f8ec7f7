package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/jira-pulse/internal/domain"
	"github.com/ashureev/jira-pulse/internal/intent"
	"github.com/ashureev/jira-pulse/internal/narrative"
	"github.com/ashureev/jira-pulse/internal/store"
	"github.com/google/uuid"
)

// SubjectResolver extracts a subject from a message and names the rule used.
type SubjectResolver interface {
	ResolveRule(message string) (domain.Subject, string, bool)
}

// TaskSource returns the aggregated open tasks of an assignee.
type TaskSource interface {
	Tasks(ctx context.Context, assignee string) ([]domain.TaskMetric, error)
}

// Narrator produces the prose answer for a turn.
type Narrator interface {
	Generate(ctx context.Context, req narrative.Request) string
}

// Service runs chat turns and keeps each conversation's context in the repository.
type Service struct {
	resolver SubjectResolver
	tasks    TaskSource
	narrator Narrator
	repo     store.Repository
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a chat service.
func NewService(resolver SubjectResolver, tasks TaskSource, narrator Narrator, repo store.Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		resolver: resolver,
		tasks:    tasks,
		narrator: narrator,
		repo:     repo,
		logger:   logger,
		now:      time.Now,
	}
}

func validateMessage(message string) error {
	if strings.TrimSpace(message) == "" {
		return &domain.ValidationError{Field: "message", Reason: "is required"}
	}
	return nil
}

// ProcessTurn runs one turn against conv and returns the updated conversation
// inside the Turn. conv itself is not modified. An empty message is rejected
// with a ValidationError before anything else happens.
func (s *Service) ProcessTurn(ctx context.Context, conv domain.Conversation, message string) (*Turn, error) {
	if err := validateMessage(message); err != nil {
		return nil, err
	}

	turn := &Turn{
		ID:      uuid.NewString(),
		Intent:  intent.Classify(message),
		Metrics: []domain.TaskMetric{},
	}

	if subj, rule, ok := s.resolver.ResolveRule(message); ok {
		turn.SubjectChanged = conv.Apply(subj)
		turn.Rule = rule
	}

	if name := conv.Subject.Name(); name != "" {
		metrics, err := s.tasks.Tasks(ctx, name)
		if err != nil {
			turn.TasksUnavailable = true
			s.logger.Warn("Task retrieval failed, continuing without task data",
				"conversation_key", conv.Key,
				"assignee", name,
				"error", err)
		} else {
			turn.Metrics = metrics
		}
	}

	turn.Narrative = s.narrator.Generate(ctx, narrative.Request{
		Subject:          conv.Subject,
		Metrics:          turn.Metrics,
		Message:          message,
		RiskIntent:       turn.Intent == intent.Risk,
		TasksUnavailable: turn.TasksUnavailable,
	})

	conv.Turns++
	conv.UpdatedAt = s.now()
	turn.Conversation = conv
	return turn, nil
}

// Chat loads the conversation for key, runs the turn and stores the result.
func (s *Service) Chat(ctx context.Context, key, message string) (*Turn, error) {
	if err := validateMessage(message); err != nil {
		return nil, err
	}

	conv, err := s.Conversation(ctx, key)
	if err != nil {
		return nil, err
	}

	turn, err := s.ProcessTurn(ctx, conv, message)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpsertConversation(ctx, &turn.Conversation); err != nil {
		return nil, fmt.Errorf("save conversation: %w", err)
	}

	s.logger.Info("Chat turn processed",
		"turn_id", turn.ID,
		"conversation_key", key,
		"state", turn.Conversation.State(),
		"rule", turn.Rule,
		"intent", turn.Intent,
		"tasks", len(turn.Metrics),
		"tasks_unavailable", turn.TasksUnavailable,
	)
	return turn, nil
}

// Conversation returns the stored conversation for key, or a fresh one.
func (s *Service) Conversation(ctx context.Context, key string) (domain.Conversation, error) {
	stored, err := s.repo.GetConversation(ctx, key)
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("load conversation: %w", err)
	}
	if stored == nil {
		return domain.NewConversation(key, s.now()), nil
	}
	return *stored, nil
}

// Reset forgets the conversation for key.
func (s *Service) Reset(ctx context.Context, key string) error {
	if err := s.repo.DeleteConversation(ctx, key); err != nil {
		return fmt.Errorf("reset conversation: %w", err)
	}
	return nil
}
