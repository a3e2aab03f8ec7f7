// Package retention expires idle conversations on a cron schedule.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/jira-pulse/internal/store"
	"github.com/robfig/cron/v3"
)

// DefaultSchedule runs a sweep every five minutes.
const DefaultSchedule = "@every 5m"

// ExpireCallback is called with the key of each conversation the sweeper removed.
type ExpireCallback func(key string)

// Sweeper deletes conversations that have been idle for longer than ttl.
type Sweeper struct {
	repo     store.Repository
	ttl      time.Duration
	onExpire ExpireCallback
	logger   *slog.Logger
}

// NewSweeper creates a sweeper. onExpire may be nil.
func NewSweeper(repo store.Repository, ttl time.Duration, onExpire ExpireCallback, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{repo: repo, ttl: ttl, onExpire: onExpire, logger: logger}
}

// Sweep runs one expiry pass and returns how many conversations were removed.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	keys, err := s.repo.ListExpiredConversations(ctx, s.ttl)
	if err != nil {
		return 0, fmt.Errorf("list expired conversations: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	s.logger.Info("Retention sweep found expired conversations", "count", len(keys))

	removed := 0
	for _, key := range keys {
		if err := s.repo.DeleteConversation(ctx, key); err != nil {
			if ctx.Err() != nil {
				s.logger.Debug("Retention sweep canceled", "conversation_key", key, "error", err)
				return removed, nil
			}
			s.logger.Warn("Retention sweep failed to delete conversation",
				"conversation_key", key,
				"error", err)
			continue
		}
		removed++
		if s.onExpire != nil {
			s.onExpire(key)
		}
	}

	s.logger.Info("Retention sweep completed", "removed", removed)
	return removed, nil
}

// Start schedules Sweep on a cron schedule and stops when ctx is done.
func (s *Sweeper) Start(ctx context.Context, schedule string) (*cron.Cron, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}

	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.Error("Retention sweep failed", "error", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("schedule retention sweep %q: %w", schedule, err)
	}
	c.Start()
	s.logger.Info("Retention sweeper started", "schedule", schedule, "ttl", s.ttl)

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
		s.logger.Info("Retention sweeper shutting down", "reason", ctx.Err())
	}()
	return c, nil
}
