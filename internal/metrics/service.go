package metrics

import (
	"context"
	"fmt"

	"github.com/ashureev/jira-pulse/internal/domain"
)

// Searcher finds the open issues assigned to someone.
type Searcher interface {
	Search(ctx context.Context, assignee string) (*domain.SearchResult, error)
}

// TaskService resolves an assignee into aggregated task metrics.
type TaskService struct {
	searcher   Searcher
	aggregator *Aggregator
}

// NewTaskService creates a TaskService.
func NewTaskService(searcher Searcher, aggregator *Aggregator) *TaskService {
	return &TaskService{
		searcher:   searcher,
		aggregator: aggregator,
	}
}

// Tasks searches the assignee's open issues and aggregates them.
// A search failure is returned wrapped; work log failures are absorbed.
func (s *TaskService) Tasks(ctx context.Context, assignee string) ([]domain.TaskMetric, error) {
	result, err := s.searcher.Search(ctx, assignee)
	if err != nil {
		return nil, fmt.Errorf("search issues for %q: %w", assignee, err)
	}
	return s.aggregator.Aggregate(ctx, result), nil
}
