// Package metrics joins Jira issues with their work logs into per-ticket metrics.
package metrics

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/ashureev/jira-pulse/internal/domain"
)

// Field display names that carry the schedule of an issue.
const (
	FieldActualStart = "Actual start"
	FieldDueDate     = "Due date"
)

const defaultWorkers = 6

// WorklogFetcher retrieves the logged-time entries of one issue.
type WorklogFetcher interface {
	Worklog(ctx context.Context, issueKey string) ([]domain.WorkLogEntry, error)
}

// Aggregator builds TaskMetrics, fetching work logs with a bounded worker pool.
type Aggregator struct {
	worklogs WorklogFetcher
	workers  int
	logger   *slog.Logger
}

// NewAggregator creates an aggregator using at most workers concurrent fetches.
func NewAggregator(worklogs WorklogFetcher, workers int, logger *slog.Logger) *Aggregator {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		worklogs: worklogs,
		workers:  workers,
		logger:   logger,
	}
}

// Aggregate returns one TaskMetric per issue, in input order. A failed work
// log fetch counts as zero logged hours for that issue.
func (a *Aggregator) Aggregate(ctx context.Context, result *domain.SearchResult) []domain.TaskMetric {
	if result == nil || len(result.Issues) == 0 {
		return []domain.TaskMetric{}
	}

	keys := make([]string, 0, len(result.Issues))
	seen := make(map[string]struct{}, len(result.Issues))
	for _, issue := range result.Issues {
		if _, ok := seen[issue.Key]; ok {
			continue
		}
		seen[issue.Key] = struct{}{}
		keys = append(keys, issue.Key)
	}

	logged := a.loggedSeconds(ctx, keys)

	out := make([]domain.TaskMetric, 0, len(result.Issues))
	for _, issue := range result.Issues {
		m := scheduleOf(issue, result.Names)
		m.EstimatedHours = SecondsToHours(issue.OriginalEstimateSeconds())
		m.LoggedHours = SecondsToHours(float64(logged[issue.Key]))
		out = append(out, m)
	}
	return out
}

// scheduleOf fills key, summary and dates. Field ids are visited in sorted
// order; if a display name maps to several fields, the last one wins.
func scheduleOf(issue domain.RawIssue, names map[string]string) domain.TaskMetric {
	m := domain.TaskMetric{
		Key:     issue.Key,
		Summary: issue.Summary(),
	}

	ids := make([]string, 0, len(issue.Fields))
	for id := range issue.Fields {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		switch names[id] {
		case FieldActualStart:
			if v, ok := issue.StringField(id); ok {
				m.StartDate = &v
			}
		case FieldDueDate:
			if v, ok := issue.StringField(id); ok {
				m.EndDate = &v
			}
		}
	}
	return m
}

type worklogResult struct {
	key     string
	seconds int64
}

func (a *Aggregator) loggedSeconds(ctx context.Context, keys []string) map[string]int64 {
	workers := a.workers
	if workers > len(keys) {
		workers = len(keys)
	}

	jobs := make(chan string)
	results := make(chan worklogResult, len(keys))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for key := range jobs {
				results <- worklogResult{key: key, seconds: a.fetchSeconds(ctx, key)}
			}
		}()
	}

	for _, key := range keys {
		jobs <- key
	}
	close(jobs)
	wg.Wait()
	close(results)

	out := make(map[string]int64, len(keys))
	for r := range results {
		out[r.key] = r.seconds
	}
	return out
}

func (a *Aggregator) fetchSeconds(ctx context.Context, key string) int64 {
	entries, err := a.worklogs.Worklog(ctx, key)
	if err != nil {
		a.logger.Warn("Worklog fetch failed, counting zero hours", "issue_key", key, "error", err)
		return 0
	}
	var total int64
	for _, e := range entries {
		total += e.TimeSpentSeconds
	}
	return total
}
