package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/jira-pulse/internal/domain"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeWorklogs struct {
	mu       sync.Mutex
	entries  map[string][]domain.WorkLogEntry
	failures map[string]error
	delay    time.Duration
	inFlight int
	maxSeen  int
	calls    map[string]int
}

func (f *fakeWorklogs) Worklog(_ context.Context, key string) ([]domain.WorkLogEntry, error) {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxSeen {
		f.maxSeen = f.inFlight
	}
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[key]++
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight--
	if err := f.failures[key]; err != nil {
		return nil, err
	}
	return f.entries[key], nil
}

func issue(key string, fields map[string]string) domain.RawIssue {
	raw := make(map[string]json.RawMessage, len(fields))
	for k, v := range fields {
		raw[k] = json.RawMessage(v)
	}
	return domain.RawIssue{Key: key, Fields: raw}
}

func TestRoundHours(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{0, 0},
		{0.5, 0.5},
		{1.0 / 3.0, 0.33},
		{2.0 / 3.0, 0.67},
		{0.125, 0.13},
		{0.375, 0.38},
		{1.005, 1},
		{2.675, 2.67},
		{-0.125, -0.13},
		{12.3456, 12.35},
	}
	for _, tc := range cases {
		if got := RoundHours(tc.in); got != tc.want {
			t.Errorf("RoundHours(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestAggregateEstimateAndLoggedHours(t *testing.T) {
	wl := &fakeWorklogs{entries: map[string][]domain.WorkLogEntry{
		"PRJ-1": {{TimeSpentSeconds: 1800}, {TimeSpentSeconds: 1800}},
	}}
	agg := NewAggregator(wl, 4, quietLogger())

	got := agg.Aggregate(context.Background(), &domain.SearchResult{
		Issues: []domain.RawIssue{issue("PRJ-1", map[string]string{
			"summary":              `"Build report"`,
			"timeoriginalestimate": `7200`,
		})},
		Names: map[string]string{"summary": "Summary"},
	})

	if len(got) != 1 {
		t.Fatalf("expected 1 metric, got %d", len(got))
	}
	m := got[0]
	if m.Key != "PRJ-1" || m.Summary != "Build report" {
		t.Errorf("unexpected identity %+v", m)
	}
	if m.EstimatedHours != 2 || m.LoggedHours != 1 {
		t.Errorf("expected 2.00 estimated and 1.00 logged, got %v / %v", m.EstimatedHours, m.LoggedHours)
	}
	if m.OverBudget() {
		t.Error("1h logged of 2h must not be over budget")
	}
	if m.StartDate != nil || m.EndDate != nil {
		t.Errorf("expected null dates, got %v %v", m.StartDate, m.EndDate)
	}
}

func TestAggregateNoWorklogAndNoEstimateIsZero(t *testing.T) {
	agg := NewAggregator(&fakeWorklogs{}, 2, quietLogger())
	got := agg.Aggregate(context.Background(), &domain.SearchResult{
		Issues: []domain.RawIssue{issue("PRJ-2", map[string]string{"timeoriginalestimate": `null`})},
	})
	if got[0].EstimatedHours != 0 || got[0].LoggedHours != 0 {
		t.Fatalf("expected zeros, got %+v", got[0])
	}
}

func TestAggregateResolvesDatesByDisplayName(t *testing.T) {
	agg := NewAggregator(&fakeWorklogs{}, 2, quietLogger())
	got := agg.Aggregate(context.Background(), &domain.SearchResult{
		Issues: []domain.RawIssue{issue("PRJ-3", map[string]string{
			"customfield_10015": `"2024-05-01"`,
			"duedate":           `"2024-05-20"`,
			"customfield_10099": `null`,
		})},
		Names: map[string]string{
			"customfield_10015": "Actual start",
			"duedate":           "Due date",
			"customfield_10099": "Actual start",
		},
	})

	m := got[0]
	if m.StartDate == nil || *m.StartDate != "2024-05-01" {
		t.Errorf("unexpected start date %v", m.StartDate)
	}
	if m.EndDate == nil || *m.EndDate != "2024-05-20" {
		t.Errorf("unexpected end date %v", m.EndDate)
	}
}

func TestAggregateDuplicateDisplayNameLastWins(t *testing.T) {
	agg := NewAggregator(&fakeWorklogs{}, 1, quietLogger())
	got := agg.Aggregate(context.Background(), &domain.SearchResult{
		Issues: []domain.RawIssue{issue("PRJ-4", map[string]string{
			"customfield_1": `"2024-01-01"`,
			"customfield_2": `"2024-02-02"`,
		})},
		Names: map[string]string{
			"customfield_1": "Due date",
			"customfield_2": "Due date",
		},
	})
	if got[0].EndDate == nil || *got[0].EndDate != "2024-02-02" {
		t.Fatalf("expected last field in id order to win, got %v", got[0].EndDate)
	}
}

func TestAggregateWorklogFailureCountsZero(t *testing.T) {
	wl := &fakeWorklogs{
		entries: map[string][]domain.WorkLogEntry{
			"OK-1": {{TimeSpentSeconds: 3600}},
		},
		failures: map[string]error{"BAD-1": errors.New("HTTP 500")},
	}
	agg := NewAggregator(wl, 2, quietLogger())

	got := agg.Aggregate(context.Background(), &domain.SearchResult{
		Issues: []domain.RawIssue{issue("BAD-1", nil), issue("OK-1", nil)},
	})
	if len(got) != 2 {
		t.Fatalf("expected partial results for both issues, got %d", len(got))
	}
	if got[0].Key != "BAD-1" || got[0].LoggedHours != 0 {
		t.Errorf("expected failed issue to have 0 logged hours, got %+v", got[0])
	}
	if got[1].Key != "OK-1" || got[1].LoggedHours != 1 {
		t.Errorf("expected 1 logged hour, got %+v", got[1])
	}
}

func TestAggregatePreservesOrderAndBoundsConcurrency(t *testing.T) {
	keys := []string{"A-1", "A-2", "A-3", "A-4", "A-5", "A-6", "A-7", "A-8"}
	wl := &fakeWorklogs{entries: map[string][]domain.WorkLogEntry{}, delay: 10 * time.Millisecond}
	issues := make([]domain.RawIssue, 0, len(keys))
	for i, k := range keys {
		wl.entries[k] = []domain.WorkLogEntry{{TimeSpentSeconds: int64(i+1) * 360}}
		issues = append(issues, issue(k, nil))
	}

	agg := NewAggregator(wl, 3, quietLogger())
	got := agg.Aggregate(context.Background(), &domain.SearchResult{Issues: issues})

	for i, k := range keys {
		if got[i].Key != k {
			t.Fatalf("position %d: expected %s, got %s", i, k, got[i].Key)
		}
		want := RoundHours(float64(i+1) * 0.1)
		if got[i].LoggedHours != want {
			t.Errorf("%s: expected %v hours, got %v", k, want, got[i].LoggedHours)
		}
	}
	if wl.maxSeen > 3 {
		t.Fatalf("expected at most 3 concurrent fetches, saw %d", wl.maxSeen)
	}
}

func TestAggregateFetchesDuplicateKeysOnce(t *testing.T) {
	wl := &fakeWorklogs{entries: map[string][]domain.WorkLogEntry{"D-1": {{TimeSpentSeconds: 3600}}}}
	agg := NewAggregator(wl, 4, quietLogger())

	got := agg.Aggregate(context.Background(), &domain.SearchResult{
		Issues: []domain.RawIssue{issue("D-1", nil), issue("D-1", nil)},
	})
	if len(got) != 2 || got[0].LoggedHours != 1 || got[1].LoggedHours != 1 {
		t.Fatalf("unexpected metrics %+v", got)
	}
	if wl.calls["D-1"] != 1 {
		t.Fatalf("expected a single fetch for a duplicated key, got %d", wl.calls["D-1"])
	}
}

func TestAggregateEmpty(t *testing.T) {
	agg := NewAggregator(&fakeWorklogs{}, 0, nil)
	got := agg.Aggregate(context.Background(), &domain.SearchResult{})
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}

type fakeSearcher struct {
	result *domain.SearchResult
	err    error
	gotArg string
}

func (f *fakeSearcher) Search(_ context.Context, assignee string) (*domain.SearchResult, error) {
	f.gotArg = assignee
	return f.result, f.err
}

func TestTaskServiceTasks(t *testing.T) {
	search := &fakeSearcher{result: &domain.SearchResult{
		Issues: []domain.RawIssue{issue("PRJ-9", map[string]string{"timeoriginalestimate": `5400`})},
	}}
	svc := NewTaskService(search, NewAggregator(&fakeWorklogs{}, 1, quietLogger()))

	got, err := svc.Tasks(context.Background(), "Jane Doe")
	if err != nil {
		t.Fatalf("Tasks failed: %v", err)
	}
	if search.gotArg != "Jane Doe" {
		t.Errorf("expected assignee to be forwarded, got %q", search.gotArg)
	}
	if len(got) != 1 || got[0].EstimatedHours != 1.5 {
		t.Fatalf("unexpected metrics %+v", got)
	}
}

func TestTaskServiceSearchFailure(t *testing.T) {
	boom := errors.New("HTTP 404")
	svc := NewTaskService(&fakeSearcher{err: boom}, NewAggregator(&fakeWorklogs{}, 1, quietLogger()))

	_, err := svc.Tasks(context.Background(), "asingh")
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped search error, got %v", err)
	}
}
