package domain

import (
	"encoding/json"
	"strings"
)

// RawIssue is an issue record as returned by the Jira search API.
type RawIssue struct {
	Key    string                     `json:"key"`
	Fields map[string]json.RawMessage `json:"fields"`
}

// SearchResult is one page of issues plus the field id to display name dictionary.
type SearchResult struct {
	Issues []RawIssue        `json:"issues"`
	Names  map[string]string `json:"names"`
}

// Summary returns the issue summary, or "" if absent.
func (i RawIssue) Summary() string {
	s, _ := i.StringField("summary")
	return s
}

// OriginalEstimateSeconds returns timeoriginalestimate, or 0 when absent or null.
func (i RawIssue) OriginalEstimateSeconds() float64 {
	raw, ok := i.Fields["timeoriginalestimate"]
	if !ok {
		return 0
	}
	var v *float64
	if err := json.Unmarshal(raw, &v); err != nil || v == nil {
		return 0
	}
	return *v
}

// StringField returns the field value when it is a non-empty JSON string.
func (i RawIssue) StringField(id string) (string, bool) {
	raw, ok := i.Fields[id]
	if !ok {
		return "", false
	}
	var v *string
	if err := json.Unmarshal(raw, &v); err != nil || v == nil {
		return "", false
	}
	if strings.TrimSpace(*v) == "" {
		return "", false
	}
	return *v, true
}

// WorkLogEntry is a single logged-time record of an issue.
type WorkLogEntry struct {
	TimeSpentSeconds int64 `json:"timeSpentSeconds"`
}

// TaskMetric is the normalized per-ticket schedule and effort record.
type TaskMetric struct {
	Key            string  `json:"key"`
	Summary        string  `json:"summary"`
	StartDate      *string `json:"startDate"`
	EndDate        *string `json:"endDate"`
	EstimatedHours float64 `json:"estimatedHours"`
	LoggedHours    float64 `json:"loggedHours"`
}

// OverBudget reports whether more time was logged than estimated.
func (m TaskMetric) OverBudget() bool {
	return m.LoggedHours > m.EstimatedHours
}
