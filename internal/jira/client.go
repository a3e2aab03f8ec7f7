// Package jira is a minimal Jira Cloud REST v3 client for issue search and work logs.
package jira

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ashureev/jira-pulse/internal/domain"
)

// maxErrorBody bounds how much of an error response is kept for diagnostics.
const maxErrorBody = 512

// Client provides access to the Jira Cloud REST API v3 using Basic auth.
type Client struct {
	baseURL    string
	email      string
	apiToken   string
	timeout    time.Duration
	httpClient *http.Client
}

// NewClient creates a Jira client. Every call is bounded by timeout.
func NewClient(baseURL, email, apiToken string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		email:      email,
		apiToken:   apiToken,
		timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// AssigneeJQL builds the open-issues query for an assignee.
func AssigneeJQL(assignee string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(assignee)
	return fmt.Sprintf(`assignee = "%s" AND status != Done ORDER BY updated DESC`, escaped)
}

// Search returns the first page of open issues assigned to assignee,
// together with the field display names.
func (c *Client) Search(ctx context.Context, assignee string) (*domain.SearchResult, error) {
	q := url.Values{}
	q.Set("jql", AssigneeJQL(assignee))
	q.Set("expand", "names,schema")

	var result domain.SearchResult
	if err := c.get(ctx, "search", "/rest/api/3/search?"+q.Encode(), &result); err != nil {
		return nil, err
	}
	if result.Names == nil {
		result.Names = map[string]string{}
	}
	return &result, nil
}

type worklogResponse struct {
	Worklogs []domain.WorkLogEntry `json:"worklogs"`
}

// Worklog returns the logged-time entries of an issue.
func (c *Client) Worklog(ctx context.Context, issueKey string) ([]domain.WorkLogEntry, error) {
	var resp worklogResponse
	path := "/rest/api/3/issue/" + url.PathEscape(issueKey) + "/worklog"
	if err := c.get(ctx, "worklog "+issueKey, path, &resp); err != nil {
		return nil, err
	}
	return resp.Worklogs, nil
}

func (c *Client) get(ctx context.Context, op, path string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return &UpstreamError{Op: op, Err: fmt.Errorf("create request: %w", err)}
	}
	req.SetBasicAuth(c.email, c.apiToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &UpstreamError{Op: op, Err: fmt.Errorf("send request: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &UpstreamError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        errors.New(strings.TrimSpace(string(body))),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &UpstreamError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
