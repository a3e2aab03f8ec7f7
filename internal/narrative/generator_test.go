package narrative

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ashureev/jira-pulse/internal/domain"
	"github.com/ashureev/jira-pulse/internal/prompts"
)

type fakeProvider struct {
	mu     sync.Mutex
	reply  string
	err    error
	system string
	user   string
	calls  int
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Complete(_ context.Context, system, user string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.system = system
	f.user = user
	return f.reply, f.err
}

func newTestGenerator(t *testing.T, p Provider) *Generator {
	t.Helper()
	g, err := NewGenerator(p, prompts.Default(), time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewGenerator failed: %v", err)
	}
	return g
}

func sampleMetrics() []domain.TaskMetric {
	due := "2024-06-01"
	return []domain.TaskMetric{
		{Key: "PRJ-1", Summary: "Build report", EndDate: &due, EstimatedHours: 2, LoggedHours: 1},
		{Key: "PRJ-2", Summary: "Fix export", EstimatedHours: 1, LoggedHours: 3.5},
	}
}

func TestBuildPromptRiskIntent(t *testing.T) {
	g := newTestGenerator(t, &fakeProvider{})

	system, user, err := g.BuildPrompt(Request{
		Subject:    domain.UsernameSubject("asingh"),
		Metrics:    sampleMetrics(),
		Message:    "risk",
		RiskIntent: true,
	})
	if err != nil {
		t.Fatalf("BuildPrompt failed: %v", err)
	}

	for _, want := range []string{"High Risk", "At Risk", "On Track"} {
		if !strings.Contains(system, want) {
			t.Errorf("risk system prompt missing %q", want)
		}
	}
	if !strings.HasPrefix(user, "Current name in use: asingh. User query: risk. Task data: ") {
		t.Fatalf("unexpected user turn %q", user)
	}

	raw := strings.TrimPrefix(user, "Current name in use: asingh. User query: risk. Task data: ")
	var tasks []map[string]any
	if err := json.Unmarshal([]byte(raw), &tasks); err != nil {
		t.Fatalf("task data is not JSON: %v", err)
	}
	if tasks[0]["overBudget"] != false || tasks[1]["overBudget"] != true {
		t.Errorf("unexpected overBudget flags: %v", tasks)
	}
	if tasks[0]["endDate"] != "2024-06-01" || tasks[1]["startDate"] != nil {
		t.Errorf("unexpected dates: %v", tasks)
	}
}

func TestBuildPromptSummaryIntentOmitsRiskFraming(t *testing.T) {
	g := newTestGenerator(t, &fakeProvider{})

	system, user, err := g.BuildPrompt(Request{
		Subject: domain.FullNameSubject("Jane Doe"),
		Metrics: sampleMetrics(),
		Message: "show my tickets",
	})
	if err != nil {
		t.Fatalf("BuildPrompt failed: %v", err)
	}
	if strings.Contains(system, "High Risk") {
		t.Error("summary prompt must not carry the risk classification")
	}
	if strings.Contains(user, "overBudget") {
		t.Error("summary task data must not carry risk annotations")
	}
	if !strings.Contains(user, "Current name in use: Jane Doe.") {
		t.Errorf("unexpected user turn %q", user)
	}
}

func TestBuildPromptRiskStatesToday(t *testing.T) {
	g := newTestGenerator(t, &fakeProvider{})
	g.now = func() time.Time { return time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC) }

	system, _, err := g.BuildPrompt(Request{
		Subject:    domain.UsernameSubject("asingh"),
		Metrics:    sampleMetrics(),
		Message:    "what is at risk?",
		RiskIntent: true,
	})
	if err != nil {
		t.Fatalf("BuildPrompt failed: %v", err)
	}
	if !strings.Contains(system, "Today's date is 2026-10-17.") {
		t.Fatalf("risk prompt does not state today's date: %q", system)
	}

	summary, _, err := g.BuildPrompt(Request{Subject: domain.UsernameSubject("asingh"), Message: "summary"})
	if err != nil {
		t.Fatalf("BuildPrompt failed: %v", err)
	}
	if strings.Contains(summary, "2026-10-17") {
		t.Error("summary prompt should not carry the date")
	}
}

func TestBuildPromptNotes(t *testing.T) {
	g := newTestGenerator(t, &fakeProvider{})
	store := prompts.Default()

	system, user, err := g.BuildPrompt(Request{Message: "hello", TasksUnavailable: true})
	if err != nil {
		t.Fatalf("BuildPrompt failed: %v", err)
	}
	if !strings.Contains(system, strings.TrimSpace(store.Get(prompts.KeyNoSubject))) {
		t.Error("expected no-subject note")
	}
	if !strings.Contains(system, strings.TrimSpace(store.Get(prompts.KeyTasksUnavailable))) {
		t.Error("expected tasks-unavailable note")
	}
	if !strings.HasSuffix(user, "Task data: []") {
		t.Errorf("expected empty task list, got %q", user)
	}
}

func TestGenerateReturnsTrimmedText(t *testing.T) {
	p := &fakeProvider{reply: "  Using name: asingh\nAll on track.  \n"}
	g := newTestGenerator(t, p)

	got := g.Generate(context.Background(), Request{Subject: domain.UsernameSubject("asingh"), Message: "status"})
	if got != "Using name: asingh\nAll on track." {
		t.Fatalf("unexpected narrative %q", got)
	}
	if p.calls != 1 {
		t.Fatalf("expected one provider call, got %d", p.calls)
	}
}

func TestGenerateFallsBackToApology(t *testing.T) {
	for name, p := range map[string]*fakeProvider{
		"error": {err: errors.New("503 service unavailable")},
		"empty": {reply: "   "},
	} {
		t.Run(name, func(t *testing.T) {
			g := newTestGenerator(t, p)
			got := g.Generate(context.Background(), Request{Message: "status"})
			if got != "An error occurred while analyzing the query." {
				t.Fatalf("expected apology, got %q", got)
			}
		})
	}
}

func TestGenerationErrorUnwraps(t *testing.T) {
	cause := context.DeadlineExceeded
	err := &GenerationError{Provider: "openai", Err: cause}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("expected GenerationError to unwrap its cause")
	}
}

func TestOpenAIProviderComplete(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("unexpected auth header %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"gpt-4-turbo",
			"choices":[{"index":0,"message":{"role":"assistant","content":"All tasks on track."},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("sk-test", "gpt-4-turbo", srv.URL+"/v1")
	text, err := p.Complete(context.Background(), "sys", "usr")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if text != "All tasks on track." {
		t.Errorf("unexpected text %q", text)
	}
	if got.Model != "gpt-4-turbo" || len(got.Messages) != 2 {
		t.Fatalf("unexpected request %+v", got)
	}
	if got.Messages[0].Role != "system" || got.Messages[0].Content != "sys" || got.Messages[1].Role != "user" {
		t.Errorf("unexpected messages %+v", got.Messages)
	}
}

func TestOpenAIProviderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("sk-bad", "gpt-4-turbo", srv.URL+"/v1")
	if _, err := p.Complete(context.Background(), "sys", "usr"); err == nil {
		t.Fatal("expected error for 401")
	}
}

func TestAnthropicProviderComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-sonnet-4-5",
			"content":[{"type":"text","text":"Two tasks, one over budget."}],
			"stop_reason":"end_turn","stop_sequence":null,"usage":{"input_tokens":3,"output_tokens":5}}`))
	}))
	defer srv.Close()

	p := NewAnthropicProvider("key", "claude-sonnet-4-5", option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	text, err := p.Complete(context.Background(), "sys", "usr")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if text != "Two tasks, one over budget." {
		t.Errorf("unexpected text %q", text)
	}
}
