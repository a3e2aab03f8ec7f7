// Package narrative turns task metrics into a prose answer using a language model.
package narrative

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"github.com/ashureev/jira-pulse/internal/domain"
	"github.com/ashureev/jira-pulse/internal/prompts"
)

// Provider completes a single system + user exchange with a language model.
type Provider interface {
	Name() string
	Complete(ctx context.Context, system, user string) (string, error)
}

// GenerationError wraps a failed model call.
type GenerationError struct {
	Provider string
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate narrative via %s: %v", e.Provider, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

var errEmptyCompletion = errors.New("empty completion")

// Request is everything the model is told about one turn.
type Request struct {
	Subject          domain.Subject
	Metrics          []domain.TaskMetric
	Message          string
	RiskIntent       bool
	TasksUnavailable bool
}

// Generator builds prompts and calls the provider. It never returns an
// error: failures are logged and answered with the apology prompt.
type Generator struct {
	provider Provider
	prompts  *prompts.Store
	userTurn *template.Template
	today    *template.Template
	timeout  time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewGenerator creates a Generator. Each model call is bounded by timeout.
func NewGenerator(provider Provider, store *prompts.Store, timeout time.Duration, logger *slog.Logger) (*Generator, error) {
	if store == nil {
		store = prompts.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	tmpl, err := template.New(prompts.KeyUserTurn).Parse(store.MustGet(prompts.KeyUserTurn))
	if err != nil {
		return nil, fmt.Errorf("parse user turn template: %w", err)
	}
	today, err := template.New(prompts.KeyToday).Parse(store.MustGet(prompts.KeyToday))
	if err != nil {
		return nil, fmt.Errorf("parse today template: %w", err)
	}
	return &Generator{
		provider: provider,
		prompts:  store,
		userTurn: tmpl,
		today:    today,
		timeout:  timeout,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Apology is the fixed reply used when generation fails.
func (g *Generator) Apology() string {
	return strings.TrimSpace(g.prompts.MustGet(prompts.KeyApology))
}

// taskView adds the deterministic over-budget flag shown to the model
// when a risk assessment was asked for.
type taskView struct {
	domain.TaskMetric
	OverBudget bool `json:"overBudget"`
}

// BuildPrompt returns the system instruction and user turn for req.
func (g *Generator) BuildPrompt(req Request) (string, string, error) {
	var system strings.Builder
	system.WriteString(strings.TrimSpace(g.prompts.MustGet(prompts.KeySystem)))
	system.WriteString("\n\n")
	if req.RiskIntent {
		system.WriteString(strings.TrimSpace(g.prompts.MustGet(prompts.KeyRisk)))
		var today bytes.Buffer
		if err := g.today.Execute(&today, struct{ Today string }{Today: g.now().Format(time.DateOnly)}); err != nil {
			return "", "", fmt.Errorf("render today: %w", err)
		}
		system.WriteString("\n")
		system.WriteString(strings.TrimSpace(today.String()))
	} else {
		system.WriteString(strings.TrimSpace(g.prompts.MustGet(prompts.KeySummaryOnly)))
	}
	if req.Subject.IsZero() {
		system.WriteString("\n\n")
		system.WriteString(strings.TrimSpace(g.prompts.Get(prompts.KeyNoSubject)))
	}
	if req.TasksUnavailable {
		system.WriteString("\n\n")
		system.WriteString(strings.TrimSpace(g.prompts.Get(prompts.KeyTasksUnavailable)))
	}

	tasks, err := g.taskData(req)
	if err != nil {
		return "", "", err
	}

	var user bytes.Buffer
	err = g.userTurn.Execute(&user, struct {
		Name  string
		Query string
		Tasks string
	}{
		Name:  req.Subject.Name(),
		Query: req.Message,
		Tasks: tasks,
	})
	if err != nil {
		return "", "", fmt.Errorf("render user turn: %w", err)
	}

	return system.String(), user.String(), nil
}

func (g *Generator) taskData(req Request) (string, error) {
	var payload any = req.Metrics
	if req.Metrics == nil {
		payload = []domain.TaskMetric{}
	}
	if req.RiskIntent {
		views := make([]taskView, 0, len(req.Metrics))
		for _, m := range req.Metrics {
			views = append(views, taskView{TaskMetric: m, OverBudget: m.OverBudget()})
		}
		payload = views
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal task data: %w", err)
	}
	return string(data), nil
}

// Generate returns the narrative for req, or the apology when the model fails.
func (g *Generator) Generate(ctx context.Context, req Request) string {
	system, user, err := g.BuildPrompt(req)
	if err != nil {
		g.logger.Error("Failed to build narrative prompt", "error", err)
		return g.Apology()
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	text, err := g.provider.Complete(ctx, system, user)
	if err == nil && strings.TrimSpace(text) == "" {
		err = errEmptyCompletion
	}
	if err != nil {
		gerr := &GenerationError{Provider: g.provider.Name(), Err: err}
		g.logger.Error("Narrative generation failed", "provider", gerr.Provider, "error", gerr)
		return g.Apology()
	}

	g.logger.Debug("Narrative generated",
		"provider", g.provider.Name(),
		"risk_intent", req.RiskIntent,
		"tasks", len(req.Metrics),
		"duration", time.Since(start),
	)
	return strings.TrimSpace(text)
}
