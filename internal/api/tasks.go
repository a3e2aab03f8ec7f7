package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ashureev/jira-pulse/internal/domain"
	"github.com/go-chi/chi/v5"
)

// TaskLister returns the aggregated open tasks of an assignee.
type TaskLister interface {
	Tasks(ctx context.Context, assignee string) ([]domain.TaskMetric, error)
}

// TaskHandler serves GET /tasks.
type TaskHandler struct {
	tasks TaskLister
}

// NewTaskHandler creates a task handler.
func NewTaskHandler(tasks TaskLister) *TaskHandler {
	return &TaskHandler{tasks: tasks}
}

// RegisterRoutes registers the task routes.
func (h *TaskHandler) RegisterRoutes(r chi.Router) {
	r.Get("/tasks", h.HandleTasks)
}

// HandleTasks returns the metrics of the open issues assigned to ?username=.
func (h *TaskHandler) HandleTasks(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.URL.Query().Get("username"))
	if username == "" {
		Error(w, http.StatusBadRequest, "Username is required")
		return
	}

	metrics, err := h.tasks.Tasks(r.Context(), username)
	if err != nil {
		slog.Error("Failed to fetch Jira tasks", "error", err, "username", username)
		Error(w, http.StatusInternalServerError, "Failed to fetch Jira tasks")
		return
	}
	if metrics == nil {
		metrics = []domain.TaskMetric{}
	}
	JSON(w, http.StatusOK, metrics)
}
