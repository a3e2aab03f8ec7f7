package chat

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/jira-pulse/internal/api"
	"github.com/ashureev/jira-pulse/internal/config"
	"github.com/ashureev/jira-pulse/internal/domain"
	"github.com/ashureev/jira-pulse/internal/identity"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

const (
	defaultMaxRequestBodySize = 1 << 20
	defaultStreamChunkSize    = 64

	processingErrorMessage = "An error occurred while processing your request"
)

// Handler serves the chat endpoints.
type Handler struct {
	svc         *Service
	cfg         *config.Config
	log         ConversationLogger
	conns       *ConnectionRegistry
	rateLimiter *RateLimiter
}

// NewHandler creates a chat handler. log and conns may be nil.
func NewHandler(svc *Service, cfg *config.Config, log ConversationLogger, conns *ConnectionRegistry) *Handler {
	if log == nil {
		log = noopConversationLogger{}
	}
	if conns == nil {
		conns = NewConnectionRegistry()
	}
	limit, window := 10, time.Minute
	if cfg != nil && cfg.RateLimit.RequestsPerWindow > 0 {
		limit = cfg.RateLimit.RequestsPerWindow
		if cfg.RateLimit.WindowDuration > 0 {
			window = cfg.RateLimit.WindowDuration
		}
	}
	return &Handler{
		svc:         svc,
		cfg:         cfg,
		log:         log,
		conns:       conns,
		rateLimiter: NewRateLimiter(limit, window),
	}
}

// RegisterRoutes registers the chat routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.HandleChat)
	r.Get("/chat/session", h.HandleSession)
	r.Delete("/chat/session", h.HandleReset)
	r.Get("/ws/chat", h.HandleWebSocket)
}

// Close releases handler resources.
func (h *Handler) Close() {
	h.rateLimiter.Stop()
}

func (h *Handler) maxBodySize() int64 {
	if h.cfg != nil && h.cfg.HTTP.MaxRequestBodySize > 0 {
		return h.cfg.HTTP.MaxRequestBodySize
	}
	return defaultMaxRequestBodySize
}

func (h *Handler) chunkSize() int {
	if h.cfg != nil && h.cfg.HTTP.StreamChunkSize > 0 {
		return h.cfg.HTTP.StreamChunkSize
	}
	return defaultStreamChunkSize
}

// HandleChat handles POST /chat. The narrative is streamed back as plain text.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize())
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.UserID = userID
	req.SessionID = sessionID
	reqID := chiMiddleware.GetReqID(r.Context())

	if err := validateMessage(req.Message); err != nil {
		api.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	// Only well-formed requests count against the budget.
	if !h.rateLimiter.Allow(userID) {
		api.Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	slog.Info("Chat request",
		"user_id", userID,
		"session_id", sessionID,
		"message_length", len(req.Message),
	)
	h.logUserMessage(req, "chat_http", reqID)

	turn, err := h.svc.Chat(r.Context(), identity.ConversationKey(userID, sessionID), req.Message)
	if err != nil {
		if domain.IsValidation(err) {
			api.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("Chat turn failed", "error", err, "user_id", userID, "session_id", sessionID)
		api.Error(w, http.StatusInternalServerError, processingErrorMessage)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	chunks := 0
	partial := false
	streamErrMsg := ""
	for chunk := range Chunks(turn.Narrative, h.chunkSize()) {
		if _, err := w.Write([]byte(chunk)); err != nil {
			slog.Warn("Failed to write chat chunk", "error", err, "user_id", userID)
			partial = true
			streamErrMsg = err.Error()
			break
		}
		chunks++
		if flusher != nil {
			flusher.Flush()
		}
	}
	h.logAssistantMessage(req.UserID, req.SessionID, "chat_http", turn, chunks, partial, streamErrMsg, reqID)
}

// HandleSession handles GET /chat/session.
func (h *Handler) HandleSession(w http.ResponseWriter, r *http.Request) {
	key := identity.ConversationKeyFromContext(r.Context())
	conv, err := h.svc.Conversation(r.Context(), key)
	if err != nil {
		slog.Error("Failed to load conversation", "error", err, "conversation_key", key)
		api.Error(w, http.StatusInternalServerError, processingErrorMessage)
		return
	}
	api.JSON(w, http.StatusOK, SessionResponse{
		State:   conv.State(),
		Subject: conv.Subject,
		Turns:   conv.Turns,
	})
}

// HandleReset handles DELETE /chat/session.
func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	key := identity.ConversationKeyFromContext(r.Context())
	if err := h.svc.Reset(r.Context(), key); err != nil {
		slog.Error("Failed to reset conversation", "error", err, "conversation_key", key)
		api.Error(w, http.StatusInternalServerError, processingErrorMessage)
		return
	}
	h.conns.CloseConversation(key)
	slog.Info("Conversation reset", "conversation_key", key)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) logUserMessage(req ChatRequest, channel, requestID string) {
	h.log.Log(ConversationLogEvent{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		UserID:     req.UserID,
		SessionID:  req.SessionID,
		Channel:    channel,
		Direction:  "outbound",
		EventType:  "chat_user_message",
		ContentRaw: req.Message,
		Content:    cleanForReadability(req.Message),
		Meta: map[string]any{
			"request_id": requestID,
		},
	})
}

func (h *Handler) logAssistantMessage(userID, sessionID, channel string, turn *Turn, chunks int, partial bool, streamErrMsg, requestID string) {
	h.log.Log(ConversationLogEvent{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		UserID:     userID,
		SessionID:  sessionID,
		Channel:    channel,
		Direction:  "inbound",
		EventType:  "chat_assistant_message",
		ContentRaw: turn.Narrative,
		Content:    cleanForReadability(turn.Narrative),
		Meta: map[string]any{
			"turn_id":           turn.ID,
			"intent":            string(turn.Intent),
			"subject":           turn.Conversation.Subject.Name(),
			"tasks":             len(turn.Metrics),
			"tasks_unavailable": turn.TasksUnavailable,
			"stream_chunks":     chunks,
			"partial":           partial,
			"stream_error":      streamErrMsg,
			"request_id":        requestID,
		},
	})
}
