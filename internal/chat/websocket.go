package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ashureev/jira-pulse/internal/domain"
	"github.com/ashureev/jira-pulse/internal/identity"
	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// HandleWebSocket handles GET /ws/chat. Each "message" frame runs one turn and
// is answered with "chunk" frames followed by a "done" frame.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	slog.Info("WebSocket chat request", "user_id", userID, "session_id", sessionID, "ip", identity.IPFromRequest(r))

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	ws.SetReadLimit(h.maxBodySize())
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	h.conns.Register(userID, sessionID, ws)
	defer h.conns.Unregister(userID, sessionID, ws)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	h.readLoop(ctx, ws, userID, sessionID)
	slog.Info("WebSocket chat ended", "user_id", userID, "session_id", sessionID)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.cfg == nil || h.cfg.IsDevelopment() {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins() {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	slog.Warn("WebSocket origin rejected", "origin", origin)
	return false
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, userID, sessionID string) {
	key := identity.ConversationKey(userID, sessionID)
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "user_id", userID)
			} else if ctx.Err() == nil {
				slog.Warn("WebSocket read error", "error", err, "user_id", userID)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			if err := writeFrame(ctx, ws, wsMessage{Type: wsTypeError, Content: "invalid frame"}); err != nil {
				return
			}
			continue
		}

		switch msg.Type {
		case wsTypePing:
			if err := writeFrame(ctx, ws, wsMessage{Type: wsTypePong}); err != nil {
				slog.Debug("Failed to send pong", "error", err)
				return
			}
		case wsTypeMessage:
			if err := validateMessage(msg.Content); err != nil {
				if err := writeFrame(ctx, ws, wsMessage{Type: wsTypeError, Content: err.Error()}); err != nil {
					return
				}
				continue
			}
			if !h.rateLimiter.Allow(userID) {
				if err := writeFrame(ctx, ws, wsMessage{Type: wsTypeError, Content: "rate limit exceeded"}); err != nil {
					return
				}
				continue
			}
			if err := h.streamTurn(ctx, ws, key, ChatRequest{Message: msg.Content, UserID: userID, SessionID: sessionID}); err != nil {
				slog.Debug("WebSocket write failed", "error", err, "user_id", userID)
				return
			}
		default:
			if err := writeFrame(ctx, ws, wsMessage{Type: wsTypeError, Content: "unknown frame type"}); err != nil {
				return
			}
		}
	}
}

func (h *Handler) streamTurn(ctx context.Context, ws *websocket.Conn, key string, req ChatRequest) error {
	reqID := uuid.NewString()
	h.logUserMessage(req, "chat_ws", reqID)

	turn, err := h.svc.Chat(ctx, key, req.Message)
	if err != nil {
		content := processingErrorMessage
		if domain.IsValidation(err) {
			content = err.Error()
		} else {
			slog.Error("Chat turn failed", "error", err, "conversation_key", key)
		}
		return writeFrame(ctx, ws, wsMessage{Type: wsTypeError, Content: content})
	}

	chunks := 0
	for chunk := range Chunks(turn.Narrative, h.chunkSize()) {
		if err := writeFrame(ctx, ws, wsMessage{Type: wsTypeChunk, Content: chunk}); err != nil {
			h.logAssistantMessage(req.UserID, req.SessionID, "chat_ws", turn, chunks, true, err.Error(), reqID)
			return err
		}
		chunks++
	}
	h.logAssistantMessage(req.UserID, req.SessionID, "chat_ws", turn, chunks, false, "", reqID)
	return writeFrame(ctx, ws, wsMessage{Type: wsTypeDone})
}

func writeFrame(ctx context.Context, ws *websocket.Conn, msg wsMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}
