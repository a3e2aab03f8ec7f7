// Package chat implements the conversational turn pipeline and its transports.
package chat

import (
	"github.com/ashureev/jira-pulse/internal/domain"
	"github.com/ashureev/jira-pulse/internal/intent"
)

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message   string `json:"message"`
	UserID    string `json:"-"`
	SessionID string `json:"-"`
}

// Turn is the outcome of processing one chat message.
type Turn struct {
	ID               string
	Conversation     domain.Conversation
	Narrative        string
	Metrics          []domain.TaskMetric
	Intent           intent.Intent
	SubjectChanged   bool
	Rule             string
	TasksUnavailable bool
}

// SessionResponse is the body of GET /chat/session.
type SessionResponse struct {
	State   domain.ConversationState `json:"state"`
	Subject domain.Subject           `json:"subject"`
	Turns   int                      `json:"turns"`
}

// wsMessage is a WebSocket frame in either direction.
type wsMessage struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// WebSocket frame types.
const (
	wsTypeMessage = "message"
	wsTypeChunk   = "chunk"
	wsTypeDone    = "done"
	wsTypeError   = "error"
	wsTypePing    = "ping"
	wsTypePong    = "pong"
)
