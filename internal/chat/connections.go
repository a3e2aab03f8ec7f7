package chat

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/coder/websocket"
)

// ConnectionRegistry tracks the live WebSocket chat connection of each
// user session. A newer connection for the same session replaces the old one.
type ConnectionRegistry struct {
	mu     sync.RWMutex
	active map[string]map[string]*websocket.Conn
}

// NewConnectionRegistry creates an empty registry.
func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		active: make(map[string]map[string]*websocket.Conn),
	}
}

// Get returns the connection for a user session, or nil.
func (m *ConnectionRegistry) Get(userID, sessionID string) *websocket.Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active[userID][sessionID]
}

// Count returns the number of live connections.
func (m *ConnectionRegistry) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, sessions := range m.active {
		n += len(sessions)
	}
	return n
}

// Register records conn for a user session.
func (m *ConnectionRegistry) Register(userID, sessionID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sessions, ok := m.active[userID]
	if !ok {
		sessions = make(map[string]*websocket.Conn)
		m.active[userID] = sessions
	}
	if existing, ok := sessions[sessionID]; ok && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "session replaced")
	}
	sessions[sessionID] = conn
	slog.Info("Chat connection registered", "user_id", userID, "session_id", sessionID)
}

// Unregister forgets conn if it is still the current connection of the session.
func (m *ConnectionRegistry) Unregister(userID, sessionID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sessions, ok := m.active[userID]
	if !ok || sessions[sessionID] != conn {
		return
	}
	delete(sessions, sessionID)
	if len(sessions) == 0 {
		delete(m.active, userID)
	}
	slog.Info("Chat connection unregistered", "user_id", userID, "session_id", sessionID)
}

// CloseConversation closes the connection bound to a conversation key
// of the form "<userID>:<sessionID>".
func (m *ConnectionRegistry) CloseConversation(key string) {
	userID, sessionID, ok := strings.Cut(key, ":")
	if !ok {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sessions, ok := m.active[userID]
	if !ok {
		return
	}
	conn, ok := sessions[sessionID]
	if !ok {
		return
	}
	_ = conn.Close(websocket.StatusNormalClosure, "conversation closed")
	delete(sessions, sessionID)
	if len(sessions) == 0 {
		delete(m.active, userID)
	}
	slog.Info("Chat connection closed", "user_id", userID, "session_id", sessionID)
}
