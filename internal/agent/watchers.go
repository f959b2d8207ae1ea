package agent

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// WatcherRegistry tracks the WebSocket connections watching the conversation,
// one per user tab.
type WatcherRegistry struct {
	mu     sync.RWMutex
	active map[string]map[string]*websocket.Conn
}

// NewWatcherRegistry creates an empty registry.
func NewWatcherRegistry() *WatcherRegistry {
	return &WatcherRegistry{
		active: make(map[string]map[string]*websocket.Conn),
	}
}

// Get returns the watcher for a user and session.
func (m *WatcherRegistry) Get(userID, sessionID string) *websocket.Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sessions, ok := m.active[userID]; ok {
		return sessions[sessionID]
	}
	return nil
}

// Count returns the number of registered watchers.
func (m *WatcherRegistry) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, sessions := range m.active {
		n += len(sessions)
	}
	return n
}

// Register adds a watcher, closing any previous one for the same tab.
func (m *WatcherRegistry) Register(userID, sessionID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.active[userID]; !exists {
		m.active[userID] = make(map[string]*websocket.Conn)
	}

	if existing, exists := m.active[userID][sessionID]; exists && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "watcher replaced")
	}

	m.active[userID][sessionID] = conn
	slog.Debug("Conversation watcher registered", "user_id", userID, "session_id", sessionID)
}

// Unregister removes conn if it is still the current watcher for the tab.
func (m *WatcherRegistry) Unregister(userID, sessionID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sessions, ok := m.active[userID]; ok {
		if current, exists := sessions[sessionID]; exists && current == conn {
			delete(sessions, sessionID)
			if len(sessions) == 0 {
				delete(m.active, userID)
			}
			slog.Debug("Conversation watcher unregistered", "user_id", userID, "session_id", sessionID)
		}
	}
}

// CloseAll terminates every watcher, used on shutdown.
func (m *WatcherRegistry) CloseAll(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for userID, sessions := range m.active {
		for sid, conn := range sessions {
			_ = conn.Close(websocket.StatusGoingAway, reason)
			slog.Debug("Conversation watcher closed", "user_id", userID, "session_id", sid)
		}
	}
	clear(m.active)
}
