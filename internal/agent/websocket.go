package agent

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/YisroelArnson/AI-PERSONAL-TRAINER-sub011/internal/domain"
	"github.com/YisroelArnson/AI-PERSONAL-TRAINER-sub011/internal/identity"
)

const wsWriteTimeout = 5 * time.Second

// HandleWatch handles GET /ws/agent. The socket receives the current
// session state and then every change until either side closes.
func (h *Handler) HandleWatch(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "watch ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	h.watchers.Register(userID, sessionID, ws)
	defer h.watchers.Unregister(userID, sessionID, ws)

	// Watchers only listen; CloseRead handles pings and the close handshake.
	ctx := ws.CloseRead(r.Context())

	updates, unsubscribe := h.conv.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			slog.Debug("Conversation watcher disconnected", "user_id", userID, "session_id", sessionID)
			return
		case state, ok := <-updates:
			if !ok {
				_ = ws.Close(websocket.StatusGoingAway, "conversation closed")
				return
			}
			if err := writeState(ctx, ws, state); err != nil {
				if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
					h.logger.Warn("WebSocket write error", "error", err, "user_id", userID)
				}
				return
			}
		}
	}
}

func writeState(ctx context.Context, ws *websocket.Conn, state domain.SessionState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return ws.Write(ctx, websocket.MessageText, data)
}
