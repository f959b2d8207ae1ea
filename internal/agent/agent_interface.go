package agent

import (
	"context"

	"github.com/YisroelArnson/AI-PERSONAL-TRAINER-sub011/internal/conversation"
)

// SessionResetter clears agent-side memory for a conversation.
type SessionResetter interface {
	// ResetSession clears chat/checkpoint state for a specific tab session.
	ResetSession(ctx context.Context, userID, sessionID string) error
}

// Ensure GrpcClient streams turns and can reset sessions.
var (
	_ conversation.Streamer = (*GrpcClient)(nil)
	_ SessionResetter       = (*GrpcClient)(nil)
)
