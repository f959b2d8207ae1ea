// Package domain contains the conversation value types shared by the stream
// dispatcher, the conversation state machine, and the transports.
package domain

import (
	"slices"
	"time"

	"github.com/YisroelArnson/AI-PERSONAL-TRAINER-sub011/internal/workout"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// StepStatus is the progress of one tool invocation.
type StepStatus string

const (
	StepPending StepStatus = "pending"
	StepRunning StepStatus = "running"
	StepDone    StepStatus = "done"
	StepFailed  StepStatus = "failed"
)

// Terminal reports whether the step can no longer change status.
func (s StepStatus) Terminal() bool {
	return s == StepDone || s == StepFailed
}

// IdleTool is the tool name the agent uses as its completion heartbeat. Steps
// for it are never materialized.
const IdleTool = "idle"

// Step is one tool invocation rendered inline in an assistant message.
type Step struct {
	Tool    string     `json:"tool" yaml:"tool"`
	Status  StepStatus `json:"status" yaml:"status"`
	Details string     `json:"details,omitempty" yaml:"details,omitempty"`
}

// Question is an agent prompt with selectable answers.
type Question struct {
	Text    string   `json:"text" yaml:"text"`
	Options []string `json:"options" yaml:"options"`
}

// Message is one entry of the conversation history.
type Message struct {
	ID        string            `json:"id" yaml:"id"`
	Role      Role              `json:"role" yaml:"role"`
	Content   string            `json:"content" yaml:"content"`
	Steps     []Step            `json:"steps" yaml:"steps"`
	Artifact  *workout.Artifact `json:"artifact,omitempty" yaml:"-"`
	Question  *Question         `json:"question,omitempty" yaml:"question,omitempty"`
	Streaming bool              `json:"streaming" yaml:"streaming"`
	CreatedAt time.Time         `json:"createdAt" yaml:"created_at"`
}

// Clone returns a copy that shares no mutable state with m. The artifact is
// immutable and is shared.
func (m Message) Clone() Message {
	out := m
	out.Steps = slices.Clone(m.Steps)
	if m.Question != nil {
		q := *m.Question
		q.Options = slices.Clone(m.Question.Options)
		out.Question = &q
	}
	return out
}

// Phase is the overlay's display state.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseActive    Phase = "active"
	PhaseExpanded  Phase = "expanded"
	PhaseMinimized Phase = "minimized"
	PhaseClosed    Phase = "closed"
)

// SessionState is everything the presentation layer renders.
type SessionState struct {
	Phase                Phase     `json:"phase" yaml:"phase"`
	SessionID            string    `json:"sessionId" yaml:"session_id"`
	InputText            string    `json:"inputText" yaml:"input_text"`
	Messages             []Message `json:"messages" yaml:"messages"`
	IsProcessing         bool      `json:"isProcessing" yaml:"is_processing"`
	PendingResponseCount int       `json:"pendingResponseCount" yaml:"pending_response_count"`
	ErrorMessage         string    `json:"errorMessage,omitempty" yaml:"error_message,omitempty"`
}

// Clone deep-copies the state.
func (s SessionState) Clone() SessionState {
	out := s
	out.Messages = make([]Message, len(s.Messages))
	for i, m := range s.Messages {
		out.Messages[i] = m.Clone()
	}
	return out
}
