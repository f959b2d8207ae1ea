// Package conversation owns the overlay session state: a pure reducer
// (Machine) that folds stream mutations into the message history, and a
// Coordinator that serializes every writer onto it.
package conversation

import (
	"time"

	"github.com/google/uuid"

	"github.com/YisroelArnson/AI-PERSONAL-TRAINER-sub011/internal/domain"
	"github.com/YisroelArnson/AI-PERSONAL-TRAINER-sub011/internal/stream"
	"github.com/YisroelArnson/AI-PERSONAL-TRAINER-sub011/internal/workout"
)

// DefaultFailureMessage is shown when an error event carries no message.
const DefaultFailureMessage = "Something went wrong. Please try again."

const contentSeparator = "\n\n"

// Machine is the conversation reducer. It is not safe for concurrent use;
// the Coordinator is its single owner.
type Machine struct {
	state domain.SessionState
	// streaming is the index of the open assistant message, or -1.
	streaming int

	now   func() time.Time
	newID func() string
}

// NewMachine returns a machine in the idle phase with no history.
func NewMachine() *Machine {
	return &Machine{
		state:     newState(),
		streaming: -1,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

func newState() domain.SessionState {
	return domain.SessionState{
		Phase:    domain.PhaseIdle,
		Messages: []domain.Message{},
	}
}

// State returns a deep copy of the current state.
func (m *Machine) State() domain.SessionState {
	return m.state.Clone()
}

// Streaming returns a copy of the open assistant message, if any.
func (m *Machine) Streaming() (domain.Message, bool) {
	if m.streaming < 0 {
		return domain.Message{}, false
	}
	return m.state.Messages[m.streaming].Clone(), true
}

// Artifact returns the artifact attached to the message with the given id.
func (m *Machine) Artifact(messageID string) (workout.Artifact, bool) {
	for _, msg := range m.state.Messages {
		if msg.ID == messageID && msg.Artifact != nil {
			return *msg.Artifact, true
		}
	}
	return workout.Artifact{}, false
}

// AddUserMessage appends an immutable user message and clears the input.
// It does not start processing.
func (m *Machine) AddUserMessage(text string) domain.Message {
	msg := domain.Message{
		ID:        m.newID(),
		Role:      domain.RoleUser,
		Content:   text,
		Steps:     []domain.Step{},
		CreatedAt: m.now(),
	}
	m.state.Messages = append(m.state.Messages, msg)
	m.state.InputText = ""
	if m.state.Phase == domain.PhaseIdle || m.state.Phase == domain.PhaseClosed {
		m.state.Phase = domain.PhaseActive
	}
	return msg.Clone()
}

// StartStreamingMessage opens a new assistant message and marks the session
// as processing. An already open message is finalized first.
func (m *Machine) StartStreamingMessage() string {
	m.FinalizeStreamingMessage()

	msg := domain.Message{
		ID:        m.newID(),
		Role:      domain.RoleAssistant,
		Steps:     []domain.Step{},
		Streaming: true,
		CreatedAt: m.now(),
	}
	m.state.Messages = append(m.state.Messages, msg)
	m.streaming = len(m.state.Messages) - 1
	m.state.IsProcessing = true
	m.state.ErrorMessage = ""
	return msg.ID
}

func (m *Machine) open() *domain.Message {
	if m.streaming < 0 {
		return nil
	}
	return &m.state.Messages[m.streaming]
}

// AddStepToStreamingMessage upserts by tool: the most recent step for the
// same tool takes the new status and details. The one exception is a
// running or pending step after a finished one, which is a new invocation
// and is appended. Idle steps are never materialized.
func (m *Machine) AddStepToStreamingMessage(step domain.Step) {
	msg := m.open()
	if msg == nil || step.Tool == domain.IdleTool {
		return
	}
	for i := len(msg.Steps) - 1; i >= 0; i-- {
		s := &msg.Steps[i]
		if s.Tool != step.Tool {
			continue
		}
		if s.Status.Terminal() && !step.Status.Terminal() {
			break
		}
		s.Status = step.Status
		if step.Details != "" {
			s.Details = step.Details
		}
		return
	}
	msg.Steps = append(msg.Steps, step)
}

// UpdateStreamingContent accumulates text on the open message.
func (m *Machine) UpdateStreamingContent(content string) {
	msg := m.open()
	if msg == nil || content == "" {
		return
	}
	if msg.Content == "" {
		msg.Content = content
		return
	}
	msg.Content += contentSeparator + content
}

// UpdateStreamingContentWithArtifact accumulates text and attaches a. The
// first artifact attached to a message is kept; it reports whether a was
// attached.
func (m *Machine) UpdateStreamingContentWithArtifact(content string, a workout.Artifact) bool {
	msg := m.open()
	if msg == nil {
		return false
	}
	m.UpdateStreamingContent(content)
	if msg.Artifact != nil {
		return false
	}
	msg.Artifact = &a
	return true
}

// UpdateStreamingContentWithOptions sets the question the user answers by
// picking one of options. The text lives only on the question, not in the
// message content; a later question replaces an earlier one.
func (m *Machine) UpdateStreamingContentWithOptions(text string, options []string) {
	msg := m.open()
	if msg == nil {
		return
	}
	msg.Question = &domain.Question{Text: text, Options: append([]string(nil), options...)}
}

// FinalizeStreamingMessage freezes the open message and clears the
// processing flag. A message that never received anything is dropped.
// Calling it with no open message does nothing.
func (m *Machine) FinalizeStreamingMessage() {
	msg := m.open()
	if msg == nil {
		return
	}
	idx := m.streaming
	m.streaming = -1
	m.state.IsProcessing = false

	if msg.Content == "" && len(msg.Steps) == 0 && msg.Artifact == nil && msg.Question == nil {
		m.state.Messages = append(m.state.Messages[:idx], m.state.Messages[idx+1:]...)
		return
	}
	msg.Streaming = false
	if m.state.Phase == domain.PhaseMinimized {
		m.state.PendingResponseCount++
	}
}

// Apply folds one classified stream mutation into the state.
func (m *Machine) Apply(mu stream.Mutation) {
	switch x := mu.(type) {
	case stream.NoOp:
	case stream.UpsertStep:
		m.AddStepToStreamingMessage(x.Step)
	case stream.SetContent:
		m.UpdateStreamingContent(x.Content)
	case stream.AttachArtifact:
		m.UpdateStreamingContentWithArtifact(x.Content, x.Artifact)
	case stream.AskQuestion:
		m.UpdateStreamingContentWithOptions(x.Question.Text, x.Question.Options)
	case stream.Complete:
		if x.SessionID != "" {
			m.state.SessionID = x.SessionID
		}
		m.FinalizeStreamingMessage()
		m.state.IsProcessing = false
	case stream.Fail:
		m.FinalizeStreamingMessage()
		m.state.IsProcessing = false
		m.state.ErrorMessage = x.Message
		if m.state.ErrorMessage == "" {
			m.state.ErrorMessage = DefaultFailureMessage
		}
	default:
		panic("conversation: unhandled mutation")
	}
}

// Open shows the overlay and clears the unread counter.
func (m *Machine) Open() {
	switch m.state.Phase {
	case domain.PhaseIdle, domain.PhaseClosed, domain.PhaseMinimized:
		m.state.Phase = domain.PhaseActive
	}
	m.state.PendingResponseCount = 0
}

// Close hides the overlay. With no history the session is closed. With
// history it degrades to minimize from any phase except minimized, where a
// second close parks it in idle with history kept.
func (m *Machine) Close() {
	switch {
	case len(m.state.Messages) == 0:
		m.state.Phase = domain.PhaseClosed
	case m.state.Phase == domain.PhaseMinimized:
		m.state.Phase = domain.PhaseIdle
	default:
		m.state.Phase = domain.PhaseMinimized
	}
}

func (m *Machine) Minimize() {
	if m.state.Phase == domain.PhaseActive || m.state.Phase == domain.PhaseExpanded {
		m.state.Phase = domain.PhaseMinimized
	}
}

func (m *Machine) Expand() {
	if m.state.Phase == domain.PhaseActive {
		m.state.Phase = domain.PhaseExpanded
	}
}

func (m *Machine) Collapse() {
	if m.state.Phase == domain.PhaseExpanded {
		m.state.Phase = domain.PhaseActive
	}
}

func (m *Machine) DismissError() {
	m.state.ErrorMessage = ""
}

func (m *Machine) SetInputText(text string) {
	m.state.InputText = text
}

// Reset discards all history and returns to idle.
func (m *Machine) Reset() {
	m.state = newState()
	m.streaming = -1
}
