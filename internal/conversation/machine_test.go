package conversation

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/YisroelArnson/AI-PERSONAL-TRAINER-sub011/internal/domain"
	"github.com/YisroelArnson/AI-PERSONAL-TRAINER-sub011/internal/stream"
	"github.com/YisroelArnson/AI-PERSONAL-TRAINER-sub011/internal/workout"
)

func testMachine() *Machine {
	m := NewMachine()
	epoch := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	m.now = func() time.Time { return epoch }
	n := 0
	m.newID = func() string {
		n++
		return fmt.Sprintf("m%d", n)
	}
	return m
}

func feed(m *Machine, events ...stream.Event) {
	for _, ev := range events {
		m.Apply(stream.Classify(ev))
	}
}

func TestMachineAppliesTurnInOrder(t *testing.T) {
	t.Parallel()
	m := testMachine()

	m.AddUserMessage("plan my legs")
	m.StartStreamingMessage()
	feed(m,
		stream.MessageEvent{Content: "Hi"},
		stream.ActionEvent{Tool: "idle", Status: domain.StepDone},
		stream.ActionEvent{Tool: "search", Status: domain.StepRunning},
		stream.StatusEvent{Phase: stream.PhaseDone, Tool: "search"},
		stream.DoneEvent{SessionID: "s1"},
	)

	st := m.State()
	require.Len(t, st.Messages, 2)
	msg := st.Messages[1]
	require.Equal(t, domain.RoleAssistant, msg.Role)
	require.Equal(t, "Hi", msg.Content)
	require.Equal(t, []domain.Step{{Tool: "search", Status: domain.StepDone}}, msg.Steps)
	require.False(t, msg.Streaming)
	require.False(t, st.IsProcessing)
	require.Equal(t, "s1", st.SessionID)

	_, open := m.Streaming()
	require.False(t, open)
}

func TestFinalizeIsIdempotent(t *testing.T) {
	t.Parallel()
	m := testMachine()
	m.AddUserMessage("hi")
	m.StartStreamingMessage()
	m.UpdateStreamingContent("partial")
	m.AddStepToStreamingMessage(domain.Step{Tool: "search", Status: domain.StepRunning})

	m.FinalizeStreamingMessage()
	once := m.State()
	m.FinalizeStreamingMessage()
	require.Equal(t, once, m.State())

	// With nothing open at all it is also a no-op.
	fresh := testMachine()
	before := fresh.State()
	fresh.FinalizeStreamingMessage()
	require.Equal(t, before, fresh.State())
}

func TestMutationsWithoutStreamingMessageAreIgnored(t *testing.T) {
	t.Parallel()
	m := testMachine()
	m.AddUserMessage("hi")
	before := m.State()

	m.AddStepToStreamingMessage(domain.Step{Tool: "search", Status: domain.StepRunning})
	m.UpdateStreamingContent("text")
	require.False(t, m.UpdateStreamingContentWithArtifact("text", workout.Artifact{ArtifactID: "a"}))
	m.UpdateStreamingContentWithOptions("pick", []string{"a"})

	require.Equal(t, before, m.State())
}

func TestStartStreamingFinalizesPrevious(t *testing.T) {
	t.Parallel()
	m := testMachine()
	first := m.StartStreamingMessage()
	m.UpdateStreamingContent("one")
	second := m.StartStreamingMessage()
	require.NotEqual(t, first, second)

	st := m.State()
	streaming := 0
	for _, msg := range st.Messages {
		if msg.Streaming {
			streaming++
		}
	}
	require.Equal(t, 1, streaming)
	require.False(t, st.Messages[0].Streaming)
	require.Equal(t, "one", st.Messages[0].Content)
	require.True(t, st.IsProcessing)
}

func TestStepUpsert(t *testing.T) {
	t.Parallel()
	m := testMachine()
	m.StartStreamingMessage()

	m.AddStepToStreamingMessage(domain.Step{Tool: "search", Status: domain.StepRunning, Details: "looking"})
	m.AddStepToStreamingMessage(domain.Step{Tool: "plan", Status: domain.StepRunning})
	m.AddStepToStreamingMessage(domain.Step{Tool: "search", Status: domain.StepDone})
	// A finished step is not reopened; a second invocation gets its own step.
	m.AddStepToStreamingMessage(domain.Step{Tool: "search", Status: domain.StepRunning})

	msg, ok := m.Streaming()
	require.True(t, ok)
	require.Equal(t, []domain.Step{
		{Tool: "search", Status: domain.StepDone, Details: "looking"},
		{Tool: "plan", Status: domain.StepRunning},
		{Tool: "search", Status: domain.StepRunning},
	}, msg.Steps)
}

func TestStepUpsertRedundantCompletion(t *testing.T) {
	t.Parallel()
	m := testMachine()
	m.StartStreamingMessage()
	feed(m,
		stream.ActionEvent{Tool: "search", Status: domain.StepRunning},
		stream.ActionEvent{Tool: "search", Status: domain.StepDone},
		stream.StatusEvent{Tool: "search", Phase: stream.PhaseDone, Message: "Found 3"},
		// A late error for a finished tool updates it rather than adding a step.
		stream.StatusEvent{Tool: "plan", Phase: stream.PhaseDone},
		stream.ActionEvent{Tool: "plan", Status: "error"},
	)

	msg, _ := m.Streaming()
	require.Equal(t, []domain.Step{
		{Tool: "search", Status: domain.StepDone, Details: "Found 3"},
		{Tool: "plan", Status: domain.StepFailed},
	}, msg.Steps)

	// An unknown status never reaches the step list.
	feed(m, stream.ActionEvent{Tool: "plan", Status: "complete"}, stream.StatusEvent{Tool: "plan", Phase: stream.PhaseRunning})
	msg, _ = m.Streaming()
	require.Equal(t, domain.StepRunning, msg.Steps[2].Status)
	require.Equal(t, domain.StepFailed, msg.Steps[1].Status)
}

func TestContentAccumulatesAndQuestionsAttach(t *testing.T) {
	t.Parallel()
	m := testMachine()
	m.StartStreamingMessage()
	feed(m,
		stream.MessageEvent{Content: "First."},
		stream.MessageEvent{},
		stream.QuestionEvent{Text: "Plain question?"},
		stream.QuestionEvent{Text: "Which day?", Options: []string{"Mon", "Tue"}},
	)

	msg, _ := m.Streaming()
	require.Equal(t, "First.\n\nPlain question?", msg.Content)
	require.Equal(t, &domain.Question{Text: "Which day?", Options: []string{"Mon", "Tue"}}, msg.Question)
}

func TestFirstArtifactWins(t *testing.T) {
	t.Parallel()
	m := testMachine()
	m.StartStreamingMessage()

	require.True(t, m.UpdateStreamingContentWithArtifact("Here you go", workout.Artifact{ArtifactID: "a1"}))
	require.False(t, m.UpdateStreamingContentWithArtifact("", workout.Artifact{ArtifactID: "a2"}))

	msg, _ := m.Streaming()
	require.Equal(t, "a1", msg.Artifact.ArtifactID)
	require.Equal(t, "Here you go", msg.Content)

	_, ok := m.Artifact(msg.ID)
	require.True(t, ok)
	_, ok = m.Artifact("missing")
	require.False(t, ok)
}

func TestErrorFinalizesAndSetsMessage(t *testing.T) {
	t.Parallel()
	m := testMachine()
	m.AddUserMessage("hi")
	m.StartStreamingMessage()
	m.UpdateStreamingContent("partial")
	feed(m, stream.ErrorEvent{Message: "agent unavailable"})

	st := m.State()
	require.False(t, st.IsProcessing)
	require.Equal(t, "agent unavailable", st.ErrorMessage)
	require.Equal(t, "partial", st.Messages[1].Content)
	require.False(t, st.Messages[1].Streaming)

	m.DismissError()
	require.Empty(t, m.State().ErrorMessage)

	// An error before any content leaves no empty assistant bubble behind.
	m.StartStreamingMessage()
	feed(m, stream.ErrorEvent{})
	st = m.State()
	require.Len(t, st.Messages, 2)
	require.Equal(t, DefaultFailureMessage, st.ErrorMessage)
}

func TestPhaseTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		setup    func(m *Machine)
		op       func(m *Machine)
		want     domain.Phase
		messages int
	}{
		{"open from idle", nil, (*Machine).Open, domain.PhaseActive, 0},
		{"close without history", func(m *Machine) { m.Open() }, (*Machine).Close, domain.PhaseClosed, 0},
		{"close with history minimizes", func(m *Machine) { m.AddUserMessage("hi") }, (*Machine).Close, domain.PhaseMinimized, 1},
		{"close from idle with history minimizes", func(m *Machine) { m.AddUserMessage("hi"); m.Minimize(); m.Close() }, (*Machine).Close, domain.PhaseMinimized, 1},
		{"close when minimized parks in idle", func(m *Machine) { m.AddUserMessage("hi"); m.Minimize() }, (*Machine).Close, domain.PhaseIdle, 1},
		{"expand from active", func(m *Machine) { m.Open() }, (*Machine).Expand, domain.PhaseExpanded, 0},
		{"collapse from expanded", func(m *Machine) { m.Open(); m.Expand() }, (*Machine).Collapse, domain.PhaseActive, 0},
		{"minimize from expanded", func(m *Machine) { m.Open(); m.Expand() }, (*Machine).Minimize, domain.PhaseMinimized, 0},
		{"minimize from idle is ignored", nil, (*Machine).Minimize, domain.PhaseIdle, 0},
		{"expand from minimized is ignored", func(m *Machine) { m.Open(); m.Minimize() }, (*Machine).Expand, domain.PhaseMinimized, 0},
		{"open from minimized", func(m *Machine) { m.Open(); m.Minimize() }, (*Machine).Open, domain.PhaseActive, 0},
		{"send from closed reopens", func(m *Machine) { m.Close() }, func(m *Machine) { m.AddUserMessage("hi") }, domain.PhaseActive, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := testMachine()
			if tt.setup != nil {
				tt.setup(m)
			}
			tt.op(m)
			st := m.State()
			require.Equal(t, tt.want, st.Phase)
			require.Len(t, st.Messages, tt.messages)
		})
	}
}

func TestPendingResponsesWhileMinimized(t *testing.T) {
	t.Parallel()
	m := testMachine()
	m.Open()
	m.AddUserMessage("one")
	m.StartStreamingMessage()
	m.Minimize()
	feed(m, stream.MessageEvent{Content: "reply"}, stream.DoneEvent{SessionID: "s1"})
	require.Equal(t, 1, m.State().PendingResponseCount)

	m.StartStreamingMessage()
	feed(m, stream.MessageEvent{Content: "again"}, stream.DoneEvent{})
	st := m.State()
	require.Equal(t, 2, st.PendingResponseCount)
	require.Equal(t, "s1", st.SessionID)

	m.Open()
	require.Equal(t, 0, m.State().PendingResponseCount)

	// Finalizing while visible does not count.
	m.StartStreamingMessage()
	feed(m, stream.MessageEvent{Content: "seen"}, stream.DoneEvent{})
	require.Equal(t, 0, m.State().PendingResponseCount)
}

func TestResetAndStateIsolation(t *testing.T) {
	t.Parallel()
	m := testMachine()
	m.SetInputText("draft")
	m.AddUserMessage("hi")
	m.StartStreamingMessage()
	m.UpdateStreamingContentWithOptions("pick", []string{"a"})

	st := m.State()
	require.Empty(t, st.InputText)
	st.Messages[1].Question.Options[0] = "mutated"
	st.Messages[0].Content = "mutated"
	again := m.State()
	require.Equal(t, "a", again.Messages[1].Question.Options[0])
	require.Equal(t, "hi", again.Messages[0].Content)

	m.Reset()
	st = m.State()
	require.Equal(t, domain.PhaseIdle, st.Phase)
	require.Empty(t, st.Messages)
	require.False(t, st.IsProcessing)
	_, open := m.Streaming()
	require.False(t, open)
}
