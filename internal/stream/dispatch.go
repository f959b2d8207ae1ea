package stream

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/YisroelArnson/AI-PERSONAL-TRAINER-sub011/internal/domain"
	"github.com/YisroelArnson/AI-PERSONAL-TRAINER-sub011/internal/workout"
)

// StatusTool names the step materialized for a status event that carries no tool.
const StatusTool = "status"

// Mutation is the closed set of state changes an event maps to.
type Mutation interface {
	isMutation()
}

type (
	// NoOp leaves state unchanged.
	NoOp struct {
		Reason string
	}

	// UpsertStep updates the latest open step for the same tool or appends a new one.
	UpsertStep struct {
		Step domain.Step
	}

	// SetContent accumulates visible text on the streaming message.
	SetContent struct {
		Content string
	}

	// AttachArtifact sets content (when non-empty) and the artifact in one step.
	AttachArtifact struct {
		Content  string
		Artifact workout.Artifact
	}

	// AskQuestion attaches a question with selectable options.
	AskQuestion struct {
		Question domain.Question
	}

	// Complete adopts SessionID and finalizes the turn.
	Complete struct {
		SessionID string
	}

	// Fail finalizes the turn with a user-visible error.
	Fail struct {
		Message string
	}
)

func (NoOp) isMutation()           {}
func (UpsertStep) isMutation()     {}
func (SetContent) isMutation()     {}
func (AttachArtifact) isMutation() {}
func (AskQuestion) isMutation()    {}
func (Complete) isMutation()       {}
func (Fail) isMutation()           {}

var resultTag = regexp.MustCompile(`(?s)<result>(.*?)</result>`)

// ExtractResult returns the text inside the first <result>...</result> pair,
// or s unchanged when there is none.
func ExtractResult(s string) string {
	m := resultTag.FindStringSubmatch(s)
	if m == nil {
		return s
	}
	return strings.TrimSpace(m[1])
}

// StepStatusOf normalizes an action status. Empty means running, and the
// status-event phase "error" is accepted for failed.
func StepStatusOf(s string) (domain.StepStatus, bool) {
	switch st := domain.StepStatus(s); st {
	case "":
		return domain.StepRunning, true
	case domain.StepPending, domain.StepRunning, domain.StepDone, domain.StepFailed:
		return st, true
	case domain.StepStatus(PhaseError):
		return domain.StepFailed, true
	default:
		return st, false
	}
}

var phaseStatus = map[StatusPhase]domain.StepStatus{
	PhaseRunning: domain.StepRunning,
	PhaseDone:    domain.StepDone,
	PhaseError:   domain.StepFailed,
}

// Classify maps one event to the mutation the reducer applies for it.
func Classify(e Event) Mutation {
	switch ev := e.(type) {
	case ActionEvent:
		if ev.Tool == domain.IdleTool {
			return NoOp{Reason: "idle heartbeat"}
		}
		status, ok := StepStatusOf(string(ev.Status))
		if !ok {
			return NoOp{Reason: fmt.Sprintf("unknown action status %q", ev.Status)}
		}
		return UpsertStep{Step: domain.Step{
			Tool:    ev.Tool,
			Status:  status,
			Details: ExtractResult(ev.Formatted),
		}}

	case StatusEvent:
		tool := ev.Tool
		if tool == domain.IdleTool {
			return NoOp{Reason: "idle heartbeat"}
		}
		if tool == "" {
			tool = StatusTool
		}
		status, ok := phaseStatus[ev.Phase]
		if !ok {
			return NoOp{Reason: fmt.Sprintf("unknown status phase %q", ev.Phase)}
		}
		return UpsertStep{Step: domain.Step{
			Tool:    tool,
			Status:  status,
			Details: ExtractResult(ev.Message),
		}}

	case MessageEvent:
		if ev.Content == "" {
			return NoOp{Reason: "empty message"}
		}
		return SetContent{Content: ev.Content}

	case ArtifactMessageEvent:
		return AttachArtifact{Content: ev.Content, Artifact: ev.Artifact}

	case QuestionEvent:
		if ev.Text == "" {
			return NoOp{Reason: "empty question"}
		}
		if len(ev.Options) == 0 {
			return SetContent{Content: ev.Text}
		}
		return AskQuestion{Question: domain.Question{Text: ev.Text, Options: ev.Options}}

	case ExercisesEvent:
		return NoOp{Reason: "exercises are informational"}

	case DoneEvent:
		return Complete{SessionID: ev.SessionID}

	case ErrorEvent:
		return Fail{Message: ev.Message}

	default:
		panic(fmt.Sprintf("stream: unhandled event %T", e))
	}
}
