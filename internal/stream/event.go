// Package stream defines the tagged events the planning agent streams for a
// conversation turn and classifies each one into a state mutation.
//
// Events for one turn arrive strictly ordered and end with DoneEvent or
// ErrorEvent. Nothing here buffers or reorders; the conversation reducer
// applies one mutation per event in arrival order.
package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/YisroelArnson/AI-PERSONAL-TRAINER-sub011/internal/domain"
	"github.com/YisroelArnson/AI-PERSONAL-TRAINER-sub011/internal/workout"
)

// Tag is the envelope discriminator carried in the "type" field.
type Tag string

const (
	TagAction              Tag = "action"
	TagStatus              Tag = "status"
	TagMessage             Tag = "message"
	TagMessageWithArtifact Tag = "messageWithArtifact"
	TagQuestion            Tag = "question"
	TagExercises           Tag = "exercises"
	TagDone                Tag = "done"
	TagError               Tag = "error"
)

var (
	// ErrUnknownEvent is returned by Decode for an unrecognized type tag.
	ErrUnknownEvent = errors.New("unknown stream event")
	// ErrMalformedEvent is returned by Decode when a payload does not match its tag.
	ErrMalformedEvent = errors.New("malformed stream event")
)

// Event is the closed set of stream events.
type Event interface {
	Tag() Tag
	isEvent()
}

// StatusPhase is the lifecycle phase reported by a status event.
type StatusPhase string

const (
	PhaseRunning StatusPhase = "running"
	PhaseDone    StatusPhase = "done"
	PhaseError   StatusPhase = "error"
)

type (
	// ActionEvent reports a tool invocation and its progress.
	ActionEvent struct {
		Tool      string            `json:"tool"`
		Status    domain.StepStatus `json:"status"`
		Formatted string            `json:"formatted,omitempty"`
	}

	// StatusEvent is a human-readable progress update, optionally tied to a tool.
	StatusEvent struct {
		Message string      `json:"message"`
		Tool    string      `json:"tool,omitempty"`
		Phase   StatusPhase `json:"phase"`
	}

	// MessageEvent carries assistant text.
	MessageEvent struct {
		Content string `json:"content"`
	}

	// ArtifactMessageEvent carries assistant text and a validated workout artifact.
	ArtifactMessageEvent struct {
		Content  string           `json:"content"`
		Artifact workout.Artifact `json:"artifact"`
	}

	// QuestionEvent asks the user to pick from Options, or is plain text when
	// Options is empty.
	QuestionEvent struct {
		Text    string   `json:"text"`
		Options []string `json:"options,omitempty"`
	}

	// ExercisesEvent lists exercises for richer surfaces.
	ExercisesEvent struct {
		Exercises workout.Exercises `json:"exercises"`
	}

	// DoneEvent terminates a turn successfully.
	DoneEvent struct {
		SessionID string `json:"sessionId"`
	}

	// ErrorEvent terminates a turn with a failure.
	ErrorEvent struct {
		Message string `json:"message"`
	}
)

func (ActionEvent) Tag() Tag          { return TagAction }
func (StatusEvent) Tag() Tag          { return TagStatus }
func (MessageEvent) Tag() Tag         { return TagMessage }
func (ArtifactMessageEvent) Tag() Tag { return TagMessageWithArtifact }
func (QuestionEvent) Tag() Tag        { return TagQuestion }
func (ExercisesEvent) Tag() Tag       { return TagExercises }
func (DoneEvent) Tag() Tag            { return TagDone }
func (ErrorEvent) Tag() Tag           { return TagError }

func (ActionEvent) isEvent()          {}
func (StatusEvent) isEvent()          {}
func (MessageEvent) isEvent()         {}
func (ArtifactMessageEvent) isEvent() {}
func (QuestionEvent) isEvent()        {}
func (ExercisesEvent) isEvent()       {}
func (DoneEvent) isEvent()            {}
func (ErrorEvent) isEvent()           {}

// Terminal reports whether e ends a turn.
func Terminal(e Event) bool {
	switch e.(type) {
	case DoneEvent, ErrorEvent:
		return true
	default:
		return false
	}
}

// Decode parses one wire envelope of the form {"type": "<tag>", ...payload}.
func Decode(data []byte) (Event, error) {
	var head struct {
		Type Tag `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	var (
		ev  Event
		err error
	)
	switch head.Type {
	case TagAction:
		var e ActionEvent
		err = json.Unmarshal(data, &e)
		if err == nil {
			var ok bool
			if e.Status, ok = StepStatusOf(string(e.Status)); !ok {
				err = fmt.Errorf("unknown action status %q", e.Status)
			}
		}
		ev = e
	case TagStatus:
		var e StatusEvent
		err = json.Unmarshal(data, &e)
		if err == nil && e.Phase != PhaseRunning && e.Phase != PhaseDone && e.Phase != PhaseError {
			err = fmt.Errorf("unknown status phase %q", e.Phase)
		}
		ev = e
	case TagMessage:
		var e MessageEvent
		err = json.Unmarshal(data, &e)
		ev = e
	case TagMessageWithArtifact:
		var e ArtifactMessageEvent
		err = json.Unmarshal(data, &e)
		if err == nil && len(e.Artifact.Exercises) == 0 {
			err = errors.New("artifact has no exercises")
		}
		ev = e
	case TagQuestion:
		var e QuestionEvent
		err = json.Unmarshal(data, &e)
		ev = e
	case TagExercises:
		var e ExercisesEvent
		err = json.Unmarshal(data, &e)
		ev = e
	case TagDone:
		var e DoneEvent
		err = json.Unmarshal(data, &e)
		ev = e
	case TagError:
		var e ErrorEvent
		err = json.Unmarshal(data, &e)
		ev = e
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, head.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedEvent, head.Type, err)
	}
	return ev, nil
}

// Encode writes e as a wire envelope.
func Encode(e Event) ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", e.Tag(), err)
	}
	var buf bytes.Buffer
	buf.WriteString(`{"type":`)
	tag, _ := json.Marshal(e.Tag())
	buf.Write(tag)
	if len(body) > 2 {
		buf.WriteByte(',')
		buf.Write(body[1:])
	} else {
		buf.WriteByte('}')
	}
	return buf.Bytes(), nil
}
