package conversation

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/YisroelArnson/AI-PERSONAL-TRAINER-sub011/internal/domain"
	"github.com/YisroelArnson/AI-PERSONAL-TRAINER-sub011/internal/stream"
	"github.com/YisroelArnson/AI-PERSONAL-TRAINER-sub011/internal/workout"
)

var (
	// ErrTurnInProgress is returned by Send while a turn is still streaming.
	ErrTurnInProgress = errors.New("a response is still streaming")
	// ErrClosed is returned after the coordinator has been closed.
	ErrClosed = errors.New("conversation closed")
	// ErrNoArtifact is returned when a message has no workout attached.
	ErrNoArtifact = errors.New("message has no workout artifact")
	// ErrEmptyMessage is returned by Send for blank input.
	ErrEmptyMessage = errors.New("message is empty")
)

const (
	// DefaultTurnTimeout bounds a turn whose stream never terminates.
	DefaultTurnTimeout = 2 * time.Minute

	timeoutMessage   = "The trainer took too long to respond. Please try again."
	cancelledMessage = "Request cancelled."
	truncatedMessage = "The response ended unexpectedly."
	transportMessage = "Lost connection to the trainer. Please try again."
)

// Turn is one user message handed to the agent.
type Turn struct {
	SessionID string
	Text      string
}

// Streamer produces the ordered event sequence for a turn. It must stop
// yielding once ctx is done.
type Streamer interface {
	Stream(ctx context.Context, turn Turn) iter.Seq2[stream.Event, error]
}

// StreamerFunc adapts a function to Streamer.
type StreamerFunc func(ctx context.Context, turn Turn) iter.Seq2[stream.Event, error]

func (f StreamerFunc) Stream(ctx context.Context, turn Turn) iter.Seq2[stream.Event, error] {
	return f(ctx, turn)
}

// Options configures a Coordinator. Zero values select defaults.
type Options struct {
	// Timeout bounds each turn; DefaultTurnTimeout when zero.
	Timeout time.Duration
	// Workout receives applied artifacts; an in-memory store when nil.
	Workout workout.ActiveWorkout
	Logger  *slog.Logger
	Tracer  trace.Tracer
}

// Coordinator is the single owner of one conversation session. Every
// mutation goes through it and is applied under its lock, one at a time.
type Coordinator struct {
	source  Streamer
	workout workout.ActiveWorkout
	timeout time.Duration
	logger  *slog.Logger
	tracer  trace.Tracer

	mu      sync.Mutex
	machine *Machine
	// gen increments whenever the in-flight turn is abandoned; events from
	// older generations are dropped.
	gen     uint64
	cancel  context.CancelFunc
	closed  bool
	subs    map[int]chan domain.SessionState
	nextSub int

	wg sync.WaitGroup
}

// New creates a session in the idle phase.
func New(source Streamer, opts Options) *Coordinator {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTurnTimeout
	}
	if opts.Workout == nil {
		opts.Workout = workout.NewMemoryWorkout()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("github.com/YisroelArnson/AI-PERSONAL-TRAINER-sub011/internal/conversation")
	}
	return &Coordinator{
		source:  source,
		workout: opts.Workout,
		timeout: opts.Timeout,
		logger:  opts.Logger,
		tracer:  opts.Tracer,
		machine: NewMachine(),
		subs:    make(map[int]chan domain.SessionState),
	}
}

// Workout returns the store artifacts are applied to.
func (c *Coordinator) Workout() workout.ActiveWorkout {
	return c.workout
}

// Snapshot returns a deep copy of the session state.
func (c *Coordinator) Snapshot() domain.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.State()
}

// Subscribe returns a channel that receives the latest state after every
// change. A slow reader only ever sees the most recent snapshot. The
// returned func unsubscribes; the channel is also closed by Close.
func (c *Coordinator) Subscribe() (<-chan domain.SessionState, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan domain.SessionState, 1)
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- c.machine.State()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if _, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(ch)
			}
		})
	}
}

// publishLocked must be called with c.mu held.
func (c *Coordinator) publishLocked() {
	if len(c.subs) == 0 {
		return
	}
	snap := c.machine.State()
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

// Send records text as a user message and starts an agent turn. It
// returns ErrTurnInProgress while a previous turn is still streaming. The
// turn keeps ctx's values but not its cancellation; use Cancel to stop it.
func (c *Coordinator) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.machine.state.IsProcessing {
		return ErrTurnInProgress
	}

	c.machine.AddUserMessage(text)
	c.machine.StartStreamingMessage()
	c.gen++
	gen := c.gen
	turnCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	c.cancel = cancel
	turn := Turn{SessionID: c.machine.state.SessionID, Text: text}
	c.publishLocked()

	c.wg.Add(1)
	go c.run(turnCtx, cancel, gen, turn)
	return nil
}

func (c *Coordinator) run(ctx context.Context, cancel context.CancelFunc, gen uint64, turn Turn) {
	defer c.wg.Done()
	defer cancel()

	ctx, span := c.tracer.Start(ctx, "conversation.turn", trace.WithAttributes(
		attribute.String("session_id", turn.SessionID),
		attribute.Int("message_length", len(turn.Text)),
	))
	defer span.End()

	events := 0
	for ev, err := range c.source.Stream(ctx, turn) {
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, stream.ErrMalformedEvent) || errors.Is(err, stream.ErrUnknownEvent) {
				c.logger.Warn("skipping malformed stream event", "session_id", turn.SessionID, "error", err)
				continue
			}
			c.logger.Error("agent stream failed", "session_id", turn.SessionID, "error", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "transport error")
			c.apply(gen, stream.Fail{Message: transportMessage})
			return
		}
		events++
		if !c.apply(gen, stream.Classify(ev)) {
			span.SetAttributes(attribute.Bool("abandoned", true))
			return
		}
		if stream.Terminal(ev) {
			if e, ok := ev.(stream.ErrorEvent); ok {
				span.SetStatus(codes.Error, e.Message)
			}
			span.SetAttributes(attribute.Int("events", events))
			return
		}
	}

	// The stream ended without done or error.
	msg := truncatedMessage
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		msg = timeoutMessage
		c.logger.Warn("agent turn timed out", "session_id", turn.SessionID, "timeout", c.timeout)
	case ctx.Err() != nil:
		msg = cancelledMessage
	default:
		c.logger.Warn("agent stream ended without a terminal event", "session_id", turn.SessionID, "events", events)
	}
	span.SetStatus(codes.Error, msg)
	c.apply(gen, stream.Fail{Message: msg})
}

// apply folds mu into the state if gen is still current.
func (c *Coordinator) apply(gen uint64, mu stream.Mutation) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.closed {
		c.logger.Debug("dropping event for abandoned turn", "mutation", fmt.Sprintf("%T", mu))
		return false
	}
	if a, ok := mu.(stream.AttachArtifact); ok {
		if !c.machine.UpdateStreamingContentWithArtifact(a.Content, a.Artifact) {
			c.logger.Warn("ignoring additional artifact on message", "artifact_id", a.Artifact.ArtifactID)
		}
	} else {
		c.machine.Apply(mu)
	}
	c.publishLocked()
	return true
}

// abandonLocked stops the in-flight turn and invalidates its events.
func (c *Coordinator) abandonLocked() {
	c.gen++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// Cancel aborts the in-flight turn and finalizes its message with an
// error. It reports whether a turn was running.
func (c *Coordinator) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || !c.machine.state.IsProcessing {
		return false
	}
	c.abandonLocked()
	c.machine.Apply(stream.Fail{Message: cancelledMessage})
	c.publishLocked()
	return true
}

// Reset abandons any in-flight turn and discards the session, as on
// logout or when starting a new conversation.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.abandonLocked()
	c.machine.Reset()
	c.publishLocked()
}

// Close tears the session down: the in-flight turn is cancelled and
// waited for, subscribers are released, and later sends fail with ErrClosed.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.abandonLocked()
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	c.mu.Unlock()

	c.wg.Wait()
}

// Wait blocks until no turn goroutine is running.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// OverlayAction is a presentation-driven phase transition.
type OverlayAction string

const (
	ActionOpen         OverlayAction = "open"
	ActionClose        OverlayAction = "close"
	ActionMinimize     OverlayAction = "minimize"
	ActionExpand       OverlayAction = "expand"
	ActionCollapse     OverlayAction = "collapse"
	ActionDismissError OverlayAction = "dismiss-error"
)

// ParseOverlayAction validates a path or flag value.
func ParseOverlayAction(s string) (OverlayAction, error) {
	switch a := OverlayAction(s); a {
	case ActionOpen, ActionClose, ActionMinimize, ActionExpand, ActionCollapse, ActionDismissError:
		return a, nil
	}
	return "", fmt.Errorf("unknown overlay action %q", s)
}

// Overlay applies a phase transition and returns the resulting state.
// Transitions that do not apply to the current phase leave it unchanged.
func (c *Coordinator) Overlay(action OverlayAction) (domain.SessionState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return domain.SessionState{}, ErrClosed
	}
	switch action {
	case ActionOpen:
		c.machine.Open()
	case ActionClose:
		c.machine.Close()
	case ActionMinimize:
		c.machine.Minimize()
	case ActionExpand:
		c.machine.Expand()
	case ActionCollapse:
		c.machine.Collapse()
	case ActionDismissError:
		c.machine.DismissError()
	default:
		return domain.SessionState{}, fmt.Errorf("unknown overlay action %q", action)
	}
	c.publishLocked()
	return c.machine.State(), nil
}

// SetInputText stores the draft the user is typing.
func (c *Coordinator) SetInputText(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.machine.SetInputText(text)
	c.publishLocked()
	return nil
}

// ApplyArtifact applies the workout attached to messageID to the active
// workout using verb.
func (c *Coordinator) ApplyArtifact(ctx context.Context, messageID string, verb workout.Verb) (workout.Artifact, error) {
	c.mu.Lock()
	a, ok := c.machine.Artifact(messageID)
	c.mu.Unlock()
	if !ok {
		return workout.Artifact{}, fmt.Errorf("%w: %s", ErrNoArtifact, messageID)
	}
	if err := workout.Apply(ctx, c.workout, verb, a); err != nil {
		return workout.Artifact{}, fmt.Errorf("apply artifact %s: %w", a.ArtifactID, err)
	}
	c.logger.Info("applied workout artifact", "artifact_id", a.ArtifactID, "verb", verb, "exercises", len(a.Exercises))
	return a, nil
}
