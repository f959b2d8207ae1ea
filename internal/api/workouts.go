package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/YisroelArnson/AI-PERSONAL-TRAINER-sub011/internal/stream"
	"github.com/YisroelArnson/AI-PERSONAL-TRAINER-sub011/internal/workout"
)

// WorkoutReader exposes the active workout.
type WorkoutReader interface {
	Exercises() []workout.Exercise
	Sources() []string
}

// WorkoutHandler serves workout validation and the active workout.
type WorkoutHandler struct {
	*Handler
	active WorkoutReader
}

// ValidationResponse is returned for a valid workout payload.
type ValidationResponse struct {
	Valid   bool              `json:"valid"`
	Workout *workout.Response `json:"workout,omitempty"`
	Issues  []workout.Issue   `json:"issues,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// ActiveWorkoutResponse is the workout the user is doing now.
type ActiveWorkoutResponse struct {
	Exercises workout.Exercises `json:"exercises"`
	Sources   []string          `json:"sources"`
}

// NewWorkoutHandler creates a workout handler.
func NewWorkoutHandler(base *Handler, active WorkoutReader) *WorkoutHandler {
	return &WorkoutHandler{Handler: base, active: active}
}

// RegisterRoutes registers workout routes.
func (h *WorkoutHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/workouts/validate", h.Validate)
	r.Post("/api/workouts/artifact", h.Artifact)
	r.Get("/api/workouts/schema", h.Schema)
	r.Get("/api/workout", h.Active)
}

// Validate checks a WorkoutResponse payload and reports every issue found.
// A payload must also match the published schema to count as valid.
func (h *WorkoutHandler) Validate(w http.ResponseWriter, r *http.Request) {
	raw, ok := readBody(w, r)
	if !ok {
		return
	}

	resp, err := workout.Validate(raw)
	if err == nil {
		err = workout.ConformsToSchema(raw)
	}
	if err != nil {
		h.rejectWorkout(w, err)
		return
	}
	JSON(w, http.StatusOK, ValidationResponse{Valid: true, Workout: resp})
}

// Artifact wraps a valid WorkoutResponse in the messageWithArtifact event the
// agent streams to the client. The optional content query parameter becomes
// the event's message text.
func (h *WorkoutHandler) Artifact(w http.ResponseWriter, r *http.Request) {
	raw, ok := readBody(w, r)
	if !ok {
		return
	}

	ev, err := stream.NewArtifactEvent(r.URL.Query().Get("content"), raw)
	if err != nil {
		h.rejectWorkout(w, err)
		return
	}
	data, err := stream.Encode(ev)
	if err != nil {
		h.logger.Error("Failed to encode artifact event", "error", err)
		Error(w, http.StatusInternalServerError, "failed to encode artifact")
		return
	}
	h.logger.Info("Artifact built", "artifact_id", ev.Artifact.ArtifactID, "exercises", len(ev.Artifact.Exercises))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Warn("failed to write artifact event", "error", err)
	}
}

// rejectWorkout answers 422 for validation or schema failures.
func (h *WorkoutHandler) rejectWorkout(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, workout.ErrInvalidWorkout):
		h.logger.Debug("Workout rejected", "issues", len(workout.Issues(err)))
		JSON(w, http.StatusUnprocessableEntity, ValidationResponse{
			Issues: workout.Issues(err),
			Error:  err.Error(),
		})
	case errors.Is(err, workout.ErrSchemaMismatch):
		h.logger.Debug("Workout does not match schema", "error", err)
		JSON(w, http.StatusUnprocessableEntity, ValidationResponse{Error: err.Error()})
	default:
		Error(w, http.StatusBadRequest, err.Error())
	}
}

// Schema returns the WorkoutResponse JSON schema.
func (h *WorkoutHandler) Schema(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/schema+json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(workout.JSONSchema()); err != nil {
		h.logger.Warn("failed to write workout schema", "error", err)
	}
}

// Active returns the active workout.
func (h *WorkoutHandler) Active(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, ActiveWorkoutResponse{
		Exercises: h.active.Exercises(),
		Sources:   h.active.Sources(),
	})
}
