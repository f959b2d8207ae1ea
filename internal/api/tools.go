package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/YisroelArnson/AI-PERSONAL-TRAINER-sub011/internal/goals"
	"github.com/YisroelArnson/AI-PERSONAL-TRAINER-sub011/internal/identity"
	"github.com/YisroelArnson/AI-PERSONAL-TRAINER-sub011/internal/store"
)

// GoalsHandler serves the goal tool and goal reads.
type GoalsHandler struct {
	*Handler
	exec   *goals.Executor
	reader store.GoalReader
}

// GoalsResponse lists a user's stored goals.
type GoalsResponse struct {
	CategoryGoals []store.Goal `json:"category_goals"`
	MuscleGoals   []store.Goal `json:"muscle_goals"`
}

// NewGoalsHandler creates a goals handler.
func NewGoalsHandler(base *Handler, exec *goals.Executor, reader store.GoalReader) *GoalsHandler {
	return &GoalsHandler{Handler: base, exec: exec, reader: reader}
}

// RegisterRoutes registers goal routes.
func (h *GoalsHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/tools/set-goals", h.SetGoals)
	r.Get("/api/goals", h.ListGoals)
}

// SetGoals executes a set_goals tool call for the current user. The body is
// the tool's argument object. Per-entry failures are reported in the result,
// not as an HTTP error.
func (h *GoalsHandler) SetGoals(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	raw, ok := readBody(w, r)
	if !ok {
		return
	}
	args, err := goals.ParseArgs(raw)
	if err != nil {
		if errors.Is(err, goals.ErrInvalidArgs) {
			Error(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("Failed to parse goal tool arguments", "error", err)
		Error(w, http.StatusInternalServerError, "failed to parse arguments")
		return
	}

	res := h.exec.Execute(r.Context(), userID, args.CategoryGoals, args.MuscleGoals)
	h.logger.Info("Goal tool executed",
		"user_id", userID,
		"categories", len(res.Updated.CategoryGoals),
		"muscles", len(res.Updated.MuscleGoals),
		"failed", len(res.Failed),
	)
	JSON(w, http.StatusOK, res)
}

// ListGoals returns the current user's stored goals.
func (h *GoalsHandler) ListGoals(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var resp GoalsResponse
	for table, dst := range map[string]*[]store.Goal{
		store.TableCategoryGoals: &resp.CategoryGoals,
		store.TableMuscleGoals:   &resp.MuscleGoals,
	} {
		list, err := h.reader.ListGoals(r.Context(), table, userID)
		if err != nil {
			h.logger.Error("Failed to list goals", "error", err, "table", table, "user_id", userID)
			Error(w, http.StatusInternalServerError, "failed to list goals")
			return
		}
		*dst = list
	}
	JSON(w, http.StatusOK, resp)
}
