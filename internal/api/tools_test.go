package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/YisroelArnson/AI-PERSONAL-TRAINER-sub011/internal/goals"
	"github.com/YisroelArnson/AI-PERSONAL-TRAINER-sub011/internal/identity"
	"github.com/YisroelArnson/AI-PERSONAL-TRAINER-sub011/internal/store"
)

func newGoalsRouter(t *testing.T) chi.Router {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "goals.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	h := NewGoalsHandler(NewHandler(nil), goals.NewExecutor(s, nil), s)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(identity.WithUserID(r.Context(), "trainee_goals")))
		})
	})
	h.RegisterRoutes(r)
	return r
}

func TestSetGoalsThenList(t *testing.T) {
	r := newGoalsRouter(t)

	body := `{
		"category_goals": [{"category": "strength", "weight": 15}],
		"muscle_goals": [{"muscle": "Glutes", "weight": -3}]
	}`
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/tools/set-goals", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	var res goals.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.True(t, res.Success)
	require.Empty(t, res.Failed)
	require.Equal(t, []goals.CategoryGoal{{Category: "strength", Weight: 15}}, res.Updated.CategoryGoals)
	require.Equal(t, "Updated goals - Categories: strength(15); Muscles: Glutes(-3)", res.Summary)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/goals", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var listed GoalsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed.CategoryGoals, 1)
	require.Equal(t, 10.0, listed.CategoryGoals[0].Weight)
	require.Len(t, listed.MuscleGoals, 1)
	require.Equal(t, "Glutes", listed.MuscleGoals[0].Subject)
}

func TestSetGoalsRejectsBadArguments(t *testing.T) {
	r := newGoalsRouter(t)

	for _, body := range []string{`not json`, `{"bogus": true}`, `{"category_goals": [{"category": "x"}]}`} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/tools/set-goals", strings.NewReader(body)))
		require.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestGoalsRequireIdentity(t *testing.T) {
	h := NewGoalsHandler(NewHandler(nil), nil, nil)

	rec := httptest.NewRecorder()
	h.ListGoals(rec, httptest.NewRequest(http.MethodGet, "/api/goals", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	h.SetGoals(rec, httptest.NewRequest(http.MethodPost, "/api/tools/set-goals", strings.NewReader(`{}`)))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
