package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/YisroelArnson/AI-PERSONAL-TRAINER-sub011/internal/stream"
	"github.com/YisroelArnson/AI-PERSONAL-TRAINER-sub011/internal/workout"
)

const lungeWorkout = `{
	"exercises": [{
		"exercise_type": "reps",
		"exercise_name": "Walking Lunge",
		"order": 1,
		"muscles_utilized": [{"muscle": "Quadriceps", "share": 0.5}, {"muscle": "Glutes", "share": 0.5}],
		"goals_addressed": [],
		"reasoning": "Unilateral work.",
		"sets": 2,
		"reps": [10, 10],
		"rest_sec": 60
	}]
}`

func newWorkoutRouter(active WorkoutReader) chi.Router {
	r := chi.NewRouter()
	NewWorkoutHandler(NewHandler(nil), active).RegisterRoutes(r)
	return r
}

func TestValidateWorkout(t *testing.T) {
	r := newWorkoutRouter(workout.NewMemoryWorkout())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/workouts/validate", strings.NewReader(lungeWorkout)))
	require.Equal(t, http.StatusOK, rec.Code)
	var ok ValidationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ok))
	require.True(t, ok.Valid)
	require.Empty(t, ok.Issues)

	bad := strings.Replace(lungeWorkout, `"share": 0.5}, {"muscle": "Glutes", "share": 0.5}`, `"share": 0.5}, {"muscle": "Glutes", "share": 0.2}`, 1)
	bad = strings.Replace(bad, `"sets": 2`, `"sets": 0`, 1)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/workouts/validate", strings.NewReader(bad)))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var rejected ValidationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rejected))
	require.False(t, rejected.Valid)
	kinds := map[workout.IssueKind]bool{}
	for _, is := range rejected.Issues {
		kinds[is.Kind] = true
	}
	require.True(t, kinds[workout.ShareSumMismatch])
	require.True(t, kinds[workout.FieldViolation])
}

func TestValidateWorkoutChecksSchema(t *testing.T) {
	r := newWorkoutRouter(workout.NewMemoryWorkout())

	// Accepted by the validator, which treats null as absent, but not by the schema.
	withNull := strings.Replace(lungeWorkout, `"rest_sec": 60`, `"rest_sec": 60, "load_unit": null`, 1)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/workouts/validate", strings.NewReader(withNull)))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var rejected ValidationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rejected))
	require.False(t, rejected.Valid)
	require.Empty(t, rejected.Issues)
	require.Contains(t, rejected.Error, "does not match schema")

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/workouts/validate", strings.NewReader(`{"exercises": `)))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rejected))
	require.Equal(t, "$", rejected.Issues[0].Path)
}

func TestWorkoutArtifact(t *testing.T) {
	r := newWorkoutRouter(workout.NewMemoryWorkout())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/workouts/artifact?content=Leg+day", strings.NewReader(lungeWorkout)))
	require.Equal(t, http.StatusOK, rec.Code)

	ev, err := stream.Decode(rec.Body.Bytes())
	require.NoError(t, err)
	art, ok := ev.(stream.ArtifactMessageEvent)
	require.True(t, ok)
	require.Equal(t, "Leg day", art.Content)
	require.NotEmpty(t, art.Artifact.ArtifactID)
	require.Len(t, art.Artifact.Exercises, 1)

	bad := strings.Replace(lungeWorkout, `"sets": 2`, `"sets": 0`, 1)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/workouts/artifact", strings.NewReader(bad)))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var rejected ValidationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rejected))
	require.NotEmpty(t, rejected.Issues)
}

func TestWorkoutSchema(t *testing.T) {
	r := newWorkoutRouter(workout.NewMemoryWorkout())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/workouts/schema", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/schema+json", rec.Header().Get("Content-Type"))
	require.JSONEq(t, string(workout.JSONSchema()), rec.Body.String())
}

func TestActiveWorkout(t *testing.T) {
	resp, err := workout.Validate([]byte(lungeWorkout))
	require.NoError(t, err)
	a := workout.NewArtifact(resp)

	active := workout.NewMemoryWorkout()
	require.NoError(t, workout.Apply(context.Background(), active, workout.VerbStart, a))

	rec := httptest.NewRecorder()
	newWorkoutRouter(active).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/workout", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got ActiveWorkoutResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Exercises, 1)
	require.Equal(t, "Walking Lunge", got.Exercises[0].Base().Name)
	require.Equal(t, []string{a.ArtifactID}, got.Sources)
}
