package workout

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func artifact(t *testing.T, exercises ...string) Artifact {
	t.Helper()
	resp, err := ValidateValue(response(t, exercises...))
	require.NoError(t, err)
	return NewArtifact(resp)
}

func TestApplyStartReplacesAndAddAppends(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryWorkout()

	first := artifact(t, repsJSON, holdJSON)
	second := artifact(t, intervalsJSON)
	require.NotEqual(t, first.ArtifactID, second.ArtifactID)

	require.NoError(t, Apply(ctx, store, VerbStart, first))
	require.Len(t, store.Exercises(), 2)

	require.NoError(t, Apply(ctx, store, VerbAdd, second))
	got := store.Exercises()
	require.Len(t, got, 3)
	require.Equal(t, "Bike Sprints", got[2].Base().Name)
	// holdJSON has order 2, so the appended exercise (order 4) becomes 6.
	require.Equal(t, 6, got[2].Base().Order)
	require.Equal(t, []string{first.ArtifactID, second.ArtifactID}, store.Sources())

	require.NoError(t, Apply(ctx, store, VerbReplace, second))
	got = store.Exercises()
	require.Len(t, got, 1)
	require.Equal(t, 4, got[0].Base().Order)

	// The artifact is not mutated by applying it.
	require.Equal(t, 4, second.Exercises[0].Base().Order)
}

func TestApplyUnknownVerb(t *testing.T) {
	t.Parallel()

	_, err := ParseVerb("delete")
	require.Error(t, err)
	v, err := ParseVerb("add")
	require.NoError(t, err)
	require.Equal(t, VerbAdd, v)

	require.Error(t, Apply(context.Background(), NewMemoryWorkout(), Verb("delete"), Artifact{}))
}

func TestCloneIsDeep(t *testing.T) {
	t.Parallel()

	a := artifact(t, repsJSON)
	orig := a.Exercises[0].(*Reps)
	cp := Clone(orig).(*Reps)

	cp.Reps[0] = 99
	*cp.LoadEach[0] = 1
	*cp.Group.Rounds = 10
	cp.MusclesUtilized[0].Share = 0

	require.Equal(t, 5, orig.Reps[0])
	require.InDelta(t, 135, *orig.LoadEach[0], 1e-9)
	require.Equal(t, 3, *orig.Group.Rounds)
	require.InDelta(t, 0.6, orig.MusclesUtilized[0].Share, 1e-9)
}

func TestSchemaAcceptsValidatedPayloads(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{repsJSON, holdJSON, durationJSON, intervalsJSON, emptyOptionalsJSON} {
		require.NoError(t, ConformsToSchema([]byte(`{"exercises": [`+raw+`]}`)))
	}

	require.ErrorIs(t, ConformsToSchema([]byte(`{"exercises": [{"exercise_type": "yoga"}]}`)), ErrSchemaMismatch)
	require.ErrorIs(t, ConformsToSchema([]byte(`{"exercises": `)), ErrSchemaMismatch)

	// Validate reads a null optional as absent; the published schema does not.
	withNull := strings.Replace(durationJSON, `"distance": 5`, `"distance": null`, 1)
	_, err := Validate([]byte(`{"exercises": [` + withNull + `]}`))
	require.NoError(t, err)
	require.ErrorIs(t, ConformsToSchema([]byte(`{"exercises": [`+withNull+`]}`)), ErrSchemaMismatch)
}

func TestJSONSchemaIsACopy(t *testing.T) {
	t.Parallel()

	s := JSONSchema()
	require.True(t, json.Valid(s))
	s[0] = 'X'
	require.Equal(t, byte('{'), JSONSchema()[0])
}
