package goals

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"github.com/YisroelArnson/AI-PERSONAL-TRAINER-sub011/internal/store"
)

type upsertCall struct {
	table string
	key   store.Key
	// weight as persisted
	weight float64
}

// recorder stores upserts in memory and fails subjects listed in fail.
type recorder struct {
	mu    sync.Mutex
	calls []upsertCall
	fail  map[string]bool
}

func (r *recorder) Upsert(_ context.Context, table string, key store.Key, fields store.Fields) error {
	if r.fail[key.Subject] {
		return errors.New("database is locked")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, upsertCall{table: table, key: key, weight: fields["weight"].(float64)})
	return nil
}

func TestExecuteClampsPersistedWeightAndEchoesRequest(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	ex := NewExecutor(rec, nil)

	res := ex.Execute(context.Background(), "u1", []CategoryGoal{{Category: "strength", Weight: 15}}, nil)

	require.True(t, res.Success)
	require.Equal(t, []CategoryGoal{{Category: "strength", Weight: 15}}, res.Updated.CategoryGoals)
	require.Empty(t, res.Updated.MuscleGoals)
	require.Empty(t, res.Failed)
	require.Equal(t, "Updated goals - Categories: strength(15); Muscles: none", res.Summary)

	require.Len(t, rec.calls, 1)
	require.Equal(t, store.TableCategoryGoals, rec.calls[0].table)
	require.Equal(t, store.Key{UserID: "u1", Subject: "strength"}, rec.calls[0].key)
	require.InDelta(t, 10, rec.calls[0].weight, 1e-9)
}

func TestExecuteReportsPartialFailures(t *testing.T) {
	t.Parallel()
	rec := &recorder{fail: map[string]bool{"Chest": true}}
	ex := NewExecutor(rec, nil)

	res := ex.Execute(context.Background(), "u1",
		[]CategoryGoal{{Category: "endurance", Weight: -12.5}, {Category: " ", Weight: 1}},
		[]MuscleGoal{{Muscle: "Chest", Weight: 3}, {Muscle: "Glutes", Weight: 2.5}},
	)

	require.True(t, res.Success)
	require.Equal(t, []CategoryGoal{{Category: "endurance", Weight: -12.5}}, res.Updated.CategoryGoals)
	require.Equal(t, []MuscleGoal{{Muscle: "Glutes", Weight: 2.5}}, res.Updated.MuscleGoals)
	require.Len(t, res.Failed, 2)
	require.Equal(t, KindCategory, res.Failed[0].Kind)
	require.Equal(t, "name is required", res.Failed[0].Reason)
	require.Equal(t, KindMuscle, res.Failed[1].Kind)
	require.Equal(t, "Chest", res.Failed[1].Subject)
	require.Equal(t, "Updated goals - Categories: endurance(-12.5); Muscles: Glutes(2.5)", res.Summary)

	require.Len(t, rec.calls, 2)
	require.InDelta(t, -10, rec.calls[0].weight, 1e-9)
	require.Equal(t, store.TableMuscleGoals, rec.calls[1].table)
}

func TestExecuteKeepsCallOrderForRepeatedSubjects(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	ex := NewExecutor(rec, nil)

	ex.Execute(context.Background(), "u1", []CategoryGoal{
		{Category: "strength", Weight: 2},
		{Category: "mobility", Weight: 1},
		{Category: "strength", Weight: 7},
	}, nil)

	require.Len(t, rec.calls, 3)
	require.Equal(t, "strength", rec.calls[2].key.Subject)
	require.InDelta(t, 7, rec.calls[2].weight, 1e-9)
}

func TestExecuteAgainstSQLite(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, err := store.NewSQLite(t.TempDir() + "/goals.db")
	require.NoError(t, err)
	defer s.Close()

	res := NewExecutor(s, nil).Execute(ctx, "u1",
		[]CategoryGoal{{Category: "strength", Weight: 15}, {Category: "strength", Weight: 4}},
		[]MuscleGoal{{Muscle: "Back", Weight: -30}},
	)
	require.Len(t, res.Updated.CategoryGoals, 2)

	cats, err := s.ListGoals(ctx, store.TableCategoryGoals, "u1")
	require.NoError(t, err)
	require.Len(t, cats, 1)
	require.InDelta(t, 4, cats[0].Weight, 1e-9)

	muscles, err := s.ListGoals(ctx, store.TableMuscleGoals, "u1")
	require.NoError(t, err)
	require.Len(t, muscles, 1)
	require.InDelta(t, -10, muscles[0].Weight, 1e-9)
}

func TestClampWeightProperties(t *testing.T) {
	t.Parallel()
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("clamped weight stays in bounds", prop.ForAll(
		func(w float64) bool {
			c := ClampWeight(w)
			return c >= MinWeight && c <= MaxWeight
		},
		gen.Float64Range(-1e6, 1e6),
	))

	properties.Property("in-range weights are unchanged", prop.ForAll(
		func(w float64) bool {
			return ClampWeight(w) == w
		},
		gen.Float64Range(MinWeight, MaxWeight),
	))

	properties.Property("clamping is idempotent", prop.ForAll(
		func(w float64) bool {
			return ClampWeight(ClampWeight(w)) == ClampWeight(w)
		},
		gen.Float64Range(-100, 100),
	))

	properties.TestingRun(t)

	require.Equal(t, MaxWeight, ClampWeight(math.Inf(1)))
	require.Equal(t, MinWeight, ClampWeight(math.Inf(-1)))
}

func TestSummaryFormatting(t *testing.T) {
	t.Parallel()
	require.Equal(t, "Updated goals - Categories: none; Muscles: none", Summary(Updated{}))
	require.Equal(t,
		"Updated goals - Categories: strength(10), endurance(0.5); Muscles: Lower Back(-3)",
		Summary(Updated{
			CategoryGoals: []CategoryGoal{{"strength", 10}, {"endurance", 0.5}},
			MuscleGoals:   []MuscleGoal{{"Lower Back", -3}},
		}))
}

func TestParseArgs(t *testing.T) {
	t.Parallel()

	args, err := ParseArgs([]byte(`{"category_goals":[{"category":"strength","weight":15}],"muscle_goals":[{"muscle":"Chest","weight":-2}]}`))
	require.NoError(t, err)
	require.Equal(t, Args{
		CategoryGoals: []CategoryGoal{{Category: "strength", Weight: 15}},
		MuscleGoals:   []MuscleGoal{{Muscle: "Chest", Weight: -2}},
	}, args)

	args, err = ParseArgs([]byte(`{}`))
	require.NoError(t, err)
	require.Empty(t, args.CategoryGoals)

	for _, bad := range []string{
		`{"category_goals":[{"category":"strength"}]}`,
		`{"category_goals":[{"category":"strength","weight":"high"}]}`,
		`{"muscle_goals":[{"muscle":"","weight":1}]}`,
		`{"goals":[]}`,
		`[1,2]`,
		`not json`,
	} {
		_, err := ParseArgs([]byte(bad))
		require.ErrorIs(t, err, ErrInvalidArgs, bad)
	}
}
