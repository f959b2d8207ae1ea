package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "nested", "trainer.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteUpsertLastWriteWins(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestSQLite(t)

	require.NoError(t, s.Upsert(ctx, TableCategoryGoals, Key{UserID: "u1", Subject: "strength"}, Fields{"weight": 4.0}))
	require.NoError(t, s.Upsert(ctx, TableCategoryGoals, Key{UserID: "u1", Subject: "endurance"}, Fields{"weight": -2}))
	require.NoError(t, s.Upsert(ctx, TableCategoryGoals, Key{UserID: "u1", Subject: "strength"}, Fields{"weight": 10.0}))
	require.NoError(t, s.Upsert(ctx, TableCategoryGoals, Key{UserID: "u2", Subject: "strength"}, Fields{"weight": 1.5}))

	goals, err := s.ListGoals(ctx, TableCategoryGoals, "u1")
	require.NoError(t, err)
	require.Len(t, goals, 2)
	require.Equal(t, "endurance", goals[0].Subject)
	require.InDelta(t, -2, goals[0].Weight, 1e-9)
	require.Equal(t, "strength", goals[1].Subject)
	require.InDelta(t, 10, goals[1].Weight, 1e-9)
	require.False(t, goals[1].UpdatedAt.IsZero())

	// Tables are independent.
	muscles, err := s.ListGoals(ctx, TableMuscleGoals, "u1")
	require.NoError(t, err)
	require.Empty(t, muscles)
}

func TestSQLiteRejectsUnknownTablesAndFields(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestSQLite(t)

	err := s.Upsert(ctx, "users; DROP TABLE muscle_goals", Key{UserID: "u1", Subject: "x"}, Fields{"weight": 1.0})
	require.ErrorIs(t, err, ErrUnknownTable)

	err = s.Upsert(ctx, TableMuscleGoals, Key{UserID: "u1", Subject: "Chest"}, Fields{"priority": 1.0})
	require.ErrorIs(t, err, ErrUnknownField)

	require.Error(t, s.Upsert(ctx, TableMuscleGoals, Key{UserID: "u1", Subject: "Chest"}, Fields{"weight": "heavy"}))
	require.Error(t, s.Upsert(ctx, TableMuscleGoals, Key{Subject: "Chest"}, Fields{"weight": 1.0}))

	_, err = s.ListGoals(ctx, "sessions", "u1")
	require.ErrorIs(t, err, ErrUnknownTable)
}

func TestSQLiteReopenKeepsData(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "trainer.db")

	s, err := NewSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.Upsert(ctx, TableMuscleGoals, Key{UserID: "u1", Subject: "Chest"}, Fields{"weight": 3}))
	require.NoError(t, s.Close())

	_, err = os.Stat(path)
	require.NoError(t, err)

	s, err = NewSQLite(path)
	require.NoError(t, err)
	defer s.Close()
	goals, err := s.ListGoals(ctx, TableMuscleGoals, "u1")
	require.NoError(t, err)
	require.Len(t, goals, 1)
	require.InDelta(t, 3, goals[0].Weight, 1e-9)
}
