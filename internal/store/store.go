// Package store provides goal persistence: a generic per-table upsert keyed
// on (user, subject) and the matching reads, backed by SQLite or Redis.
package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"
)

// Goal tables.
const (
	TableCategoryGoals = "category_goals"
	TableMuscleGoals   = "muscle_goals"
)

var (
	// ErrUnknownTable is returned for a table outside the goal tables.
	ErrUnknownTable = errors.New("unknown table")
	// ErrUnknownField is returned for a field the table does not define.
	ErrUnknownField = errors.New("unknown field")
)

// Key identifies one row: last write for the same key wins.
type Key struct {
	UserID  string
	Subject string
}

// Fields are the column values written by an upsert.
type Fields map[string]any

// Goal is a stored goal row.
type Goal struct {
	Subject   string    `json:"subject"`
	Weight    float64   `json:"weight"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Upserter writes one row per key, replacing the given fields on conflict.
type Upserter interface {
	Upsert(ctx context.Context, table string, key Key, fields Fields) error
}

// GoalReader lists a user's goals in one table, ordered by subject.
type GoalReader interface {
	ListGoals(ctx context.Context, table, userID string) ([]Goal, error)
}

// Store is a complete goal backend.
type Store interface {
	Upserter
	GoalReader

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend connection.
	Close() error
}

type tableDef struct {
	subject string
	fields  []string
}

var tables = map[string]tableDef{
	TableCategoryGoals: {subject: "category", fields: []string{"weight"}},
	TableMuscleGoals:   {subject: "muscle", fields: []string{"weight"}},
}

// lookup validates table and fields and returns the field names sorted.
func lookup(table string, fields Fields) (tableDef, []string, error) {
	def, ok := tables[table]
	if !ok {
		return tableDef{}, nil, fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		if !slices.Contains(def.fields, name) {
			return tableDef{}, nil, fmt.Errorf("%w: %s.%s", ErrUnknownField, table, name)
		}
		// Every goal column is numeric.
		if _, ok := toFloat(fields[name]); !ok {
			return tableDef{}, nil, fmt.Errorf("%s.%s must be numeric, got %T", table, name, fields[name])
		}
		names = append(names, name)
	}
	slices.Sort(names)
	return def, names, nil
}

func validKey(k Key) error {
	if k.UserID == "" || k.Subject == "" {
		return errors.New("key requires user id and subject")
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
