// Package goals executes the agent's "set goals" tool call: each category
// and muscle goal is clamped and upserted on its own, and the outcome of
// every entry is reported back.
package goals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/YisroelArnson/AI-PERSONAL-TRAINER-sub011/internal/store"
)

// Weight bounds.
const (
	MinWeight = -10.0
	MaxWeight = 10.0
)

// SubjectKind says which goal table an entry belongs to.
type SubjectKind string

const (
	KindCategory SubjectKind = "category"
	KindMuscle   SubjectKind = "muscle"
)

// CategoryGoal weights a training category such as "strength".
type CategoryGoal struct {
	Category string  `json:"category"`
	Weight   float64 `json:"weight"`
}

// MuscleGoal weights a muscle group.
type MuscleGoal struct {
	Muscle string  `json:"muscle"`
	Weight float64 `json:"weight"`
}

// Updated lists the entries that were persisted, with the weights as requested.
type Updated struct {
	CategoryGoals []CategoryGoal `json:"category_goals"`
	MuscleGoals   []MuscleGoal   `json:"muscle_goals"`
}

// Failure is an entry that could not be persisted.
type Failure struct {
	Kind    SubjectKind `json:"kind"`
	Subject string      `json:"subject"`
	Weight  float64     `json:"weight"`
	Reason  string      `json:"reason"`
}

// Result is returned to the agent. Success is always true; individual
// failures only show up in Failed and as missing entries in Updated.
type Result struct {
	Success bool      `json:"success"`
	Updated Updated   `json:"updated"`
	Failed  []Failure `json:"failed,omitempty"`
	Summary string    `json:"summary"`
}

// ClampWeight bounds w to [MinWeight, MaxWeight].
func ClampWeight(w float64) float64 {
	return math.Max(MinWeight, math.Min(MaxWeight, w))
}

// Executor runs goal tool calls against a store. It holds no per-call state.
type Executor struct {
	store  store.Upserter
	logger *slog.Logger
	tracer trace.Tracer
}

// NewExecutor creates an executor. A nil logger uses slog.Default().
func NewExecutor(s store.Upserter, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		store:  s,
		logger: logger,
		tracer: otel.Tracer("github.com/YisroelArnson/AI-PERSONAL-TRAINER-sub011/internal/goals"),
	}
}

// Execute upserts every entry in order, categories first. Entries are
// independent: one failing does not stop the rest, and a subject repeated
// within a call ends with the weight of its last occurrence.
func (e *Executor) Execute(ctx context.Context, userID string, categories []CategoryGoal, muscles []MuscleGoal) Result {
	ctx, span := e.tracer.Start(ctx, "goals.execute", trace.WithAttributes(
		attribute.String("user_id", userID),
		attribute.Int("category_goals", len(categories)),
		attribute.Int("muscle_goals", len(muscles)),
	))
	defer span.End()

	res := Result{
		Success: true,
		Updated: Updated{CategoryGoals: []CategoryGoal{}, MuscleGoals: []MuscleGoal{}},
	}

	for _, g := range categories {
		if err := e.upsert(ctx, store.TableCategoryGoals, userID, g.Category, g.Weight); err != nil {
			res.Failed = append(res.Failed, e.failure(span, userID, KindCategory, g.Category, g.Weight, err))
			continue
		}
		res.Updated.CategoryGoals = append(res.Updated.CategoryGoals, g)
	}
	for _, g := range muscles {
		if err := e.upsert(ctx, store.TableMuscleGoals, userID, g.Muscle, g.Weight); err != nil {
			res.Failed = append(res.Failed, e.failure(span, userID, KindMuscle, g.Muscle, g.Weight, err))
			continue
		}
		res.Updated.MuscleGoals = append(res.Updated.MuscleGoals, g)
	}

	res.Summary = Summary(res.Updated)
	span.SetAttributes(attribute.Int("failed", len(res.Failed)))
	if len(res.Failed) > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d goal updates failed", len(res.Failed)))
	}
	return res
}

func (e *Executor) upsert(ctx context.Context, table, userID, subject string, weight float64) error {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return errors.New("name is required")
	}
	if math.IsNaN(weight) {
		return errors.New("weight is not a number")
	}
	return e.store.Upsert(ctx, table,
		store.Key{UserID: userID, Subject: subject},
		store.Fields{"weight": ClampWeight(weight)})
}

func (e *Executor) failure(span trace.Span, userID string, kind SubjectKind, subject string, weight float64, err error) Failure {
	e.logger.Warn("goal update failed", "user_id", userID, "kind", kind, "subject", subject, "error", err)
	span.RecordError(err, trace.WithAttributes(attribute.String("subject", subject)))
	return Failure{Kind: kind, Subject: subject, Weight: weight, Reason: err.Error()}
}

// Summary renders the one-line description returned alongside the result,
// e.g. "Updated goals - Categories: strength(15); Muscles: none".
func Summary(u Updated) string {
	cats := make([]string, len(u.CategoryGoals))
	for i, g := range u.CategoryGoals {
		cats[i] = g.Category + "(" + formatWeight(g.Weight) + ")"
	}
	muscles := make([]string, len(u.MuscleGoals))
	for i, g := range u.MuscleGoals {
		muscles[i] = g.Muscle + "(" + formatWeight(g.Weight) + ")"
	}
	return fmt.Sprintf("Updated goals - Categories: %s; Muscles: %s", list(cats), list(muscles))
}

func list(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}

func formatWeight(w float64) string {
	return strconv.FormatFloat(w, 'f', -1, 64)
}
