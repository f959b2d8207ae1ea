package workout

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// Verb is an action the user can take on an artifact.
type Verb string

const (
	// VerbStart replaces the active workout with the artifact.
	VerbStart Verb = "start"
	// VerbAdd appends the artifact's exercises to the active workout.
	VerbAdd Verb = "add"
	// VerbReplace behaves like VerbStart.
	VerbReplace Verb = "replace"
)

// ParseVerb converts s into a Verb.
func ParseVerb(s string) (Verb, error) {
	switch v := Verb(s); v {
	case VerbStart, VerbAdd, VerbReplace:
		return v, nil
	default:
		return "", fmt.Errorf("unknown artifact verb %q (supported: start, add, replace)", s)
	}
}

// ActiveWorkout is the store holding the workout the user is doing now.
type ActiveWorkout interface {
	// LoadFromArtifact replaces the active workout.
	LoadFromArtifact(ctx context.Context, a Artifact) error
	// AddFromArtifact merges the artifact into the active workout.
	AddFromArtifact(ctx context.Context, a Artifact) error
}

// Apply delegates verb to the workout store. The artifact itself is untouched.
func Apply(ctx context.Context, store ActiveWorkout, verb Verb, a Artifact) error {
	switch verb {
	case VerbStart, VerbReplace:
		return store.LoadFromArtifact(ctx, a)
	case VerbAdd:
		return store.AddFromArtifact(ctx, a)
	default:
		return fmt.Errorf("unknown artifact verb %q", verb)
	}
}

// MemoryWorkout is an in-process ActiveWorkout.
type MemoryWorkout struct {
	mu        sync.RWMutex
	exercises []Exercise
	sources   []string
}

// NewMemoryWorkout returns an empty active workout.
func NewMemoryWorkout() *MemoryWorkout {
	return &MemoryWorkout{}
}

// LoadFromArtifact replaces the active workout with a copy of the artifact's exercises.
func (m *MemoryWorkout) LoadFromArtifact(_ context.Context, a Artifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exercises = nil
	m.sources = nil
	m.appendLocked(a)
	return nil
}

// AddFromArtifact appends the artifact's exercises after the current ones,
// renumbering order so the merged list stays sequential.
func (m *MemoryWorkout) AddFromArtifact(_ context.Context, a Artifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendLocked(a)
	return nil
}

func (m *MemoryWorkout) appendLocked(a Artifact) {
	offset := 0
	for _, ex := range m.exercises {
		if o := ex.Base().Order; o > offset {
			offset = o
		}
	}
	for _, ex := range a.Exercises {
		cp := Clone(ex)
		cp.Base().Order += offset
		m.exercises = append(m.exercises, cp)
	}
	m.sources = append(m.sources, a.ArtifactID)
}

// Exercises returns a copy of the active workout.
func (m *MemoryWorkout) Exercises() []Exercise {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Exercise, len(m.exercises))
	for i, ex := range m.exercises {
		out[i] = Clone(ex)
	}
	return out
}

// Sources returns the ids of the artifacts the active workout was built from.
func (m *MemoryWorkout) Sources() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.sources)
}

// Clone deep-copies an exercise.
func Clone(e Exercise) Exercise {
	switch ex := e.(type) {
	case *Reps:
		cp := *ex
		cp.Common = cloneCommon(ex.Common)
		cp.Reps = slices.Clone(ex.Reps)
		if ex.LoadEach != nil {
			cp.LoadEach = make([]*float64, len(ex.LoadEach))
			for i, l := range ex.LoadEach {
				cp.LoadEach[i] = clonePtr(l)
			}
		}
		return &cp
	case *Hold:
		cp := *ex
		cp.Common = cloneCommon(ex.Common)
		cp.HoldSec = slices.Clone(ex.HoldSec)
		return &cp
	case *Duration:
		cp := *ex
		cp.Common = cloneCommon(ex.Common)
		cp.Distance = clonePtr(ex.Distance)
		cp.TargetPace = clonePtr(ex.TargetPace)
		return &cp
	case *Intervals:
		cp := *ex
		cp.Common = cloneCommon(ex.Common)
		return &cp
	default:
		panic(fmt.Sprintf("workout: unhandled exercise type %T", e))
	}
}

func cloneCommon(c Common) Common {
	out := c
	if c.Group != nil {
		g := *c.Group
		g.Name = clonePtr(c.Group.Name)
		g.Rounds = clonePtr(c.Group.Rounds)
		g.RestBetweenRoundsSec = clonePtr(c.Group.RestBetweenRoundsSec)
		out.Group = &g
	}
	out.Description = clonePtr(c.Description)
	out.MusclesUtilized = slices.Clone(c.MusclesUtilized)
	out.GoalsAddressed = slices.Clone(c.GoalsAddressed)
	out.Equipment = slices.Clone(c.Equipment)
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
