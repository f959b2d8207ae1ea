// Package workout defines the exercise data model the planning agent emits,
// validates untyped agent output against it, and applies validated plans to
// the user's active workout.
package workout

import (
	"encoding/json"
	"fmt"
)

// Kind is the discriminator carried in the exercise_type field.
type Kind string

const (
	// KindReps is a set/rep exercise (squats, presses).
	KindReps Kind = "reps"
	// KindHold is an isometric exercise held for a number of seconds per set.
	KindHold Kind = "hold"
	// KindDuration is continuous work measured in minutes (runs, rides).
	KindDuration Kind = "duration"
	// KindIntervals alternates work and rest periods for a number of rounds.
	KindIntervals Kind = "intervals"
)

// GroupType names the kind of block an exercise belongs to.
type GroupType string

const (
	GroupCircuit  GroupType = "circuit"
	GroupSuperset GroupType = "superset"
	GroupGiantSet GroupType = "giant_set"
	GroupWarmup   GroupType = "warmup"
	GroupCooldown GroupType = "cooldown"
	GroupSequence GroupType = "sequence"
)

// LoadUnit is the unit for reps loads.
type LoadUnit string

const (
	LoadLbs LoadUnit = "lbs"
	LoadKg  LoadUnit = "kg"
)

// DistanceUnit is the unit for duration distances.
type DistanceUnit string

const (
	DistanceKm DistanceUnit = "km"
	DistanceMi DistanceUnit = "mi"
)

// Group places an exercise inside a circuit, superset or similar block.
// Name, Rounds and RestBetweenRoundsSec are only meaningful on the member at
// position 1.
type Group struct {
	ID                   string    `json:"id"`
	Type                 GroupType `json:"type"`
	Position             int       `json:"position"`
	Name                 *string   `json:"name,omitempty"`
	Rounds               *int      `json:"rounds,omitempty"`
	RestBetweenRoundsSec *int      `json:"rest_between_rounds_sec,omitempty"`
}

// MuscleShare attributes a fraction of an exercise's effect to a muscle.
type MuscleShare struct {
	Muscle Muscle  `json:"muscle"`
	Share  float64 `json:"share"`
}

// GoalShare attributes a fraction of an exercise's effect to a goal.
type GoalShare struct {
	Goal  string  `json:"goal"`
	Share float64 `json:"share"`
}

// Common holds the fields every exercise kind carries. Description and
// Equipment are nil when the payload omitted them.
type Common struct {
	Name            string        `json:"exercise_name"`
	Order           int           `json:"order"`
	Group           *Group        `json:"group,omitempty"`
	MusclesUtilized []MuscleShare `json:"muscles_utilized"`
	GoalsAddressed  []GoalShare   `json:"goals_addressed"`
	Reasoning       string        `json:"reasoning"`
	Description     *string       `json:"exercise_description,omitempty"`
	Equipment       []string      `json:"equipment,omitzero"`
}

// Exercise is the closed sum of Reps, Hold, Duration and Intervals. Consumers
// switch on the concrete type; the unexported marker keeps the set closed.
type Exercise interface {
	Kind() Kind
	Base() *Common
	isExercise()
}

// Reps is a set/rep exercise.
type Reps struct {
	Common
	Sets int   `json:"sets"`
	Reps []int `json:"reps"`
	// LoadEach holds one load per set; nil entries mean bodyweight.
	LoadEach []*float64 `json:"load_each,omitzero"`
	LoadUnit LoadUnit   `json:"load_unit,omitempty"`
	RestSec  int        `json:"rest_sec"`
}

// Hold is an isometric exercise.
type Hold struct {
	Common
	Sets    int   `json:"sets"`
	HoldSec []int `json:"hold_sec"`
	RestSec int   `json:"rest_sec"`
}

// Duration is continuous work.
type Duration struct {
	Common
	DurationMin  float64      `json:"duration_min"`
	Distance     *float64     `json:"distance,omitempty"`
	DistanceUnit DistanceUnit `json:"distance_unit,omitempty"`
	TargetPace   *string      `json:"target_pace,omitempty"`
}

// Intervals alternates work and rest.
type Intervals struct {
	Common
	Rounds  int `json:"rounds"`
	WorkSec int `json:"work_sec"`
	RestSec int `json:"rest_sec"`
}

func (*Reps) Kind() Kind      { return KindReps }
func (*Hold) Kind() Kind      { return KindHold }
func (*Duration) Kind() Kind  { return KindDuration }
func (*Intervals) Kind() Kind { return KindIntervals }

func (e *Reps) Base() *Common      { return &e.Common }
func (e *Hold) Base() *Common      { return &e.Common }
func (e *Duration) Base() *Common  { return &e.Common }
func (e *Intervals) Base() *Common { return &e.Common }

func (*Reps) isExercise()      {}
func (*Hold) isExercise()      {}
func (*Duration) isExercise()  {}
func (*Intervals) isExercise() {}

// MarshalJSON writes the exercise with its exercise_type tag.
func (e *Reps) MarshalJSON() ([]byte, error) {
	type plain Reps
	return json.Marshal(struct {
		Type Kind `json:"exercise_type"`
		*plain
	}{KindReps, (*plain)(e)})
}

// MarshalJSON writes the exercise with its exercise_type tag.
func (e *Hold) MarshalJSON() ([]byte, error) {
	type plain Hold
	return json.Marshal(struct {
		Type Kind `json:"exercise_type"`
		*plain
	}{KindHold, (*plain)(e)})
}

// MarshalJSON writes the exercise with its exercise_type tag.
func (e *Duration) MarshalJSON() ([]byte, error) {
	type plain Duration
	return json.Marshal(struct {
		Type Kind `json:"exercise_type"`
		*plain
	}{KindDuration, (*plain)(e)})
}

// MarshalJSON writes the exercise with its exercise_type tag.
func (e *Intervals) MarshalJSON() ([]byte, error) {
	type plain Intervals
	return json.Marshal(struct {
		Type Kind `json:"exercise_type"`
		*plain
	}{KindIntervals, (*plain)(e)})
}

// Exercises is an ordered exercise list that decodes through the validator.
type Exercises []Exercise

// UnmarshalJSON validates each element and rejects the whole list on any issue.
func (l *Exercises) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode exercises: %w", err)
	}
	out, err := ValidateExercises(raw)
	if err != nil {
		return err
	}
	*l = out
	return nil
}

// Summary is the optional plan overview.
type Summary struct {
	Title                string     `json:"title"`
	EstimatedDurationMin float64    `json:"estimated_duration_min"`
	PrimaryGoals         []string   `json:"primary_goals"`
	MusclesTargeted      []string   `json:"muscles_targeted"`
	Difficulty           Difficulty `json:"difficulty"`
}

// Difficulty grades a plan.
type Difficulty string

const (
	Beginner     Difficulty = "beginner"
	Intermediate Difficulty = "intermediate"
	Advanced     Difficulty = "advanced"
)

// Response is the full structured payload the agent produces for a plan.
type Response struct {
	Exercises Exercises `json:"exercises"`
	Summary   *Summary  `json:"summary,omitempty"`
}

// Describe returns a one-line prescription such as "3x10 @ 135 lbs" for
// display in transcripts.
func Describe(e Exercise) string {
	switch ex := e.(type) {
	case *Reps:
		s := fmt.Sprintf("%dx%s", ex.Sets, joinInts(ex.Reps, "/"))
		if load := firstLoad(ex.LoadEach); load != nil {
			s += fmt.Sprintf(" @ %g %s", *load, ex.LoadUnit)
		}
		return s
	case *Hold:
		return fmt.Sprintf("%dx%ss hold", ex.Sets, joinInts(ex.HoldSec, "/"))
	case *Duration:
		s := fmt.Sprintf("%g min", ex.DurationMin)
		if ex.Distance != nil {
			s += fmt.Sprintf(", %g %s", *ex.Distance, ex.DistanceUnit)
		}
		return s
	case *Intervals:
		return fmt.Sprintf("%d rounds of %ds on / %ds off", ex.Rounds, ex.WorkSec, ex.RestSec)
	default:
		panic(fmt.Sprintf("workout: unhandled exercise type %T", e))
	}
}

func joinInts(vals []int, sep string) string {
	out := ""
	for i, v := range vals {
		if i > 0 {
			out += sep
		}
		out += fmt.Sprint(v)
	}
	return out
}

func firstLoad(loads []*float64) *float64 {
	for _, l := range loads {
		if l != nil {
			return l
		}
	}
	return nil
}
