package workout

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"unicode/utf8"
)

const (
	// ShareTolerance is the allowed deviation of a share list sum from 1.0.
	ShareTolerance = 0.05
	// MaxReasoningLen bounds the reasoning text, in characters.
	MaxReasoningLen = 300

	// float slack so that a deviation of exactly ShareTolerance still passes.
	shareEpsilon = 1e-9
)

// Validate decodes raw JSON and validates it as a Response. Every issue in
// the payload is reported in the returned *ValidationError, not only the
// first. Validate does not retain raw and is safe for concurrent use.
func Validate(raw []byte) (*Response, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, &ValidationError{Issues: []Issue{{
			Kind:   FieldViolation,
			Path:   "$",
			Reason: "malformed JSON: " + err.Error(),
		}}}
	}
	return ValidateValue(v)
}

// ValidateValue validates an already-decoded JSON value (maps, slices,
// numbers, strings) as a Response. The input is never modified.
func ValidateValue(v any) (*Response, error) {
	c := &checker{}
	obj, ok := c.object("$", v)
	if !ok {
		return nil, c.err()
	}

	resp := &Response{}
	raw, present := obj["exercises"]
	if arr, isArray := raw.([]any); !present || raw == nil {
		c.fail("exercises", "is required")
	} else if isArray && len(arr) == 0 {
		c.fail("exercises", "must contain at least one exercise")
	} else {
		resp.Exercises = c.exercises("exercises", raw)
	}
	if raw, present := obj["summary"]; present && raw != nil {
		resp.Summary = c.summary("summary", raw)
	}

	if err := c.err(); err != nil {
		return nil, err
	}
	return resp, nil
}

// ValidateExercises validates a JSON array of exercises. An empty array is
// accepted here; Response requires at least one element.
func ValidateExercises(v any) (Exercises, error) {
	c := &checker{}
	out := c.exercises("exercises", v)
	if err := c.err(); err != nil {
		return nil, err
	}
	if out == nil {
		out = Exercises{}
	}
	return out, nil
}

type checker struct {
	issues []Issue
}

func (c *checker) err() error {
	if len(c.issues) == 0 {
		return nil
	}
	return &ValidationError{Issues: c.issues}
}

func (c *checker) fail(path, format string, args ...any) {
	c.issues = append(c.issues, Issue{Kind: FieldViolation, Path: path, Reason: fmt.Sprintf(format, args...)})
}

func join(parent, key string) string {
	if parent == "" || parent == "$" {
		return key
	}
	return parent + "." + key
}

func index(parent string, i int) string {
	return fmt.Sprintf("%s[%d]", parent, i)
}

func (c *checker) object(path string, v any) (map[string]any, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		c.fail(path, "must be an object")
		return nil, false
	}
	return obj, true
}

func (c *checker) array(path string, v any) ([]any, bool) {
	arr, ok := v.([]any)
	if !ok {
		c.fail(path, "must be an array")
		return nil, false
	}
	return arr, true
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
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

var (
	errNotInteger = errors.New("must be an integer")
	// errIntRange marks a whole number that does not fit in an int.
	errIntRange = errors.New("out of range")
)

func toInt(v any) (int, error) {
	f, ok := toFloat(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) || math.Trunc(f) != f {
		return 0, errNotInteger
	}
	// float64(math.MaxInt) rounds up to 2^63, so the upper bound is exclusive.
	if f < math.MinInt || f >= math.MaxInt {
		return 0, errIntRange
	}
	return int(f), nil
}

func intReason(err error, raw any) string {
	if errors.Is(err, errIntRange) {
		return fmt.Sprintf("is out of range, got %v", raw)
	}
	return err.Error()
}

// str reads a string field. Missing optional fields return ("", true).
func (c *checker) str(obj map[string]any, parent, key string, required bool) (string, bool) {
	path := join(parent, key)
	raw, present := obj[key]
	if !present || raw == nil {
		if required {
			c.fail(path, "is required")
			return "", false
		}
		return "", true
	}
	s, ok := raw.(string)
	if !ok {
		c.fail(path, "must be a string")
		return "", false
	}
	if required && s == "" {
		c.fail(path, "must not be empty")
		return "", false
	}
	return s, true
}

// optString reads an optional free-text field, keeping an explicit empty
// string distinct from an absent one.
func (c *checker) optString(obj map[string]any, parent, key string) *string {
	if raw, present := obj[key]; !present || raw == nil {
		return nil
	}
	s, ok := c.str(obj, parent, key, false)
	if !ok {
		return nil
	}
	return &s
}

// integer reads a required integer field that must be >= min.
func (c *checker) integer(obj map[string]any, parent, key string, min int) (int, bool) {
	path := join(parent, key)
	raw, present := obj[key]
	if !present || raw == nil {
		c.fail(path, "is required")
		return 0, false
	}
	n, err := toInt(raw)
	if err != nil {
		c.fail(path, "%s", intReason(err, raw))
		return 0, false
	}
	if n < min {
		c.fail(path, "must be >= %d, got %d", min, n)
		return 0, false
	}
	return n, true
}

// optInteger reads an optional integer field that must be >= min.
func (c *checker) optInteger(obj map[string]any, parent, key string, min int) *int {
	if raw, present := obj[key]; !present || raw == nil {
		return nil
	}
	n, ok := c.integer(obj, parent, key, min)
	if !ok {
		return nil
	}
	return &n
}

// positive reads a required number field that must be > 0.
func (c *checker) positive(obj map[string]any, parent, key string) (float64, bool) {
	path := join(parent, key)
	raw, present := obj[key]
	if !present || raw == nil {
		c.fail(path, "is required")
		return 0, false
	}
	f, ok := toFloat(raw)
	if !ok {
		c.fail(path, "must be a number")
		return 0, false
	}
	if f <= 0 {
		c.fail(path, "must be > 0, got %g", f)
		return 0, false
	}
	return f, true
}

func (c *checker) strings(obj map[string]any, parent, key string, required bool) []string {
	path := join(parent, key)
	raw, present := obj[key]
	if !present || raw == nil {
		if required {
			c.fail(path, "is required")
		}
		return nil
	}
	arr, ok := c.array(path, raw)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for i, item := range arr {
		s, ok := item.(string)
		if !ok {
			c.fail(index(path, i), "must be a string")
			continue
		}
		out = append(out, s)
	}
	return out
}

// intList reads a required non-empty array of integers >= min.
func (c *checker) intList(obj map[string]any, parent, key string, min int) ([]int, bool) {
	path := join(parent, key)
	raw, present := obj[key]
	if !present || raw == nil {
		c.fail(path, "is required")
		return nil, false
	}
	arr, ok := c.array(path, raw)
	if !ok {
		return nil, false
	}
	if len(arr) == 0 {
		c.fail(path, "must not be empty")
		return nil, false
	}
	out := make([]int, len(arr))
	valid := true
	for i, item := range arr {
		n, err := toInt(item)
		switch {
		case err != nil:
			c.fail(index(path, i), "%s", intReason(err, item))
			valid = false
		case n < min:
			c.fail(index(path, i), "must be >= %d, got %d", min, n)
			valid = false
		}
		out[i] = n
	}
	return out, valid
}

func oneOf[T ~string](v string, allowed ...T) bool {
	for _, a := range allowed {
		if T(v) == a {
			return true
		}
	}
	return false
}

func (c *checker) exercises(path string, v any) Exercises {
	arr, ok := c.array(path, v)
	if !ok {
		return nil
	}
	out := make(Exercises, 0, len(arr))
	for i, item := range arr {
		if ex := c.exercise(index(path, i), item); ex != nil {
			out = append(out, ex)
		}
	}
	return out
}

func (c *checker) exercise(path string, v any) Exercise {
	obj, ok := c.object(path, v)
	if !ok {
		return nil
	}

	tag, _ := obj["exercise_type"].(string)
	var ex Exercise
	switch Kind(tag) {
	case KindReps:
		ex = &Reps{}
	case KindHold:
		ex = &Hold{}
	case KindDuration:
		ex = &Duration{}
	case KindIntervals:
		ex = &Intervals{}
	default:
		reason := "exercise_type is required"
		if raw, present := obj["exercise_type"]; present {
			reason = fmt.Sprintf("unknown exercise_type %v", raw)
		}
		c.issues = append(c.issues, Issue{Kind: UnknownVariant, Path: join(path, "exercise_type"), Reason: reason})
		return nil
	}

	shares := c.common(path, obj, ex.Base())

	switch e := ex.(type) {
	case *Reps:
		c.reps(path, obj, e)
	case *Hold:
		c.hold(path, obj, e)
	case *Duration:
		c.duration(path, obj, e)
	case *Intervals:
		c.intervals(path, obj, e)
	}

	for _, s := range shares {
		c.shareSum(s)
	}
	return ex
}

// pendingShares is a share list whose entries all passed field checks and
// still needs its sum verified.
type pendingShares struct {
	path   string
	values []float64
}

func (c *checker) common(path string, obj map[string]any, out *Common) []pendingShares {
	out.Name, _ = c.str(obj, path, "exercise_name", true)
	out.Order, _ = c.integer(obj, path, "order", 1)
	out.Reasoning, _ = c.str(obj, path, "reasoning", true)
	if n := utf8.RuneCountInString(out.Reasoning); n > MaxReasoningLen {
		c.fail(join(path, "reasoning"), "must be at most %d characters, got %d", MaxReasoningLen, n)
	}
	out.Description = c.optString(obj, path, "exercise_description")
	out.Equipment = c.strings(obj, path, "equipment", false)

	if raw, present := obj["group"]; present && raw != nil {
		out.Group = c.group(join(path, "group"), raw)
	}

	var pending []pendingShares
	if p, ok := c.muscleShares(join(path, "muscles_utilized"), obj["muscles_utilized"], &out.MusclesUtilized); ok {
		pending = append(pending, p)
	}
	if p, ok := c.goalShares(join(path, "goals_addressed"), obj["goals_addressed"], &out.GoalsAddressed); ok {
		pending = append(pending, p)
	}
	return pending
}

func (c *checker) group(path string, v any) *Group {
	obj, ok := c.object(path, v)
	if !ok {
		return nil
	}
	g := &Group{}
	g.ID, _ = c.str(obj, path, "id", true)
	if t, ok := c.str(obj, path, "type", true); ok {
		if !oneOf(t, GroupCircuit, GroupSuperset, GroupGiantSet, GroupWarmup, GroupCooldown, GroupSequence) {
			c.fail(join(path, "type"), "unknown group type %q", t)
		}
		g.Type = GroupType(t)
	}
	g.Position, _ = c.integer(obj, path, "position", 1)
	g.Name = c.optString(obj, path, "name")
	g.Rounds = c.optInteger(obj, path, "rounds", 1)
	g.RestBetweenRoundsSec = c.optInteger(obj, path, "rest_between_rounds_sec", 0)
	return g
}

// share reads the share field of one attribution entry.
func (c *checker) share(obj map[string]any, parent string) (float64, bool) {
	path := join(parent, "share")
	raw, present := obj["share"]
	if !present || raw == nil {
		c.fail(path, "is required")
		return 0, false
	}
	f, ok := toFloat(raw)
	if !ok {
		c.fail(path, "must be a number")
		return 0, false
	}
	if f < 0 || f > 1 {
		c.fail(path, "must be within [0, 1], got %g", f)
		return 0, false
	}
	return f, true
}

func (c *checker) muscleShares(path string, v any, out *[]MuscleShare) (pendingShares, bool) {
	if v == nil {
		c.fail(path, "is required")
		return pendingShares{}, false
	}
	arr, ok := c.array(path, v)
	if !ok {
		return pendingShares{}, false
	}
	list := make([]MuscleShare, 0, len(arr))
	values := make([]float64, 0, len(arr))
	valid := true
	for i, item := range arr {
		p := index(path, i)
		obj, ok := c.object(p, item)
		if !ok {
			valid = false
			continue
		}
		name, nameOK := c.str(obj, p, "muscle", true)
		if nameOK && !IsMuscle(name) {
			c.fail(join(p, "muscle"), "unknown muscle %q", name)
			nameOK = false
		}
		share, shareOK := c.share(obj, p)
		if !nameOK || !shareOK {
			valid = false
		}
		list = append(list, MuscleShare{Muscle: Muscle(name), Share: share})
		values = append(values, share)
	}
	*out = list
	return pendingShares{path: path, values: values}, valid
}

func (c *checker) goalShares(path string, v any, out *[]GoalShare) (pendingShares, bool) {
	if v == nil {
		c.fail(path, "is required")
		return pendingShares{}, false
	}
	arr, ok := c.array(path, v)
	if !ok {
		return pendingShares{}, false
	}
	list := make([]GoalShare, 0, len(arr))
	values := make([]float64, 0, len(arr))
	valid := true
	for i, item := range arr {
		p := index(path, i)
		obj, ok := c.object(p, item)
		if !ok {
			valid = false
			continue
		}
		goal, goalOK := c.str(obj, p, "goal", true)
		share, shareOK := c.share(obj, p)
		if !goalOK || !shareOK {
			valid = false
		}
		list = append(list, GoalShare{Goal: goal, Share: share})
		values = append(values, share)
	}
	*out = list
	return pendingShares{path: path, values: values}, valid
}

// shareSum enforces |sum-1| <= ShareTolerance on non-empty lists.
func (c *checker) shareSum(p pendingShares) {
	if len(p.values) == 0 {
		return
	}
	sum := 0.0
	for _, v := range p.values {
		sum += v
	}
	if math.Abs(sum-1) > ShareTolerance+shareEpsilon {
		c.issues = append(c.issues, Issue{
			Kind:   ShareSumMismatch,
			Path:   p.path,
			Reason: fmt.Sprintf("shares must sum to 1.0 (±%g), got %g", ShareTolerance, sum),
			Sum:    sum,
		})
	}
}

// perSet checks that a per-set list has exactly sets entries.
func (c *checker) perSet(path string, sets, n int) {
	if n != sets {
		c.fail(path, "must have one entry per set (sets=%d, got %d)", sets, n)
	}
}

func (c *checker) reps(path string, obj map[string]any, e *Reps) {
	sets, setsOK := c.integer(obj, path, "sets", 1)
	e.Sets = sets
	reps, repsOK := c.intList(obj, path, "reps", 1)
	e.Reps = reps
	if setsOK && repsOK {
		c.perSet(join(path, "reps"), sets, len(reps))
	}

	if raw, present := obj["load_each"]; present && raw != nil {
		lp := join(path, "load_each")
		if arr, ok := c.array(lp, raw); ok {
			loads := make([]*float64, len(arr))
			for i, item := range arr {
				if item == nil {
					continue
				}
				f, ok := toFloat(item)
				switch {
				case !ok:
					c.fail(index(lp, i), "must be a number or null")
				case f < 0:
					c.fail(index(lp, i), "must be >= 0, got %g", f)
				default:
					loads[i] = &f
				}
			}
			e.LoadEach = loads
			if setsOK {
				c.perSet(lp, sets, len(arr))
			}
		}
	}
	if unit := c.optString(obj, path, "load_unit"); unit != nil {
		if !oneOf(*unit, LoadLbs, LoadKg) {
			c.fail(join(path, "load_unit"), "must be one of lbs, kg, got %q", *unit)
		}
		e.LoadUnit = LoadUnit(*unit)
	}
	e.RestSec, _ = c.integer(obj, path, "rest_sec", 0)
}

func (c *checker) hold(path string, obj map[string]any, e *Hold) {
	sets, setsOK := c.integer(obj, path, "sets", 1)
	e.Sets = sets
	holds, holdsOK := c.intList(obj, path, "hold_sec", 1)
	e.HoldSec = holds
	if setsOK && holdsOK {
		c.perSet(join(path, "hold_sec"), sets, len(holds))
	}
	e.RestSec, _ = c.integer(obj, path, "rest_sec", 0)
}

func (c *checker) duration(path string, obj map[string]any, e *Duration) {
	e.DurationMin, _ = c.positive(obj, path, "duration_min")
	if raw, present := obj["distance"]; present && raw != nil {
		if d, ok := c.positive(obj, path, "distance"); ok {
			e.Distance = &d
		}
	}
	if unit := c.optString(obj, path, "distance_unit"); unit != nil {
		if !oneOf(*unit, DistanceKm, DistanceMi) {
			c.fail(join(path, "distance_unit"), "must be one of km, mi, got %q", *unit)
		}
		e.DistanceUnit = DistanceUnit(*unit)
	}
	e.TargetPace = c.optString(obj, path, "target_pace")
}

func (c *checker) intervals(path string, obj map[string]any, e *Intervals) {
	e.Rounds, _ = c.integer(obj, path, "rounds", 1)
	e.WorkSec, _ = c.integer(obj, path, "work_sec", 1)
	e.RestSec, _ = c.integer(obj, path, "rest_sec", 0)
}

func (c *checker) summary(path string, v any) *Summary {
	obj, ok := c.object(path, v)
	if !ok {
		return nil
	}
	s := &Summary{}
	s.Title, _ = c.str(obj, path, "title", true)
	s.EstimatedDurationMin, _ = c.positive(obj, path, "estimated_duration_min")
	s.PrimaryGoals = c.strings(obj, path, "primary_goals", true)
	s.MusclesTargeted = c.strings(obj, path, "muscles_targeted", true)
	if d, ok := c.str(obj, path, "difficulty", true); ok {
		if !oneOf(d, Beginner, Intermediate, Advanced) {
			c.fail(join(path, "difficulty"), "must be one of beginner, intermediate, advanced, got %q", d)
		}
		s.Difficulty = Difficulty(d)
	}
	return s
}
