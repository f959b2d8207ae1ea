package workout

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidWorkout matches every *ValidationError through errors.Is.
	ErrInvalidWorkout = errors.New("invalid workout")
	// ErrSchemaMismatch is returned by ConformsToSchema.
	ErrSchemaMismatch = errors.New("workout does not match schema")
)

// IssueKind classifies a validation issue.
type IssueKind string

const (
	// UnknownVariant means exercise_type was missing or not one of the four kinds.
	UnknownVariant IssueKind = "unknown_variant"
	// FieldViolation covers missing fields, wrong types and violated bounds.
	FieldViolation IssueKind = "field_violation"
	// ShareSumMismatch means a non-empty share list does not sum to 1 within tolerance.
	ShareSumMismatch IssueKind = "share_sum_mismatch"
)

// Issue is a single problem found in a candidate payload.
type Issue struct {
	Kind   IssueKind `json:"kind"`
	Path   string    `json:"path"`
	Reason string    `json:"reason"`
	// Sum is set for ShareSumMismatch.
	Sum float64 `json:"sum,omitempty"`
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s (%s)", i.Path, i.Reason, i.Kind)
}

// ValidationError carries every issue found in one validation pass.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 1 {
		return "invalid workout: " + e.Issues[0].String()
	}
	parts := make([]string, len(e.Issues))
	for i, is := range e.Issues {
		parts[i] = is.String()
	}
	return fmt.Sprintf("invalid workout: %d issues: %s", len(e.Issues), strings.Join(parts, "; "))
}

// Is lets errors.Is(err, ErrInvalidWorkout) match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidWorkout
}

// Has reports whether any issue has the given kind.
func (e *ValidationError) Has(kind IssueKind) bool {
	for _, is := range e.Issues {
		if is.Kind == kind {
			return true
		}
	}
	return false
}

// Issues extracts the issue list from err, or nil when err is not a
// *ValidationError.
func Issues(err error) []Issue {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Issues
	}
	return nil
}
