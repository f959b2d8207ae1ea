package workout

import (
	"github.com/google/uuid"
)

// Artifact is a validated plan attached to a single assistant message. It is
// never mutated after construction.
type Artifact struct {
	ArtifactID string    `json:"artifactId"`
	Exercises  Exercises `json:"exercises"`
	Summary    *Summary  `json:"summary,omitempty"`
}

// NewArtifact wraps a validated response under a fresh artifact id.
func NewArtifact(resp *Response) Artifact {
	return Artifact{
		ArtifactID: uuid.NewString(),
		Exercises:  resp.Exercises,
		Summary:    resp.Summary,
	}
}
