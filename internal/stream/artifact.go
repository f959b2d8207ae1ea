package stream

import (
	"github.com/YisroelArnson/AI-PERSONAL-TRAINER-sub011/internal/workout"
)

// NewArtifactEvent checks raw against the validator and the published
// WorkoutResponse schema, then wraps it in a messageWithArtifact event under
// a fresh artifact id. An invalid payload yields the error and no event.
func NewArtifactEvent(content string, raw []byte) (ArtifactMessageEvent, error) {
	resp, err := workout.Validate(raw)
	if err != nil {
		return ArtifactMessageEvent{}, err
	}
	if err := workout.ConformsToSchema(raw); err != nil {
		return ArtifactMessageEvent{}, err
	}
	return ArtifactMessageEvent{
		Content:  content,
		Artifact: workout.NewArtifact(resp),
	}, nil
}
