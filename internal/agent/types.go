// Package agent connects the conversation to the planning agent and exposes
// it over HTTP, SSE and WebSocket.
package agent

// ChatRequest starts a turn.
type ChatRequest struct {
	Message string `json:"message"`
}

// InputRequest stores the draft input text.
type InputRequest struct {
	Text string `json:"text"`
}

// ApplyRequest applies a message's workout artifact.
type ApplyRequest struct {
	Verb string `json:"verb"`
}

// ApplyResponse reports the applied artifact.
type ApplyResponse struct {
	ArtifactID string `json:"artifactId"`
	Verb       string `json:"verb"`
	Exercises  int    `json:"exercises"`
}
