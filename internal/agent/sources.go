package agent

import (
	"context"
	"fmt"
	"iter"
	"os"

	"github.com/YisroelArnson/AI-PERSONAL-TRAINER-sub011/internal/conversation"
	"github.com/YisroelArnson/AI-PERSONAL-TRAINER-sub011/internal/stream"
)

// UnavailableMessage is shown when no agent is configured.
const UnavailableMessage = "The trainer is unavailable right now."

// ReplaySource answers every turn with the events recorded in a JSONL file.
// The file is reread per turn so it can be edited while the server runs.
func ReplaySource(path string) conversation.Streamer {
	return conversation.StreamerFunc(func(ctx context.Context, _ conversation.Turn) iter.Seq2[stream.Event, error] {
		return func(yield func(stream.Event, error) bool) {
			f, err := os.Open(path)
			if err != nil {
				yield(nil, fmt.Errorf("%w: open replay file: %v", ErrStreamFailed, err))
				return
			}
			defer f.Close()

			for ev, err := range stream.ReadLines(f) {
				if ctx.Err() != nil {
					return
				}
				if !yield(ev, err) {
					return
				}
			}
		}
	})
}

// Unavailable answers every turn with an error event.
func Unavailable() conversation.Streamer {
	return conversation.StreamerFunc(func(context.Context, conversation.Turn) iter.Seq2[stream.Event, error] {
		return stream.Events(stream.ErrorEvent{Message: UnavailableMessage})
	})
}
