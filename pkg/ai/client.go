package ai

import (
	"context"
	"fmt"
)

// Message is one turn in a chat-completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options tunes a single completion request. Zero values fall back to the
// upstream defaults.
type Options struct {
	Temperature *float64
	MaxTokens   int
}

// ChatClient talks to an upstream chat-completion endpoint.
// Chat performs a single blocking completion; StreamChat opens a streaming
// completion whose chunks are pulled by the caller via Stream.Recv.
type ChatClient interface {
	Chat(ctx context.Context, messages []Message, model string, opts Options) (string, error)
	StreamChat(ctx context.Context, messages []Message, model string, opts Options) (*Stream, error)
}

// UpstreamError reports a failed upstream completion call. Status is the
// upstream HTTP status, or 0 for transport-level failures.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("upstream api error (status %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("upstream api error: %s", e.Message)
}
