package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"theduck/pkg/ai"
	"theduck/pkg/domain"
)

// ErrAINotConfigured is returned by the chat passthrough when no upstream
// API key was configured at startup.
var ErrAINotConfigured = errors.New("upstream chat client not configured")

// Chat proxies a non-streaming completion to the upstream gateway.
func (a *App) Chat(ctx context.Context, messages []domain.Message, model string, opts ai.Options) (string, error) {
	if a.llm == nil {
		return "", ErrAINotConfigured
	}
	request, err := a.buildChatRequest(messages)
	if err != nil {
		return "", err
	}
	return a.llm.Chat(ctx, request, a.resolveModel(model), opts)
}

// StreamChat opens a streaming completion. The returned stream feeds the
// SSE reframer; cancelling ctx aborts the upstream request so a client
// disconnect never leaves an orphaned upstream call.
func (a *App) StreamChat(ctx context.Context, messages []domain.Message, model string, opts ai.Options) (*ai.Stream, error) {
	if a.llm == nil {
		return nil, ErrAINotConfigured
	}
	request, err := a.buildChatRequest(messages)
	if err != nil {
		return nil, err
	}
	return a.llm.StreamChat(ctx, request, a.resolveModel(model), opts)
}

func (a *App) buildChatRequest(messages []domain.Message) ([]ai.Message, error) {
	request := make([]ai.Message, 0, len(messages))
	for _, msg := range messages {
		if strings.TrimSpace(msg.Content) == "" {
			continue
		}
		request = append(request, ai.Message{Role: msg.Role, Content: msg.Content})
	}
	if len(request) == 0 {
		return nil, fmt.Errorf("%w: messages required", ErrValidation)
	}
	return request, nil
}

func (a *App) resolveModel(model string) string {
	model = strings.TrimSpace(model)
	if model == "" {
		return a.defaultModel
	}
	return model
}
