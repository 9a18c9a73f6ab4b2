package app

import (
	"strings"

	"theduck/pkg/domain"
)

// DefaultTitle is the generic placeholder for sessions without a derived or
// user-set title.
const DefaultTitle = "New Chat"

const (
	fallbackTitleWords  = 4
	fallbackTitleMaxLen = 30
)

// FallbackTitle derives a short deterministic title from raw message text.
// It is total over its input: any sequence without a qualifying message
// yields DefaultTitle. The welcome greeting and blank messages never
// qualify, the first user message wins, then the first non-system message.
// No casing transform is applied; the title reads exactly as typed.
func FallbackTitle(messages []domain.Message) string {
	var candidates []domain.Message
	for _, msg := range messages {
		if msg.ID == domain.WelcomeMessageID {
			continue
		}
		if strings.TrimSpace(msg.Content) == "" {
			continue
		}
		candidates = append(candidates, msg)
	}

	var chosen *domain.Message
	for i := range candidates {
		if candidates[i].Role == domain.RoleUser {
			chosen = &candidates[i]
			break
		}
	}
	if chosen == nil {
		for i := range candidates {
			if candidates[i].Role != domain.RoleSystem {
				chosen = &candidates[i]
				break
			}
		}
	}
	if chosen == nil {
		return DefaultTitle
	}

	words := strings.Fields(chosen.Content)
	if len(words) > fallbackTitleWords {
		words = words[:fallbackTitleWords]
	}
	title := strings.Join(words, " ")
	runes := []rune(title)
	if len(runes) > fallbackTitleMaxLen {
		return string(runes[:fallbackTitleMaxLen-3]) + "..."
	}
	return title
}
