package app

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"theduck/pkg/ai"
	"theduck/pkg/domain"
)

const titleSystemInstruction = "Generate a short title (2-5 words) for this conversation. " +
	"Use title case. Do not use quotes. Avoid generic words like \"chat\", \"conversation\" or \"discussion\". " +
	"Respond with the title only."

const (
	titleTemperature = 0.3
	titleMaxTokens   = 40
	titleMinLen      = 3
	titleCleanMaxLen = 40
)

// titleCleanPattern keeps word characters, whitespace, and hyphens.
var titleCleanPattern = regexp.MustCompile(`[^\w\s-]`)

// TitleResult is the outcome of one title-generation request.
// Method is one of "fallback", "ai-generated", or "preserved".
type TitleResult struct {
	Title     string `json:"title"`
	Method    string `json:"method"`
	SessionID string `json:"sessionId"`
	Updated   bool   `json:"updated"`
}

const (
	TitleMethodFallback    = "fallback"
	TitleMethodAIGenerated = "ai-generated"
	TitleMethodPreserved   = "preserved"
)

// GenerateTitle derives a session title and reconciles it with persisted
// state. It never fails from the caller's perspective: every upstream or
// persistence problem degrades to the deterministic fallback title, with
// Updated reporting whether the session record actually changed.
//
// userID may be empty for anonymous callers, which skips all persistence.
func (a *App) GenerateTitle(ctx context.Context, messages []domain.Message, sessionID string, preserveExisting bool, userID string) TitleResult {
	result := TitleResult{
		Title:     FallbackTitle(messages),
		Method:    TitleMethodFallback,
		SessionID: sessionID,
	}

	if a.llm != nil {
		if title, ok := a.generateAITitle(ctx, messages); ok {
			result.Title = title
			result.Method = TitleMethodAIGenerated
		}
	}

	if sessionID == "" || userID == "" {
		return result
	}

	session, found, err := a.store.GetSession(sessionID, userID)
	if err != nil || !found {
		// Not found or not owned: skip persistence, not a fatal error.
		return result
	}

	// Never silently regress a real title back to the placeholder: when the
	// AI path failed, keep what is stored if the caller asked to preserve,
	// or if the fallback itself produced nothing better than the placeholder.
	hasRealTitle := session.Title != "" && session.Title != DefaultTitle
	if result.Method == TitleMethodFallback && hasRealTitle &&
		(preserveExisting || result.Title == DefaultTitle) {
		result.Title = session.Title
		result.Method = TitleMethodPreserved
		return result
	}

	if err := a.store.UpdateSessionTitle(sessionID, userID, result.Title); err != nil {
		slog.Warn("title update failed", "session_id", sessionID, "err", err)
		return result
	}
	result.Updated = true
	return result
}

func (a *App) generateAITitle(ctx context.Context, messages []domain.Message) (string, bool) {
	request := make([]ai.Message, 0, len(messages)+1)
	request = append(request, ai.Message{Role: domain.RoleSystem, Content: titleSystemInstruction})
	for _, msg := range messages {
		if msg.ID == domain.WelcomeMessageID {
			continue
		}
		role := msg.Role
		// Assistant turns stored under the system label are conversation
		// content, not instructions.
		if role == domain.RoleSystem {
			role = domain.RoleAssistant
		}
		request = append(request, ai.Message{Role: role, Content: msg.Content})
	}

	temperature := titleTemperature
	content, err := a.llm.Chat(ctx, request, a.titleModel, ai.Options{
		Temperature: &temperature,
		MaxTokens:   titleMaxTokens,
	})
	if err != nil {
		// Recovered: the fallback title stands.
		slog.Debug("ai title generation failed", "err", err)
		return "", false
	}

	cleaned := cleanTitle(content)
	if len([]rune(cleaned)) < titleMinLen {
		return "", false
	}
	return cleaned, true
}

func cleanTitle(raw string) string {
	cleaned := strings.NewReplacer(`"`, "", "'", "", "`", "").Replace(raw)
	cleaned = titleCleanPattern.ReplaceAllString(cleaned, "")
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	runes := []rune(cleaned)
	if len(runes) > titleCleanMaxLen {
		cleaned = string(runes[:titleCleanMaxLen-3]) + "..."
	}
	return cleaned
}
