package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"theduck/pkg/ai"
	"theduck/pkg/domain"
)

const summarySystemInstruction = `You analyze a chat conversation and respond with a single JSON object of this exact shape:
{"summary": string, "keyTopics": [string], "userPreferences": {"explicit": {}, "implicit": {"writingStyle": {"formality": number, "verbosity": number, "technicalLevel": number, "preferredResponseLength": number}}}}
All four writingStyle numbers must be between 0 and 1.
"summary" is a concise description of the conversation. "keyTopics" lists its main topics.
"explicit" captures preferences the user stated directly, as string key/value pairs.
Respond with ONLY the raw JSON object, no markdown code block and no commentary.`

const (
	summaryTemperature = 0.3
	summaryMaxTokens   = 600

	neutralSummaryText = "Chat session completed"
	neutralStyleScore  = 0.5
)

// DefaultSummary is the neutral result used whenever summarization cannot
// complete: upstream unavailable, malformed JSON, or persistence failure.
func DefaultSummary(sessionID string) domain.ChatSummary {
	return domain.ChatSummary{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Summary:   neutralSummaryText,
		KeyTopics: []string{},
		UserPreferences: domain.UserPreferences{
			Explicit: map[string]string{},
			Implicit: domain.ImplicitPreferences{
				WritingStyle: domain.WritingStyle{
					Formality:               neutralStyleScore,
					Verbosity:               neutralStyleScore,
					TechnicalLevel:          neutralStyleScore,
					PreferredResponseLength: neutralStyleScore,
				},
			},
		},
		CreatedAt: time.Now().UTC(),
	}
}

// SummarizeConversation derives a structured summary from the conversation
// history and persists it for the session. The operation is total: any
// failure along the way yields DefaultSummary instead of an error.
//
// sessionID and userID may be empty (anonymous or ad-hoc summarization), in
// which case nothing is persisted.
func (a *App) SummarizeConversation(ctx context.Context, sessionID string, messages []domain.Message, userID string) domain.ChatSummary {
	summary, err := a.generateSummary(ctx, sessionID, messages)
	if err != nil {
		slog.Warn("summary generation failed, using neutral default", "session_id", sessionID, "err", err)
		return DefaultSummary(sessionID)
	}

	if sessionID == "" || userID == "" {
		return summary
	}
	if _, found, err := a.store.GetSession(sessionID, userID); err != nil || !found {
		return summary
	}
	if err := a.store.CreateSummary(summary); err != nil {
		slog.Warn("summary persistence failed, using neutral default", "session_id", sessionID, "err", err)
		return DefaultSummary(sessionID)
	}
	a.mergeExplicitPreferences(userID, summary.UserPreferences.Explicit)
	return summary
}

func (a *App) generateSummary(ctx context.Context, sessionID string, messages []domain.Message) (domain.ChatSummary, error) {
	if a.llm == nil {
		return domain.ChatSummary{}, fmt.Errorf("upstream client not configured")
	}
	history := renderHistory(messages)
	if history == "" {
		return domain.ChatSummary{}, fmt.Errorf("no conversation content")
	}

	temperature := summaryTemperature
	content, err := a.llm.Chat(ctx, []ai.Message{
		{Role: domain.RoleSystem, Content: summarySystemInstruction},
		{Role: domain.RoleUser, Content: history},
	}, a.summaryModel, ai.Options{
		Temperature: &temperature,
		MaxTokens:   summaryMaxTokens,
	})
	if err != nil {
		return domain.ChatSummary{}, err
	}

	var parsed struct {
		Summary         string                 `json:"summary"`
		KeyTopics       []string               `json:"keyTopics"`
		UserPreferences domain.UserPreferences `json:"userPreferences"`
	}
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &parsed); err != nil {
		return domain.ChatSummary{}, fmt.Errorf("parse summary JSON: %w", err)
	}
	if strings.TrimSpace(parsed.Summary) == "" {
		return domain.ChatSummary{}, fmt.Errorf("summary missing from upstream JSON")
	}
	if parsed.KeyTopics == nil {
		parsed.KeyTopics = []string{}
	}
	if parsed.UserPreferences.Explicit == nil {
		parsed.UserPreferences.Explicit = map[string]string{}
	}
	style := &parsed.UserPreferences.Implicit.WritingStyle
	style.Formality = clamp01(style.Formality)
	style.Verbosity = clamp01(style.Verbosity)
	style.TechnicalLevel = clamp01(style.TechnicalLevel)
	style.PreferredResponseLength = clamp01(style.PreferredResponseLength)

	return domain.ChatSummary{
		ID:              uuid.NewString(),
		SessionID:       sessionID,
		Summary:         strings.TrimSpace(parsed.Summary),
		KeyTopics:       parsed.KeyTopics,
		UserPreferences: parsed.UserPreferences,
		CreatedAt:       time.Now().UTC(),
	}, nil
}

// mergeExplicitPreferences folds newly observed explicit signals into the
// user's stored preference map. Best effort only.
func (a *App) mergeExplicitPreferences(userID string, explicit map[string]string) {
	if len(explicit) == 0 {
		return
	}
	prefs, _, err := a.store.GetPreferences(userID)
	if err != nil {
		return
	}
	if prefs == nil {
		prefs = map[string]string{}
	}
	for k, v := range explicit {
		prefs[k] = v
	}
	if err := a.store.SavePreferences(userID, prefs); err != nil {
		slog.Warn("preference merge failed", "user_id", userID, "err", err)
	}
}

// renderHistory flattens the conversation for the upstream prompt,
// excluding the synthetic greeting and blank turns.
func renderHistory(messages []domain.Message) string {
	var sb strings.Builder
	for _, msg := range messages {
		if msg.ID == domain.WelcomeMessageID {
			continue
		}
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		role := strings.ToLower(strings.TrimSpace(msg.Role))
		if role == "" {
			role = "message"
		}
		sb.WriteString(role)
		sb.WriteString(": ")
		sb.WriteString(content)
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String())
}

// stripCodeFence unwraps a ```json ... ``` block when a model ignores the
// raw-JSON instruction.
func stripCodeFence(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
