package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"theduck/internal/util"
	"theduck/pkg/domain"
)

// CreateSession starts a new conversation thread for the user.
func (a *App) CreateSession(userID, title, model string) (domain.ChatSession, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.ChatSession{}, fmt.Errorf("%w: user required", ErrValidation)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultTitle
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = a.defaultModel
	}
	now := time.Now().UTC()
	session := domain.ChatSession{
		ID:        util.NewID(),
		OwnerID:   userID,
		Title:     title,
		Model:     model,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.store.CreateSession(session); err != nil {
		return domain.ChatSession{}, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// ListSessions lists recent sessions for the user.
func (a *App) ListSessions(userID string, limit int) ([]domain.ChatSession, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user required", ErrValidation)
	}
	if limit <= 0 || limit > 100 {
		limit = 30
	}
	items, err := a.store.ListSessionsByOwner(userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return items, nil
}

// GetSession loads one session owned by the user.
func (a *App) GetSession(userID, sessionID string) (domain.ChatSession, error) {
	session, found, err := a.store.GetSession(sessionID, userID)
	if err != nil {
		return domain.ChatSession{}, fmt.Errorf("load session: %w", err)
	}
	if !found {
		return domain.ChatSession{}, ErrSessionNotFound
	}
	return session, nil
}

// SessionUpdate carries the mutable session fields for UpdateSession.
// Nil fields are left unchanged.
type SessionUpdate struct {
	Title    *string
	Model    *string
	IsActive *bool
}

// UpdateSession applies a partial update to a session the user owns.
func (a *App) UpdateSession(userID, sessionID string, update SessionUpdate) (domain.ChatSession, error) {
	if _, err := a.GetSession(userID, sessionID); err != nil {
		return domain.ChatSession{}, err
	}
	if update.Title != nil {
		title := strings.TrimSpace(*update.Title)
		if title == "" {
			return domain.ChatSession{}, fmt.Errorf("%w: title must not be blank", ErrValidation)
		}
		if err := a.store.UpdateSessionTitle(sessionID, userID, title); err != nil {
			return domain.ChatSession{}, fmt.Errorf("update title: %w", err)
		}
	}
	if update.Model != nil {
		model := strings.TrimSpace(*update.Model)
		if model == "" {
			return domain.ChatSession{}, fmt.Errorf("%w: model must not be blank", ErrValidation)
		}
		if err := a.store.UpdateSessionModel(sessionID, userID, model); err != nil {
			return domain.ChatSession{}, fmt.Errorf("update model: %w", err)
		}
	}
	if update.IsActive != nil {
		if err := a.store.SetSessionActive(sessionID, userID, *update.IsActive); err != nil {
			return domain.ChatSession{}, fmt.Errorf("update active flag: %w", err)
		}
	}
	return a.GetSession(userID, sessionID)
}

// DeleteSession removes a session and everything hanging off it.
func (a *App) DeleteSession(userID, sessionID string) error {
	if _, err := a.GetSession(userID, sessionID); err != nil {
		return err
	}
	if err := a.store.DeleteSession(sessionID, userID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// ListSessionMessages returns a session's history in chronological order.
func (a *App) ListSessionMessages(userID, sessionID string, limit int) ([]domain.Message, error) {
	if _, err := a.GetSession(userID, sessionID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = a.historyLimit
	}
	items, err := a.store.ListMessages(sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return items, nil
}

// AppendSessionMessage records one turn in a session the user owns.
func (a *App) AppendSessionMessage(userID, sessionID, role, content string) (domain.Message, error) {
	switch role {
	case domain.RoleUser, domain.RoleAssistant, domain.RoleSystem:
	default:
		return domain.Message{}, fmt.Errorf("%w: unknown role %q", ErrValidation, role)
	}
	if strings.TrimSpace(content) == "" {
		return domain.Message{}, fmt.Errorf("%w: content required", ErrValidation)
	}
	if _, err := a.GetSession(userID, sessionID); err != nil {
		return domain.Message{}, err
	}
	msg := domain.Message{
		ID:        util.NewID(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.store.AppendMessage(msg); err != nil {
		return domain.Message{}, fmt.Errorf("append message: %w", err)
	}
	return msg, nil
}

// EndSession marks the session inactive. The caller is expected to enqueue
// summarization afterwards; ending the chat never fails on summarizer
// trouble.
func (a *App) EndSession(userID, sessionID string) (domain.ChatSession, error) {
	session, err := a.GetSession(userID, sessionID)
	if err != nil {
		return domain.ChatSession{}, err
	}
	if session.IsActive {
		if err := a.store.SetSessionActive(sessionID, userID, false); err != nil {
			return domain.ChatSession{}, fmt.Errorf("end session: %w", err)
		}
		session.IsActive = false
	}
	return session, nil
}

// SummarizeSession loads a session's stored history and summarizes it.
// Used by the queue worker for end-of-session jobs.
func (a *App) SummarizeSession(ctx context.Context, userID, sessionID string) (domain.ChatSummary, error) {
	if _, err := a.GetSession(userID, sessionID); err != nil {
		return domain.ChatSummary{}, err
	}
	messages, err := a.store.ListMessages(sessionID, a.historyLimit)
	if err != nil {
		return domain.ChatSummary{}, fmt.Errorf("load history: %w", err)
	}
	return a.SummarizeConversation(ctx, sessionID, messages, userID), nil
}

// GetPreferences returns the user's stored explicit preferences.
func (a *App) GetPreferences(userID string) (map[string]string, error) {
	prefs, found, err := a.store.GetPreferences(userID)
	if err != nil {
		return nil, fmt.Errorf("load preferences: %w", err)
	}
	if !found {
		return map[string]string{}, nil
	}
	return prefs, nil
}

// SavePreferences replaces the user's explicit preferences.
func (a *App) SavePreferences(userID string, prefs map[string]string) error {
	if prefs == nil {
		prefs = map[string]string{}
	}
	if err := a.store.SavePreferences(userID, prefs); err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	return nil
}
