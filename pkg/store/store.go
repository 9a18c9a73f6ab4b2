package store

import "theduck/pkg/domain"

// Store defines persistence operations for chat sessions, messages,
// summaries, user preferences, and upload bookkeeping.
//
// All session reads and writes are scoped by owner id; a lookup for a
// session the caller does not own behaves like a missing row. Concurrent
// writes to the same session are last-write-wins; the backing database is
// responsible for serializing them.
type Store interface {
	// sessions
	CreateSession(session domain.ChatSession) error
	GetSession(id, ownerID string) (domain.ChatSession, bool, error)
	ListSessionsByOwner(ownerID string, limit int) ([]domain.ChatSession, error)
	UpdateSessionTitle(id, ownerID, title string) error
	UpdateSessionModel(id, ownerID, model string) error
	SetSessionActive(id, ownerID string, active bool) error
	DeleteSession(id, ownerID string) error

	// messages
	AppendMessage(msg domain.Message) error
	ListMessages(sessionID string, limit int) ([]domain.Message, error)

	// summaries
	CreateSummary(summary domain.ChatSummary) error
	ListSummariesBySession(sessionID string) ([]domain.ChatSummary, error)

	// preferences
	GetPreferences(userID string) (map[string]string, bool, error)
	SavePreferences(userID string, prefs map[string]string) error

	// uploads
	SaveUpload(upload domain.Upload) error
	ListUploadsByOwner(ownerID string) ([]domain.Upload, error)
}
