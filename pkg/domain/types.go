package domain

import "time"

// WelcomeMessageID marks the synthetic greeting inserted by the frontend.
// Messages carrying this ID never participate in title or summary derivation.
const WelcomeMessageID = "welcome-message"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId,omitempty"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"timestamp"`
}

type ChatSession struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId,omitempty"`
	Title     string    `json:"title"`
	Model     string    `json:"model"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// WritingStyle holds implicit preference signals. Each scalar is in [0,1].
type WritingStyle struct {
	Formality               float64 `json:"formality"`
	Verbosity               float64 `json:"verbosity"`
	TechnicalLevel          float64 `json:"technicalLevel"`
	PreferredResponseLength float64 `json:"preferredResponseLength"`
}

type ImplicitPreferences struct {
	WritingStyle WritingStyle `json:"writingStyle"`
}

type UserPreferences struct {
	Explicit map[string]string   `json:"explicit"`
	Implicit ImplicitPreferences `json:"implicit"`
}

// ChatSummary is created once per end-of-session event and never mutated.
type ChatSummary struct {
	ID              string          `json:"id"`
	SessionID       string          `json:"sessionId"`
	Summary         string          `json:"summary"`
	KeyTopics       []string        `json:"keyTopics"`
	UserPreferences UserPreferences `json:"userPreferences"`
	CreatedAt       time.Time       `json:"createdAt"`
}

type Upload struct {
	ID               string    `json:"id"`
	OwnerID          string    `json:"ownerId"`
	OriginalFilename string    `json:"originalFilename"`
	StorageKey       string    `json:"-"`
	ContentType      string    `json:"contentType"`
	SizeBytes        int64     `json:"sizeBytes"`
	CreatedAt        time.Time `json:"createdAt"`
}
