package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"

	"theduck/pkg/domain"
)

// SupabaseStore implements Store against a Supabase project over PostgREST.
// Requests run with the service key; owner scoping is applied explicitly on
// every query in addition to the project's row-level-security policies.
type SupabaseStore struct {
	client *supabase.Client
}

// NewSupabaseStore connects to a Supabase project.
func NewSupabaseStore(projectURL, apiKey string) (*SupabaseStore, error) {
	if projectURL == "" {
		return nil, fmt.Errorf("supabase URL is required")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("supabase API key is required")
	}
	client, err := supabase.NewClient(projectURL, apiKey, nil)
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	return &SupabaseStore{client: client}, nil
}

var _ Store = (*SupabaseStore)(nil)

// REST row shapes. Column names mirror the GORM models in models.go.

type sessionRow struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Model     string    `json:"model"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type messageRow struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type summaryRow struct {
	ID              string          `json:"id"`
	SessionID       string          `json:"session_id"`
	Summary         string          `json:"summary"`
	KeyTopics       json.RawMessage `json:"key_topics"`
	UserPreferences json.RawMessage `json:"user_preferences"`
	CreatedAt       time.Time       `json:"created_at"`
}

type preferenceRow struct {
	UserID    string          `json:"user_id"`
	Explicit  json.RawMessage `json:"explicit"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type uploadRow struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	OriginalFilename string    `json:"original_filename"`
	StorageKey       string    `json:"storage_key"`
	ContentType      string    `json:"content_type"`
	SizeBytes        int64     `json:"size_bytes"`
	CreatedAt        time.Time `json:"created_at"`
}

// CreateSession inserts a new session row.
func (s *SupabaseStore) CreateSession(session domain.ChatSession) error {
	row := sessionRow{
		ID:        session.ID,
		UserID:    session.OwnerID,
		Title:     session.Title,
		Model:     session.Model,
		IsActive:  session.IsActive,
		CreatedAt: session.CreatedAt,
		UpdatedAt: session.UpdatedAt,
	}
	_, _, err := s.client.From("chat_sessions").Insert(row, false, "", "", "").Execute()
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession returns one session scoped by owner.
func (s *SupabaseStore) GetSession(id, ownerID string) (domain.ChatSession, bool, error) {
	var rows []sessionRow
	_, err := s.client.From("chat_sessions").
		Select("*", "", false).
		Eq("id", id).
		Eq("user_id", ownerID).
		ExecuteTo(&rows)
	if err != nil {
		return domain.ChatSession{}, false, fmt.Errorf("get session: %w", err)
	}
	if len(rows) == 0 {
		return domain.ChatSession{}, false, nil
	}
	return sessionFromRow(rows[0]), true, nil
}

// ListSessionsByOwner returns the owner's sessions, most recent first.
func (s *SupabaseStore) ListSessionsByOwner(ownerID string, limit int) ([]domain.ChatSession, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []sessionRow
	_, err := s.client.From("chat_sessions").
		Select("*", "", false).
		Eq("user_id", ownerID).
		Order("updated_at", &postgrest.OrderOpts{Ascending: false}).
		Limit(limit, "").
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	items := make([]domain.ChatSession, 0, len(rows))
	for _, row := range rows {
		items = append(items, sessionFromRow(row))
	}
	return items, nil
}

// UpdateSessionTitle sets the title, scoped by id + owner.
func (s *SupabaseStore) UpdateSessionTitle(id, ownerID, title string) error {
	return s.updateSession(id, ownerID, map[string]any{"title": title})
}

// UpdateSessionModel sets the model identifier, scoped by id + owner.
func (s *SupabaseStore) UpdateSessionModel(id, ownerID, model string) error {
	return s.updateSession(id, ownerID, map[string]any{"model": model})
}

// SetSessionActive flips the active flag, scoped by id + owner.
func (s *SupabaseStore) SetSessionActive(id, ownerID string, active bool) error {
	return s.updateSession(id, ownerID, map[string]any{"is_active": active})
}

func (s *SupabaseStore) updateSession(id, ownerID string, updates map[string]any) error {
	updates["updated_at"] = time.Now().UTC()
	data, _, err := s.client.From("chat_sessions").
		Update(updates, "representation", "").
		Eq("id", id).
		Eq("user_id", ownerID).
		Execute()
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if emptyResult(data) {
		return fmt.Errorf("session %s not found for owner", id)
	}
	return nil
}

// DeleteSession removes the session; messages and summaries cascade.
func (s *SupabaseStore) DeleteSession(id, ownerID string) error {
	data, _, err := s.client.From("chat_sessions").
		Delete("representation", "").
		Eq("id", id).
		Eq("user_id", ownerID).
		Execute()
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if emptyResult(data) {
		return fmt.Errorf("session %s not found for owner", id)
	}
	return nil
}

// AppendMessage records one conversation turn.
func (s *SupabaseStore) AppendMessage(msg domain.Message) error {
	row := messageRow{
		ID:        msg.ID,
		SessionID: msg.SessionID,
		Role:      msg.Role,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
	}
	_, _, err := s.client.From("chat_messages").Insert(row, false, "", "", "").Execute()
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// ListMessages returns a session's messages in chronological order.
func (s *SupabaseStore) ListMessages(sessionID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 500
	}
	var rows []messageRow
	_, err := s.client.From("chat_messages").
		Select("*", "", false).
		Eq("session_id", sessionID).
		Order("created_at", &postgrest.OrderOpts{Ascending: true}).
		Limit(limit, "").
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	items := make([]domain.Message, 0, len(rows))
	for _, row := range rows {
		items = append(items, domain.Message{
			ID:        row.ID,
			SessionID: row.SessionID,
			Role:      row.Role,
			Content:   row.Content,
			CreatedAt: row.CreatedAt,
		})
	}
	return items, nil
}

// CreateSummary inserts an immutable summary row.
func (s *SupabaseStore) CreateSummary(summary domain.ChatSummary) error {
	topics, err := json.Marshal(summary.KeyTopics)
	if err != nil {
		return fmt.Errorf("encode key topics: %w", err)
	}
	prefs, err := json.Marshal(summary.UserPreferences)
	if err != nil {
		return fmt.Errorf("encode user preferences: %w", err)
	}
	row := summaryRow{
		ID:              summary.ID,
		SessionID:       summary.SessionID,
		Summary:         summary.Summary,
		KeyTopics:       topics,
		UserPreferences: prefs,
		CreatedAt:       summary.CreatedAt,
	}
	_, _, err = s.client.From("chat_summaries").Insert(row, false, "", "", "").Execute()
	if err != nil {
		return fmt.Errorf("insert summary: %w", err)
	}
	return nil
}

// ListSummariesBySession returns a session's summaries, newest first.
func (s *SupabaseStore) ListSummariesBySession(sessionID string) ([]domain.ChatSummary, error) {
	var rows []summaryRow
	_, err := s.client.From("chat_summaries").
		Select("*", "", false).
		Eq("session_id", sessionID).
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}
	items := make([]domain.ChatSummary, 0, len(rows))
	for _, row := range rows {
		summary := domain.ChatSummary{
			ID:        row.ID,
			SessionID: row.SessionID,
			Summary:   row.Summary,
			KeyTopics: []string{},
			CreatedAt: row.CreatedAt,
		}
		if len(row.KeyTopics) > 0 {
			if err := json.Unmarshal(row.KeyTopics, &summary.KeyTopics); err != nil {
				return nil, fmt.Errorf("decode key topics: %w", err)
			}
		}
		if len(row.UserPreferences) > 0 {
			if err := json.Unmarshal(row.UserPreferences, &summary.UserPreferences); err != nil {
				return nil, fmt.Errorf("decode user preferences: %w", err)
			}
		}
		items = append(items, summary)
	}
	return items, nil
}

// GetPreferences returns the user's explicit preference map.
func (s *SupabaseStore) GetPreferences(userID string) (map[string]string, bool, error) {
	var rows []preferenceRow
	_, err := s.client.From("user_preferences").
		Select("*", "", false).
		Eq("user_id", userID).
		ExecuteTo(&rows)
	if err != nil {
		return nil, false, fmt.Errorf("get preferences: %w", err)
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	prefs := map[string]string{}
	if len(rows[0].Explicit) > 0 {
		if err := json.Unmarshal(rows[0].Explicit, &prefs); err != nil {
			return nil, false, fmt.Errorf("decode preferences: %w", err)
		}
	}
	return prefs, true, nil
}

// SavePreferences upserts the user's explicit preference map.
func (s *SupabaseStore) SavePreferences(userID string, prefs map[string]string) error {
	raw, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	row := preferenceRow{
		UserID:    userID,
		Explicit:  raw,
		UpdatedAt: time.Now().UTC(),
	}
	_, _, err = s.client.From("user_preferences").Insert(row, true, "user_id", "", "").Execute()
	if err != nil {
		return fmt.Errorf("upsert preferences: %w", err)
	}
	return nil
}

// SaveUpload records upload metadata.
func (s *SupabaseStore) SaveUpload(upload domain.Upload) error {
	row := uploadRow{
		ID:               upload.ID,
		UserID:           upload.OwnerID,
		OriginalFilename: upload.OriginalFilename,
		StorageKey:       upload.StorageKey,
		ContentType:      upload.ContentType,
		SizeBytes:        upload.SizeBytes,
		CreatedAt:        upload.CreatedAt,
	}
	_, _, err := s.client.From("chat_uploads").Insert(row, false, "", "", "").Execute()
	if err != nil {
		return fmt.Errorf("insert upload: %w", err)
	}
	return nil
}

// ListUploadsByOwner returns the owner's uploads, newest first.
func (s *SupabaseStore) ListUploadsByOwner(ownerID string) ([]domain.Upload, error) {
	var rows []uploadRow
	_, err := s.client.From("chat_uploads").
		Select("*", "", false).
		Eq("user_id", ownerID).
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	items := make([]domain.Upload, 0, len(rows))
	for _, row := range rows {
		items = append(items, domain.Upload{
			ID:               row.ID,
			OwnerID:          row.UserID,
			OriginalFilename: row.OriginalFilename,
			StorageKey:       row.StorageKey,
			ContentType:      row.ContentType,
			SizeBytes:        row.SizeBytes,
			CreatedAt:        row.CreatedAt,
		})
	}
	return items, nil
}

func sessionFromRow(row sessionRow) domain.ChatSession {
	return domain.ChatSession{
		ID:        row.ID,
		OwnerID:   row.UserID,
		Title:     row.Title,
		Model:     row.Model,
		IsActive:  row.IsActive,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}

// emptyResult reports whether a PostgREST "representation" response matched
// zero rows.
func emptyResult(data []byte) bool {
	trimmed := string(data)
	return trimmed == "" || trimmed == "[]"
}
