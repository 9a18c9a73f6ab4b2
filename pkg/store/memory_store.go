package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"theduck/pkg/domain"
)

// MemoryStore keeps everything in-process. Used in tests and local runs
// without a database.
type MemoryStore struct {
	mu        sync.RWMutex
	sessions  map[string]domain.ChatSession
	messages  map[string][]domain.Message     // session ID -> messages
	summaries map[string][]domain.ChatSummary // session ID -> summaries
	prefs     map[string]map[string]string    // user ID -> explicit prefs
	uploads   map[string][]domain.Upload      // user ID -> uploads
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:  make(map[string]domain.ChatSession),
		messages:  make(map[string][]domain.Message),
		summaries: make(map[string][]domain.ChatSummary),
		prefs:     make(map[string]map[string]string),
		uploads:   make(map[string][]domain.Upload),
	}
}

var _ Store = (*MemoryStore)(nil)

// CreateSession stores a session record.
func (m *MemoryStore) CreateSession(session domain.ChatSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[session.ID]; exists {
		return fmt.Errorf("session %s already exists", session.ID)
	}
	m.sessions[session.ID] = session
	return nil
}

// GetSession retrieves a session scoped by owner.
func (m *MemoryStore) GetSession(id, ownerID string) (domain.ChatSession, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[id]
	if !ok || session.OwnerID != ownerID {
		return domain.ChatSession{}, false, nil
	}
	return session, true, nil
}

// ListSessionsByOwner returns the owner's sessions, most recent first.
func (m *MemoryStore) ListSessionsByOwner(ownerID string, limit int) ([]domain.ChatSession, error) {
	if limit <= 0 {
		limit = 100
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.ChatSession, 0)
	for _, session := range m.sessions {
		if session.OwnerID == ownerID {
			res = append(res, session)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].UpdatedAt.After(res[j].UpdatedAt)
	})
	if len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

// UpdateSessionTitle sets the title scoped by id + owner.
func (m *MemoryStore) UpdateSessionTitle(id, ownerID, title string) error {
	return m.updateSession(id, ownerID, func(s *domain.ChatSession) {
		s.Title = title
	})
}

// UpdateSessionModel sets the model identifier scoped by id + owner.
func (m *MemoryStore) UpdateSessionModel(id, ownerID, model string) error {
	return m.updateSession(id, ownerID, func(s *domain.ChatSession) {
		s.Model = model
	})
}

// SetSessionActive flips the active flag scoped by id + owner.
func (m *MemoryStore) SetSessionActive(id, ownerID string, active bool) error {
	return m.updateSession(id, ownerID, func(s *domain.ChatSession) {
		s.IsActive = active
	})
}

func (m *MemoryStore) updateSession(id, ownerID string, apply func(*domain.ChatSession)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok || session.OwnerID != ownerID {
		return fmt.Errorf("session %s not found for owner", id)
	}
	apply(&session)
	session.UpdatedAt = time.Now().UTC()
	m.sessions[id] = session
	return nil
}

// DeleteSession removes a session with its messages and summaries.
func (m *MemoryStore) DeleteSession(id, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok || session.OwnerID != ownerID {
		return fmt.Errorf("session %s not found for owner", id)
	}
	delete(m.sessions, id)
	delete(m.messages, id)
	delete(m.summaries, id)
	return nil
}

// AppendMessage records a message linked to a session.
func (m *MemoryStore) AppendMessage(msg domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[msg.SessionID] = append(m.messages[msg.SessionID], msg)
	return nil
}

// ListMessages returns a session's messages in insertion order.
func (m *MemoryStore) ListMessages(sessionID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 500
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	msgs := m.messages[sessionID]
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	out := make([]domain.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// CreateSummary stores a summary row.
func (m *MemoryStore) CreateSummary(summary domain.ChatSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries[summary.SessionID] = append(m.summaries[summary.SessionID], summary)
	return nil
}

// ListSummariesBySession returns a session's summaries, newest first.
func (m *MemoryStore) ListSummariesBySession(sessionID string) ([]domain.ChatSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := m.summaries[sessionID]
	out := make([]domain.ChatSummary, len(items))
	copy(out, items)
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// GetPreferences returns the user's explicit preference map.
func (m *MemoryStore) GetPreferences(userID string) (map[string]string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	prefs, ok := m.prefs[userID]
	if !ok {
		return nil, false, nil
	}
	out := make(map[string]string, len(prefs))
	for k, v := range prefs {
		out[k] = v
	}
	return out, true, nil
}

// SavePreferences replaces the user's explicit preference map.
func (m *MemoryStore) SavePreferences(userID string, prefs map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := make(map[string]string, len(prefs))
	for k, v := range prefs {
		copied[k] = v
	}
	m.prefs[userID] = copied
	return nil
}

// SaveUpload records upload metadata.
func (m *MemoryStore) SaveUpload(upload domain.Upload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads[upload.OwnerID] = append(m.uploads[upload.OwnerID], upload)
	return nil
}

// ListUploadsByOwner returns the owner's uploads, newest first.
func (m *MemoryStore) ListUploadsByOwner(ownerID string) ([]domain.Upload, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := m.uploads[ownerID]
	out := make([]domain.Upload, len(items))
	copy(out, items)
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
