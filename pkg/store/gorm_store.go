package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"theduck/pkg/domain"
)

const migrateLockID int64 = 84218421

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations under an advisory lock
// so concurrent replicas do not race on schema changes.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&SessionModel{}, &MessageModel{}, &SummaryModel{}, &PreferenceModel{}, &UploadModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		if err := tx.Exec(`
			DO $$
			BEGIN
				DELETE FROM chat_messages m
				WHERE NOT EXISTS (SELECT 1 FROM chat_sessions s WHERE s.id = m.session_id);
				DELETE FROM chat_summaries cs
				WHERE NOT EXISTS (SELECT 1 FROM chat_sessions s WHERE s.id = cs.session_id);
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'chat_messages'
					AND constraint_name = 'chat_messages_session_id_fkey'
				) THEN
					ALTER TABLE chat_messages
					ADD CONSTRAINT chat_messages_session_id_fkey
					FOREIGN KEY (session_id) REFERENCES chat_sessions(id) ON DELETE CASCADE;
				END IF;
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'chat_summaries'
					AND constraint_name = 'chat_summaries_session_id_fkey'
				) THEN
					ALTER TABLE chat_summaries
					ADD CONSTRAINT chat_summaries_session_id_fkey
					FOREIGN KEY (session_id) REFERENCES chat_sessions(id) ON DELETE CASCADE;
				END IF;
			END $$;
		`).Error; err != nil {
			return fmt.Errorf("ensure session foreign keys: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// CreateSession inserts a new session record.
func (s *GormStore) CreateSession(session domain.ChatSession) error {
	model := sessionToModel(session)
	return s.db.Create(&model).Error
}

// GetSession returns one session scoped by owner.
func (s *GormStore) GetSession(id, ownerID string) (domain.ChatSession, bool, error) {
	var model SessionModel
	if err := s.db.First(&model, "id = ? AND user_id = ?", id, ownerID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.ChatSession{}, false, nil
		}
		return domain.ChatSession{}, false, err
	}
	return sessionFromModel(model), true, nil
}

// ListSessionsByOwner returns the owner's sessions, most recent first.
func (s *GormStore) ListSessionsByOwner(ownerID string, limit int) ([]domain.ChatSession, error) {
	if limit <= 0 {
		limit = 100
	}
	var models []SessionModel
	if err := s.db.Where("user_id = ?", ownerID).
		Order("updated_at DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	items := make([]domain.ChatSession, 0, len(models))
	for _, m := range models {
		items = append(items, sessionFromModel(m))
	}
	return items, nil
}

// UpdateSessionTitle sets the title, scoped by id + owner. Last write wins.
func (s *GormStore) UpdateSessionTitle(id, ownerID, title string) error {
	return s.updateSession(id, ownerID, map[string]any{"title": title})
}

// UpdateSessionModel sets the model identifier, scoped by id + owner.
func (s *GormStore) UpdateSessionModel(id, ownerID, model string) error {
	return s.updateSession(id, ownerID, map[string]any{"model": model})
}

// SetSessionActive flips the active flag, scoped by id + owner.
func (s *GormStore) SetSessionActive(id, ownerID string, active bool) error {
	return s.updateSession(id, ownerID, map[string]any{"is_active": active})
}

func (s *GormStore) updateSession(id, ownerID string, updates map[string]any) error {
	updates["updated_at"] = time.Now().UTC()
	res := s.db.Model(&SessionModel{}).
		Where("id = ? AND user_id = ?", id, ownerID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteSession removes the session; messages and summaries follow via the
// FK cascade.
func (s *GormStore) DeleteSession(id, ownerID string) error {
	res := s.db.Delete(&SessionModel{}, "id = ? AND user_id = ?", id, ownerID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// AppendMessage records one conversation turn.
func (s *GormStore) AppendMessage(msg domain.Message) error {
	model := messageToModel(msg)
	return s.db.Create(&model).Error
}

// ListMessages returns messages of a session in chronological order.
func (s *GormStore) ListMessages(sessionID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 500
	}
	var models []MessageModel
	if err := s.db.Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	items := make([]domain.Message, 0, len(models))
	for _, m := range models {
		items = append(items, messageFromModel(m))
	}
	return items, nil
}

// CreateSummary inserts an immutable end-of-session summary row.
func (s *GormStore) CreateSummary(summary domain.ChatSummary) error {
	model, err := summaryToModel(summary)
	if err != nil {
		return err
	}
	return s.db.Create(&model).Error
}

// ListSummariesBySession returns a session's summaries, newest first.
func (s *GormStore) ListSummariesBySession(sessionID string) ([]domain.ChatSummary, error) {
	var models []SummaryModel
	if err := s.db.Where("session_id = ?", sessionID).
		Order("created_at DESC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	items := make([]domain.ChatSummary, 0, len(models))
	for _, m := range models {
		summary, err := summaryFromModel(m)
		if err != nil {
			return nil, err
		}
		items = append(items, summary)
	}
	return items, nil
}

// GetPreferences returns the user's explicit preference map.
func (s *GormStore) GetPreferences(userID string) (map[string]string, bool, error) {
	var model PreferenceModel
	if err := s.db.First(&model, "user_id = ?", userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}
	prefs := map[string]string{}
	if len(model.Explicit) > 0 {
		if err := json.Unmarshal(model.Explicit, &prefs); err != nil {
			return nil, false, fmt.Errorf("decode preferences: %w", err)
		}
	}
	return prefs, true, nil
}

// SavePreferences upserts the user's explicit preference map.
func (s *GormStore) SavePreferences(userID string, prefs map[string]string) error {
	raw, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	model := PreferenceModel{
		UserID:    userID,
		Explicit:  datatypes.JSON(raw),
		UpdatedAt: time.Now().UTC(),
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"explicit", "updated_at"}),
	}).Create(&model).Error
}

// SaveUpload records upload metadata.
func (s *GormStore) SaveUpload(upload domain.Upload) error {
	model := uploadToModel(upload)
	return s.db.Create(&model).Error
}

// ListUploadsByOwner returns the owner's uploads, newest first.
func (s *GormStore) ListUploadsByOwner(ownerID string) ([]domain.Upload, error) {
	var models []UploadModel
	if err := s.db.Where("user_id = ?", ownerID).
		Order("created_at DESC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	items := make([]domain.Upload, 0, len(models))
	for _, m := range models {
		items = append(items, uploadFromModel(m))
	}
	return items, nil
}

// model conversions

func sessionToModel(s domain.ChatSession) SessionModel {
	return SessionModel{
		ID:        s.ID,
		UserID:    s.OwnerID,
		Title:     s.Title,
		Model:     s.Model,
		IsActive:  s.IsActive,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

func sessionFromModel(m SessionModel) domain.ChatSession {
	return domain.ChatSession{
		ID:        m.ID,
		OwnerID:   m.UserID,
		Title:     m.Title,
		Model:     m.Model,
		IsActive:  m.IsActive,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func messageToModel(msg domain.Message) MessageModel {
	return MessageModel{
		ID:        msg.ID,
		SessionID: msg.SessionID,
		Role:      msg.Role,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
	}
}

func messageFromModel(m MessageModel) domain.Message {
	return domain.Message{
		ID:        m.ID,
		SessionID: m.SessionID,
		Role:      m.Role,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}

func summaryToModel(s domain.ChatSummary) (SummaryModel, error) {
	topics, err := json.Marshal(s.KeyTopics)
	if err != nil {
		return SummaryModel{}, fmt.Errorf("encode key topics: %w", err)
	}
	prefs, err := json.Marshal(s.UserPreferences)
	if err != nil {
		return SummaryModel{}, fmt.Errorf("encode user preferences: %w", err)
	}
	return SummaryModel{
		ID:              s.ID,
		SessionID:       s.SessionID,
		Summary:         s.Summary,
		KeyTopics:       datatypes.JSON(topics),
		UserPreferences: datatypes.JSON(prefs),
		CreatedAt:       s.CreatedAt,
	}, nil
}

func summaryFromModel(m SummaryModel) (domain.ChatSummary, error) {
	summary := domain.ChatSummary{
		ID:        m.ID,
		SessionID: m.SessionID,
		Summary:   m.Summary,
		CreatedAt: m.CreatedAt,
	}
	if len(m.KeyTopics) > 0 {
		if err := json.Unmarshal(m.KeyTopics, &summary.KeyTopics); err != nil {
			return domain.ChatSummary{}, fmt.Errorf("decode key topics: %w", err)
		}
	}
	if len(m.UserPreferences) > 0 {
		if err := json.Unmarshal(m.UserPreferences, &summary.UserPreferences); err != nil {
			return domain.ChatSummary{}, fmt.Errorf("decode user preferences: %w", err)
		}
	}
	if summary.KeyTopics == nil {
		summary.KeyTopics = []string{}
	}
	return summary, nil
}

func uploadToModel(u domain.Upload) UploadModel {
	return UploadModel{
		ID:               u.ID,
		UserID:           u.OwnerID,
		OriginalFilename: u.OriginalFilename,
		StorageKey:       u.StorageKey,
		ContentType:      u.ContentType,
		SizeBytes:        u.SizeBytes,
		CreatedAt:        u.CreatedAt,
	}
}

func uploadFromModel(m UploadModel) domain.Upload {
	return domain.Upload{
		ID:               m.ID,
		OwnerID:          m.UserID,
		OriginalFilename: m.OriginalFilename,
		StorageKey:       m.StorageKey,
		ContentType:      m.ContentType,
		SizeBytes:        m.SizeBytes,
		CreatedAt:        m.CreatedAt,
	}
}

var _ Store = (*GormStore)(nil)
