package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence. Table names mirror the hosted schema so
// the same database serves both this store and the Supabase REST driver.

type SessionModel struct {
	ID        string    `gorm:"primaryKey"`
	UserID    string    `gorm:"not null;index"`
	Title     string    `gorm:"not null"`
	Model     string    `gorm:"not null"`
	IsActive  bool      `gorm:"not null;default:true"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (SessionModel) TableName() string { return "chat_sessions" }

type MessageModel struct {
	ID        string    `gorm:"primaryKey"`
	SessionID string    `gorm:"not null;index"`
	Role      string    `gorm:"not null"`
	Content   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null;index"`
}

func (MessageModel) TableName() string { return "chat_messages" }

type SummaryModel struct {
	ID              string         `gorm:"primaryKey"`
	SessionID       string         `gorm:"not null;index"`
	Summary         string         `gorm:"type:text;not null"`
	KeyTopics       datatypes.JSON `gorm:"type:jsonb"`
	UserPreferences datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt       time.Time      `gorm:"not null"`
}

func (SummaryModel) TableName() string { return "chat_summaries" }

type PreferenceModel struct {
	UserID    string         `gorm:"primaryKey"`
	Explicit  datatypes.JSON `gorm:"type:jsonb"`
	UpdatedAt time.Time      `gorm:"not null"`
}

func (PreferenceModel) TableName() string { return "user_preferences" }

type UploadModel struct {
	ID               string    `gorm:"primaryKey"`
	UserID           string    `gorm:"not null;index"`
	OriginalFilename string    `gorm:"not null"`
	StorageKey       string    `gorm:"not null"`
	ContentType      string    `gorm:"not null"`
	SizeBytes        int64     `gorm:"not null"`
	CreatedAt        time.Time `gorm:"not null"`
}

func (UploadModel) TableName() string { return "chat_uploads" }
