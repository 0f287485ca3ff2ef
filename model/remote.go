package model

import (
	"time"

	"gorm.io/datatypes"
)

// UserDocument is the per-user document in the remote store. Data holds
// the scalar progression fields, inventory and pity counters as JSON;
// history lives in the two subcollection tables below.
type UserDocument struct {
	UserID    string         `gorm:"primaryKey;size:64" json:"user_id"`
	Data      datatypes.JSON `json:"data"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (UserDocument) TableName() string { return "user_documents" }

// QuizHistoryDoc is one row of the remote quiz_history subcollection.
type QuizHistoryDoc struct {
	ID         string         `gorm:"primaryKey;size:36" json:"id"`
	UserID     string         `gorm:"index:idx_quiz_user;size:64;not null" json:"user_id"`
	SourceText string         `gorm:"type:text" json:"source_text"`
	Payload    datatypes.JSON `json:"payload"`
	CreatedAt  time.Time      `gorm:"index:idx_quiz_created" json:"created_at"`
}

func (QuizHistoryDoc) TableName() string { return "quiz_history" }

// TranslationHistoryDoc is one row of the remote translation_history
// subcollection.
type TranslationHistoryDoc struct {
	ID         string         `gorm:"primaryKey;size:36" json:"id"`
	UserID     string         `gorm:"index:idx_trans_user;size:64;not null" json:"user_id"`
	SourceText string         `gorm:"type:text" json:"source_text"`
	Payload    datatypes.JSON `json:"payload"`
	CreatedAt  time.Time      `gorm:"index:idx_trans_created" json:"created_at"`
}

func (TranslationHistoryDoc) TableName() string { return "translation_history" }
