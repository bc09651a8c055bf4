package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type ChatSession struct {
	ID        uuid.UUID     `json:"id" gorm:"type:varchar(36);primaryKey"`
	UserID    int           `json:"user_id" gorm:"not null;index"`
	User      User          `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE"`
	Title     string        `json:"title" gorm:"type:varchar(255);default:''"`
	PaperIDs  []int         `json:"paper_ids" gorm:"type:text;serializer:json"`
	Messages  []ChatMessage `json:"-" gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time     `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time     `json:"updated_at" gorm:"autoUpdateTime"`
}

func (s *ChatSession) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// Source points an answer back at the chunk it was grounded on.
type Source struct {
	PaperID int     `json:"paper_id"`
	Title   string  `json:"title"`
	Ordinal int     `json:"ordinal"`
	Score   float64 `json:"score"`
}

type ChatMessage struct {
	ID        uuid.UUID `json:"id" gorm:"type:varchar(36);primaryKey"`
	SessionID uuid.UUID `json:"session_id" gorm:"type:varchar(36);not null;index"`
	UserID    int       `json:"user_id" gorm:"not null"`
	Role      string    `json:"role" gorm:"type:varchar(50);not null"`
	Content   string    `json:"content" gorm:"type:text;not null"`
	Sources   []Source  `json:"sources,omitempty" gorm:"type:text;serializer:json"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (m *ChatMessage) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// All lists every model the schema is built from, in dependency order.
func All() []any {
	return []any{
		&User{},
		&RevokedToken{},
		&PaperMetadata{},
		&PaperChunk{},
		&ChatSession{},
		&ChatMessage{},
	}
}
