package models

import (
	"time"

	"github.com/pgvector/pgvector-go"
)

const (
	SourceArxiv  = "arxiv"
	SourceUpload = "upload"
	SourceWeb    = "web"
)

type PaperMetadata struct {
	ID         int        `json:"id" gorm:"primaryKey;autoIncrement"`
	Source     string     `json:"source" gorm:"type:varchar(32);not null"`
	ExternalID string     `json:"external_id" gorm:"type:varchar(512);uniqueIndex;not null"`
	Title      string     `json:"title" gorm:"type:text;not null"`
	Authors    []string   `json:"authors" gorm:"type:text;serializer:json"`
	Abstract   string     `json:"abstract" gorm:"type:text"`
	PDFURL     string     `json:"pdf_url" gorm:"type:varchar(1024)"`
	Published  *time.Time `json:"published,omitempty"`
	StorageKey string     `json:"-" gorm:"type:varchar(512)"`
	Indexed    bool       `json:"indexed" gorm:"not null;default:false"`
	CreatedAt  time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt  time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

func (PaperMetadata) TableName() string {
	return "paper_metadata"
}

func (p PaperMetadata) Stored() bool {
	return p.StorageKey != ""
}

// PaperChunk is one retrievable slice of a paper's text. The embedding is
// kept in pgvector's text form so the column works on SQLite as well.
type PaperChunk struct {
	ID        int             `json:"id" gorm:"primaryKey;autoIncrement"`
	PaperID   int             `json:"paper_id" gorm:"not null;uniqueIndex:idx_chunk_paper_ordinal"`
	Paper     PaperMetadata   `json:"-" gorm:"foreignKey:PaperID;references:ID;constraint:OnDelete:CASCADE"`
	Ordinal   int             `json:"ordinal" gorm:"not null;uniqueIndex:idx_chunk_paper_ordinal"`
	Content   string          `json:"content" gorm:"type:text;not null"`
	Embedding pgvector.Vector `json:"-" gorm:"type:text"`
}
