package types

import (
	"scholar/scholar/sources/db/models"

	"github.com/google/uuid"
)

type IndexRequest struct {
	PaperIDs []int `json:"paper_ids"`
}

type IndexResult struct {
	PaperID int    `json:"paper_id"`
	Chunks  int    `json:"chunks"`
	Error   string `json:"error,omitempty"`
}

type CreateSessionRequest struct {
	Title    string `json:"title"`
	PaperIDs []int  `json:"paper_ids"`
}

type ChatRequest struct {
	SessionID uuid.UUID `json:"session_id"`
	Question  string    `json:"question"`
}

type ChatResponse struct {
	Answer    string          `json:"answer"`
	SessionID uuid.UUID       `json:"session_id"`
	Sources   []models.Source `json:"sources"`
}

// StreamRequest is the first websocket frame of a streamed chat.
type StreamRequest struct {
	Token     string    `json:"token"`
	SessionID uuid.UUID `json:"session_id"`
	Question  string    `json:"question"`
}

// StreamFrame is one server message of a streamed chat: "delta" frames carry
// answer text, the final "done" frame carries the sources.
type StreamFrame struct {
	Type    string          `json:"type"`
	Content string          `json:"content,omitempty"`
	Sources []models.Source `json:"sources,omitempty"`
	Error   string          `json:"error,omitempty"`
}
