package models

import (
	"encoding/json"
	"time"

	"fundamentallm-backend/internal/history"

	"github.com/google/uuid"
)

// --- Request Structs ---

// StartConversationRequest defines the body of POST /conversations.
// When Text is present the conversation is created and asked in one step.
type StartConversationRequest struct {
	Title *string `json:"title,omitempty"`
	Text  *string `json:"text,omitempty"`
}

// ChatMessageRequest defines the body for sending a user message.
type ChatMessageRequest struct {
	Text string `json:"text"`
}

// ImportRequest replaces a conversation's title and history.
type ImportRequest struct {
	Title    *string         `json:"title,omitempty"`
	Messages json.RawMessage `json:"messages"`
}

// --- Response Structs ---

// ErrorResponse defines the standard structure for API errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ConversationResponse describes a conversation without its history.
type ConversationResponse struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	Title          *string   `json:"title"`
	TurnCount      int       `json:"turn_count"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// StartConversationResponse is returned when a conversation is created.
// ReplyText is only set when the creation also asked a first question.
type StartConversationResponse struct {
	ConversationID   uuid.UUID `json:"conversation_id"`
	Title            *string   `json:"title"`
	ReplyText        *string   `json:"reply_text,omitempty"`
	UsageTotalTokens *int      `json:"usage_total_tokens,omitempty"`
}

// ChatMessageResponse carries the model's reply to a user message.
type ChatMessageResponse struct {
	ConversationID   uuid.UUID `json:"conversation_id"`
	ReplyText        string    `json:"reply_text"`
	UsageTotalTokens *int      `json:"usage_total_tokens,omitempty"`
}

// ImportResponse reports the outcome of an import.
type ImportResponse struct {
	OK    bool    `json:"ok"`
	Title *string `json:"title,omitempty"`
	Error string  `json:"error,omitempty"`
}

// ExportResponse is the full, importable snapshot of a conversation.
type ExportResponse struct {
	ConversationID uuid.UUID      `json:"conversation_id"`
	Title          *string        `json:"title"`
	Messages       []history.Turn `json:"messages"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// HealthResponse reports service health.
type HealthResponse struct {
	Status   string            `json:"status"`
	Database bool              `json:"database"`
	Checks   map[string]string `json:"checks"`
}
