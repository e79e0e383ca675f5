package store

import (
	"context"
	"errors"
	"time"

	"fundamentallm-backend/internal/models"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a specific record is not found.
var ErrNotFound = errors.New("record not found")

// CreateConversationParams contains parameters for creating a conversation.
// A nil ID asks the store to assign one. CreatedAt also seeds updated_at;
// a zero CreatedAt means now.
type CreateConversationParams struct {
	ID        uuid.UUID
	Title     *string
	CreatedAt time.Time
}

// Store defines the persistence operations the conversation service relies on.
type Store interface {
	// CreateConversation persists a new conversation with an empty history.
	CreateConversation(ctx context.Context, arg CreateConversationParams) (*models.Conversation, error)
	// GetConversationByID returns ErrNotFound when no conversation has the id.
	GetConversationByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
	// SaveConversation overwrites title, messages and updated_at in one write.
	// The last write wins; callers serialize writes to the same conversation.
	SaveConversation(ctx context.Context, conv *models.Conversation) error
	// Ping checks that the backing storage is reachable.
	Ping(ctx context.Context) error
}
