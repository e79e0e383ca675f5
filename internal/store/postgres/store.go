package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fundamentallm-backend/internal/models"
	"fundamentallm-backend/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Compile-time check to ensure PostgresStore implements store.Store
var _ store.Store = (*PostgresStore)(nil)

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const createConversation = `-- name: CreateConversation :one
INSERT INTO conversations (
    id, title, messages, created_at, updated_at
) VALUES (
    $1, $2, '[]'::jsonb, $3, $3
)
RETURNING id, title, messages, created_at, updated_at;
`

// CreateConversation inserts a conversation with an empty history.
func (s *PostgresStore) CreateConversation(ctx context.Context, arg store.CreateConversationParams) (*models.Conversation, error) {
	id := arg.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	createdAt := arg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	row := s.db.QueryRow(ctx, createConversation, id, arg.Title, createdAt)
	conv, err := scanConversation(row)
	if err != nil {
		log.Error().Err(err).Str("conversation_id", id.String()).Msg("[PostgresStore] CreateConversation failed")
		return nil, fmt.Errorf("error creating conversation: %w", err)
	}

	log.Debug().Str("conversation_id", conv.ID.String()).Msg("[PostgresStore] conversation created")
	return conv, nil
}

const getConversationByID = `-- name: GetConversationByID :one
SELECT id, title, messages, created_at, updated_at
FROM conversations
WHERE id = $1;
`

// GetConversationByID returns store.ErrNotFound when the row does not exist.
func (s *PostgresStore) GetConversationByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	row := s.db.QueryRow(ctx, getConversationByID, id)
	conv, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("error scanning conversation: %w", err)
	}
	return conv, nil
}

const saveConversation = `-- name: SaveConversation :exec
UPDATE conversations
SET title = $2, messages = $3, updated_at = $4
WHERE id = $1;
`

// SaveConversation writes title, messages and updated_at in a single statement.
func (s *PostgresStore) SaveConversation(ctx context.Context, conv *models.Conversation) error {
	messages := conv.Messages
	if len(messages) == 0 {
		messages = []byte("[]")
	}

	tag, err := s.db.Exec(ctx, saveConversation, conv.ID, conv.Title, []byte(messages), conv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}

	return nil
}

// Ping runs a trivial query against the pool.
func (s *PostgresStore) Ping(ctx context.Context) error {
	var one int
	if err := s.db.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

func scanConversation(row pgx.Row) (*models.Conversation, error) {
	var conv models.Conversation
	var messages []byte
	err := row.Scan(
		&conv.ID,
		&conv.Title,
		&messages,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	conv.Messages = messages
	return &conv, nil
}
