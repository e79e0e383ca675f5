package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Conversation represents a row in the conversations table.
// Messages holds the encoded turn history exactly as stored (a JSON array).
type Conversation struct {
	ID        uuid.UUID       `db:"id"`
	Title     *string         `db:"title"` // Nullable until a title is set
	Messages  json.RawMessage `db:"messages"`
	CreatedAt time.Time       `db:"created_at"`
	UpdatedAt time.Time       `db:"updated_at"`
}
